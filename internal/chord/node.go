// Package chord implements the per-node Chord actor: state machine, finger
// table, lookup primitives, join/leave procedures, and the maintenance loop
// that keeps the ring converged. Nodes never hold references to each other
// directly; every cross-node call goes through a Registry lookup by id, so
// the ring can be spliced, evicted, and garbage collected without dangling
// pointers — the non-owning-handle pattern spec.md's design notes call for.
package chord

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"chordring/internal/domain"
	"chordring/internal/logger"
)

// ErrNotFound is returned by Retrieve when a key isn't held locally.
var ErrNotFound = errors.New("not found")

// state is the per-node lifecycle state from spec.md §4.2.
type state int

const (
	stateJoining state = iota
	stateAlive
	stateLeaving
	stateDead
)

// Registry resolves an identifier to the live node actor that owns it.
// Implemented by the coordinator; chord never depends on the coordinator
// package, only on this narrow interface, to keep the lookup path a plain
// local call rather than a layered dependency.
type Registry interface {
	Lookup(id domain.ID) (*Node, bool)
}

// Node is a single actor on the ring: its own identifier, finger table,
// successor/predecessor pointers, local key-value store, and liveness
// flag, each guarded by mu per spec.md §5.
type Node struct {
	id    domain.ID
	space domain.Space
	reg   Registry
	lgr   logger.Logger

	mu          sync.RWMutex
	state       state
	successor   domain.ID
	predecessor domain.ID
	hasPred     bool
	fingers     []domain.ID // length Bits; nil entry means "unknown, use self"
	data        map[string]string

	stop chan struct{}
}

// New constructs a node in the joining state. Call Join (or JoinAsFirst)
// before it starts serving lookups.
func New(id domain.ID, space domain.Space, reg Registry, lgr logger.Logger) *Node {
	if lgr == nil {
		lgr = logger.NopLogger{}
	}
	n := &Node{
		id:      id,
		space:   space,
		reg:     reg,
		lgr:     lgr,
		state:   stateJoining,
		fingers: make([]domain.ID, space.Bits),
		data:    make(map[string]string),
		stop:    make(chan struct{}),
	}
	return n
}

// ID returns the node's identifier.
func (n *Node) ID() domain.ID { return n.id }

// IsAlive reports whether the node is in the alive state.
func (n *Node) IsAlive() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state == stateAlive
}

// Successor returns the node's current successor id.
func (n *Node) Successor() domain.ID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.successor
}

// Predecessor returns the node's current predecessor id and whether one is
// set.
func (n *Node) Predecessor() (domain.ID, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.predecessor, n.hasPred
}

// FingerTable returns a copy of the finger table, skipping unset entries,
// for the observer surface (C4).
func (n *Node) FingerTable() []domain.ID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]domain.ID, 0, len(n.fingers))
	for _, f := range n.fingers {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

// successorNode resolves the node's successor through the registry. It
// falls back to self if the successor cannot be resolved (e.g. it has
// already been evicted), which degrades gracefully to a single-node ring
// rather than panicking.
func (n *Node) successorNode() *Node {
	n.mu.RLock()
	succID := n.successor
	n.mu.RUnlock()
	if succ, ok := n.reg.Lookup(succID); ok && succ.IsAlive() {
		return succ
	}
	return n
}

// Store inserts (k, v) into the node's local map. Store and Retrieve are
// the only operations spec.md allows the driver/coordinator to invoke
// directly against a node's data, bypassing lookup — the coordinator has
// already resolved which node is responsible.
func (n *Node) Store(k, v string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.data[k] = v
}

// Retrieve returns the value stored locally for k, or ErrNotFound.
func (n *Node) Retrieve(k string) (string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.data[k]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// localKeysIn returns the keys (and values) whose hash lies in the given
// ring interval, without removing them.
func (n *Node) localKeysIn(start, end domain.ID, inclusiveStart, inclusiveEnd bool) map[string]string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]string)
	for k, v := range n.data {
		h := n.space.HashKey(k)
		if n.space.InInterval(start, end, h, inclusiveStart, inclusiveEnd) {
			out[k] = v
		}
	}
	return out
}

// deleteKeys removes the given keys from the local map.
func (n *Node) deleteKeys(keys []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, k := range keys {
		delete(n.data, k)
	}
}

// FindSuccessor returns the first live node whose id is >= h on the ring,
// per spec.md §4.2: find_predecessor(h).successor.
func (n *Node) FindSuccessor(ctx context.Context, h domain.ID) (*Node, error) {
	pred, err := n.FindPredecessor(ctx, h)
	if err != nil {
		return nil, err
	}
	return pred.successorNode(), nil
}

// FindPredecessor walks the ring from self towards h, hopping through the
// closest preceding finger until h falls in (current, current.successor].
// A hop that returns self again terminates the walk, guarding against a
// degenerate or not-yet-converged ring.
func (n *Node) FindPredecessor(ctx context.Context, h domain.ID) (*Node, error) {
	current := n
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		succ := current.successorNode()
		if current.space.InInterval(current.id, succ.id, h, false, true) {
			return current, nil
		}
		next := current.closestPrecedingFinger(h)
		if next.id.Equal(current.id) {
			return current, nil
		}
		current = next
		if i > 4*n.space.Bits {
			// Bounded against a cycle that stabilization hasn't resolved
			// yet; spec.md caps find_predecessor at O(log N) hops in a
			// stabilized ring, so this many hops means something's off.
			return current, nil
		}
	}
}

// closestPrecedingFinger scans finger[Bits-1..0] and returns the first
// alive finger whose id lies strictly between self and h; else self.
func (n *Node) closestPrecedingFinger(h domain.ID) *Node {
	n.mu.RLock()
	fingers := make([]domain.ID, len(n.fingers))
	copy(fingers, n.fingers)
	selfID := n.id
	n.mu.RUnlock()

	for i := len(fingers) - 1; i >= 0; i-- {
		f := fingers[i]
		if f == nil {
			continue
		}
		node, ok := n.reg.Lookup(f)
		if !ok || !node.IsAlive() {
			continue // dead finger: skip, per spec.md §4.2 failure semantics
		}
		if n.space.InInterval(selfID, h, f, false, false) {
			return node
		}
	}
	return n
}

// fingerTarget returns (self.id + 2^i) mod 2^Bits.
func (n *Node) fingerTarget(i int) domain.ID {
	return n.space.AddMod(n.id, n.space.FromUint64(1<<uint(i)))
}

// setSuccessor updates the successor pointer and, since finger[0] is
// always the successor, keeps that finger entry in sync.
func (n *Node) setSuccessor(id domain.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successor = id
	if len(n.fingers) > 0 {
		n.fingers[0] = id
	}
}

// setPredecessor updates the predecessor pointer.
func (n *Node) setPredecessor(id domain.ID, has bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.predecessor = id
	n.hasPred = has
}

// markAlive flips the node into the alive state, used once join bookkeeping
// has finished.
func (n *Node) markAlive() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = stateAlive
}

func (n *Node) String() string {
	return fmt.Sprintf("node(%s, succ=%s)", n.id.ToHexString(true), n.Successor().ToHexString(true))
}
