// Package coord implements the DHT coordinator (C3 in spec.md): the node
// registry, node admission and eviction, and the replicated put/get
// dispatch layered on top of a single node's lookup primitives.
package coord

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"sync"

	"chordring/internal/chord"
	"chordring/internal/domain"
	"chordring/internal/logger"

	"go.opentelemetry.io/otel/trace"
)

// Errors surfaced to the driver, matching the plain-text taxonomy in
// spec.md §6/§7.
var (
	ErrInvalidID   = errors.New("invalid id")
	ErrDuplicateID = errors.New("duplicate id")
	ErrUnknownID   = errors.New("unknown id")
	ErrEmptyRing   = errors.New("empty ring")
	ErrOutOfRange  = errors.New("id out of range")
)

// Coordinator owns the registry of live nodes and dispatches admission,
// eviction, and replicated data operations across them.
type Coordinator struct {
	space       domain.Space
	replication int
	periods     chord.Periods
	lgr         logger.Logger
	tracer      trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	nodes map[string]*chord.Node // keyed by hex id
	rnd   *rand.Rand
}

// New builds a Coordinator. seed makes node-id allocation and contact
// selection reproducible, per spec.md §9's requirement that a test harness
// be able to inject a deterministic random source.
func New(space domain.Space, replication int, seed int64, periods chord.Periods, lgr logger.Logger, tracer trace.Tracer) *Coordinator {
	if lgr == nil {
		lgr = logger.NopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		space:       space,
		replication: replication,
		periods:     periods,
		lgr:         lgr,
		tracer:      tracer,
		ctx:         ctx,
		cancel:      cancel,
		nodes:       make(map[string]*chord.Node),
		rnd:         rand.New(rand.NewSource(seed)),
	}
}

// Close stops every node's maintenance loop. Call it once when the
// simulation shuts down.
func (c *Coordinator) Close() {
	c.cancel()
}

// Lookup satisfies chord.Registry: it resolves an id to its live node
// actor without ever holding the registry lock while the caller goes on to
// acquire that node's own lock, per spec.md §5's lock-ordering rule.
func (c *Coordinator) Lookup(id domain.ID) (*chord.Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[id.ToHexString(false)]
	return n, ok
}

// Nodes returns the ids of every live node, ascending.
func (c *Coordinator) Nodes() []domain.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]domain.ID, 0, len(c.nodes))
	for _, n := range c.nodes {
		ids = append(ids, n.ID())
	}
	sortIDs(ids)
	return ids
}

// NodeByID exposes a node for the observer surface (C4), which needs
// direct read access to finger tables and pointers.
func (c *Coordinator) NodeByID(id domain.ID) (*chord.Node, bool) {
	return c.Lookup(id)
}

func sortIDs(ids []domain.ID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1].Cmp(ids[j]) > 0; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

// pickContact returns an arbitrary live node to join through, or nil if the
// registry is empty.
func (c *Coordinator) pickContact() *chord.Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.nodes) == 0 {
		return nil
	}
	idx := c.rnd.Intn(len(c.nodes))
	i := 0
	for _, n := range c.nodes {
		if i == idx {
			return n
		}
		i++
	}
	return nil
}

// randomID draws a uniform random identifier in the space, retrying on
// collision against the current registry (spec.md §4.3: "allocate a fresh
// id if none given (random, collision-retried)").
func (c *Coordinator) randomID() domain.ID {
	modulus := new(big.Int).Lsh(big.NewInt(1), uint(c.space.Bits))
	for {
		v := new(big.Int).Rand(c.rnd, modulus)
		id := make(domain.ID, c.space.ByteLen)
		b := v.Bytes()
		copy(id[c.space.ByteLen-len(b):], b)

		c.mu.RLock()
		_, exists := c.nodes[id.ToHexString(false)]
		c.mu.RUnlock()
		if !exists {
			return id
		}
	}
}

// AddNode allocates (or validates) an id, joins it into the ring through an
// arbitrary existing member (or founds the ring if empty), and starts its
// maintenance loop. Returns the assigned id.
func (c *Coordinator) AddNode(ctx context.Context, explicit *domain.ID) (domain.ID, error) {
	var id domain.ID
	if explicit != nil {
		if err := c.space.IsValidID(*explicit); err != nil {
			return nil, ErrOutOfRange
		}
		c.mu.RLock()
		_, exists := c.nodes[explicit.ToHexString(false)]
		c.mu.RUnlock()
		if exists {
			return nil, ErrDuplicateID
		}
		id = *explicit
	} else {
		id = c.randomID()
	}

	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.Start(ctx, "coordinator.AddNode")
		defer span.End()
	}

	node := chord.New(id, c.space, c, c.lgr.Named("node."+id.ToHexString(false)))
	contact := c.pickContact()

	if contact == nil {
		node.JoinAsFirst()
	} else if err := node.Join(ctx, contact); err != nil {
		return nil, fmt.Errorf("join failed: %w", err)
	}

	c.mu.Lock()
	// Re-check for a racing duplicate admission under the write lock,
	// since pickContact/Join ran without holding it.
	if _, exists := c.nodes[id.ToHexString(false)]; exists {
		c.mu.Unlock()
		return nil, ErrDuplicateID
	}
	c.nodes[id.ToHexString(false)] = node
	c.mu.Unlock()

	node.StartMaintenance(c.ctx, c.periods)
	c.lgr.Info("node added", logger.FID("id", id))
	return id, nil
}

// RemoveNode evicts id from the ring: the node transfers its keys to its
// successor and splices itself out before being dropped from the registry.
func (c *Coordinator) RemoveNode(ctx context.Context, id domain.ID) error {
	c.mu.RLock()
	node, ok := c.nodes[id.ToHexString(false)]
	c.mu.RUnlock()
	if !ok {
		return ErrUnknownID
	}

	node.Leave()

	c.mu.Lock()
	delete(c.nodes, id.ToHexString(false))
	c.mu.Unlock()

	c.lgr.Info("node removed", logger.FID("id", id))
	return nil
}

// liveNodeCount returns how many nodes are currently registered.
func (c *Coordinator) liveNodeCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes)
}

// effectiveReplicas returns min(R, |nodes|).
func (c *Coordinator) effectiveReplicas() int {
	n := c.liveNodeCount()
	if c.replication < n {
		return c.replication
	}
	return n
}

// Put stores (key, value) on the successor of hash_key(key) and on up to
// R-1 further successors, per spec.md §4.3.
func (c *Coordinator) Put(ctx context.Context, key, value string) error {
	r := c.effectiveReplicas()
	if r == 0 {
		return ErrEmptyRing
	}

	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.Start(ctx, "coordinator.Put")
		defer span.End()
	}

	entry := c.pickContact()
	hash := c.space.HashKey(key)
	primary, err := entry.FindSuccessor(ctx, hash)
	if err != nil {
		return fmt.Errorf("put: locating primary: %w", err)
	}
	primary.Store(key, value)

	cur := primary
	for i := 1; i < r; i++ {
		next, ok := c.Lookup(cur.Successor())
		if !ok || next.ID().Equal(primary.ID()) {
			break
		}
		next.Store(key, value)
		cur = next
	}
	return nil
}

// Get probes the successor of hash_key(key) and up to R-1 further
// successors, returning the first value found.
func (c *Coordinator) Get(ctx context.Context, key string) (string, bool, error) {
	r := c.effectiveReplicas()
	if r == 0 {
		return "", false, ErrEmptyRing
	}

	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.Start(ctx, "coordinator.Get")
		defer span.End()
	}

	entry := c.pickContact()
	hash := c.space.HashKey(key)
	primary, err := entry.FindSuccessor(ctx, hash)
	if err != nil {
		return "", false, fmt.Errorf("get: locating primary: %w", err)
	}

	cur := primary
	for i := 0; i < r; i++ {
		if v, err := cur.Retrieve(key); err == nil {
			return v, true, nil
		}
		next, ok := c.Lookup(cur.Successor())
		if !ok || next.ID().Equal(primary.ID()) {
			break
		}
		cur = next
	}
	return "", false, nil
}
