package chord

import (
	"context"
	"time"

	"chordring/internal/logger"
)

// Periods configures the cadence of the three maintenance steps. The
// reference cadence from spec.md §5 is one full pass per second; each step
// can be tuned independently for tests that want faster convergence.
type Periods struct {
	Stabilize        time.Duration
	FixFingers       time.Duration
	CheckPredecessor time.Duration
}

// Notify is the message by which candidate informs n that it believes
// itself to be n's predecessor. n adopts candidate only if its current
// predecessor is unset or candidate is a better fit — the betterness check
// from spec.md §4.2, reused by Join to resolve the init_finger_table
// ambiguity flagged in spec.md §9.
func (n *Node) Notify(candidate *Node) {
	if candidate.id.Equal(n.id) {
		return
	}
	pred, has := n.Predecessor()
	if has && !n.space.InInterval(pred, n.id, candidate.id, false, false) {
		return
	}

	var moving map[string]string
	if has {
		// candidate interposes between the old predecessor and n; the
		// leading slice of n's key range now belongs to candidate.
		moving = n.localKeysIn(pred, candidate.id, false, true)
	}

	n.setPredecessor(candidate.id, true)

	if len(moving) > 0 {
		keys := make([]string, 0, len(moving))
		for k, v := range moving {
			candidate.Store(k, v)
			keys = append(keys, k)
		}
		n.deleteKeys(keys)
	}

	n.lgr.Debug("notify: accepted predecessor",
		logger.FID("self", n.id), logger.FID("candidate", candidate.id))
}

// stabilize reconciles n's successor with what that successor believes its
// own predecessor to be, then notifies the successor of n's existence.
// spec.md §4.2/§5: run stabilize, then fix_fingers, then check_predecessor,
// in that order, once per maintenance pass.
func (n *Node) stabilize() {
	succ := n.successorNode()
	if succ.id.Equal(n.id) {
		return
	}

	if x, hasX := succ.Predecessor(); hasX {
		if xNode, ok := n.reg.Lookup(x); ok && xNode.IsAlive() &&
			n.space.InInterval(n.id, succ.id, x, false, false) {
			n.setSuccessor(x)
			succ = xNode
			n.lgr.Debug("stabilize: adopted new successor",
				logger.FID("self", n.id), logger.FID("successor", x))
		}
	}

	succ.Notify(n)
}

// fixFingers refreshes finger[i] := find_successor((self.id + 2^i) mod
// 2^Bits).
func (n *Node) fixFingers(ctx context.Context, i int) {
	target := n.fingerTarget(i)
	succ, err := n.FindSuccessor(ctx, target)
	if err != nil {
		n.lgr.Debug("fix_fingers: lookup failed",
			logger.FID("self", n.id), logger.F("index", i), logger.F("err", err.Error()))
		return
	}
	n.mu.Lock()
	n.fingers[i] = succ.id
	n.mu.Unlock()
}

// checkPredecessor clears the predecessor if it's no longer alive.
func (n *Node) checkPredecessor() {
	pred, has := n.Predecessor()
	if !has {
		return
	}
	predNode, ok := n.reg.Lookup(pred)
	if !ok || !predNode.IsAlive() {
		n.setPredecessor(nil, false)
		n.lgr.Debug("check_predecessor: predecessor is dead, clearing",
			logger.FID("self", n.id), logger.FID("dead_predecessor", pred))
	}
}

// StartMaintenance runs the per-node background maintenance loop until ctx
// is cancelled or the node leaves the ring. Each time any step comes due,
// the due steps run sequentially in the order stabilize, fix_fingers
// (round-robin, one entry per tick), check_predecessor, matching the
// ordering guarantee in spec.md §5 even when two or more periods elapse in
// the same quantum.
func (n *Node) StartMaintenance(ctx context.Context, periods Periods) {
	go n.maintenanceLoop(ctx, periods)
}

// maintenanceLoop is driven by a single ticker at the pace of the shortest
// configured period (the quantum). Racing independent tickers through one
// select, as Go schedules pseudo-randomly among simultaneously-ready cases,
// cannot guarantee stabilize always precedes fix_fingers and
// check_predecessor when periods coincide (the reference configuration sets
// all three to 1s). Tracking each step's own due time against a single
// clock and checking them in a fixed order on every quantum removes that
// race while still letting each step keep its own configured period.
func (n *Node) maintenanceLoop(ctx context.Context, periods Periods) {
	quantum := periods.Stabilize
	if periods.FixFingers < quantum {
		quantum = periods.FixFingers
	}
	if periods.CheckPredecessor < quantum {
		quantum = periods.CheckPredecessor
	}
	if quantum <= 0 {
		quantum = time.Second
	}

	ticker := time.NewTicker(quantum)
	defer ticker.Stop()

	now := time.Now()
	nextStabilize := now.Add(periods.Stabilize)
	nextFixFingers := now.Add(periods.FixFingers)
	nextCheckPred := now.Add(periods.CheckPredecessor)
	nextFinger := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stop:
			return
		case t := <-ticker.C:
			if !n.IsAlive() {
				continue
			}
			if !t.Before(nextStabilize) {
				n.stabilize()
				nextStabilize = t.Add(periods.Stabilize)
			}
			if !t.Before(nextFixFingers) {
				n.fixFingers(ctx, nextFinger)
				nextFinger = (nextFinger + 1) % n.space.Bits
				nextFixFingers = t.Add(periods.FixFingers)
			}
			if !t.Before(nextCheckPred) {
				n.checkPredecessor()
				nextCheckPred = t.Add(periods.CheckPredecessor)
			}
		}
	}
}

// Leave implements spec.md §4.2's leave procedure: copy every local key to
// the successor, splice predecessor and successor together, then go dark.
func (n *Node) Leave() {
	n.mu.Lock()
	n.state = stateLeaving
	n.mu.Unlock()

	succ := n.successorNode()
	pred, hasPred := n.Predecessor()

	if !succ.id.Equal(n.id) {
		n.mu.RLock()
		data := make(map[string]string, len(n.data))
		for k, v := range n.data {
			data[k] = v
		}
		n.mu.RUnlock()
		for k, v := range data {
			succ.Store(k, v)
		}

		succ.setPredecessor(pred, hasPred)
		if hasPred {
			if predNode, ok := n.reg.Lookup(pred); ok {
				predNode.setSuccessor(succ.id)
			}
		}
	}

	n.mu.Lock()
	n.state = stateDead
	n.mu.Unlock()
	close(n.stop)

	n.lgr.Info("left ring", logger.FID("id", n.id))
}
