package chord

import (
	"context"

	"chordring/internal/logger"
)

// JoinAsFirst makes n the sole node of a brand-new ring: every finger, the
// successor, and the predecessor all point at self.
func (n *Node) JoinAsFirst() {
	n.mu.Lock()
	n.successor = n.id
	n.predecessor = n.id
	n.hasPred = true
	for i := range n.fingers {
		n.fingers[i] = n.id
	}
	n.mu.Unlock()
	n.markAlive()
	n.lgr.Info("joined as the first node of a new ring", logger.FID("id", n.id))
}

// Join inserts n into the ring through contact, following spec.md §4.2:
// locate the successor, adopt the contact's notion of that successor's
// predecessor, build the rest of the finger table from contact's view of
// the ring, propagate update_others backwards through predecessors, and
// finally pull across the keys n now owns.
func (n *Node) Join(ctx context.Context, contact *Node) error {
	succ, err := contact.FindSuccessor(ctx, n.space.AddMod(n.id, n.space.FromUint64(1)))
	if err != nil {
		return err
	}

	n.setSuccessor(succ.id)
	n.mu.Lock()
	n.fingers[0] = succ.id
	n.mu.Unlock()

	if prevPred, ok := succ.Predecessor(); ok {
		n.setPredecessor(prevPred, true)
	}

	for i := 0; i < n.space.Bits-1; i++ {
		start := n.space.AddMod(n.id, n.space.FromUint64(1<<uint(i+1)))
		n.mu.RLock()
		finger := n.fingers[i]
		n.mu.RUnlock()

		if n.space.InInterval(n.id, finger, start, true, false) {
			n.mu.Lock()
			n.fingers[i+1] = finger
			n.mu.Unlock()
			continue
		}
		fsucc, err := contact.FindSuccessor(ctx, start)
		if err != nil {
			return err
		}
		n.mu.Lock()
		n.fingers[i+1] = fsucc.id
		n.mu.Unlock()
	}

	n.markAlive()

	// Reusing Notify's betterness check here (rather than an unconditional
	// succ.predecessor = n write) resolves the ambiguity spec.md §9 flags
	// about init_finger_table possibly disrupting a concurrent joiner.
	succ.Notify(n)

	n.updateOthers(ctx)
	n.moveKeysFromSuccessor()

	n.lgr.Info("joined ring", logger.FID("id", n.id), logger.FID("successor", succ.id))
	return nil
}

// updateOthers implements spec.md's update_others: for each finger index i,
// find the predecessor of (self.id - 2^i) and ask it to reconsider its own
// finger[i] in light of self's arrival.
func (n *Node) updateOthers(ctx context.Context) {
	for i := 0; i < n.space.Bits; i++ {
		target := n.space.SubMod(n.id, n.space.FromUint64(1<<uint(i)))
		p, err := n.FindPredecessor(ctx, target)
		if err != nil {
			continue
		}
		if !p.id.Equal(n.id) {
			p.updateFingerTable(n, i)
		}
	}
}

// updateFingerTable is update_finger_table(s, i) from spec.md: if s belongs
// in p's finger[i] slot, install it and recurse backwards through p's
// predecessor so the update propagates to every node whose finger[i]
// should also now point at s.
func (n *Node) updateFingerTable(s *Node, i int) {
	n.mu.Lock()
	current := n.fingers[i]
	belongs := current == nil || n.space.InInterval(n.id, current, s.id, true, false)
	if belongs && !s.id.Equal(n.id) {
		n.fingers[i] = s.id
		if i == 0 {
			// finger[0] is always the successor; keep the two in sync.
			n.successor = s.id
		}
	}
	n.mu.Unlock()

	if !belongs || s.id.Equal(n.id) {
		return
	}

	pred, has := n.Predecessor()
	if !has || pred.Equal(n.id) {
		return
	}
	predNode, ok := n.reg.Lookup(pred)
	if !ok || predNode.id.Equal(n.id) {
		return
	}
	predNode.updateFingerTable(s, i)
}

// moveKeysFromSuccessor implements spec.md's move_keys: drain from the
// successor every key whose hash falls in (predecessor, self.id].
func (n *Node) moveKeysFromSuccessor() {
	succ := n.successorNode()
	if succ.id.Equal(n.id) {
		return
	}
	pred, has := n.Predecessor()
	start := pred
	if !has {
		start = n.id
	}
	owned := succ.localKeysIn(start, n.id, false, true)
	if len(owned) == 0 {
		return
	}
	keys := make([]string, 0, len(owned))
	for k, v := range owned {
		n.Store(k, v)
		keys = append(keys, k)
	}
	succ.deleteKeys(keys)
}
