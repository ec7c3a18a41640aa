// Package observer implements the read-only snapshot surface (C4 in
// spec.md): point-in-time views of the ring, a node's finger table, and a
// node's successor/predecessor, taken without perturbing any node's state.
package observer

import (
	"errors"

	"chordring/internal/chord"
	"chordring/internal/domain"
)

// ErrUnknownID mirrors coord.ErrUnknownID for callers that only depend on
// the observer package.
var ErrUnknownID = errors.New("unknown id")

// Registry is the subset of the coordinator an observer needs: the live
// node set and lookup by id.
type Registry interface {
	Nodes() []domain.ID
	NodeByID(id domain.ID) (*chord.Node, bool)
}

// Observer answers read-only queries against a registry's current state.
type Observer struct {
	reg Registry
}

// New builds an Observer over reg.
func New(reg Registry) *Observer {
	return &Observer{reg: reg}
}

// RingEntry describes one node's position on the ring, as shown by the
// "ring" driver command.
type RingEntry struct {
	ID          domain.ID
	Successor   domain.ID
	Predecessor domain.ID
	HasPred     bool
}

// Ring returns every live node's id and pointers, ascending by id — the
// snapshot spec.md §6 calls the ring listing.
func (o *Observer) Ring() []RingEntry {
	ids := o.reg.Nodes()
	out := make([]RingEntry, 0, len(ids))
	for _, id := range ids {
		n, ok := o.reg.NodeByID(id)
		if !ok {
			continue
		}
		pred, hasPred := n.Predecessor()
		out = append(out, RingEntry{
			ID:          n.ID(),
			Successor:   n.Successor(),
			Predecessor: pred,
			HasPred:     hasPred,
		})
	}
	return out
}

// FingerTable returns the finger table of the node named by id.
func (o *Observer) FingerTable(id domain.ID) ([]domain.ID, error) {
	n, ok := o.reg.NodeByID(id)
	if !ok {
		return nil, ErrUnknownID
	}
	return n.FingerTable(), nil
}

// SuccessorOf returns the successor of the node named by id.
func (o *Observer) SuccessorOf(id domain.ID) (domain.ID, error) {
	n, ok := o.reg.NodeByID(id)
	if !ok {
		return nil, ErrUnknownID
	}
	return n.Successor(), nil
}

// PredecessorOf returns the predecessor of the node named by id, and
// whether one is set.
func (o *Observer) PredecessorOf(id domain.ID) (domain.ID, bool, error) {
	n, ok := o.reg.NodeByID(id)
	if !ok {
		return nil, false, ErrUnknownID
	}
	pred, has := n.Predecessor()
	return pred, has, nil
}
