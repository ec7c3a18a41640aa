package chord

import (
	"context"
	"testing"

	"chordring/internal/domain"
	"chordring/internal/logger"
)

// memRegistry is a fixed-membership Registry for tests that don't need a
// coordinator.
type memRegistry struct {
	nodes map[string]*Node
}

func newMemRegistry() *memRegistry {
	return &memRegistry{nodes: make(map[string]*Node)}
}

func (r *memRegistry) Lookup(id domain.ID) (*Node, bool) {
	n, ok := r.nodes[id.ToHexString(false)]
	return n, ok
}

func (r *memRegistry) add(n *Node) {
	r.nodes[n.ID().ToHexString(false)] = n
}

func mustSpace(t *testing.T, bits int) domain.Space {
	t.Helper()
	sp, err := domain.NewSpace(bits)
	if err != nil {
		t.Fatalf("NewSpace(%d): %v", bits, err)
	}
	return sp
}

func TestJoinAsFirstFormsSingletonRing(t *testing.T) {
	sp := mustSpace(t, 5)
	reg := newMemRegistry()
	n := New(sp.FromUint64(8), sp, reg, logger.NopLogger{})
	reg.add(n)
	n.JoinAsFirst()

	if !n.IsAlive() {
		t.Fatal("node should be alive after JoinAsFirst")
	}
	if !n.Successor().Equal(n.ID()) {
		t.Errorf("successor = %s, want self", n.Successor().ToHexString(false))
	}
	pred, has := n.Predecessor()
	if !has || !pred.Equal(n.ID()) {
		t.Errorf("predecessor = %v (has=%v), want self", pred, has)
	}
	for i, f := range n.FingerTable() {
		if !f.Equal(n.ID()) {
			t.Errorf("finger[%d] = %s, want self", i, f.ToHexString(false))
		}
	}
}

func TestJoinBuildsSuccessorRing(t *testing.T) {
	sp := mustSpace(t, 5)
	reg := newMemRegistry()

	first := New(sp.FromUint64(1), sp, reg, logger.NopLogger{})
	reg.add(first)
	first.JoinAsFirst()

	second := New(sp.FromUint64(8), sp, reg, logger.NopLogger{})
	reg.add(second)
	if err := second.Join(context.Background(), first); err != nil {
		t.Fatalf("Join: %v", err)
	}

	if !second.Successor().Equal(first.ID()) {
		t.Errorf("second.successor = %s, want first (wraps around)", second.Successor().ToHexString(false))
	}
	if !first.Successor().Equal(second.ID()) {
		t.Errorf("first.successor = %s, want second", first.Successor().ToHexString(false))
	}
}

func TestFindSuccessorOnConvergedRing(t *testing.T) {
	// Ring from spec.md's worked example: M=5, ids 1, 8, 14, 21, 28.
	sp := mustSpace(t, 5)
	reg := newMemRegistry()
	ids := []uint64{1, 8, 14, 21, 28}
	nodes := make([]*Node, len(ids))
	for i, id := range ids {
		n := New(sp.FromUint64(id), sp, reg, logger.NopLogger{})
		reg.add(n)
		nodes[i] = n
	}
	nodes[0].JoinAsFirst()
	for i := 1; i < len(nodes); i++ {
		if err := nodes[i].Join(context.Background(), nodes[0]); err != nil {
			t.Fatalf("Join(%d): %v", ids[i], err)
		}
	}
	// Let stabilize converge the ring: several passes are enough at this size.
	for pass := 0; pass < len(nodes)*2; pass++ {
		for _, n := range nodes {
			n.stabilize()
		}
	}

	cases := []struct {
		target uint64
		want   uint64
	}{
		{target: 1, want: 1},
		{target: 2, want: 8},
		{target: 14, want: 14},
		{target: 15, want: 21},
		{target: 29, want: 1}, // wraps
		{target: 0, want: 1},
	}
	for _, c := range cases {
		got, err := nodes[0].FindSuccessor(context.Background(), sp.FromUint64(c.target))
		if err != nil {
			t.Fatalf("FindSuccessor(%d): %v", c.target, err)
		}
		if !got.ID().Equal(sp.FromUint64(c.want)) {
			t.Errorf("FindSuccessor(%d) = %s, want %d", c.target, got.ID().ToHexString(false), c.want)
		}
	}
}

func TestStoreAndRetrieve(t *testing.T) {
	sp := mustSpace(t, 5)
	reg := newMemRegistry()
	n := New(sp.FromUint64(1), sp, reg, logger.NopLogger{})
	reg.add(n)
	n.JoinAsFirst()

	n.Store("k", "v")
	v, err := n.Retrieve("k")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if v != "v" {
		t.Errorf("Retrieve = %q, want %q", v, "v")
	}

	if _, err := n.Retrieve("missing"); err != ErrNotFound {
		t.Errorf("Retrieve(missing) err = %v, want ErrNotFound", err)
	}
}

func TestLeaveTransfersKeysAndSplices(t *testing.T) {
	sp := mustSpace(t, 5)
	reg := newMemRegistry()
	a := New(sp.FromUint64(1), sp, reg, logger.NopLogger{})
	reg.add(a)
	a.JoinAsFirst()

	b := New(sp.FromUint64(8), sp, reg, logger.NopLogger{})
	reg.add(b)
	if err := b.Join(context.Background(), a); err != nil {
		t.Fatalf("Join: %v", err)
	}
	for pass := 0; pass < 4; pass++ {
		a.stabilize()
		b.stabilize()
	}

	b.Store("key", "value")
	b.Leave()

	if b.IsAlive() {
		t.Fatal("b should not be alive after Leave")
	}
	if !a.Successor().Equal(a.ID()) {
		t.Errorf("a.successor after b leaves = %s, want self", a.Successor().ToHexString(false))
	}
	v, err := a.Retrieve("key")
	if err != nil || v != "value" {
		t.Errorf("a should have inherited b's key, got v=%q err=%v", v, err)
	}
}
