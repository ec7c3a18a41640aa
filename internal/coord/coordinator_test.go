package coord

import (
	"context"
	"testing"
	"time"

	"chordring/internal/chord"
	"chordring/internal/domain"
	"chordring/internal/logger"
)

func testPeriods() chord.Periods {
	return chord.Periods{
		Stabilize:        time.Hour,
		FixFingers:       time.Hour,
		CheckPredecessor: time.Hour,
	}
}

func mustSpace(t *testing.T, bits int) domain.Space {
	t.Helper()
	sp, err := domain.NewSpace(bits)
	if err != nil {
		t.Fatalf("NewSpace(%d): %v", bits, err)
	}
	return sp
}

// Periods are set far longer than the test itself runs, so every state
// transition in these tests comes from direct calls, not the background
// maintenance loop racing the assertions.
func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	c := New(mustSpace(t, 5), 3, 42, testPeriods(), logger.NopLogger{}, nil)
	t.Cleanup(c.Close)
	return c
}

func TestAddNodeFoundsRing(t *testing.T) {
	c := newTestCoordinator(t)
	id, err := c.AddNode(context.Background(), nil)
	if err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	n, ok := c.Lookup(id)
	if !ok {
		t.Fatal("added node not found in registry")
	}
	if !n.Successor().Equal(id) {
		t.Errorf("singleton node's successor = %s, want self", n.Successor().ToHexString(false))
	}
}

func TestAddNodeRejectsDuplicateID(t *testing.T) {
	c := newTestCoordinator(t)
	explicit := c.space.FromUint64(5)
	if _, err := c.AddNode(context.Background(), &explicit); err != nil {
		t.Fatalf("first AddNode: %v", err)
	}
	if _, err := c.AddNode(context.Background(), &explicit); err != ErrDuplicateID {
		t.Errorf("second AddNode err = %v, want ErrDuplicateID", err)
	}
}

func TestAddNodeRejectsOutOfRangeID(t *testing.T) {
	c := newTestCoordinator(t)
	bad := domain.ID{0xFF, 0xFF} // too many bytes for a 5-bit space
	if _, err := c.AddNode(context.Background(), &bad); err != ErrOutOfRange {
		t.Errorf("AddNode(out of range) err = %v, want ErrOutOfRange", err)
	}
}

func TestRemoveUnknownNode(t *testing.T) {
	c := newTestCoordinator(t)
	if err := c.RemoveNode(context.Background(), c.space.FromUint64(9)); err != ErrUnknownID {
		t.Errorf("RemoveNode(unknown) err = %v, want ErrUnknownID", err)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	c := newTestCoordinator(t)
	for _, id := range []uint64{1, 8, 14, 21, 28} {
		explicit := c.space.FromUint64(id)
		if _, err := c.AddNode(context.Background(), &explicit); err != nil {
			t.Fatalf("AddNode(%d): %v", id, err)
		}
	}

	if err := c.Put(context.Background(), "hello", "world"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, found, err := c.Get(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || v != "world" {
		t.Errorf("Get = (%q, %v), want (\"world\", true)", v, found)
	}
}

func TestGetEmptyRing(t *testing.T) {
	c := newTestCoordinator(t)
	if _, _, err := c.Get(context.Background(), "anything"); err != ErrEmptyRing {
		t.Errorf("Get on empty ring err = %v, want ErrEmptyRing", err)
	}
	if err := c.Put(context.Background(), "k", "v"); err != ErrEmptyRing {
		t.Errorf("Put on empty ring err = %v, want ErrEmptyRing", err)
	}
}

func TestGetMissingKey(t *testing.T) {
	c := newTestCoordinator(t)
	id := c.space.FromUint64(1)
	if _, err := c.AddNode(context.Background(), &id); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	_, found, err := c.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Error("Get(missing key) found = true, want false")
	}
}

