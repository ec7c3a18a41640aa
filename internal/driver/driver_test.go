package driver

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"chordring/internal/chord"
	"chordring/internal/coord"
	"chordring/internal/domain"
	"chordring/internal/logger"
	"chordring/internal/observer"
)

func newTestDriver(t *testing.T) (*Driver, *coord.Coordinator) {
	t.Helper()
	sp, err := domain.NewSpace(5)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	periods := chord.Periods{
		Stabilize:        time.Hour,
		FixFingers:       time.Hour,
		CheckPredecessor: time.Hour,
	}
	c := coord.New(sp, 3, 7, periods, logger.NopLogger{}, nil)
	t.Cleanup(c.Close)
	obs := observer.New(c)
	var buf bytes.Buffer
	return New(sp, c, obs, &buf), c
}

func TestDriverAddAndRing(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	resp := d.Execute(ctx, "add 1")
	if resp != "ok 1" {
		t.Errorf("add 1 = %q, want %q", resp, "ok 1")
	}

	resp = d.Execute(ctx, "add 8")
	if resp != "ok 8" {
		t.Errorf("add 8 = %q, want %q", resp, "ok 8")
	}

	resp = d.Execute(ctx, "add 14")
	if resp != "ok 14" {
		t.Errorf("add 14 = %q, want %q", resp, "ok 14")
	}

	resp = d.Execute(ctx, "ring")
	if resp == "empty ring" {
		t.Error("ring should not be empty after three adds")
	}
}

func TestDriverAddDuplicateID(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()
	d.Execute(ctx, "add 3")
	resp := d.Execute(ctx, "add 3")
	if resp != "duplicate id" {
		t.Errorf("second add 3 = %q, want %q", resp, "duplicate id")
	}
}

func TestDriverAddInvalidID(t *testing.T) {
	d, _ := newTestDriver(t)
	resp := d.Execute(context.Background(), "add zz")
	if resp != "invalid id" {
		t.Errorf("add zz = %q, want %q", resp, "invalid id")
	}
}

func TestDriverAddOutOfRangeID(t *testing.T) {
	d, _ := newTestDriver(t)
	resp := d.Execute(context.Background(), "add 32") // 2^5, one past the 5-bit space
	if resp != "id out of range" {
		t.Errorf("add 32 = %q, want %q", resp, "id out of range")
	}
}

// TestDriverAddWorkedExampleScenario runs spec.md §8 scenario 1's node ids
// through the command surface: 21 (0x15) and 28 (0x1c) would be rejected as
// "invalid id" if the grammar parsed decimal digits as hex (0x21 and 0x28
// both exceed the 5-bit space), and "add 14" would silently create node
// 0x14 (20) instead of 14. Decimal parsing must round-trip each id exactly,
// both on add and on query.
func TestDriverAddWorkedExampleScenario(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	for _, id := range []string{"1", "8", "14", "21", "28"} {
		resp := d.Execute(ctx, "add "+id)
		if resp != "ok "+id {
			t.Errorf("add %s = %q, want %q", id, resp, "ok "+id)
		}
	}

	resp := d.Execute(ctx, "query 14")
	if !strings.HasPrefix(resp, "id=14 ") {
		t.Errorf("query 14 = %q, want a snapshot reporting id=14", resp)
	}
}

func TestDriverPutGet(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()
	d.Execute(ctx, "add 1")

	if resp := d.Execute(ctx, "put greeting hello"); resp != "ok" {
		t.Errorf("put = %q, want ok", resp)
	}
	if resp := d.Execute(ctx, "get greeting"); resp != "hello" {
		t.Errorf("get = %q, want %q", resp, "hello")
	}
	if resp := d.Execute(ctx, "get missing"); resp != "not found" {
		t.Errorf("get missing = %q, want %q", resp, "not found")
	}
}

func TestDriverGetOnEmptyRing(t *testing.T) {
	d, _ := newTestDriver(t)
	resp := d.Execute(context.Background(), "get anything")
	if resp != "empty ring" {
		t.Errorf("get on empty ring = %q, want %q", resp, "empty ring")
	}
}

func TestDriverRemoveUnknown(t *testing.T) {
	d, _ := newTestDriver(t)
	resp := d.Execute(context.Background(), "remove 9")
	if resp != "unknown id" {
		t.Errorf("remove unknown = %q, want %q", resp, "unknown id")
	}
}

func TestDriverQuery(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()
	d.Execute(ctx, "add 1")

	resp := d.Execute(ctx, "query 1")
	if resp == "unknown id" || resp == "invalid id" {
		t.Errorf("query 1 = %q, want a snapshot", resp)
	}
}

func TestDriverUnknownCommand(t *testing.T) {
	d, _ := newTestDriver(t)
	resp := d.Execute(context.Background(), "frobnicate")
	if resp == "" {
		t.Error("unknown command should produce a non-empty response")
	}
}
