package clock

import (
	"testing"
	"time"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// TestManualAfterFiresOnAdvance verifies a timer fires once the clock moves
// past its deadline and carries the new time.
func TestManualAfterFiresOnAdvance(t *testing.T) {
	m := NewManual(testEpoch)
	ch := m.After(time.Minute)

	select {
	case <-ch:
		t.Fatal("timer fired before Advance")
	default:
	}

	m.Advance(time.Minute)
	select {
	case at := <-ch:
		if !at.Equal(testEpoch.Add(time.Minute)) {
			t.Errorf("fired at %v, want %v", at, testEpoch.Add(time.Minute))
		}
	default:
		t.Fatal("timer did not fire after Advance past its deadline")
	}
}

// TestManualAfterPartialAdvance verifies a timer stays armed until its full
// duration has elapsed, across multiple Advance calls.
func TestManualAfterPartialAdvance(t *testing.T) {
	m := NewManual(testEpoch)
	ch := m.After(time.Minute)

	m.Advance(30 * time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired halfway to its deadline")
	default:
	}

	m.Advance(30 * time.Second)
	select {
	case <-ch:
	default:
		t.Fatal("timer did not fire after its full duration elapsed")
	}
}

// TestManualAfterNonPositive verifies a zero or negative duration yields an
// already-fired timer, matching time.After semantics closely enough for
// select loops.
func TestManualAfterNonPositive(t *testing.T) {
	m := NewManual(testEpoch)

	select {
	case <-m.After(0):
	default:
		t.Error("After(0) did not fire immediately")
	}
	select {
	case <-m.After(-time.Second):
	default:
		t.Error("After(-1s) did not fire immediately")
	}
}

// TestManualWaiters verifies the armed-timer count tests use to synchronize
// with goroutines about to block.
func TestManualWaiters(t *testing.T) {
	m := NewManual(testEpoch)
	if m.Waiters() != 0 {
		t.Fatalf("Waiters = %d on a fresh clock, want 0", m.Waiters())
	}

	m.After(time.Minute)
	m.After(time.Hour)
	if m.Waiters() != 2 {
		t.Fatalf("Waiters = %d, want 2", m.Waiters())
	}

	m.Advance(time.Minute)
	if m.Waiters() != 1 {
		t.Fatalf("Waiters = %d after firing one timer, want 1", m.Waiters())
	}
}

// TestManualNow verifies Now tracks Advance exactly.
func TestManualNow(t *testing.T) {
	m := NewManual(testEpoch)
	m.Advance(90 * time.Minute)
	if got := m.Now(); !got.Equal(testEpoch.Add(90 * time.Minute)) {
		t.Errorf("Now = %v, want %v", got, testEpoch.Add(90*time.Minute))
	}
}
