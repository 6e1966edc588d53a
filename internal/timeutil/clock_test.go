package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	if d := clock.Since(past); d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(500 * time.Millisecond):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_AdvanceAndSince(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	clock.Advance(1500 * time.Microsecond)
	if got := clock.Since(start); got != 1500*time.Microsecond {
		t.Errorf("Since() = %v, want 1.5ms", got)
	}

	later := start.Add(time.Hour)
	clock.Set(later)
	if !clock.Now().Equal(later) {
		t.Errorf("Now() = %v after Set, want %v", clock.Now(), later)
	}
}

func TestMockClock_TickerFiresPerPeriod(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	ticker := clock.NewTicker(time.Millisecond)

	select {
	case <-ticker.C():
		t.Fatal("ticker fired before the first period")
	default:
	}

	for i := 1; i <= 3; i++ {
		clock.Advance(time.Millisecond)
		select {
		case got := <-ticker.C():
			want := start.Add(time.Duration(i) * time.Millisecond)
			if !got.Equal(want) {
				t.Errorf("tick %d at %v, want %v", i, got, want)
			}
		default:
			t.Fatalf("tick %d missing", i)
		}
	}
}

func TestMockClock_TickerDropsWhenBehind(t *testing.T) {
	clock := NewMockClock(time.Now())
	ticker := clock.NewTicker(time.Millisecond)

	clock.Advance(time.Millisecond)
	clock.Advance(time.Millisecond)

	<-ticker.C()
	select {
	case <-ticker.C():
		t.Error("ticker should hold at most one pending tick")
	default:
	}
}

func TestMockClock_TickerStop(t *testing.T) {
	clock := NewMockClock(time.Now())
	ticker := clock.NewTicker(time.Second)
	ticker.Stop()
	clock.Advance(5 * time.Second)

	select {
	case <-ticker.C():
		t.Error("stopped ticker should not tick")
	default:
	}
}

func TestMockTicker_Trigger(t *testing.T) {
	clock := NewMockClock(time.Now())
	ticker := clock.NewTicker(time.Hour).(*MockTicker)
	now := clock.Now()
	ticker.Trigger(now)

	select {
	case received := <-ticker.C():
		if !received.Equal(now) {
			t.Errorf("got %v, want %v", received, now)
		}
	default:
		t.Error("Trigger did not send tick")
	}
}

func TestMockTicker_Reset(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	ticker := clock.NewTicker(time.Second)
	ticker.Stop()
	ticker.Reset(2 * time.Second)

	clock.Advance(time.Second)
	select {
	case <-ticker.C():
		t.Error("ticker fired before the reset period elapsed")
	default:
	}

	clock.Advance(time.Second)
	select {
	case <-ticker.C():
	default:
		t.Error("ticker did not fire after the reset period")
	}
}
