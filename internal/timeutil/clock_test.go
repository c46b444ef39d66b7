package timeutil

import (
	"testing"
	"time"
)

func TestRealClockNow(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	got := c.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", got, before, after)
	}
}

func TestMockClockSetAndAdvance(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)

	if got := c.Now(); !got.Equal(base) {
		t.Errorf("Now() = %v, expected %v", got, base)
	}

	c.Advance(5 * time.Second)
	if got := c.Now(); !got.Equal(base.Add(5 * time.Second)) {
		t.Errorf("Now() after Advance = %v, expected %v", got, base.Add(5*time.Second))
	}

	later := base.Add(time.Hour)
	c.Set(later)
	if got := c.Now(); !got.Equal(later) {
		t.Errorf("Now() after Set = %v, expected %v", got, later)
	}
}

func TestMockClockSince(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)
	c.Advance(250 * time.Millisecond)

	if got := c.Since(base); got != 250*time.Millisecond {
		t.Errorf("Since = %v, expected 250ms", got)
	}
}

func TestMockClockSleepRecords(t *testing.T) {
	c := NewMockClock(time.Now())

	done := make(chan struct{})
	go func() {
		c.Sleep(time.Hour) // returns immediately
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("mock Sleep blocked")
	}

	sleeps := c.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != time.Hour {
		t.Errorf("Sleeps() = %v, expected [1h]", sleeps)
	}
}

func TestMockClockAfter(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)

	ch := c.After(100 * time.Millisecond)

	select {
	case <-ch:
		t.Fatal("After fired before the deadline")
	default:
	}

	c.Advance(50 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("After fired halfway to the deadline")
	default:
	}

	c.Advance(50 * time.Millisecond)
	select {
	case got := <-ch:
		if !got.Equal(base.Add(100 * time.Millisecond)) {
			t.Errorf("After delivered %v, expected %v", got, base.Add(100*time.Millisecond))
		}
	case <-time.After(time.Second):
		t.Fatal("After never fired")
	}
}

func TestMockClockAfterFiresOnce(t *testing.T) {
	c := NewMockClock(time.Now())
	ch := c.After(time.Millisecond)

	c.Advance(time.Second)
	c.Advance(time.Second)

	<-ch
	select {
	case <-ch:
		t.Fatal("After fired twice")
	default:
	}
}
