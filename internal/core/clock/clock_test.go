package clock

import (
	"context"
	"testing"
	"time"
)

func TestSimulatedClockStartsAtOrigin(t *testing.T) {
	c := NewSimulatedClock(1_000)
	if c.Now() != 1_000 {
		t.Fatalf("Now = %d, want 1000", c.Now())
	}
}

func TestSimulatedClockAdvanceForwardOnly(t *testing.T) {
	c := NewSimulatedClock(1_000)
	c.Advance(5_000)
	if c.Now() != 5_000 {
		t.Fatalf("Now = %d, want 5000", c.Now())
	}
	c.Advance(3_000)
	if c.Now() != 5_000 {
		t.Fatalf("Now went backwards to %d", c.Now())
	}
}

func TestSimulatedWaitUntilJumpsAndReturns(t *testing.T) {
	c := NewSimulatedClock(1_000)
	done := make(chan error, 1)
	go func() { done <- c.WaitUntil(context.Background(), 60_000) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitUntil returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("simulated WaitUntil blocked")
	}
	if c.Now() != 60_000 {
		t.Fatalf("Now = %d, want 60000 after WaitUntil", c.Now())
	}
}

func TestSimulatedWaitUntilPastTargetKeepsNow(t *testing.T) {
	c := NewSimulatedClock(90_000)
	if err := c.WaitUntil(context.Background(), 60_000); err != nil {
		t.Fatalf("WaitUntil returned %v", err)
	}
	if c.Now() != 90_000 {
		t.Fatalf("Now = %d, want 90000", c.Now())
	}
}

func TestSystemClockWaitUntilHonorsCancel(t *testing.T) {
	c := NewSystemClock()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.WaitUntil(ctx, c.Now()+60_000) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("WaitUntil = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("canceled WaitUntil did not unblock")
	}
}

func TestSystemClockWaitUntilPastTargetReturnsImmediately(t *testing.T) {
	c := NewSystemClock()
	start := time.Now()
	if err := c.WaitUntil(context.Background(), c.Now()-1_000); err != nil {
		t.Fatalf("WaitUntil returned %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("WaitUntil on a past target should not sleep")
	}
}
