package timer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunWithTickerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int64

	done := make(chan error, 1)
	go func() {
		done <- RunWithTicker(ctx, &Interval{Duration: 10 * time.Millisecond}, func(ctx context.Context) error {
			calls.Add(1)
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("RunWithTicker did not return")
	}

	if calls.Load() < 2 {
		t.Fatalf("Expected several calls, got %d", calls.Load())
	}
}

func TestRunWithTickerImmediate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	called := make(chan struct{}, 1)
	go RunWithTicker(ctx, &Interval{Duration: time.Hour, Immediate: true}, func(ctx context.Context) error {
		select {
		case called <- struct{}{}:
		default:
		}
		return nil
	})

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("Immediate run did not happen")
	}
}

func TestRunWithTickerReturnsError(t *testing.T) {
	boom := errors.New("boom")
	err := RunWithTicker(context.Background(), &Interval{Duration: 5 * time.Millisecond, Jitter: time.Millisecond}, func(ctx context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
}

func TestIntervalValidate(t *testing.T) {
	tests := []struct {
		interval Interval
		valid    bool
	}{
		{Interval{Duration: time.Second}, true},
		{Interval{Duration: time.Second, Jitter: 100 * time.Millisecond}, true},
		{Interval{Duration: 0}, false},
		{Interval{Duration: time.Second, Jitter: time.Second}, false},
		{Interval{Duration: time.Second, Jitter: -time.Millisecond}, false},
	}
	for _, tc := range tests {
		err := tc.interval.Validate()
		if (err == nil) != tc.valid {
			t.Errorf("Validate(%+v) = %v, want valid=%v", tc.interval, err, tc.valid)
		}
	}
}

func TestTickerJitterBounds(t *testing.T) {
	j := tickerJitter{MaxJitter: 100 * time.Millisecond}
	for i := 0; i < 1000; i++ {
		d := j.Jitter(time.Second)
		if d < 900*time.Millisecond || d >= 1100*time.Millisecond {
			t.Fatalf("Jittered duration out of bounds: %v", d)
		}
	}
	if d := (tickerJitter{}).Jitter(time.Second); d != time.Second {
		t.Fatalf("Expected no jitter, got %v", d)
	}
}
