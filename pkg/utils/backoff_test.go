package utils

import (
	"testing"
	"time"
)

func TestConstantBackoff(t *testing.T) {
	cb := NewConstantBackoff(2 * time.Second)
	for attempt := 0; attempt < 4; attempt++ {
		if got := cb.NextDelay(attempt); got != 2*time.Second {
			t.Fatalf("attempt %d: expected 2s, got %v", attempt, got)
		}
	}
}

func TestExponentialBackoff(t *testing.T) {
	eb := NewExponentialBackoff(time.Second, 10*time.Second)

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second}, // capped
		{-1, time.Second},     // clamped to first attempt
	}
	for _, tc := range cases {
		if got := eb.NextDelay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}

func TestExponentialBackoffOverflowCaps(t *testing.T) {
	eb := NewExponentialBackoff(time.Second, time.Minute)
	if got := eb.NextDelay(63); got != time.Minute {
		t.Fatalf("expected overflow to cap at max, got %v", got)
	}
}
