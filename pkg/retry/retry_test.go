package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		Multiplier:      2.0,
		JitterFactor:    0,
	}
}

func TestNewFillsDefaults(t *testing.T) {
	r := New(&Config{})

	if r.config.InitialInterval != time.Second {
		t.Errorf("Expected default initial interval 1s, got %v", r.config.InitialInterval)
	}
	if r.config.MaxInterval != 30*time.Second {
		t.Errorf("Expected default max interval 30s, got %v", r.config.MaxInterval)
	}
	if r.config.Multiplier != 2.0 {
		t.Errorf("Expected default multiplier 2.0, got %f", r.config.Multiplier)
	}

	if New(nil) == nil {
		t.Fatal("Expected a retrier from a nil config")
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	result := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	if result.Err != nil {
		t.Errorf("Expected success, got %v", result.Err)
	}
	if result.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", result.Attempts)
	}
}

func TestDoExhaustsRetryBudget(t *testing.T) {
	persistent := errors.New("persistent error")
	attempts := 0
	result := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		attempts++
		return persistent
	})

	if !errors.Is(result.Err, ErrMaxRetriesExceeded) {
		t.Errorf("Expected ErrMaxRetriesExceeded, got %v", result.Err)
	}
	if result.LastError == nil || result.LastError.Error() != persistent.Error() {
		t.Errorf("Expected last error %v, got %v", persistent, result.LastError)
	}
	// Initial attempt plus 3 retries
	if attempts != 4 {
		t.Errorf("Expected 4 attempts, got %d", attempts)
	}
}

func TestDoStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	result := Do(ctx, fastConfig(10), func(ctx context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("broker unavailable")
	})

	if !errors.Is(result.Err, ErrContextCanceled) {
		t.Errorf("Expected ErrContextCanceled, got %v", result.Err)
	}
	if result.Attempts < 2 {
		t.Errorf("Expected at least 2 attempts before cancellation, got %d", result.Attempts)
	}
}

func TestIntervalExponentialBackoff(t *testing.T) {
	r := New(&Config{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{5, 30 * time.Second}, // 32s capped
		{9, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := r.interval(tt.attempt); got != tt.want {
			t.Errorf("Expected interval %v for attempt %d, got %v", tt.want, tt.attempt, got)
		}
	}
}

func TestIntervalJitterBounds(t *testing.T) {
	r := New(&Config{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	})

	min := time.Duration(float64(time.Second) * 0.9)
	max := time.Duration(float64(time.Second) * 1.1)
	seen := map[time.Duration]bool{}
	for i := 0; i < 100; i++ {
		d := r.interval(0)
		seen[d] = true
		if d < min || d > max {
			t.Fatalf("Expected interval in [%v, %v], got %v", min, max, d)
		}
	}
	if len(seen) < 3 {
		t.Errorf("Expected jitter to spread intervals, got %d unique values", len(seen))
	}
}
