package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     8 * time.Millisecond,
		Multiplier:     2,
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("503"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustedReturnsLastError(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("attempt failed"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("expected exactly MaxAttempts calls, got %d", calls)
	}
	var te *TransientError
	if !errors.As(err, &te) {
		t.Errorf("expected last TransientError, got %T", err)
	}
}

func TestDo_PermanentErrorStops(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(5), func(_ context.Context) error {
		calls++
		return errors.New("404 not found")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call for permanent error, got %d", calls)
	}
}

func TestDo_CircuitOpenNotRetried(t *testing.T) {
	var calls int
	_ = Do(context.Background(), fastRetry(5), func(_ context.Context) error {
		calls++
		return ErrCircuitOpen
	})
	if calls != 1 {
		t.Errorf("expected circuit-open to stop retries, got %d calls", calls)
	}
}

func TestDo_ExponentialBackoffCapped(t *testing.T) {
	var waits []time.Duration
	cfg := fastRetry(6)
	cfg.OnRetry = func(_ int, _ error, wait time.Duration) {
		waits = append(waits, wait)
	}
	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		return NewTransientError(errors.New("x"), 502)
	})

	want := []time.Duration{1, 2, 4, 8, 8}
	if len(waits) != len(want) {
		t.Fatalf("expected %d waits, got %v", len(want), waits)
	}
	for i := range want {
		if waits[i] != want[i]*time.Millisecond {
			t.Errorf("wait %d: expected %s, got %s", i, want[i]*time.Millisecond, waits[i])
		}
	}
}

func TestDo_RetryAfterUsedAndCapped(t *testing.T) {
	var waits []time.Duration
	cfg := fastRetry(4)
	cfg.OnRetry = func(_ int, _ error, wait time.Duration) {
		waits = append(waits, wait)
	}

	var calls int
	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		switch calls {
		case 1:
			return &RateLimitError{Message: "slow down", RetryAfter: 3 * time.Millisecond}
		case 2:
			return &RateLimitError{Message: "slow down", RetryAfter: time.Hour}
		default:
			return NewTransientError(errors.New("x"), 500)
		}
	})

	if len(waits) != 3 {
		t.Fatalf("expected 3 waits, got %v", waits)
	}
	if waits[0] != 3*time.Millisecond {
		t.Errorf("expected server wait 3ms, got %s", waits[0])
	}
	if waits[1] != 8*time.Millisecond {
		t.Errorf("expected server wait capped at 8ms, got %s", waits[1])
	}
	// Backoff kept advancing underneath: 1ms, 2ms, then 4ms.
	if waits[2] != 4*time.Millisecond {
		t.Errorf("expected computed backoff 4ms, got %s", waits[2])
	}
}

func TestDo_IgnoreRetryAfter(t *testing.T) {
	var waits []time.Duration
	cfg := fastRetry(2)
	cfg.IgnoreRetryAfter = true
	cfg.OnRetry = func(_ int, _ error, wait time.Duration) {
		waits = append(waits, wait)
	}
	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		return &RateLimitError{RetryAfter: 5 * time.Millisecond}
	})
	if len(waits) != 1 || waits[0] != time.Millisecond {
		t.Errorf("expected computed 1ms wait, got %v", waits)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}

	var calls int
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, func(_ context.Context) error {
			calls++
			return NewTransientError(errors.New("x"), 503)
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected error after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("retry did not stop on cancel")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	var calls int
	v, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &RateLimitError{Message: "429"}
		}
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("expected ok, got %q %v", v, err)
	}
}

func TestDoVal_CustomShouldRetry(t *testing.T) {
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(error) bool { return true }

	var calls int
	_, err := DoVal(context.Background(), cfg, func(_ context.Context) (int, error) {
		calls++
		return 0, errors.New("anything")
	})
	if err == nil || calls != 3 {
		t.Errorf("expected 3 calls and an error, got %d %v", calls, err)
	}
}

func TestFromRetryConfig(t *testing.T) {
	cfg := FromRetryConfig(5, 200, 1000, 3)
	if cfg.MaxAttempts != 5 || cfg.InitialBackoff != 200*time.Millisecond ||
		cfg.MaxBackoff != time.Second || cfg.Multiplier != 3 {
		t.Errorf("unexpected config: %+v", cfg)
	}

	def := FromRetryConfig(0, 0, 0, 0)
	if def.MaxAttempts != 3 || def.InitialBackoff != time.Second {
		t.Errorf("expected defaults, got %+v", def)
	}
}

func TestFromCircuitConfig(t *testing.T) {
	cfg := FromCircuitConfig(7, 10, 3)
	if cfg.FailureThreshold != 7 || cfg.RecoveryTimeout != 10*time.Second || cfg.RateLimitWeight != 3 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	def := FromCircuitConfig(0, 0, 0)
	if def.FailureThreshold != 5 || def.RecoveryTimeout != time.Minute || def.RateLimitWeight != 2 {
		t.Errorf("expected defaults, got %+v", def)
	}
}
