package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyStopsAfterSuccess(t *testing.T) {
	policy := NewRetryPolicy(3, time.Millisecond)
	calls := 0
	err := policy.Do(func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetryPolicyExhaustsAttempts(t *testing.T) {
	policy := NewRetryPolicy(2, time.Millisecond)
	calls := 0
	err := policy.Do(func() error {
		calls++
		return errors.New("still down")
	})
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls (1 + 2 retries), got %d", calls)
	}
}

func TestDoWithContextHonorsCancellation(t *testing.T) {
	policy := NewRetryPolicy(5, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := policy.DoWithContext(ctx, func() error {
		calls++
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls == 0 || calls > 2 {
		t.Fatalf("expected cancellation to cut retries short, got %d calls", calls)
	}
}

func TestCircuitBreakerOpensOnRateLimits(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	if !cb.Allow() {
		t.Fatalf("new breaker should allow")
	}
	cb.OnError(RateLimitError{Provider: "openai"})
	cb.OnError(errors.New("not a rate limit"))
	if !cb.Allow() {
		t.Fatalf("breaker should stay closed below threshold")
	}
	cb.OnError(RateLimitError{Provider: "openai"})
	if cb.Allow() {
		t.Fatalf("breaker should open at threshold")
	}
	failures, open := cb.Snapshot()
	if failures != 2 || !open {
		t.Fatalf("snapshot = (%d, %v), want (2, true)", failures, open)
	}
	cb.OnSuccess()
	if !cb.Allow() {
		t.Fatalf("breaker should close after success")
	}
}
