package brain

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sproutlab/bud/pkg/metrics"
	"github.com/sproutlab/bud/pkg/resilience"
)

// BreakerAdapter wraps an Adapter with rate-limit circuit breaking. While the
// breaker is open every Generate fails fast with a RateLimitError, which the
// service turns into the usual apology reply instead of hammering the API.
type BreakerAdapter struct {
	inner   Adapter
	breaker *resilience.CircuitBreaker
	log     *slog.Logger

	mu   sync.Mutex
	obs  metrics.Observer
	open bool
}

var _ Adapter = (*BreakerAdapter)(nil)

func NewBreakerAdapter(inner Adapter, breaker *resilience.CircuitBreaker, log *slog.Logger) *BreakerAdapter {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(3, 30*time.Second)
	}
	if log == nil {
		log = slog.Default()
	}
	return &BreakerAdapter{inner: inner, breaker: breaker, log: log}
}

func (a *BreakerAdapter) Name() string { return a.inner.Name() }

// SetObserver allows metrics emission for breaker events.
func (a *BreakerAdapter) SetObserver(obs metrics.Observer) {
	a.mu.Lock()
	a.obs = obs
	a.mu.Unlock()
}

func (a *BreakerAdapter) Generate(ctx context.Context, messages []Message) (string, error) {
	if !a.breaker.Allow() {
		a.setOpen(true)
		a.record(metrics.EventBreakerDenied)
		return "", resilience.RateLimitError{Provider: a.Name(), Message: "degraded"}
	}
	a.setOpen(false)
	text, err := a.inner.Generate(ctx, messages)
	if err != nil {
		if resilience.IsRateLimit(err) {
			a.record(metrics.EventRateLimit)
		}
		a.breaker.OnError(err)
		return "", err
	}
	a.breaker.OnSuccess()
	return text, nil
}

func (a *BreakerAdapter) record(name string) {
	a.mu.Lock()
	obs := a.obs
	a.mu.Unlock()
	if obs == nil {
		return
	}
	obs.RecordEvent(metrics.MetricsEvent{
		Name: name,
		Time: time.Now(),
		Tags: map[string]string{"provider": a.inner.Name(), "component": "brain"},
	})
}

func (a *BreakerAdapter) setOpen(open bool) {
	a.mu.Lock()
	changed := a.open != open
	a.open = open
	a.mu.Unlock()
	if !changed {
		return
	}
	if open {
		a.log.Warn("brain_breaker_open", "provider", a.inner.Name())
		a.record(metrics.EventBreakerOpen)
		return
	}
	a.log.Info("brain_breaker_closed", "provider", a.inner.Name())
	a.record(metrics.EventBreakerClose)
}
