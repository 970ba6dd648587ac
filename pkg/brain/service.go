package brain

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sproutlab/bud/pkg/bus"
	"github.com/sproutlab/bud/pkg/errorsx"
	"github.com/sproutlab/bud/pkg/logging"
	"github.com/sproutlab/bud/pkg/metrics"
	"github.com/sproutlab/bud/pkg/session"
)

// Replies used when the model cannot produce an answer. Failures surface to
// the user as ordinary speech, never as a pipeline fault.
const (
	apologyReply = "Sorry, I had trouble thinking of an answer. Can you try asking me again?"
	emptyReply   = "I'm not sure how to answer that. Can you ask in a different way?"
)

type ServiceConfig struct {
	SystemPrompt    string
	RecentExchanges int
	MaxExchanges    int
	Timeout         time.Duration
	QueueSize       int
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.RecentExchanges <= 0 {
		c.RecentExchanges = 6
	}
	if c.MaxExchanges <= 0 {
		c.MaxExchanges = 20
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 8
	}
	return c
}

// Service answers questions from the llm/request topic. Questions are worked
// one at a time on a single goroutine so the conversation history stays in
// order; the bus handler itself never blocks on the model. History is cleared
// whenever the session returns to idle.
type Service struct {
	cfg     ServiceConfig
	adapter Adapter
	b       bus.Bus
	log     *slog.Logger
	obs     metrics.Observer
	memory  *Memory

	requests chan string
	done     chan struct{}
	wg       sync.WaitGroup
}

func NewService(cfg ServiceConfig, adapter Adapter, b bus.Bus, log *slog.Logger, obs metrics.Observer) *Service {
	cfg = cfg.withDefaults()
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	return &Service{
		cfg:      cfg,
		adapter:  adapter,
		b:        b,
		log:      logging.NewComponentLogger(log, "brain"),
		obs:      obs,
		memory:   NewMemory(cfg.RecentExchanges, cfg.MaxExchanges),
		requests: make(chan string, cfg.QueueSize),
		done:     make(chan struct{}),
	}
}

func (s *Service) Start(ctx context.Context) error {
	if err := s.b.Subscribe(bus.TopicLLMRequest, s.onRequest); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonBusSubscribe)
	}
	if err := s.b.Subscribe(bus.TopicSessionState, s.onPhase); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonBusSubscribe)
	}
	s.wg.Add(1)
	go s.worker(ctx)
	s.log.Info("brain_started",
		"provider", s.adapter.Name(),
		"recent_exchanges", s.cfg.RecentExchanges,
		"max_exchanges", s.cfg.MaxExchanges)
	return nil
}

func (s *Service) Stop() error {
	close(s.done)
	s.wg.Wait()
	return nil
}

func (s *Service) onRequest(_ string, payload []byte) {
	question := strings.TrimSpace(string(payload))
	if question == "" {
		s.log.Warn("request_empty")
		return
	}
	select {
	case s.requests <- question:
	default:
		s.log.Warn("request_dropped", "queued", len(s.requests))
	}
}

func (s *Service) onPhase(_ string, payload []byte) {
	phase, ok := session.ParseState(string(payload))
	if !ok || phase != session.StateIdle {
		return
	}
	if s.memory.Exchanges() > 0 || s.memory.Summary() != "" {
		s.memory.Clear()
		s.log.Info("history_cleared")
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case question := <-s.requests:
			reply := s.answer(ctx, question)
			if err := s.b.Publish(bus.TopicLLMResponse, reply, false); err != nil {
				s.log.Error("response_publish_failed", "error", err)
			}
		}
	}
}

// answer runs one question through the model. Every outcome, including model
// failure, yields a speakable reply.
func (s *Service) answer(ctx context.Context, question string) string {
	s.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventLLMRequest,
		Time:  time.Now(),
		Value: float64(len(question)),
	})

	gctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	text, err := s.adapter.Generate(gctx, s.memory.Compose(s.cfg.SystemPrompt, question))
	elapsed := time.Since(start)
	if err != nil {
		s.log.Error("generate_failed",
			"error", err,
			"reason", string(errorsx.Reason(err)),
			"elapsed", elapsed.String())
		return apologyReply
	}

	text = strings.TrimSpace(text)
	if text == "" {
		s.log.Warn("generate_empty", "elapsed", elapsed.String())
		return emptyReply
	}

	s.memory.Remember(question, text)
	s.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventLLMResponse,
		Time:  time.Now(),
		Value: elapsed.Seconds(),
		Tags:  map[string]string{"provider": s.adapter.Name()},
	})
	s.log.Info("answer_generated",
		"chars", len(text),
		"exchanges", s.memory.Exchanges(),
		"elapsed", elapsed.String())
	return text
}
