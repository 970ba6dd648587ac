package voice

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sproutlab/bud/pkg/bus"
	"github.com/sproutlab/bud/pkg/errorsx"
	"github.com/sproutlab/bud/pkg/logging"
	"github.com/sproutlab/bud/pkg/metrics"
	"github.com/sproutlab/bud/pkg/redact"
)

const warmupText = "TTS module ready"

type ServiceConfig struct {
	// PauseAfter is a short silence appended after each clip so the reply
	// does not slam straight into the mic re-arming.
	PauseAfter time.Duration
	// Warmup synthesizes a throwaway clip at startup to surface a broken
	// voice install before the first real reply.
	Warmup bool
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.PauseAfter <= 0 {
		c.PauseAfter = 200 * time.Millisecond
	}
	return c
}

// Service speaks replies from the llm/response topic. The robot/speaking flag
// brackets every attempt: "true" before synthesis, "false" after playback,
// published even when synthesis or the speaker fails so the session machine
// always sees the speaking phase finish. Replies arriving mid-playback are
// skipped, not queued.
type Service struct {
	cfg    ServiceConfig
	synth  Synthesizer
	player Player
	b      bus.Bus
	log    *slog.Logger
	obs    metrics.Observer

	speaking atomic.Bool
	runCtx   context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewService(cfg ServiceConfig, synth Synthesizer, player Player, b bus.Bus, log *slog.Logger, obs metrics.Observer) *Service {
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	return &Service{
		cfg:    cfg.withDefaults(),
		synth:  synth,
		player: player,
		b:      b,
		log:    logging.NewComponentLogger(log, "voice"),
		obs:    obs,
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.runCtx, s.cancel = context.WithCancel(ctx)
	if s.cfg.Warmup {
		s.warmup(s.runCtx)
	}
	if err := s.b.Subscribe(bus.TopicLLMResponse, s.onResponse); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonBusSubscribe)
	}
	s.log.Info("voice_started", "synth", s.synth.Name(), "player", s.player.Name())
	return nil
}

func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

// Speaking reports whether a clip is currently being spoken.
func (s *Service) Speaking() bool { return s.speaking.Load() }

func (s *Service) onResponse(_ string, payload []byte) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return
	}
	if !s.speaking.CompareAndSwap(false, true) {
		s.log.Warn("speak_skipped", "reason", "already_speaking")
		return
	}
	s.wg.Add(1)
	go s.speak(text)
}

func (s *Service) speak(text string) {
	start := time.Now()
	defer func() {
		if err := s.b.Publish(bus.TopicSpeaking, "false", false); err != nil {
			s.log.Error("speaking_flag_publish_failed", "flag", "false", "error", err)
		}
		s.obs.RecordEvent(metrics.MetricsEvent{
			Name:  metrics.EventSpeakStop,
			Time:  time.Now(),
			Value: time.Since(start).Seconds(),
		})
		s.speaking.Store(false)
		s.log.Info("speaking_finished", "elapsed", time.Since(start).String())
		s.wg.Done()
	}()

	if err := s.b.Publish(bus.TopicSpeaking, "true", false); err != nil {
		s.log.Error("speaking_flag_publish_failed", "flag", "true", "error", err)
	}
	s.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventSpeakStart,
		Time:  start,
		Value: float64(len([]rune(text))),
	})
	s.log.Info("speaking", "text", redact.Text(preview(text)))

	pcm, rate, err := s.synth.Synthesize(s.runCtx, text)
	if err != nil {
		s.log.Error("synthesize_failed",
			"error", err,
			"reason", string(errorsx.Reason(err)))
		return
	}
	s.log.Debug("clip_ready", "bytes", len(pcm), "sample_rate", rate,
		"synth_elapsed", time.Since(start).String())

	if err := s.player.Play(s.runCtx, pcm, rate); err != nil {
		s.log.Error("playback_failed",
			"error", err,
			"reason", string(errorsx.Reason(err)))
		return
	}

	select {
	case <-s.runCtx.Done():
	case <-time.After(s.cfg.PauseAfter):
	}
}

func (s *Service) warmup(ctx context.Context) {
	pcm, _, err := s.synth.Synthesize(ctx, warmupText)
	if err != nil {
		s.log.Warn("voice_warmup_failed", "error", err)
		return
	}
	s.log.Info("voice_warmup_ok", "bytes", len(pcm))
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= 50 {
		return text
	}
	return string(runes[:50]) + "..."
}
