package capture

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sproutlab/bud/pkg/audio"
	"github.com/sproutlab/bud/pkg/bus"
	"github.com/sproutlab/bud/pkg/errorsx"
	"github.com/sproutlab/bud/pkg/logging"
	"github.com/sproutlab/bud/pkg/metrics"
	"github.com/sproutlab/bud/pkg/resilience"
	"github.com/sproutlab/bud/pkg/session"
	"github.com/sproutlab/bud/pkg/transcribe"
	"github.com/sproutlab/bud/pkg/vad"
	"github.com/sproutlab/bud/pkg/wake"
)

type FrontEndConfig struct {
	SampleRate       int
	TargetRate       int
	WakeThreshold    float64
	MinVolume        float64
	RateLimit        time.Duration
	Cooldown         time.Duration
	SilenceThreshold float64
	SilenceDuration  time.Duration
	MaxDuration      time.Duration
	Denylist         []string
}

func (c FrontEndConfig) withDefaults() FrontEndConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.TargetRate <= 0 {
		c.TargetRate = 16000
	}
	if c.WakeThreshold <= 0 {
		c.WakeThreshold = 0.6
	}
	if c.MinVolume <= 0 {
		c.MinVolume = 350
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 2 * time.Second
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 3 * time.Second
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = 300
	}
	if c.SilenceDuration <= 0 {
		c.SilenceDuration = 2500 * time.Millisecond
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 30 * time.Second
	}
	return c
}

// FrontEnd owns the microphone stream and routes every frame to exactly one
// consumer based on the last phase seen on the bus. In IDLE, frames feed the
// wake scorer; in ACTIVE, the recorder; in THINKING and SPEAKING the mic is
// ignored entirely so the robot can never hear itself. The frame loop never
// blocks on the network: detections and transcripts are published
// fire-and-forget, and transcription runs on its own goroutine.
type FrontEnd struct {
	cfg    FrontEndConfig
	device Device
	scorer wake.Scorer
	stt    transcribe.Transcriber
	b      bus.Bus
	log    *slog.Logger
	obs    metrics.Observer

	factor int
	gate   vad.Gate
	retry  resilience.RetryPolicy

	mu      sync.Mutex
	phase   session.State
	rec     *Recorder
	recDone bool

	// wake gating, touched only by the frame loop
	lastDetection time.Time
	cooldownUntil time.Time
	cooldownArmed bool

	done chan struct{}
	wg   sync.WaitGroup
}

func NewFrontEnd(cfg FrontEndConfig, device Device, scorer wake.Scorer, stt transcribe.Transcriber, b bus.Bus, log *slog.Logger, obs metrics.Observer) (*FrontEnd, error) {
	cfg = cfg.withDefaults()
	factor, err := audio.DecimationFactor(cfg.SampleRate, cfg.TargetRate)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	return &FrontEnd{
		cfg:    cfg,
		device: device,
		scorer: scorer,
		stt:    stt,
		b:      b,
		log:    logging.NewComponentLogger(log, "frontend"),
		obs:    obs,
		factor: factor,
		gate:   vad.NewGate(cfg.SilenceThreshold),
		retry:  resilience.NewRetryPolicy(3, 500*time.Millisecond),
		phase:  session.StateIdle,
		done:   make(chan struct{}),
	}, nil
}

func (f *FrontEnd) Start(ctx context.Context) error {
	if err := f.b.Subscribe(bus.TopicSessionState, f.onPhase); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonBusSubscribe)
	}
	if err := f.device.Start(ctx); err != nil {
		return err
	}
	f.wg.Add(1)
	go f.loop(ctx)
	f.log.Info("front_end_started",
		"device", f.device.Name(),
		"sample_rate", f.cfg.SampleRate,
		"target_rate", f.cfg.TargetRate,
		"decimation", f.factor)
	return nil
}

// Stop halts frame processing before tearing down the device so no frame is
// handled after teardown begins.
func (f *FrontEnd) Stop() error {
	close(f.done)
	err := f.device.Stop()
	f.wg.Wait()
	return err
}

func (f *FrontEnd) loop(ctx context.Context) {
	defer f.wg.Done()
	for {
		select {
		case <-f.done:
			return
		case <-ctx.Done():
			return
		case err := <-f.device.Errors():
			if fatal := f.onDeviceError(ctx, err); fatal {
				return
			}
		case frame, ok := <-f.device.Frames():
			if !ok {
				return
			}
			f.onFrame(ctx, frame)
		}
	}
}

// onDeviceError restarts the stream with backoff. Exhausting the retries is
// fatal for the audio loop: the session is forced back to IDLE over the bus
// and the loop halts.
func (f *FrontEnd) onDeviceError(ctx context.Context, err error) bool {
	f.log.Error("device_error", "error", err)
	f.obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventDeviceError, Time: time.Now()})

	rerr := f.retry.DoWithContext(ctx, func() error {
		return f.device.Start(ctx)
	})
	if rerr == nil {
		f.log.Info("device_recovered")
		return false
	}

	f.log.Error("capture_failed", "error", rerr)
	if perr := f.b.Publish(bus.TopicSessionCommand, bus.CommandReset, false); perr != nil {
		f.log.Error("reset_publish_failed", "error", perr)
	}
	return true
}

func (f *FrontEnd) onFrame(ctx context.Context, frame audio.Frame) {
	f.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventFrameVolume,
		Time:  frame.Time,
		Value: frame.Volume,
	})

	f.mu.Lock()
	phase := f.phase
	if phase == session.StateActive && f.rec != nil {
		done, reason := f.rec.Add(frame)
		if !done {
			f.mu.Unlock()
			return
		}
		duration := f.rec.Duration()
		samples, speechSeen := f.rec.Take()
		f.rec = nil
		f.recDone = true
		f.mu.Unlock()

		f.log.Info("recording_stopped",
			"reason", reason.String(),
			"duration", duration.String(),
			"speech", speechSeen)
		f.obs.RecordEvent(metrics.MetricsEvent{
			Name:  metrics.EventRecordingStop,
			Time:  frame.Time,
			Value: duration.Seconds(),
			Tags:  map[string]string{"reason": reason.String()},
		})
		f.wg.Add(1)
		go f.finishRecording(ctx, samples, speechSeen)
		return
	}
	f.mu.Unlock()

	if phase != session.StateIdle {
		return
	}
	f.scoreFrame(ctx, frame)
}

// scoreFrame runs the wake path for one IDLE frame. Quiet frames skip
// scoring entirely, the cooldown window suppresses everything after a
// detection, and the rate limiter spaces detections apart even with
// cooldown disabled.
func (f *FrontEnd) scoreFrame(ctx context.Context, frame audio.Frame) {
	if frame.Volume < f.cfg.MinVolume {
		return
	}
	now := frame.Time
	if now.Before(f.cooldownUntil) {
		return
	}
	if f.cooldownArmed {
		f.scorer.Reset()
		f.cooldownArmed = false
	}

	score, err := f.scorer.Score(ctx, audio.Decimate(frame.Samples, f.factor))
	if err != nil {
		f.log.Warn("wake_score_failed", "error", err)
		return
	}
	f.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventWakeScore,
		Time:  now,
		Value: score,
	})
	if score < f.cfg.WakeThreshold {
		return
	}
	if !f.lastDetection.IsZero() && now.Sub(f.lastDetection) < f.cfg.RateLimit {
		f.log.Debug("detection_rate_limited", "score", score)
		return
	}

	// the phase may have moved while this frame was in flight; a detection
	// is only ever published from IDLE
	f.mu.Lock()
	idle := f.phase == session.StateIdle
	f.mu.Unlock()
	if !idle {
		return
	}

	f.lastDetection = now
	f.cooldownUntil = now.Add(f.cfg.Cooldown)
	f.cooldownArmed = true
	f.scorer.Reset()

	if err := f.b.Publish(bus.TopicWakeDetected, strconv.FormatFloat(score, 'f', -1, 64), false); err != nil {
		f.log.Error("wake_publish_failed", "error", err)
	}
	f.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventWakeDetection,
		Time:  now,
		Value: score,
	})
	f.log.Info("wake_detected", "score", score, "volume", frame.Volume)
}

// onPhase tracks the retained phase topic. Entering ACTIVE arms a recorder;
// every exit from ACTIVE discards whatever was buffered so a reset can never
// leave stale audio behind, and every entry into IDLE clears the wake window.
func (f *FrontEnd) onPhase(_ string, payload []byte) {
	phase, ok := session.ParseState(string(payload))
	if !ok {
		f.log.Warn("phase_payload_malformed", "payload", string(payload))
		return
	}

	f.mu.Lock()
	f.phase = phase

	if phase == session.StateActive {
		if f.rec != nil {
			f.mu.Unlock()
			f.log.Warn("recorder_already_active",
				"error", errorsx.Wrap(ErrRecorderActive, errorsx.ReasonRecorderActive))
			return
		}
		if f.recDone {
			// duplicate ACTIVE after the utterance already went out
			f.mu.Unlock()
			return
		}
		f.rec = NewRecorder(f.gate, f.cfg.SampleRate, f.cfg.SilenceDuration, f.cfg.MaxDuration)
		f.mu.Unlock()
		f.log.Info("recording_started",
			"silence", f.cfg.SilenceDuration.String(),
			"max", f.cfg.MaxDuration.String())
		f.obs.RecordEvent(metrics.MetricsEvent{
			Name: metrics.EventRecordingStart,
			Time: time.Now(),
		})
		return
	}

	var discarded int
	if f.rec != nil {
		discarded = f.rec.Len()
		f.rec = nil
	}
	f.recDone = false
	f.mu.Unlock()

	if discarded > 0 {
		f.log.Info("recording_discarded", "samples", discarded, "phase", phase.String())
	}
	if phase == session.StateIdle {
		f.scorer.Reset()
	}
}

// finishRecording runs off the frame loop: transcription is network I/O and
// must never hold up capture.
func (f *FrontEnd) finishRecording(ctx context.Context, samples []int16, speechSeen bool) {
	defer f.wg.Done()

	if !speechSeen {
		f.log.Info("no_speech_detected", "samples", len(samples))
		f.obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventNoSpeech, Time: time.Now()})
		return
	}

	pcm := audio.Decimate(samples, f.factor)
	var text string
	err := f.retry.DoWithContext(ctx, func() error {
		var terr error
		text, terr = f.stt.Transcribe(ctx, pcm, f.cfg.TargetRate)
		return terr
	})
	if err != nil {
		f.log.Error("transcription_failed", "error", errorsx.Wrap(err, errorsx.ReasonTranscribeStream))
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		f.log.Info("transcription_empty")
		f.obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventNoSpeech, Time: time.Now()})
		return
	}
	if f.isDenied(text) {
		f.log.Info("transcription_denied", "text", text)
		f.obs.RecordEvent(metrics.MetricsEvent{
			Name: metrics.EventTranscriptionDenied,
			Time: time.Now(),
			Tags: map[string]string{"text": text},
		})
		return
	}

	if err := f.b.Publish(bus.TopicTranscription, text, false); err != nil {
		f.log.Error("transcription_publish_failed", "error", err)
		return
	}
	f.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventTranscription,
		Time:  time.Now(),
		Value: float64(len(text)),
	})
	f.log.Info("transcription_published", "chars", len(text))
}

// isDenied rejects known junk transcripts by exact match. Whisper-style
// models hallucinate fillers like "Thank you." on borderline audio.
func (f *FrontEnd) isDenied(text string) bool {
	for _, entry := range f.cfg.Denylist {
		if text == entry {
			return true
		}
	}
	return false
}
