package session

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sproutlab/bud/pkg/bus"
	"github.com/sproutlab/bud/pkg/errorsx"
	"github.com/sproutlab/bud/pkg/logging"
	"github.com/sproutlab/bud/pkg/metrics"
)

type Config struct {
	IdleTimeout    time.Duration
	GoodbyePhrases []string
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if len(c.GoodbyePhrases) == 0 {
		c.GoodbyePhrases = []string{"goodbye", "bye bye", "see you later", "that's all"}
	}
	return c
}

// Manager is the session state machine. It owns the current phase, reacts to
// bus events, and publishes every change retained so any process can join
// late and still see the truth. Events arriving in the wrong phase are stale
// by definition and dropped with a log line, never an error.
type Manager struct {
	cfg  Config
	b    bus.Bus
	log  *slog.Logger
	obs  metrics.Observer
	tick time.Duration

	mu        sync.Mutex
	state     State
	sess      *Session
	listeners []StateListener

	done chan struct{}
	wg   sync.WaitGroup
}

func NewManager(cfg Config, b bus.Bus, log *slog.Logger, obs metrics.Observer) *Manager {
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	return &Manager{
		cfg:   cfg.withDefaults(),
		b:     b,
		log:   logging.NewComponentLogger(log, "session"),
		obs:   obs,
		tick:  time.Second,
		state: StateIdle,
		done:  make(chan struct{}),
	}
}

// Start subscribes the manager to its topics, publishes the initial retained
// phase, and launches the once-per-second idle checker.
func (m *Manager) Start(ctx context.Context) error {
	subs := map[string]bus.Handler{
		bus.TopicWakeDetected:   m.onWakeDetected,
		bus.TopicTranscription:  m.onTranscription,
		bus.TopicLLMResponse:    m.onLLMResponse,
		bus.TopicSpeaking:       m.onSpeaking,
		bus.TopicSessionCommand: m.onCommand,
	}
	for topic, h := range subs {
		if err := m.b.Subscribe(topic, h); err != nil {
			return errorsx.Wrap(err, errorsx.ReasonBusSubscribe)
		}
	}
	m.publishPhase(StateIdle)

	m.wg.Add(1)
	go m.idleWatch()

	m.log.Info("session_manager_started", "idle_timeout", m.cfg.IdleTimeout.String())
	return nil
}

func (m *Manager) Stop() error {
	close(m.done)
	m.wg.Wait()
	return nil
}

// State returns the current phase.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns a snapshot of the live session, if one exists.
func (m *Manager) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return Session{}, false
	}
	return *m.sess, true
}

// AddListener registers an in-process observer of phase changes.
func (m *Manager) AddListener(l StateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// ForceIdle drives the machine to IDLE from any phase, used by the reset
// command and by fatal capture errors. In IDLE it only re-publishes the
// retained phase, keeping the operation idempotent.
func (m *Manager) ForceIdle(reason string) {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		m.publishPhase(StateIdle)
		return
	}
	change, err := m.setStateLocked(StateIdle, reason, time.Now())
	m.mu.Unlock()
	if err != nil {
		m.log.Error("force_idle_failed", "error", err)
		return
	}
	m.log.Info("session_reset", "reason", reason)
	m.afterTransition(change)
}

func (m *Manager) onWakeDetected(_ string, payload []byte) {
	confidence, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		m.log.Warn("wake_payload_malformed", "payload", string(payload))
		return
	}

	m.mu.Lock()
	if m.state != StateIdle {
		state := m.state
		m.mu.Unlock()
		m.log.Debug("wake_ignored", "state", state.String())
		return
	}
	now := time.Now()
	m.sess = newSession(now, confidence)
	sessID, traceID := m.sess.ID, m.sess.TraceID
	change, terr := m.setStateLocked(StateActive, "wake_detected", now)
	m.mu.Unlock()
	if terr != nil {
		m.log.Error("wake_transition_failed", "error", terr)
		return
	}

	m.log.Info("session_started",
		"session_id", sessID,
		"trace_id", traceID,
		"confidence", confidence)
	m.afterTransition(change)
}

func (m *Manager) onTranscription(_ string, payload []byte) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		m.log.Warn("transcription_empty")
		return
	}

	m.mu.Lock()
	if m.state != StateActive {
		state := m.state
		m.mu.Unlock()
		m.log.Debug("transcription_ignored", "state", state.String())
		return
	}
	now := time.Now()

	if m.isGoodbye(text) {
		change, terr := m.setStateLocked(StateIdle, "goodbye", now)
		m.mu.Unlock()
		if terr != nil {
			m.log.Error("goodbye_transition_failed", "error", terr)
			return
		}
		m.log.Info("goodbye_received", "text", text)
		m.afterTransition(change)
		return
	}

	thinking, terr := m.setStateLocked(StateThinking, "transcription_received", now)
	if terr != nil {
		m.mu.Unlock()
		m.log.Error("thinking_transition_failed", "error", terr)
		return
	}
	// SPEAKING is marked before the reply exists: the mic must not re-arm
	// while the answer is being computed and spoken.
	speaking, terr := m.setStateLocked(StateSpeaking, "llm_request_dispatched", now)
	m.mu.Unlock()
	if terr != nil {
		m.log.Error("speaking_transition_failed", "error", terr)
		return
	}

	m.afterTransition(thinking)
	if err := m.b.Publish(bus.TopicLLMRequest, text, false); err != nil {
		m.log.Error("llm_request_publish_failed", "error", err)
	}
	m.afterTransition(speaking)
	m.log.Info("llm_request_forwarded", "chars", len(text))
}

func (m *Manager) onLLMResponse(_ string, payload []byte) {
	m.mu.Lock()
	state := m.state
	if m.sess != nil {
		m.sess.LastActivity = time.Now()
	}
	m.mu.Unlock()

	if state != StateSpeaking {
		m.log.Debug("llm_response_ignored", "state", state.String())
		return
	}
	m.log.Info("llm_response_received", "chars", len(payload))
}

func (m *Manager) onSpeaking(_ string, payload []byte) {
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "true":
		m.mu.Lock()
		if m.sess != nil {
			m.sess.LastActivity = time.Now()
		}
		m.mu.Unlock()
		m.log.Debug("speaking_started")
		return
	case "false":
	default:
		m.log.Warn("speaking_payload_malformed", "payload", string(payload))
		return
	}

	m.mu.Lock()
	if m.state != StateSpeaking {
		state := m.state
		m.mu.Unlock()
		m.log.Debug("speaking_clear_ignored", "state", state.String())
		return
	}
	change, terr := m.setStateLocked(StateIdle, "speech_complete", time.Now())
	m.mu.Unlock()
	if terr != nil {
		m.log.Error("speech_complete_transition_failed", "error", terr)
		return
	}
	m.log.Info("session_complete")
	m.afterTransition(change)
}

func (m *Manager) onCommand(_ string, payload []byte) {
	cmd := strings.ToLower(strings.TrimSpace(string(payload)))
	switch cmd {
	case bus.CommandReset, bus.CommandCancel:
		m.ForceIdle("command_" + cmd)
	default:
		m.log.Warn("command_unknown", "command", cmd)
	}
}

// setStateLocked mutates the phase under the caller's lock, double-checking
// the transition table. Every entry into IDLE destroys the session.
func (m *Manager) setStateLocked(to State, reason string, now time.Time) (StateChange, error) {
	from := m.state
	if !transitionValid(from, to) {
		return StateChange{}, errorsx.Wrap(
			&InvalidTransitionError{From: from, To: to}, errorsx.ReasonSessionTransition)
	}
	m.state = to
	if to == StateIdle {
		m.sess = nil
	} else if m.sess != nil {
		m.sess.LastActivity = now
	}
	return StateChange{FromState: from, ToState: to, Timestamp: now, Reason: reason}, nil
}

// afterTransition runs outside the lock: retained publishes, metrics, and
// listener notification.
func (m *Manager) afterTransition(change StateChange) {
	m.publishPhase(change.ToState)
	m.obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventStateChange,
		Time: change.Timestamp,
		Tags: map[string]string{
			"from":   change.FromState.String(),
			"to":     change.ToState.String(),
			"reason": change.Reason,
		},
	})

	m.mu.Lock()
	listeners := make([]StateListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, l := range listeners {
		l.OnStateChange(change)
	}
}

func (m *Manager) publishPhase(state State) {
	if err := m.b.Publish(bus.TopicSessionState, state.String(), true); err != nil {
		m.log.Error("phase_publish_failed", "error", err)
	}
	if err := m.b.Publish(bus.TopicEmotion, state.Emotion(), true); err != nil {
		m.log.Error("emotion_publish_failed", "error", err)
	}
}

func (m *Manager) isGoodbye(text string) bool {
	lowered := strings.ToLower(text)
	for _, phrase := range m.cfg.GoodbyePhrases {
		if strings.Contains(lowered, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

func (m *Manager) idleWatch() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.checkIdleTimeout()
		}
	}
}

func (m *Manager) checkIdleTimeout() {
	m.mu.Lock()
	if m.state != StateActive || m.sess == nil {
		m.mu.Unlock()
		return
	}
	idle := time.Since(m.sess.LastActivity)
	if idle < m.cfg.IdleTimeout {
		m.mu.Unlock()
		return
	}
	change, terr := m.setStateLocked(StateIdle, "idle_timeout", time.Now())
	m.mu.Unlock()
	if terr != nil {
		m.log.Error("idle_timeout_transition_failed", "error", terr)
		return
	}

	m.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventIdleTimeout,
		Time:  change.Timestamp,
		Value: idle.Seconds(),
	})
	m.log.Info("idle_timeout", "idle", idle.String())
	m.afterTransition(change)
}
