package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sproutlab/bud/pkg/bus"
	"github.com/sproutlab/bud/pkg/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *bus.Memory) {
	t.Helper()
	b := bus.NewMemory()
	m := NewManager(cfg, b, discardLogger(), metrics.NewMemoryObserver())
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop() })
	return m, b
}

// phaseRecorder captures every session/state payload it sees, including the
// retained replay at subscribe time.
type phaseRecorder struct {
	mu     sync.Mutex
	phases []string
}

func (r *phaseRecorder) handle(_ string, payload []byte) {
	r.mu.Lock()
	r.phases = append(r.phases, string(payload))
	r.mu.Unlock()
}

func (r *phaseRecorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.phases))
	copy(out, r.phases)
	return out
}

func TestWakeActivatesIdleSession(t *testing.T) {
	m, b := newTestManager(t, Config{})

	if err := b.Publish(bus.TopicWakeDetected, "0.85", false); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if got := m.State(); got != StateActive {
		t.Fatalf("state = %v, want active", got)
	}
	sess, ok := m.Current()
	if !ok {
		t.Fatal("expected a live session after wake")
	}
	if sess.WakeScore != 0.85 {
		t.Errorf("wake score = %v, want 0.85", sess.WakeScore)
	}
	if phase, _ := b.Retained(bus.TopicSessionState); phase != "active" {
		t.Errorf("retained phase = %q, want %q", phase, "active")
	}
	if emotion, _ := b.Retained(bus.TopicEmotion); emotion != EmotionListening {
		t.Errorf("retained emotion = %q, want %q", emotion, EmotionListening)
	}
}

func TestWakeIgnoredOutsideIdle(t *testing.T) {
	m, b := newTestManager(t, Config{})

	b.Publish(bus.TopicWakeDetected, "0.85", false)
	first, _ := m.Current()

	// A second wake while the session is live must not replace it.
	b.Publish(bus.TopicWakeDetected, "0.99", false)

	sess, ok := m.Current()
	if !ok {
		t.Fatal("expected the original session to survive")
	}
	if sess.TraceID != first.TraceID {
		t.Error("stale wake event replaced the live session")
	}
	if sess.WakeScore != 0.85 {
		t.Errorf("wake score = %v, want the original 0.85", sess.WakeScore)
	}
}

func TestMalformedWakePayloadDropped(t *testing.T) {
	m, b := newTestManager(t, Config{})

	b.Publish(bus.TopicWakeDetected, "not-a-number", false)

	if got := m.State(); got != StateIdle {
		t.Fatalf("state = %v, want idle after malformed wake payload", got)
	}
}

func TestTranscriptionDrivesThinkingThenSpeaking(t *testing.T) {
	m, b := newTestManager(t, Config{})

	var requests []string
	b.Subscribe(bus.TopicLLMRequest, func(_ string, payload []byte) {
		requests = append(requests, string(payload))
	})
	rec := &phaseRecorder{}
	b.Subscribe(bus.TopicSessionState, rec.handle)

	b.Publish(bus.TopicWakeDetected, "0.7", false)
	b.Publish(bus.TopicTranscription, "why is the sky blue", false)

	if got := m.State(); got != StateSpeaking {
		t.Fatalf("state = %v, want speaking", got)
	}
	if len(requests) != 1 {
		t.Fatalf("llm requests = %d, want exactly 1", len(requests))
	}
	if requests[0] != "why is the sky blue" {
		t.Errorf("llm request = %q, want the transcript verbatim", requests[0])
	}

	want := []string{"idle", "active", "thinking", "speaking"}
	got := rec.seen()
	if len(got) != len(want) {
		t.Fatalf("phases = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("phases = %v, want %v", got, want)
		}
	}
}

func TestTranscriptionIgnoredOutsideActive(t *testing.T) {
	m, b := newTestManager(t, Config{})

	requestCount := 0
	b.Subscribe(bus.TopicLLMRequest, func(string, []byte) { requestCount++ })

	b.Publish(bus.TopicTranscription, "hello there", false)

	if got := m.State(); got != StateIdle {
		t.Fatalf("state = %v, want idle", got)
	}
	if requestCount != 0 {
		t.Errorf("llm requests = %d, want 0 for a stale transcription", requestCount)
	}
}

func TestGoodbyeEndsSessionWithoutLLMRequest(t *testing.T) {
	m, b := newTestManager(t, Config{})

	requestCount := 0
	b.Subscribe(bus.TopicLLMRequest, func(string, []byte) { requestCount++ })

	b.Publish(bus.TopicWakeDetected, "0.8", false)
	b.Publish(bus.TopicTranscription, "Okay, goodbye Bud!", false)

	if got := m.State(); got != StateIdle {
		t.Fatalf("state = %v, want idle after goodbye", got)
	}
	if requestCount != 0 {
		t.Errorf("llm requests = %d, want 0 for a goodbye", requestCount)
	}
	if _, ok := m.Current(); ok {
		t.Error("expected the session to be destroyed on goodbye")
	}
	if emotion, _ := b.Retained(bus.TopicEmotion); emotion != EmotionSleeping {
		t.Errorf("retained emotion = %q, want %q", emotion, EmotionSleeping)
	}
}

func TestSpeakingFalseCompletesSession(t *testing.T) {
	m, b := newTestManager(t, Config{})

	b.Publish(bus.TopicWakeDetected, "0.8", false)
	b.Publish(bus.TopicTranscription, "tell me about whales", false)
	if got := m.State(); got != StateSpeaking {
		t.Fatalf("state = %v, want speaking", got)
	}

	b.Publish(bus.TopicSpeaking, "false", false)

	if got := m.State(); got != StateIdle {
		t.Fatalf("state = %v, want idle after playback finished", got)
	}
	if _, ok := m.Current(); ok {
		t.Error("expected the session to be destroyed when playback finished")
	}
}

func TestSpeakingFalseIgnoredOutsideSpeaking(t *testing.T) {
	m, b := newTestManager(t, Config{})

	b.Publish(bus.TopicWakeDetected, "0.8", false)
	b.Publish(bus.TopicSpeaking, "false", false)

	if got := m.State(); got != StateActive {
		t.Fatalf("state = %v, want active; stale speaking=false must be dropped", got)
	}
}

func TestMalformedSpeakingPayloadDropped(t *testing.T) {
	m, b := newTestManager(t, Config{})

	b.Publish(bus.TopicWakeDetected, "0.8", false)
	b.Publish(bus.TopicTranscription, "tell me a joke", false)
	b.Publish(bus.TopicSpeaking, "maybe", false)

	if got := m.State(); got != StateSpeaking {
		t.Fatalf("state = %v, want speaking after malformed payload", got)
	}
}

func TestResetCommandForcesIdle(t *testing.T) {
	m, b := newTestManager(t, Config{})

	b.Publish(bus.TopicWakeDetected, "0.8", false)
	b.Publish(bus.TopicTranscription, "what do ants eat", false)
	b.Publish(bus.TopicSessionCommand, "reset", false)

	if got := m.State(); got != StateIdle {
		t.Fatalf("state = %v, want idle after reset command", got)
	}
	if _, ok := m.Current(); ok {
		t.Error("expected reset to destroy the session")
	}
}

func TestResetCommandIdempotentInIdle(t *testing.T) {
	m, b := newTestManager(t, Config{})

	b.Publish(bus.TopicSessionCommand, "reset", false)

	if got := m.State(); got != StateIdle {
		t.Fatalf("state = %v, want idle", got)
	}
	if phase, ok := b.Retained(bus.TopicSessionState); !ok || phase != "idle" {
		t.Errorf("retained phase = %q (%v), want idle re-published", phase, ok)
	}
}

func TestUnknownCommandIgnored(t *testing.T) {
	m, b := newTestManager(t, Config{})

	b.Publish(bus.TopicWakeDetected, "0.8", false)
	b.Publish(bus.TopicSessionCommand, "self-destruct", false)

	if got := m.State(); got != StateActive {
		t.Fatalf("state = %v, want active; unknown commands must be ignored", got)
	}
}

func TestIdleTimeoutReturnsToIdle(t *testing.T) {
	b := bus.NewMemory()
	obs := metrics.NewMemoryObserver()
	m := NewManager(Config{IdleTimeout: 40 * time.Millisecond}, b, discardLogger(), obs)
	m.tick = 5 * time.Millisecond
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop() })

	b.Publish(bus.TopicWakeDetected, "0.8", false)
	if got := m.State(); got != StateActive {
		t.Fatalf("state = %v, want active", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		timedOut := false
		for _, ev := range obs.Snapshot() {
			if ev.Name == metrics.EventIdleTimeout {
				timedOut = true
			}
		}
		if timedOut && m.State() == StateIdle {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session never timed out back to idle")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestIdleTimeoutOnlyInActive(t *testing.T) {
	b := bus.NewMemory()
	m := NewManager(Config{IdleTimeout: 10 * time.Millisecond}, b, discardLogger(), nil)
	m.tick = 5 * time.Millisecond
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop() })

	b.Publish(bus.TopicWakeDetected, "0.8", false)
	b.Publish(bus.TopicTranscription, "how tall is a giraffe", false)
	if got := m.State(); got != StateSpeaking {
		t.Fatalf("state = %v, want speaking", got)
	}

	time.Sleep(60 * time.Millisecond)

	if got := m.State(); got != StateSpeaking {
		t.Fatalf("state = %v, want speaking; playback must never be timed out", got)
	}
}

type capturedChange struct {
	mu      sync.Mutex
	changes []StateChange
}

func (c *capturedChange) OnStateChange(change StateChange) {
	c.mu.Lock()
	c.changes = append(c.changes, change)
	c.mu.Unlock()
}

func TestListenersNotified(t *testing.T) {
	m, b := newTestManager(t, Config{})

	captured := &capturedChange{}
	m.AddListener(captured)

	b.Publish(bus.TopicWakeDetected, "0.9", false)

	captured.mu.Lock()
	defer captured.mu.Unlock()
	if len(captured.changes) != 1 {
		t.Fatalf("listener saw %d changes, want 1", len(captured.changes))
	}
	change := captured.changes[0]
	if change.FromState != StateIdle || change.ToState != StateActive {
		t.Errorf("change = %v->%v, want idle->active", change.FromState, change.ToState)
	}
	if change.Reason != "wake_detected" {
		t.Errorf("reason = %q, want wake_detected", change.Reason)
	}
}

func TestGoodbyeMatchingIsCaseInsensitiveSubstring(t *testing.T) {
	m := NewManager(Config{}, bus.NewMemory(), discardLogger(), nil)

	cases := []struct {
		text string
		want bool
	}{
		{"goodbye", true},
		{"GOODBYE BUD", true},
		{"okay bye bye now", true},
		{"see you later alligator", true},
		{"that's all for today", true},
		{"tell me about goodbyes in other languages", true},
		{"what is a goo cluster", false},
		{"hello", false},
	}
	for _, tc := range cases {
		if got := m.isGoodbye(tc.text); got != tc.want {
			t.Errorf("isGoodbye(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}
