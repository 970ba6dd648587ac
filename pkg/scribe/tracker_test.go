package scribe

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sproutlab/bud/pkg/bus"
	"github.com/sproutlab/bud/pkg/redact"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memSink collects records in memory.
type memSink struct {
	mu   sync.Mutex
	recs []SessionRecord
}

func (s *memSink) Name() string { return "mem" }

func (s *memSink) StoreSession(_ context.Context, rec SessionRecord) error {
	s.mu.Lock()
	s.recs = append(s.recs, rec)
	s.mu.Unlock()
	return nil
}

func (s *memSink) stored() []SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionRecord, len(s.recs))
	copy(out, s.recs)
	return out
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func newTestTracker(t *testing.T) (*bus.Memory, *memSink) {
	t.Helper()
	b := bus.NewMemory()
	sink := &memSink{}
	tr := NewTracker(b, discardLogger(), sink)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = tr.Stop() })
	return b, sink
}

func TestConversationAssembled(t *testing.T) {
	b, sink := newTestTracker(t)

	b.Publish(bus.TopicWakeDetected, "0.82", false)
	b.Publish(bus.TopicSessionState, "active", false)
	b.Publish(bus.TopicTranscription, "what is two plus two", false)
	b.Publish(bus.TopicLLMResponse, "Four!", false)
	b.Publish(bus.TopicSpeaking, "true", false)
	b.Publish(bus.TopicSpeaking, "false", false)
	b.Publish(bus.TopicSessionState, "idle", false)

	waitUntil(t, "the record", func() bool { return len(sink.stored()) == 1 })
	rec := sink.stored()[0]
	if rec.ID == "" {
		t.Error("record has no session id")
	}
	if rec.WakeScore != 0.82 {
		t.Errorf("wake score = %v", rec.WakeScore)
	}
	if len(rec.Exchanges) != 1 {
		t.Fatalf("exchanges = %d, want 1", len(rec.Exchanges))
	}
	ex := rec.Exchanges[0]
	if ex.Question != "what is two plus two" || ex.Answer != "Four!" {
		t.Errorf("exchange = %+v", ex)
	}
	if ex.SpeechAt.IsZero() || ex.SpeechEnd.IsZero() {
		t.Error("speech timestamps missing")
	}
	if rec.EndedAt.Before(rec.WakeAt) {
		t.Error("ended before it started")
	}
}

func TestMultiTurnConversation(t *testing.T) {
	b, sink := newTestTracker(t)

	b.Publish(bus.TopicWakeDetected, "0.7", false)
	b.Publish(bus.TopicTranscription, "first question", false)
	b.Publish(bus.TopicLLMResponse, "first answer", false)
	b.Publish(bus.TopicTranscription, "second question", false)
	b.Publish(bus.TopicLLMResponse, "second answer", false)
	b.Publish(bus.TopicSessionState, "idle", false)

	waitUntil(t, "the record", func() bool { return len(sink.stored()) == 1 })
	rec := sink.stored()[0]
	if len(rec.Exchanges) != 2 {
		t.Fatalf("exchanges = %d, want 2", len(rec.Exchanges))
	}
	if rec.Exchanges[1].Question != "second question" {
		t.Errorf("second exchange = %+v", rec.Exchanges[1])
	}
}

func TestIdleWithoutConversationIgnored(t *testing.T) {
	b, sink := newTestTracker(t)

	b.Publish(bus.TopicSessionState, "idle", false)
	b.Publish(bus.TopicTranscription, "orphaned text", false)
	b.Publish(bus.TopicLLMResponse, "orphaned reply", false)
	b.Publish(bus.TopicSpeaking, "false", false)
	b.Publish(bus.TopicSessionState, "idle", false)

	time.Sleep(20 * time.Millisecond)
	if n := len(sink.stored()); n != 0 {
		t.Errorf("records = %d, nothing should be stored without a wake", n)
	}
}

func TestMalformedWakeScoreDropped(t *testing.T) {
	b, sink := newTestTracker(t)

	b.Publish(bus.TopicWakeDetected, "loud!", false)
	b.Publish(bus.TopicSessionState, "idle", false)

	time.Sleep(20 * time.Millisecond)
	if n := len(sink.stored()); n != 0 {
		t.Errorf("records = %d, malformed wake must not open a record", n)
	}
}

func TestQuestionsRedactedWhenEnabled(t *testing.T) {
	redact.SetEnabled(true)
	t.Cleanup(func() { redact.SetEnabled(false) })
	b, sink := newTestTracker(t)

	b.Publish(bus.TopicWakeDetected, "0.9", false)
	b.Publish(bus.TopicTranscription, "email me at kid@example.com please", false)
	b.Publish(bus.TopicLLMResponse, "I will!", false)
	b.Publish(bus.TopicSessionState, "idle", false)

	waitUntil(t, "the record", func() bool { return len(sink.stored()) == 1 })
	q := sink.stored()[0].Exchanges[0].Question
	if q != "email me at [REDACTED_EMAIL] please" {
		t.Errorf("question = %q, want the address redacted", q)
	}
}

func TestRecordsFlushedOnStop(t *testing.T) {
	b := bus.NewMemory()
	sink := &memSink{}
	tr := NewTracker(b, discardLogger(), sink)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	b.Publish(bus.TopicWakeDetected, "0.9", false)
	b.Publish(bus.TopicTranscription, "q", false)
	b.Publish(bus.TopicLLMResponse, "a", false)
	b.Publish(bus.TopicSessionState, "idle", false)

	if err := tr.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if n := len(sink.stored()); n != 1 {
		t.Errorf("records = %d after Stop, want the pending record flushed", n)
	}
}
