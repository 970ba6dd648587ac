package scribe

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
	"github.com/sproutlab/bud/pkg/redact"
	"github.com/sproutlab/bud/pkg/session"
)

// Sink archives one finished conversation.
type Sink interface {
	Name() string
	StoreSession(ctx context.Context, rec SessionRecord) error
}

const storeTimeout = 5 * time.Second

// Tracker watches the whole bus and assembles a SessionRecord per
// conversation: wake starts one, transcriptions open exchanges, replies and
// the speaking flag fill them in, and the return to idle finalizes the record
// and hands it to every sink. Sinks run on their own goroutine so slow disks
// never stall bus dispatch.
type Tracker struct {
	b     bus.Bus
	log   *slog.Logger
	sinks []Sink

	mu      sync.Mutex
	current *SessionRecord

	records chan SessionRecord
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewTracker(b bus.Bus, log *slog.Logger, sinks ...Sink) *Tracker {
	return &Tracker{
		b:       b,
		log:     logging.NewComponentLogger(log, "scribe"),
		sinks:   sinks,
		records: make(chan SessionRecord, 16),
		done:    make(chan struct{}),
	}
}

func (t *Tracker) Start(ctx context.Context) error {
	subs := map[string]bus.Handler{
		bus.TopicWakeDetected:  t.onWake,
		bus.TopicSessionState:  t.onState,
		bus.TopicTranscription: t.onTranscription,
		bus.TopicLLMResponse:   t.onResponse,
		bus.TopicSpeaking:      t.onSpeaking,
	}
	for topic, handler := range subs {
		if err := t.b.Subscribe(topic, handler); err != nil {
			return errorsx.Wrap(err, errorsx.ReasonBusSubscribe)
		}
	}
	t.wg.Add(1)
	go t.writer()

	names := make([]string, 0, len(t.sinks))
	for _, s := range t.sinks {
		names = append(names, s.Name())
	}
	t.log.Info("scribe_started", "sinks", strings.Join(names, ","))
	return nil
}

func (t *Tracker) Stop() error {
	close(t.done)
	t.wg.Wait()
	return nil
}

func (t *Tracker) onWake(_ string, payload []byte) {
	score, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		t.log.Warn("wake_payload_malformed", "payload", string(payload))
		return
	}
	now := time.Now()
	t.mu.Lock()
	t.current = &SessionRecord{
		ID:        now.Format(session.IDFormat),
		WakeScore: score,
		WakeAt:    now,
	}
	t.mu.Unlock()
	t.log.Info("conversation_started", "score", score)
}

func (t *Tracker) onState(_ string, payload []byte) {
	phase, ok := session.ParseState(string(payload))
	if !ok || phase != session.StateIdle {
		return
	}
	t.mu.Lock()
	rec := t.current
	t.current = nil
	t.mu.Unlock()
	if rec == nil {
		return
	}
	rec.finalize(time.Now())

	select {
	case t.records <- *rec:
	default:
		t.log.Error("record_dropped", "session_id", rec.ID, "queued", len(t.records))
	}
}

func (t *Tracker) onTranscription(_ string, payload []byte) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return
	}
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		t.log.Debug("transcription_without_session")
		return
	}
	t.current.Exchanges = append(t.current.Exchanges, Exchange{
		Question:   redact.Text(text),
		QuestionAt: now,
	})
}

func (t *Tracker) onResponse(_ string, payload []byte) {
	text := strings.TrimSpace(string(payload))
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	ex := t.current.lastExchange()
	if ex == nil {
		t.log.Debug("response_without_question")
		return
	}
	ex.Answer = redact.Text(text)
	ex.AnswerAt = now
}

func (t *Tracker) onSpeaking(_ string, payload []byte) {
	flag := strings.TrimSpace(string(payload))
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	ex := t.current.lastExchange()
	if ex == nil {
		return
	}
	switch flag {
	case "true":
		ex.SpeechAt = now
	case "false":
		ex.SpeechEnd = now
	default:
		t.log.Warn("speaking_payload_malformed", "payload", flag)
	}
}

func (t *Tracker) writer() {
	defer t.wg.Done()
	for {
		select {
		case rec := <-t.records:
			t.store(rec)
		case <-t.done:
			// drain whatever finalized before shutdown
			for {
				select {
				case rec := <-t.records:
					t.store(rec)
				default:
					return
				}
			}
		}
	}
}

func (t *Tracker) store(rec SessionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	for _, sink := range t.sinks {
		if err := sink.StoreSession(ctx, rec); err != nil {
			t.log.Error("sink_store_failed",
				"sink", sink.Name(),
				"session_id", rec.ID,
				"error", err,
				"reason", string(errorsx.Reason(err)))
		}
	}
	t.log.Info("conversation_recorded",
		"session_id", rec.ID,
		"exchanges", len(rec.Exchanges),
		"duration_ms", rec.DurationMS())
}
