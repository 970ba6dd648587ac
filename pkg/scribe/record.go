package scribe

import (
	"time"

	"github.com/sproutlab/bud/pkg/metrics"
)

// Exchange is one question/answer round trip inside a session, with the
// timestamps needed to break its latency into stages.
type Exchange struct {
	Question   string    `json:"question"`
	QuestionAt time.Time `json:"question_at"`
	Answer     string    `json:"answer,omitempty"`
	AnswerAt   time.Time `json:"answer_at,omitempty"`
	SpeechAt   time.Time `json:"speech_at,omitempty"`
	SpeechEnd  time.Time `json:"speech_end,omitempty"`

	TranscriptionMS int64 `json:"transcription_ms"`
	LLMMS           int64 `json:"llm_ms"`
	TTSMS           int64 `json:"tts_ms"`
	TotalMS         int64 `json:"total_ms"`
}

// SessionRecord is everything the scribe learned about one conversation, from
// wake to idle.
type SessionRecord struct {
	ID        string     `json:"session_id"`
	WakeScore float64    `json:"wake_score"`
	WakeAt    time.Time  `json:"wake_at"`
	EndedAt   time.Time  `json:"ended_at"`
	Exchanges []Exchange `json:"exchanges"`
}

// DurationMS is the whole session's wall time.
func (r SessionRecord) DurationMS() int64 {
	if r.WakeAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.WakeAt).Milliseconds()
}

// finalize stamps the end time and computes per-exchange latencies. The
// transcription stage of the first exchange is measured from the wake; later
// exchanges measure from the end of the previous reply.
func (r *SessionRecord) finalize(at time.Time) {
	r.EndedAt = at
	base := r.WakeAt
	for i := range r.Exchanges {
		ex := &r.Exchanges[i]
		ex.TranscriptionMS = spanMS(base, ex.QuestionAt)
		ex.LLMMS = spanMS(ex.QuestionAt, ex.AnswerAt)
		ex.TTSMS = spanMS(ex.SpeechAt, ex.SpeechEnd)
		end := ex.SpeechEnd
		if end.IsZero() {
			end = ex.AnswerAt
		}
		ex.TotalMS = spanMS(base, end)
		if !end.IsZero() {
			base = end
		}
	}
}

func spanMS(from, to time.Time) int64 {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return 0
	}
	return to.Sub(from).Milliseconds()
}

// lastExchange returns the exchange currently being filled in, or nil.
func (r *SessionRecord) lastExchange() *Exchange {
	if r == nil || len(r.Exchanges) == 0 {
		return nil
	}
	return &r.Exchanges[len(r.Exchanges)-1]
}

// events renders the record as metrics events, one per exchange, for the
// JSONL journal.
func (r SessionRecord) events() []metrics.MetricsEvent {
	evs := make([]metrics.MetricsEvent, 0, len(r.Exchanges))
	for i, ex := range r.Exchanges {
		evs = append(evs, metrics.MetricsEvent{
			Name:  metrics.EventExchange,
			Time:  r.EndedAt,
			Value: float64(ex.TotalMS),
			Tags:  map[string]string{"session_id": r.ID},
			Fields: map[string]any{
				"turn":             i + 1,
				"wake_score":       r.WakeScore,
				"question":         ex.Question,
				"answer":           ex.Answer,
				"transcription_ms": ex.TranscriptionMS,
				"llm_ms":           ex.LLMMS,
				"tts_ms":           ex.TTSMS,
				"total_ms":         ex.TotalMS,
				"session_ms":       r.DurationMS(),
			},
		})
	}
	return evs
}
