package session

import (
	"time"

	"github.com/google/uuid"
)

// IDFormat is the layout for human-sortable session identifiers.
const IDFormat = "20060102-150405"

// Session is one conversational engagement. It is created when a wake
// detection arrives in IDLE and destroyed on every return to IDLE; nothing
// about it survives the reset.
type Session struct {
	ID           string
	TraceID      string
	WakeScore    float64
	StartedAt    time.Time
	LastActivity time.Time
}

func newSession(now time.Time, wakeScore float64) *Session {
	return &Session{
		ID:           now.Format(IDFormat),
		TraceID:      uuid.NewString(),
		WakeScore:    wakeScore,
		StartedAt:    now,
		LastActivity: now,
	}
}
