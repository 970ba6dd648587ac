package session

import (
	"strings"
	"time"
)

// State is the conversational phase of the robot. Exactly one State is
// current at any time; transitions go through the manager only.
type State int

const (
	StateIdle State = iota
	StateActive
	StateThinking
	StateSpeaking
)

// String returns the bus payload form of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// ParseState maps a bus payload onto a State.
func ParseState(payload string) (State, bool) {
	switch strings.ToLower(strings.TrimSpace(payload)) {
	case "idle":
		return StateIdle, true
	case "active":
		return StateActive, true
	case "thinking":
		return StateThinking, true
	case "speaking":
		return StateSpeaking, true
	default:
		return StateIdle, false
	}
}

// Emotions shown on the robot face, published retained alongside the phase.
const (
	EmotionSleeping  = "sleeping"
	EmotionListening = "listening"
	EmotionThinking  = "thinking"
	EmotionTalking   = "talking"
)

// Emotion returns the face shown while in this state.
func (s State) Emotion() string {
	switch s {
	case StateActive:
		return EmotionListening
	case StateThinking:
		return EmotionThinking
	case StateSpeaking:
		return EmotionTalking
	default:
		return EmotionSleeping
	}
}

// transitionValid checks the transition table. SPEAKING always returns to
// IDLE for a full reset; re-engaging takes a fresh wake detection.
func transitionValid(from, to State) bool {
	validTransitions := map[State][]State{
		StateIdle:     {StateActive},
		StateActive:   {StateThinking, StateIdle},
		StateThinking: {StateSpeaking, StateIdle},
		StateSpeaking: {StateIdle},
	}

	allowed, exists := validTransitions[from]
	if !exists {
		return false
	}
	for _, state := range allowed {
		if state == to {
			return true
		}
	}
	return false
}

// StateChange represents a phase transition event.
type StateChange struct {
	FromState State
	ToState   State
	Timestamp time.Time
	Reason    string
}

// StateListener observes phase changes in-process, in addition to the
// retained bus publishes.
type StateListener interface {
	OnStateChange(event StateChange)
}

// InvalidTransitionError represents an invalid phase transition attempt.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid session transition from " + e.From.String() + " to " + e.To.String()
}
