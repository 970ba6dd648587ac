package brain

import (
	"context"
	"fmt"
	"sync"
)

// Scripted returns canned replies in order, holding the last once the script
// runs out, and records every message list it was asked to answer.
type Scripted struct {
	mu      sync.Mutex
	replies []string
	err     error
	Calls   [][]Message
}

var _ Adapter = (*Scripted)(nil)

func NewScripted(replies ...string) *Scripted {
	return &Scripted{replies: replies}
}

func NewScriptedFromSettings(settings map[string]any) (*Scripted, error) {
	s := &Scripted{}
	raw, ok := settings["replies"]
	if !ok {
		return s, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("scripted brain: replies must be a list")
	}
	for _, item := range list {
		reply, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("scripted brain: reply %v is not a string", item)
		}
		s.replies = append(s.replies, reply)
	}
	return s, nil
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) Generate(_ context.Context, messages []Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, append([]Message(nil), messages...))
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "", nil
	}
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return reply, nil
}

// FailWith makes every subsequent Generate return err.
func (s *Scripted) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// CallCount reports how many times Generate ran.
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

// LastCall returns the most recent message list Generate received, or nil.
func (s *Scripted) LastCall() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Calls) == 0 {
		return nil
	}
	return s.Calls[len(s.Calls)-1]
}
