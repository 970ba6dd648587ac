package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Transcriber converts one finished utterance of mono PCM into text.
// Implementations own their connection lifecycle per call; the audio front
// end only ever hands over a complete buffer.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error)
}

// Factory builds a Transcriber from its free-form settings map.
type Factory func(settings map[string]any, log *slog.Logger) (Transcriber, error)

// Registry maps provider names to transcriber factories. Built-ins are
// "deepgram" and "scripted".
type Registry struct {
	providers map[string]Factory
}

func NewRegistry() *Registry {
	r := &Registry{providers: make(map[string]Factory)}
	r.Register("deepgram", func(settings map[string]any, log *slog.Logger) (Transcriber, error) {
		return NewDeepgramFromSettings(settings, log)
	})
	r.Register("scripted", func(settings map[string]any, _ *slog.Logger) (Transcriber, error) {
		return NewScriptedFromSettings(settings)
	})
	return r
}

func (r *Registry) Register(name string, factory Factory) {
	r.providers[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *Registry) Build(provider string, settings map[string]any, log *slog.Logger) (Transcriber, error) {
	fn := r.providers[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("transcriber not registered: %s", provider)
	}
	return fn(settings, log)
}

// Scripted returns canned transcripts in order, holding the last once the
// script runs out, and records every utterance it was given.
type Scripted struct {
	mu         sync.Mutex
	texts      []string
	err        error
	Utterances [][]int16
	Rates      []int
}

var _ Transcriber = (*Scripted)(nil)

func NewScripted(texts ...string) *Scripted {
	return &Scripted{texts: texts}
}

func NewScriptedFromSettings(settings map[string]any) (*Scripted, error) {
	s := &Scripted{}
	raw, ok := settings["texts"]
	if !ok {
		return s, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("scripted transcriber: texts must be a list")
	}
	for _, item := range list {
		text, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("scripted transcriber: text %v is not a string", item)
		}
		s.texts = append(s.texts, text)
	}
	return s, nil
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) Transcribe(_ context.Context, pcm []int16, sampleRate int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Utterances = append(s.Utterances, append([]int16(nil), pcm...))
	s.Rates = append(s.Rates, sampleRate)
	if s.err != nil {
		return "", s.err
	}
	if len(s.texts) == 0 {
		return "", nil
	}
	text := s.texts[0]
	if len(s.texts) > 1 {
		s.texts = s.texts[1:]
	}
	return text, nil
}

// FailWith makes every subsequent Transcribe return err.
func (s *Scripted) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// CallCount reports how many utterances were transcribed.
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Utterances)
}
