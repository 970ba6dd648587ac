package voice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Synthesizer renders one reply into mono s16le PCM. Implementations return
// the clip's sample rate alongside the audio because voices ship at whatever
// rate their model was trained on.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) (pcm []byte, sampleRate int, err error)
}

// Factory builds a Synthesizer from its free-form settings map.
type Factory func(settings map[string]any, log *slog.Logger) (Synthesizer, error)

// Registry maps provider names to synthesizer factories. Built-ins are
// "piper" and "scripted".
type Registry struct {
	providers map[string]Factory
}

func NewRegistry() *Registry {
	r := &Registry{providers: make(map[string]Factory)}
	r.Register("piper", func(settings map[string]any, log *slog.Logger) (Synthesizer, error) {
		return NewPiperFromSettings(settings, log)
	})
	r.Register("scripted", func(settings map[string]any, _ *slog.Logger) (Synthesizer, error) {
		return NewScriptedFromSettings(settings)
	})
	return r
}

func (r *Registry) Register(name string, factory Factory) {
	r.providers[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *Registry) Build(provider string, settings map[string]any, log *slog.Logger) (Synthesizer, error) {
	fn := r.providers[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("synthesizer not registered: %s", provider)
	}
	return fn(settings, log)
}

// Scripted renders one s16le sample per rune of input, which gives tests a
// deterministic clip whose length tracks the text. It records every text it
// was asked to speak.
type Scripted struct {
	mu    sync.Mutex
	rate  int
	err   error
	Texts []string
}

var _ Synthesizer = (*Scripted)(nil)

func NewScripted() *Scripted {
	return &Scripted{rate: 22050}
}

func NewScriptedFromSettings(settings map[string]any) (*Scripted, error) {
	s := NewScripted()
	if raw, ok := settings["sample_rate"]; ok {
		rate, ok := raw.(int)
		if !ok || rate <= 0 {
			return nil, fmt.Errorf("scripted synthesizer: sample_rate must be a positive int")
		}
		s.rate = rate
	}
	return s, nil
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) Synthesize(_ context.Context, text string) ([]byte, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Texts = append(s.Texts, text)
	if s.err != nil {
		return nil, 0, s.err
	}
	return make([]byte, 2*len([]rune(text))), s.rate, nil
}

// FailWith makes every subsequent Synthesize return err.
func (s *Scripted) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// CallCount reports how many clips were synthesized.
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Texts)
}

// LastText returns the most recent text Synthesize received, or empty.
func (s *Scripted) LastText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Texts) == 0 {
		return ""
	}
	return s.Texts[len(s.Texts)-1]
}
