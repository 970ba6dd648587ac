package brain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Message is one chat turn sent to the language model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Adapter produces one reply for a fully assembled message list. Adapters are
// stateless across calls; conversation memory lives in Memory.
type Adapter interface {
	Name() string
	Generate(ctx context.Context, messages []Message) (string, error)
}

// Factory builds an Adapter from its free-form settings map.
type Factory func(settings map[string]any, log *slog.Logger) (Adapter, error)

// Registry maps provider names to adapter factories. Built-ins are "openai"
// and "scripted".
type Registry struct {
	providers map[string]Factory
}

func NewRegistry() *Registry {
	r := &Registry{providers: make(map[string]Factory)}
	r.Register("openai", func(settings map[string]any, log *slog.Logger) (Adapter, error) {
		return NewOpenAIFromSettings(settings, log)
	})
	r.Register("scripted", func(settings map[string]any, _ *slog.Logger) (Adapter, error) {
		return NewScriptedFromSettings(settings)
	})
	return r
}

func (r *Registry) Register(name string, factory Factory) {
	r.providers[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *Registry) Build(provider string, settings map[string]any, log *slog.Logger) (Adapter, error) {
	fn := r.providers[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("brain adapter not registered: %s", provider)
	}
	return fn(settings, log)
}
