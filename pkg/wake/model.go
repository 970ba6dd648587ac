package wake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Model scores a window of 16kHz mono PCM for the wake phrase.
type Model interface {
	Name() string
	Predict(ctx context.Context, window []int16) (float64, error)
	Close() error
}

// Factory builds a Model from its free-form settings map.
type Factory func(settings map[string]any, log *slog.Logger) (Model, error)

// Registry maps provider names to model factories. The built-ins are
// "remote" (scoring sidecar over WebSocket) and "scripted" (canned scores
// for tests and hardware-free development).
type Registry struct {
	models map[string]Factory
}

func NewRegistry() *Registry {
	r := &Registry{models: make(map[string]Factory)}
	r.Register("remote", func(settings map[string]any, log *slog.Logger) (Model, error) {
		return NewRemoteModelFromSettings(settings, log)
	})
	r.Register("scripted", func(settings map[string]any, _ *slog.Logger) (Model, error) {
		return NewScriptedModelFromSettings(settings)
	})
	return r
}

func (r *Registry) Register(name string, factory Factory) {
	r.models[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *Registry) Build(provider string, settings map[string]any, log *slog.Logger) (Model, error) {
	fn := r.models[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("wake model not registered: %s", provider)
	}
	return fn(settings, log)
}

// ScriptedModel returns canned scores in order, holding the last one once the
// script runs out. Every window it is asked to score is recorded.
type ScriptedModel struct {
	mu     sync.Mutex
	scores []float64
	err    error
	Calls  [][]int16
}

var _ Model = (*ScriptedModel)(nil)

func NewScriptedModel(scores ...float64) *ScriptedModel {
	return &ScriptedModel{scores: scores}
}

func NewScriptedModelFromSettings(settings map[string]any) (*ScriptedModel, error) {
	m := &ScriptedModel{}
	raw, ok := settings["scores"]
	if !ok {
		return m, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("scripted wake model: scores must be a list")
	}
	for _, item := range list {
		switch v := item.(type) {
		case float64:
			m.scores = append(m.scores, v)
		case int:
			m.scores = append(m.scores, float64(v))
		default:
			return nil, fmt.Errorf("scripted wake model: score %v is not numeric", item)
		}
	}
	return m, nil
}

func (m *ScriptedModel) Name() string { return "scripted" }

func (m *ScriptedModel) Predict(_ context.Context, window []int16) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, append([]int16(nil), window...))
	if m.err != nil {
		return 0, m.err
	}
	if len(m.scores) == 0 {
		return 0, nil
	}
	score := m.scores[0]
	if len(m.scores) > 1 {
		m.scores = m.scores[1:]
	}
	return score, nil
}

func (m *ScriptedModel) Close() error { return nil }

// FailWith makes every subsequent Predict return err.
func (m *ScriptedModel) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// CallCount reports how many times Predict ran.
func (m *ScriptedModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastWindow returns the most recent window Predict received, or nil.
func (m *ScriptedModel) LastWindow() []int16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	return m.Calls[len(m.Calls)-1]
}
