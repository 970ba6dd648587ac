package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sproutlab/bud/pkg/configutil"
	"github.com/sproutlab/bud/pkg/errorsx"
	"github.com/sproutlab/bud/pkg/resilience"
)

// OpenAIConfig configures the chat completions adapter.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

func (c OpenAIConfig) withDefaults() OpenAIConfig {
	if c.Model == "" {
		c.Model = "gpt-5-nano"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.MaxTokens <= 0 {
		// short completions keep the downstream speech synthesis fast
		c.MaxTokens = 100
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.7
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	return c
}

type openAISettings struct {
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`
	BaseURL     string   `mapstructure:"base_url"`
	MaxTokens   *int     `mapstructure:"max_tokens"`
	Temperature *float64 `mapstructure:"temperature"`
	TimeoutMS   *int     `mapstructure:"timeout_ms"`

	UseCircuitBreaker *bool `mapstructure:"use_circuit_breaker"`
	CircuitThreshold  int   `mapstructure:"circuit_threshold"`
	CircuitCooldownMS int   `mapstructure:"circuit_cooldown_ms"`
}

// OpenAI calls the chat completions API over plain net/http.
type OpenAI struct {
	cfg    OpenAIConfig
	Client *http.Client
}

var _ Adapter = (*OpenAI)(nil)

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	cfg = cfg.withDefaults()
	return &OpenAI{
		cfg:    cfg,
		Client: &http.Client{Timeout: cfg.Timeout},
	}
}

// NewOpenAIFromSettings builds the adapter from a config settings map,
// optionally wrapped in a rate-limit circuit breaker.
func NewOpenAIFromSettings(settings map[string]any, log *slog.Logger) (Adapter, error) {
	if err := configutil.ValidateSettings(settings, configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"model", "base_url", "max_tokens", "temperature", "timeout_ms",
			"use_circuit_breaker", "circuit_threshold", "circuit_cooldown_ms"},
	}); err != nil {
		return nil, fmt.Errorf("openai settings: %w", err)
	}
	var s openAISettings
	if err := configutil.DecodeSettings(settings, &s); err != nil {
		return nil, err
	}
	adapter := NewOpenAI(OpenAIConfig{
		APIKey:      s.APIKey,
		Model:       s.Model,
		BaseURL:     s.BaseURL,
		MaxTokens:   configutil.IntValue(s.MaxTokens, 100),
		Temperature: configutil.FloatValue(s.Temperature, 0.7),
		Timeout:     time.Duration(configutil.IntValue(s.TimeoutMS, 60000)) * time.Millisecond,
	})
	if !configutil.BoolValue(s.UseCircuitBreaker, false) {
		return adapter, nil
	}
	cooldown := time.Duration(s.CircuitCooldownMS) * time.Millisecond
	breaker := resilience.NewCircuitBreaker(s.CircuitThreshold, cooldown)
	return NewBreakerAdapter(adapter, breaker, log), nil
}

func (a *OpenAI) Name() string { return "openai" }

func (a *OpenAI) Generate(ctx context.Context, messages []Message) (string, error) {
	body, err := a.buildRequest(messages)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonLLMGenerate)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/chat/completions", body)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonLLMGenerate)
	}
	a.applyHeaders(req)
	resp, err := a.client().Do(req)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonLLMGenerate)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(resp.Body)
		return "", resilience.RateLimitError{Provider: "openai", Message: string(body)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", errorsx.Errorf(errorsx.ReasonLLMGenerate, "openai status %d: %s", resp.StatusCode, string(body))
	}
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonLLMGenerate)
	}
	return extractContent(payload)
}

func (a *OpenAI) buildRequest(messages []Message) (*bytes.Buffer, error) {
	req := map[string]any{
		"model":       a.cfg.Model,
		"messages":    messages,
		"max_tokens":  a.cfg.MaxTokens,
		"temperature": a.cfg.Temperature,
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return bytes.NewBuffer(b), nil
}

func (a *OpenAI) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
}

func (a *OpenAI) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return http.DefaultClient
}

func extractContent(payload map[string]any) (string, error) {
	choices, _ := payload["choices"].([]any)
	if len(choices) == 0 {
		return "", errorsx.Errorf(errorsx.ReasonLLMGenerate, "openai response has no choices")
	}
	first, _ := choices[0].(map[string]any)
	msg, _ := first["message"].(map[string]any)
	content, _ := msg["content"].(string)
	return content, nil
}
