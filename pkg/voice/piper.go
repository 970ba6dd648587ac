package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sproutlab/bud/pkg/configutil"
	"github.com/sproutlab/bud/pkg/errorsx"
)

// PiperConfig configures the piper subprocess adapter. A voice name resolves
// to <model_dir>/<voice>.onnx plus its .onnx.json sidecar; explicit paths
// override the convention.
type PiperConfig struct {
	Binary      string
	Voice       string
	ModelDir    string
	ModelPath   string
	ConfigPath  string
	LengthScale float64
	SampleRate  int
	Timeout     time.Duration
}

func (c PiperConfig) withDefaults() PiperConfig {
	if c.Binary == "" {
		c.Binary = "piper"
	}
	if c.Voice == "" {
		c.Voice = "en_US-lessac-low"
	}
	if c.ModelDir == "" {
		c.ModelDir = "piper_models"
	}
	if c.ModelPath == "" {
		c.ModelPath = filepath.Join(c.ModelDir, c.Voice+".onnx")
	}
	if c.ConfigPath == "" {
		c.ConfigPath = c.ModelPath + ".json"
	}
	if c.LengthScale <= 0 {
		// slightly fast speech reads as lively rather than sluggish
		c.LengthScale = 0.75
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

type piperSettings struct {
	Binary      string   `mapstructure:"binary"`
	Voice       string   `mapstructure:"voice"`
	ModelDir    string   `mapstructure:"model_dir"`
	ModelPath   string   `mapstructure:"model_path"`
	ConfigPath  string   `mapstructure:"config_path"`
	LengthScale *float64 `mapstructure:"length_scale"`
	SampleRate  *int     `mapstructure:"sample_rate"`
	TimeoutMS   *int     `mapstructure:"timeout_ms"`
}

// Piper shells out to the piper neural TTS binary with --output-raw, writing
// the reply text to stdin and reading raw s16le PCM from stdout. One process
// per clip keeps the adapter stateless.
type Piper struct {
	cfg PiperConfig
	log *slog.Logger
}

var _ Synthesizer = (*Piper)(nil)

// NewPiper resolves paths and, when no sample rate is given, reads it from
// the voice's .onnx.json sidecar the way piper itself does.
func NewPiper(cfg PiperConfig, log *slog.Logger) (*Piper, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	if cfg.SampleRate <= 0 {
		rate, err := detectSampleRate(cfg.ConfigPath)
		if err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonSynthesize)
		}
		cfg.SampleRate = rate
	}
	log.Info("piper_ready",
		"voice", cfg.Voice,
		"sample_rate", cfg.SampleRate,
		"length_scale", cfg.LengthScale)
	return &Piper{cfg: cfg, log: log}, nil
}

func NewPiperFromSettings(settings map[string]any, log *slog.Logger) (*Piper, error) {
	if err := configutil.ValidateSettings(settings, configutil.Schema{
		Optional: []string{"binary", "voice", "model_dir", "model_path", "config_path",
			"length_scale", "sample_rate", "timeout_ms"},
	}); err != nil {
		return nil, fmt.Errorf("piper settings: %w", err)
	}
	var s piperSettings
	if err := configutil.DecodeSettings(settings, &s); err != nil {
		return nil, err
	}
	return NewPiper(PiperConfig{
		Binary:      s.Binary,
		Voice:       s.Voice,
		ModelDir:    s.ModelDir,
		ModelPath:   s.ModelPath,
		ConfigPath:  s.ConfigPath,
		LengthScale: configutil.FloatValue(s.LengthScale, 0),
		SampleRate:  configutil.IntValue(s.SampleRate, 0),
		Timeout:     time.Duration(configutil.IntValue(s.TimeoutMS, 0)) * time.Millisecond,
	}, log)
}

func (p *Piper) Name() string { return "piper" }

func (p *Piper) SampleRate() int { return p.cfg.SampleRate }

func (p *Piper) Synthesize(ctx context.Context, text string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.cfg.Binary, p.args()...)
	cmd.Stdin = strings.NewReader(text)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, 0, errorsx.Errorf(errorsx.ReasonSynthesize, "piper: %s", detail)
	}
	p.log.Debug("piper_synthesized",
		"bytes", out.Len(),
		"elapsed", time.Since(start).String())
	return out.Bytes(), p.cfg.SampleRate, nil
}

func (p *Piper) args() []string {
	return []string{
		"--model", p.cfg.ModelPath,
		"--config", p.cfg.ConfigPath,
		"--length_scale", strconv.FormatFloat(p.cfg.LengthScale, 'g', -1, 64),
		"--output-raw",
	}
}

// detectSampleRate reads audio.sample_rate out of a piper voice config.
func detectSampleRate(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("voice config: %w", err)
	}
	var cfg struct {
		Audio struct {
			SampleRate int `json:"sample_rate"`
		} `json:"audio"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return 0, fmt.Errorf("voice config %s: %w", path, err)
	}
	if cfg.Audio.SampleRate <= 0 {
		return 0, fmt.Errorf("voice config %s: no audio.sample_rate", path)
	}
	return cfg.Audio.SampleRate, nil
}
