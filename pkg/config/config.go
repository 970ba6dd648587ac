package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the shared configuration for every bud daemon. All daemons read
// the same file; each uses only the sections it needs.
type Config struct {
	Log        LogConfig      `mapstructure:"log"`
	Bus        BusConfig      `mapstructure:"bus"`
	Audio      AudioConfig    `mapstructure:"audio"`
	Wake       WakeConfig     `mapstructure:"wake"`
	VAD        VADConfig      `mapstructure:"vad"`
	Recorder   RecorderConfig `mapstructure:"recorder"`
	Session    SessionConfig  `mapstructure:"session"`
	Transcribe ModelConfig    `mapstructure:"transcribe"`
	Brain      BrainConfig    `mapstructure:"brain"`
	Voice      VoiceConfig    `mapstructure:"voice"`
	Scribe     ScribeConfig   `mapstructure:"scribe"`
	Metrics    MetricsConfig  `mapstructure:"metrics"`
}

// ModelConfig selects a provider implementation plus its free-form settings,
// decoded per provider via configutil.
type ModelConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BusConfig struct {
	BrokerURL    string `mapstructure:"broker_url"`
	ClientID     string `mapstructure:"client_id"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	KeepAliveS   int    `mapstructure:"keepalive_s"`
	PingTimeoutS int    `mapstructure:"ping_timeout_s"`
}

type AudioConfig struct {
	SampleRate   int `mapstructure:"sample_rate"`
	ChunkSamples int `mapstructure:"chunk_samples"`
}

type WakeConfig struct {
	Model       ModelConfig `mapstructure:"model"`
	TargetRate  int         `mapstructure:"target_rate"`
	Threshold   float64     `mapstructure:"threshold"`
	MinVolume   float64     `mapstructure:"min_volume"`
	RateLimitMS int         `mapstructure:"rate_limit_ms"`
	CooldownMS  int         `mapstructure:"cooldown_ms"`
	WindowMS    int         `mapstructure:"window_ms"`
}

type VADConfig struct {
	SilenceThreshold float64 `mapstructure:"silence_threshold"`
}

type RecorderConfig struct {
	SilenceMS int      `mapstructure:"silence_ms"`
	MaxMS     int      `mapstructure:"max_ms"`
	Denylist  []string `mapstructure:"denylist"`
}

type SessionConfig struct {
	IdleTimeoutMS  int      `mapstructure:"idle_timeout_ms"`
	GoodbyePhrases []string `mapstructure:"goodbye_phrases"`
}

type BrainConfig struct {
	Model           ModelConfig `mapstructure:"model"`
	RecentExchanges int         `mapstructure:"recent_exchanges"`
	MaxExchanges    int         `mapstructure:"max_exchanges"`
	SystemPrompt    string      `mapstructure:"system_prompt"`
	TimeoutMS       int         `mapstructure:"timeout_ms"`
}

type VoiceConfig struct {
	Synth            ModelConfig `mapstructure:"synth"`
	PlaybackBufferMS int         `mapstructure:"playback_buffer_ms"`
}

type ScribeConfig struct {
	LogDir    string `mapstructure:"log_dir"`
	DBPath    string `mapstructure:"db_path"`
	RedactPII bool   `mapstructure:"redact_pii"`
}

type MetricsConfig struct {
	Dir             string  `mapstructure:"dir"`
	FrameSampleRate float64 `mapstructure:"frame_sample_rate"`
	Buffer          int     `mapstructure:"buffer"`
}

// LoadConfig reads the YAML file at path, applies defaults for every knob,
// expands ${ENV} references, and validates the result.
func LoadConfig(path string) (Config, error) {
	// a .env next to the binary feeds the ${ENV} references below
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("bus.broker_url", "tcp://localhost:1883")
	v.SetDefault("bus.client_id", "")
	v.SetDefault("bus.keepalive_s", 60)
	v.SetDefault("bus.ping_timeout_s", 10)
	v.SetDefault("audio.sample_rate", 48000)
	v.SetDefault("audio.chunk_samples", 2000)
	v.SetDefault("wake.model.provider", "remote")
	v.SetDefault("wake.target_rate", 16000)
	v.SetDefault("wake.threshold", 0.6)
	v.SetDefault("wake.min_volume", 350.0)
	v.SetDefault("wake.rate_limit_ms", 2000)
	v.SetDefault("wake.cooldown_ms", 3000)
	v.SetDefault("wake.window_ms", 1500)
	v.SetDefault("vad.silence_threshold", 300.0)
	v.SetDefault("recorder.silence_ms", 2500)
	v.SetDefault("recorder.max_ms", 30000)
	v.SetDefault("recorder.denylist", []string{"You", "you", "Thank you.", "Thanks for watching.", "Bye."})
	v.SetDefault("session.idle_timeout_ms", 30000)
	v.SetDefault("session.goodbye_phrases", []string{"goodbye", "bye bye", "see you later", "that's all"})
	v.SetDefault("transcribe.provider", "deepgram")
	v.SetDefault("brain.model.provider", "openai")
	v.SetDefault("brain.recent_exchanges", 6)
	v.SetDefault("brain.max_exchanges", 20)
	v.SetDefault("brain.timeout_ms", 30000)
	v.SetDefault("brain.system_prompt",
		"You are Bud, a friendly and encouraging robot companion for a curious kid. "+
			"Keep answers short, warm, and simple.")
	v.SetDefault("voice.synth.provider", "piper")
	v.SetDefault("voice.playback_buffer_ms", 100)
	v.SetDefault("scribe.log_dir", "logs")
	v.SetDefault("scribe.db_path", "logs/bud.db")
	v.SetDefault("scribe.redact_pii", false)
	v.SetDefault("metrics.dir", "logs")
	v.SetDefault("metrics.frame_sample_rate", 0.02)
	v.SetDefault("metrics.buffer", 256)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bus.BrokerURL) == "" {
		return fmt.Errorf("bus.broker_url is required")
	}
	if strings.TrimSpace(c.Wake.Model.Provider) == "" {
		return fmt.Errorf("wake.model.provider is required")
	}
	if strings.TrimSpace(c.Transcribe.Provider) == "" {
		return fmt.Errorf("transcribe.provider is required")
	}
	if strings.TrimSpace(c.Brain.Model.Provider) == "" {
		return fmt.Errorf("brain.model.provider is required")
	}
	if strings.TrimSpace(c.Voice.Synth.Provider) == "" {
		return fmt.Errorf("voice.synth.provider is required")
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive")
	}
	if c.Audio.ChunkSamples <= 0 {
		return fmt.Errorf("audio.chunk_samples must be positive")
	}
	if c.Wake.TargetRate <= 0 || c.Audio.SampleRate%c.Wake.TargetRate != 0 {
		return fmt.Errorf("wake.target_rate must divide audio.sample_rate evenly")
	}
	if c.Wake.Threshold <= 0 || c.Wake.Threshold > 1 {
		return fmt.Errorf("wake.threshold must be in (0, 1]")
	}
	if c.Recorder.SilenceMS <= 0 || c.Recorder.MaxMS <= 0 {
		return fmt.Errorf("recorder.silence_ms and recorder.max_ms must be positive")
	}
	if c.Session.IdleTimeoutMS <= 0 {
		return fmt.Errorf("session.idle_timeout_ms must be positive")
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Wake.Model.Settings = expandSettings(cfg.Wake.Model.Settings)
	cfg.Transcribe.Settings = expandSettings(cfg.Transcribe.Settings)
	cfg.Brain.Model.Settings = expandSettings(cfg.Brain.Model.Settings)
	cfg.Voice.Synth.Settings = expandSettings(cfg.Voice.Synth.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
