package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bud.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "log:\n  level: debug\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log.level = %q", cfg.Log.Level)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.Audio.ChunkSamples != 2000 {
		t.Fatalf("audio defaults = %d/%d", cfg.Audio.SampleRate, cfg.Audio.ChunkSamples)
	}
	if cfg.Wake.Threshold != 0.6 || cfg.Wake.MinVolume != 350 {
		t.Fatalf("wake defaults = %v/%v", cfg.Wake.Threshold, cfg.Wake.MinVolume)
	}
	if cfg.Wake.RateLimitMS != 2000 || cfg.Wake.CooldownMS != 3000 {
		t.Fatalf("wake pacing defaults = %d/%d", cfg.Wake.RateLimitMS, cfg.Wake.CooldownMS)
	}
	if cfg.VAD.SilenceThreshold != 300 {
		t.Fatalf("vad default = %v", cfg.VAD.SilenceThreshold)
	}
	if cfg.Recorder.SilenceMS != 2500 || cfg.Recorder.MaxMS != 30000 {
		t.Fatalf("recorder defaults = %d/%d", cfg.Recorder.SilenceMS, cfg.Recorder.MaxMS)
	}
	found := false
	for _, phrase := range cfg.Recorder.Denylist {
		if phrase == "Thanks for watching." {
			found = true
		}
	}
	if !found {
		t.Fatalf("denylist missing default entry: %v", cfg.Recorder.Denylist)
	}
	if cfg.Session.IdleTimeoutMS != 30000 {
		t.Fatalf("idle timeout default = %d", cfg.Session.IdleTimeoutMS)
	}
	if cfg.Brain.RecentExchanges != 6 || cfg.Brain.MaxExchanges != 20 {
		t.Fatalf("brain memory defaults = %d/%d", cfg.Brain.RecentExchanges, cfg.Brain.MaxExchanges)
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("BUD_TEST_DG_KEY", "dg-secret")
	path := writeConfig(t, `
transcribe:
  provider: deepgram
  settings:
    api_key: ${BUD_TEST_DG_KEY}
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.Transcribe.Settings["api_key"]; got != "dg-secret" {
		t.Fatalf("api_key = %v, want expanded env value", got)
	}
}

func TestLoadConfigRejectsUnevenDecimation(t *testing.T) {
	path := writeConfig(t, "audio:\n  sample_rate: 44100\n")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "target_rate") {
		t.Fatalf("expected target_rate validation error, got %v", err)
	}
}

func TestLoadConfigRequiresBrokerURL(t *testing.T) {
	path := writeConfig(t, "bus:\n  broker_url: \"\"\n")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "bus.broker_url is required") {
		t.Fatalf("expected broker_url validation error, got %v", err)
	}
}
