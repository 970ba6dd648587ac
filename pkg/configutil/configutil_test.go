package configutil

import (
	"strings"
	"testing"
)

func TestDecodeSettingsWeaklyTyped(t *testing.T) {
	type synthSettings struct {
		Binary      string   `mapstructure:"binary"`
		SampleRate  int      `mapstructure:"sample_rate"`
		LengthScale *float64 `mapstructure:"length_scale"`
	}
	var out synthSettings
	err := DecodeSettings(map[string]any{
		"binary":      "piper",
		"sample-rate": "22050",
		"LengthScale": 1.2,
	}, &out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Binary != "piper" {
		t.Fatalf("binary = %q", out.Binary)
	}
	if out.SampleRate != 22050 {
		t.Fatalf("sample_rate = %d, want weakly typed 22050", out.SampleRate)
	}
	if FloatValue(out.LengthScale, 1.0) != 1.2 {
		t.Fatalf("length_scale not decoded")
	}
}

func TestValidateSettingsReportsMissingAndUnknown(t *testing.T) {
	schema := Schema{
		Required: []string{"api_key"},
		Optional: []string{"model"},
	}
	err := ValidateSettings(map[string]any{
		"model":  "gpt-4o-mini",
		"flavor": "mint",
	}, schema)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "missing: api_key") {
		t.Fatalf("missing key not reported: %s", msg)
	}
	if !strings.Contains(msg, "unknown: flavor") {
		t.Fatalf("unknown key not reported: %s", msg)
	}
}

func TestValidateSettingsNormalizesKeys(t *testing.T) {
	schema := Schema{Required: []string{"api_key"}}
	err := ValidateSettings(map[string]any{"API-Key": "sk-test"}, schema)
	if err != nil {
		t.Fatalf("expected normalized key to satisfy schema, got %v", err)
	}
}

func TestRequireString(t *testing.T) {
	if err := RequireString("", "bus.broker_url"); err == nil {
		t.Fatalf("expected error for empty value")
	}
	if err := RequireString("tcp://localhost:1883", "bus.broker_url"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
