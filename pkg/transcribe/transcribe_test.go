package transcribe

import (
	"context"
	"errors"
	"testing"
)

func TestScriptedTranscriber(t *testing.T) {
	s := NewScripted("what's two plus two", "goodbye")
	ctx := context.Background()

	text, err := s.Transcribe(ctx, []int16{1, 2, 3}, 16000)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "what's two plus two" {
		t.Fatalf("text = %q", text)
	}

	text, _ = s.Transcribe(ctx, []int16{4}, 16000)
	if text != "goodbye" {
		t.Fatalf("text = %q", text)
	}
	text, _ = s.Transcribe(ctx, []int16{5}, 16000)
	if text != "goodbye" {
		t.Fatalf("script should hold last text, got %q", text)
	}

	if s.CallCount() != 3 {
		t.Fatalf("call count = %d", s.CallCount())
	}
	if s.Rates[0] != 16000 {
		t.Fatalf("rate not recorded")
	}
}

func TestScriptedTranscriberFailure(t *testing.T) {
	s := NewScripted("unused")
	s.FailWith(errors.New("no network"))
	if _, err := s.Transcribe(context.Background(), []int16{1}, 16000); err == nil {
		t.Fatalf("expected injected error")
	}
}

func TestRegistryBuild(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Build("scripted", nil, nil); err != nil {
		t.Fatalf("scripted: %v", err)
	}
	if _, err := r.Build("Deepgram", map[string]any{"api_key": "dg-key"}, nil); err != nil {
		t.Fatalf("deepgram (case-insensitive): %v", err)
	}
	if _, err := r.Build("deepgram", map[string]any{}, nil); err == nil {
		t.Fatalf("expected api_key requirement")
	}
	if _, err := r.Build("whisper", nil, nil); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}
