package vad

import (
	"testing"
	"time"

	"github.com/sproutlab/bud/pkg/audio"
)

func TestGateClassifiesByVolume(t *testing.T) {
	g := NewGate(300)
	cases := []struct {
		volume float64
		speech bool
	}{
		{0, false},
		{299, false},
		{300, false},
		{301, true},
		{800, true},
	}
	for _, tc := range cases {
		f := audio.Frame{Volume: tc.volume}
		if got := g.IsSpeech(f); got != tc.speech {
			t.Errorf("volume %v: IsSpeech = %v, want %v", tc.volume, got, tc.speech)
		}
	}
}

func TestGateUsesPrecomputedVolume(t *testing.T) {
	g := NewGate(300)
	f := audio.NewFrame([]int16{-500, 500, -500, 500}, time.Now())
	if !g.IsSpeech(f) {
		t.Fatalf("expected speech for volume %v over threshold 300", f.Volume)
	}
}
