package audio

import (
	"testing"
	"time"
)

func TestVolumeOf(t *testing.T) {
	cases := []struct {
		name    string
		samples []int16
		want    float64
	}{
		{"empty", nil, 0},
		{"silence", []int16{0, 0, 0, 0}, 0},
		{"symmetric", []int16{-400, 400, -400, 400}, 400},
		{"mixed", []int16{100, -300}, 200},
		{"extreme negative", []int16{-32768}, 32768},
	}
	for _, tc := range cases {
		if got := VolumeOf(tc.samples); got != tc.want {
			t.Errorf("%s: VolumeOf = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNewFrameComputesVolumeOnce(t *testing.T) {
	now := time.Now()
	f := NewFrame([]int16{-100, 100, -100, 100}, now)
	if f.Volume != 100 {
		t.Fatalf("volume = %v, want 100", f.Volume)
	}
	if !f.Time.Equal(now) {
		t.Fatalf("frame time not preserved")
	}
}

func TestDecimationFactor(t *testing.T) {
	factor, err := DecimationFactor(48000, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if factor != 3 {
		t.Fatalf("factor = %d, want 3", factor)
	}
	if _, err := DecimationFactor(44100, 16000); err == nil {
		t.Fatalf("expected error for non-integer ratio")
	}
	if _, err := DecimationFactor(0, 16000); err == nil {
		t.Fatalf("expected error for zero rate")
	}
}

func TestDecimateBlockAverages(t *testing.T) {
	in := []int16{3, 3, 3, 6, 6, 6}
	out := Decimate(in, 3)
	if len(out) != 2 || out[0] != 3 || out[1] != 6 {
		t.Fatalf("Decimate = %v, want [3 6]", out)
	}
}

func TestDecimateTrimsTail(t *testing.T) {
	in := []int16{9, 9, 9, 12, 12, 12, 7, 7}
	out := Decimate(in, 3)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2 (tail trimmed, not padded)", len(out))
	}
	if out[0] != 9 || out[1] != 12 {
		t.Fatalf("Decimate = %v, want [9 12]", out)
	}
}

func TestDecimateEmptyInput(t *testing.T) {
	out := Decimate(nil, 3)
	if len(out) != 0 {
		t.Fatalf("expected empty output, got %v", out)
	}
}

func TestPCMRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 12345}
	got := SamplesLE(BytesLE(in))
	if len(got) != len(in) {
		t.Fatalf("length mismatch: %d vs %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], in[i])
		}
	}
}
