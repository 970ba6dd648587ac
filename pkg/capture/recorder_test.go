package capture

import (
	"testing"
	"time"

	"github.com/sproutlab/bud/pkg/audio"
	"github.com/sproutlab/bud/pkg/vad"
)

// frameOf builds a frame of n identical samples, so its volume equals the
// sample amplitude.
func frameOf(n int, amp int16) audio.Frame {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = amp
	}
	return audio.NewFrame(samples, time.Now())
}

func newTestRecorder(silence, maxDuration time.Duration) *Recorder {
	return NewRecorder(vad.NewGate(300), 1000, silence, maxDuration)
}

func TestRecorderStopsOnSilenceAfterSpeech(t *testing.T) {
	rec := newTestRecorder(100*time.Millisecond, 10*time.Second)

	if done, _ := rec.Add(frameOf(50, 800)); done {
		t.Fatal("stopped during speech")
	}
	if done, _ := rec.Add(frameOf(50, 0)); done {
		t.Fatal("stopped before the silence window elapsed")
	}
	done, reason := rec.Add(frameOf(50, 0))
	if !done || reason != StopSilence {
		t.Fatalf("got (%v, %v), want silence stop after 100 samples of silence", done, reason)
	}

	samples, speechSeen := rec.Take()
	if len(samples) != 150 {
		t.Errorf("kept %d samples, want all 150", len(samples))
	}
	if !speechSeen {
		t.Error("speech frame was not registered")
	}
}

func TestRecorderSilenceAloneNeverStopsEarly(t *testing.T) {
	rec := newTestRecorder(100*time.Millisecond, time.Second)

	// 900 samples of pure silence, far past the silence window
	for i := 0; i < 18; i++ {
		if done, reason := rec.Add(frameOf(50, 0)); done {
			t.Fatalf("stopped with %v after %d silent samples; no speech was ever heard", reason, (i+1)*50)
		}
	}
	done, reason := rec.Add(frameOf(100, 0))
	if !done || reason != StopMaxDuration {
		t.Fatalf("got (%v, %v), want max duration stop", done, reason)
	}
	if rec.SpeechSeen() {
		t.Error("speech reported for an all-silence recording")
	}
}

func TestRecorderSpeechResetsSilenceRun(t *testing.T) {
	rec := newTestRecorder(100*time.Millisecond, 10*time.Second)

	rec.Add(frameOf(50, 800))
	rec.Add(frameOf(80, 0))
	rec.Add(frameOf(50, 800))
	if done, _ := rec.Add(frameOf(80, 0)); done {
		t.Fatal("silence run was not reset by the second speech frame")
	}
	done, reason := rec.Add(frameOf(20, 0))
	if !done || reason != StopSilence {
		t.Fatalf("got (%v, %v), want silence stop", done, reason)
	}
}

func TestRecorderMaxDurationDuringSpeech(t *testing.T) {
	rec := newTestRecorder(10*time.Second, 200*time.Millisecond)

	rec.Add(frameOf(100, 800))
	done, reason := rec.Add(frameOf(100, 800))
	if !done || reason != StopMaxDuration {
		t.Fatalf("got (%v, %v), want max duration stop at 200 samples", done, reason)
	}
	samples, speechSeen := rec.Take()
	if len(samples) != 200 || !speechSeen {
		t.Errorf("Take() = (%d samples, %v), want (200, true)", len(samples), speechSeen)
	}
}

func TestRecorderTakeEmptiesBuffer(t *testing.T) {
	rec := newTestRecorder(100*time.Millisecond, time.Second)
	rec.Add(frameOf(50, 800))

	if got := rec.Duration(); got != 50*time.Millisecond {
		t.Errorf("Duration() = %v, want 50ms at 1kHz", got)
	}

	samples, _ := rec.Take()
	if len(samples) != 50 {
		t.Fatalf("Take() returned %d samples, want 50", len(samples))
	}
	if rec.Len() != 0 {
		t.Errorf("Len() = %d after Take, want 0", rec.Len())
	}
}

func TestStopReasonString(t *testing.T) {
	cases := []struct {
		reason StopReason
		want   string
	}{
		{StopNone, "none"},
		{StopSilence, "silence"},
		{StopMaxDuration, "max_duration"},
	}
	for _, tc := range cases {
		if got := tc.reason.String(); got != tc.want {
			t.Errorf("StopReason(%d).String() = %q, want %q", tc.reason, got, tc.want)
		}
	}
}
