package capture

import (
	"errors"
	"time"

	"github.com/sproutlab/bud/pkg/audio"
	"github.com/sproutlab/bud/pkg/vad"
)

// ErrRecorderActive reports an attempt to arm a second recorder while one is
// still accumulating. At most one recorder may exist per session.
var ErrRecorderActive = errors.New("recorder already active")

// StopReason says why a recording ended.
type StopReason int

const (
	StopNone StopReason = iota
	StopSilence
	StopMaxDuration
)

func (r StopReason) String() string {
	switch r {
	case StopSilence:
		return "silence"
	case StopMaxDuration:
		return "max_duration"
	default:
		return "none"
	}
}

// Recorder accumulates one utterance. Endpointing is counted in samples, not
// wall clock, so a stalled stream cannot cut a recording short. A silence
// stop requires at least one speech frame first; an utterance that never
// crosses the gate runs to the maximum and is reported as speechless. The
// caller synchronizes access.
type Recorder struct {
	gate           vad.Gate
	sampleRate     int
	silenceSamples int
	maxSamples     int

	samples    []int16
	silentRun  int
	speechSeen bool
}

func NewRecorder(gate vad.Gate, sampleRate int, silence, maxDuration time.Duration) *Recorder {
	return &Recorder{
		gate:           gate,
		sampleRate:     sampleRate,
		silenceSamples: durationSamples(sampleRate, silence),
		maxSamples:     durationSamples(sampleRate, maxDuration),
	}
}

func durationSamples(sampleRate int, d time.Duration) int {
	return int(int64(sampleRate) * d.Milliseconds() / 1000)
}

// Add appends one frame and reports whether the utterance is complete.
func (r *Recorder) Add(f audio.Frame) (bool, StopReason) {
	r.samples = append(r.samples, f.Samples...)
	if r.gate.IsSpeech(f) {
		r.speechSeen = true
		r.silentRun = 0
	} else {
		r.silentRun += len(f.Samples)
	}

	if r.speechSeen && r.silentRun >= r.silenceSamples {
		return true, StopSilence
	}
	if len(r.samples) >= r.maxSamples {
		return true, StopMaxDuration
	}
	return false, StopNone
}

// Take hands over the accumulated utterance and whether any speech was heard,
// leaving the recorder empty.
func (r *Recorder) Take() ([]int16, bool) {
	samples := r.samples
	r.samples = nil
	return samples, r.speechSeen
}

func (r *Recorder) Len() int { return len(r.samples) }

func (r *Recorder) Duration() time.Duration {
	if r.sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(r.samples)) * time.Second / time.Duration(r.sampleRate)
}

func (r *Recorder) SpeechSeen() bool { return r.speechSeen }
