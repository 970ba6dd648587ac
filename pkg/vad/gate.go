package vad

import "github.com/sproutlab/bud/pkg/audio"

// Gate classifies frames as speech or silence by mean absolute amplitude.
// It carries no temporal state; endpointing decisions belong to the caller.
type Gate struct {
	Threshold float64
}

func NewGate(threshold float64) Gate {
	return Gate{Threshold: threshold}
}

// IsSpeech reports whether the frame's volume clears the silence threshold.
// A volume exactly at the threshold counts as silence.
func (g Gate) IsSpeech(f audio.Frame) bool {
	return f.Volume > g.Threshold
}
