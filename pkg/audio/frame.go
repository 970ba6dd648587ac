package audio

import "time"

// Frame is one fixed-size chunk of mono int16 capture audio. Volume is the
// mean absolute amplitude, computed once at capture time so the wake-word and
// VAD paths share a single measurement.
type Frame struct {
	Samples []int16
	Volume  float64
	Time    time.Time
}

func NewFrame(samples []int16, at time.Time) Frame {
	return Frame{Samples: samples, Volume: VolumeOf(samples), Time: at}
}

// VolumeOf returns the mean absolute amplitude of samples.
func VolumeOf(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum int64
	for _, s := range samples {
		v := int64(s)
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return float64(sum) / float64(len(samples))
}
