package capture

import (
	"context"

	"github.com/sproutlab/bud/pkg/audio"
)

// Device is a continuous microphone stream delivering fixed-size PCM frames.
// The device owns both channels for its whole lifetime; Frames is closed by
// Stop, Errors is never closed. A Start after a reported error restarts the
// stream in place.
type Device interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Frames() <-chan audio.Frame
	Errors() <-chan error
}

// DeviceConfig sizes the capture stream. ChunkSamples is the fixed frame
// length handed downstream regardless of the hardware period size.
type DeviceConfig struct {
	SampleRate   int
	ChunkSamples int
}

func (c DeviceConfig) withDefaults() DeviceConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.ChunkSamples <= 0 {
		c.ChunkSamples = 2000
	}
	return c
}
