package capture

import (
	"context"
	"sync"
	"time"

	"github.com/sproutlab/bud/pkg/audio"
)

// MockDevice is a pushable stand-in for a real microphone.
type MockDevice struct {
	frames chan audio.Frame
	errs   chan error

	mu         sync.Mutex
	startCalls int
	startErrs  []error
	stopped    bool
}

var _ Device = (*MockDevice)(nil)

func NewMockDevice() *MockDevice {
	return &MockDevice{
		frames: make(chan audio.Frame, 64),
		errs:   make(chan error, 8),
	}
}

func (d *MockDevice) Name() string { return "mock" }

func (d *MockDevice) Start(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startCalls++
	if len(d.startErrs) > 0 {
		err := d.startErrs[0]
		d.startErrs = d.startErrs[1:]
		return err
	}
	return nil
}

func (d *MockDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.stopped {
		d.stopped = true
		close(d.frames)
	}
	return nil
}

func (d *MockDevice) Frames() <-chan audio.Frame { return d.frames }

func (d *MockDevice) Errors() <-chan error { return d.errs }

// Push delivers one frame as if the hardware produced it.
func (d *MockDevice) Push(samples []int16, at time.Time) {
	d.frames <- audio.NewFrame(samples, at)
}

func (d *MockDevice) PushError(err error) {
	d.errs <- err
}

// FailStarts queues errors returned by the next Start calls, in order.
func (d *MockDevice) FailStarts(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startErrs = append(d.startErrs, errs...)
}

func (d *MockDevice) StartCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startCalls
}
