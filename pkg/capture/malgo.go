package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/sproutlab/bud/pkg/audio"
	"github.com/sproutlab/bud/pkg/errorsx"
	"github.com/sproutlab/bud/pkg/logging"
	"github.com/sproutlab/bud/pkg/metrics"
)

// MalgoDevice captures S16 mono PCM from the default microphone via
// miniaudio. The hardware delivers whatever period size it likes; the data
// callback re-chunks into fixed ChunkSamples frames so downstream consumers
// see a uniform stream. The callback runs on the realtime audio thread, so
// frame delivery is a non-blocking send and slow consumers lose frames
// rather than stalling capture.
type MalgoDevice struct {
	cfg DeviceConfig
	log *slog.Logger
	obs metrics.Observer

	frames    chan audio.Frame
	errs      chan error
	closeOnce sync.Once
	stopping  atomic.Bool

	mu      sync.Mutex
	mctx    *malgo.AllocatedContext
	device  *malgo.Device
	pending []byte
}

var _ Device = (*MalgoDevice)(nil)

func NewMalgoDevice(cfg DeviceConfig, log *slog.Logger, obs metrics.Observer) *MalgoDevice {
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	return &MalgoDevice{
		cfg:    cfg.withDefaults(),
		log:    logging.NewComponentLogger(log, "mic"),
		obs:    obs,
		frames: make(chan audio.Frame, 32),
		errs:   make(chan error, 4),
	}
}

func (d *MalgoDevice) Name() string { return "malgo" }

// Start opens the capture device on first call and restarts a previously
// opened device on later calls.
func (d *MalgoDevice) Start(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		if err := d.device.Start(); err != nil {
			return errorsx.Wrap(err, errorsx.ReasonDeviceOpen)
		}
		d.log.Info("mic_restarted")
		return nil
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime
	mctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonDeviceOpen)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(d.cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: d.onData,
		Stop: d.onStop,
	}
	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return errorsx.Wrap(err, errorsx.ReasonDeviceOpen)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return errorsx.Wrap(err, errorsx.ReasonDeviceOpen)
	}

	d.mctx = mctx
	d.device = device
	d.log.Info("mic_started",
		"sample_rate", d.cfg.SampleRate,
		"chunk_samples", d.cfg.ChunkSamples)
	return nil
}

func (d *MalgoDevice) Stop() error {
	d.stopping.Store(true)
	d.mu.Lock()
	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	if d.mctx != nil {
		_ = d.mctx.Uninit()
		d.mctx.Free()
		d.mctx = nil
	}
	d.mu.Unlock()
	d.closeOnce.Do(func() { close(d.frames) })
	return nil
}

func (d *MalgoDevice) Frames() <-chan audio.Frame { return d.frames }

func (d *MalgoDevice) Errors() <-chan error { return d.errs }

func (d *MalgoDevice) onData(_, input []byte, _ uint32) {
	d.pending = append(d.pending, input...)
	chunkBytes := d.cfg.ChunkSamples * 2
	for len(d.pending) >= chunkBytes {
		frame := audio.NewFrame(audio.SamplesLE(d.pending[:chunkBytes]), time.Now())
		d.pending = append(d.pending[:0], d.pending[chunkBytes:]...)
		select {
		case d.frames <- frame:
		default:
			// consumer is behind; losing a frame beats stalling the
			// realtime thread
			d.obs.RecordEvent(metrics.MetricsEvent{
				Name: metrics.EventFrameDropped,
				Time: frame.Time,
			})
		}
	}
}

// onStop fires when the stream halts outside our control, such as the
// device being unplugged. Intentional stops are filtered out.
func (d *MalgoDevice) onStop() {
	if d.stopping.Load() {
		return
	}
	err := errorsx.Wrap(errors.New("capture stream stopped"), errorsx.ReasonDeviceRead)
	select {
	case d.errs <- err:
	default:
	}
}
