package voice

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/sproutlab/bud/pkg/errorsx"
	"github.com/sproutlab/bud/pkg/logging"
)

// Player drains one complete PCM clip to the speaker, blocking until playback
// finishes or ctx is canceled.
type Player interface {
	Name() string
	Play(ctx context.Context, pcm []byte, sampleRate int) error
	Close() error
}

// OtoPlayer plays s16le mono clips through the default output device. The
// audio context is created on first use at the clip's sample rate; the OS
// mixer allows only one context per process, so every later clip must arrive
// at that same rate.
type OtoPlayer struct {
	bufferMS int
	log      *slog.Logger

	mu   sync.Mutex
	ctx  *oto.Context
	rate int
}

var _ Player = (*OtoPlayer)(nil)

func NewOtoPlayer(bufferMS int, log *slog.Logger) *OtoPlayer {
	return &OtoPlayer{
		bufferMS: bufferMS,
		log:      logging.NewComponentLogger(log, "speaker"),
	}
}

func (p *OtoPlayer) Name() string { return "oto" }

func (p *OtoPlayer) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	if len(pcm) == 0 {
		return nil
	}
	octx, err := p.context(sampleRate)
	if err != nil {
		return err
	}

	player := octx.NewPlayer(bytes.NewReader(pcm))
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return errorsx.Wrap(ctx.Err(), errorsx.ReasonPlayback)
		case <-ticker.C:
		}
	}
	if err := player.Err(); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonPlayback)
	}
	return nil
}

func (p *OtoPlayer) Close() error {
	// oto contexts have no teardown; suspending releases the device politely
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx != nil {
		return p.ctx.Suspend()
	}
	return nil
}

func (p *OtoPlayer) context(sampleRate int) (*oto.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx != nil {
		if p.rate != sampleRate {
			return nil, errorsx.Errorf(errorsx.ReasonPlayback,
				"speaker opened at %d Hz, clip is %d Hz", p.rate, sampleRate)
		}
		return p.ctx, nil
	}

	opts := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	}
	if p.bufferMS > 0 {
		opts.BufferSize = time.Duration(p.bufferMS) * time.Millisecond
	}
	octx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonPlayback)
	}
	<-ready
	p.ctx = octx
	p.rate = sampleRate
	p.log.Info("speaker_ready", "sample_rate", sampleRate, "buffer_ms", p.bufferMS)
	return octx, nil
}

// MockPlayer records every clip it is asked to play.
type MockPlayer struct {
	mu     sync.Mutex
	err    error
	delay  time.Duration
	clips  [][]byte
	rates  []int
	closed bool
}

var _ Player = (*MockPlayer)(nil)

func NewMockPlayer() *MockPlayer {
	return &MockPlayer{}
}

func (p *MockPlayer) Name() string { return "mock" }

func (p *MockPlayer) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	p.mu.Lock()
	p.clips = append(p.clips, append([]byte(nil), pcm...))
	p.rates = append(p.rates, sampleRate)
	err := p.err
	delay := p.delay
	p.mu.Unlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return errorsx.Wrap(ctx.Err(), errorsx.ReasonPlayback)
		case <-time.After(delay):
		}
	}
	return err
}

func (p *MockPlayer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// FailWith makes every subsequent Play return err.
func (p *MockPlayer) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Delay makes Play block for d, simulating clip duration.
func (p *MockPlayer) Delay(d time.Duration) {
	p.mu.Lock()
	p.delay = d
	p.mu.Unlock()
}

// PlayCount reports how many clips were played.
func (p *MockPlayer) PlayCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clips)
}

// LastClip returns the most recent clip and its sample rate.
func (p *MockPlayer) LastClip() ([]byte, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.clips) == 0 {
		return nil, 0
	}
	return p.clips[len(p.clips)-1], p.rates[len(p.rates)-1]
}
