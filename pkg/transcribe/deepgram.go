package transcribe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/sproutlab/bud/pkg/audio"
	"github.com/sproutlab/bud/pkg/configutil"
	"github.com/sproutlab/bud/pkg/errorsx"
	"github.com/sproutlab/bud/pkg/logging"
)

type DeepgramConfig struct {
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
}

func (c DeepgramConfig) withDefaults() DeepgramConfig {
	if c.Model == "" {
		c.Model = "nova-2"
	}
	if c.Language == "" {
		c.Language = "en-US"
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	return c
}

type deepgramSettings struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	Language  string `mapstructure:"language"`
	TimeoutMS *int   `mapstructure:"timeout_ms"`
}

// Deepgram transcribes a buffered utterance by replaying it through the live
// WebSocket API and collecting the final transcripts. Each call owns its own
// connection; utterances are short, so setup cost is acceptable and no state
// leaks between recordings.
type Deepgram struct {
	cfg DeepgramConfig
	log *slog.Logger
}

var _ Transcriber = (*Deepgram)(nil)

func NewDeepgram(cfg DeepgramConfig, log *slog.Logger) *Deepgram {
	if log == nil {
		log = slog.Default()
	}
	return &Deepgram{
		cfg: cfg.withDefaults(),
		log: logging.NewComponentLogger(log, "deepgram"),
	}
}

func NewDeepgramFromSettings(settings map[string]any, log *slog.Logger) (*Deepgram, error) {
	if err := configutil.ValidateSettings(settings, configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"model", "language", "timeout_ms"},
	}); err != nil {
		return nil, fmt.Errorf("deepgram settings: %w", err)
	}
	var s deepgramSettings
	if err := configutil.DecodeSettings(settings, &s); err != nil {
		return nil, err
	}
	return NewDeepgram(DeepgramConfig{
		APIKey:   s.APIKey,
		Model:    s.Model,
		Language: s.Language,
		Timeout:  time.Duration(configutil.IntValue(s.TimeoutMS, 20000)) * time.Millisecond,
	}, log), nil
}

func (d *Deepgram) Name() string { return "deepgram" }

func (d *Deepgram) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	cb := newCollector(d.log)

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.cfg.Model,
		Language:       d.cfg.Language,
		Encoding:       "linear16",
		SampleRate:     sampleRate,
		InterimResults: false,
		SmartFormat:    true,
	}

	dgClient, err := client.NewWSUsingCallback(cctx, d.cfg.APIKey, clientOptions, transcriptOptions, cb)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTranscribeConnect)
	}
	if connected := dgClient.Connect(); !connected {
		return "", errorsx.Errorf(errorsx.ReasonTranscribeConnect, "deepgram connection failed")
	}

	pipeReader, pipeWriter := io.Pipe()
	go func() {
		if err := dgClient.Stream(pipeReader); err != nil && cctx.Err() == nil {
			d.log.Error("deepgram_stream_error", "error", err)
		}
	}()

	if _, err := pipeWriter.Write(audio.BytesLE(pcm)); err != nil {
		dgClient.Stop()
		return "", errorsx.Wrap(err, errorsx.ReasonTranscribeStream)
	}
	_ = pipeWriter.Close()

	// Stop sends CloseStream; the server flushes remaining finals before the
	// connection closes and the collector unblocks.
	dgClient.Stop()

	select {
	case <-cb.done:
	case <-cctx.Done():
		return "", errorsx.Wrap(cctx.Err(), errorsx.ReasonTranscribeStream)
	}

	if msg := cb.errMessage(); msg != "" {
		return "", errorsx.Errorf(errorsx.ReasonTranscribeStream, "deepgram: %s", msg)
	}
	return cb.text(), nil
}

// collector implements the SDK's LiveMessageCallback, accumulating final
// transcripts until the connection closes.
type collector struct {
	log  *slog.Logger
	done chan struct{}
	once sync.Once

	mu         sync.Mutex
	parts      []string
	failure    string
	metaLogged bool
}

var _ msginterfaces.LiveMessageCallback = (*collector)(nil)

func newCollector(log *slog.Logger) *collector {
	return &collector{log: log, done: make(chan struct{})}
}

func (c *collector) Open(*msginterfaces.OpenResponse) error {
	c.log.Debug("deepgram_connection_opened")
	return nil
}

func (c *collector) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	transcript := mr.Channel.Alternatives[0].Transcript
	if transcript == "" {
		return nil
	}
	if mr.IsFinal || mr.SpeechFinal {
		c.mu.Lock()
		c.parts = append(c.parts, transcript)
		c.mu.Unlock()
	}
	return nil
}

func (c *collector) Metadata(md *msginterfaces.MetadataResponse) error {
	c.mu.Lock()
	logged := c.metaLogged
	c.metaLogged = true
	c.mu.Unlock()
	if !logged {
		c.log.Debug("deepgram_metadata_received", "request_id", md.RequestID)
	}
	return nil
}

func (c *collector) SpeechStarted(*msginterfaces.SpeechStartedResponse) error { return nil }

func (c *collector) UtteranceEnd(*msginterfaces.UtteranceEndResponse) error { return nil }

func (c *collector) Close(*msginterfaces.CloseResponse) error {
	c.finish("")
	return nil
}

func (c *collector) Error(er *msginterfaces.ErrorResponse) error {
	c.log.Error("deepgram_error", "error_code", er.ErrCode, "error_message", er.ErrMsg)
	c.finish(er.ErrCode + ": " + er.ErrMsg)
	return nil
}

func (c *collector) UnhandledEvent(byData []byte) error {
	c.log.Debug("deepgram_unhandled_event", "data", string(byData))
	return nil
}

func (c *collector) finish(failure string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.failure = failure
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *collector) errMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

func (c *collector) text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.TrimSpace(strings.Join(c.parts, " "))
}
