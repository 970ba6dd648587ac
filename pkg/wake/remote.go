package wake

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sproutlab/bud/pkg/audio"
	"github.com/sproutlab/bud/pkg/configutil"
	"github.com/sproutlab/bud/pkg/errorsx"
)

// RemoteConfig configures the scoring sidecar connection.
type RemoteConfig struct {
	URL     string
	Timeout time.Duration
}

type remoteSettings struct {
	URL       string `mapstructure:"url"`
	TimeoutMS *int   `mapstructure:"timeout_ms"`
}

// RemoteModel scores windows via a local sidecar speaking a small WebSocket
// protocol: one binary message of little-endian PCM in, one JSON
// {"score": s} text message back. The connection is re-dialed lazily after
// an error so a restarted sidecar picks up without restarting the daemon.
type RemoteModel struct {
	cfg RemoteConfig
	log *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

var _ Model = (*RemoteModel)(nil)

func NewRemoteModel(cfg RemoteConfig, log *slog.Logger) *RemoteModel {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &RemoteModel{cfg: cfg, log: log}
}

func NewRemoteModelFromSettings(settings map[string]any, log *slog.Logger) (*RemoteModel, error) {
	if err := configutil.ValidateSettings(settings, configutil.Schema{
		Required: []string{"url"},
		Optional: []string{"timeout_ms"},
	}); err != nil {
		return nil, fmt.Errorf("wake remote settings: %w", err)
	}
	var s remoteSettings
	if err := configutil.DecodeSettings(settings, &s); err != nil {
		return nil, err
	}
	return NewRemoteModel(RemoteConfig{
		URL:     s.URL,
		Timeout: time.Duration(configutil.IntValue(s.TimeoutMS, 2000)) * time.Millisecond,
	}, log), nil
}

func (m *RemoteModel) Name() string { return "remote" }

type scoreReply struct {
	Score float64 `json:"score"`
}

func (m *RemoteModel) Predict(ctx context.Context, window []int16) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, err := m.ensureConn(ctx)
	if err != nil {
		return 0, errorsx.Wrap(err, errorsx.ReasonWakeModelConnect)
	}

	deadline := time.Now().Add(m.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.BinaryMessage, audio.BytesLE(window)); err != nil {
		m.drop()
		return 0, errorsx.Wrap(err, errorsx.ReasonWakeScore)
	}
	_ = conn.SetReadDeadline(deadline)
	_, data, err := conn.ReadMessage()
	if err != nil {
		m.drop()
		return 0, errorsx.Wrap(err, errorsx.ReasonWakeScore)
	}

	var reply scoreReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return 0, errorsx.Wrap(err, errorsx.ReasonWakeScore)
	}
	return reply.Score, nil
}

func (m *RemoteModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	_ = m.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := m.conn.Close()
	m.conn = nil
	return err
}

func (m *RemoteModel) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	if m.conn != nil {
		return m.conn, nil
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: m.cfg.Timeout,
	}
	conn, _, err := dialer.DialContext(ctx, m.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	m.conn = conn
	m.log.Info("wake_model_connected", "url", m.cfg.URL)
	return conn, nil
}

// drop closes the connection after a send/recv failure; the next Predict
// re-dials.
func (m *RemoteModel) drop() {
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}
