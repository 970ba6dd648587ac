package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/sproutlab/bud/pkg/bus"
	"github.com/sproutlab/bud/pkg/config"
	"github.com/sproutlab/bud/pkg/logging"
	"github.com/sproutlab/bud/pkg/session"
)

// probeTopic is only ever used by doctor; nothing else subscribes to it.
const probeTopic = "bud/doctor/probe"

var (
	okMark   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")).Render("✓")
	failMark = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true).Render("✗")
	warnMark = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")).Render("!")
	dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	timeout := flag.Duration("timeout", 5*time.Second, "probe round-trip deadline")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
		os.Exit(1)
	}
	// keep the report clean; only genuine problems get logged
	log := logging.InitLogger(slog.LevelWarn, "text")

	b := bus.NewMQTT(bus.MQTTConfig{
		BrokerURL:   cfg.Bus.BrokerURL,
		ClientID:    bus.ClientID(cfg.Bus.ClientID, "doctor"),
		Username:    cfg.Bus.Username,
		Password:    cfg.Bus.Password,
		KeepAlive:   time.Duration(cfg.Bus.KeepAliveS) * time.Second,
		PingTimeout: time.Duration(cfg.Bus.PingTimeoutS) * time.Second,
	}, log)

	fmt.Printf("bud doctor %s\n\n", dim.Render("("+cfg.Bus.BrokerURL+")"))

	connectCtx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	start := time.Now()
	if err := b.Start(connectCtx); err != nil {
		fmt.Printf("  %s broker unreachable: %v\n", failMark, err)
		os.Exit(1)
	}
	fmt.Printf("  %s broker connected %s\n", okMark, dim.Render(time.Since(start).Round(time.Millisecond).String()))
	defer func() { _ = b.Stop() }()

	if !roundTrip(b, *timeout) {
		os.Exit(1)
	}

	reportRetained(b, bus.TopicSessionState, func(payload string) string {
		if _, ok := session.ParseState(payload); !ok {
			return fmt.Sprintf("%q (unrecognized phase)", payload)
		}
		return fmt.Sprintf("%q", payload)
	})
	reportRetained(b, bus.TopicEmotion, func(payload string) string {
		return fmt.Sprintf("%q", payload)
	})
}

// roundTrip publishes a uuid-stamped probe and waits for it to come back
// through the broker. This exercises publish, subscribe, and delivery in one
// go, which is what the rest of the system lives on.
func roundTrip(b bus.Bus, timeout time.Duration) bool {
	token := uuid.NewString()
	echoed := make(chan struct{}, 1)

	if err := b.Subscribe(probeTopic, func(_ string, payload []byte) {
		if string(payload) == token {
			select {
			case echoed <- struct{}{}:
			default:
			}
		}
	}); err != nil {
		fmt.Printf("  %s probe subscribe failed: %v\n", failMark, err)
		return false
	}

	sent := time.Now()
	if err := b.Publish(probeTopic, token, false); err != nil {
		fmt.Printf("  %s probe publish failed: %v\n", failMark, err)
		return false
	}
	select {
	case <-echoed:
		fmt.Printf("  %s message round-trip %s\n", okMark, dim.Render(time.Since(sent).Round(time.Millisecond).String()))
		return true
	case <-time.After(timeout):
		fmt.Printf("  %s message round-trip timed out after %s\n", failMark, timeout)
		return false
	}
}

// reportRetained waits briefly for the retained payload the broker replays on
// subscribe. Nothing retained is a warning, not a failure: the broker can be
// healthy before any daemon has started.
func reportRetained(b bus.Bus, topic string, describe func(string) string) {
	got := make(chan string, 1)
	if err := b.Subscribe(topic, func(_ string, payload []byte) {
		select {
		case got <- string(payload):
		default:
		}
	}); err != nil {
		fmt.Printf("  %s %s subscribe failed: %v\n", failMark, topic, err)
		return
	}
	select {
	case payload := <-got:
		fmt.Printf("  %s %s retained %s\n", okMark, topic, describe(payload))
	case <-time.After(time.Second):
		fmt.Printf("  %s %s nothing retained %s\n", warnMark, topic, dim.Render("(is sessiond running?)"))
	}
}
