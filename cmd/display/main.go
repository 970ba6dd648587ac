package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sproutlab/bud/pkg/bus"
	"github.com/sproutlab/bud/pkg/config"
	"github.com/sproutlab/bud/pkg/logging"
)

const daemonName = "display"

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", daemonName, err)
		os.Exit(1)
	}

	// the TUI owns stdout, so logs go to a file
	if err := os.MkdirAll(cfg.Metrics.Dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", daemonName, err)
		os.Exit(1)
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.Metrics.Dir, "display.log"),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", daemonName, err)
		os.Exit(1)
	}
	defer logFile.Close()
	log := logging.InitFileLogger(logFile, logging.ParseLevel(cfg.Log.Level))

	b := bus.NewMQTT(bus.MQTTConfig{
		BrokerURL:   cfg.Bus.BrokerURL,
		ClientID:    bus.ClientID(cfg.Bus.ClientID, daemonName),
		Username:    cfg.Bus.Username,
		Password:    cfg.Bus.Password,
		KeepAlive:   time.Duration(cfg.Bus.KeepAliveS) * time.Second,
		PingTimeout: time.Duration(cfg.Bus.PingTimeoutS) * time.Second,
	}, log)

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := b.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: broker %s unreachable: %v\n", daemonName, cfg.Bus.BrokerURL, err)
		os.Exit(1)
	}

	events := make(chan busEvent, 64)
	forward := func(topic string, payload []byte) {
		select {
		case events <- busEvent{topic: topic, payload: string(payload)}:
		default:
			// UI is behind; retained phase topics repair any gap
		}
	}
	topics := []string{
		bus.TopicSessionState,
		bus.TopicEmotion,
		bus.TopicWakeDetected,
		bus.TopicTranscription,
		bus.TopicLLMResponse,
		bus.TopicSpeaking,
	}
	for _, topic := range topics {
		if err := b.Subscribe(topic, forward); err != nil {
			fmt.Fprintf(os.Stderr, "%s: subscribe %s: %v\n", daemonName, topic, err)
			os.Exit(1)
		}
	}
	log.Info("display_connected", "broker", cfg.Bus.BrokerURL)

	p := tea.NewProgram(newModel(events), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", daemonName, err)
		os.Exit(1)
	}
	if err := b.Stop(); err != nil {
		log.Warn("bus_stop_failed", "error", err)
	}
}
