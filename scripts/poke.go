// Command poke pushes messages onto the bus by hand, for exercising the
// daemons without a microphone: make the robot speak a line, feed it a
// question, or force the session back to idle.
//
//	go run scripts/poke.go -say "Hello there"
//	go run scripts/poke.go -ask "why is the sky blue"
//	go run scripts/poke.go -reset
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sproutlab/bud/pkg/bus"
	"github.com/sproutlab/bud/pkg/config"
	"github.com/sproutlab/bud/pkg/logging"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	say := flag.String("say", "", "text to speak through voiced")
	ask := flag.String("ask", "", "question to run through braind")
	reset := flag.Bool("reset", false, "force the session back to idle")
	flag.Parse()

	var topic, payload string
	switch {
	case *say != "":
		topic, payload = bus.TopicLLMResponse, *say
	case *ask != "":
		topic, payload = bus.TopicLLMRequest, *ask
	case *reset:
		topic, payload = bus.TopicSessionCommand, bus.CommandReset
	default:
		fmt.Println("usage: poke -say TEXT | -ask QUESTION | -reset [-config=...]")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Println("config error:", err)
		os.Exit(1)
	}
	log := logging.InitLogger(slog.LevelWarn, "text")

	b := bus.NewMQTT(bus.MQTTConfig{
		BrokerURL:   cfg.Bus.BrokerURL,
		ClientID:    bus.ClientID(cfg.Bus.ClientID, "poke"),
		Username:    cfg.Bus.Username,
		Password:    cfg.Bus.Password,
		KeepAlive:   time.Duration(cfg.Bus.KeepAliveS) * time.Second,
		PingTimeout: time.Duration(cfg.Bus.PingTimeoutS) * time.Second,
	}, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.Start(ctx); err != nil {
		fmt.Println("connect error:", err)
		os.Exit(1)
	}
	if err := b.Publish(topic, payload, false); err != nil {
		fmt.Println("publish error:", err)
		os.Exit(1)
	}
	// QoS 1 delivery is confirmed asynchronously; give it a beat
	time.Sleep(500 * time.Millisecond)
	_ = b.Stop()
	fmt.Printf("published %s\n", topic)
}
