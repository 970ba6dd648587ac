package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sproutlab/bud/pkg/bus"
	"github.com/sproutlab/bud/pkg/config"
	"github.com/sproutlab/bud/pkg/logging"
	"github.com/sproutlab/bud/pkg/redact"
	"github.com/sproutlab/bud/pkg/runner"
	"github.com/sproutlab/bud/pkg/scribe"
)

const daemonName = "scribed"

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", daemonName, err)
		os.Exit(1)
	}
	log := logging.InitLogger(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	slog.SetDefault(log)

	redact.SetEnabled(cfg.Scribe.RedactPII)

	b := bus.NewMQTT(bus.MQTTConfig{
		BrokerURL:   cfg.Bus.BrokerURL,
		ClientID:    bus.ClientID(cfg.Bus.ClientID, daemonName),
		Username:    cfg.Bus.Username,
		Password:    cfg.Bus.Password,
		KeepAlive:   time.Duration(cfg.Bus.KeepAliveS) * time.Second,
		PingTimeout: time.Duration(cfg.Bus.PingTimeoutS) * time.Second,
	}, log)

	journal := scribe.NewJournal(cfg.Scribe.LogDir, log)

	store, err := scribe.OpenStore(cfg.Scribe.DBPath)
	if err != nil {
		log.Error("store_unavailable", "path", cfg.Scribe.DBPath, "error", err)
		os.Exit(1)
	}
	if n, err := store.Count(context.Background()); err == nil {
		log.Info("store_opened", "path", cfg.Scribe.DBPath, "sessions", n)
	}

	tracker := scribe.NewTracker(b, log, journal, store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := runner.NewLifecycleRunner(daemonName, runner.DrainFunc(tracker.Stop), runner.Hooks{
		OnStart: func() {
			if err := b.Start(ctx); err != nil {
				log.Error("bus_connect_failed", "broker", cfg.Bus.BrokerURL, "error", err)
				os.Exit(1)
			}
			if err := tracker.Start(ctx); err != nil {
				log.Error("tracker_start_failed", "error", err)
				os.Exit(1)
			}
			log.Info("scribed_ready",
				"broker", cfg.Bus.BrokerURL,
				"log_dir", cfg.Scribe.LogDir,
				"db_path", cfg.Scribe.DBPath,
				"redact_pii", cfg.Scribe.RedactPII)
		},
		OnStop: func() {
			if n, err := store.Count(context.Background()); err == nil {
				log.Info("store_totals", "sessions", n)
			}
			if err := store.Close(); err != nil {
				log.Warn("store_close_failed", "error", err)
			}
			if err := journal.Close(); err != nil {
				log.Warn("journal_close_failed", "error", err)
			}
			if err := b.Stop(); err != nil {
				log.Warn("bus_stop_failed", "error", err)
			}
		},
	}, 10*time.Second, log)

	if err := r.Run(ctx); err != nil {
		log.Error("shutdown_incomplete", "error", err)
		os.Exit(1)
	}
}
