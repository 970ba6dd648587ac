package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sproutlab/bud/pkg/brain"
	"github.com/sproutlab/bud/pkg/bus"
	"github.com/sproutlab/bud/pkg/config"
	"github.com/sproutlab/bud/pkg/logging"
	"github.com/sproutlab/bud/pkg/metrics"
	"github.com/sproutlab/bud/pkg/runner"
)

const daemonName = "braind"

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

	obs, closeObs, err := openMetricsSink(cfg.Metrics, log)
	if err != nil {
		log.Error("metrics_sink_unavailable", "error", err)
		os.Exit(1)
	}

	b := bus.NewMQTT(bus.MQTTConfig{
		BrokerURL:   cfg.Bus.BrokerURL,
		ClientID:    bus.ClientID(cfg.Bus.ClientID, daemonName),
		Username:    cfg.Bus.Username,
		Password:    cfg.Bus.Password,
		KeepAlive:   time.Duration(cfg.Bus.KeepAliveS) * time.Second,
		PingTimeout: time.Duration(cfg.Bus.PingTimeoutS) * time.Second,
	}, log)

	adapter, err := brain.NewRegistry().Build(cfg.Brain.Model.Provider, cfg.Brain.Model.Settings, log)
	if err != nil {
		log.Error("llm_adapter_unavailable", "provider", cfg.Brain.Model.Provider, "error", err)
		os.Exit(1)
	}

	service := brain.NewService(brain.ServiceConfig{
		SystemPrompt:    cfg.Brain.SystemPrompt,
		RecentExchanges: cfg.Brain.RecentExchanges,
		MaxExchanges:    cfg.Brain.MaxExchanges,
		Timeout:         time.Duration(cfg.Brain.TimeoutMS) * time.Millisecond,
	}, adapter, b, log, obs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := runner.NewLifecycleRunner(daemonName, runner.DrainFunc(service.Stop), runner.Hooks{
		OnStart: func() {
			if err := b.Start(ctx); err != nil {
				log.Error("bus_connect_failed", "broker", cfg.Bus.BrokerURL, "error", err)
				os.Exit(1)
			}
			if err := service.Start(ctx); err != nil {
				log.Error("brain_start_failed", "error", err)
				os.Exit(1)
			}
			log.Info("braind_ready", "broker", cfg.Bus.BrokerURL, "provider", adapter.Name())
		},
		OnStop: func() {
			if err := b.Stop(); err != nil {
				log.Warn("bus_stop_failed", "error", err)
			}
			closeObs()
		},
	}, 10*time.Second, log)

	if err := r.Run(ctx); err != nil {
		log.Error("shutdown_incomplete", "error", err)
		os.Exit(1)
	}
}

func openMetricsSink(cfg config.MetricsConfig, log *slog.Logger) (metrics.Observer, func(), error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, nil, err
	}
	path := filepath.Join(cfg.Dir, "metrics_"+daemonName+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	async := metrics.NewAsyncObserver(metrics.NewJSONLObserver(f), cfg.Buffer)
	closer := func() {
		async.Close()
		if err := f.Close(); err != nil {
			log.Warn("metrics_sink_close_failed", "error", err)
		}
	}
	log.Info("metrics_sink_opened", "path", path)
	return async, closer, nil
}
