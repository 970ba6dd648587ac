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

	"github.com/sproutlab/bud/pkg/bus"
	"github.com/sproutlab/bud/pkg/capture"
	"github.com/sproutlab/bud/pkg/config"
	"github.com/sproutlab/bud/pkg/logging"
	"github.com/sproutlab/bud/pkg/metrics"
	"github.com/sproutlab/bud/pkg/runner"
	"github.com/sproutlab/bud/pkg/session"
	"github.com/sproutlab/bud/pkg/transcribe"
	"github.com/sproutlab/bud/pkg/wake"
)

const daemonName = "sessiond"

// frameVolumeSampler routes the per-frame volume firehose through a sampler
// while every other event goes straight to the sink.
type frameVolumeSampler struct {
	frames metrics.Observer
	rest   metrics.Observer
}

func (o frameVolumeSampler) RecordEvent(ev metrics.MetricsEvent) {
	if ev.Name == metrics.EventFrameVolume {
		o.frames.RecordEvent(ev)
		return
	}
	o.rest.RecordEvent(ev)
}

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

	model, err := wake.NewRegistry().Build(cfg.Wake.Model.Provider, cfg.Wake.Model.Settings, log)
	if err != nil {
		log.Error("wake_model_unavailable", "provider", cfg.Wake.Model.Provider, "error", err)
		os.Exit(1)
	}
	windowSamples := cfg.Wake.TargetRate * cfg.Wake.WindowMS / 1000
	scorer := wake.NewWindowScorer(model, windowSamples)

	stt, err := transcribe.NewRegistry().Build(cfg.Transcribe.Provider, cfg.Transcribe.Settings, log)
	if err != nil {
		log.Error("transcriber_unavailable", "provider", cfg.Transcribe.Provider, "error", err)
		os.Exit(1)
	}

	device := capture.NewMalgoDevice(capture.DeviceConfig{
		SampleRate:   cfg.Audio.SampleRate,
		ChunkSamples: cfg.Audio.ChunkSamples,
	}, log, obs)

	frontend, err := capture.NewFrontEnd(capture.FrontEndConfig{
		SampleRate:       cfg.Audio.SampleRate,
		TargetRate:       cfg.Wake.TargetRate,
		WakeThreshold:    cfg.Wake.Threshold,
		MinVolume:        cfg.Wake.MinVolume,
		RateLimit:        time.Duration(cfg.Wake.RateLimitMS) * time.Millisecond,
		Cooldown:         time.Duration(cfg.Wake.CooldownMS) * time.Millisecond,
		SilenceThreshold: cfg.VAD.SilenceThreshold,
		SilenceDuration:  time.Duration(cfg.Recorder.SilenceMS) * time.Millisecond,
		MaxDuration:      time.Duration(cfg.Recorder.MaxMS) * time.Millisecond,
		Denylist:         cfg.Recorder.Denylist,
	}, device, scorer, stt, b, log, obs)
	if err != nil {
		log.Error("frontend_unavailable", "error", err)
		os.Exit(1)
	}

	manager := session.NewManager(session.Config{
		IdleTimeout:    time.Duration(cfg.Session.IdleTimeoutMS) * time.Millisecond,
		GoodbyePhrases: cfg.Session.GoodbyePhrases,
	}, b, log, obs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := runner.NewLifecycleRunner(daemonName, runner.DrainFunc(func() error {
		ferr := frontend.Stop()
		merr := manager.Stop()
		if ferr != nil {
			return ferr
		}
		return merr
	}), runner.Hooks{
		OnStart: func() {
			if err := b.Start(ctx); err != nil {
				log.Error("bus_connect_failed", "broker", cfg.Bus.BrokerURL, "error", err)
				os.Exit(1)
			}
			// manager first so the phase handler is live before the first
			// detection can be published
			if err := manager.Start(ctx); err != nil {
				log.Error("session_start_failed", "error", err)
				os.Exit(1)
			}
			if err := frontend.Start(ctx); err != nil {
				log.Error("capture_start_failed", "error", err)
				os.Exit(1)
			}
			log.Info("sessiond_ready",
				"broker", cfg.Bus.BrokerURL,
				"wake_provider", cfg.Wake.Model.Provider,
				"stt_provider", cfg.Transcribe.Provider)
		},
		OnStop: func() {
			if err := model.Close(); err != nil {
				log.Warn("wake_model_close_failed", "error", err)
			}
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
	obs := frameVolumeSampler{
		frames: metrics.NewSamplingObserver(async, cfg.FrameSampleRate),
		rest:   async,
	}
	closer := func() {
		async.Close()
		if err := f.Close(); err != nil {
			log.Warn("metrics_sink_close_failed", "error", err)
		}
	}
	log.Info("metrics_sink_opened", "path", path)
	return obs, closer, nil
}
