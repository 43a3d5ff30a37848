// Package main provides a voice-activated multi-channel audio recorder. It
// watches the input for activity, records triggered segments to WAV, mixes
// them down to stereo and hands them to a remote collector.
//
// Usage:
//
//	vadrec [-config path/to/config.json] [-monitor]
//
// If -config is not specified, the recorder looks for config.json in the
// same directory as the binary. The -monitor flag runs the level
// calibration mode instead of recording.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/pi2rec/vadrec/internal/audio"
	"github.com/pi2rec/vadrec/internal/capture"
	"github.com/pi2rec/vadrec/internal/config"
	"github.com/pi2rec/vadrec/internal/delivery"
	"github.com/pi2rec/vadrec/internal/display"
	"github.com/pi2rec/vadrec/internal/eventlog"
	"github.com/pi2rec/vadrec/internal/monitor"
	"github.com/pi2rec/vadrec/internal/notify"
	"github.com/pi2rec/vadrec/internal/segment"
	"github.com/pi2rec/vadrec/internal/status"
	"github.com/pi2rec/vadrec/internal/util"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	monitorMode := flag.Bool("monitor", false, "Run the level calibration monitor instead of recording")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	src, err := openSource(cfg)
	if err != nil {
		slog.Error("failed to open audio source", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), util.ShutdownSignals()...)
	defer stop()

	if *monitorMode {
		disp := display.NewMulti(display.NewLogDisplay())
		err := monitor.Run(ctx, src, disp, os.Stdout, cfg.Detection.Threshold)
		_ = src.Close()
		if err != nil {
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, src); err != nil {
		_ = src.Close()
		os.Exit(1)
	}
	_ = src.Close()
	slog.Info("shutdown complete")
}

// openSource starts the platform capture process wrapped in the stall
// watchdog.
func openSource(cfg *config.Config) (audio.BlockSource, error) {
	dev, err := audio.NewDeviceSource(cfg.Audio.Device, cfg.Format())
	if err != nil {
		return nil, err
	}
	return audio.NewTimedSource(dev), nil
}

// run wires the pipeline and blocks until shutdown. A stall error is
// returned so main can exit nonzero for the process supervisor.
func run(ctx context.Context, cfg *config.Config, src audio.BlockSource) error {
	if err := util.CheckPathWritable(cfg.Paths.RecordingsDir); err != nil {
		slog.Error("recordings directory is not writable", "dir", cfg.Paths.RecordingsDir, "error", err)
		return err
	}

	events, err := eventlog.NewLogger(cfg.Paths.EventLog)
	if err != nil {
		slog.Warn("event log disabled", "error", err)
		events = nil
	}
	defer func() { _ = events.Close() }()

	store, err := segment.NewStore(cfg.Paths.RecordingsDir, cfg.Format())
	if err != nil {
		slog.Error("failed to create segment store", "error", err)
		return err
	}

	machine := segment.New(segment.Config{
		Threshold:      cfg.Detection.Threshold,
		BlockDuration:  cfg.BlockDuration(),
		SilenceTimeout: cfg.SilenceTimeout(),
		MinDuration:    cfg.MinRecordDuration(),
	}, store)

	processor := &segment.Processor{
		Channels:   cfg.Audio.Channels,
		SampleRate: cfg.Audio.SampleRate,
		Policy:     cfg.MixPolicy(),
		Normalize:  cfg.Normalize(),
	}

	hostname, _ := os.Hostname()
	emailNotifier := notify.NewDeliveryFailureNotifier(cfg.Notifications.Email, hostname)

	var uploader *delivery.Uploader
	if cfg.Delivery.Enabled {
		uploader = delivery.NewUploader(delivery.UploaderOptions{
			URL:     cfg.Delivery.URL,
			Timeout: cfg.DeliveryTimeout(),
			Events:  events,
			OnFailure: func(filename string, result delivery.Result, err error) {
				emailNotifier.Notify(filename, string(result.Category), err.Error())
			},
		})
	}

	var archiver *delivery.Archiver
	if cfg.Archive.IsConfigured() {
		archiver = delivery.NewArchiver(cfg.Archive, events)
	}

	hub := status.NewHub()
	disp := display.NewMulti(display.NewLogDisplay(), hub)

	versionChecker := NewVersionChecker()
	defer versionChecker.Stop()

	server := status.NewServer(cfg.Status.Port, hub, events, versionChecker.Info)
	go func() {
		if err := server.Start(); err != nil {
			slog.Error("status server failed", "error", err)
		}
	}()

	var pinger *notify.Pinger
	if cfg.Notifications.Zabbix.IsConfigured() {
		pinger = notify.NewPinger(cfg.Notifications.Zabbix, hub.State)
	}

	finisher := segment.NewFinisher(processor, func(a segment.Artifact) {
		if uploader != nil {
			uploader.Enqueue(a.Path)
		} else {
			slog.Info("delivery disabled, saved locally only", "file", a.Path)
		}
		if archiver != nil {
			archiver.Enqueue(a.Path)
		}
	})

	loop := capture.New(src, machine, disp, events, func(c segment.Completed) {
		finisher.Enqueue(c)
	})
	runErr := loop.Run(ctx)

	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("status server shutdown error", "error", err)
	}

	if pinger != nil {
		pinger.Stop()
	}
	// Drain processing before delivery so the final segment's artifact is
	// written and its job enqueued before the workers stop.
	finisher.Stop(shutdownTimeout)
	if uploader != nil {
		uploader.Stop(shutdownTimeout)
	}
	if archiver != nil {
		archiver.Stop(shutdownTimeout)
	}

	if errors.Is(runErr, audio.ErrReadStall) {
		return runErr
	}
	return nil
}
