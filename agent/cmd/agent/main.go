package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hoopship/hoopship/agent/internal/buffer"
	"github.com/hoopship/hoopship/agent/internal/config"
	"github.com/hoopship/hoopship/agent/internal/format"
	"github.com/hoopship/hoopship/agent/internal/hoop"
	"github.com/hoopship/hoopship/agent/internal/input"
	"github.com/hoopship/hoopship/agent/internal/metrics"
	"github.com/hoopship/hoopship/agent/internal/partition"
	"github.com/hoopship/hoopship/agent/internal/shipper"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	// Logs go to stderr; stdin may carry events and stdout stays free.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("hoopship-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	a := cfg.Agent
	slog.Info("config loaded",
		"hoop_server", a.HoopServer,
		"path", a.Path,
		"inputs", len(a.Inputs),
		"flush_interval", a.FlushInterval,
	)

	// Everything below was validated by Load.
	formatter, err := format.New(a.FormatConfig())
	if err != nil {
		slog.Error("invalid output settings", "err", err)
		os.Exit(1)
	}
	router, err := partition.NewRouter(a.Path, a.Location())
	if err != nil {
		slog.Error("invalid path", "err", err)
		os.Exit(1)
	}
	codec, err := shipper.NewCodec(a.Compress)
	if err != nil {
		slog.Error("invalid compression", "err", err)
		os.Exit(1)
	}

	reg := metrics.New()
	endpoint := a.Endpoint()
	client := hoop.New(endpoint, hoop.WithLogger(logger), hoop.WithObserver(reg))

	ship, err := shipper.New(shipper.Options{
		Formatter: formatter,
		Router:    router,
		Client:    client,
		Endpoint:  endpoint,
		Codec:     codec,
		Logger:    logger,
		Metrics:   reg,
	})
	if err != nil {
		slog.Error("failed to build shipper", "err", err)
		os.Exit(1)
	}

	buf, err := buffer.New(buffer.Options{
		Writer:        ship,
		KeyFunc:       ship.Key,
		FlushInterval: a.FlushInterval,
		SliceWait:     a.TimeSliceWait,
		RetryLimit:    a.RetryLimit,
		ChunkLimit:    a.BufferChunkLimit,
		Logger:        logger,
		Metrics:       reg,
	})
	if err != nil {
		slog.Error("failed to build buffer", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Only formatter settings are hot-swapped; the rest needs a restart.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			f, err := format.New(updated.Agent.FormatConfig())
			if err != nil {
				slog.Error("config hot-reload rejected", "err", err)
				return
			}
			ship.SetFormatter(f)
			slog.Info("output settings hot-reloaded")
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	if a.MetricsAddr != "" {
		go func() {
			if err := reg.Serve(ctx, a.MetricsAddr); err != nil {
				slog.Error("metrics server stopped", "err", err)
			}
		}()
	}

	emit := func(ev format.Event) {
		buf.AppendAt(ev.Time, ship.Format(ev.Tag, ev.Time, ev.Record))
	}

	for _, in := range a.Inputs {
		in := in
		go func() {
			var err error
			switch in.Type {
			case "stdin":
				n := &input.NDJSON{Tag: in.Tag, Logger: logger, Metrics: reg}
				err = n.Read(ctx, os.Stdin, emit)
			case "syslog":
				s := &input.Syslog{Addr: in.Listen, TagPrefix: in.TagPrefix, Logger: logger, Metrics: reg}
				err = s.Listen(ctx, emit)
			}
			if err != nil {
				slog.Error("input stopped", "type", in.Type, "err", err)
			}
		}()
		slog.Info("registered input", "type", in.Type, "listen", in.Listen)
	}
	if len(a.Inputs) == 0 {
		slog.Warn("no inputs configured, agent will idle")
	}

	// Run drains the buffer after ctx is cancelled.
	buf.Run(ctx)
	slog.Info("hoopship-agent stopped", "pending_chunks", buf.Pending())
}
