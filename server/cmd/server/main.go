package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hoopship/hoopship/server/emulator"
	"github.com/hoopship/hoopship/server/internal/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("hoopship-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"addr", cfg.Server.Addr(),
		"auth_mode", cfg.Server.Auth.Mode,
		"retention", cfg.Server.Storage.Retention,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Store, WebHDFS API and the tail hub on /ws/tail.
	emu := emulator.New(emulator.Options{
		AuthMode:  cfg.Server.Auth.Mode,
		Users:     cfg.Server.Auth.Users,
		Header:    cfg.Server.Auth.EffectiveHeader(),
		Key:       cfg.Server.Auth.Key(),
		Retention: cfg.Server.Storage.Retention,
		Logger:    logger,
	})
	go emu.Run(ctx)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           emu,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.Addr())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("hoopship-server shutting down", "files", emu.Files())
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
