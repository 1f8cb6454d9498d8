package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/papertrans/internal/api"
	"github.com/dgallion1/papertrans/internal/config"
	"github.com/dgallion1/papertrans/internal/downloader"
	"github.com/dgallion1/papertrans/internal/llm"
	"github.com/dgallion1/papertrans/internal/pipeline"
	"github.com/dgallion1/papertrans/internal/storage"
	"go.uber.org/automaxprocs/maxprocs"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("loading configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logOut := io.Writer(os.Stdout)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Error("opening log file", "path", cfg.LogFile, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = io.MultiWriter(os.Stdout, f)
	}
	log = slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(log)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.Debug("maxprocs", "msg", format, "args", args)
	})); err != nil {
		log.Warn("setting GOMAXPROCS", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients.
	store, err := storage.NewMinIOStore(ctx, cfg.MinIOConfig(), log)
	if err != nil {
		log.Error("connecting to object storage", "endpoint", cfg.MinIOEndpoint, "error", err)
		os.Exit(1)
	}
	stats := llm.NewStats(time.Hour)
	client, err := llm.NewOpenAIClient(ctx, cfg.LLMConfig(), stats, log)
	if err != nil {
		log.Error("creating model client", "error", err)
		os.Exit(1)
	}
	dl := downloader.New(store, downloader.Config{
		UserAgent:  cfg.DownloadUserAgent,
		Timeout:    cfg.DownloadTimeout,
		MaxRetries: cfg.DownloadMaxRetries,
		MaxBytes:   cfg.MaxUploadBytes,
	}, log)

	// Initialize pipeline.
	p, err := pipeline.New(pipeline.ConfigFrom(cfg, log), client, log)
	if err != nil {
		log.Error("creating pipeline", "error", err)
		os.Exit(1)
	}
	orch := pipeline.NewOrchestrator(cfg, p, store, dl, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, dl, client, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
	}()

	log.Info("starting papertrans",
		"port", cfg.Port,
		"model", client.Model(),
		"bucket", store.Bucket(),
		"workers", cfg.WorkerCount,
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-stopped
	log.Info("stopped")
}
