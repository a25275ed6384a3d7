package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/clipforge/renderd/config"
	"github.com/clipforge/renderd/internal/adapter/compositor/ffmpeg"
	HTTPAdapter "github.com/clipforge/renderd/internal/adapter/http"
	sqlitestore "github.com/clipforge/renderd/internal/adapter/storage/sqlite"
	"github.com/clipforge/renderd/internal/adapter/synth"
	"github.com/clipforge/renderd/internal/infrastructure/logger"
	"github.com/clipforge/renderd/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Error.Printf("failed to load config: %v", err)
		os.Exit(1)
	}

	profiles, err := config.LoadProfiles(cfg.ProfilesPath)
	if err != nil {
		logger.Error.Printf("failed to load platform profiles: %v", err)
		os.Exit(1)
	}

	logger.Info.Printf("starting renderd on port %d (%d workers, %d profiles)", cfg.Port, cfg.Workers, len(profiles))

	for _, dir := range []string{cfg.DataDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Error.Printf("failed to create directory %s: %v", dir, err)
			os.Exit(1)
		}
	}

	store, err := sqlitestore.NewStore(cfg.DataDir)
	if err != nil {
		logger.Error.Printf("failed to create store: %v", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	compositor := ffmpeg.New(cfg.FFmpegBin, cfg.FFprobeBin)
	voice := synth.NewHTTPVoice(cfg.VoiceAPIURL, compositor)
	media := synth.NewHTTPMedia()

	queue := service.NewMemoryQueue(cfg.QueueCapacity)
	eventBus := service.NewEventBus()

	generator := service.NewGenerator(voice, media, compositor, profiles, service.GeneratorConfig{
		TempRoot:         cfg.DataDir,
		OutputRoot:       cfg.OutputDir,
		ProviderTimeout:  cfg.ProviderTimeout,
		SceneConcurrency: cfg.SceneConcurrency,
		Scene: service.SceneOptions{
			WordsPerSecond:  cfg.WordsPerSecond,
			MinSceneSeconds: cfg.MinSceneSeconds,
			MaxSceneSeconds: cfg.MaxSceneSeconds,
		},
	})

	orchestrator := service.NewOrchestrator(store, queue, eventBus, generator, service.OrchestratorConfig{
		Workers:           cfg.Workers,
		JobTimeout:        cfg.JobTimeout,
		ProgressHeartbeat: cfg.ProgressHeartbeat,
	})

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	orchestrator.Start(workerCtx)

	server := HTTPAdapter.NewServer(orchestrator, eventBus)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  1 * time.Minute,
		WriteTimeout: 0, // SSE connections stay open
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info.Printf("received %s, shutting down", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error.Printf("http shutdown error: %v", err)
		}

		// Stop workers; interrupted jobs are reset to pending on next boot.
		workerCancel()

		logger.Info.Printf("shutdown complete")
	}()

	logger.Info.Printf("server listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error.Printf("server failed: %v", err)
		os.Exit(1)
	}
}
