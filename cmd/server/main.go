package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/verseclip/verseclip/internal/api"
	"github.com/verseclip/verseclip/internal/config"
	"github.com/verseclip/verseclip/internal/db"
	"github.com/verseclip/verseclip/internal/generator"
	"github.com/verseclip/verseclip/internal/imagegen"
	"github.com/verseclip/verseclip/internal/jobs"
	"github.com/verseclip/verseclip/internal/logging"
	"github.com/verseclip/verseclip/internal/lyrics"
	"github.com/verseclip/verseclip/internal/media"
	"github.com/verseclip/verseclip/internal/videostream"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.MediaDir(), 0755); err != nil {
		return fmt.Errorf("failed to create media dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting verseclip server", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := jobs.NewRepository(database.Conn())

	deviceID, err := ensureDeviceID(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                    VERSECLIP v%-7s                     ║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	if cfg.GeminiAPIKey() == "" {
		logger.Warn("no Gemini API key configured, image generation will fail")
	}
	if cfg.StreamAPIKey() == "" {
		logger.Warn("no stream API key configured, video generation will fail")
	}

	lyricsClient := lyrics.NewClient(lyrics.Config{
		BaseURL: cfg.LyricsBaseURL(),
		Logger:  logger,
	})
	imageClient := imagegen.NewClient(imagegen.Config{
		BaseURL: cfg.GeminiBaseURL(),
		APIKey:  cfg.GeminiAPIKey(),
		Logger:  logger,
	})
	streamClient := videostream.NewClient(videostream.Config{
		SocketURL:  cfg.StreamSocketURL(),
		APIBaseURL: cfg.StreamAPIURL(),
		APIKey:     cfg.StreamAPIKey(),
		Logger:     logger,
	})
	mediaTool := media.New(media.Config{
		FFmpegPath:     cfg.FFmpegPath(),
		FFprobePath:    cfg.FFprobePath(),
		ProbeTimeout:   cfg.ProbeTimeout(),
		TrimTimeout:    cfg.TrimTimeout(),
		ConcatTimeout:  cfg.ConcatTimeout(),
		OverlayTimeout: cfg.OverlayTimeout(),
		Logger:         logger,
	})
	if err := mediaTool.Available(); err != nil {
		logger.Warn("ffmpeg/ffprobe not found, video assembly will fail", "error", err)
	}

	gen := generator.New(repo, lyricsClient, imageClient,
		streamProviderAdapter{client: streamClient}, mediaTool,
		generator.Config{
			MediaDir:        cfg.MediaDir(),
			SegmentSeconds:  cfg.SegmentSeconds(),
			HardCapSeconds:  cfg.HardCapSeconds(),
			Concurrency:     cfg.Concurrency(),
			CaptionsEnabled: cfg.CaptionsEnabled(),
		}, logger)

	jobService := jobs.NewService(repo, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := jobs.NewRunner(repo, gen, logger)
	go runner.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		MediaDir:       cfg.MediaDir(),
		JobService:     jobService,
		Repository:     repo,
		Runner:         runner,
		Lyrics:         lyricsClient,
		MediaAvailable: mediaTool.Available,
		Logger:         logger,
		StartTime:      startTime,
		DeviceID:       deviceID,
		Version:        config.Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// streamProviderAdapter narrows the concrete stream client to the
// generator's provider interface.
type streamProviderAdapter struct {
	client *videostream.Client
}

func (a streamProviderAdapter) Connect(ctx context.Context) (generator.StreamSession, error) {
	return a.client.Connect(ctx)
}

func ensureDeviceID(repo jobs.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "device_id")
	if err == nil && existing != "" {
		return existing, nil
	}

	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return "", err
	}
	deviceID := hex.EncodeToString(idBytes)

	if err := repo.SetConfig(ctx, "device_id", deviceID); err != nil {
		return "", err
	}

	return deviceID, nil
}

func ensureAuthToken(repo jobs.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "auth_token")
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, "auth_token", token); err != nil {
		return "", err
	}

	return token, nil
}
