package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/user/codeflare/internal/api"
	"github.com/user/codeflare/internal/auth"
	"github.com/user/codeflare/internal/config"
	"github.com/user/codeflare/internal/github"
	"github.com/user/codeflare/internal/storage"
	"github.com/user/codeflare/pkg/logger"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Try to initialize basic logger for error output
		logger.Init("info", "")
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	if err := logger.Init(cfg.Log.Level, cfg.Log.File); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	logger.Info().Msg("Starting Codeflare server")

	// Initialize session storage
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize session storage")
	}
	defer store.Close()
	logger.Info().Str("driver", cfg.Storage.Driver).Str("path", cfg.Storage.Path).Msg("Session storage initialized")

	// Initialize GitHub proxy
	proxy, err := github.NewProxy(cfg.GitHub.BaseURL, cfg.GitHub.UserAgent, cfg.GitHub.Timeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize GitHub proxy")
	}

	// Initialize identity verifier
	verifier := auth.NewVerifier(
		cfg.Identity.KeySetURL(),
		cfg.Identity.Audience,
		auth.WithKeySetTTL(cfg.Identity.KeysTTL),
	)
	defer verifier.Close()
	logger.Info().
		Str("certs_url", cfg.Identity.KeySetURL()).
		Dur("keys_ttl", cfg.Identity.KeysTTL).
		Msg("Identity verifier configured")

	router := api.NewRouter(api.RouterConfig{
		Verifier:       verifier,
		Sessions:       api.NewSessionHandlers(store),
		GitHub:         api.NewGitHubHandlers(proxy),
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	// Start HTTP server
	server := &http.Server{
		Addr:              cfg.ServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("address", cfg.ServerAddress()).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("Shutting down...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("Shutdown complete")
}
