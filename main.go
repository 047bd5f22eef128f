package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"momentum/pkg/config"
	"momentum/pkg/generator"
	"momentum/pkg/governor"
	"momentum/pkg/llm"
	"momentum/pkg/llm/google"
	"momentum/pkg/llm/openai"
	"momentum/pkg/logx"
	"momentum/pkg/metrics"
	"momentum/pkg/store"
	"momentum/pkg/webui"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "config/config.json"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("Fatal: %v", err)
	}
}

func run(cfg *config.Config) error {
	logger := logx.NewLogger("main")

	st, err := store.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close store: %v", err)
		}
	}()

	client, err := newLLMClient(cfg)
	if err != nil {
		return err
	}

	var recorder metrics.Recorder
	if cfg.MetricsEnabled {
		recorder = metrics.NewPrometheusRecorder()
	}

	gov := governor.New(cfg.GovernorPolicy(), recorder)
	gen := generator.New(gov, client, recorder, nil)

	mux := http.NewServeMux()
	webui.NewServer(st, gen, gov, cfg.UserID, cfg.MetricsEnabled).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening on %s (model=%s, user=%s)", cfg.ListenAddr, cfg.Model, cfg.UserID)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received signal %v, initiating graceful shutdown", sig)
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("Shutdown complete")
	return nil
}

// newLLMClient builds the transport for the configured model's provider.
func newLLMClient(cfg *config.Config) (llm.Client, error) {
	provider, err := llm.ProviderForModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	switch provider {
	case llm.ProviderGoogle:
		return google.NewClient(cfg.APIKey, cfg.Model), nil
	case llm.ProviderOpenAI:
		return openai.NewClient(cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}
}
