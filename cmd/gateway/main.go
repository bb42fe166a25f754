package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aegislabs/promptgate/internal/auth"
	"github.com/aegislabs/promptgate/internal/cache"
	"github.com/aegislabs/promptgate/internal/config"
	"github.com/aegislabs/promptgate/internal/core"
	"github.com/aegislabs/promptgate/internal/httpapi"
	"github.com/aegislabs/promptgate/internal/metrics"
	"github.com/aegislabs/promptgate/internal/pipeline"
	"github.com/aegislabs/promptgate/internal/provider"
	"github.com/aegislabs/promptgate/internal/resilience"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger := core.NewProductionLogger(core.LoggingConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
	}, "gateway")
	logger.Info("starting promptgate", map[string]interface{}{"config": cfg.String()})

	sink := metrics.NewPrometheusSink()
	core.SetMetricsSink(sink)
	recorder := metrics.NewRecorder(metrics.DefaultBufferSize, sink)

	authenticator, err := auth.New(auth.Config{
		Mode:              auth.Mode(cfg.AuthMode),
		APIKey:            cfg.APIKey,
		AdditionalAPIKeys: cfg.AdditionalAPIKeys,
		Environment:       cfg.Environment,
		SecurityEnforced:  cfg.EnforceAuth,
		Logger:            logger,
	})
	if err != nil {
		log.Fatalf("auth initialization failed: %v", err)
	}

	presetRegistry, err := resilience.LoadPresetRegistry()
	if err != nil {
		log.Fatalf("failed to load resilience presets: %v", err)
	}
	preset, ok := presetRegistry.Get(cfg.ResiliencePreset)
	if !ok {
		logger.Warn("unknown resilience preset, falling back to simple", map[string]interface{}{"preset": cfg.ResiliencePreset})
		preset, _ = presetRegistry.Get("simple")
	}
	engine := resilience.NewEngineFromPreset(preset, 30*time.Second, logger, recorder)

	cacheInstance, err := cache.New(cache.Options{
		MemoryMaxSize: 1000,
		Redis:         redisOptions(cfg, logger),
		Compression:   cache.CompressionOptions{ThresholdBytes: cache.CompressionThreshold, Level: 6, EncryptionKey: []byte(cfg.RedisEncryptionKey)},
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("cache initialization failed: %v", err)
	}
	logger.Info("cache initialized", map[string]interface{}{"cache_type": string(cacheInstance.Type())})

	anthropicClient := provider.NewAnthropicClient(os.Getenv("ANTHROPIC_API_KEY"), os.Getenv("ANTHROPIC_BASE_URL"), logger)

	sanitizer := pipeline.NewSanitizer(cfg.InputMaxLength)
	processor := pipeline.NewProcessor(cacheInstance, engine, anthropicClient, sanitizer, logger, cfg.EnableAICache)
	orchestrator := pipeline.NewBatchOrchestrator(processor, cfg.BatchConcurrency)

	server := &httpapi.Server{
		Processor:     processor,
		Orchestrator:  orchestrator,
		Authenticator: authenticator,
		Presets:       presetRegistry,
		Cache:         cacheInstance,
		Logger:        logger,
		Environment:   cfg.Environment,
		Version:       version,
	}

	httpServer := &http.Server{
		Addr:              ":" + envOr("PORT", "8080"),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", map[string]interface{}{"addr": httpServer.Addr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down gracefully", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}

func redisOptions(cfg *config.Config, logger core.Logger) *cache.RedisTierOptions {
	if cfg.CacheRedisURL == "" {
		return nil
	}
	return &cache.RedisTierOptions{
		RedisURL:       cfg.CacheRedisURL,
		ConnectTimeout: 5 * time.Second,
		MaxRetries:     3,
		RetryDelay:     100 * time.Millisecond,
		Logger:         logger,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
