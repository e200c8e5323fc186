package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"personachat/backend/internal/config"
	"personachat/backend/internal/db"
	"personachat/backend/internal/enrichment"
	"personachat/backend/internal/gateway"
	"personachat/backend/internal/logger"
	"personachat/backend/internal/observability"
	"personachat/backend/internal/pricing"
	"personachat/backend/internal/profile"
	"personachat/backend/internal/ratelimit"
	"personachat/backend/internal/relay"
	"personachat/backend/internal/server"
	"personachat/backend/internal/store"
	"personachat/backend/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := observability.InitTracing(ctx, cfg, log)

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	chat, closeGateway, err := buildGateway(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeGateway()

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	pool := worker.NewPool(log, worker.Options{
		Concurrency: cfg.WorkerConcurrency,
		MaxPending:  cfg.WorkerMaxPending,
		TaskTimeout: cfg.WorkerTaskTimeout,
	})
	extractor := enrichment.NewLLMExtractor(chat, enrichment.ExtractorOptions{
		Model:       cfg.ProfileExtractionModel,
		Temperature: cfg.ProfileExtractionTemperature,
		MaxItems:    cfg.ProfileExtractionMaxItems,
	}, log)
	scheduler := enrichment.NewScheduler(st, extractor, pool, log, enrichment.Options{
		Enabled:          cfg.ProfileExtractionEnabled,
		Delay:            cfg.ProfileExtractionDelay,
		MinMessageLength: cfg.ProfileMinMessageLength,
		Caps:             profile.CapsFromConfig(cfg.ProfileFieldCaps),
	})
	orchestrator := relay.New(st, chat, catalog, scheduler, log, relay.Options{
		DefaultModel:   cfg.DefaultModel,
		MinBalance:     cfg.MinBalance,
		HistoryLimit:   cfg.HistoryLimit,
		TitleMaxLength: cfg.TitleMaxLength,
		MaxTokens:      cfg.AIMaxOutputTokens,
	})

	limiter, closeLimiter := buildLimiter(ctx, cfg, log)
	defer closeLimiter()

	app := server.New(cfg, server.Deps{
		Store:     st,
		Relay:     orchestrator,
		Catalog:   catalog,
		Extractor: extractor,
		Limiter:   limiter,
		Log:       log,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("PersonaChat API listening", "addr", "http://localhost:"+cfg.AppPort, "store", cfg.StoreDriver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("Graceful shutdown failed", "error", err)
		}
		if err := pool.Shutdown(shutdownCtx); err != nil {
			log.Warn("Background tasks cancelled at shutdown", "error", err, "pending", pool.Stats().Pending)
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("Trace flush failed", "error", err)
		}
		return nil
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, log *logger.Logger) (store.Store, func(), error) {
	if cfg.UsesMemoryStore() {
		log.Warn("Using in-memory store; data is lost on restart")
		return store.NewMemory(), func() {}, nil
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("database connect failed: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("database ping failed: %w", err)
	}
	if err := db.ValidateRuntimeSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("database schema mismatch: %w", err)
	}
	return store.NewPostgres(pool), pool.Close, nil
}

// buildGateway routes "claude" and "gemini" model ids to the native SDKs when
// their keys are set and everything else through OpenRouter. Without any key
// the mock client answers.
func buildGateway(ctx context.Context, cfg config.Config, log *logger.Logger) (gateway.Client, func(), error) {
	noop := func() {}
	if cfg.MockGateway {
		log.Warn("AI_MOCK_GATEWAY is set; replies are generated locally")
		return gateway.MockClient{}, noop, nil
	}

	var fallback gateway.Client
	if strings.TrimSpace(cfg.OpenRouterAPIKey) != "" {
		client, err := gateway.NewOpenRouterClient(gateway.OpenRouterConfig{
			APIKey:     cfg.OpenRouterAPIKey,
			BaseURL:    cfg.OpenRouterBaseURL,
			Referer:    cfg.OpenRouterReferer,
			Title:      cfg.AppName,
			MaxTokens:  cfg.AIMaxOutputTokens,
			Timeout:    time.Duration(cfg.AITimeoutSeconds) * time.Second,
			MaxRetries: 2,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("openrouter client: %w", err)
		}
		fallback = client
	}
	router := gateway.NewRouter(fallback)
	configured := fallback != nil
	closers := make([]func(), 0, 1)

	if strings.TrimSpace(cfg.AnthropicAPIKey) != "" {
		client, err := gateway.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AIMaxOutputTokens)
		if err != nil {
			return nil, nil, fmt.Errorf("anthropic client: %w", err)
		}
		router.Handle("claude", client)
		configured = true
	}
	if strings.TrimSpace(cfg.GoogleAPIKey) != "" {
		client, err := gateway.NewGeminiClient(ctx, cfg.GoogleAPIKey, cfg.AIMaxOutputTokens)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini client: %w", err)
		}
		router.Handle("gemini", client)
		configured = true
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				log.Warn("Gemini client close failed", "error", err)
			}
		})
	}

	if !configured {
		log.Warn("No AI provider key configured; replies are generated locally")
		return gateway.MockClient{}, noop, nil
	}
	return router, func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}, nil
}

func loadCatalog(cfg config.Config) (*pricing.Catalog, error) {
	catalog := pricing.Default(cfg.ExchangeRate)
	if path := strings.TrimSpace(cfg.PricingFile); path != "" {
		loaded, err := pricing.LoadFile(path, catalog)
		if err != nil {
			return nil, err
		}
		catalog = loaded
	}
	return catalog, nil
}

// buildLimiter prefers Redis so limits hold across replicas and falls back to
// the in-process limiter when Redis is not configured or unreachable.
func buildLimiter(ctx context.Context, cfg config.Config, log *logger.Logger) (ratelimit.Limiter, func()) {
	if cfg.RateLimitPerMinute <= 0 {
		return nil, func() {}
	}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		limiter, err := ratelimit.NewRedis(ctx, cfg.RedisURL, cfg.RateLimitPerMinute)
		if err == nil {
			return limiter, func() {
				if err := limiter.Close(); err != nil {
					log.Warn("Redis close failed", "error", err)
				}
			}
		}
		log.Warn("Redis rate limiter unavailable; using in-process limits", "error", err)
	}
	return ratelimit.NewMemory(cfg.RateLimitPerMinute), func() {}
}
