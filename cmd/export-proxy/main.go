package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/docapi-export/internal/config"
	"github.com/Sternrassler/docapi-export/internal/server"
	"github.com/Sternrassler/docapi-export/pkg/cache"
	"github.com/Sternrassler/docapi-export/pkg/docapi"
	"github.com/Sternrassler/docapi-export/pkg/export"
	"github.com/Sternrassler/docapi-export/pkg/logging"
	"github.com/Sternrassler/docapi-export/pkg/pagination"
	"github.com/Sternrassler/docapi-export/pkg/ratelimit"
	"github.com/Sternrassler/docapi-export/pkg/schema"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise")
	}
	defer a.Close()

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: a.handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	log.Info().
		Str("addr", cfg.ListenAddr).
		Bool("redis", cfg.RedisURL != "").
		Msg("Starting export proxy")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Export proxy stopped")
}

// app holds the wired components of one process.
type app struct {
	handler http.Handler
	redis   *redis.Client
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	client, err := docapi.New(docapi.Config{
		BaseURL:           cfg.BaseURL,
		UserAgent:         cfg.UserAgent,
		Timeout:           cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("create document API client: %w", err)
	}

	a := &app{}
	var (
		limiter  ratelimit.Limiter = ratelimit.NewMemoryLimiter()
		resolver                   = schema.NewResolver(client)
		ready    func(context.Context) error
	)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.redis.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		log.Info().Str("addr", opts.Addr).Msg("Connected to Redis")

		limiter = ratelimit.NewRedisLimiter(a.redis)
		resolver = schema.NewResolver(client, schema.WithCache(cache.NewManager(a.redis, cfg.SchemaCacheTTL)))
		ready = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}

	orchestrator := export.NewOrchestrator(client, resolver, pagination.Config{
		ScrollPageSize: cfg.ScrollPageSize,
		WindowPageSize: cfg.WindowPageSize,
		SearchPageSize: cfg.SearchPageSize,
	})
	pages := export.NewPageQuery(client, resolver)
	lister := schema.NewLister(client, resolver, schema.DefaultListerConfig())

	a.handler = server.New(orchestrator, pages, lister, limiter, server.Config{
		CORSOrigins:   cfg.CORSOrigins,
		ExportQuota:   ratelimit.Quota{Operation: ratelimit.ExportQuota.Operation, MaxRequests: cfg.ExportMaxRequests, Window: cfg.RateWindow},
		PageQuota:     ratelimit.Quota{Operation: ratelimit.PageQuota.Operation, MaxRequests: cfg.PageMaxRequests, Window: cfg.RateWindow},
		EntitiesQuota: ratelimit.Quota{Operation: ratelimit.EntitiesQuota.Operation, MaxRequests: cfg.PageMaxRequests, Window: cfg.RateWindow},
		Ready:         ready,
	}).Handler()

	return a, nil
}

// Close releases the Redis connection, if any.
func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
}
