// Package app wires configuration, storage, caching, notification and the
// services into a ready HTTP router.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ammiranda/request_tree/cache"
	"github.com/ammiranda/request_tree/config"
	"github.com/ammiranda/request_tree/converter"
	"github.com/ammiranda/request_tree/handlers"
	"github.com/ammiranda/request_tree/internal/logging"
	"github.com/ammiranda/request_tree/metrics"
	"github.com/ammiranda/request_tree/notify"
	"github.com/ammiranda/request_tree/ratelimit"
	"github.com/ammiranda/request_tree/repository"
	"github.com/ammiranda/request_tree/runner"
	"github.com/ammiranda/request_tree/tree"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// App holds the wired service graph.
type App struct {
	Config    *config.CoreConfig
	Logger    *slog.Logger
	Repo      repository.Repository
	Store     *tree.Store
	Converter *converter.Converter
	Engine    *runner.Engine
	Metrics   *metrics.Metrics
	Router    *gin.Engine

	redis     *redis.Client
	stopRelay context.CancelFunc
	relayDone chan struct{}
}

// New loads the core configuration from provider and builds the service
// graph. Close releases what New opened.
func New(ctx context.Context, provider config.Provider) (*App, error) {
	cfg, err := config.LoadCoreConfig(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := logging.New(logging.ParseLevel(cfg.LogLevel))
	a := &App{Config: cfg, Logger: logger}

	repo, err := NewRepository(cfg, provider)
	if err != nil {
		return nil, err
	}
	if err := repo.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}
	a.Repo = repo

	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	cacheProvider, err := a.newCache(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(reg)

	hub := notify.NewHub(64)
	invalidator := cache.NewInvalidator(cacheProvider)
	sinks := notify.Multi{notify.NewLogNotifier(logger), invalidator}
	if a.redis != nil {
		// Events reach the local hub through redis so every instance
		// streams the same changes.
		redisNotifier := notify.NewRedisNotifier(a.redis, notify.WithRedisLogger(logger))
		sinks = append(sinks, redisNotifier)
		a.startRelay(redisNotifier, notify.Multi{hub, invalidator})
	} else {
		sinks = append(sinks, hub)
	}
	notifier := notify.Counted{Next: sinks, Counter: a.Metrics}

	var rlStore ratelimit.Store = ratelimit.NewMemoryStore()
	if a.redis != nil {
		rlStore = ratelimit.NewRedisStore(a.redis, "request_tree:ratelimit:")
	}
	limiter := ratelimit.New(rlStore,
		ratelimit.WithLogger(logger),
		ratelimit.WithRule(ratelimit.ClassExecute, cfg.RunnerRateLimit, cfg.RunnerRateWindow()),
		ratelimit.WithRule(ratelimit.ClassImport, cfg.ImportRateLimit, cfg.ImportRateWindow()),
	)

	a.Store = tree.NewStore(repo, tree.WithNotifier(notifier), tree.WithLogger(logger))
	a.Converter = converter.New(a.Store,
		converter.WithMaxItems(cfg.ImportMaxItems),
		converter.WithLogger(logger),
		converter.WithMetrics(a.Metrics),
	)
	a.Engine = runner.New(a.Store,
		runner.WithAllowedHosts(cfg.ExecAllowedHosts),
		runner.WithTimeouts(cfg.ExecDefaultTimeout(), cfg.ExecMaxTimeout()),
		runner.WithMaxResponseBytes(cfg.ExecMaxResponseBytes),
		runner.WithOutboundRate(float64(cfg.ExecOutboundPerSecond), cfg.ExecOutboundPerSecond),
		runner.WithLogger(logger),
		runner.WithMetrics(a.Metrics),
	)

	a.Router = handlers.NewRouter(handlers.Services{
		Store:     a.Store,
		Converter: a.Converter,
		Engine:    a.Engine,
		Cache:     cacheProvider,
		Hub:       hub,
		Limiter:   limiter,
		Metrics:   a.Metrics,
		Logger:    logger,
	})
	return a, nil
}

// NewRepository returns the repository selected by cfg.StoreDriver.
func NewRepository(cfg *config.CoreConfig, provider config.Provider) (repository.Repository, error) {
	switch cfg.StoreDriver {
	case "sqlite":
		return repository.NewSQLiteRepository(cfg.SQLitePath), nil
	case "postgres":
		repo, err := repository.NewPostgresRepository(provider)
		if err != nil {
			return nil, fmt.Errorf("failed to create repository: %w", err)
		}
		return repo, nil
	case "memory", "":
		return repository.NewMemoryRepository(), nil
	default:
		return nil, &config.ValidationError{Field: "STORE_DRIVER", Message: "unknown driver " + cfg.StoreDriver}
	}
}

func (a *App) newCache(ctx context.Context) (cache.CacheProvider, error) {
	var provider cache.CacheProvider
	switch a.Config.CacheDriver {
	case "none":
		provider = cache.NoCache{}
	case "redis":
		if a.redis == nil {
			return nil, &config.ValidationError{Field: "REDIS_ADDR", Message: "required for the redis cache"}
		}
		provider = cache.NewRedisCacheFromClient(a.redis, cache.WithLogger(a.Logger))
	case "dynamodb":
		dc, err := cache.NewDynamoDBCache(ctx, a.Config.DynamoTable, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create dynamodb cache: %w", err)
		}
		provider = dc
	default:
		provider = cache.NewMemoryCache()
	}
	if a.Config.CacheTTL > 0 {
		provider.SetCacheTTL(a.Config.CacheTTL)
	}
	if err := provider.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	return provider, nil
}

func (a *App) startRelay(src *notify.RedisNotifier, dst notify.Notifier) {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopRelay = cancel
	a.relayDone = make(chan struct{})
	go func() {
		defer close(a.relayDone)
		if err := src.Relay(ctx, dst); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error("event relay stopped", slog.Any("error", err))
		}
	}()
}

// Close stops the event relay and releases the repository and redis client.
func (a *App) Close(ctx context.Context) error {
	if a.stopRelay != nil {
		a.stopRelay()
		<-a.relayDone
	}
	var errs []error
	if a.Repo != nil {
		errs = append(errs, a.Repo.Cleanup(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
