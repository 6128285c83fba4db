package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"twscraper/internal/database"
	"twscraper/internal/syncer"
	"twscraper/pkg/auth"
	"twscraper/pkg/checkpoint"
	"twscraper/pkg/config"
	"twscraper/pkg/errsink"
	"twscraper/pkg/events"
	"twscraper/pkg/logger"
	"twscraper/pkg/metrics"
	"twscraper/pkg/ratelimit"
	"twscraper/pkg/retry"
	"twscraper/pkg/storage"
	"twscraper/pkg/subscription"
	"twscraper/pkg/timeline"
	"twscraper/pkg/twitter"
)

// app holds the connections and components one command needs. Everything
// is built lazily from the configuration.
type app struct {
	cfg      *config.Config
	log      logger.Logger
	db       *pgxpool.Pool
	redis    *redis.Client
	registry *prometheus.Registry
	metrics  *metrics.Collector
	events   events.Publisher

	client     *twitter.Client
	reconciler *subscription.Reconciler
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:      cfg,
		log:      logger.GetLogger(),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewCollector(a.registry)

	if cfg.Database.DSN != "" {
		if cfg.Database.MigrateOnStart {
			if err := database.RunMigrations(cfg.Database.DSN, a.log); err != nil {
				return nil, err
			}
		}
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.db = pool
	}

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	a.events = events.New(cfg.Kafka, a.log)
	return a, nil
}

// Close releases every connection
func (a *app) Close() {
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.log.WarnWithFields("Failed to close event publisher", map[string]interface{}{"error": err.Error()})
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

var errNoDatabase = errors.New("subscriptions need a database; set database.dsn or --database-dsn")

func (a *app) timestampStore() ratelimit.TimestampStore {
	switch a.cfg.RateLimit.TimestampBackend {
	case config.BackendRedis:
		return ratelimit.NewRedisStore(a.redis, a.cfg.Redis.KeyPrefix)
	case config.BackendPostgres:
		return ratelimit.NewPostgresStore(a.db)
	default:
		return ratelimit.NewMemoryStore()
	}
}

func (a *app) checkpointStore() (checkpoint.Store, error) {
	switch a.cfg.Crawl.CheckpointBackend {
	case config.BackendPostgres:
		return checkpoint.NewPostgresStore(a.db), nil
	case config.BackendMemory:
		return checkpoint.NewMemoryStore(), nil
	default:
		return checkpoint.NewFileStore(a.cfg.Crawl.CheckpointDir)
	}
}

func (a *app) entityStore() storage.EntityStore {
	ttl := a.cfg.Crawl.EntityCacheTTL
	switch a.cfg.Crawl.EntityCacheBackend {
	case config.BackendRedis:
		return storage.NewRedisEntityStore(a.redis, a.cfg.Redis.KeyPrefix, ttl)
	case config.BackendPostgres:
		return storage.NewPostgresEntityStore(a.db, ttl)
	default:
		return storage.NewMemoryEntityStore(ttl)
	}
}

// twitterClient resolves credentials and builds the gated API client
func (a *app) twitterClient() (*twitter.Client, error) {
	if a.client != nil {
		return a.client, nil
	}

	tw := a.cfg.Twitter
	if tw.AuthToken == "" || tw.CSRFToken == "" {
		manager, err := auth.NewManager()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize credential manager: %w", err)
		}
		if err := manager.Resolve(tw.Account, &tw); err != nil {
			return nil, fmt.Errorf("no usable credentials (run 'twscraper auth login'): %w", err)
		}
	}
	check := config.Config{Twitter: tw}
	if err := check.ValidateCredentials(); err != nil {
		return nil, err
	}

	gate := ratelimit.NewGate(a.timestampStore(), gateKey(tw.BaseURL), a.cfg.RateLimit.MinInterval, ratelimit.WithLogger(a.log))
	runner := retry.NewRunner(retry.PolicyFromConfig(a.cfg.RateLimit), a.log)

	a.client = twitter.NewClient(tw, a.cfg.RateLimit,
		twitter.WithGate(gate),
		twitter.WithRunner(runner),
		twitter.WithObserver(a.metrics),
		twitter.WithLogger(a.log),
		twitter.WithEntityStore(a.entityStore()),
	)
	return a.client, nil
}

// gateKey names the shared timestamp after the API host
func gateKey(base string) string {
	if u, err := url.Parse(base); err == nil && u.Host != "" {
		return u.Host
	}
	return "x.com"
}

func (a *app) crawler() (*timeline.Crawler, *twitter.Client, error) {
	client, err := a.twitterClient()
	if err != nil {
		return nil, nil, err
	}
	store, err := a.checkpointStore()
	if err != nil {
		return nil, nil, err
	}
	recorder := checkpoint.NewRecorder(store, a.log)
	return timeline.NewCrawler(client, recorder, a.entityStore(), a.cfg.Crawl, a.log), client, nil
}

func (a *app) sink() errsink.Sink {
	logSink := errsink.NewLogSink(a.log)
	if a.db == nil {
		return logSink
	}
	// the first sink's id is the one attached to records
	return errsink.Multi{errsink.NewPostgresSink(a.db, a.log), logSink}
}

func (a *app) assets() (*storage.Manager, error) {
	return storage.NewManager(a.cfg.Storage.AssetRoot, a.cfg.Storage.ArchiveDir)
}

func (a *app) subscriptions() (*subscription.Reconciler, error) {
	if a.reconciler != nil {
		return a.reconciler, nil
	}
	if a.db == nil {
		return nil, errNoDatabase
	}
	assets, err := a.assets()
	if err != nil {
		return nil, err
	}
	a.reconciler = subscription.NewReconciler(subscription.NewPostgresStore(a.db), assets, a.sink(), a.cfg.Subscription, a.log)
	return a.reconciler, nil
}

func (a *app) syncer() (*syncer.Syncer, error) {
	reconciler, err := a.subscriptions()
	if err != nil {
		return nil, err
	}
	crawler, client, err := a.crawler()
	if err != nil {
		return nil, err
	}
	assets, err := a.assets()
	if err != nil {
		return nil, err
	}
	return syncer.New(client, crawler, reconciler, assets, a.cfg.Subscription,
		syncer.WithPublisher(a.events),
		syncer.WithObserver(a.metrics),
		syncer.WithLogger(a.log),
		syncer.WithMetadata(a.cfg.Storage.SaveMetadata),
	), nil
}

// healthChecks reports the reachability of each configured backend
func (a *app) healthChecks() map[string]metrics.HealthCheck {
	checks := map[string]metrics.HealthCheck{}
	if a.db != nil {
		checks["postgres"] = a.db.Ping
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	return checks
}
