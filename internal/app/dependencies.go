package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/desawali/storefront-api/internal/config"
	"github.com/desawali/storefront-api/internal/health"
	"github.com/desawali/storefront-api/internal/obs"
	"github.com/desawali/storefront-api/internal/order"
	"github.com/desawali/storefront-api/internal/ratelimit"
	"github.com/desawali/storefront-api/internal/resilience"
)

// Dependencies holds the shared clients of one process. DB and Redis are nil when
// their URLs are not configured.
type Dependencies struct {
	DB         *pgxpool.Pool
	Redis      *redis.Client
	Orders     *order.Store
	Validator  *validator.Validate
	TaskClient *asynq.Client
	RedisOpt   asynq.RedisConnOpt
}

// Options tunes Open for the calling binary.
type Options struct {
	ApplicationName string
	InstrumentRedis bool
	RedisMetrics    bool
}

// Open connects the configured datastores. A configured datastore that cannot be reached is an error.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	deps := &Dependencies{Validator: validator.New()}

	if cfg.DatabaseURL != "" {
		pool, err := openPool(ctx, cfg.DatabaseURL, opts.ApplicationName)
		if err != nil {
			return nil, err
		}
		deps.DB = pool
		deps.Orders = order.NewStore(pool)
	} else {
		logger.Warn().Msg("DATABASE_URL not set; order persistence disabled")
	}

	if cfg.RedisURL != "" {
		client, err := openRedis(ctx, cfg.RedisURL, logger, opts)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.Redis = client
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("parse asynq redis url: %w", err)
		}
		deps.RedisOpt = redisOpt
		deps.TaskClient = asynq.NewClient(redisOpt)
	} else {
		logger.Warn().Msg("REDIS_URL not set; replay protection, locks and notifications disabled")
	}
	return deps, nil
}

func openPool(ctx context.Context, databaseURL, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	if appName != "" {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = appName
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func openRedis(ctx context.Context, redisURL string, logger zerolog.Logger, opts Options) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if opts.InstrumentRedis {
		if err := redisotel.InstrumentTracing(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
		if opts.RedisMetrics {
			if err := redisotel.InstrumentMetrics(client); err != nil {
				logger.Error().Err(err).Msg("instrument redis metrics")
			}
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Close releases every client that was opened.
func (d *Dependencies) Close() {
	if d == nil {
		return
	}
	if d.TaskClient != nil {
		_ = d.TaskClient.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

// PingDB implements health.Checker.
func (d *Dependencies) PingDB(ctx context.Context, timeout time.Duration) error {
	if d == nil || d.DB == nil {
		return health.ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.DB.Ping(ctx)
}

// PingRedis implements health.Checker.
func (d *Dependencies) PingRedis(ctx context.Context, timeout time.Duration) error {
	if d == nil || d.Redis == nil {
		return health.ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Redis.Ping(ctx).Err()
}

// NewLimiterStore wires a ulule limiter store on Redis, or an in-process store without it.
func NewLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	if rdb == nil {
		return memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: "ratelimit", CleanUpInterval: time.Minute}), nil
	}
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "ratelimit"})
}

// RateLimiter picks ulule/limiter for the "ulule" backend and the Redis sliding window otherwise.
// Without Redis the ulule memory store is used.
func (d *Dependencies) RateLimiter(backend string) (ratelimit.Limiter, error) {
	var rdb *redis.Client
	if d != nil {
		rdb = d.Redis
	}
	if backend == "fixed" || backend == "ulule" || rdb == nil {
		store, err := NewLimiterStore(rdb)
		if err != nil {
			return nil, fmt.Errorf("limiter store: %w", err)
		}
		return ratelimit.Fixed{Store: store}, nil
	}
	return ratelimit.SlidingWindow{Client: rdb, Prefix: "ratelimit:"}, nil
}

// NewGatewayClient builds the traced, retrying outbound client used for provider calls.
func NewGatewayClient(cfg *config.Config, logger zerolog.Logger) resilience.HTTPClient {
	breaker := resilience.NewBreaker(cfg.PaymentBreakerMinRequests, cfg.PaymentBreakerFailureRatio, cfg.PaymentBreakerOpenFor).
		WithTarget("phonepe").
		WithLogger(logger)
	return resilience.HTTPClient{
		Client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.PaymentHTTPTimeout,
		},
		Breaker:     breaker,
		BaseBackoff: cfg.PaymentRetryBase,
		MaxAttempts: cfg.PaymentRetryMaxAttempts,
		Jitter:      cfg.PaymentRetryJitter,
		Timeout:     cfg.PaymentHTTPTimeout,
		Target:      "phonepe",
		Logger:      &logger,
	}
}
