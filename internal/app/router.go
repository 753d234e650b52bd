package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/desawali/storefront-api/internal/common"
	"github.com/desawali/storefront-api/internal/config"
	"github.com/desawali/storefront-api/internal/health"
	"github.com/desawali/storefront-api/internal/lock"
	"github.com/desawali/storefront-api/internal/notify"
	"github.com/desawali/storefront-api/internal/obs"
	"github.com/desawali/storefront-api/internal/payment"
	"github.com/desawali/storefront-api/internal/ratelimit"
	"github.com/desawali/storefront-api/internal/resilience"
	"github.com/desawali/storefront-api/internal/security"
)

// RouterOptions carries what NewRouter needs besides the datastores.
type RouterOptions struct {
	Config  *config.Config
	Deps    *Dependencies
	Logger  zerolog.Logger
	Metrics *obs.HTTPMetrics
	Tracing bool
	// HTTP overrides the outbound provider client.
	HTTP resilience.Doer
	Now  func() time.Time

	HealthDBTimeout    time.Duration
	HealthRedisTimeout time.Duration
}

// NewRouter assembles the payment, health and metrics routes.
func NewRouter(opts RouterOptions) (http.Handler, error) {
	cfg := opts.Config
	deps := opts.Deps
	if deps == nil {
		deps = &Dependencies{}
	}
	logger := opts.Logger

	httpClient := opts.HTTP
	if httpClient == nil {
		httpClient = NewGatewayClient(cfg, logger)
	}
	gateway := payment.PhonePe{
		MerchantID: cfg.PhonePeMerchantID,
		Secret:     cfg.PhonePeSecret,
		BaseURL:    payment.BaseURLFor(cfg.Production(), cfg.PhonePeBaseURL),
		HTTP:       httpClient,
	}

	svc := &payment.Service{
		Gateway:         gateway,
		Validate:        deps.Validator,
		StorefrontURL:   cfg.StorefrontBaseURL,
		CallbackBaseURL: cfg.PaymentCallbackBaseURL,
		Now:             opts.Now,
		Logger:          logger,
	}
	webhook := payment.Webhook{
		Secret:    cfg.PhonePeSecret,
		ReplayTTL: cfg.WebhookReplayTTL,
		LockTTL:   cfg.WebhookLockTTL,
		Now:       opts.Now,
		Logger:    logger,
	}
	if deps.Orders != nil {
		svc.Attempts = deps.Orders
		webhook.Orders = deps.Orders
	}
	idem := common.Idem{TTL: cfg.IdempotencyTTL}
	if deps.Redis != nil {
		webhook.Replay = deps.Redis
		webhook.Locker = lock.Locker{
			R:            deps.Redis,
			Prefix:       "payment:webhook:lock",
			RetryBackoff: 50 * time.Millisecond,
			MaxWait:      cfg.WebhookLockTTL,
		}
		idem.R = deps.Redis
	}
	if deps.TaskClient != nil {
		webhook.Notifier = notify.Enqueuer{Client: deps.TaskClient, MaxRetry: 5, Retention: 24 * time.Hour}
	}
	payments := &payment.Handler{Svc: svc, Logger: logger}

	rl, err := deps.RateLimiter(cfg.RateLimitBackend)
	if err != nil {
		return nil, err
	}
	createLimit := ratelimit.Handler{
		Limiter: rl,
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("payments:create"),
			Window: cfg.RateLimitCreateWindow,
			Max:    cfg.RateLimitCreateMax,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate_limit_unavailable")
		},
	}
	bodyLimit := security.BodyLimit{Max: cfg.RequestBodyLimitBytes}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if opts.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if opts.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: opts.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(obs.ContextLogger(logger))
	r.Use(security.Headers{HSTS: cfg.Production()}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-VERIFY", common.IdempotencyHeader},
		MaxAge:         300,
	}))
	r.MethodNotAllowed(common.MethodNotAllowed)
	r.NotFound(common.NotFound)

	if opts.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:       deps,
		DBTimeout:     opts.HealthDBTimeout,
		RedisTimeout:  opts.HealthRedisTimeout,
		RedisOptional: true,
		GatewayConfigured: func() bool {
			return cfg.PaymentConfigured()
		},
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/payments", func(p chi.Router) {
		p.Use(bodyLimit.Middleware)
		p.With(createLimit.Middleware, idem.Middleware).Post("/create", payments.Create)
		p.Get("/verify", payments.Verify)
		p.Post("/webhook", webhook.Handle)
	})
	return r, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
