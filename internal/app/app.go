// Package app wires the storefront API server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/events"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/internal/storage/redis"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	healthSvc := health.New()
	healthSvc.Ready(health.Probe{Name: "postgres", Timeout: 5 * time.Second, Check: health.PingCheck(pool)})
	healthSvc.Live(health.Probe{Name: "goroutines", Check: health.GoroutineCheck(10000)})

	var revocations auth.Revocations = auth.NewMemoryRevocations()
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = client.Close() }()
		revocations = redis.NewRevocations(client, "")
		healthSvc.Ready(health.Probe{Name: "redis", Timeout: 2 * time.Second, Check: health.RedisCheck(client)})
	} else {
		lg.Warn("No redis configured, API key revocations are local to this process")
	}

	var publisher order.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := kp.Close(); err != nil {
				lg.Warn("Close kafka publisher", zap.Error(err))
			}
		}()
		publisher = kp
		lg.Info("Publishing order events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	api, err := newHandler(ctx, lg, m, cfg, pool, revocations, publisher, healthSvc)
	if err != nil {
		return err
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           api,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newHandler builds the stores, services and the full middleware chain on
// top of pool.
func newHandler(
	ctx context.Context,
	lg *zap.Logger,
	tel httpmiddleware.Providers,
	cfg *Config,
	pool *pgxpool.Pool,
	revocations auth.Revocations,
	publisher order.Publisher,
	healthSvc *health.Health,
) (http.Handler, error) {
	products := postgres.NewProductRepository(pool)
	discounts := postgres.NewDiscountRepository(pool)
	orders := postgres.NewOrderStore(pool)
	apikeys := postgres.NewAPIKeyRepository(pool)

	orderService, err := order.NewService(order.Config{
		RestoreStockOnCancel: cfg.Orders.RestoreStockOnCancel,
		TransitionPolicy:     order.TransitionPolicy(cfg.Orders.TransitionPolicy),
	}, orders, products, publisher, tel.MeterProvider(), tel.TracerProvider())
	if err != nil {
		return nil, errors.Wrap(err, "order service")
	}

	h := handler.New(
		handler.Config{RevocationTTL: cfg.RevocationTTL},
		orderService,
		discount.NewLedger(discounts),
		handler.NewAuthenticator(apikeys, revocations, []byte(cfg.APIKeyPepper)),
	)
	router := h.Router()
	router.Method(http.MethodGet, "/livez", healthSvc.LiveHandler())
	router.Method(http.MethodGet, "/readyz", healthSvc.ReadyHandler())

	return httpmiddleware.Wrap(router,
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.Instrument("storefront-api", tel),
		httpmiddleware.Route(),
		httpmiddleware.LogRequests(),
		httpmiddleware.Labeler(),
	), nil
}
