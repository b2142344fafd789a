package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/utafrali/gomarketplace/internal/config"
	"github.com/utafrali/gomarketplace/internal/event"
	handler "github.com/utafrali/gomarketplace/internal/handler/http"
	"github.com/utafrali/gomarketplace/internal/metrics"
	"github.com/utafrali/gomarketplace/internal/persistence/breaker"
	"github.com/utafrali/gomarketplace/internal/snapshot"
	"github.com/utafrali/gomarketplace/internal/store"
	"github.com/utafrali/gomarketplace/pkg/health"
	pkgkafka "github.com/utafrali/gomarketplace/pkg/kafka"
	"github.com/utafrali/gomarketplace/pkg/middleware"
	"github.com/utafrali/gomarketplace/pkg/tracing"
)

// App wires together all dependencies and runs the cart service.
type App struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *store.CartStore
	closeStorage func() error
	producer     *pkgkafka.Producer
	events       *event.Producer
	stopTracing  func(context.Context) error
	httpServer   *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
// The cart itself is loaded by Run.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tcfg := tracing.DefaultConfig("cart-service")
	tcfg.Enabled = cfg.OTELEnabled
	tcfg.Environment = cfg.Environment
	tcfg.OTLPEndpoint = cfg.OTELEndpoint
	tcfg.SampleRate = cfg.OTELSampleRate
	stopTracing, err := tracing.InitTracer(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	layout, err := snapshot.ParseLayout(cfg.StorageLayout, cfg.KeyPrefix)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	kv, closeStorage, err := openStorage(ctx, cfg, reg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.BreakerEnabled {
		kv = breaker.Wrap(kv, breaker.DefaultConfig("cart-storage"), logger, m)
	}

	cartStore := store.New(kv, layout, logger,
		store.WithRecorder(m),
		store.WithPersistTimeout(cfg.PersistTimeout),
	)

	healthHandler := health.NewHandler()
	healthHandler.Register("cart_store", func(context.Context) error {
		if !cartStore.Ready() {
			return errors.New("cart not loaded")
		}
		return nil
	})
	healthHandler.Register("storage", kv.Ping)

	a := &App{
		cfg:          cfg,
		logger:       logger,
		store:        cartStore,
		closeStorage: closeStorage,
		stopTracing:  stopTracing,
	}

	if cfg.EventsEnabled() {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		a.events = event.NewProducer(a.producer, cfg.SessionID, cfg.EventQueueSize, logger)
		cartStore.Subscribe(a.events.Observe)
		healthHandler.Register("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	router := handler.NewRouter(handler.RouterDeps{
		Store:       cartStore,
		Health:      healthHandler,
		HTTPMetrics: middleware.NewHTTPMetrics(reg),
		Gatherer:    reg,
		Logger:      logger,
	})

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("cart store configured",
		slog.String("backend", cfg.StorageBackend),
		slog.String("layout", layout.Name()),
		slog.Bool("breaker", cfg.BreakerEnabled),
		slog.Bool("events", cfg.EventsEnabled()),
	)
	return a, nil
}

// Handler returns the HTTP handler of the service.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Store returns the cart store.
func (a *App) Store() *store.CartStore {
	return a.store
}

// Run loads the cart, starts the HTTP server and blocks until ctx is
// canceled. Requests arriving before the cart is loaded see 503 NOT_READY.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go a.store.Initialize(ctx)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if st := a.store.Status(); st.Dirty {
		a.logger.Warn("cart has unsaved changes, attempting final sync",
			slog.String("last_error", st.LastError),
		)
		if err := a.store.Sync(ctx); err != nil {
			a.logger.Error("final cart sync failed", slog.String("error", err.Error()))
		}
	}

	if a.events != nil {
		if err := a.events.Close(ctx); err != nil {
			a.logger.Error("cart event drain error", slog.String("error", err.Error()))
		}
		published, dropped, failed := a.events.Stats()
		a.logger.Info("cart events stopped",
			slog.Int64("published", published),
			slog.Int64("dropped", dropped),
			slog.Int64("failed", failed),
		)
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	if err := a.closeStorage(); err != nil {
		a.logger.Error("storage close error", slog.String("error", err.Error()))
	}

	if err := a.stopTracing(ctx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
