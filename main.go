package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	cartapp "github.com/greengrove/plantshop/internal/application/cart"
	"github.com/greengrove/plantshop/internal/application/checkout"
	orderapp "github.com/greengrove/plantshop/internal/application/order"
	"github.com/greengrove/plantshop/internal/infrastructure/catalogcache"
	httptransport "github.com/greengrove/plantshop/internal/infrastructure/http"
	"github.com/greengrove/plantshop/internal/infrastructure/id"
	"github.com/greengrove/plantshop/internal/infrastructure/memory"
	"github.com/greengrove/plantshop/internal/infrastructure/notification"
	"github.com/greengrove/plantshop/internal/infrastructure/outbox"
	"github.com/greengrove/plantshop/internal/infrastructure/postgres"
	"github.com/greengrove/plantshop/internal/infrastructure/vnpay"
	"github.com/greengrove/plantshop/internal/pkg/logging"
	"github.com/greengrove/plantshop/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	serviceName := getenvDefault("SERVICE_NAME", "plantshop")
	env := getenvDefault("ENV", "dev")
	baseLogger := logging.MustNewLogger(serviceName, env)
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	store, cleanup, err := buildStore(baseLogger)
	if err != nil {
		baseLogger.Fatal("store_init_failed", zap.Error(err))
	}
	defer cleanup()

	checkoutRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_requests_total",
			Help: "Total checkout attempts by outcome.",
		},
		[]string{"outcome"},
	)
	checkoutDurations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkout_duration_seconds",
			Help:    "Duration of the checkout use case in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{},
	)
	ipnResults := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipn_results_total",
			Help: "Payment callback outcomes by result code.",
		},
		[]string{"code"},
	)
	notifyFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_publish_failed_total",
			Help: "Count of confirmation notifications that failed to send.",
		},
	)
	httpMetrics := &httptransport.Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		),
		Durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
	prometheus.MustRegister(
		checkoutRequests, checkoutDurations, ipnResults, notifyFailures,
		httpMetrics.Requests, httpMetrics.Durations,
	)

	gateway := vnpay.NewGateway(vnpay.Config{
		TmnCode:    os.Getenv("VNPAY_TMN_CODE"),
		HashSecret: os.Getenv("VNPAY_HASH_SECRET"),
		PayURL:     getenvDefault("VNPAY_PAY_URL", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"),
		ReturnURL:  getenvDefault("VNPAY_RETURN_URL", "http://localhost:8080/payment/vnpay/return"),
	})

	bus := outbox.NewBus(baseLogger)
	bus.Start(context.Background())
	defer bus.Stop()

	checkoutSvc := checkout.NewService(store, id.NewUUIDGenerator(), bus, gateway).
		WithMetrics(checkoutRequests, checkoutDurations)
	orderSvc := orderapp.NewService(store, bus)
	cartSvc := cartapp.NewService(store.Carts(), buildProductReader(store, baseLogger))
	ipn := vnpay.NewIPN(gateway, orderSvc).WithMetrics(ipnResults)

	sender := notification.NewWebhookSender(
		getenvDefault("NOTIFY_WEBHOOK_URL", "http://localhost:9090/notify"), nil)
	notification.NewWorker(bus, sender).WithMetrics(notifyFailures).Start()

	handler := httptransport.NewHandler(checkoutSvc, orderSvc, cartSvc, ipn)
	router := chi.NewRouter()
	router.Use(httptransport.Observability(baseLogger, httpMetrics))
	router.Group(handler.Routes)
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    getenvDefault("ADDR", ":8080"),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		baseLogger.Info("http_server_start", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		baseLogger.Error("server_error", zap.Error(err))
	} else {
		baseLogger.Info("http_server_stopped")
	}
}

// buildStore selects the persistence profile: in-memory for dev, postgres
// for everything else.
func buildStore(logger *zap.Logger) (storage.Store, func(), error) {
	switch getenvDefault("STORE", "memory") {
	case "postgres":
		port, err := strconv.Atoi(getenvDefault("DATABASE_PORT", "5432"))
		if err != nil {
			return nil, nil, err
		}
		store, err := postgres.NewStore(&postgres.Credentials{
			Host:     getenvDefault("DATABASE_HOST", "localhost"),
			Port:     port,
			User:     getenvDefault("DATABASE_USER", "plantshop"),
			Password: os.Getenv("DATABASE_PASSWORD"),
			DBName:   getenvDefault("DATABASE_NAME", "plantshop"),
		})
		if err != nil {
			return nil, nil, err
		}
		migrations := getenvDefault("MIGRATIONS_DIR", "internal/infrastructure/postgres/migrations")
		if err := store.RunMigrations(migrations); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		logger.Info("store_ready", zap.String("profile", "postgres"))
		return store, func() { _ = store.Close() }, nil
	default:
		logger.Info("store_ready", zap.String("profile", "memory"))
		return memory.NewStore(), func() {}, nil
	}
}

// buildProductReader fronts catalog reads with redis when configured.
func buildProductReader(store storage.Store, logger *zap.Logger) cartapp.ProductReader {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return store.Products()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	logger.Info("catalog_cache_enabled", zap.String("addr", addr))
	return catalogcache.New(client, store.Products())
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
