package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logger"
	"github.com/hackgods/clinic-booking/internal/metrics"
	"github.com/hackgods/clinic-booking/internal/payment"
	"github.com/hackgods/clinic-booking/internal/prediction"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic("logger init error: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("api-server starting up",
		zap.String("version", version),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("lock_backend", cfg.LockBackend),
		zap.Duration("lock_ttl", cfg.LockTTL),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	if err := db.Migrate(rootCtx, pgPool); err != nil {
		log.Fatal("schema migration failed", zap.Error(err))
	}

	locker, redisPing, closeLocker, err := newLocker(rootCtx, cfg, log)
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer closeLocker()

	gateway := newGateway(cfg, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New("clinic", reg)

	repo := appointment.NewPgRepository(pgPool)
	svc := appointment.NewService(repo, locker, gateway, cfg, log, m)

	var ledger prediction.Ledger
	if cfg.LedgerEnabled {
		ledger = prediction.NewPgLedger(pgPool)
	} else {
		log.Warn("prediction ledger disabled, uploads will be refused")
	}
	reviews := prediction.NewService(prediction.NewPgRepository(pgPool), repo, ledger, log, m)

	health := api.NewHealthHandler(pgPool.Ping, redisPing, cfg.Env, version)

	router := api.NewRouter(api.RouterConfig{
		Service:           svc,
		Predictions:       reviews,
		Issuer:            auth.NewIssuer(cfg.JWTSecret, 0),
		Health:            health,
		Logger:            log,
		Metrics:           m,
		Gatherer:          reg,
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newLocker picks the slot lock backend. The in-process locker returns a nil
// ping, which health reports as disabled.
func newLocker(ctx context.Context, cfg config.Config, log *zap.Logger) (redisclient.Locker, api.PingFunc, func(), error) {
	if cfg.LockBackend == config.LockBackendLocal {
		log.Warn("using in-process slot locks, run a single api-server instance")
		return redisclient.NewLocalSlotLocker(), nil, func() {}, nil
	}

	rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))

	closeFn := func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", zap.Error(err))
		}
	}
	ping := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	return redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL), ping, closeFn, nil
}

// newGateway talks to Razorpay when credentials are configured. Outside
// prod an in-process gateway stands in so the booking flow runs locally.
func newGateway(cfg config.Config, log *zap.Logger) payment.Gateway {
	if cfg.RazorpayKeyID != "" && cfg.RazorpayKeySecret != "" {
		return payment.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	}
	if cfg.Env == "prod" {
		log.Fatal("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required in prod")
	}
	log.Warn("razorpay credentials not set, using in-memory payment gateway")
	return payment.NewMemoryGateway()
}
