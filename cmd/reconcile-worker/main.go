package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logger"
	"github.com/hackgods/clinic-booking/internal/metrics"
)

func main() {
	cfg, err := config.LoadStorage()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic("logger init error: " + err.Error())
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("component", "reconcile-worker"))

	log.Info("reconcile worker starting up", zap.String("schedule", cfg.ReconcileSpec))

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

	reg := prometheus.NewRegistry()
	m := metrics.New("clinic", reg)

	// Reconcile only touches the repository, no lock or gateway needed.
	svc := appointment.NewService(appointment.NewPgRepository(pgPool), nil, nil, cfg, log, m)

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", zap.Error(err))
		}
	}()

	// Run once at startup
	runOnce(rootCtx, svc, log)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})))
	if _, err := c.AddFunc(cfg.ReconcileSpec, func() { runOnce(rootCtx, svc, log) }); err != nil {
		log.Fatal("invalid RECONCILE_SCHEDULE", zap.String("spec", cfg.ReconcileSpec), zap.Error(err))
	}
	c.Start()

	<-rootCtx.Done()
	log.Info("shutdown signal received, stopping reconcile worker")

	// wait for a running pass to finish
	<-c.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}

func runOnce(ctx context.Context, svc *appointment.Service, log *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	report, err := svc.Reconcile(runCtx)
	if err != nil {
		log.Error("reconcile run error", zap.Error(err))
		return
	}
	log.Info("reconcile run complete",
		zap.Duration("took", time.Since(start)),
		zap.Int("released", len(report.Released)),
		zap.Int("unindexed", len(report.Unindexed)),
	)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
