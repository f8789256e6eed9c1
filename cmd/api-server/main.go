package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/careline/scheduling/internal/api"
	"github.com/careline/scheduling/internal/appointment"
	"github.com/careline/scheduling/internal/config"
	"github.com/careline/scheduling/internal/db"
	"github.com/careline/scheduling/internal/notify"
	redisclient "github.com/careline/scheduling/internal/redis"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	log := newLogger(cfg.Env)
	defer func() { _ = log.Sync() }()

	log.Info("api-server starting",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.Duration("slot_duration", cfg.SlotDuration),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Migrations first, so the partial unique index exists before any booking.
	migCtx, cancelMig := context.WithTimeout(rootCtx, 30*time.Second)
	err = db.Migrate(migCtx, cfg.PostgresDSN)
	cancelMig()
	if err != nil {
		log.Fatal("migration error", zap.Error(err))
	}

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", zap.Error(err))
		}
	}()
	log.Info("connected to Redis")

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			log.Warn("error closing asynq client", zap.Error(err))
		}
	}()

	repo := appointment.NewPgRepository(pgPool)
	checker := appointment.NewChecker(repo, appointment.WorkingHours{
		Start: cfg.WorkdayStart,
		End:   cfg.WorkdayEnd,
		Slot:  cfg.SlotDuration,
	})
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	notifier := notify.NewQueueSender(asynqClient)
	svc := appointment.NewService(repo, checker, locker, notifier, log)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		PgPool:  pgPool,
		Redis:   rdb,
		Logger:  log,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	if env == "dev" {
		log, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return log
	}
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return log
}
