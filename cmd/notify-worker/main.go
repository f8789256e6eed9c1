package main

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/careline/scheduling/internal/appointment"
	"github.com/careline/scheduling/internal/config"
	"github.com/careline/scheduling/internal/db"
	"github.com/careline/scheduling/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	log := newLogger(cfg.Env)
	defer func() { _ = log.Sync() }()

	log.Info("notify-worker starting",
		zap.String("env", cfg.Env),
		zap.Int("concurrency", cfg.NotifyConcurrency),
	)

	pgCtx, cancelPg := context.WithTimeout(context.Background(), 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	mailer, err := notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
	if err != nil {
		log.Fatal("smtp client error", zap.Error(err))
	}

	repo := appointment.NewPgRepository(pgPool)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		},
		asynq.Config{
			Concurrency: cfg.NotifyConcurrency,
			Queues:      map[string]int{notify.Queue: 1},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(notify.TaskDeliver, notify.NewDeliverHandler(repo, mailer, log))

	// Run blocks until SIGINT/SIGTERM and drains in-flight tasks.
	if err := srv.Run(mux); err != nil {
		log.Fatal("asynq server error", zap.Error(err))
	}

	log.Info("notify-worker stopped")
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
