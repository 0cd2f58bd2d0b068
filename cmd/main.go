package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"github.com/fathima-sithara/conversation-service/config"
	"github.com/fathima-sithara/conversation-service/internal/cache"
	"github.com/fathima-sithara/conversation-service/internal/events"
	"github.com/fathima-sithara/conversation-service/internal/handlers"
	"github.com/fathima-sithara/conversation-service/internal/ingest"
	"github.com/fathima-sithara/conversation-service/internal/logger"
	"github.com/fathima-sithara/conversation-service/internal/middleware"
	"github.com/fathima-sithara/conversation-service/internal/readstate"
	"github.com/fathima-sithara/conversation-service/internal/repository"
	"github.com/fathima-sithara/conversation-service/internal/storage"
	"github.com/fathima-sithara/conversation-service/internal/store"
	"github.com/fathima-sithara/conversation-service/internal/throttle"
	"github.com/fathima-sithara/conversation-service/internal/ws"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfg, err := config.Load(os.Getenv("APP_CONFIG"))
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zlog, err := logger.New(logger.Config{Development: cfg.Server.Development})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	mc, err := repository.NewMongoClient(cfg)
	if err != nil {
		zlog.Fatalw("mongo init", "err", err)
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()
	repo := repository.NewMongoRepository(mc.Database(cfg.Mongo.Database))

	rds, err := cache.NewRedis(cfg)
	if err != nil {
		zlog.Fatalw("redis init", "err", err)
	}
	defer func() { _ = rds.Close() }()

	jv, err := middleware.NewValidator(cfg.JWT.PublicKeyPath)
	if err != nil {
		zlog.Fatalw("jwt validator init", "err", err)
	}

	ctx := context.Background()
	s3store, err := storage.NewS3Store(ctx, cfg.S3)
	if err != nil {
		zlog.Fatalw("s3 init", "err", err)
	}
	ingestor := ingest.New(s3store, zlog)

	publisher := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.EventTopic)
	defer func() { _ = publisher.Close() }()
	gate := throttle.NewRedisThrottler(rds.Cli, cfg.Redis.Prefix)
	gated := events.NewGated(publisher, gate, zlog)

	hub := ws.NewHub()
	st := store.New(repo, hub, gated, zlog)
	tracker := readstate.NewTracker(repo, publisher, zlog)
	wsSrv := ws.NewServer(hub, st, tracker, jv, rds, zlog)

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		BodyLimit:    64 << 20,
	})
	handlers.Register(app, handlers.New(st, tracker, ingestor, zlog), wsSrv, jv)

	errs := make(chan error, 1)
	go func() {
		errs <- app.Listen(":" + cfg.Server.Port)
	}()
	zlog.Infow("conversation service started", "port", cfg.Server.Port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case e := <-errs:
		zlog.Fatalw("server error", "err", e)
	case s := <-sig:
		zlog.Infow("signal received", "signal", s.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zlog.Warnw("fiber shutdown", "err", err)
	}
	zlog.Infow("conversation service stopped")
}
