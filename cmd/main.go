package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"carbook/internal/booking"
	"carbook/internal/cache"
	"carbook/internal/db"
	"carbook/internal/kafka"
	"carbook/internal/lock"
	"carbook/internal/logger"
	"carbook/internal/repository/postgresql"
	"carbook/internal/server"
	"carbook/internal/storage"
)

const defaultLockTimeout = 3 * time.Second

func main() {
	log := logger.New()
	defer func() {
		_ = log.Sync()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db.LoadEnv()

	var (
		store    booking.Store
		userRepo server.UserRepo
	)

	switch backend := os.Getenv("STORAGE_BACKEND"); backend {
	case "", "postgres":
		database, err := db.NewDb(ctx)
		if err != nil {
			log.Fatal("database init error", zap.Error(err))
		}
		db.InitAdmin(database)

		reservationRepo := postgresql.NewReservationRepo(database)
		eventRepo := postgresql.NewEventRepo(database)
		outboxRepo := postgresql.NewOutboxTaskRepo()
		userRepo = postgresql.NewUserRepo(database)

		pgStore := storage.NewPostgresStore(database, reservationRepo, eventRepo, outboxRepo)

		resCache := cache.NewReservationCache(pgStore, log)
		if err := resCache.LoadInitialData(ctx); err != nil {
			log.Fatal("failed to warm reservation cache", zap.Error(err))
		}
		store = pgStore.WithCache(resCache)

		publisher := kafka.NewPublisher(database, outboxRepo, newProducer(log), kafka.PublisherConfig{
			PollInterval: 2 * time.Second,
			BatchSize:    50,
			MaxAttempts:  5,
		}, log)
		go publisher.Run(ctx)
		defer publisher.Shutdown()

	case "file":
		filePath := os.Getenv("RESERVATIONS_FILE")
		if filePath == "" {
			filePath = "reservations.json"
		}
		fileStore, err := storage.NewFileStore(filePath)
		if err != nil {
			log.Fatal("file store init error", zap.Error(err))
		}
		store = fileStore
		userRepo = envUserRepo{}

	default:
		log.Fatal("unknown STORAGE_BACKEND", zap.String("backend", backend))
	}

	manager := booking.NewManager(store, booking.NewChecker(store), lock.NewKeyed(lockTimeout()), log)
	srv := server.New(manager, userRepo, log)

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "9000"
	}

	go func() {
		if err := srv.Run(ctx, port); err != nil {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
}

func newProducer(log *zap.Logger) kafka.Producer {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		return kafka.NewConsoleProducer()
	}
	log.Info("using kafka producer", zap.String("brokers", brokers))
	return kafka.NewWriterProducer(strings.Split(brokers, ","))
}

func lockTimeout() time.Duration {
	raw := os.Getenv("CAR_LOCK_TIMEOUT")
	if raw == "" {
		return defaultLockTimeout
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultLockTimeout
	}
	return d
}

// envUserRepo backs basic auth when running without Postgres.
type envUserRepo struct{}

func (envUserRepo) ValidateUser(_ context.Context, username, password string) (bool, error) {
	return username == os.Getenv("API_USERNAME") && password == os.Getenv("API_PASSWORD"), nil
}
