// Command server runs the certification registry HTTP service.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"baseproof/internal/certificate/cache"
	"baseproof/internal/certificate/fees"
	"baseproof/internal/certificate/handler"
	certmetrics "baseproof/internal/certificate/metrics"
	"baseproof/internal/certificate/service"
	"baseproof/internal/certificate/store"
	"baseproof/internal/events"
	"baseproof/internal/jwtauth"
	"baseproof/internal/platform/config"
	"baseproof/internal/platform/httpserver"
	"baseproof/internal/platform/logger"
	"baseproof/internal/platform/metrics"
	"baseproof/internal/platform/postgres"
	"baseproof/internal/platform/redis"
	transport "baseproof/internal/transport/http"
)

func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	var st store.Store
	db, err := postgres.Open(cfg.PostgresURL)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		pg := store.NewPostgres(db, cfg.MaxPageSize)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		st = pg
		log.Info("using postgres store")
	} else {
		st = store.NewMemoryStore(cfg.MaxPageSize)
		log.Info("using in-memory store")
	}

	var verificationCache *cache.VerificationCache
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		verificationCache = cache.New(redisClient.Client, config.VerificationCacheTTL)
		log.Info("verification cache enabled")
	}

	var sink events.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := events.NewKafkaSink(ctx, cfg.Kafka)
		if err != nil {
			return err
		}
		defer kafkaSink.Close()
		sink = kafkaSink
		log.Info("kafka event sink enabled", "topic", cfg.Kafka.Topic)
	} else {
		sink = events.NewMemorySink()
		log.Info("using in-memory event sink")
	}

	publisher := events.NewChannelPublisher(0)
	worker := events.NewWorker(sink, publisher.Inbox(), log)

	policy := fees.NewPolicy(cfg.CertificationFee, cfg.TransferFee, fees.DefaultTiers())
	svc := service.New(st, publisher, policy, verificationCache, certmetrics.New(), service.Config{
		RevocationCooldown: cfg.RevocationCooldown,
		MaxBulkSize:        cfg.MaxBulkSize,
		MaxPageSize:        cfg.MaxPageSize,
	}, log)

	tokens := jwtauth.New(cfg.JWTSigningKey, "baseproof", "baseproof-api")
	router := transport.New(transport.Deps{
		Certificates: handler.New(svc, log),
		Tokens:       tokens,
		Metrics:      metrics.New(),
		Logger:       log,
	})

	server := httpserver.New(cfg.Addr, router)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		log.Info("listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
