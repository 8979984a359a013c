package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/salonpos/libs/catalog"
	"github.com/md-rashed-zaman/salonpos/libs/config"
	"github.com/md-rashed-zaman/salonpos/libs/db"
	"github.com/md-rashed-zaman/salonpos/libs/events"
	"github.com/md-rashed-zaman/salonpos/libs/grpcx"
	"github.com/md-rashed-zaman/salonpos/libs/httpx"
	"github.com/md-rashed-zaman/salonpos/libs/kafkax"
	otelx "github.com/md-rashed-zaman/salonpos/libs/otel"
	"github.com/md-rashed-zaman/salonpos/libs/runtime"
	"github.com/md-rashed-zaman/salonpos/services/ledger-service/internal/consumer"
	"github.com/md-rashed-zaman/salonpos/services/ledger-service/internal/handlers"
	"github.com/md-rashed-zaman/salonpos/services/ledger-service/internal/inbox"
	"github.com/md-rashed-zaman/salonpos/services/ledger-service/internal/projection"
	"github.com/md-rashed-zaman/salonpos/services/ledger-service/internal/retry"
	"github.com/md-rashed-zaman/salonpos/services/ledger-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "ledger-service")
	port, err := config.Port("PORT", "8090")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9090")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.ShutdownContext(logger)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	loc, err := config.Location("BUSINESS_TIMEZONE", "UTC")
	if err != nil {
		panic(err)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	maxConns, err := config.Int("DB_MAX_CONNS", 10, 1, 500)
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(maxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: config.String("REDIS_PASSWORD", "")})
		defer func() { _ = rdb.Close() }()
	}

	var directory catalog.Directory = catalog.NewPostgres(pool)
	if rdb != nil {
		ttl, err := config.Duration("CATALOG_CACHE_TTL", time.Minute)
		if err != nil {
			panic(err)
		}
		directory = catalog.NewCached(directory, catalog.NewRedisCache(rdb), ttl, logger)
	}

	retryCfg, maxAttempts, lease, err := loadRetryConfig()
	if err != nil {
		panic(err)
	}
	retries := retry.NewRepository(pool, maxAttempts, lease)
	mirror := storage.NewMirrorRepository(pool)
	ledger := storage.NewLedgerRepository(pool)
	projector := projection.NewProjector(directory, mirror, ledger, retries, logger, projection.WithLocation(loc))

	go retry.NewWorker(retries, projector, logger, retryCfg).Run(ctx)

	brokers := config.String("KAFKA_BROKERS", "")
	topic := config.String("KAFKA_TOPIC", events.TopicBookingLifecycle)
	backoff, err := config.Duration("CONSUMER_BACKOFF", time.Second)
	if err != nil {
		panic(err)
	}
	lifecycleConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", service),
		Topic:   topic,
		Backoff: backoff,
	}, lifecycleHandler(projector, logger))
	go lifecycleConsumer.Run(ctx)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers, topic)},
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: catalog.ReadyCheck(rdb)})
	}

	grpcSrv := grpcx.NewServer(logger)
	go grpcx.NewHealthReporter(grpcSrv, service, logger, 10*time.Second, checks...).Run(ctx)
	go func() {
		if err := grpcx.Serve(ctx, logger, net.JoinHostPort("", grpcPort), grpcSrv); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	ledgerHandler := handlers.NewLedgerHandler(ledger, mirror, retries, projector, logger)
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.HandleFunc("/api/v1/ledger/entries", ledgerHandler.Entries)
	mux.HandleFunc("/api/v1/ledger/mirror", ledgerHandler.Mirror)
	mux.HandleFunc("/api/v1/ledger/void", ledgerHandler.Void)
	mux.HandleFunc("/api/v1/ledger/retries", ledgerHandler.Retries)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(64<<10),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "ledger")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// lifecycleHandler drops undecodable payloads: redelivery cannot fix them.
func lifecycleHandler(projector *projection.Projector, logger *slog.Logger) consumer.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		evt, err := events.DecodeBookingLifecycle(msg.Value)
		if err != nil {
			logger.Error("invalid booking lifecycle payload", "err", err, "offset", msg.Offset, "partition", msg.Partition)
			return nil
		}
		return projector.Handle(ctx, evt)
	}
}

func loadRetryConfig() (retry.WorkerConfig, int, time.Duration, error) {
	maxAttempts, err := config.Int("RETRY_MAX_ATTEMPTS", 8, 1, 100)
	if err != nil {
		return retry.WorkerConfig{}, 0, 0, err
	}
	lease, err := config.Duration("RETRY_LEASE", time.Minute)
	if err != nil {
		return retry.WorkerConfig{}, 0, 0, err
	}
	interval, err := config.Duration("RETRY_INTERVAL", 2*time.Second)
	if err != nil {
		return retry.WorkerConfig{}, 0, 0, err
	}
	backoff, err := config.Duration("RETRY_BACKOFF", 10*time.Second)
	if err != nil {
		return retry.WorkerConfig{}, 0, 0, err
	}
	maxBackoff, err := config.Duration("RETRY_MAX_BACKOFF", 30*time.Minute)
	if err != nil {
		return retry.WorkerConfig{}, 0, 0, err
	}
	return retry.WorkerConfig{
		Interval:   interval,
		BatchSize:  50,
		Backoff:    backoff,
		MaxBackoff: maxBackoff,
	}, maxAttempts, lease, nil
}
