package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
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
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/scheduling"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9083")
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

	engineCfg, err := loadEngineConfig()
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

	outboxRepo := outbox.NewRepository()
	bookings := storage.NewBookingRepository(pool, outboxRepo)
	engine := scheduling.NewEngine(directory, storage.NewScheduleRepository(pool), bookings, engineCfg, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	topic := config.String("KAFKA_TOPIC", events.TopicBookingLifecycle)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		Topic:     topic,
		Entity:    "booking",
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

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

	limit, err := config.Int("RATE_LIMIT_PER_MINUTE", 120, 1, 100000)
	if err != nil {
		panic(err)
	}
	public := httpx.RateLimit(rdb, limit, time.Minute, "rl:booking", logger)

	bookingHandler := handlers.NewBookingHandler(engine, bookings, logger)
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/api/v1/public/slots", public(http.HandlerFunc(bookingHandler.Slots)))
	mux.Handle("/api/v1/public/validate", public(http.HandlerFunc(bookingHandler.Validate)))
	mux.Handle("/api/v1/public/book", public(http.HandlerFunc(bookingHandler.Create)))
	mux.HandleFunc("/api/v1/bookings", bookingHandler.List)
	mux.HandleFunc("/api/v1/bookings/reschedule", bookingHandler.Reschedule)
	mux.HandleFunc("/api/v1/bookings/status", bookingHandler.Status)
	mux.HandleFunc("/api/v1/bookings/delete", bookingHandler.Delete)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(64<<10),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
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

func loadEngineConfig() (scheduling.Config, error) {
	step, err := config.Int("SLOT_STEP_MINUTES", scheduling.DefaultSlotStep, 5, 240)
	if err != nil {
		return scheduling.Config{}, err
	}
	lead, err := config.Int("MIN_LEAD_MINUTES", scheduling.DefaultMinLead, 0, 7*24*60)
	if err != nil {
		return scheduling.Config{}, err
	}
	buffer, err := config.Int("BOOKING_BUFFER_MINUTES", scheduling.DefaultBuffer, 0, 240)
	if err != nil {
		return scheduling.Config{}, err
	}
	loc, err := config.Location("BUSINESS_TIMEZONE", "UTC")
	if err != nil {
		return scheduling.Config{}, err
	}
	return scheduling.Config{
		SlotStepMinutes: step,
		MinLeadMinutes:  lead,
		BufferMinutes:   buffer,
		Location:        loc,
	}, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
