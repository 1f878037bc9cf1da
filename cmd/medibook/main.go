package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/thinhgangg/medibook/internal/booking"
	"github.com/thinhgangg/medibook/internal/handlers"
	"github.com/thinhgangg/medibook/internal/metrics"
	"github.com/thinhgangg/medibook/internal/outbox"
	"github.com/thinhgangg/medibook/internal/schedule"
	"github.com/thinhgangg/medibook/internal/storage"
	"github.com/thinhgangg/medibook/libs/config"
	"github.com/thinhgangg/medibook/libs/db"
	"github.com/thinhgangg/medibook/libs/httpx"
	"github.com/thinhgangg/medibook/libs/kafkax"
	otelx "github.com/thinhgangg/medibook/libs/otel"
	"github.com/thinhgangg/medibook/libs/runtime"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "medibook")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool, outboxRepo)
	scheduleRepo := storage.NewScheduleRepository(pool)

	bookingSvc := booking.NewService(bookingRepo, logger, booking.Config{
		BufferMinutes: config.Int("APPOINTMENT_BUFFER_MINUTES", 0),
	})
	scheduleSvc := schedule.NewService(scheduleRepo, logger)

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)
	apptHandler := handlers.NewAppointmentsHandler(bookingSvc, logger, bookingMetrics)
	slotsHandler := handlers.NewSlotsHandler(bookingSvc, logger, bookingMetrics)
	scheduleHandler := handlers.NewScheduleHandler(scheduleSvc, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)},
	)
	mux.Handle("/metrics", promhttp.Handler())

	authed := handlers.WithActor(jwtSecret)
	mux.HandleFunc("/api/v1/doctors/slots", slotsHandler.Slots)
	mux.Handle("/api/v1/appointments", httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			apptHandler.List(w, r)
			return
		}
		apptHandler.Create(w, r)
	}), authed))
	mux.Handle("/api/v1/appointments/confirm", httpx.Chain(http.HandlerFunc(apptHandler.Confirm), authed))
	mux.Handle("/api/v1/appointments/complete", httpx.Chain(http.HandlerFunc(apptHandler.Complete), authed))
	mux.Handle("/api/v1/appointments/cancel", httpx.Chain(http.HandlerFunc(apptHandler.Cancel), authed))
	mux.Handle("/api/v1/appointments/reschedule", httpx.Chain(http.HandlerFunc(apptHandler.Reschedule), authed))
	mux.Handle("/api/v1/schedule/availabilities", httpx.Chain(http.HandlerFunc(scheduleHandler.Rules), authed))
	mux.Handle("/api/v1/schedule/dayoffs", httpx.Chain(http.HandlerFunc(scheduleHandler.DayOffs), authed))

	rateLimitMW := rateLimitMiddleware(logger)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", "*"), ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1<<20),
		rateLimitMW,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

// rateLimitMiddleware prefers the Redis fixed-window limiter when REDIS_ADDR
// is set so limits hold across instances; otherwise it falls back to the
// in-memory limiter.
func rateLimitMiddleware(logger *slog.Logger) httpx.Middleware {
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
		})
		return httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "medibook").Middleware(logger, true)
	}
	return httpx.NewRateLimiter(limit, time.Minute).Middleware()
}
