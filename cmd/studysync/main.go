package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/studysync-app/studysync/internal/config"
	"github.com/studysync-app/studysync/internal/handlers"
	"github.com/studysync-app/studysync/internal/httpx"
	"github.com/studysync-app/studysync/internal/outbox"
	"github.com/studysync-app/studysync/internal/platform"
	"github.com/studysync-app/studysync/internal/reminder"
	"github.com/studysync-app/studysync/internal/schedule"
	"github.com/studysync-app/studysync/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "studysync")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := platform.NewLogger(service)

	ctx, stop := platform.SignalContext()
	defer stop()

	otelShutdown, err := platform.SetupTracing(ctx, platform.TracingConfigFromEnv(service))
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
	pool, err := storage.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	users := storage.NewUserRepository(pool)
	groups := storage.NewGroupRepository(pool)
	projects := storage.NewProjectRepository(pool)
	intervals := storage.NewScheduleRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	engine := schedule.NewEngine(intervals, storage.NewDirectory(groups, projects), logger)

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	deadlineWorker := reminder.NewWorker(pool, projects, groups, outboxRepo, logger, reminder.WorkerConfig{
		Interval: config.Duration("REMINDER_POLL_INTERVAL", time.Minute),
		Lead:     config.Duration("REMINDER_LEAD", 24*time.Hour),
		Batch:    config.Int("REMINDER_BATCH_SIZE", 50),
	})
	go deadlineWorker.Run(ctx)

	userHandler := handlers.NewUserHandler(users, logger)
	groupHandler := handlers.NewGroupHandler(groups, projects, engine, logger)
	projectHandler := handlers.NewProjectHandler(projects, outboxRepo, engine, logger)
	availabilityHandler := handlers.NewAvailabilityHandler(intervals, engine, logger)
	calendarHandler := handlers.NewCalendarHandler(intervals, projects, logger)

	checks := []platform.ReadyCheck{
		{Name: "db", Check: storage.ReadyCheck(pool)},
		{Name: "kafka", Check: outbox.ReadyCheck(kafkaBrokers)},
	}

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
		checks = append(checks, platform.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	mux := platform.NewBaseMux(checks...)
	mux.HandleFunc("/api/v1/users", userHandler.Users)
	mux.HandleFunc("/api/v1/users/update", userHandler.Update)
	mux.HandleFunc("/api/v1/users/delete", userHandler.Delete)
	mux.HandleFunc("/api/v1/groups", groupHandler.Groups)
	mux.HandleFunc("/api/v1/groups/members", groupHandler.AddMember)
	mux.HandleFunc("/api/v1/groups/calendar", groupHandler.Calendar)
	mux.HandleFunc("/api/v1/projects", projectHandler.Projects)
	mux.HandleFunc("/api/v1/projects/participants", projectHandler.AddParticipant)
	mux.HandleFunc("/api/v1/projects/suggest", projectHandler.Suggest)
	mux.HandleFunc("/api/v1/projects/book", projectHandler.Book)
	mux.HandleFunc("/api/v1/projects/sessions", projectHandler.Sessions)
	mux.HandleFunc("/api/v1/availability", availabilityHandler.Availability)
	mux.HandleFunc("/api/v1/availability/update", availabilityHandler.Update)
	mux.HandleFunc("/api/v1/availability/delete", availabilityHandler.Delete)
	mux.HandleFunc("/api/v1/availability/derive", availabilityHandler.Derive)
	mux.HandleFunc("/api/v1/calendar/import", availabilityHandler.Import)
	mux.HandleFunc("/api/v1/calendar", calendarHandler.UserFeed)

	middleware := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ","),
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(6 << 20),
	}
	if rdb != nil {
		limiter := httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT", 120),
			config.Duration("RATE_LIMIT_WINDOW", time.Minute),
			service)
		middleware = append(middleware, limiter.Middleware(logger, true))
	}
	httpHandler := httpx.Chain(mux, middleware...)
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
