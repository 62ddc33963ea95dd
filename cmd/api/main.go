package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/vidaclinic/scheduling-engine/internal/api/router"
	"github.com/vidaclinic/scheduling-engine/internal/appointments"
	"github.com/vidaclinic/scheduling-engine/internal/blocks"
	appconfig "github.com/vidaclinic/scheduling-engine/internal/config"
	"github.com/vidaclinic/scheduling-engine/internal/maintenance"
	"github.com/vidaclinic/scheduling-engine/internal/observability/metrics"
	"github.com/vidaclinic/scheduling-engine/internal/rooms"
	"github.com/vidaclinic/scheduling-engine/internal/schedule"
	"github.com/vidaclinic/scheduling-engine/internal/slots"
	"github.com/vidaclinic/scheduling-engine/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting scheduling-engine API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		logger.Error("invalid clinic timezone", "zone", cfg.ClinicTimezone, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pg pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// The engine degrades to uncached block reads, so a missing
			// Redis is a warning, not a startup failure.
			logger.Warn("redis unreachable, block calendar cache disabled", "error", err)
			redisClient = nil
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	schedMetrics := metrics.NewSchedulingMetrics(registry)

	// Stores and resolvers
	scheduleStore := schedule.NewStore(pool)
	scheduleResolver := schedule.NewResolver(scheduleStore)
	blockStore := blocks.NewStore(pool)
	blockResolver := blocks.NewResolver(blockStore, redisClient, cfg.BlockCacheTTL, schedMetrics, logger)
	roomStore := rooms.NewStore(pool)
	appointmentStore := appointments.NewStore(pool)

	generator := slots.NewGenerator(
		scheduleResolver, blockResolver, roomStore, appointmentStore,
		cfg.SameDayLeadTime, loc, schedMetrics, logger,
	)
	appointmentService := appointments.NewService(
		appointmentStore, generator, cfg.AutoConfirmWindow, loc, schedMetrics, logger,
	)

	// Debounced cache re-warm after block writes: recompute the current and
	// next month for the written scope so the next slot request hits warm.
	debouncer := slots.NewDebouncer(cfg.SlotDebounce, schedMetrics)
	defer debouncer.Stop()
	rewarm := func(scope blocks.Scope) {
		debouncer.Trigger("blockcal:"+scope.Key(), func() {
			warmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			now := time.Now().In(loc)
			for _, month := range []time.Time{now, now.AddDate(0, 1, 0)} {
				if _, err := blockResolver.MonthIndex(warmCtx, scope, month.Year(), month.Month()); err != nil {
					logger.Warn("block cache re-warm failed", "scope", scope.Key(), "error", err)
					return
				}
			}
		})
	}
	coordinator := maintenance.NewCoordinator(pool, blockStore, blockResolver, rewarm, schedMetrics, logger)

	// Handlers
	slotsHandler := slots.NewHandler(generator, appointments.PreserveLookup(appointmentStore), logger)
	blocksHandler := blocks.NewHandler(blockResolver, logger)
	maintenanceHandler := maintenance.NewHandler(coordinator, logger)
	appointmentsHandler := appointments.NewHandler(appointmentService, logger)
	scheduleHandler := schedule.NewHandler(scheduleStore, func(providerID uuid.UUID) {
		rewarm(blocks.ProviderScope(providerID))
	}, logger)
	roomsHandler := rooms.NewHandler(roomStore, logger)

	r := router.New(&router.Config{
		Logger:              logger,
		SlotsHandler:        slotsHandler,
		BlocksHandler:       blocksHandler,
		MaintenanceHandler:  maintenanceHandler,
		AppointmentsHandler: appointmentsHandler,
		ScheduleHandler:     scheduleHandler,
		RoomsHandler:        roomsHandler,
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		HealthCheck: func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Ping(pingCtx)
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}
