package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/carebridge/config"
	"github.com/jwalitptl/carebridge/internal/email"
	"github.com/jwalitptl/carebridge/internal/handler/health"
	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository/postgres"
	auditService "github.com/jwalitptl/carebridge/internal/service/audit"
	eventService "github.com/jwalitptl/carebridge/internal/service/event"
	transferService "github.com/jwalitptl/carebridge/internal/service/transfer"
	internalWorker "github.com/jwalitptl/carebridge/internal/worker"
	"github.com/jwalitptl/carebridge/pkg/logger"
	"github.com/jwalitptl/carebridge/pkg/messaging"
	"github.com/jwalitptl/carebridge/pkg/messaging/kafka"
	"github.com/jwalitptl/carebridge/pkg/messaging/redis"
	"github.com/jwalitptl/carebridge/pkg/metrics"
	"github.com/jwalitptl/carebridge/pkg/worker"
)

func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "path to config.yml")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	workerLogger := logger.NewLogger(cfg.Logging.ToLoggerConfig()).
		WithFields(map[string]interface{}{"worker_id": workerID()})
	log.Logger = workerLogger.ZL

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(cfg.Database.ToPostgresConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	m := metrics.NewMetrics("carebridge", "worker")
	checks := map[string]health.Checker{
		"database": health.CheckerFunc(db.PingContext),
	}

	sink, err := newSink(cfg, m, checks)
	if err != nil {
		log.Fatal().Err(err).Str("sink", cfg.Outbox.Sink).Msg("Failed to create outbox sink")
	}
	defer sink.Close()

	base := postgres.NewBaseRepository(db)
	userRepo := postgres.NewUserRepository(base)
	patientRepo := postgres.NewPatientRepository(base)
	outboxRepo := postgres.NewOutboxRepository(base)

	transfers := transferService.NewService(
		postgres.NewTransferRepository(base),
		patientRepo,
		userRepo,
		eventService.NewService(outboxRepo),
		auditService.NewService(postgres.NewAuditRepository(base), workerLogger),
		workerLogger,
		m,
	)

	var mail email.Service = email.NewLogService(&log.Logger)
	if cfg.Mail.Enabled {
		mail = email.NewSMTPService(cfg.Mail.ToMailConfig())
	}

	processor := worker.NewOutboxProcessor(outboxRepo, sink, cfg.Outbox.ToWorkerConfig(), workerLogger, m)
	processor.Handle(model.EventTransferRequested, internalWorker.NewTransferNotifier(userRepo, patientRepo, mail).HandleRequested)
	processor.Handle(model.EventAdmissionReconcile, internalWorker.NewAdmissionReconciler(transfers, workerLogger).HandleReconcile)

	cleanup := internalWorker.NewOutboxCleanupWorker(outboxRepo, cfg.Outbox.Retention, cfg.Outbox.CleanupInterval, workerLogger)

	srv := healthServer(cfg.Outbox.HealthPort, checks)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Health check server failed")
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()

	log.Info().Str("sink", cfg.Outbox.Sink).Msg("Worker started")
	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	wg.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Health check server forced to shutdown")
	}
}

func newSink(cfg *config.Config, m *metrics.Metrics, checks map[string]health.Checker) (messaging.Broker, error) {
	if cfg.Outbox.Sink == config.SinkKafka {
		kb, err := kafka.NewBroker(cfg.Kafka.ToKafkaConfig(), &log.Logger)
		if err != nil {
			return nil, err
		}
		return kb, nil
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required for the redis sink")
	}
	rb, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), &log.Logger, m)
	if err != nil {
		return nil, err
	}
	checks["redis"] = rb
	return rb, nil
}

func healthServer(port int, checks map[string]health.Checker) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	health.NewHandler(checks).RegisterRoutes(&engine.RouterGroup)

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func workerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("worker-%s-%d", hostname, os.Getpid())
}
