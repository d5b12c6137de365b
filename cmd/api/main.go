package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/carebridge/config"
	"github.com/jwalitptl/carebridge/internal/handler/health"
	medicalHandler "github.com/jwalitptl/carebridge/internal/handler/medical"
	messageHandler "github.com/jwalitptl/carebridge/internal/handler/message"
	patientHandler "github.com/jwalitptl/carebridge/internal/handler/patient"
	transferHandler "github.com/jwalitptl/carebridge/internal/handler/transfer"
	userHandler "github.com/jwalitptl/carebridge/internal/handler/user"
	"github.com/jwalitptl/carebridge/internal/middleware"
	"github.com/jwalitptl/carebridge/internal/repository/postgres"
	"github.com/jwalitptl/carebridge/internal/router"
	auditService "github.com/jwalitptl/carebridge/internal/service/audit"
	eventService "github.com/jwalitptl/carebridge/internal/service/event"
	identityService "github.com/jwalitptl/carebridge/internal/service/identity"
	medicalService "github.com/jwalitptl/carebridge/internal/service/medical"
	messageService "github.com/jwalitptl/carebridge/internal/service/message"
	patientService "github.com/jwalitptl/carebridge/internal/service/patient"
	summaryService "github.com/jwalitptl/carebridge/internal/service/summary"
	transferService "github.com/jwalitptl/carebridge/internal/service/transfer"
	"github.com/jwalitptl/carebridge/pkg/auth"
	"github.com/jwalitptl/carebridge/pkg/genai"
	"github.com/jwalitptl/carebridge/pkg/logger"
	"github.com/jwalitptl/carebridge/pkg/messaging"
	"github.com/jwalitptl/carebridge/pkg/messaging/redis"
	"github.com/jwalitptl/carebridge/pkg/metrics"
	"github.com/jwalitptl/carebridge/pkg/realtime"
	"github.com/jwalitptl/carebridge/pkg/storage/s3"
)

func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "path to config.yml")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(cfg.Logging.ToLoggerConfig())
	log.Logger = appLogger.ZL

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := postgres.NewDB(cfg.Database.ToPostgresConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
	}

	base := postgres.NewBaseRepository(db)
	userRepo := postgres.NewUserRepository(base)
	patientRepo := postgres.NewPatientRepository(base)
	transferRepo := postgres.NewTransferRepository(base)
	recordRepo := postgres.NewHealthRecordRepository(base)
	reportRepo := postgres.NewMedicalReportRepository(base)
	messageRepo := postgres.NewMessageRepository(base)
	outboxRepo := postgres.NewOutboxRepository(base)
	auditRepo := postgres.NewAuditRepository(base)

	m := metrics.NewMetrics("carebridge", "api")

	checks := map[string]health.Checker{
		"database": health.CheckerFunc(db.PingContext),
	}

	// Realtime fan-out. Without Redis a single instance relays in process.
	var broker messaging.Broker
	if cfg.Redis.URL != "" {
		rb, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), &log.Logger, m)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		checks["redis"] = rb
		broker = rb
	} else {
		log.Warn().Msg("redis.url not set, realtime messages stay on this instance")
		broker = messaging.NewLocalBroker()
	}
	defer broker.Close()

	hub := realtime.NewHub(&log.Logger, cfg.Server.AllowedOrigins)
	go func() {
		err := messaging.Consume(ctx, broker, messaging.ChannelTransferMessages, hub.Forwarder(), func(err error) {
			log.Warn().Err(err).Msg("failed to forward transfer message")
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("transfer message subscription ended")
		}
	}()

	objects, err := s3.NewStore(ctx, cfg.Storage.ToStorageConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create object store client")
	}
	checks["storage"] = objects

	jwtSvc, err := auth.NewHMACService(cfg.JWT.Secret, cfg.JWT.Issuer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token validator")
	}

	// Services
	auditor := auditService.NewService(auditRepo, appLogger)
	identitySvc := identityService.NewService(jwtSvc, userRepo, cfg.Cache.UserTTL)
	transferSvc := transferService.NewService(
		transferRepo,
		patientRepo,
		userRepo,
		eventService.NewService(outboxRepo),
		auditor,
		appLogger,
		m,
	)
	patientSvc := patientService.NewService(patientRepo, userRepo, auditor)
	recordSvc := medicalService.NewRecordService(recordRepo, patientRepo, auditor)
	reportSvc := medicalService.NewReportService(reportRepo, patientRepo, objects, auditor, appLogger, m)
	summarySvc := summaryService.NewService(recordRepo, patientRepo, genai.NewClient(cfg.Gemini.ToGeminiConfig(), &log.Logger), appLogger, m)
	messageSvc := messageService.NewService(messageRepo, transferSvc, broker, appLogger, m)

	r := router.NewRouter(
		middleware.NewAuthMiddleware(identitySvc),
		health.NewHandler(checks),
		[]router.Handler{
			userHandler.NewHandler(identitySvc),
			patientHandler.NewHandler(patientSvc),
			transferHandler.NewHandler(transferSvc),
			messageHandler.NewHandler(messageSvc, transferSvc, hub),
			medicalHandler.NewHandler(recordSvc, reportSvc, summarySvc),
		},
		m,
		router.RouterConfig{
			Mode:      cfg.Server.Mode,
			RateLimit: cfg.RateLimit.ToRateLimiterConfig(),
			CORS:      middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins),
			BodyLimit: middleware.BodyLimitConfig{
				MaxBodySize:   cfg.Server.MaxBodySize,
				MaxUploadSize: cfg.Server.MaxUploadSize,
			},
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}
