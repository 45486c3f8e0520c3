package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/uva-judge/internal/config"
	"github.com/noah-isme/uva-judge/internal/database"
	"github.com/noah-isme/uva-judge/internal/handler"
	"github.com/noah-isme/uva-judge/internal/judge"
	"github.com/noah-isme/uva-judge/internal/middleware"
	"github.com/noah-isme/uva-judge/internal/observability"
	"github.com/noah-isme/uva-judge/internal/repository"
	"github.com/noah-isme/uva-judge/internal/router"
	"github.com/noah-isme/uva-judge/internal/service"
	"github.com/noah-isme/uva-judge/pkg/process"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.AppEnv, "uva-judge-api")

	var history repository.JudgedSubmissionRepository
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := database.Migrate(db); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate database")
		}
		history = repository.NewJudgedSubmissionRepository(db)
	} else {
		logger.Warn().Msg("database url not set, verdict history disabled")
	}

	var cache repository.VerdictCache
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		cache = repository.NewRedisVerdictCache(redisClient, cfg.CacheTTL)
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Drain()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	runner := process.NewLocalRunner(process.Config{
		MaxOutputBytes: cfg.MaxOutputBytes,
		Logger:         logger,
	})
	evaluator := judge.NewEvaluator(cfg.JudgeConfig(), runner, judge.NewRegistry(), logger)

	problems := repository.NewFileProblemRepository(cfg.ProblemDirectory)
	publisher := service.NewNATSVerdictPublisher(natsConn, cfg.NATSSubject)

	judgeService := service.NewJudgeService(service.JudgeServiceConfig{
		Languages:      cfg.LanguageDefinitions(),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, problems, history, cache, publisher, evaluator, validate, logger)
	catalogService := service.NewCatalogService(problems, cfg.LanguageNames(), logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:    logger,
		AccessLog: cfg.AppEnv == "development",
	})
	router.Register(app, cfg, router.Dependencies{
		JudgeHandler:   handler.NewJudgeHandler(judgeService, cfg.MaxUploadBytes, logger),
		CatalogHandler: handler.NewCatalogHandler(catalogService, logger),
		Redis:          redisClient,
	})

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress()).Str("problems", cfg.ProblemDirectory).Msg("judge listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	// in-flight evaluations need time to finish and clean their workspaces
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
