package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/contestvn/exam-backend/internal/config"
	"github.com/contestvn/exam-backend/internal/database"
	"github.com/contestvn/exam-backend/internal/export"
	"github.com/contestvn/exam-backend/internal/handler"
	"github.com/contestvn/exam-backend/internal/logger"
	"github.com/contestvn/exam-backend/internal/questionbank"
	"github.com/contestvn/exam-backend/internal/repository"
	"github.com/contestvn/exam-backend/internal/router"
	"github.com/contestvn/exam-backend/internal/service"
	"github.com/contestvn/exam-backend/internal/validator"
	"github.com/contestvn/exam-backend/internal/worker"
)

func main() {
	cfg := config.Load()

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting contest backend")

	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	bank, err := questionbank.Load(cfg.QuestionBankPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.QuestionBankPath).Msg("Failed to load question bank")
	}
	log.Info().Int("questions", bank.Len()).Msg("Question bank loaded")

	accountRepo := repository.NewAccountRepository(pool)

	// Result export: services push rows onto a Redis queue, a worker
	// drains it into the spreadsheet. Disabled cleanly when unconfigured.
	var exporter service.ResultExporter
	var exportSink export.Sink
	if cfg.Sheets.Enabled {
		sink, err := export.NewSheetsSink(ctx, cfg.Sheets, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize spreadsheet sink")
		}
		exportSink = sink
		exporter = export.NewDispatcher(rdb, log)
		log.Info().Str("sheet", cfg.Sheets.SheetName).Msg("Result export enabled")
	} else {
		log.Info().Msg("Result export disabled")
	}

	authService := service.NewAuthService(cfg, rdb, accountRepo, log)
	examService := service.NewExamService(accountRepo, bank, cfg.Exam, exporter, log)
	adminService := service.NewAdminService(accountRepo, bank, cfg.Exam, exporter, log)

	handlers := &router.Handlers{
		Auth:  handler.NewAuthHandler(authService, accountRepo),
		Exam:  handler.NewExamHandler(examService),
		Admin: handler.NewAdminHandler(adminService),
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	if exportSink != nil {
		exportWorker := worker.NewExportWorker(rdb, exportSink, log)
		go exportWorker.Start(workerCtx)
	}

	r := router.SetupRouter(authService, handlers, accountRepo, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the export worker and let the queue drain.
	workerCancel()
	time.Sleep(2 * time.Second)

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
