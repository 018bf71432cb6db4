package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/courtside/livescore/admin"
	"github.com/courtside/livescore/config"
	"github.com/courtside/livescore/db"
	"github.com/courtside/livescore/handlers"
	"github.com/courtside/livescore/models"
	"github.com/courtside/livescore/payments"
	"github.com/courtside/livescore/realtime"
	"github.com/courtside/livescore/repositories"
	api "github.com/courtside/livescore/routes"
	"github.com/courtside/livescore/services"
	"github.com/courtside/livescore/storage"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"
)

const (
	dbConnectTimeout = 5 * time.Second
	shutdownTimeout  = 15 * time.Second
	adminCallTimeout = 10 * time.Second
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, dbConnectTimeout)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	// Репозитории
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	ledgerRepo := repositories.NewPostgresLedgerRepository(dbConn)

	// Архив финальных снапшотов (опционален)
	var archiver services.MatchArchiver
	if cfg.ArchiveConfigured() {
		uploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		archiver = services.NewArchiveService(uploader, logger)
		logger.Info("match snapshot archiving enabled", slog.String("bucket", cfg.R2BucketName))
	} else {
		logger.Info("match snapshot archiving disabled")
	}

	// Hub читает холодные комнаты напрямую из репозитория матчей
	snapshotSource := realtime.SnapshotSourceFunc(func(ctx context.Context, matchID string) (*models.Snapshot, error) {
		match, err := matchRepo.GetByID(ctx, matchID)
		if err != nil {
			if errors.Is(err, repositories.ErrMatchNotFound) {
				return nil, services.ErrMatchNotFound
			}
			return nil, err
		}
		snap := match.Snapshot()
		return &snap, nil
	})
	hub := realtime.NewHub(snapshotSource, logger)
	logger.Info("realtime hub initialized")

	// Сервисы
	scoreService := services.NewScoreService(matchRepo, hub, archiver, logger)
	ledgerService := services.NewLedgerService(ledgerRepo, logger)
	adminClient := admin.NewClient(cfg.AdminBaseURL, adminCallTimeout)
	logger.Info("services initialized")

	// Обработчики HTTP
	scoreHandler := handlers.NewScoreHandler(scoreService)
	ledgerHandler := handlers.NewLedgerHandler(ledgerService, cfg.WebhookToken)
	tournamentHandler := handlers.NewTournamentHandler(ledgerService, adminClient, cfg.TournamentFee)
	webSocketHandler := handlers.NewWebSocketHandler(hub, logger)

	router := chi.NewRouter()
	api.SetupRoutes(router, scoreHandler, ledgerHandler, tournamentHandler, webSocketHandler, cfg.JWTSecretKey)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Consumer подтверждений платежей (опционален)
	if cfg.AMQPURL != "" {
		consumer, err := payments.NewConsumer(cfg.AMQPURL, cfg.PaymentQueue, ledgerService, logger)
		if err != nil {
			logger.Error("failed to initialize payment consumer", slog.Any("error", err))
			os.Exit(1)
		}
		defer consumer.Close()
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	} else {
		logger.Info("payment consumer disabled, webhook only")
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			_ = server.Close()
		}
		hub.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("application stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("application exited")
}
