package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-inventory/internal/api"
	"github.com/uma-arai/sbcntr-inventory/internal/common/config"
	"github.com/uma-arai/sbcntr-inventory/internal/common/database"
	"github.com/uma-arai/sbcntr-inventory/internal/common/logger"
	"github.com/uma-arai/sbcntr-inventory/internal/events"
	"github.com/uma-arai/sbcntr-inventory/internal/repository"
	"github.com/uma-arai/sbcntr-inventory/internal/service/inventory"
	"go.uber.org/zap"
)

const (
	projectName = "sbcntr-inventory"
)

func main() {
	// 設定の読み込み
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v\nStack trace:\n%s", err, debug.Stack())
	}

	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, projectName)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// X-Ray設定
	if cfg.EnableTracing {
		if err := xray.Configure(xray.Config{
			DaemonAddr:     "127.0.0.1:2000", // X-Rayデーモンのアドレス
			ServiceVersion: "1.0.0",
		}); err != nil {
			zapLogger.Warn("failed to configure X-Ray, using default settings", zap.Error(err))
			if configErr := xray.Configure(xray.Config{}); configErr != nil {
				zapLogger.Fatal("failed to configure default X-Ray settings", zap.Error(configErr))
			}
		}
		os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")
	}

	if cfg.Auth.JWTSecret == "" {
		zapLogger.Fatal("JWT_SECRET is required")
	}

	db, err := database.NewDB(cfg.DB)
	if err != nil {
		zapLogger.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.IsLocal() {
		ctx, seg := xray.BeginSegment(context.Background(), projectName+"-schema")
		if err := db.EnsureSchema(ctx); err != nil {
			seg.Close(err)
			zapLogger.Fatal("failed to ensure schema", zap.Error(err))
		}
		seg.Close(nil)
	}

	publisher, err := events.New(cfg.Events, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to create event publisher", zap.Error(err))
	}
	defer publisher.Close()

	repoDB := repository.NewDB(db.DB)
	eventRepo := repository.NewLedgerEventRepository(repoDB)
	availabilityRepo := repository.NewAvailabilityRepository(repoDB, eventRepo)

	handler := api.NewHandler(api.HandlerDeps{
		Ledger:       inventory.NewLedger(availabilityRepo, cfg.Inventory, zapLogger),
		Engine:       inventory.NewEngine(availabilityRepo, publisher, cfg.Inventory, zapLogger),
		Seeder:       inventory.NewInitializer(availabilityRepo, publisher, cfg.Inventory, zapLogger),
		Audit:        eventRepo,
		Rooms:        repository.NewRoomRepository(repoDB),
		Verifier:     api.NewTokenVerifier(cfg.Auth.JWTSecret),
		Logger:       zapLogger,
		ExposeErrors: cfg.IsLocal(),
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           xray.Handler(xray.NewFixedSegmentNamer(projectName), api.NewRouter(handler)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// シグナルハンドリングの設定
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		zapLogger.Info("starting server", zap.String("addr", cfg.HTTP.Addr))
		errChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		zapLogger.Info("received signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server failed", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		zapLogger.Error("failed to shutdown server", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}
