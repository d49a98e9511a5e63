package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-inventory/internal/common/config"
	"github.com/uma-arai/sbcntr-inventory/internal/common/database"
	"github.com/uma-arai/sbcntr-inventory/internal/common/logger"
	"github.com/uma-arai/sbcntr-inventory/internal/common/utils"
	"github.com/uma-arai/sbcntr-inventory/internal/service/batch"
	"go.uber.org/zap"
)

const (
	projectName = "sbcntr-inventory-horizon"
)

func main() {
	// コマンドライン引数のパース
	timeout := flag.Duration("timeout", 5*time.Minute, "バッチ処理のタイムアウト時間")
	flag.Parse()

	// 最後の引数として渡されたタスクトークンを取得
	// ENV=LOCALの場合はタスクトークンを取得しない
	taskToken := "DUMMY_TASK_TOKEN"
	if os.Getenv("ENV") != "LOCAL" {
		if flag.NArg() == 0 {
			log.Fatalf("Task token is required")
		}
		taskToken = flag.Arg(flag.NArg() - 1)
	}

	// 設定の読み込み
	cfg, err := config.LoadConfig(taskToken)
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

	// Step Functionsクライアントの初期化
	var sfnClient batch.SFNClient
	if !cfg.IsLocal() {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			zapLogger.Fatal("failed to load AWS config", zap.Error(err))
		}
		sfnClient = sfn.NewFromConfig(awsCfg)
	}

	db, err := database.NewDB(cfg.DB)
	if err != nil {
		zapLogger.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	// サービスの初期化
	service, err := batch.NewHorizonBatchService(cfg, db, sfnClient, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to create service", zap.Error(err))
	}
	defer service.Close()

	// コンテキストの作成
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// X-Rayセグメントの作成
	var seg *xray.Segment
	ctx, seg = xray.BeginSegment(ctx, projectName)
	defer seg.Close(nil)
	if err := seg.AddMetadata("timeout", timeout.String()); err != nil {
		zapLogger.Warn("failed to add timeout metadata", zap.Error(err))
	}

	// シグナルハンドリングの設定
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// バッチ処理の実行
	errChan := make(chan error, 1)
	go func() {
		errChan <- utils.RunWithTimeout(ctx, "horizon batch", *timeout, service.Run)
	}()

	// シグナルまたはエラーの待機
	select {
	case sig := <-sigChan:
		zapLogger.Info("received signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errChan:
		if err != nil {
			zapLogger.Error("batch process failed", zap.Error(err))

			// ローカル環境以外の場合のみStep Functionsのエラー通知を行う
			if err := batch.SendTaskFailure(context.Background(), sfnClient, taskToken, err); err != nil {
				zapLogger.Error("failed to send task failure", zap.Error(err))
			}

			zapLogger.Sync()
			os.Exit(1)
		}
		zapLogger.Info("batch process completed successfully")
	}
}
