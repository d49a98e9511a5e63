package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
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
	"github.com/uma-arai/sbcntr-inventory/internal/model"
	"github.com/uma-arai/sbcntr-inventory/internal/service/batch"
	"go.uber.org/zap"
)

const (
	projectName = "sbcntr-inventory-seed"
)

func main() {
	// コマンドライン引数のパース
	timeout := flag.Duration("timeout", 5*time.Minute, "バッチ処理のタイムアウト時間")
	flag.Parse()

	// 引数は [入力JSON] [タスクトークン] の順
	// ENV=LOCALの場合は環境変数SEED_INPUTから入力を読み、タスクトークンは取得しない
	taskToken := "DUMMY_TASK_TOKEN"
	rawInput := os.Getenv("SEED_INPUT")
	if os.Getenv("ENV") != "LOCAL" {
		if flag.NArg() < 2 {
			log.Fatalf("Seed input and task token are required")
		}
		rawInput = flag.Arg(flag.NArg() - 2)
		taskToken = flag.Arg(flag.NArg() - 1)
	}

	input, err := parseSeedInput(rawInput)
	if err != nil {
		log.Fatalf("Failed to parse seed input: %v", err)
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

	// シードバッチサービスを作成
	service, err := batch.NewSeedBatchService(cfg, db, sfnClient, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to create seed batch service", zap.Error(err))
	}
	defer service.Close()
	service.SetArgs(input)

	// コンテキストを作成
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// X-Rayセグメントの作成
	var seg *xray.Segment
	ctx, seg = xray.BeginSegment(ctx, projectName)
	defer seg.Close(nil)
	if err := seg.AddMetadata("room_event_count", len(input.Rooms)); err != nil {
		zapLogger.Warn("failed to add room_event_count metadata", zap.Error(err))
	}

	// シグナルハンドリング
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// バッチ処理の実行
	errChan := make(chan error, 1)
	go func() {
		errChan <- utils.RunWithTimeout(ctx, "seed batch", *timeout, service.Run)
	}()

	// シグナルを待機
	select {
	case sig := <-sigChan:
		zapLogger.Info("received signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errChan:
		if err != nil {
			zapLogger.Error("batch process failed", zap.Error(err))

			if err := batch.SendTaskFailure(context.Background(), sfnClient, taskToken, err); err != nil {
				zapLogger.Error("failed to send task failure", zap.Error(err))
			}

			zapLogger.Sync()
			os.Exit(1)
		}
		zapLogger.Info("batch process completed successfully")
	}
}

// parseSeedInput は部屋作成イベントの入力JSONを解析します
func parseSeedInput(raw string) (model.SeedInput, error) {
	var input model.SeedInput
	if raw == "" {
		return input, fmt.Errorf("seed input is empty")
	}
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return input, fmt.Errorf("failed to parse seed input: %w", err)
	}
	return input, nil
}
