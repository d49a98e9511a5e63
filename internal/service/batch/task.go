// Package batch はStep Functionsから起動される在庫バッチです
package batch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/uma-arai/sbcntr-inventory/internal/common/config"
	"github.com/uma-arai/sbcntr-inventory/internal/model"
	"go.uber.org/zap"
)

// SFNClient はバッチが使うStep Functions APIです
type SFNClient interface {
	SendTaskSuccess(ctx context.Context, params *sfn.SendTaskSuccessInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error)
	SendTaskFailure(ctx context.Context, params *sfn.SendTaskFailureInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskFailureOutput, error)
}

// sendTaskSuccess は、Step Functionsのタスク成功を通知し、処理結果を返却します
func sendTaskSuccess(ctx context.Context, client SFNClient, cfg *config.Config, logger *zap.Logger, summary model.BatchSummary) error {
	// ローカルの場合はStep Functionsの処理をスキップ
	if cfg.IsLocal() || client == nil {
		logger.Info("local environment detected, skipping task success notification",
			zap.Any("summary", summary))
		return nil
	}

	taskToken := cfg.SFN.TaskToken
	if taskToken == "" {
		return fmt.Errorf("SFN_TASK_TOKEN is not set in config")
	}

	output, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	_, err = client.SendTaskSuccess(ctx, &sfn.SendTaskSuccessInput{
		TaskToken: aws.String(taskToken),
		Output:    aws.String(string(output)),
	})
	if err != nil {
		return fmt.Errorf("failed to send task success: %w", err)
	}

	logger.Info("sent task success", zap.String("output", string(output)))
	return nil
}

// SendTaskFailure はバッチの失敗をStep Functionsに通知します
func SendTaskFailure(ctx context.Context, client SFNClient, taskToken string, cause error) error {
	if client == nil {
		return nil
	}

	_, err := client.SendTaskFailure(ctx, &sfn.SendTaskFailureInput{
		TaskToken: aws.String(taskToken),
		Error:     aws.String("Batch process failed"),
		Cause:     aws.String(string(model.KindOf(cause))),
	})
	if err != nil {
		return fmt.Errorf("failed to send task failure: %w", err)
	}
	return nil
}
