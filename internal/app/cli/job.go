package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/jinford/boq-match/internal/core/matching"
)

// parseMode はモード文字列を検証して matching.Mode に変換する
func parseMode(value string) (matching.Mode, error) {
	switch matching.Mode(value) {
	case matching.ModeLocal, matching.ModeSemantic, matching.ModeHybrid:
		return matching.Mode(value), nil
	default:
		return "", fmt.Errorf("不明なマッチングモードです: %q (local / semantic / hybrid のいずれかを指定してください)", value)
	}
}

// JobRunAction はBOQワークブックの照合を同期実行するコマンドのアクション
func JobRunAction(ctx context.Context, cmd *cli.Command) error {
	filePath := cmd.String("file")
	envFile := cmd.String("env")

	mode, err := parseMode(cmd.String("mode"))
	if err != nil {
		return err
	}

	input, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("ワークブックの読み込みに失敗: %w", err)
	}

	slog.Info("照合ジョブを開始", "file", filePath, "mode", mode)

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	service := appCtx.Container.MatchService

	job, err := service.CreateJob(ctx)
	if err != nil {
		return fmt.Errorf("ジョブ作成に失敗: %w", err)
	}
	fmt.Printf("ジョブID: %s\n", job.ID)

	if err := service.Run(ctx, job.ID, input, mode); err != nil {
		slog.Error("照合ジョブの実行に失敗しました", "jobID", job.ID, "error", err)
		return err
	}

	finished, err := service.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}
	printJob(finished)

	return nil
}

// JobSubmitAction は照合をバックグラウンド実行に投入するコマンドのアクション
func JobSubmitAction(ctx context.Context, cmd *cli.Command) error {
	filePath := cmd.String("file")
	envFile := cmd.String("env")
	wait := cmd.Bool("wait")

	mode, err := parseMode(cmd.String("mode"))
	if err != nil {
		return err
	}

	input, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("ワークブックの読み込みに失敗: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	service := appCtx.Container.MatchService

	jobID, err := service.Submit(ctx, input, mode)
	if err != nil {
		return fmt.Errorf("ジョブ投入に失敗: %w", err)
	}
	fmt.Printf("ジョブID: %s\n", jobID)

	if !wait {
		return nil
	}

	// --wait 指定時は終端状態までポーリングする
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}

		job, err := service.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			printJob(job)
			return nil
		}
		slog.Info("実行中", "jobID", jobID, "progress", job.Progress, "stage", job.StageMessage)
	}
}

// JobStatusAction はジョブの現在状態を表示するコマンドのアクション
func JobStatusAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	jobID, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("ジョブIDの形式が不正です: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	job, err := appCtx.Container.MatchService.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	printJob(job)

	return nil
}

// JobCancelAction はジョブのキャンセルを要求するコマンドのアクション
func JobCancelAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	jobID, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("ジョブIDの形式が不正です: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.MatchService.Cancel(ctx, jobID); err != nil {
		return err
	}

	fmt.Println("キャンセルを要求しました（協調的キャンセルのため停止まで時間がかかることがあります）")
	return nil
}

// JobExportAction はマッチ結果をExcelファイルに出力するコマンドのアクション
func JobExportAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	originalPath := cmd.String("file")
	outputPath := cmd.String("out")

	jobID, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("ジョブIDの形式が不正です: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	results, err := appCtx.Container.MatchService.Results(ctx, jobID)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("ジョブ %s にはエクスポート可能な結果がありません", jobID)
	}

	// 元のワークブックが指定されていれば書式保持エクスポートを試みる
	var original []byte
	if originalPath != "" {
		original, err = os.ReadFile(originalPath)
		if err != nil {
			return fmt.Errorf("元ワークブックの読み込みに失敗: %w", err)
		}
	}

	output, err := appCtx.Container.Exporter.Export(original, results)
	if err != nil {
		return fmt.Errorf("エクスポートに失敗: %w", err)
	}

	if err := os.WriteFile(outputPath, output, 0o644); err != nil {
		return fmt.Errorf("出力ファイルの書き込みに失敗: %w", err)
	}

	fmt.Printf("%d件の結果を %s に出力しました\n", len(results), outputPath)
	return nil
}

// printJob はジョブ状態を整形して出力する
func printJob(job *matching.Job) {
	fmt.Printf("状態:       %s\n", job.Status)
	fmt.Printf("進捗:       %d%%\n", job.Progress)
	if job.StageMessage != "" {
		fmt.Printf("ステージ:   %s\n", job.StageMessage)
	}
	if job.ErrorMessage != "" {
		fmt.Printf("エラー:     %s\n", job.ErrorMessage)
	}
	if job.TotalItems > 0 {
		fmt.Printf("明細数:     %d\n", job.TotalItems)
		fmt.Printf("マッチ数:   %d\n", job.MatchedItems)
		fmt.Printf("平均信頼度: %.2f\n", job.ConfidenceAvg)
	}
}
