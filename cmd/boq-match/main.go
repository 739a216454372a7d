package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/jinford/boq-match/internal/app/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	app := &cli.Command{
		Name:  "boq-match",
		Usage: "BOQ明細と価格カタログの自動照合システム",
		Commands: []*cli.Command{
			{
				Name:  "job",
				Usage: "照合ジョブ管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "run",
						Usage: "ワークブックの照合を同期実行",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "file",
								Usage:    "BOQワークブックのファイルパス (.xlsx)",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "mode",
								Usage: "マッチングモード (local/semantic/hybrid)",
								Value: "hybrid",
							},
						},
						Action: appcli.JobRunAction,
					},
					{
						Name:  "submit",
						Usage: "照合をバックグラウンドに投入",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "file",
								Usage:    "BOQワークブックのファイルパス (.xlsx)",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "mode",
								Usage: "マッチングモード (local/semantic/hybrid)",
								Value: "hybrid",
							},
							&cli.BoolFlag{
								Name:  "wait",
								Usage: "終端状態まで進捗をポーリングする（falseの場合プロセス終了でジョブも止まる）",
								Value: true,
							},
						},
						Action: appcli.JobSubmitAction,
					},
					{
						Name:  "status",
						Usage: "ジョブの状態を表示",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "id",
								Usage:    "ジョブID",
								Required: true,
							},
						},
						Action: appcli.JobStatusAction,
					},
					{
						Name:  "cancel",
						Usage: "ジョブのキャンセルを要求",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "id",
								Usage:    "ジョブID",
								Required: true,
							},
						},
						Action: appcli.JobCancelAction,
					},
					{
						Name:  "export",
						Usage: "マッチ結果をExcelファイルに出力",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "id",
								Usage:    "ジョブID",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "file",
								Usage: "元のBOQワークブック（指定時は書式保持エクスポート）",
							},
							&cli.StringFlag{
								Name:  "out",
								Usage: "出力ファイルパス",
								Value: "matched.xlsx",
							},
						},
						Action: appcli.JobExportAction,
					},
				},
			},
			{
				Name:  "catalog",
				Usage: "価格カタログ管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "カタログ一覧を表示",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
						},
						Action: appcli.CatalogListAction,
					},
					{
						Name:  "add",
						Usage: "カタログにエントリを追加",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "description",
								Usage:    "工事項目の説明",
								Required: true,
							},
							&cli.FloatFlag{
								Name:     "rate",
								Usage:    "単価",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "unit",
								Usage: "単位 (例: m3, kg, nos)",
							},
							&cli.StringFlag{
								Name:  "context",
								Usage: "マッチング用の補足文脈",
							},
						},
						Action: appcli.CatalogAddAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
