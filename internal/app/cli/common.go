package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/boq-match/internal/platform/container"
	"github.com/jinford/boq-match/internal/platform/logger"
	"github.com/jinford/boq-match/pkg/config"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.ServiceContainer
	logger    *slog.Logger
}

// NewAppContext は設定ファイルを読み込み、DBに接続して AppContext を作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	// 設定の読み込み
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// ロガーの初期化
	appLogger := logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	})

	// コンテナの初期化
	cont, err := container.NewContainer(ctx, cfg, container.WithContainerLogger(appLogger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize container: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Container: cont,
		logger:    appLogger,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.logger != nil {
		return ac.logger
	}
	return slog.Default()
}
