package container

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinford/boq-match/internal/core/matching"
	"github.com/jinford/boq-match/internal/core/workbook"
	"github.com/jinford/boq-match/internal/infra/openai"
	"github.com/jinford/boq-match/internal/infra/postgres"
	"github.com/jinford/boq-match/pkg/config"
	"github.com/jinford/boq-match/pkg/db"
)

// ServiceContainer はアプリケーションの依存関係を保持する
type ServiceContainer struct {
	MatchService *matching.MatchService
	Exporter     *workbook.Exporter

	// Catalog はカタログ取り込みなど、マッチングサービスを介さない
	// リポジトリ直接操作のために公開する
	Catalog *postgres.Repository

	logger   *slog.Logger
	database *db.DB
}

type containerOptions struct {
	logger     *slog.Logger
	embedder   matching.Embedder
	repository matching.Repository
	parser     matching.Parser
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder matching.Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerRepository は Repository を差し替える
func WithContainerRepository(repository matching.Repository) ContainerOption {
	return func(opts *containerOptions) {
		opts.repository = repository
	}
}

// WithContainerParser は Parser を差し替える
func WithContainerParser(parser matching.Parser) ContainerOption {
	return func(opts *containerOptions) {
		opts.parser = parser
	}
}

// NewContainer は設定からコンテナを生成する
// OpenAI APIキーが未設定の場合、セマンティックマッチングは使用できない
// （ローカルモードのみ動作する）
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.logger

	database, err := db.New(ctx, db.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	catalogRepo := postgres.NewRepository(database.Pool)

	repository := options.repository
	if repository == nil {
		repository = catalogRepo
	}

	embedder := options.embedder
	if embedder == nil && cfg.OpenAI.APIKey != "" {
		embedder, err = openai.NewEmbedder(cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
			openai.WithMaxRequestsPerMinute(cfg.OpenAI.MaxRequestsPerMinute),
			openai.WithEmbedderLogger(logger),
		)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
	}

	parser := options.parser
	if parser == nil {
		parser = workbook.NewParser(workbook.WithParserLogger(logger))
	}

	matchConfig := &matching.MatchConfig{
		LexicalThreshold: cfg.Matching.LexicalThreshold,
		Semantic: &matching.SemanticConfig{
			BatchSize:     cfg.Matching.EmbeddingBatchSize,
			BatchDelay:    time.Duration(cfg.Matching.BatchDelayMillis) * time.Millisecond,
			CosineWeight:  cfg.Matching.CosineWeight,
			JaccardWeight: cfg.Matching.JaccardWeight,
		},
	}

	normalizer := matching.NewNormalizer(matching.DefaultVocabulary())
	matchService := matching.NewMatchService(repository, parser, embedder, normalizer,
		matching.WithMatchConfig(matchConfig),
		matching.WithMatchLogger(logger),
	)

	return &ServiceContainer{
		MatchService: matchService,
		Exporter:     workbook.NewExporter(workbook.WithExporterLogger(logger)),
		Catalog:      catalogRepo,
		logger:       logger,
		database:     database,
	}, nil
}

// Close はコンテナが保持するリソースを解放する
func (c *ServiceContainer) Close() {
	c.database.Close()
}
