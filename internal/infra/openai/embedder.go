package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/jinford/boq-match/internal/core/matching"
)

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingDimension はOpenAI推奨のデフォルト次元
	DefaultEmbeddingDimension = 1536
	// DefaultMaxRequestsPerMinute はEmbedding APIのデフォルトレート上限
	DefaultMaxRequestsPerMinute = 60

	// MaxRetries はレート制限エラー時の最大リトライ回数
	MaxRetries = 3
	// BaseBackoff はExponential Backoffの基底時間
	BaseBackoff = 2 * time.Second
	// MaxBackoff はExponential Backoffの最大待機時間
	MaxBackoff = 32 * time.Second
)

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")

	// ErrMaxRetriesExceeded は最大リトライ回数を超過した場合のエラー
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// Embedder は OpenAI API を使用してテキストをベクトルに変換する
// レート制限とトークン長の切り詰めを内蔵する
type Embedder struct {
	client      openai.Client
	model       string
	dimension   int
	rateLimiter *RateLimiter
	tokenizer   *Tokenizer
	logger      *slog.Logger
}

type embedderOptions struct {
	model                string
	dimension            int
	maxRequestsPerMinute int
	logger               *slog.Logger
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		o.model = model
	}
}

// WithEmbeddingDimension はベクトル次元を上書きする
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// WithMaxRequestsPerMinute はレート上限を上書きする
func WithMaxRequestsPerMinute(rpm int) EmbedderOption {
	return func(o *embedderOptions) {
		o.maxRequestsPerMinute = rpm
	}
}

// WithEmbedderLogger はロガーを上書きする
func WithEmbedderLogger(logger *slog.Logger) EmbedderOption {
	return func(o *embedderOptions) {
		o.logger = logger
	}
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(apiKey string, opts ...EmbedderOption) (*Embedder, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := embedderOptions{
		model:                DefaultEmbeddingModel,
		dimension:            DefaultEmbeddingDimension,
		maxRequestsPerMinute: DefaultMaxRequestsPerMinute,
		logger:               slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	tokenizer, err := NewTokenizer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokenizer: %w", err)
	}

	return &Embedder{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
		),
		model:       options.model,
		dimension:   options.dimension,
		rateLimiter: NewRateLimiter(options.maxRequestsPerMinute),
		tokenizer:   tokenizer,
		logger:      options.logger,
	}, nil
}

// BatchEmbed はバッチで Embedding を生成する（最大100件）
// role はOpenAIのEmbedding APIには対応するパラメータが存在しないため、
// 呼び出し側の用途の記録としてログにのみ残す
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string, role matching.EmbedRole) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}
	if len(texts) > e.MaxBatchSize() {
		return nil, fmt.Errorf("batch size %d exceeds maximum of %d", len(texts), e.MaxBatchSize())
	}

	input := make([]string, len(texts))
	truncated := 0
	for i, text := range texts {
		cut, wasCut := e.tokenizer.Truncate(text, MaxInputTokens)
		if wasCut {
			truncated++
		}
		input[i] = cut
	}
	if truncated > 0 {
		e.logger.Warn("truncated embedding inputs over token limit",
			slog.Int("count", truncated),
			slog.Int("maxTokens", MaxInputTokens),
		)
	}

	e.logger.Debug("requesting embeddings",
		slog.Int("batch", len(input)),
		slog.String("role", string(role)),
		slog.String("model", e.model),
	)

	if err := e.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}
	defer e.rateLimiter.Release()

	embeddings, err := e.embedWithRetry(ctx, input)
	if err != nil {
		return nil, err
	}

	if len(embeddings) != len(input) {
		return nil, fmt.Errorf("got %d embeddings, want %d", len(embeddings), len(input))
	}

	return embeddings, nil
}

func (e *Embedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
	}
	if len(texts) == 1 {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(texts[0]),
		}
	} else {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		}
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			backoffDuration := time.Duration(math.Pow(2, float64(attempt-1))) * BaseBackoff
			if backoffDuration > MaxBackoff {
				backoffDuration = MaxBackoff
			}

			e.logger.Warn("rate limited by provider, backing off",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoffDuration),
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffDuration):
			}
		}

		resp, err := e.client.Embeddings.New(ctx, params)
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				continue
			}
			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}

		embeddings := make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			vector := make([]float32, len(data.Embedding))
			for j, v := range data.Embedding {
				vector[j] = float32(v)
			}
			embeddings[i] = vector
		}
		return embeddings, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// Dimension はベクトル次元数を返す
func (e *Embedder) Dimension() int {
	return e.dimension
}

// MaxBatchSize はバッチ処理の最大サイズを返す（OpenAI APIは最大100件）
func (e *Embedder) MaxBatchSize() int {
	return 100
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}

	return false
}

// インターフェース実装の確認
var _ matching.Embedder = (*Embedder)(nil)
