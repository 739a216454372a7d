package matching

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultEmbeddingBatchSize はEmbedding APIのデフォルトバッチサイズ
	DefaultEmbeddingBatchSize = 50
	// DefaultBatchDelay はプロバイダのレート制限を尊重するためのバッチ間待機時間
	DefaultBatchDelay = 200 * time.Millisecond

	// 複合スコアの重み。元実装の値をそのまま設定値として採用している
	DefaultCosineWeight  = 0.85
	DefaultJaccardWeight = 0.15
)

// SemanticConfig はセマンティックマッチングの設定
type SemanticConfig struct {
	BatchSize     int
	BatchDelay    time.Duration
	CosineWeight  float64
	JaccardWeight float64

	// Checkpoint はEmbeddingバッチの切れ目ごとに呼ばれる。nil可
	// エラーを返すとマッチングはそこで打ち切られる（協調キャンセル用）
	Checkpoint func(ctx context.Context) error
}

// DefaultSemanticConfig はデフォルト設定を返す
func DefaultSemanticConfig() *SemanticConfig {
	return &SemanticConfig{
		BatchSize:     DefaultEmbeddingBatchSize,
		BatchDelay:    DefaultBatchDelay,
		CosineWeight:  DefaultCosineWeight,
		JaccardWeight: DefaultJaccardWeight,
	}
}

// EmbeddingCache はカタログEmbeddingの永続キャッシュ
// (catalog_id, model) をキーに再利用し、同一カタログの再Embedを省く
type EmbeddingCache interface {
	GetCatalogEmbeddings(ctx context.Context, model string, ids []uuid.UUID) (map[uuid.UUID][]float32, error)
	PutCatalogEmbeddings(ctx context.Context, model string, vectors map[uuid.UUID][]float32) error
}

// SemanticMatcher はEmbeddingのコサイン類似度と字句的なJaccard重なりを
// 1つのスコアに合成するマッチャー
type SemanticMatcher struct {
	normalizer *Normalizer
	embedder   Embedder
	cache      EmbeddingCache
	config     *SemanticConfig
	logger     *slog.Logger
}

// NewSemanticMatcher は新しいSemanticMatcherを作成する。cacheはnil可
func NewSemanticMatcher(normalizer *Normalizer, embedder Embedder, cache EmbeddingCache, config *SemanticConfig, logger *slog.Logger) *SemanticMatcher {
	if config == nil {
		config = DefaultSemanticConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	batchSize := config.BatchSize
	if max := embedder.MaxBatchSize(); max > 0 && batchSize > max {
		batchSize = max
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	config.BatchSize = batchSize

	return &SemanticMatcher{
		normalizer: normalizer,
		embedder:   embedder,
		cache:      cache,
		config:     config,
		logger:     logger,
	}
}

// MatchBatch は全明細をカタログ全体と照合し、明細順に最良マッチを返す
// スコアが同点の場合はカタログ上で先に現れたエントリを採用する（決定的）
func (m *SemanticMatcher) MatchBatch(ctx context.Context, items []LineItem, catalog []*CatalogEntry) ([]MatchResult, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if len(catalog) == 0 {
		return nil, ErrEmptyCatalog
	}

	catalogNorms := make([]NormalizedText, len(catalog))
	for i, entry := range catalog {
		catalogNorms[i] = m.normalizer.Normalize(entry.SearchText())
	}

	catalogVecs, err := m.catalogVectors(ctx, catalog, catalogNorms)
	if err != nil {
		return nil, fmt.Errorf("failed to embed catalog: %w", err)
	}

	itemNorms := make([]NormalizedText, len(items))
	itemTexts := make([]string, len(items))
	for i, item := range items {
		itemNorms[i] = m.normalizer.Normalize(item.Description)
		itemTexts[i] = itemNorms[i].Text
	}

	itemVecs, err := m.embedAll(ctx, itemTexts, RoleQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to embed line items: %w", err)
	}

	results := make([]MatchResult, 0, len(items))
	for i, item := range items {
		bestIdx := -1
		bestScore := math.Inf(-1)
		for j := range catalog {
			score := m.config.CosineWeight*Cosine(itemVecs[i], catalogVecs[j]) +
				m.config.JaccardWeight*Jaccard(itemNorms[i].Tokens, catalogNorms[j].Tokens)
			if score > bestScore {
				bestScore = score
				bestIdx = j
			}
		}
		if bestIdx < 0 {
			continue
		}

		entry := catalog[bestIdx]
		confidence := clamp01(bestScore)
		results = append(results, MatchResult{
			ID:                  uuid.New(),
			CatalogEntryID:      entry.ID,
			OriginalDescription: item.Description,
			MatchedDescription:  entry.SearchText(),
			MatchedRate:         entry.Rate,
			Unit:                entry.Unit,
			Quantity:            item.Quantity,
			TotalAmount:         item.Quantity * entry.Rate,
			Confidence:          confidence,
			MatchMethod:         ModeSemantic,
			RowIndex:            item.RowIndex,
			SheetName:           item.SheetName,
			SectionHeader:       item.SectionHeader,
		})
	}

	return results, nil
}

// catalogVectors はキャッシュを引きつつカタログ全体のベクトルを揃える
func (m *SemanticMatcher) catalogVectors(ctx context.Context, catalog []*CatalogEntry, norms []NormalizedText) ([][]float32, error) {
	vectors := make([][]float32, len(catalog))

	cached := map[uuid.UUID][]float32{}
	if m.cache != nil {
		ids := make([]uuid.UUID, len(catalog))
		for i, entry := range catalog {
			ids[i] = entry.ID
		}
		var err error
		cached, err = m.cache.GetCatalogEmbeddings(ctx, m.embedder.ModelName(), ids)
		if err != nil {
			// キャッシュ障害は致命ではない。全件Embedにフォールバックする
			m.logger.Warn("embedding cache read failed", "error", err)
			cached = map[uuid.UUID][]float32{}
		}
	}

	var missingIdx []int
	var missingTexts []string
	for i, entry := range catalog {
		if vec, ok := cached[entry.ID]; ok {
			vectors[i] = vec
			continue
		}
		missingIdx = append(missingIdx, i)
		missingTexts = append(missingTexts, norms[i].Text)
	}

	if len(missingTexts) > 0 {
		m.logger.Info("embedding catalog entries",
			"total", len(catalog),
			"cached", len(catalog)-len(missingTexts),
			"missing", len(missingTexts),
		)
		embedded, err := m.embedAll(ctx, missingTexts, RoleDocument)
		if err != nil {
			return nil, err
		}

		fresh := make(map[uuid.UUID][]float32, len(missingIdx))
		for k, i := range missingIdx {
			vectors[i] = embedded[k]
			fresh[catalog[i].ID] = embedded[k]
		}
		if m.cache != nil {
			if err := m.cache.PutCatalogEmbeddings(ctx, m.embedder.ModelName(), fresh); err != nil {
				m.logger.Warn("embedding cache write failed", "error", err)
			}
		}
	}

	return vectors, nil
}

// embedAll はテキスト列をバッチに割ってEmbedし、入力順にベクトルを返す
func (m *SemanticMatcher) embedAll(ctx context.Context, texts []string, role EmbedRole) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += m.config.BatchSize {
		if m.config.Checkpoint != nil {
			if err := m.config.Checkpoint(ctx); err != nil {
				return nil, err
			}
		}

		end := start + m.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := m.embedder.BatchEmbed(ctx, texts[start:end], role)
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d failed: %w", start, end, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embedding batch %d-%d: got %d vectors, want %d", start, end, len(batch), end-start)
		}
		vectors = append(vectors, batch...)

		// レート制限対策のバッチ間待機
		if end < len(texts) && m.config.BatchDelay > 0 {
			select {
			case <-time.After(m.config.BatchDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return vectors, nil
}

// Cosine は2ベクトルのコサイン類似度を返す。ゼロノルムは0扱い
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
