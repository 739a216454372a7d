package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/samber/mo"

	"github.com/jinford/boq-match/internal/core/matching"
)

// Repository は matching.Repository インターフェースを実装する PostgreSQL リポジトリです
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository は新しい Repository を作成します
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// コンパイル時の型チェック
var _ matching.Repository = (*Repository)(nil)

// === Catalog ===

// ListCatalog は単価が設定された価格カタログ全件を登録順に返します
func (r *Repository) ListCatalog(ctx context.Context) ([]*matching.CatalogEntry, error) {
	query := `
		SELECT id, description, rate, COALESCE(unit, ''), COALESCE(full_context, '')
		FROM price_items
		WHERE rate IS NOT NULL
		ORDER BY created_at, id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list price items: %w", err)
	}
	defer rows.Close()

	var entries []*matching.CatalogEntry
	for rows.Next() {
		var entry matching.CatalogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.Description,
			&entry.Rate,
			&entry.Unit,
			&entry.FullContext,
		); err != nil {
			return nil, fmt.Errorf("failed to scan price item: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate price items: %w", err)
	}

	return entries, nil
}

// CreatePriceItem は価格カタログへエントリを追加します（カタログ取り込み用）
func (r *Repository) CreatePriceItem(ctx context.Context, entry *matching.CatalogEntry) error {
	query := `
		INSERT INTO price_items (id, description, rate, unit, full_context)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
	`

	if _, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.Description,
		entry.Rate,
		entry.Unit,
		entry.FullContext,
	); err != nil {
		return fmt.Errorf("failed to create price item: %w", err)
	}
	return nil
}

// === Embedding cache ===

// GetCatalogEmbeddings は指定モデルでキャッシュ済みのベクトルを返します
// 見つからなかったIDは結果に含まれません
func (r *Repository) GetCatalogEmbeddings(ctx context.Context, model string, ids []uuid.UUID) (map[uuid.UUID][]float32, error) {
	if len(ids) == 0 {
		return map[uuid.UUID][]float32{}, nil
	}

	query := `
		SELECT price_item_id, embedding
		FROM price_item_embeddings
		WHERE model = $1 AND price_item_id = ANY($2)
	`

	rows, err := r.pool.Query(ctx, query, model, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog embeddings: %w", err)
	}
	defer rows.Close()

	found := make(map[uuid.UUID][]float32)
	for rows.Next() {
		var id uuid.UUID
		var vector pgvector.Vector
		if err := rows.Scan(&id, &vector); err != nil {
			return nil, fmt.Errorf("failed to scan catalog embedding: %w", err)
		}
		found[id] = vector.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate catalog embeddings: %w", err)
	}

	return found, nil
}

// PutCatalogEmbeddings はベクトルを (price_item_id, model) 単位で upsert します
func (r *Repository) PutCatalogEmbeddings(ctx context.Context, model string, vectors map[uuid.UUID][]float32) error {
	if len(vectors) == 0 {
		return nil
	}

	query := `
		INSERT INTO price_item_embeddings (price_item_id, model, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (price_item_id, model) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			created_at = CURRENT_TIMESTAMP
	`

	batch := &pgx.Batch{}
	for id, vector := range vectors {
		batch.Queue(query, id, model, pgvector.NewVector(vector))
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range vectors {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to put catalog embedding: %w", err)
		}
	}

	return nil
}

// === Job ===

// CreateJob はジョブ行を作成します
func (r *Repository) CreateJob(ctx context.Context, job *matching.Job) error {
	query := `
		INSERT INTO match_jobs (
			id, status, progress, stage_message, error_message,
			total_items, matched_items, confidence_avg, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	if _, err := r.pool.Exec(ctx, query,
		job.ID,
		string(job.Status),
		job.Progress,
		job.StageMessage,
		job.ErrorMessage,
		job.TotalItems,
		job.MatchedItems,
		job.ConfidenceAvg,
		job.CreatedAt,
		job.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob はジョブを取得します。存在しない場合は None を返します
func (r *Repository) GetJob(ctx context.Context, id uuid.UUID) (mo.Option[*matching.Job], error) {
	query := `
		SELECT id, status, progress, stage_message, error_message,
		       total_items, matched_items, confidence_avg, created_at, updated_at
		FROM match_jobs
		WHERE id = $1
	`

	var job matching.Job
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&status,
		&job.Progress,
		&job.StageMessage,
		&job.ErrorMessage,
		&job.TotalItems,
		&job.MatchedItems,
		&job.ConfidenceAvg,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*matching.Job](), nil
		}
		return mo.None[*matching.Job](), fmt.Errorf("failed to get job: %w", err)
	}
	job.Status = matching.JobStatus(status)

	return mo.Some(&job), nil
}

// UpdateJob はジョブを条件付きで部分更新します
// expected が指定された場合、現在の状態がそのいずれかであるときだけ適用されます
func (r *Repository) UpdateJob(ctx context.Context, id uuid.UUID, update matching.JobUpdate, expected ...matching.JobStatus) (bool, error) {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	args := []any{id}

	addSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Status != nil {
		addSet("status", string(*update.Status))
	}
	if update.Progress != nil {
		addSet("progress", *update.Progress)
	}
	if update.StageMessage != nil {
		addSet("stage_message", *update.StageMessage)
	}
	if update.ErrorMessage != nil {
		addSet("error_message", *update.ErrorMessage)
	}
	if update.TotalItems != nil {
		addSet("total_items", *update.TotalItems)
	}
	if update.MatchedItems != nil {
		addSet("matched_items", *update.MatchedItems)
	}
	if update.ConfidenceAvg != nil {
		addSet("confidence_avg", *update.ConfidenceAvg)
	}

	query := fmt.Sprintf("UPDATE match_jobs SET %s WHERE id = $1", strings.Join(sets, ", "))
	if len(expected) > 0 {
		statuses := make([]string, len(expected))
		for i, s := range expected {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update job: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// === MatchResult ===

// BatchCreateResults はマッチ結果を CopyFrom で一括登録します
// 挿入順がそのまま読み出し順になります
func (r *Repository) BatchCreateResults(ctx context.Context, results []matching.MatchResult) error {
	if len(results) == 0 {
		return nil
	}

	columns := []string{
		"id", "job_id", "price_item_id", "original_description",
		"matched_description", "matched_rate", "unit", "quantity",
		"total_amount", "confidence", "match_method", "row_index",
		"sheet_name", "section_header",
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"match_results"},
		columns,
		pgx.CopyFromSlice(len(results), func(i int) ([]any, error) {
			result := results[i]
			return []any{
				result.ID,
				result.JobID,
				result.CatalogEntryID,
				result.OriginalDescription,
				result.MatchedDescription,
				result.MatchedRate,
				result.Unit,
				result.Quantity,
				result.TotalAmount,
				result.Confidence,
				string(result.MatchMethod),
				result.RowIndex,
				result.SheetName,
				result.SectionHeader,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to batch create match results: %w", err)
	}

	return nil
}

// ListResultsByJob はジョブのマッチ結果を挿入順に返します
func (r *Repository) ListResultsByJob(ctx context.Context, jobID uuid.UUID) ([]matching.MatchResult, error) {
	query := `
		SELECT id, job_id, price_item_id, original_description,
		       matched_description, matched_rate, unit, quantity,
		       total_amount, confidence, match_method, row_index,
		       sheet_name, section_header
		FROM match_results
		WHERE job_id = $1
		ORDER BY seq
	`

	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list match results: %w", err)
	}
	defer rows.Close()

	var results []matching.MatchResult
	for rows.Next() {
		var result matching.MatchResult
		var method string
		if err := rows.Scan(
			&result.ID,
			&result.JobID,
			&result.CatalogEntryID,
			&result.OriginalDescription,
			&result.MatchedDescription,
			&result.MatchedRate,
			&result.Unit,
			&result.Quantity,
			&result.TotalAmount,
			&result.Confidence,
			&method,
			&result.RowIndex,
			&result.SheetName,
			&result.SectionHeader,
		); err != nil {
			return nil, fmt.Errorf("failed to scan match result: %w", err)
		}
		result.MatchMethod = matching.Mode(method)
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate match results: %w", err)
	}

	return results, nil
}

// === Cancel flag ===

// RequestCancel はジョブのキャンセルフラグを立てます。一度立てたら解除されません
func (r *Repository) RequestCancel(ctx context.Context, jobID uuid.UUID) error {
	query := `
		UPDATE match_jobs
		SET cancel_requested = TRUE, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("failed to request cancel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return matching.ErrJobNotFound
	}
	return nil
}

// IsCancelled はジョブのキャンセルフラグを読み取ります
func (r *Repository) IsCancelled(ctx context.Context, jobID uuid.UUID) (bool, error) {
	query := `SELECT cancel_requested FROM match_jobs WHERE id = $1`

	var cancelled bool
	if err := r.pool.QueryRow(ctx, query, jobID).Scan(&cancelled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, matching.ErrJobNotFound
		}
		return false, fmt.Errorf("failed to read cancel flag: %w", err)
	}
	return cancelled, nil
}
