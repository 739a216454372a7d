package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// ResultBatchSize はMatchResultの書き込みバッチサイズ
	ResultBatchSize = 100
	// localProgressEvery はローカルマッチング中に進捗とキャンセルを確認する間隔
	localProgressEvery = 50
)

// MatchConfig はマッチングサービス全体の設定
type MatchConfig struct {
	LexicalThreshold float64
	Semantic         *SemanticConfig
}

// DefaultMatchConfig はデフォルト設定を返す
func DefaultMatchConfig() *MatchConfig {
	return &MatchConfig{
		LexicalThreshold: DefaultLexicalThreshold,
		Semantic:         DefaultSemanticConfig(),
	}
}

// MatchService はマッチングジョブのビジネスフローを統括する
// ジョブの可変状態はすべて永続ストアにあり、プロセス内には持たない
type MatchService struct {
	repository Repository
	parser     Parser
	embedder   Embedder // セマンティック/ハイブリッドで使用。nil ならローカルのみ
	normalizer *Normalizer
	config     *MatchConfig
	logger     *slog.Logger
}

type matchServiceOptions struct {
	config *MatchConfig
	logger *slog.Logger
}

// MatchServiceOption は MatchService のオプション設定
type MatchServiceOption func(*matchServiceOptions)

// WithMatchConfig は設定を上書きする
func WithMatchConfig(cfg *MatchConfig) MatchServiceOption {
	return func(o *matchServiceOptions) {
		o.config = cfg
	}
}

// WithMatchLogger はロガーを差し替える
func WithMatchLogger(logger *slog.Logger) MatchServiceOption {
	return func(o *matchServiceOptions) {
		o.logger = logger
	}
}

// NewMatchService は新しいMatchServiceを作成する
func NewMatchService(repo Repository, parser Parser, embedder Embedder, normalizer *Normalizer, opts ...MatchServiceOption) *MatchService {
	options := matchServiceOptions{
		config: DefaultMatchConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.config == nil {
		options.config = DefaultMatchConfig()
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &MatchService{
		repository: repo,
		parser:     parser,
		embedder:   embedder,
		normalizer: normalizer,
		config:     options.config,
		logger:     options.logger,
	}
}

// CreateJob は pending 状態の新しいジョブを作成する
func (s *MatchService) CreateJob(ctx context.Context) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.New(),
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repository.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// Submit はジョブを作成し、バックグラウンドで実行を開始して即座にIDを返す
// 実行状態はストア経由でのみ観測する（プロセス内のハンドルに依存しない）
func (s *MatchService) Submit(ctx context.Context, input []byte, mode Mode) (uuid.UUID, error) {
	job, err := s.CreateJob(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	go func() {
		// 呼び出し元のリクエストコンテキストとは独立に走らせる
		runCtx := context.Background()
		if err := s.Run(runCtx, job.ID, input, mode); err != nil {
			s.logger.Error("background job failed", "jobID", job.ID, "error", err)
		}
	}()

	return job.ID, nil
}

// GetJob はジョブの現在状態を返す
func (s *MatchService) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	opt, err := s.repository.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	job, ok := opt.Get()
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// Cancel はジョブのキャンセルを要求する。協調的であり即時停止ではない
func (s *MatchService) Cancel(ctx context.Context, jobID uuid.UUID) error {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return err
	}
	if err := s.repository.RequestCancel(ctx, jobID); err != nil {
		return fmt.Errorf("failed to request cancel: %w", err)
	}
	return nil
}

// Results はジョブのマッチ結果をLineItem順で返す
func (s *MatchService) Results(ctx context.Context, jobID uuid.UUID) ([]MatchResult, error) {
	results, err := s.repository.ListResultsByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list match results: %w", err)
	}
	return results, nil
}

// Run はマッチングパイプラインを最後まで実行する
// pending → processing → {completed, failed, stopped} の状態遷移はすべて
// 条件付き更新で行い、並行するキャンセル要求との競合を防ぐ
func (s *MatchService) Run(ctx context.Context, jobID uuid.UUID, input []byte, mode Mode) error {
	startTime := time.Now()
	s.logger.Info("starting match job", "jobID", jobID, "mode", mode, "inputBytes", len(input))

	// 開始前のキャンセル確認
	if stopped, err := s.stopIfCancelled(ctx, jobID); err != nil || stopped {
		return err
	}

	ok, err := s.updateProgress(ctx, jobID, JobStatusProcessing, 10, "loading price catalog", JobStatusPending)
	if err != nil {
		return err
	}
	if !ok {
		// 既に別の遷移が先行している（終端状態など）。何もしない
		s.logger.Warn("job not in pending state, skipping run", "jobID", jobID)
		return nil
	}

	catalog, err := s.repository.ListCatalog(ctx)
	if err != nil {
		return s.failJob(ctx, jobID, fmt.Errorf("failed to load catalog: %w", err))
	}
	if len(catalog) == 0 {
		return s.failJob(ctx, jobID, ErrEmptyCatalog)
	}

	if _, err := s.updateProgress(ctx, jobID, JobStatusProcessing, 20, "parsing workbook", JobStatusProcessing); err != nil {
		return err
	}

	items, err := s.parser.Parse(input)
	if err != nil {
		return s.failJob(ctx, jobID, fmt.Errorf("failed to parse workbook: %w", err))
	}
	if len(items) == 0 {
		return s.failJob(ctx, jobID, ErrNoLineItems)
	}

	total := len(items)
	if _, err := s.updateJob(ctx, jobID, JobUpdate{
		Status:       statusPtr(JobStatusProcessing),
		Progress:     intPtr(30),
		StageMessage: strPtr(fmt.Sprintf("normalizing %d line items", total)),
		TotalItems:   &total,
	}, JobStatusProcessing); err != nil {
		return err
	}

	if stopped, err := s.stopIfCancelled(ctx, jobID); err != nil || stopped {
		return err
	}

	if _, err := s.updateProgress(ctx, jobID, JobStatusProcessing, 40, "matching against catalog", JobStatusProcessing); err != nil {
		return err
	}

	results, err := s.match(ctx, jobID, items, catalog, mode)
	if errors.Is(err, ErrCancelled) {
		_, serr := s.markStopped(ctx, jobID)
		return serr
	}
	if err != nil {
		return s.failJob(ctx, jobID, err)
	}
	if len(results) == 0 {
		return s.failJob(ctx, jobID, ErrNoMatches)
	}

	if _, err := s.updateProgress(ctx, jobID, JobStatusProcessing, 80, "saving match results", JobStatusProcessing); err != nil {
		return err
	}

	if err := s.persistResults(ctx, jobID, results); err != nil {
		if errors.Is(err, ErrCancelled) {
			_, serr := s.markStopped(ctx, jobID)
			return serr
		}
		return s.failJob(ctx, jobID, err)
	}

	matched := len(results)
	var confidenceSum float64
	for _, r := range results {
		confidenceSum += r.Confidence
	}
	confidenceAvg := confidenceSum / float64(matched)

	applied, err := s.updateJob(ctx, jobID, JobUpdate{
		Status:        statusPtr(JobStatusCompleted),
		Progress:      intPtr(100),
		StageMessage:  strPtr(fmt.Sprintf("matched %d of %d items", matched, total)),
		MatchedItems:  &matched,
		ConfidenceAvg: &confidenceAvg,
	}, JobStatusProcessing)
	if err != nil {
		return err
	}
	if !applied {
		// 永続化と完了マークの間にキャンセルが割り込んだ。結果は残す
		s.logger.Info("job reached terminal state before completion mark", "jobID", jobID)
		return nil
	}

	s.logger.Info("match job completed",
		"jobID", jobID,
		"totalItems", total,
		"matchedItems", matched,
		"confidenceAvg", confidenceAvg,
		"duration", time.Since(startTime),
	)
	return nil
}

// match は選択された戦略で全明細を照合する
func (s *MatchService) match(ctx context.Context, jobID uuid.UUID, items []LineItem, catalog []*CatalogEntry, mode Mode) ([]MatchResult, error) {
	switch mode {
	case ModeLocal:
		return s.matchLocal(ctx, jobID, items, catalog)
	case ModeSemantic:
		results, err := s.matchSemantic(ctx, jobID, items, catalog, ModeSemantic)
		if err != nil && !errors.Is(err, ErrCancelled) {
			// プロバイダ障害は一度だけ再試行する
			s.logger.Warn("semantic matching failed, retrying once", "jobID", jobID, "error", err)
			results, err = s.matchSemantic(ctx, jobID, items, catalog, ModeSemantic)
		}
		return results, err
	case ModeHybrid:
		results, err := s.matchSemantic(ctx, jobID, items, catalog, ModeHybrid)
		if err != nil && !errors.Is(err, ErrCancelled) {
			// セマンティック障害はローカルマッチングへ縮退する
			s.logger.Warn("semantic matching failed, degrading to local", "jobID", jobID, "error", err)
			return s.matchLocal(ctx, jobID, items, catalog)
		}
		return results, err
	default:
		return nil, fmt.Errorf("unknown match mode: %q", mode)
	}
}

// matchLocal は字句マッチャーで明細を1件ずつ照合する
func (s *MatchService) matchLocal(ctx context.Context, jobID uuid.UUID, items []LineItem, catalog []*CatalogEntry) ([]MatchResult, error) {
	matcher := NewLexicalMatcher(s.normalizer, catalog, s.config.LexicalThreshold)

	byID := make(map[uuid.UUID]*CatalogEntry, len(catalog))
	for _, entry := range catalog {
		byID[entry.ID] = entry
	}

	var results []MatchResult
	for i, item := range items {
		if i%localProgressEvery == 0 {
			if cancelled, err := s.repository.IsCancelled(ctx, jobID); err != nil {
				return nil, fmt.Errorf("failed to read cancel flag: %w", err)
			} else if cancelled {
				return nil, ErrCancelled
			}

			progress := 40 + (40*i)/len(items)
			msg := fmt.Sprintf("local matching %d/%d items (%d matches)", i, len(items), len(results))
			if _, err := s.updateProgress(ctx, jobID, JobStatusProcessing, progress, msg, JobStatusProcessing); err != nil {
				return nil, err
			}
		}

		candidate, ok := matcher.Match(item).Get()
		if !ok {
			continue
		}
		entry := byID[candidate.CatalogID]

		results = append(results, MatchResult{
			ID:                  uuid.New(),
			JobID:               jobID,
			CatalogEntryID:      entry.ID,
			OriginalDescription: item.Description,
			MatchedDescription:  entry.Description,
			MatchedRate:         entry.Rate,
			Unit:                entry.Unit,
			Quantity:            item.Quantity,
			TotalAmount:         item.Quantity * entry.Rate,
			Confidence:          candidate.CombinedScore,
			MatchMethod:         ModeLocal,
			RowIndex:            item.RowIndex,
			SheetName:           item.SheetName,
			SectionHeader:       item.SectionHeader,
		})
	}

	return results, nil
}

// matchSemantic はEmbeddingベースのマッチャーで全明細を照合する
// Embeddingバッチの切れ目ごとにキャンセルフラグを確認する
func (s *MatchService) matchSemantic(ctx context.Context, jobID uuid.UUID, items []LineItem, catalog []*CatalogEntry, method Mode) ([]MatchResult, error) {
	if s.embedder == nil {
		return nil, errors.New("no embedder configured for semantic matching")
	}

	cfg := *s.config.Semantic
	cfg.Checkpoint = func(ctx context.Context) error {
		cancelled, err := s.repository.IsCancelled(ctx, jobID)
		if err != nil {
			return fmt.Errorf("failed to read cancel flag: %w", err)
		}
		if cancelled {
			return ErrCancelled
		}
		return nil
	}

	matcher := NewSemanticMatcher(s.normalizer, s.embedder, s.repository, &cfg, s.logger)
	results, err := matcher.MatchBatch(ctx, items, catalog)
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("combined semantic scores for %d line items", len(items))
	if _, err := s.updateProgress(ctx, jobID, JobStatusProcessing, 60, msg, JobStatusProcessing); err != nil {
		return nil, err
	}

	for i := range results {
		results[i].JobID = jobID
		results[i].MatchMethod = method
	}
	return results, nil
}

// persistResults は結果をバッチで書き込む。バッチの切れ目でキャンセルを確認し、
// 設定されていればそれ以降の書き込みを行わない
func (s *MatchService) persistResults(ctx context.Context, jobID uuid.UUID, results []MatchResult) error {
	for start := 0; start < len(results); start += ResultBatchSize {
		cancelled, err := s.repository.IsCancelled(ctx, jobID)
		if err != nil {
			return fmt.Errorf("failed to read cancel flag: %w", err)
		}
		if cancelled {
			return ErrCancelled
		}

		end := start + ResultBatchSize
		if end > len(results) {
			end = len(results)
		}
		if err := s.repository.BatchCreateResults(ctx, results[start:end]); err != nil {
			return fmt.Errorf("failed to save match results: %w", err)
		}
	}
	return nil
}

// stopIfCancelled はキャンセル要求があればジョブを stopped にする
func (s *MatchService) stopIfCancelled(ctx context.Context, jobID uuid.UUID) (bool, error) {
	cancelled, err := s.repository.IsCancelled(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to read cancel flag: %w", err)
	}
	if !cancelled {
		return false, nil
	}
	return s.markStopped(ctx, jobID)
}

// markStopped は非終端状態からのみ stopped へ遷移させる（1回だけ成立する）
// 既に他の終端状態へ移っていた場合は何もしない
func (s *MatchService) markStopped(ctx context.Context, jobID uuid.UUID) (bool, error) {
	applied, err := s.updateJob(ctx, jobID, JobUpdate{
		Status:       statusPtr(JobStatusStopped),
		StageMessage: strPtr("stopped by user"),
	}, JobStatusPending, JobStatusProcessing)
	if err != nil {
		return false, err
	}
	if applied {
		s.logger.Info("match job stopped", "jobID", jobID)
	}
	return true, nil
}

// failJob はジョブを failed にして元のエラーを返す
func (s *MatchService) failJob(ctx context.Context, jobID uuid.UUID, cause error) error {
	s.logger.Error("match job failed", "jobID", jobID, "error", cause)
	msg := cause.Error()
	if _, err := s.updateJob(ctx, jobID, JobUpdate{
		Status:       statusPtr(JobStatusFailed),
		ErrorMessage: &msg,
	}, JobStatusPending, JobStatusProcessing); err != nil {
		s.logger.Error("failed to mark job as failed", "jobID", jobID, "error", err)
	}
	return cause
}

func (s *MatchService) updateProgress(ctx context.Context, jobID uuid.UUID, status JobStatus, progress int, message string, expected ...JobStatus) (bool, error) {
	return s.updateJob(ctx, jobID, JobUpdate{
		Status:       &status,
		Progress:     &progress,
		StageMessage: &message,
	}, expected...)
}

func (s *MatchService) updateJob(ctx context.Context, jobID uuid.UUID, update JobUpdate, expected ...JobStatus) (bool, error) {
	applied, err := s.repository.UpdateJob(ctx, jobID, update, expected...)
	if err != nil {
		return false, fmt.Errorf("failed to update job: %w", err)
	}
	return applied, nil
}

func statusPtr(s JobStatus) *JobStatus { return &s }
func intPtr(v int) *int                { return &v }
func strPtr(v string) *string          { return &v }
