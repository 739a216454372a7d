package matching

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus はマッチングジョブの状態を表す
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusStopped    JobStatus = "stopped"
)

// IsTerminal は終端状態かどうかを返す。終端状態のジョブへの書き込みは拒否される
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusStopped:
		return true
	default:
		return false
	}
}

// Mode はマッチング戦略の選択を表す
type Mode string

const (
	// ModeLocal はローカルの字句マッチングのみを使用する
	ModeLocal Mode = "local"
	// ModeSemantic はEmbeddingベースのセマンティックマッチングのみを使用する
	ModeSemantic Mode = "semantic"
	// ModeHybrid はセマンティックを試み、失敗時にローカルへフォールバックする
	ModeHybrid Mode = "hybrid"
)

// LineItem はBOQワークブックから抽出された1明細を表す
// Ingestorが生成した後は不変。quantity > 0 と非空のdescriptionは抽出時に保証される
type LineItem struct {
	Description   string
	Quantity      float64
	RowIndex      int
	SheetName     string
	Unit          string
	SectionHeader string
}

// CatalogEntry は参照価格カタログの1エントリを表す。読み取り専用
type CatalogEntry struct {
	ID          uuid.UUID
	Description string
	Rate        float64
	Unit        string
	FullContext string
}

// SearchText はマッチング対象のテキストを返す（full_contextを優先）
func (e *CatalogEntry) SearchText() string {
	if e.FullContext != "" {
		return e.FullContext
	}
	return e.Description
}

// MatchCandidate はマッチング途中で生成される一時的な候補
type MatchCandidate struct {
	CatalogID     uuid.UUID
	CombinedScore float64
	LexicalScore  float64
	SemanticScore float64
}

// MatchResult は1明細に対する確定マッチを表す。一度永続化したら不変
type MatchResult struct {
	ID                  uuid.UUID
	JobID               uuid.UUID
	CatalogEntryID      uuid.UUID
	OriginalDescription string
	MatchedDescription  string
	MatchedRate         float64
	Unit                string
	Quantity            float64
	TotalAmount         float64
	Confidence          float64
	MatchMethod         Mode
	RowIndex            int
	SheetName           string
	SectionHeader       string
}

// Job はマッチングジョブの永続状態を表す
// Orchestrator以外はJobを更新しない。1ジョブにつき同時に1つの実行のみ
type Job struct {
	ID            uuid.UUID
	Status        JobStatus
	Progress      int
	StageMessage  string
	ErrorMessage  string
	TotalItems    int
	MatchedItems  int
	ConfidenceAvg float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// JobUpdate はジョブの部分更新を表す。nilのフィールドは変更しない
type JobUpdate struct {
	Status        *JobStatus
	Progress      *int
	StageMessage  *string
	ErrorMessage  *string
	TotalItems    *int
	MatchedItems  *int
	ConfidenceAvg *float64
}
