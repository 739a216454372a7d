package matching

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Repository はマッチングに関わる全データアクセスを統合するインターフェース
// テスト時のモック用に消費者側で定義
type Repository interface {
	// Catalog（読み取り専用。rateが設定されたエントリのみ返す）
	ListCatalog(ctx context.Context) ([]*CatalogEntry, error)

	// カタログEmbeddingキャッシュ
	EmbeddingCache

	// Job
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id uuid.UUID) (mo.Option[*Job], error)
	// UpdateJob は条件付き更新を行う。expected が指定された場合、ジョブが
	// そのいずれかの状態にあるときだけ更新が成功し、適用されたかどうかを返す
	// （楽観的な状態遷移: 「stopped にする」と「completed にする」の競合を防ぐ）
	UpdateJob(ctx context.Context, id uuid.UUID, update JobUpdate, expected ...JobStatus) (bool, error)

	// MatchResult（ジョブ内ではLineItem順に書き込まれる）
	BatchCreateResults(ctx context.Context, results []MatchResult) error
	ListResultsByJob(ctx context.Context, jobID uuid.UUID) ([]MatchResult, error)

	// キャンセルフラグ。ジョブ単位でストアに永続化され、一度セットしたら
	// 同じジョブに対して解除されることはない
	RequestCancel(ctx context.Context, jobID uuid.UUID) error
	IsCancelled(ctx context.Context, jobID uuid.UUID) (bool, error)
}

// Parser はワークブックのバイト列から明細を抽出するインターフェース
// シート単位の失敗は致命ではなく、実装側で警告として処理される
type Parser interface {
	Parse(data []byte) ([]LineItem, error)
}
