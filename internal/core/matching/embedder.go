package matching

import "context"

// EmbedRole はEmbeddingプロバイダへ渡すテキストの役割
type EmbedRole string

const (
	// RoleDocument はカタログ側（検索対象）のテキスト
	RoleDocument EmbedRole = "document"
	// RoleQuery は明細側（検索クエリ）のテキスト
	RoleQuery EmbedRole = "query"
)

// Embedder はテキストをベクトル表現に変換するインターフェース
// 実装はリクエスト順にベクトルを返さなければならない
type Embedder interface {
	// BatchEmbed はテキスト列のEmbeddingをバッチで生成する
	BatchEmbed(ctx context.Context, texts []string, role EmbedRole) ([][]float32, error)

	// ModelName はEmbeddingモデル名を返す（キャッシュのキーに使う）
	ModelName() string

	// MaxBatchSize は1リクエストに載せられる最大テキスト数を返す
	MaxBatchSize() int
}
