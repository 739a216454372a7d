package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Embeddings用）
	OpenAI OpenAIConfig

	// マッチング設定
	Matching MatchingConfig

	// Logging設定
	Logging LoggingConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey               string
	EmbeddingModel       string
	EmbeddingDimension   int
	MaxRequestsPerMinute int
}

// MatchingConfig はマッチングアルゴリズムの設定
// デフォルト値は元のアルゴリズムのパラメータをそのまま採用している
type MatchingConfig struct {
	// LexicalThreshold は字句マッチの採用閾値
	LexicalThreshold float64
	// CosineWeight / JaccardWeight はセマンティックスコアの合成比
	CosineWeight  float64
	JaccardWeight float64
	// EmbeddingBatchSize はEmbedding APIの1バッチあたりの件数
	EmbeddingBatchSize int
	// BatchDelayMillis はEmbeddingバッチ間の待機時間（ミリ秒）
	BatchDelayMillis int
}

// LoggingConfig はログ出力設定
type LoggingConfig struct {
	Level  string // debug / info / warn / error
	Format string // json / text
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "boqmatch"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "boqmatch"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:               getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:       getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension:   getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			MaxRequestsPerMinute: getEnvAsInt("OPENAI_MAX_REQUESTS_PER_MINUTE", 60),
		},
		Matching: MatchingConfig{
			LexicalThreshold:   getEnvAsFloat("MATCH_LEXICAL_THRESHOLD", 0.25),
			CosineWeight:       getEnvAsFloat("MATCH_COSINE_WEIGHT", 0.85),
			JaccardWeight:      getEnvAsFloat("MATCH_JACCARD_WEIGHT", 0.15),
			EmbeddingBatchSize: getEnvAsInt("MATCH_EMBEDDING_BATCH_SIZE", 50),
			BatchDelayMillis:   getEnvAsInt("MATCH_BATCH_DELAY_MS", 200),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
