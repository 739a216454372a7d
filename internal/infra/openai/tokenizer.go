package openai

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// MaxInputTokens はEmbedding APIが受け付ける1入力あたりの最大トークン数
const MaxInputTokens = 8191

// Tokenizer はEmbedding入力のトークン数管理を提供する
// cl100k_baseエンコーディングを使用する
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenizer は新しいTokenizerを作成する
func NewTokenizer() (*Tokenizer, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}

	return &Tokenizer{
		encoding: encoding,
	}, nil
}

// CountTokens はテキストのトークン数をカウントする
func (t *Tokenizer) CountTokens(text string) int {
	if t.encoding == nil {
		return 0
	}
	tokens := t.encoding.Encode(text, nil, nil)
	return len(tokens)
}

// Truncate はテキストをmaxTokens以内に切り詰める
// 切り詰めが発生した場合はtrueを返す
func (t *Tokenizer) Truncate(text string, maxTokens int) (string, bool) {
	if t.encoding == nil || maxTokens <= 0 {
		return text, false
	}

	tokens := t.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, false
	}

	return t.encoding.Decode(tokens[:maxTokens]), true
}
