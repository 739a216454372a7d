package matching

import "errors"

// ErrEmptyCatalog はカタログが空で照合を開始できないエラー
var ErrEmptyCatalog = errors.New("price catalog is empty")

// ErrNoLineItems はワークブックから明細を1件も抽出できなかったエラー
var ErrNoLineItems = errors.New("no line items extracted from workbook")

// ErrJobTerminal は終端状態のジョブへの書き込みを拒否したことを表す
var ErrJobTerminal = errors.New("job already in terminal state")

// ErrJobNotFound は指定IDのジョブが存在しないエラー
var ErrJobNotFound = errors.New("job not found")

// ErrNoMatches はどのマッチング戦略でも結果を1件も生成できなかったエラー
var ErrNoMatches = errors.New("no matches produced")

// ErrCancelled はキャンセル要求によって処理を打ち切ったことを表す
// エラーではなく制御された停止として扱い、ジョブは stopped で終わる
var ErrCancelled = errors.New("job cancelled")
