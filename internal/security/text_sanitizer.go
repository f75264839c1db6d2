package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は利用者が入力した自由記述テキストからマークアップを取り除く。
// 支出名・カテゴリ・リマインダー名などを保存する前に使用する。
type TextSanitizerService interface {
	// Clean は全てのHTMLタグを除去したプレーンテキストを返す。
	// 前後の空白は取り除く。同一入力に対して常に同一出力を返す。
	Clean(s string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicyを使うTextSanitizerServiceを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean はタグを除去し、StrictPolicyがエスケープした文字実体を元に戻す。
// 値はJSONとして返され、表示側でエスケープされる。
func (s *textSanitizer) Clean(in string) string {
	if in == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(in)))
}
