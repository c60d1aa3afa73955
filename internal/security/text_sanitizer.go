// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は参加者が入力した表示用テキスト（ニックネーム、チーム名など）から
// HTMLを除去し、管理画面でのXSSを防ぐ。
// bluemondayのStrictPolicyを使用し、タグをすべて取り除いたプレーンテキストのみを残す。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は表示用テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizerService interface {
	// Sanitize はテキストからHTMLタグを除去し、前後の空白を取り除いて返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// angleBrackets はエスケープ解除後に残った山括弧を除去する。
var angleBrackets = strings.NewReplacer("<", "", ">", "")

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はテキストからHTMLを除去する。
// StrictPolicyは"&"などをエンティティ化するため、JSONで返すプレーンテキストとして
// エスケープを解除し、解除で現れた山括弧は取り除く。
func (s *textSanitizer) Sanitize(raw string) string {
	cleaned := html.UnescapeString(s.policy.Sanitize(raw))
	return strings.TrimSpace(angleBrackets.Replace(cleaned))
}
