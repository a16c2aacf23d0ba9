// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はユーザー入力およびAI分析結果のテキストからHTMLを除去する。
// アイデアは常にプレーンテキストとして保存し、クライアント側でエスケープして表示する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はテキストのサニタイズ機能のインターフェースを定義する。
// アイデアの保存前とAI分析結果の正規化時に使用される。
type TextSanitizer interface {
	// Sanitize は入力から全てのHTMLタグを除去したプレーンテキストを返す。
	// script, styleなどの要素は内容ごと除去する。
	// 文字参照はデコードし、前後の空白を取り除く。
	//
	// 戻り値はHTMLセーフではない。"&lt;script&gt;" は "<script>" として返るため、
	// HTMLとして描画する側で必ずエスケープすること。
	Sanitize(raw string) string
	// SanitizeAll はスライスの各要素をサニタイズし、空になった要素を取り除く。
	SanitizeAll(raw []string) []string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
// タグを一切許可しないbluemondayのStrictPolicyを使用する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力から全てのHTMLタグを除去し、文字参照をデコードしたプレーンテキストを返す。
// デコード後の文字列はHTMLセーフではない。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

// SanitizeAll はスライスの各要素をサニタイズする。nilの入力には空スライスを返す。
func (s *textSanitizer) SanitizeAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if cleaned := s.Sanitize(v); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

var _ TextSanitizer = (*textSanitizer)(nil)
