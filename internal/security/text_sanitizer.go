package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はLLMが返したテキストからHTMLを除去し、プレーンテキストとして返す。
type TextSanitizer interface {
	Sanitize(s string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicyを使うTextSanitizerを生成する。
// StrictPolicyは全てのタグを除去する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、bluemondayがエスケープしたエンティティを元の文字に戻す。
// 戻り値はJSONのテキストとして扱われる前提で、HTMLとして埋め込んではならない。
func (s *textSanitizer) Sanitize(in string) string {
	if in == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(in)))
}

// SanitizeAll はスライスの各要素をサニタイズし、空になった要素を取り除く。
func SanitizeAll(s TextSanitizer, items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if v := s.Sanitize(it); v != "" {
			out = append(out, v)
		}
	}
	return out
}
