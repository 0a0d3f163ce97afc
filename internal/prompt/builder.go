// Package prompt は構造化されたシーン情報から生成API向けのプロンプト文字列を組み立てる。
// 同一入力に対して常に同一の文字列を返す純粋関数のみを提供する。
package prompt

import (
	"fmt"
	"strings"

	"github.com/hitoshi/shortsmith/internal/model"
)

// VerticalFraming は縦長出力を要求する際に末尾へ付与する文。
const VerticalFraming = "Vertical 9:16 composition."

// BuildImagePrompt はImagePromptから画像生成用のプロンプトを組み立てる。
// subjectが空の場合は空文字列を返す。
func BuildImagePrompt(p model.ImagePrompt) string {
	subject := clean(p.Subject)
	if subject == "" {
		return ""
	}

	head := subject
	if action := clean(p.Action); action != "" {
		head += ", " + action
	}
	if setting := clean(p.Setting); setting != "" {
		head += ", in " + setting
	}

	var b sentenceBuilder
	b.add(head)
	b.labeled("Style", p.Style)
	b.labeled("Lighting", p.Lighting)
	b.labeled("Mood", p.Mood)
	b.labeled("Camera", p.CameraAngle)
	b.labeled("Color palette", p.ColorPalette)
	b.labeled("Details", joinNonEmpty(p.Details))
	b.labeled("Avoid", p.Negative)
	return b.String()
}

// BuildClipPrompt はClipPromptから動画クリップ生成用のプロンプトを組み立てる。
// すべてのフィールドが空の場合は空文字列を返す。
func BuildClipPrompt(p model.ClipPrompt) string {
	var b sentenceBuilder
	b.add(p.CameraMovement)
	b.add(p.SubjectAction)
	b.labeled("Motion", p.Motion)
	b.labeled("Pacing", p.Pacing)
	b.labeled("Style", p.Style)
	b.labeled("Transition", p.Transition)
	if p.DurationSeconds > 0 && !b.empty() {
		b.add(fmt.Sprintf("Duration: %ds", p.DurationSeconds))
	}
	return b.String()
}

// WithVerticalFraming は空でないプロンプトにVerticalFramingを付与する。
func WithVerticalFraming(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return p + " " + VerticalFraming
}

// sentenceBuilder はピリオド区切りの文を順に連結する。
type sentenceBuilder struct {
	parts []string
}

func (b *sentenceBuilder) add(s string) {
	s = strings.TrimRight(clean(s), ".")
	if s == "" {
		return
	}
	b.parts = append(b.parts, s+".")
}

func (b *sentenceBuilder) labeled(label, value string) {
	if v := clean(value); v != "" {
		b.add(label + ": " + v)
	}
}

func (b *sentenceBuilder) empty() bool {
	return len(b.parts) == 0
}

func (b *sentenceBuilder) String() string {
	return strings.Join(b.parts, " ")
}

// clean は連続する空白を1つにまとめ前後の空白を除去する。
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func joinNonEmpty(items []string) string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if c := clean(it); c != "" {
			out = append(out, c)
		}
	}
	return strings.Join(out, ", ")
}
