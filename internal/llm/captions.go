package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/shortsmith/internal/model"
	"github.com/hitoshi/shortsmith/internal/security"
)

// 対応プラットフォーム
const (
	PlatformTikTok    = "tiktok"
	PlatformInstagram = "instagram"
	PlatformYouTube   = "youtube"
)

// ValidPlatform はキャプション生成の対象プラットフォームかどうかを返す。
func ValidPlatform(p string) bool {
	switch p {
	case PlatformTikTok, PlatformInstagram, PlatformYouTube:
		return true
	}
	return false
}

// CaptionRequest はキャプション生成の入力。
type CaptionRequest struct {
	Script   string
	Platform string
	Tone     string
}

type captionResponse struct {
	Caption  string   `json:"caption" jsonschema_description:"The post caption without hashtags"`
	Hashtags []string `json:"hashtags" jsonschema_description:"Relevant hashtags, each starting with #"`
}

var captionSchema = GenerateSchema[captionResponse]()

var platformGuides = map[string]string{
	PlatformTikTok:    "TikTok: hook in the first line, under 150 characters, 3 to 5 hashtags.",
	PlatformInstagram: "Instagram Reels: up to 3 short lines, friendly tone, 5 to 10 hashtags.",
	PlatformYouTube:   "YouTube Shorts: one punchy sentence that works as a title, 2 to 3 hashtags.",
}

const captionSystemPrompt = `You write social media captions for short vertical videos.
Return the caption text and a separate list of hashtags. Do not include hashtags inside the caption.`

// GenerateCaption は台本からSNS投稿用のキャプションとハッシュタグを生成する。
func (c *OpenAIClient) GenerateCaption(ctx context.Context, req CaptionRequest) (*model.Caption, error) {
	platform := req.Platform
	if platform == "" {
		platform = PlatformTikTok
	}

	user := platformGuides[platform] + "\n"
	if tone := strings.TrimSpace(req.Tone); tone != "" {
		user += fmt.Sprintf("Tone: %s.\n", tone)
	}
	user += "\nVideo script:\n" + req.Script

	out, err := completeStructured[captionResponse](ctx, c, "captions", "caption", captionSystemPrompt, user, captionSchema, 0.8)
	if err != nil {
		return nil, model.NewVendorError(vendorName, err)
	}

	return &model.Caption{
		Caption:  c.sanitizer.Sanitize(out.Caption),
		Hashtags: NormalizeHashtags(security.SanitizeAll(c.sanitizer, out.Hashtags)),
	}, nil
}

// NormalizeHashtags は先頭に#を付け、空白を除去し、大文字小文字を区別せずに重複を取り除く。
func NormalizeHashtags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.Join(strings.Fields(t), "")
		t = strings.TrimLeft(t, "#")
		if t == "" {
			continue
		}
		t = "#" + t
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
