package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/shortsmith/internal/model"
	"github.com/hitoshi/shortsmith/internal/prompt"
	"github.com/hitoshi/shortsmith/internal/security"
)

const (
	DefaultSceneCount = 5
	MaxSceneCount     = 12
)

// SceneRequest はシーン分割の入力。
type SceneRequest struct {
	Script     string
	SceneCount int
	Style      string
}

type sceneBreakdown struct {
	Scenes []sceneDraft `json:"scenes" jsonschema_description:"The scenes of the short vertical video in script order"`
}

type sceneDraft struct {
	Text            string            `json:"text" jsonschema_description:"The excerpt of the script covered by this scene"`
	Narration       string            `json:"narration" jsonschema_description:"Voice-over line for this scene, natural spoken language"`
	DurationSeconds float64           `json:"durationSeconds" jsonschema_description:"Approximate on-screen duration in seconds, between 2 and 10"`
	ImagePrompt     model.ImagePrompt `json:"imagePrompt" jsonschema_description:"Structured description of the still image for this scene"`
	ClipPrompt      model.ClipPrompt  `json:"clipPrompt" jsonschema_description:"Structured description of how the still image should be animated"`
}

var sceneBreakdownSchema = GenerateSchema[sceneBreakdown]()

const sceneSystemPrompt = `You are a storyboard artist for short-form vertical videos (TikTok, Reels, Shorts).
Split the user's script into scenes. Each scene is one still image that will later be animated into a short clip.
Describe visuals concretely. Keep the same characters, wardrobe and color palette across scenes.
Never put on-screen text, captions or logos in the image prompts.`

// GenerateScenes は台本をシーンに分割し、各シーンのプロンプト文字列を組み立てて返す。
func (c *OpenAIClient) GenerateScenes(ctx context.Context, req SceneRequest) ([]model.Scene, error) {
	count := req.SceneCount
	if count <= 0 {
		count = DefaultSceneCount
	}

	user := fmt.Sprintf("Create exactly %d scenes for this script.\n", count)
	if style := strings.TrimSpace(req.Style); style != "" {
		user += fmt.Sprintf("Use this visual style for every scene: %s.\n", style)
	}
	user += "\nScript:\n" + req.Script

	out, err := completeStructured[sceneBreakdown](ctx, c, "scenes", "scene_breakdown", sceneSystemPrompt, user, sceneBreakdownSchema, 0.7)
	if err != nil {
		return nil, model.NewVendorError(vendorName, err)
	}
	if len(out.Scenes) == 0 {
		return nil, model.NewVendorError(vendorName, fmt.Errorf("model returned no scenes"))
	}

	drafts := out.Scenes
	if len(drafts) > count {
		drafts = drafts[:count]
	}

	scenes := make([]model.Scene, 0, len(drafts))
	for i, d := range drafts {
		scenes = append(scenes, c.buildScene(i+1, d))
	}
	return scenes, nil
}

// buildScene はLLMの出力をサニタイズし、プロンプト文字列を事前に組み立てる。
func (c *OpenAIClient) buildScene(index int, d sceneDraft) model.Scene {
	s := c.sanitizer
	ip := model.ImagePrompt{
		Subject:      s.Sanitize(d.ImagePrompt.Subject),
		Action:       s.Sanitize(d.ImagePrompt.Action),
		Setting:      s.Sanitize(d.ImagePrompt.Setting),
		Style:        s.Sanitize(d.ImagePrompt.Style),
		Lighting:     s.Sanitize(d.ImagePrompt.Lighting),
		Mood:         s.Sanitize(d.ImagePrompt.Mood),
		CameraAngle:  s.Sanitize(d.ImagePrompt.CameraAngle),
		ColorPalette: s.Sanitize(d.ImagePrompt.ColorPalette),
		Details:      security.SanitizeAll(s, d.ImagePrompt.Details),
		Negative:     s.Sanitize(d.ImagePrompt.Negative),
	}
	cp := model.ClipPrompt{
		Motion:          s.Sanitize(d.ClipPrompt.Motion),
		CameraMovement:  s.Sanitize(d.ClipPrompt.CameraMovement),
		SubjectAction:   s.Sanitize(d.ClipPrompt.SubjectAction),
		Pacing:          s.Sanitize(d.ClipPrompt.Pacing),
		Transition:      s.Sanitize(d.ClipPrompt.Transition),
		Style:           s.Sanitize(d.ClipPrompt.Style),
		DurationSeconds: NormalizeClipDuration(d.ClipPrompt.DurationSeconds),
	}

	return model.Scene{
		Index:           index,
		Text:            s.Sanitize(d.Text),
		Narration:       s.Sanitize(d.Narration),
		DurationSeconds: d.DurationSeconds,
		ImagePrompt:     ip,
		ClipPrompt:      cp,
		ImagePromptText: prompt.WithVerticalFraming(prompt.BuildImagePrompt(ip)),
		ClipPromptText:  prompt.BuildClipPrompt(cp),
	}
}

// NormalizeClipDuration は動画ベンダーが受け付ける5秒または10秒に丸める。
func NormalizeClipDuration(seconds int) int {
	if seconds > 5 {
		return 10
	}
	return 5
}
