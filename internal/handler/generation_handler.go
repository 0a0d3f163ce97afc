package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/shortsmith/internal/imagegen"
	"github.com/hitoshi/shortsmith/internal/llm"
	"github.com/hitoshi/shortsmith/internal/model"
	"github.com/hitoshi/shortsmith/internal/prompt"
)

// ImageServiceInterface は画像生成ハンドラーが必要とするサービスインターフェース。
type ImageServiceInterface interface {
	Generate(ctx context.Context, userID string, req imagegen.Request) (*imagegen.Result, error)
	GenerateBatch(ctx context.Context, userID string, reqs []imagegen.Request) ([]imagegen.Result, error)
}

// GenerationHandler はテキスト生成と画像生成のHTTPハンドラー。
type GenerationHandler struct {
	text   llm.Generator
	images ImageServiceInterface
}

// NewGenerationHandler はGenerationHandlerを生成する。
func NewGenerationHandler(text llm.Generator, images ImageServiceInterface) *GenerationHandler {
	return &GenerationHandler{text: text, images: images}
}

type scenesRequest struct {
	Script     string `json:"script"`
	SceneCount int    `json:"sceneCount"`
	Style      string `json:"style"`
}

type scenesResponse struct {
	Scenes []model.Scene `json:"scenes"`
}

type captionsRequest struct {
	Script   string `json:"script"`
	Platform string `json:"platform"`
	Tone     string `json:"tone"`
}

type repliesRequest struct {
	Comment string `json:"comment"`
	Context string `json:"context"`
}

type replyResponse struct {
	Reply string `json:"reply"`
}

type imagePromptRequest struct {
	ImagePrompt *model.ImagePrompt `json:"imagePrompt"`
	Vertical    bool               `json:"vertical"`
}

type promptResponse struct {
	Prompt string `json:"prompt"`
}

type generateImageRequest struct {
	Prompt      string             `json:"prompt"`
	ImagePrompt *model.ImagePrompt `json:"imagePrompt"`
	AspectRatio string             `json:"aspectRatio"`
	SceneIndex  *int               `json:"sceneIndex"`
}

type batchSceneRequest struct {
	SceneIndex  *int               `json:"sceneIndex"`
	Prompt      string             `json:"prompt"`
	ImagePrompt *model.ImagePrompt `json:"imagePrompt"`
}

type batchImageRequest struct {
	Scenes      []batchSceneRequest `json:"scenes"`
	AspectRatio string              `json:"aspectRatio"`
}

type batchImageResponse struct {
	Images []imagegen.Result `json:"images"`
}

// Scenes は台本をシーンに分割する。
// POST /api/scenes
func (h *GenerationHandler) Scenes(w http.ResponseWriter, r *http.Request) {
	var req scenesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	script := strings.TrimSpace(req.Script)
	if script == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("script is required"))
		return
	}
	if req.SceneCount < 0 || req.SceneCount > llm.MaxSceneCount {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError(fmt.Sprintf("sceneCount must be between 1 and %d", llm.MaxSceneCount)))
		return
	}

	scenes, err := h.text.GenerateScenes(r.Context(), llm.SceneRequest{
		Script:     script,
		SceneCount: req.SceneCount,
		Style:      req.Style,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scenesResponse{Scenes: scenes})
}

// Captions はSNS投稿用のキャプションを生成する。
// POST /api/captions
func (h *GenerationHandler) Captions(w http.ResponseWriter, r *http.Request) {
	var req captionsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	script := strings.TrimSpace(req.Script)
	if script == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("script is required"))
		return
	}
	platform := strings.ToLower(strings.TrimSpace(req.Platform))
	if platform == "" {
		platform = llm.PlatformTikTok
	}
	if !llm.ValidPlatform(platform) {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("platform must be one of tiktok, instagram, youtube"))
		return
	}

	caption, err := h.text.GenerateCaption(r.Context(), llm.CaptionRequest{
		Script:   script,
		Platform: platform,
		Tone:     req.Tone,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, caption)
}

// Replies は視聴者コメントへの返信を生成する。
// POST /api/replies
func (h *GenerationHandler) Replies(w http.ResponseWriter, r *http.Request) {
	var req repliesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	comment := strings.TrimSpace(req.Comment)
	if comment == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("comment is required"))
		return
	}

	reply, err := h.text.GenerateReply(r.Context(), llm.ReplyRequest{Comment: comment, Context: req.Context})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, replyResponse{Reply: reply})
}

// ImagePrompt は構造化フィールドから画像生成プロンプトを組み立てる。
// POST /api/image-gen/prompt
func (h *GenerationHandler) ImagePrompt(w http.ResponseWriter, r *http.Request) {
	var req imagePromptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ImagePrompt == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("imagePrompt is required"))
		return
	}

	p := prompt.BuildImagePrompt(*req.ImagePrompt)
	if p == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("imagePrompt.subject is required"))
		return
	}
	if req.Vertical {
		p = prompt.WithVerticalFraming(p)
	}
	writeJSON(w, http.StatusOK, promptResponse{Prompt: p})
}

// GenerateImage は1枚の画像を生成して保存する。
// POST /api/image-gen/generate
func (h *GenerationHandler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req generateImageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	aspect, apiErr := resolveAspectRatio(req.AspectRatio)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}
	p := resolveImagePrompt(req.Prompt, req.ImagePrompt, aspect)
	if p == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("prompt is required"))
		return
	}

	res, err := h.images.Generate(r.Context(), userID, imagegen.Request{
		Prompt:      p,
		AspectRatio: aspect,
		SceneIndex:  req.SceneIndex,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GenerateImageBatch は複数シーンの画像を並行に生成する。
// POST /api/image-gen/batch
func (h *GenerationHandler) GenerateImageBatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req batchImageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if len(req.Scenes) == 0 || len(req.Scenes) > imagegen.MaxBatchSize {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError(fmt.Sprintf("scenes must contain between 1 and %d items", imagegen.MaxBatchSize)))
		return
	}
	aspect, apiErr := resolveAspectRatio(req.AspectRatio)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	reqs := make([]imagegen.Request, 0, len(req.Scenes))
	for i, sc := range req.Scenes {
		p := resolveImagePrompt(sc.Prompt, sc.ImagePrompt, aspect)
		if p == "" {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewValidationError(fmt.Sprintf("scenes[%d]: prompt is required", i)))
			return
		}
		reqs = append(reqs, imagegen.Request{Prompt: p, AspectRatio: aspect, SceneIndex: sc.SceneIndex})
	}

	results, err := h.images.GenerateBatch(r.Context(), userID, reqs)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, batchImageResponse{Images: results})
}

// resolveAspectRatio は空の場合に縦長の既定値を返す。
func resolveAspectRatio(raw string) (string, *model.APIError) {
	aspect := strings.TrimSpace(raw)
	if aspect == "" {
		return imagegen.DefaultAspectRatio, nil
	}
	if !imagegen.ValidAspectRatio(aspect) {
		return "", model.NewValidationError("aspectRatio must be one of 9:16, 1:1, 16:9, 3:4, 4:3")
	}
	return aspect, nil
}

// resolveImagePrompt は自由記述のプロンプトを優先し、なければ構造化フィールドから組み立てる。
// 縦長出力の場合は構図の指定を付与する。
func resolveImagePrompt(raw string, structured *model.ImagePrompt, aspect string) string {
	if p := strings.TrimSpace(raw); p != "" {
		return p
	}
	if structured == nil {
		return ""
	}
	p := prompt.BuildImagePrompt(*structured)
	if aspect == imagegen.DefaultAspectRatio {
		p = prompt.WithVerticalFraming(p)
	}
	return p
}
