package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/shortsmith/internal/llm"
	"github.com/hitoshi/shortsmith/internal/model"
	"github.com/hitoshi/shortsmith/internal/prompt"
)

// VideoServiceInterface は動画生成ハンドラーが必要とするサービスインターフェース。
type VideoServiceInterface interface {
	Submit(ctx context.Context, vendor model.VideoVendor, userID string, req model.VideoRequest) (*model.VideoTask, error)
	Status(ctx context.Context, vendor model.VideoVendor, userID, taskID string) (*model.VideoTask, error)
}

// defaultVideoAspectRatio は縦長ショート動画向けの既定値。
const defaultVideoAspectRatio = "9:16"

var videoAspectRatios = map[string]bool{
	"9:16": true,
	"16:9": true,
	"1:1":  true,
}

// VideoHandler は画像から動画クリップを生成するHTTPハンドラー。
// 完了待ちはクライアントのポーリングで行う。
type VideoHandler struct {
	service VideoServiceInterface
}

// NewVideoHandler はVideoHandlerを生成する。
func NewVideoHandler(service VideoServiceInterface) *VideoHandler {
	return &VideoHandler{service: service}
}

type videoRequest struct {
	ImageURL        string            `json:"imageUrl"`
	Prompt          string            `json:"prompt"`
	ClipPrompt      *model.ClipPrompt `json:"clipPrompt"`
	NegativePrompt  string            `json:"negativePrompt"`
	DurationSeconds int               `json:"durationSeconds"`
	AspectRatio     string            `json:"aspectRatio"`
}

// Submit はvendorへ生成タスクを登録するハンドラーを返す。
// POST /api/kling, POST /api/seedance
func (h *VideoHandler) Submit(vendor model.VideoVendor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUserID(w, r)
		if !ok {
			return
		}

		var req videoRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		imageURL := strings.TrimSpace(req.ImageURL)
		if imageURL == "" {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("imageUrl is required"))
			return
		}
		aspect := strings.TrimSpace(req.AspectRatio)
		if aspect == "" {
			aspect = defaultVideoAspectRatio
		}
		if !videoAspectRatios[aspect] {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("aspectRatio must be one of 9:16, 16:9, 1:1"))
			return
		}

		duration := req.DurationSeconds
		if duration == 0 && req.ClipPrompt != nil {
			duration = req.ClipPrompt.DurationSeconds
		}
		if duration < 0 {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("durationSeconds must be 5 or 10"))
			return
		}

		p := strings.TrimSpace(req.Prompt)
		if p == "" && req.ClipPrompt != nil {
			p = prompt.BuildClipPrompt(*req.ClipPrompt)
		}

		task, err := h.service.Submit(r.Context(), vendor, userID, model.VideoRequest{
			ImageURL:        imageURL,
			Prompt:          p,
			NegativePrompt:  strings.TrimSpace(req.NegativePrompt),
			DurationSeconds: llm.NormalizeClipDuration(duration),
			AspectRatio:     aspect,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, task)
	}
}

// Status はvendorのタスク状態を返すハンドラーを返す。
// GET /api/kling/{id}, GET /api/seedance/{id}
func (h *VideoHandler) Status(vendor model.VideoVendor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUserID(w, r)
		if !ok {
			return
		}

		taskID := chi.URLParam(r, "id")
		if taskID == "" {
			writeAPIErrorResponse(w, http.StatusNotFound, model.NewTaskNotFoundError(string(vendor), taskID))
			return
		}

		task, err := h.service.Status(r.Context(), vendor, userID, taskID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}
