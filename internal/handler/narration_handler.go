package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/shortsmith/internal/model"
	"github.com/hitoshi/shortsmith/internal/tts"
)

// narrationStreamLimit は1回の読み上げストリームにかけられる時間の上限。
// サーバーのWriteTimeoutの代わりにこの値で打ち切る。
const narrationStreamLimit = 10 * time.Minute

// NarrationHandler はナレーション音声のHTTPハンドラー。
// 生成した音声は保存せずにそのままクライアントへ流す。
type NarrationHandler struct {
	synth       tts.Synthesizer
	streamLimit time.Duration
}

// NewNarrationHandler はNarrationHandlerを生成する。
func NewNarrationHandler(synth tts.Synthesizer) *NarrationHandler {
	return &NarrationHandler{synth: synth, streamLimit: narrationStreamLimit}
}

type narrationRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId"`
	ModelID string `json:"modelId"`
}

// Narrate はテキストを読み上げた音声をストリームで返す。
// POST /api/narration
func (h *NarrationHandler) Narrate(w http.ResponseWriter, r *http.Request) {
	var req narrationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("text is required"))
		return
	}
	if utf8.RuneCountInString(text) > tts.MaxTextLength {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError(fmt.Sprintf("text must be at most %d characters", tts.MaxTextLength)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.streamLimit)
	defer cancel()

	audio, err := h.synth.Synthesize(ctx, tts.Request{
		Text:    text,
		VoiceID: strings.TrimSpace(req.VoiceID),
		ModelID: strings.TrimSpace(req.ModelID),
	})
	if err != nil {
		handleServiceError(w, model.NewVendorError("elevenlabs", err))
		return
	}
	defer audio.Body.Close()

	// サーバーのWriteTimeoutは通常のAPI応答向けの長さなので、ストリーム中は解除する
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		slog.Warn("failed to clear write deadline", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, audio.Body); err != nil && !errors.Is(err, ctx.Err()) {
		slog.Warn("narration stream interrupted",
			slog.String("vendor", "elevenlabs"),
			slog.String("error", err.Error()),
		)
	}
}
