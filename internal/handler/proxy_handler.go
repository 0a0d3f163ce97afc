package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/shortsmith/internal/model"
	"github.com/hitoshi/shortsmith/internal/security"
)

// ProxyConfig はメディアプロキシの設定。
type ProxyConfig struct {
	Timeout time.Duration
	MaxSize int64
}

// ProxyHandler は外部のメディアURLを中継するHTTPハンドラー。
// ブラウザから直接読めないベンダーの生成物を取得するために使う。
type ProxyHandler struct {
	guard   security.SSRFGuardService
	client  *http.Client
	maxSize int64
}

// NewProxyHandler はProxyHandlerを生成する。
// HTTPクライアントはSSRF防止機能付きのものを1つだけ作って使い回す。
func NewProxyHandler(guard security.SSRFGuardService, cfg ProxyConfig) *ProxyHandler {
	return &ProxyHandler{
		guard:   guard,
		client:  guard.NewSafeClient(cfg.Timeout),
		maxSize: cfg.MaxSize,
	}
}

// proxiedHeaders は上流レスポンスから引き継ぐヘッダー。
var proxiedHeaders = []string{"Content-Type", "Cache-Control", "Last-Modified", "ETag"}

// Proxy は上流のレスポンスボディをそのまま返す。
// GET /api/proxy?url=
func (h *ProxyHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("url is required"))
		return
	}

	if err := h.guard.ValidateURL(target); err != nil {
		writeGuardError(w, err)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError(err.Error()))
		return
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if guardErr := security.ClassifyClientError(err); guardErr != nil {
			slog.Warn("proxy target rejected at dial time",
				slog.String("url", target),
				slog.String("error", err.Error()),
			)
			writeGuardError(w, guardErr)
			return
		}
		slog.Warn("proxy request failed",
			slog.String("url", target),
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewUpstreamFailedError("request failed"))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		writeAPIErrorResponse(w, http.StatusBadGateway,
			model.NewUpstreamFailedError("upstream returned status "+strconv.Itoa(resp.StatusCode)))
		return
	}
	if resp.ContentLength > h.maxSize {
		writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewPayloadTooLargeError(h.maxSize))
		return
	}

	for _, name := range proxiedHeaders {
		if v := resp.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	if resp.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	// Content-Lengthのない応答は上限で打ち切る
	n, err := io.Copy(w, io.LimitReader(resp.Body, h.maxSize))
	if err != nil {
		slog.Warn("proxy stream interrupted",
			slog.String("url", target),
			slog.String("error", err.Error()),
		)
		return
	}
	if n == h.maxSize {
		slog.Warn("proxy response truncated",
			slog.String("url", target),
			slog.Int64("limit", h.maxSize),
		)
	}
}

// writeGuardError はSSRFガードの検証エラーを403または400で返す。
func writeGuardError(w http.ResponseWriter, err error) {
	if errors.Is(err, security.ErrBlockedTarget) {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewSSRFBlockedError(err.Error()))
		return
	}
	writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError(err.Error()))
}
