package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/shortsmith/internal/model"
	"github.com/hitoshi/shortsmith/internal/storage"
)

// FileStore はファイルハンドラーが必要とするストレージ操作。
type FileStore interface {
	Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	Open(ctx context.Context, key string) (*storage.Object, error)
}

// multipartOverhead はmultipartの境界やヘッダーに許容する余白。
const multipartOverhead = 1 << 20

// uploadMemory はmultipartの解析でメモリに保持する上限。超過分は一時ファイルに書き出される。
const uploadMemory = 8 << 20

// FileHandler はアップロードと保存済みファイルの読み出しを扱うHTTPハンドラー。
type FileHandler struct {
	store   FileStore
	maxSize int64
}

// NewFileHandler はFileHandlerを生成する。maxSizeはアップロード1件の上限バイト数。
func NewFileHandler(store FileStore, maxSize int64) *FileHandler {
	return &FileHandler{store: store, maxSize: maxSize}
}

type uploadResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Upload はmultipartのfileフィールドを保存する。
// POST /api/uploads
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+multipartOverhead)
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewPayloadTooLargeError(h.maxSize))
			return
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(err.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("file is required"))
		return
	}
	defer file.Close()

	if header.Size > h.maxSize {
		writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewPayloadTooLargeError(h.maxSize))
		return
	}

	contentType := uploadContentType(header.Header.Get("Content-Type"))
	if !allowedUploadType(contentType) {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("file must be an image, video or audio"))
		return
	}

	key := storage.UploadKey(userID, header.Filename)
	url, err := h.store.Upload(r.Context(), key, contentType, file)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	slog.Info("file uploaded",
		slog.String("user_id", userID),
		slog.String("key", key),
		slog.Int64("size", header.Size),
	)
	writeJSON(w, http.StatusCreated, uploadResponse{Key: key, URL: url})
}

// Serve は保存済みファイルをストリームで返す。自分の領域のkeyのみ読み出せる。
// GET /api/files/*
func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	key := chi.URLParam(r, "*")
	if key == "" {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewFileNotFoundError(key))
		return
	}
	if !storage.OwnedBy(key, userID) {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewForbiddenError(key))
		return
	}

	obj, err := h.store.Open(r.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewFileNotFoundError(key))
		return
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj.Body); err != nil {
		slog.Warn("file stream interrupted",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// uploadContentType はパラメータを除いたメディアタイプを返す。
func uploadContentType(raw string) string {
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(mediaType)
}

func allowedUploadType(contentType string) bool {
	for _, prefix := range []string{"image/", "video/", "audio/"} {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}
