package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/shortsmith/internal/asset"
	"github.com/hitoshi/shortsmith/internal/model"
)

// AssetServiceInterface はアセット履歴ハンドラーが必要とするサービスインターフェース。
type AssetServiceInterface interface {
	List(ctx context.Context, userID, assetType string, limit, offset int) (*asset.ListResult, error)
	Recent(ctx context.Context, userID string, limit int) ([]*model.AssetHistory, error)
	Search(ctx context.Context, userID, query, assetType string, limit int) ([]*model.AssetHistory, error)
	Stats(ctx context.Context, userID string) (*model.AssetStats, error)
	Create(ctx context.Context, userID string, in asset.CreateInput) (*model.AssetHistory, error)
	Get(ctx context.Context, userID, id string) (*model.AssetHistory, error)
	UpdateMetadata(ctx context.Context, userID, id string, patch map[string]any) (*model.AssetHistory, error)
	Delete(ctx context.Context, userID, id string) error
}

// AssetHandler はアセット履歴のHTTPハンドラー。
type AssetHandler struct {
	service AssetServiceInterface
}

// NewAssetHandler はAssetHandlerを生成する。
func NewAssetHandler(service AssetServiceInterface) *AssetHandler {
	return &AssetHandler{service: service}
}

type createAssetRequest struct {
	OriginalContent string         `json:"originalContent"`
	StorageURL      string         `json:"storageUrl"`
	AssetType       string         `json:"assetType"`
	Metadata        map[string]any `json:"metadata"`
}

type updateAssetRequest struct {
	Metadata map[string]any `json:"metadata"`
}

// assetResponse はアセット履歴のAPIレスポンス。
type assetResponse struct {
	ID              string         `json:"id"`
	UserID          string         `json:"userId"`
	OriginalContent string         `json:"originalContent"`
	StorageURL      string         `json:"storageUrl"`
	AssetType       string         `json:"assetType"`
	Metadata        map[string]any `json:"metadata"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

type assetListResponse struct {
	Items  []assetResponse `json:"items"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type assetItemsResponse struct {
	Items []assetResponse `json:"items"`
}

type assetStatsResponse struct {
	Total         int        `json:"total"`
	Images        int        `json:"images"`
	Videos        int        `json:"videos"`
	LastCreatedAt *time.Time `json:"lastCreatedAt"`
}

// List はアセット履歴の一覧を返す。
// GET /asset-history?type=&limit=&offset=
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset")
	if !ok {
		return
	}

	res, err := h.service.List(r.Context(), userID, r.URL.Query().Get("type"), limit, offset)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, assetListResponse{
		Items:  toAssetResponses(res.Items),
		Total:  res.Total,
		Limit:  res.Limit,
		Offset: res.Offset,
	})
}

// Recent は直近のアセット履歴を返す。
// GET /asset-history/recent?limit=
func (h *AssetHandler) Recent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	items, err := h.service.Recent(r.Context(), userID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assetItemsResponse{Items: toAssetResponses(items)})
}

// Search はアセット履歴を検索する。
// GET /asset-history/search?q=&type=&limit=
func (h *AssetHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	items, err := h.service.Search(r.Context(), userID, q.Get("q"), q.Get("type"), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assetItemsResponse{Items: toAssetResponses(items)})
}

// Stats はアセット集計値を返す。
// GET /asset-history/stats
func (h *AssetHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	stats, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assetStatsResponse{
		Total:         stats.Total,
		Images:        stats.Images,
		Videos:        stats.Videos,
		LastCreatedAt: stats.LastCreatedAt,
	})
}

// Create はアセット履歴を登録する。
// POST /asset-history
func (h *AssetHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createAssetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.service.Create(r.Context(), userID, asset.CreateInput{
		OriginalContent: req.OriginalContent,
		StorageURL:      req.StorageURL,
		AssetType:       req.AssetType,
		Metadata:        req.Metadata,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssetResponse(a))
}

// Get は1件のアセット履歴を返す。
// GET /asset-history/{id}
func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	a, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetResponse(a))
}

// Update はメタデータを浅くマージする。値がnullのキーは削除される。
// PATCH /asset-history/{id}
func (h *AssetHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateAssetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.service.UpdateMetadata(r.Context(), userID, chi.URLParam(r, "id"), req.Metadata)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssetResponse(a))
}

// Delete はアセット履歴を削除する。
// DELETE /asset-history/{id}
func (h *AssetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryInt は整数のクエリパラメータを読む。未指定の場合は0を返す。
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(name+" must be an integer"))
		return 0, false
	}
	return n, true
}

// queryLimit はlimitを読む。明示的に指定された値は1以上でなければならない。
// 未指定の場合は0を返し、サービス側で既定値に置き換える。
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, ok := queryInt(w, r, "limit")
	if !ok {
		return 0, false
	}
	if r.URL.Query().Get("limit") != "" && n < 1 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("limit must be 1 or greater"))
		return 0, false
	}
	return n, true
}

func toAssetResponse(a *model.AssetHistory) assetResponse {
	metadata := a.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return assetResponse{
		ID:              a.ID,
		UserID:          a.UserID,
		OriginalContent: a.OriginalContent,
		StorageURL:      a.StorageURL,
		AssetType:       string(a.AssetType),
		Metadata:        metadata,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toAssetResponses(items []*model.AssetHistory) []assetResponse {
	out := make([]assetResponse, 0, len(items))
	for _, a := range items {
		out = append(out, toAssetResponse(a))
	}
	return out
}
