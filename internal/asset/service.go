// Package asset はアセット履歴のドメインロジックを提供する。
// すべての操作は認証済みユーザーの所有レコードに限定される。
package asset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/shortsmith/internal/metrics"
	"github.com/hitoshi/shortsmith/internal/model"
	"github.com/hitoshi/shortsmith/internal/repository"
	"github.com/hitoshi/shortsmith/internal/storage"
)

// 一覧系の件数上限と既定値
const (
	DefaultListLimit   = 20
	MaxListLimit       = 100
	DefaultRecentLimit = 10
	MaxRecentLimit     = 50
)

// CreateInput はアセット履歴の作成内容。
type CreateInput struct {
	OriginalContent string
	StorageURL      string
	AssetType       string
	Metadata        map[string]any
}

// ListResult はページング付きの一覧結果。
type ListResult struct {
	Items  []*model.AssetHistory
	Total  int
	Limit  int
	Offset int
}

// Service はアセット履歴のサービス層。
type Service struct {
	repo    repository.AssetHistoryRepository
	store   storage.ObjectStore
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.AssetHistoryRepository, store storage.ObjectStore, m metrics.MetricsCollector, logger *slog.Logger) *Service {
	return &Service{repo: repo, store: store, metrics: m, logger: logger}
}

// List はユーザーのアセット履歴を新しい順に返す。Limitが0の場合は既定値を使う。
func (s *Service) List(ctx context.Context, userID, assetType string, limit, offset int) (*ListResult, error) {
	t, err := parseType(assetType)
	if err != nil {
		return nil, err
	}
	limit, err = normalizeLimit(limit, DefaultListLimit, MaxListLimit)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, model.NewValidationError("offset must be 0 or greater")
	}

	items, total, err := s.repo.ListByUserID(ctx, userID, model.AssetListFilter{AssetType: t, Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("アセット履歴一覧の取得に失敗しました: %w", err)
	}
	return &ListResult{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// Recent は直近のアセット履歴を返す。
func (s *Service) Recent(ctx context.Context, userID string, limit int) ([]*model.AssetHistory, error) {
	limit, err := normalizeLimit(limit, DefaultRecentLimit, MaxRecentLimit)
	if err != nil {
		return nil, err
	}
	items, _, err := s.repo.ListByUserID(ctx, userID, model.AssetListFilter{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("直近のアセット履歴の取得に失敗しました: %w", err)
	}
	return items, nil
}

// Search はoriginal_contentとmetadataを大文字小文字を区別せず部分一致検索する。
func (s *Service) Search(ctx context.Context, userID, query, assetType string, limit int) ([]*model.AssetHistory, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, model.NewValidationError("q is required")
	}
	t, err := parseType(assetType)
	if err != nil {
		return nil, err
	}
	limit, err = normalizeLimit(limit, DefaultListLimit, MaxListLimit)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.Search(ctx, userID, query, t, limit)
	if err != nil {
		return nil, fmt.Errorf("アセット履歴の検索に失敗しました: %w", err)
	}
	return items, nil
}

// Stats はユーザーのアセット集計値を返す。
func (s *Service) Stats(ctx context.Context, userID string) (*model.AssetStats, error) {
	stats, err := s.repo.StatsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("アセット集計の取得に失敗しました: %w", err)
	}
	return stats, nil
}

// Create はアセット履歴を作成する。
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.AssetHistory, error) {
	content := strings.TrimSpace(in.OriginalContent)
	if content == "" {
		return nil, model.NewValidationError("originalContent is required")
	}
	storageURL := strings.TrimSpace(in.StorageURL)
	if storageURL == "" {
		return nil, model.NewValidationError("storageUrl is required")
	}
	t := model.AssetType(in.AssetType)
	if !t.Valid() {
		return nil, model.NewValidationError("assetType must be one of image, video")
	}

	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	a := &model.AssetHistory{
		ID:              uuid.New().String(),
		UserID:          userID,
		OriginalContent: content,
		StorageURL:      storageURL,
		AssetType:       t,
		Metadata:        metadata,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("アセット履歴の作成に失敗しました: %w", err)
	}
	s.metrics.RecordAssetCreated(string(t))
	return a, nil
}

// Get は所有するアセット履歴を1件返す。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.AssetHistory, error) {
	return s.findOwned(ctx, userID, id)
}

// UpdateMetadata はメタデータをシャローマージで更新する。値がnullのキーは削除する。
func (s *Service) UpdateMetadata(ctx context.Context, userID, id string, patch map[string]any) (*model.AssetHistory, error) {
	if patch == nil {
		return nil, model.NewValidationError("metadata is required")
	}

	current, err := s.findOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	set, remove := SplitMetadataPatch(patch)
	updated, err := s.repo.MergeMetadata(ctx, current.ID, userID, set, remove)
	if err != nil {
		return nil, fmt.Errorf("メタデータの更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewAssetNotFoundError(id)
	}
	return updated, nil
}

// Delete はアセット履歴を削除する。
// storage_urlが自バケット内のユーザー領域を指す場合はオブジェクトも削除する。失敗は記録のみ行う。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	a, err := s.findOwned(ctx, userID, id)
	if err != nil {
		return err
	}

	deleted, err := s.repo.Delete(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("アセット履歴の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewAssetNotFoundError(id)
	}

	s.deleteObject(ctx, userID, a.StorageURL)
	return nil
}

func (s *Service) deleteObject(ctx context.Context, userID, storageURL string) {
	key, ok := s.store.KeyFromURL(storageURL)
	if !ok || !storage.OwnedBy(key, userID) {
		return
	}
	err := s.store.Delete(context.WithoutCancel(ctx), key)
	if err == nil || errors.Is(err, storage.ErrNotFound) {
		return
	}
	s.logger.Warn("failed to delete stored object",
		slog.String("key", key),
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
}

// findOwned はIDのアセット履歴を取得し所有者を確認する。
// 不正なIDと存在しないIDはASSET_NOT_FOUND、他ユーザーのレコードはFORBIDDENになる。
func (s *Service) findOwned(ctx context.Context, userID, id string) (*model.AssetHistory, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewAssetNotFoundError(id)
	}

	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("アセット履歴の取得に失敗しました: %w", err)
	}
	if a == nil {
		return nil, model.NewAssetNotFoundError(id)
	}
	if a.UserID != userID {
		return nil, model.NewForbiddenError(id)
	}
	return a, nil
}

// SplitMetadataPatch はパッチを上書きするキーと削除するキーに分ける。
// 値がnilのキーが削除対象になる。removeはソート済み。
func SplitMetadataPatch(patch map[string]any) (set map[string]any, remove []string) {
	set = make(map[string]any, len(patch))
	for k, v := range patch {
		if v == nil {
			remove = append(remove, k)
			continue
		}
		set[k] = v
	}
	slices.Sort(remove)
	return set, remove
}

func parseType(s string) (model.AssetType, error) {
	t, ok := model.ParseAssetType(s)
	if !ok {
		return "", model.NewValidationError("type must be one of image, video")
	}
	return t, nil
}

// normalizeLimit は0を既定値に置き換え、1からmaxの範囲外をエラーにする。
func normalizeLimit(limit, def, max int) (int, error) {
	if limit == 0 {
		return def, nil
	}
	if limit < 1 || limit > max {
		return 0, model.NewValidationError(fmt.Sprintf("limit must be between 1 and %d", max))
	}
	return limit, nil
}
