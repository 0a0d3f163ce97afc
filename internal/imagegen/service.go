package imagegen

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/shortsmith/internal/metrics"
	"github.com/hitoshi/shortsmith/internal/model"
	"github.com/hitoshi/shortsmith/internal/repository"
	"github.com/hitoshi/shortsmith/internal/storage"
)

// DefaultAspectRatio は縦長ショート動画向けのデフォルト比率。
const DefaultAspectRatio = "9:16"

// MaxBatchSize はバッチ生成で受け付ける最大シーン数。
const MaxBatchSize = 12

var aspectRatios = map[string]bool{
	"9:16": true,
	"1:1":  true,
	"16:9": true,
	"3:4":  true,
	"4:3":  true,
}

// ValidAspectRatio は画像生成で受け付けるアスペクト比かどうかを返す。
func ValidAspectRatio(r string) bool {
	return aspectRatios[r]
}

// Request は1枚の画像生成要求。
type Request struct {
	Prompt      string
	AspectRatio string
	SceneIndex  *int
}

// Result は生成結果。AssetIDは登録されたアセット履歴のID。
type Result struct {
	AssetID    string `json:"assetId"`
	ImageURL   string `json:"imageUrl"`
	Prompt     string `json:"prompt"`
	SceneIndex *int   `json:"sceneIndex,omitempty"`
}

// Service は画像生成からストレージ保存、アセット履歴登録までを行う。
type Service struct {
	generator   Generator
	store       storage.ObjectStore
	assets      repository.AssetHistoryRepository
	metrics     metrics.MetricsCollector
	modelName   string
	concurrency int
	logger      *slog.Logger
}

// NewService はServiceを生成する。concurrencyはバッチ生成の同時実行数。
func NewService(generator Generator, store storage.ObjectStore, assets repository.AssetHistoryRepository, m metrics.MetricsCollector, modelName string, concurrency int, logger *slog.Logger) *Service {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Service{
		generator:   generator,
		store:       store,
		assets:      assets,
		metrics:     m,
		modelName:   modelName,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Generate は1枚の画像を生成し、保存と履歴登録を行う。
func (s *Service) Generate(ctx context.Context, userID string, req Request) (*Result, error) {
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = DefaultAspectRatio
	}

	img, err := s.generator.Generate(ctx, req.Prompt, aspect)
	if err != nil {
		return nil, model.NewVendorError(vendorName, err)
	}

	key := storage.GeneratedImageKey(userID, storage.ExtensionForContentType(img.MIMEType))
	url, err := s.store.Upload(ctx, key, img.MIMEType, bytes.NewReader(img.Bytes))
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{
		"source":      "image-gen",
		"model":       s.modelName,
		"aspectRatio": aspect,
		"storageKey":  key,
		"mimeType":    img.MIMEType,
	}
	if req.SceneIndex != nil {
		metadata["sceneIndex"] = *req.SceneIndex
	}

	asset := &model.AssetHistory{
		ID:              uuid.NewString(),
		UserID:          userID,
		OriginalContent: req.Prompt,
		StorageURL:      url,
		AssetType:       model.AssetTypeImage,
		Metadata:        metadata,
	}
	if err := s.assets.Create(ctx, asset); err != nil {
		// 履歴に残らないオブジェクトは削除しておく
		if delErr := s.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.logger.Warn("failed to remove orphaned image",
				slog.String("key", key),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, err
	}
	s.metrics.RecordAssetCreated(string(model.AssetTypeImage))

	s.logger.Info("image generated",
		slog.String("user_id", userID),
		slog.String("asset_id", asset.ID),
		slog.String("aspect_ratio", aspect),
	)

	return &Result{AssetID: asset.ID, ImageURL: url, Prompt: req.Prompt, SceneIndex: req.SceneIndex}, nil
}

// GenerateBatch は複数シーンの画像を並行に生成する。
// 同時実行数はconcurrencyで制限し、最初の失敗で残りをキャンセルしてエラーを返す。
// 結果は入力と同じ順序で返す。
func (s *Service) GenerateBatch(ctx context.Context, userID string, reqs []Request) ([]Result, error) {
	results := make([]Result, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			res, err := s.Generate(gctx, userID, req)
			if err != nil {
				return err
			}
			results[i] = *res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
