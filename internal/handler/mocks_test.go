package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/shortsmith/internal/asset"
	"github.com/hitoshi/shortsmith/internal/imagegen"
	"github.com/hitoshi/shortsmith/internal/llm"
	"github.com/hitoshi/shortsmith/internal/model"
	"github.com/hitoshi/shortsmith/internal/security"
	"github.com/hitoshi/shortsmith/internal/storage"
	"github.com/hitoshi/shortsmith/internal/tts"
)

// --- アセット履歴 ---

type mockAssetService struct {
	listFn           func(ctx context.Context, userID, assetType string, limit, offset int) (*asset.ListResult, error)
	recentFn         func(ctx context.Context, userID string, limit int) ([]*model.AssetHistory, error)
	searchFn         func(ctx context.Context, userID, query, assetType string, limit int) ([]*model.AssetHistory, error)
	statsFn          func(ctx context.Context, userID string) (*model.AssetStats, error)
	createFn         func(ctx context.Context, userID string, in asset.CreateInput) (*model.AssetHistory, error)
	getFn            func(ctx context.Context, userID, id string) (*model.AssetHistory, error)
	updateMetadataFn func(ctx context.Context, userID, id string, patch map[string]any) (*model.AssetHistory, error)
	deleteFn         func(ctx context.Context, userID, id string) error
}

func (m *mockAssetService) List(ctx context.Context, userID, assetType string, limit, offset int) (*asset.ListResult, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, assetType, limit, offset)
	}
	return &asset.ListResult{Limit: limit, Offset: offset}, nil
}

func (m *mockAssetService) Recent(ctx context.Context, userID string, limit int) ([]*model.AssetHistory, error) {
	if m.recentFn != nil {
		return m.recentFn(ctx, userID, limit)
	}
	return nil, nil
}

func (m *mockAssetService) Search(ctx context.Context, userID, query, assetType string, limit int) ([]*model.AssetHistory, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, userID, query, assetType, limit)
	}
	return nil, nil
}

func (m *mockAssetService) Stats(ctx context.Context, userID string) (*model.AssetStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, userID)
	}
	return &model.AssetStats{}, nil
}

func (m *mockAssetService) Create(ctx context.Context, userID string, in asset.CreateInput) (*model.AssetHistory, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, in)
	}
	return &model.AssetHistory{ID: "asset-1", UserID: userID}, nil
}

func (m *mockAssetService) Get(ctx context.Context, userID, id string) (*model.AssetHistory, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, id)
	}
	return &model.AssetHistory{ID: id, UserID: userID}, nil
}

func (m *mockAssetService) UpdateMetadata(ctx context.Context, userID, id string, patch map[string]any) (*model.AssetHistory, error) {
	if m.updateMetadataFn != nil {
		return m.updateMetadataFn(ctx, userID, id, patch)
	}
	return &model.AssetHistory{ID: id, UserID: userID, Metadata: patch}, nil
}

func (m *mockAssetService) Delete(ctx context.Context, userID, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, id)
	}
	return nil
}

// --- テキスト生成 ---

type mockGenerator struct {
	scenesFn  func(ctx context.Context, req llm.SceneRequest) ([]model.Scene, error)
	captionFn func(ctx context.Context, req llm.CaptionRequest) (*model.Caption, error)
	replyFn   func(ctx context.Context, req llm.ReplyRequest) (string, error)
}

func (m *mockGenerator) GenerateScenes(ctx context.Context, req llm.SceneRequest) ([]model.Scene, error) {
	if m.scenesFn != nil {
		return m.scenesFn(ctx, req)
	}
	return []model.Scene{{Index: 1}}, nil
}

func (m *mockGenerator) GenerateCaption(ctx context.Context, req llm.CaptionRequest) (*model.Caption, error) {
	if m.captionFn != nil {
		return m.captionFn(ctx, req)
	}
	return &model.Caption{Caption: "caption", Hashtags: []string{"#shorts"}}, nil
}

func (m *mockGenerator) GenerateReply(ctx context.Context, req llm.ReplyRequest) (string, error) {
	if m.replyFn != nil {
		return m.replyFn(ctx, req)
	}
	return "thanks!", nil
}

// --- 画像生成 ---

type mockImageService struct {
	generateFn      func(ctx context.Context, userID string, req imagegen.Request) (*imagegen.Result, error)
	generateBatchFn func(ctx context.Context, userID string, reqs []imagegen.Request) ([]imagegen.Result, error)
}

func (m *mockImageService) Generate(ctx context.Context, userID string, req imagegen.Request) (*imagegen.Result, error) {
	if m.generateFn != nil {
		return m.generateFn(ctx, userID, req)
	}
	return &imagegen.Result{AssetID: "asset-1", ImageURL: "https://cdn.test/a.png", Prompt: req.Prompt}, nil
}

func (m *mockImageService) GenerateBatch(ctx context.Context, userID string, reqs []imagegen.Request) ([]imagegen.Result, error) {
	if m.generateBatchFn != nil {
		return m.generateBatchFn(ctx, userID, reqs)
	}
	out := make([]imagegen.Result, len(reqs))
	for i, r := range reqs {
		out[i] = imagegen.Result{Prompt: r.Prompt, SceneIndex: r.SceneIndex}
	}
	return out, nil
}

// --- 読み上げ ---

type mockSynthesizer struct {
	synthesizeFn func(ctx context.Context, req tts.Request) (*tts.Audio, error)
}

func (m *mockSynthesizer) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	if m.synthesizeFn != nil {
		return m.synthesizeFn(ctx, req)
	}
	return &tts.Audio{Body: io.NopCloser(bytes.NewReader([]byte("ID3"))), ContentType: "audio/mpeg"}, nil
}

// --- 動画生成 ---

type mockVideoService struct {
	submitFn func(ctx context.Context, vendor model.VideoVendor, userID string, req model.VideoRequest) (*model.VideoTask, error)
	statusFn func(ctx context.Context, vendor model.VideoVendor, userID, taskID string) (*model.VideoTask, error)
}

func (m *mockVideoService) Submit(ctx context.Context, vendor model.VideoVendor, userID string, req model.VideoRequest) (*model.VideoTask, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, vendor, userID, req)
	}
	return &model.VideoTask{TaskID: "task-1", Vendor: vendor, Status: model.VideoTaskPending, UpdatedAt: time.Now()}, nil
}

func (m *mockVideoService) Status(ctx context.Context, vendor model.VideoVendor, userID, taskID string) (*model.VideoTask, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, vendor, userID, taskID)
	}
	return &model.VideoTask{TaskID: taskID, Vendor: vendor, Status: model.VideoTaskProcessing}, nil
}

// --- ファイル ---

type mockFileStore struct {
	uploadFn func(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	openFn   func(ctx context.Context, key string) (*storage.Object, error)
}

func (m *mockFileStore) Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, key, contentType, r)
	}
	return "https://cdn.test/" + key, nil
}

func (m *mockFileStore) Open(ctx context.Context, key string) (*storage.Object, error) {
	if m.openFn != nil {
		return m.openFn(ctx, key)
	}
	return nil, storage.ErrNotFound
}

// --- SSRFガード ---

// mockGuard は検証結果を差し替えられるSSRFガード。
// クライアントは通常のhttp.Clientを返すため、httptestサーバーに接続できる。
// safeClientがtrueならsafeurlのクライアントを返し、ダイヤル時の検査だけを有効にする。
type mockGuard struct {
	validateFn func(rawURL string) error
	safeClient bool
}

func (m *mockGuard) NewSafeClient(timeout time.Duration) *http.Client {
	if m.safeClient {
		return security.NewSSRFGuard().NewSafeClient(timeout)
	}
	return &http.Client{Timeout: timeout}
}

func (m *mockGuard) ValidateURL(rawURL string) error {
	if m.validateFn != nil {
		return m.validateFn(rawURL)
	}
	return nil
}
