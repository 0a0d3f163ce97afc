package imagegen

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/shortsmith/internal/model"
	"github.com/hitoshi/shortsmith/internal/storage"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockGenerator struct {
	generateFn func(ctx context.Context, prompt, aspectRatio string) (*Image, error)
}

func (m *mockGenerator) Generate(ctx context.Context, prompt, aspectRatio string) (*Image, error) {
	return m.generateFn(ctx, prompt, aspectRatio)
}

// mockStore はアップロード内容をメモリに保持するObjectStore。
type mockStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleted   []string
	uploadErr error
}

func newMockStore() *mockStore {
	return &mockStore{objects: map[string][]byte{}}
}

func (m *mockStore) Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	b, _ := io.ReadAll(r)
	m.mu.Lock()
	m.objects[key] = b
	m.mu.Unlock()
	return m.PublicURL(key), nil
}

func (m *mockStore) Open(ctx context.Context, key string) (*storage.Object, error) {
	return nil, storage.ErrNotFound
}

func (m *mockStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, key)
	delete(m.objects, key)
	return nil
}

func (m *mockStore) DeletePrefix(ctx context.Context, prefix string) (int, error) { return 0, nil }

func (m *mockStore) PublicURL(key string) string { return "https://cdn.test/" + key }

func (m *mockStore) KeyFromURL(rawURL string) (string, bool) { return "", false }

func (m *mockStore) SignedURL(key string, ttl time.Duration) (string, error) {
	return m.PublicURL(key), nil
}

// mockAssetRepo はCreateのみを実装するAssetHistoryRepository。
type mockAssetRepo struct {
	mu        sync.Mutex
	created   []*model.AssetHistory
	createErr error
}

func (m *mockAssetRepo) Create(ctx context.Context, a *model.AssetHistory) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	m.created = append(m.created, a)
	m.mu.Unlock()
	return nil
}

func (m *mockAssetRepo) FindByID(ctx context.Context, id string) (*model.AssetHistory, error) {
	return nil, nil
}

func (m *mockAssetRepo) ListByUserID(ctx context.Context, userID string, f model.AssetListFilter) ([]*model.AssetHistory, int, error) {
	return nil, 0, nil
}

func (m *mockAssetRepo) Search(ctx context.Context, userID, q string, t model.AssetType, limit int) ([]*model.AssetHistory, error) {
	return nil, nil
}

func (m *mockAssetRepo) StatsByUserID(ctx context.Context, userID string) (*model.AssetStats, error) {
	return &model.AssetStats{}, nil
}

func (m *mockAssetRepo) MergeMetadata(ctx context.Context, id, userID string, set map[string]any, remove []string) (*model.AssetHistory, error) {
	return nil, nil
}

func (m *mockAssetRepo) Delete(ctx context.Context, id, userID string) (bool, error) {
	return false, nil
}


func (m *mockAssetRepo) DeleteByUserID(ctx context.Context, userID string) error { return nil }
