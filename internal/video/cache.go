package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hitoshi/shortsmith/internal/model"
)

// TerminalStatusTTL は完了・失敗したタスク状態のキャッシュ期間。
const TerminalStatusTTL = 24 * time.Hour

// ownerTTL はタスク所有者の記録期間。
const ownerTTL = 48 * time.Hour

// StatusCache はタスク状態と所有者の短期キャッシュ。
// 失敗は呼び出し側で記録し、ベンダー呼び出しにフォールバックする。
type StatusCache interface {
	Get(ctx context.Context, vendor model.VideoVendor, taskID string) (*model.VideoTask, error)
	Set(ctx context.Context, task *model.VideoTask, ttl time.Duration) error
	SetOwner(ctx context.Context, vendor model.VideoVendor, taskID, userID string) error
	// Owner はタスクを登録したユーザーIDを返す。記録がない場合は空文字列を返す。
	Owner(ctx context.Context, vendor model.VideoVendor, taskID string) (string, error)
}

// RedisStatusCache はRedisを使用したStatusCache。
type RedisStatusCache struct {
	client *redis.Client
	prefix string
}

// NewRedisStatusCache はRedisStatusCacheを生成する。
func NewRedisStatusCache(client *redis.Client) *RedisStatusCache {
	return &RedisStatusCache{client: client, prefix: "shortsmith:video"}
}

// NewRedisClient はREDIS_URL形式の接続文字列からクライアントを生成する。
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (c *RedisStatusCache) statusKey(vendor model.VideoVendor, taskID string) string {
	return fmt.Sprintf("%s:status:%s:%s", c.prefix, vendor, taskID)
}

func (c *RedisStatusCache) ownerKey(vendor model.VideoVendor, taskID string) string {
	return fmt.Sprintf("%s:owner:%s:%s", c.prefix, vendor, taskID)
}

// Get はキャッシュ済みのタスク状態を返す。ない場合はnilを返す。
func (c *RedisStatusCache) Get(ctx context.Context, vendor model.VideoVendor, taskID string) (*model.VideoTask, error) {
	b, err := c.client.Get(ctx, c.statusKey(vendor, taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task status: %w", err)
	}

	var task model.VideoTask
	if err := json.Unmarshal(b, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task status: %w", err)
	}
	return &task, nil
}

// Set はタスク状態をttlの間キャッシュする。
func (c *RedisStatusCache) Set(ctx context.Context, task *model.VideoTask, ttl time.Duration) error {
	b, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task status: %w", err)
	}
	if err := c.client.Set(ctx, c.statusKey(task.Vendor, task.TaskID), b, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write task status: %w", err)
	}
	return nil
}

// SetOwner はタスクを登録したユーザーを記録する。
func (c *RedisStatusCache) SetOwner(ctx context.Context, vendor model.VideoVendor, taskID, userID string) error {
	if err := c.client.Set(ctx, c.ownerKey(vendor, taskID), userID, ownerTTL).Err(); err != nil {
		return fmt.Errorf("failed to write task owner: %w", err)
	}
	return nil
}

// Owner はタスクを登録したユーザーIDを返す。
func (c *RedisStatusCache) Owner(ctx context.Context, vendor model.VideoVendor, taskID string) (string, error) {
	owner, err := c.client.Get(ctx, c.ownerKey(vendor, taskID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read task owner: %w", err)
	}
	return owner, nil
}

// NopStatusCache はキャッシュを行わないStatusCache。REDIS_URL未設定時に使用する。
type NopStatusCache struct{}

func (NopStatusCache) Get(context.Context, model.VideoVendor, string) (*model.VideoTask, error) {
	return nil, nil
}
func (NopStatusCache) Set(context.Context, *model.VideoTask, time.Duration) error { return nil }
func (NopStatusCache) SetOwner(context.Context, model.VideoVendor, string, string) error {
	return nil
}
func (NopStatusCache) Owner(context.Context, model.VideoVendor, string) (string, error) {
	return "", nil
}

var (
	_ StatusCache = (*RedisStatusCache)(nil)
	_ StatusCache = NopStatusCache{}
)
