package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/shortsmith/internal/model"
	"github.com/hitoshi/shortsmith/internal/security"
	"github.com/hitoshi/shortsmith/internal/storage"
)

// DefaultStatusTTL は処理中のタスク状態をキャッシュする既定期間。
const DefaultStatusTTL = 5 * time.Second

// signedImageTTL はベンダーへ渡す署名付き画像URLの有効期間。
const signedImageTTL = time.Hour

// Service は動画生成タスクの登録と状態取得を仲介する。
type Service struct {
	providers map[model.VideoVendor]Provider
	cache     StatusCache
	guard     security.SSRFGuardService
	store     storage.ObjectStore
	statusTTL time.Duration
	logger    *slog.Logger
}

// NewService はServiceを生成する。未設定のベンダーはprovidersに含めない。
func NewService(providers []Provider, cache StatusCache, guard security.SSRFGuardService, store storage.ObjectStore, statusTTL time.Duration, logger *slog.Logger) *Service {
	m := make(map[model.VideoVendor]Provider, len(providers))
	for _, p := range providers {
		m[p.Vendor()] = p
	}
	if cache == nil {
		cache = NopStatusCache{}
	}
	if statusTTL <= 0 {
		statusTTL = DefaultStatusTTL
	}
	return &Service{
		providers: m,
		cache:     cache,
		guard:     guard,
		store:     store,
		statusTTL: statusTTL,
		logger:    logger,
	}
}

func (s *Service) provider(vendor model.VideoVendor) (Provider, error) {
	p, ok := s.providers[vendor]
	if !ok {
		return nil, model.NewVendorError(string(vendor), errors.New("vendor is not configured"))
	}
	return p, nil
}

// Submit は画像URLを検証して生成タスクを登録する。
// 自バケットの画像はユーザー領域内のものに限り、署名付きURLに変換してベンダーへ渡す。
func (s *Service) Submit(ctx context.Context, vendor model.VideoVendor, userID string, req model.VideoRequest) (*model.VideoTask, error) {
	p, err := s.provider(vendor)
	if err != nil {
		return nil, err
	}
	if rc, ok := p.(aspectRatioChecker); ok && !rc.SupportsAspectRatio(req.AspectRatio) {
		return nil, model.NewValidationError(fmt.Sprintf(
			"aspectRatio %s is not supported by %s; the clip follows the source image", req.AspectRatio, vendor))
	}

	imageURL, err := s.resolveImageURL(userID, req.ImageURL)
	if err != nil {
		return nil, err
	}
	req.ImageURL = imageURL

	task, err := p.Submit(ctx, req)
	if err != nil {
		return nil, model.NewVendorError(string(vendor), err)
	}

	if err := s.cache.SetOwner(ctx, vendor, task.TaskID, userID); err != nil {
		s.logger.Warn("failed to record video task owner", slog.String("vendor", string(vendor)), slog.String("error", err.Error()))
	}
	s.cacheTask(ctx, task)

	s.logger.Info("video task submitted",
		slog.String("vendor", string(vendor)),
		slog.String("task_id", task.TaskID),
		slog.String("user_id", userID),
	)
	return task, nil
}

// Status はタスクの状態を返す。キャッシュにあればベンダーへ問い合わせない。
// 他ユーザーが登録したタスクはFORBIDDENになる。
func (s *Service) Status(ctx context.Context, vendor model.VideoVendor, userID, taskID string) (*model.VideoTask, error) {
	p, err := s.provider(vendor)
	if err != nil {
		return nil, err
	}

	owner, err := s.cache.Owner(ctx, vendor, taskID)
	if err != nil {
		s.logger.Warn("failed to read video task owner", slog.String("vendor", string(vendor)), slog.String("error", err.Error()))
	}
	if owner != "" && owner != userID {
		return nil, model.NewForbiddenError(fmt.Sprintf("%s/%s", vendor, taskID))
	}

	cached, err := s.cache.Get(ctx, vendor, taskID)
	if err != nil {
		s.logger.Warn("failed to read cached video status", slog.String("vendor", string(vendor)), slog.String("error", err.Error()))
	}
	if cached != nil {
		return cached, nil
	}

	task, err := p.Status(ctx, taskID)
	if errors.Is(err, ErrTaskNotFound) {
		return nil, model.NewTaskNotFoundError(string(vendor), taskID)
	}
	if err != nil {
		return nil, model.NewVendorError(string(vendor), err)
	}

	s.cacheTask(ctx, task)
	return task, nil
}

func (s *Service) cacheTask(ctx context.Context, task *model.VideoTask) {
	ttl := s.statusTTL
	if task.Status.Terminal() {
		ttl = TerminalStatusTTL
	}
	if err := s.cache.Set(ctx, task, ttl); err != nil {
		s.logger.Warn("failed to cache video status",
			slog.String("vendor", string(task.Vendor)),
			slog.String("task_id", task.TaskID),
			slog.String("error", err.Error()),
		)
	}
}

// resolveImageURL はベンダーへ渡す画像URLを決める。
func (s *Service) resolveImageURL(userID, raw string) (string, error) {
	if key, ok := s.store.KeyFromURL(raw); ok {
		if !storage.OwnedBy(key, userID) {
			return "", model.NewForbiddenError("image is not owned by the current user")
		}
		signed, err := s.store.SignedURL(key, signedImageTTL)
		if err != nil {
			return "", fmt.Errorf("failed to sign image url: %w", err)
		}
		return signed, nil
	}

	if err := s.guard.ValidateURL(raw); err != nil {
		if errors.Is(err, security.ErrBlockedTarget) {
			return "", model.NewSSRFBlockedError(err.Error())
		}
		return "", model.NewInvalidURLError(err.Error())
	}
	return raw, nil
}
