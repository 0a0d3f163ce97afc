// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/shortsmith/internal/model"
	"github.com/hitoshi/shortsmith/internal/repository"
	"github.com/hitoshi/shortsmith/internal/storage"
)

// AssetDeleter はアセット履歴の一括削除インターフェース。
type AssetDeleter interface {
	DeleteByUserID(ctx context.Context, userID string) error
}

// ObjectDeleter はユーザー配下のオブジェクトを一括削除するインターフェース。
type ObjectDeleter interface {
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Service はユーザー管理のサービス層。
// 退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo     repository.UserRepository
	sessionRepo  repository.SessionRepository
	assetDeleter AssetDeleter
	objects      ObjectDeleter
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	assetDeleter AssetDeleter,
	objects ObjectDeleter,
) *Service {
	return &Service{
		userRepo:     userRepo,
		sessionRepo:  sessionRepo,
		assetDeleter: assetDeleter,
		objects:      objects,
	}
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: asset_history → ストレージ上のファイル → sessions → user（+ CASCADE: identities）
// ファイルの削除失敗は退会を止めず、ログに残す。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. アセット履歴を削除
	if s.assetDeleter != nil {
		if err := s.assetDeleter.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("アセット履歴の削除に失敗しました: %w", err)
		}
	}

	// 2. 生成ファイルとアップロードファイルを削除
	if s.objects != nil {
		n, err := s.objects.DeletePrefix(ctx, storage.UserPrefix(userID))
		if err != nil {
			slog.Warn("ファイルの削除に失敗しました",
				slog.String("user_id", userID),
				slog.Int("deleted", n),
				slog.String("error", err.Error()),
			)
		}
	}

	// 3. セッションを削除
	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	// 4. ユーザーを削除（identitiesはCASCADE削除）
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
