// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/shortsmith/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// DeleteByID は指定IDのユーザーを削除する。
	// identities、sessions、asset_historyはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// Extend はセッションの有効期限をexpiresAtに更新する。
	// 対象が存在しない場合はfalseを返す。
	Extend(ctx context.Context, id string, expiresAt time.Time) (bool, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByUserID(ctx context.Context, userID string) error
}

// AssetHistoryRepository はアセット履歴の永続化インターフェース。
// 所有者チェックはサービス層で行い、リポジトリはuser_idによる絞り込みのみを担う。
type AssetHistoryRepository interface {
	// Create はアセット履歴を作成する。
	Create(ctx context.Context, asset *model.AssetHistory) error

	// FindByID は指定IDのアセット履歴を取得する。見つからない場合はnilを返す。
	// 所有者に関わらず取得する。
	FindByID(ctx context.Context, id string) (*model.AssetHistory, error)

	// ListByUserID はユーザーのアセット履歴をcreated_at降順で取得し、絞り込み条件に一致する総件数も返す。
	ListByUserID(ctx context.Context, userID string, filter model.AssetListFilter) ([]*model.AssetHistory, int, error)

	// Search はoriginal_contentとmetadataに対する部分一致検索を行う（大文字小文字を区別しない）。
	Search(ctx context.Context, userID, query string, assetType model.AssetType, limit int) ([]*model.AssetHistory, error)

	// StatsByUserID はユーザーのアセット集計値を返す。
	StatsByUserID(ctx context.Context, userID string) (*model.AssetStats, error)

	// MergeMetadata はsetのキーを上書きし、removeのキーを取り除いてupdated_atを更新する。
	// 読み込みと書き込みは1文で行う。対象が存在しない場合はnilを返す。
	MergeMetadata(ctx context.Context, id, userID string, set map[string]any, remove []string) (*model.AssetHistory, error)

	// Delete は指定IDのアセット履歴を削除する。削除した場合はtrueを返す。
	Delete(ctx context.Context, id, userID string) (bool, error)

	// DeleteByUserID はユーザーの全アセット履歴を削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
