package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/shortsmith/internal/model"
)

const assetHistoryColumns = `id, user_id, original_content, storage_url, asset_type, metadata, created_at, updated_at`

// PostgresAssetHistoryRepo はPostgreSQLを使用したアセット履歴リポジトリ。
type PostgresAssetHistoryRepo struct {
	db *sql.DB
}

// NewPostgresAssetHistoryRepo はPostgresAssetHistoryRepoを生成する。
func NewPostgresAssetHistoryRepo(db *sql.DB) *PostgresAssetHistoryRepo {
	return &PostgresAssetHistoryRepo{db: db}
}

// Create はアセット履歴を作成する。
// CreatedAt/UpdatedAtが未設定の場合はDB側のnow()を使用し、確定値をassetに書き戻す。
func (r *PostgresAssetHistoryRepo) Create(ctx context.Context, asset *model.AssetHistory) error {
	metadata, err := marshalMetadata(asset.Metadata)
	if err != nil {
		return err
	}

	err = r.db.QueryRowContext(ctx,
		`INSERT INTO asset_history (id, user_id, original_content, storage_url, asset_type, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		asset.ID, asset.UserID, asset.OriginalContent, asset.StorageURL, string(asset.AssetType), metadata,
	).Scan(&asset.CreatedAt, &asset.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create asset history: %w", err)
	}
	return nil
}

// FindByID は指定IDのアセット履歴を取得する。見つからない場合はnilを返す。
func (r *PostgresAssetHistoryRepo) FindByID(ctx context.Context, id string) (*model.AssetHistory, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+assetHistoryColumns+` FROM asset_history WHERE id = $1`,
		id,
	)
	asset, err := scanAssetHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find asset history: %w", err)
	}
	return asset, nil
}

// ListByUserID はユーザーのアセット履歴をcreated_at降順で取得する。
// 2つ目の戻り値はLimit/Offsetを適用する前の総件数。
func (r *PostgresAssetHistoryRepo) ListByUserID(ctx context.Context, userID string, filter model.AssetListFilter) ([]*model.AssetHistory, int, error) {
	where, args := assetWhereClause(userID, filter.AssetType)

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM asset_history WHERE `+where,
		args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count asset history: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM asset_history WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		assetHistoryColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, filter.Limit, filter.Offset)

	assets, err := r.queryAssets(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list asset history: %w", err)
	}
	return assets, total, nil
}

// Search はoriginal_contentとmetadataのテキスト表現に対して部分一致検索を行う。
// queryに含まれるLIKEのワイルドカードはリテラルとして扱う。
func (r *PostgresAssetHistoryRepo) Search(ctx context.Context, userID, query string, assetType model.AssetType, limit int) ([]*model.AssetHistory, error) {
	where, args := assetWhereClause(userID, assetType)
	pattern := "%" + escapeLike(query) + "%"
	args = append(args, pattern)
	n := len(args)

	sqlQuery := fmt.Sprintf(
		`SELECT %s FROM asset_history
		 WHERE %s AND (original_content ILIKE $%d OR metadata::text ILIKE $%d)
		 ORDER BY created_at DESC, id DESC LIMIT $%d`,
		assetHistoryColumns, where, n, n, n+1,
	)
	args = append(args, limit)

	assets, err := r.queryAssets(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search asset history: %w", err)
	}
	return assets, nil
}

// StatsByUserID はユーザーのアセット集計値を返す。
func (r *PostgresAssetHistoryRepo) StatsByUserID(ctx context.Context, userID string) (*model.AssetStats, error) {
	stats := &model.AssetStats{}
	var last sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE asset_type = 'image'),
		        count(*) FILTER (WHERE asset_type = 'video'),
		        max(created_at)
		 FROM asset_history
		 WHERE user_id = $1`,
		userID,
	).Scan(&stats.Total, &stats.Images, &stats.Videos, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate asset history: %w", err)
	}
	if last.Valid {
		t := last.Time
		stats.LastCreatedAt = &t
	}
	return stats, nil
}

// MergeMetadata はjsonbの || と - で既存メタデータにパッチを当てる。
// 読み込みと書き込みは同じUPDATE文の中で行う。
// 対象が存在しない場合はnilを返す。
func (r *PostgresAssetHistoryRepo) MergeMetadata(ctx context.Context, id, userID string, set map[string]any, remove []string) (*model.AssetHistory, error) {
	raw, err := marshalMetadata(set)
	if err != nil {
		return nil, err
	}
	if remove == nil {
		remove = []string{}
	}

	row := r.db.QueryRowContext(ctx,
		`UPDATE asset_history
		 SET metadata = (metadata || $3::jsonb) - $4::text[], updated_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+assetHistoryColumns,
		id, userID, string(raw), pq.Array(remove),
	)
	asset, err := scanAssetHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update asset metadata: %w", err)
	}
	return asset, nil
}

// Delete は指定IDのアセット履歴を削除する。
func (r *PostgresAssetHistoryRepo) Delete(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM asset_history WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete asset history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteByUserID はユーザーの全アセット履歴を削除する。
func (r *PostgresAssetHistoryRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM asset_history WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete user asset history: %w", err)
	}
	return nil
}

// DeleteCreatedBefore はcutoffより前に作成された全ユーザーのアセット履歴を削除し、削除した行を返す。
func (r *PostgresAssetHistoryRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) ([]*model.AssetHistory, error) {
	assets, err := r.queryAssets(ctx,
		`DELETE FROM asset_history WHERE created_at < $1 RETURNING `+assetHistoryColumns,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired asset history: %w", err)
	}
	return assets, nil
}

func (r *PostgresAssetHistoryRepo) queryAssets(ctx context.Context, query string, args ...any) ([]*model.AssetHistory, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assets := make([]*model.AssetHistory, 0)
	for rows.Next() {
		a, err := scanAssetHistory(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssetHistory(s rowScanner) (*model.AssetHistory, error) {
	a := &model.AssetHistory{}
	var assetType string
	var metadata []byte
	if err := s.Scan(&a.ID, &a.UserID, &a.OriginalContent, &a.StorageURL, &assetType, &metadata, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.AssetType = model.AssetType(assetType)

	m, err := unmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	a.Metadata = m
	return a, nil
}

// assetWhereClause はuser_idと任意のasset_typeによる絞り込み条件を組み立てる。
func assetWhereClause(userID string, assetType model.AssetType) (string, []any) {
	where := "user_id = $1"
	args := []any{userID}
	if assetType != "" {
		args = append(args, string(assetType))
		where += fmt.Sprintf(" AND asset_type = $%d", len(args))
	}
	return where, args
}

// marshalMetadata はmetadataをjsonbカラム用のJSONに変換する。nilは空オブジェクトとして保存する。
func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return b, nil
}

func unmarshalMetadata(b []byte) (map[string]any, error) {
	m := map[string]any{}
	if len(b) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return m, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike はLIKEパターンの特殊文字をエスケープする。
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// compile-time interface check
var _ AssetHistoryRepository = (*PostgresAssetHistoryRepo)(nil)
