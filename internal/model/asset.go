package model

import "time"

// AssetType は生成アセットの種別を表す。
type AssetType string

const (
	AssetTypeImage AssetType = "image"
	AssetTypeVideo AssetType = "video"
)

// Valid はAssetTypeが定義済みの値かどうかを返す。
func (t AssetType) Valid() bool {
	return t == AssetTypeImage || t == AssetTypeVideo
}

// ParseAssetType は文字列をAssetTypeに変換する。
// 空文字列は種別指定なしとして ("", true) を返す。
func ParseAssetType(s string) (AssetType, bool) {
	if s == "" {
		return "", true
	}
	t := AssetType(s)
	return t, t.Valid()
}

// AssetHistory は生成プロンプトと保存済みファイルを紐付けるアセット履歴を表す。
type AssetHistory struct {
	ID              string
	UserID          string
	OriginalContent string
	StorageURL      string
	AssetType       AssetType
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AssetListFilter はアセット履歴一覧の絞り込み条件。
type AssetListFilter struct {
	AssetType AssetType // 空の場合は全種別
	Limit     int
	Offset    int
}

// AssetStats はユーザーごとのアセット集計値。
type AssetStats struct {
	Total         int
	Images        int
	Videos        int
	LastCreatedAt *time.Time
}
