package model

import "time"

// VideoVendor は動画生成ベンダーの識別子。
type VideoVendor string

const (
	VideoVendorKling    VideoVendor = "kling"
	VideoVendorSeedance VideoVendor = "seedance"
)

// VideoTaskStatus はベンダー間で正規化した動画生成タスクの状態。
type VideoTaskStatus string

const (
	VideoTaskPending    VideoTaskStatus = "pending"
	VideoTaskProcessing VideoTaskStatus = "processing"
	VideoTaskSucceeded  VideoTaskStatus = "succeeded"
	VideoTaskFailed     VideoTaskStatus = "failed"
)

// Terminal はこれ以上状態が変化しないかどうかを返す。
func (s VideoTaskStatus) Terminal() bool {
	return s == VideoTaskSucceeded || s == VideoTaskFailed
}

// VideoTask は動画生成タスクの正規化された状態。
type VideoTask struct {
	TaskID    string          `json:"taskId"`
	Vendor    VideoVendor     `json:"vendor"`
	Status    VideoTaskStatus `json:"status"`
	VideoURL  string          `json:"videoUrl,omitempty"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// VideoRequest は画像から動画クリップを生成するリクエスト。
type VideoRequest struct {
	ImageURL        string
	Prompt          string
	NegativePrompt  string
	DurationSeconds int
	AspectRatio     string
}
