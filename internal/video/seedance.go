package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/shortsmith/internal/metrics"
	"github.com/hitoshi/shortsmith/internal/model"
)

const (
	DefaultSeedanceBaseURL = "https://ark.ap-southeast.bytepluses.com"
	DefaultSeedanceModel   = "seedance-1-0-pro-250528"
)

// SeedanceConfig はSeedance（BytePlus ModelArk）クライアントの設定。
type SeedanceConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// SeedanceClient はModelArkのコンテンツ生成タスクAPIクライアント。
type SeedanceClient struct {
	cfg      SeedanceConfig
	client   *http.Client
	recorder metrics.VendorRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewSeedanceClient はSeedanceClientを生成する。
func NewSeedanceClient(cfg SeedanceConfig, recorder metrics.VendorRecorder, logger *slog.Logger) *SeedanceClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSeedanceBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultSeedanceModel
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &SeedanceClient{cfg: cfg, client: client, recorder: recorder, logger: logger, now: time.Now}
}

// Vendor はベンダー識別子を返す。
func (c *SeedanceClient) Vendor() model.VideoVendor {
	return model.VideoVendorSeedance
}

type seedanceContent struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	ImageURL *seedanceImageURL `json:"image_url,omitempty"`
}

type seedanceImageURL struct {
	URL string `json:"url"`
}

type seedanceSubmitRequest struct {
	Model   string            `json:"model"`
	Content []seedanceContent `json:"content"`
}

type seedanceTask struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Content struct {
		VideoURL string `json:"video_url"`
	} `json:"content"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	UpdatedAt int64 `json:"updated_at"` // 秒
}

func (c *SeedanceClient) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.cfg.APIKey)
	return h
}

// seedanceText はプロンプト末尾に生成パラメータを付与する。
// ModelArkは比率と長さをテキスト中の --ratio / --duration で受け取る。
func seedanceText(req model.VideoRequest) string {
	duration := req.DurationSeconds
	if duration == 0 {
		duration = 5
	}
	ratio := req.AspectRatio
	if ratio == "" {
		ratio = "9:16"
	}
	params := fmt.Sprintf("--ratio %s --duration %d", ratio, duration)
	if p := strings.TrimSpace(req.Prompt); p != "" {
		return p + " " + params
	}
	return params
}

// Submit は生成タスクを登録する。
func (c *SeedanceClient) Submit(ctx context.Context, req model.VideoRequest) (*model.VideoTask, error) {
	start := time.Now()
	task, err := c.submit(ctx, req)
	c.observe("submit", start, err)
	return task, err
}

func (c *SeedanceClient) submit(ctx context.Context, req model.VideoRequest) (*model.VideoTask, error) {
	body := seedanceSubmitRequest{
		Model: c.cfg.Model,
		Content: []seedanceContent{
			{Type: "text", Text: seedanceText(req)},
			{Type: "image_url", ImageURL: &seedanceImageURL{URL: req.ImageURL}},
		},
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := doJSON(ctx, c.client, http.MethodPost, c.cfg.BaseURL+"/api/v3/contents/generations/tasks", c.header(), body, &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, fmt.Errorf("seedance returned no task id")
	}
	return &model.VideoTask{
		TaskID:    created.ID,
		Vendor:    model.VideoVendorSeedance,
		Status:    model.VideoTaskPending,
		UpdatedAt: c.now().UTC(),
	}, nil
}

// Status はタスクの状態を取得する。
func (c *SeedanceClient) Status(ctx context.Context, taskID string) (*model.VideoTask, error) {
	start := time.Now()
	task, err := c.status(ctx, taskID)
	c.observe("status", start, err)
	return task, err
}

func (c *SeedanceClient) status(ctx context.Context, taskID string) (*model.VideoTask, error) {
	var t seedanceTask
	err := doJSON(ctx, c.client, http.MethodGet, c.cfg.BaseURL+"/api/v3/contents/generations/tasks/"+url.PathEscape(taskID), c.header(), nil, &t)
	if isNotFound(err) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.ID == "" {
		t.ID = taskID
	}
	return c.normalize(t), nil
}

func (c *SeedanceClient) normalize(t seedanceTask) *model.VideoTask {
	task := &model.VideoTask{
		TaskID:    t.ID,
		Vendor:    model.VideoVendorSeedance,
		Status:    seedanceStatus(t.Status),
		UpdatedAt: c.now().UTC(),
	}
	if t.UpdatedAt > 0 {
		task.UpdatedAt = time.Unix(t.UpdatedAt, 0).UTC()
	}
	switch task.Status {
	case model.VideoTaskSucceeded:
		task.VideoURL = t.Content.VideoURL
		if task.VideoURL == "" {
			task.Status = model.VideoTaskFailed
			task.Error = "vendor reported success without a video"
		}
	case model.VideoTaskFailed:
		task.Error = "generation failed"
		if t.Status == "cancelled" {
			task.Error = "generation cancelled"
		}
		if t.Error != nil && t.Error.Message != "" {
			task.Error = t.Error.Message
		}
	}
	return task
}

func seedanceStatus(s string) model.VideoTaskStatus {
	switch s {
	case "queued":
		return model.VideoTaskPending
	case "running":
		return model.VideoTaskProcessing
	case "succeeded":
		return model.VideoTaskSucceeded
	case "failed", "cancelled":
		return model.VideoTaskFailed
	default:
		return model.VideoTaskProcessing
	}
}

func (c *SeedanceClient) observe(operation string, start time.Time, err error) {
	c.recorder.RecordVendorCall(string(model.VideoVendorSeedance), operation, time.Since(start), err)
	if err != nil && !errors.Is(err, ErrTaskNotFound) {
		c.logger.Error("video vendor request failed",
			slog.String("vendor", string(model.VideoVendorSeedance)),
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
	}
}

// compile-time interface check
var _ Provider = (*SeedanceClient)(nil)
