package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/shortsmith/internal/metrics"
	"github.com/hitoshi/shortsmith/internal/model"
)

const (
	DefaultKlingBaseURL = "https://api-singapore.klingai.com"
	DefaultKlingModel   = "kling-v1-6"

	// klingTokenTTL はAPIトークンの有効期間。
	klingTokenTTL = 30 * time.Minute
)

// KlingConfig はKling APIクライアントの設定。
type KlingConfig struct {
	AccessKey  string
	SecretKey  string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// KlingClient はKlingのimage2video APIクライアント。
type KlingClient struct {
	cfg      KlingConfig
	client   *http.Client
	recorder metrics.VendorRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewKlingClient はKlingClientを生成する。
func NewKlingClient(cfg KlingConfig, recorder metrics.VendorRecorder, logger *slog.Logger) *KlingClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultKlingBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultKlingModel
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &KlingClient{cfg: cfg, client: client, recorder: recorder, logger: logger, now: time.Now}
}

// Vendor はベンダー識別子を返す。
func (c *KlingClient) Vendor() model.VideoVendor {
	return model.VideoVendorKling
}

// klingAspectRatio はKlingに指定できる唯一の比率。
// image2videoには比率のパラメーターがなく、出力は元画像の構図に従う。
const klingAspectRatio = "9:16"

// SupportsAspectRatio は未指定か既定の縦長比率の場合にtrueを返す。
func (c *KlingClient) SupportsAspectRatio(ratio string) bool {
	return ratio == "" || ratio == klingAspectRatio
}

// token はアクセスキーを発行者とするHS256のAPIトークンを生成する。
func (c *KlingClient) token() (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		Issuer:    c.cfg.AccessKey,
		ExpiresAt: jwt.NewNumericDate(now.Add(klingTokenTTL)),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(c.cfg.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign kling token: %w", err)
	}
	return signed, nil
}

func (c *KlingClient) header() (http.Header, error) {
	tok, err := c.token()
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+tok)
	return h, nil
}

type klingSubmitRequest struct {
	ModelName      string `json:"model_name"`
	Image          string `json:"image"`
	Prompt         string `json:"prompt,omitempty"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Mode           string `json:"mode"`
	Duration       string `json:"duration"`
}

type klingEnvelope struct {
	Code      int       `json:"code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Data      klingTask `json:"data"`
}

type klingTask struct {
	TaskID        string `json:"task_id"`
	TaskStatus    string `json:"task_status"`
	TaskStatusMsg string `json:"task_status_msg"`
	UpdatedAt     int64  `json:"updated_at"` // ミリ秒
	TaskResult    struct {
		Videos []struct {
			ID       string `json:"id"`
			URL      string `json:"url"`
			Duration string `json:"duration"`
		} `json:"videos"`
	} `json:"task_result"`
}

// Submit はimage2videoタスクを登録する。
func (c *KlingClient) Submit(ctx context.Context, req model.VideoRequest) (*model.VideoTask, error) {
	start := time.Now()
	task, err := c.submit(ctx, req)
	c.observe("submit", start, err)
	return task, err
}

func (c *KlingClient) submit(ctx context.Context, req model.VideoRequest) (*model.VideoTask, error) {
	h, err := c.header()
	if err != nil {
		return nil, err
	}

	duration := req.DurationSeconds
	if duration == 0 {
		duration = 5
	}
	body := klingSubmitRequest{
		ModelName:      c.cfg.Model,
		Image:          req.ImageURL,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Mode:           "std",
		Duration:       strconv.Itoa(duration),
	}

	var env klingEnvelope
	if err := doJSON(ctx, c.client, http.MethodPost, c.cfg.BaseURL+"/v1/videos/image2video", h, body, &env); err != nil {
		return nil, err
	}
	if env.Code != 0 {
		return nil, fmt.Errorf("kling error %d: %s", env.Code, env.Message)
	}
	if env.Data.TaskID == "" {
		return nil, fmt.Errorf("kling returned no task id")
	}
	return c.normalize(env.Data), nil
}

// Status はタスクの状態を取得する。
func (c *KlingClient) Status(ctx context.Context, taskID string) (*model.VideoTask, error) {
	start := time.Now()
	task, err := c.status(ctx, taskID)
	c.observe("status", start, err)
	return task, err
}

func (c *KlingClient) status(ctx context.Context, taskID string) (*model.VideoTask, error) {
	h, err := c.header()
	if err != nil {
		return nil, err
	}

	var env klingEnvelope
	err = doJSON(ctx, c.client, http.MethodGet, c.cfg.BaseURL+"/v1/videos/image2video/"+url.PathEscape(taskID), h, nil, &env)
	if isNotFound(err) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	if env.Code != 0 {
		return nil, fmt.Errorf("kling error %d: %s", env.Code, env.Message)
	}
	if env.Data.TaskID == "" {
		env.Data.TaskID = taskID
	}
	return c.normalize(env.Data), nil
}

// normalize はKlingのタスク状態を共通のVideoTaskに変換する。
func (c *KlingClient) normalize(t klingTask) *model.VideoTask {
	task := &model.VideoTask{
		TaskID:    t.TaskID,
		Vendor:    model.VideoVendorKling,
		Status:    klingStatus(t.TaskStatus),
		UpdatedAt: c.now().UTC(),
	}
	if t.UpdatedAt > 0 {
		task.UpdatedAt = time.UnixMilli(t.UpdatedAt).UTC()
	}
	switch task.Status {
	case model.VideoTaskSucceeded:
		if len(t.TaskResult.Videos) > 0 {
			task.VideoURL = t.TaskResult.Videos[0].URL
		}
		if task.VideoURL == "" {
			task.Status = model.VideoTaskFailed
			task.Error = "vendor reported success without a video"
		}
	case model.VideoTaskFailed:
		task.Error = t.TaskStatusMsg
		if task.Error == "" {
			task.Error = "generation failed"
		}
	}
	return task
}

func klingStatus(s string) model.VideoTaskStatus {
	switch s {
	case "submitted":
		return model.VideoTaskPending
	case "processing":
		return model.VideoTaskProcessing
	case "succeed":
		return model.VideoTaskSucceeded
	case "failed":
		return model.VideoTaskFailed
	default:
		return model.VideoTaskProcessing
	}
}

func (c *KlingClient) observe(operation string, start time.Time, err error) {
	c.recorder.RecordVendorCall(string(model.VideoVendorKling), operation, time.Since(start), err)
	if err != nil && !errors.Is(err, ErrTaskNotFound) {
		c.logger.Error("video vendor request failed",
			slog.String("vendor", string(model.VideoVendorKling)),
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
	}
}

// compile-time interface check
var _ Provider = (*KlingClient)(nil)
