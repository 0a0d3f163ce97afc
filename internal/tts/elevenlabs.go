// Package tts はナレーション音声を生成するElevenLabsのテキスト読み上げクライアントを提供する。
// 生成した音声は保存せず、呼び出し元へストリームとして返す。
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/shortsmith/internal/metrics"
)

const (
	vendorName = "elevenlabs"

	DefaultBaseURL = "https://api.elevenlabs.io"
	DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
	DefaultModelID = "eleven_multilingual_v2"

	// MaxTextLength は1リクエストで読み上げる最大文字数。
	MaxTextLength = 5000
)

// ErrNotConfigured はAPIキーが未設定であることを示す。
var ErrNotConfigured = errors.New("elevenlabs api key is not configured")

// Config はElevenLabsクライアントの設定。
// HeaderTimeoutは応答ヘッダーを受け取るまでの上限で、音声ストリームの読み出し時間は含まない。
type Config struct {
	APIKey        string
	BaseURL       string
	VoiceID       string
	ModelID       string
	HeaderTimeout time.Duration
	HTTPClient    *http.Client
}

// Request は読み上げリクエスト。VoiceIDとModelIDは空の場合に設定値を使う。
type Request struct {
	Text    string
	VoiceID string
	ModelID string
}

// Audio は生成中の音声ストリーム。Bodyは呼び出し元が閉じる。
type Audio struct {
	Body        io.ReadCloser
	ContentType string
}

// Synthesizer はテキストを音声に変換するインターフェース。
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*Audio, error)
}

// ElevenLabsClient はElevenLabsのtext-to-speech APIクライアント。
type ElevenLabsClient struct {
	cfg      Config
	client   *http.Client
	recorder metrics.VendorRecorder
	logger   *slog.Logger
}

// NewElevenLabsClient はElevenLabsClientを生成する。
func NewElevenLabsClient(cfg Config, recorder metrics.VendorRecorder, logger *slog.Logger) *ElevenLabsClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.VoiceID == "" {
		cfg.VoiceID = DefaultVoiceID
	}
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	client := cfg.HTTPClient
	if client == nil {
		client = newStreamingClient(cfg.HeaderTimeout)
	}
	return &ElevenLabsClient{cfg: cfg, client: client, recorder: recorder, logger: logger}
}

// newStreamingClient は全体のタイムアウトを持たないクライアントを返す。
// http.Client.Timeoutはボディの読み出しまで含むため、長い読み上げが途中で切れてしまう。
// 接続と応答ヘッダーだけをheaderTimeoutで制限し、ストリームの打ち切りは呼び出し側のcontextに任せる。
func newStreamingClient(headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: transport}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type synthesizeRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize は音声生成を開始し、レスポンスボディをそのまま返す。
func (c *ElevenLabsClient) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	start := time.Now()
	audio, err := c.synthesize(ctx, req)
	c.recorder.RecordVendorCall(vendorName, "synthesize", time.Since(start), err)
	if err != nil {
		c.logger.Error("tts request failed",
			slog.String("vendor", vendorName),
			slog.String("error", err.Error()),
		)
	}
	return audio, err
}

func (c *ElevenLabsClient) synthesize(ctx context.Context, req Request) (*Audio, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = c.cfg.VoiceID
	}
	modelID := req.ModelID
	if modelID == "" {
		modelID = c.cfg.ModelID
	}

	b, err := json.Marshal(synthesizeRequest{
		Text:          req.Text,
		ModelID:       modelID,
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/stream", c.cfg.BaseURL, url.PathEscape(voiceID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &Audio{Body: resp.Body, ContentType: contentType}, nil
}

// compile-time interface check
var _ Synthesizer = (*ElevenLabsClient)(nil)
