// Package imagegen はテキストプロンプトから画像を生成し、ストレージ保存とアセット履歴登録までを行う。
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/hitoshi/shortsmith/internal/metrics"
)

const vendorName = "gemini"

// DefaultModel はIMAGE_MODEL未設定時に使用する画像生成モデル。
const DefaultModel = "imagen-3.0-generate-002"

// Image は生成された画像データ。
type Image struct {
	Bytes    []byte
	MIMEType string
}

// Generator は画像生成のインターフェース。
type Generator interface {
	Generate(ctx context.Context, prompt, aspectRatio string) (*Image, error)
}

// GeminiConfig はGemini API (Imagen) クライアントの設定。
type GeminiConfig struct {
	APIKey  string
	BaseURL string // 空の場合はSDKのデフォルト
	Model   string
	Timeout time.Duration
}

// GeminiGenerator はgenai SDKのGenerateImagesを使うGenerator実装。
type GeminiGenerator struct {
	client   *genai.Client
	model    string
	timeout  time.Duration
	recorder metrics.VendorRecorder
	logger   *slog.Logger
}

// NewGeminiGenerator はGeminiGeneratorを生成する。
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig, recorder metrics.VendorRecorder, logger *slog.Logger) (*GeminiGenerator, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &GeminiGenerator{
		client:   client,
		model:    model,
		timeout:  cfg.Timeout,
		recorder: recorder,
		logger:   logger,
	}, nil
}

// Generate は1枚の画像を生成する。
// 安全フィルターで除外された場合もベンダーエラーとして扱う。
func (g *GeminiGenerator) Generate(ctx context.Context, prompt, aspectRatio string) (*Image, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	img, err := g.generate(ctx, prompt, aspectRatio)
	g.recorder.RecordVendorCall(vendorName, "generate_image", time.Since(start), err)
	if err != nil {
		g.logger.Error("image generation failed",
			slog.String("vendor", vendorName),
			slog.String("model", g.model),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return img, nil
}

func (g *GeminiGenerator) generate(ctx context.Context, prompt, aspectRatio string) (*Image, error) {
	resp, err := g.client.Models.GenerateImages(ctx, g.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages:   1,
		AspectRatio:      aspectRatio,
		OutputMIMEType:   "image/png",
		PersonGeneration: genai.PersonGenerationAllowAdult,
		IncludeRAIReason: true,
	})
	if err != nil {
		return nil, fmt.Errorf("generate images: %w", err)
	}
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return nil, errors.New("no images returned")
	}

	first := resp.GeneratedImages[0]
	if first.Image == nil || len(first.Image.ImageBytes) == 0 {
		if first.RAIFilteredReason != "" {
			return nil, fmt.Errorf("image filtered: %s", first.RAIFilteredReason)
		}
		return nil, errors.New("empty image returned")
	}

	mimeType := first.Image.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}
	return &Image{Bytes: first.Image.ImageBytes, MIMEType: mimeType}, nil
}

// ModelName は生成に使用しているモデル名を返す。
func (g *GeminiGenerator) ModelName() string {
	return g.model
}

// compile-time interface check
var _ Generator = (*GeminiGenerator)(nil)
