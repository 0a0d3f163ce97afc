// Package llm はOpenAIのChat Completions APIを使ったテキスト生成を提供する。
// シーン分割、キャプション生成、コメント返信の3種類を扱い、
// いずれもJSON Schemaによる構造化出力で応答を受け取る。
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/hitoshi/shortsmith/internal/metrics"
	"github.com/hitoshi/shortsmith/internal/security"
)

const vendorName = "openai"

// DefaultModel はOPENAI_MODEL未設定時に使用するモデル。
const DefaultModel = openai.ChatModelGPT4oMini

// Config はOpenAIクライアントの設定。
type Config struct {
	APIKey  string
	BaseURL string // 空の場合はSDKのデフォルト
	Model   string
	Timeout time.Duration
}

// OpenAIClient はGeneratorのOpenAI実装。
type OpenAIClient struct {
	client    openai.Client
	model     string
	sanitizer security.TextSanitizer
	recorder  metrics.VendorRecorder
	logger    *slog.Logger
}

// NewOpenAIClient はOpenAIClientを生成する。
// リトライは行わず、失敗は呼び出し元へそのまま返す。
func NewOpenAIClient(cfg Config, sanitizer security.TextSanitizer, recorder metrics.VendorRecorder, logger *slog.Logger) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &OpenAIClient{
		client:    openai.NewClient(opts...),
		model:     model,
		sanitizer: sanitizer,
		recorder:  recorder,
		logger:    logger,
	}
}

// GenerateSchema は構造化出力用のJSON Schemaを生成する。
// strictモードの要件に合わせ、追加プロパティを禁止し$refを使わずに展開する。
func GenerateSchema[T any]() any {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// completeStructured はsystem/userメッセージを送り、応答をTにデコードする。
func completeStructured[T any](ctx context.Context, c *OpenAIClient, operation, name, system, user string, schema any, temperature float64) (*T, error) {
	start := time.Now()
	out, err := doCompleteStructured[T](ctx, c, name, system, user, schema, temperature)
	c.recorder.RecordVendorCall(vendorName, operation, time.Since(start), err)
	if err != nil {
		c.logger.Error("llm request failed",
			slog.String("vendor", vendorName),
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
	}
	return out, err
}

func doCompleteStructured[T any](ctx context.Context, c *OpenAIClient, name, system, user string, schema any, temperature float64) (*T, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        name,
		Description: openai.String("Structured data response"),
		Schema:      schema,
		Strict:      openai.Bool(true),
	}

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:       c.model,
		Temperature: openai.Float(temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai api error: status %d: %w", apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return nil, errors.New("no choices in openai response")
	}

	choice := completion.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, fmt.Errorf("model refused: %s", choice.Message.Refusal)
	}

	var out T
	if err := json.Unmarshal([]byte(choice.Message.Content), &out); err != nil {
		return nil, fmt.Errorf("failed to parse structured response: %w", err)
	}
	return &out, nil
}
