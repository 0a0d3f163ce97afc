package llm

import (
	"context"

	"github.com/hitoshi/shortsmith/internal/model"
)

// Generator はテキスト生成のインターフェース。ハンドラーはこのインターフェースに依存する。
type Generator interface {
	GenerateScenes(ctx context.Context, req SceneRequest) ([]model.Scene, error)
	GenerateCaption(ctx context.Context, req CaptionRequest) (*model.Caption, error)
	GenerateReply(ctx context.Context, req ReplyRequest) (string, error)
}

// compile-time interface check
var _ Generator = (*OpenAIClient)(nil)
