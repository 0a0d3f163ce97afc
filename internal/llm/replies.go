package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/hitoshi/shortsmith/internal/model"
)

// ReplyRequest はコメント返信生成の入力。
type ReplyRequest struct {
	Comment string
	Context string
}

type replyResponse struct {
	Reply string `json:"reply" jsonschema_description:"A short, friendly reply to the viewer comment"`
}

var replySchema = GenerateSchema[replyResponse]()

const replySystemPrompt = `You are the creator of a short-form video replying to a viewer comment.
Reply in the same language as the comment, in one or two sentences. Be warm and specific. Never be rude.`

// GenerateReply は視聴者コメントへの返信文を生成する。
func (c *OpenAIClient) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	user := "Comment:\n" + req.Comment
	if ctxText := strings.TrimSpace(req.Context); ctxText != "" {
		user = "About the video:\n" + ctxText + "\n\n" + user
	}

	out, err := completeStructured[replyResponse](ctx, c, "replies", "reply", replySystemPrompt, user, replySchema, 0.8)
	if err != nil {
		return "", model.NewVendorError(vendorName, err)
	}

	reply := c.sanitizer.Sanitize(out.Reply)
	if reply == "" {
		return "", model.NewVendorError(vendorName, errors.New("model returned an empty reply"))
	}
	return reply, nil
}
