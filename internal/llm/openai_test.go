package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/shortsmith/internal/metrics"
	"github.com/hitoshi/shortsmith/internal/model"
	"github.com/hitoshi/shortsmith/internal/security"
)

// recordedRequest はテストサーバーが受け取ったChat Completionsリクエストの一部。
type recordedRequest struct {
	Model          string `json:"model"`
	Messages       []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	ResponseFormat struct {
		Type       string `json:"type"`
		JSONSchema struct {
			Name   string         `json:"name"`
			Strict bool           `json:"strict"`
			Schema map[string]any `json:"schema"`
		} `json:"json_schema"`
	} `json:"response_format"`
}

// newTestServer はcontentを応答として返すChat Completions互換サーバーを起動する。
func newTestServer(t *testing.T, content any, got *recordedRequest) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s, want /v1/chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if got != nil {
			if err := json.Unmarshal(body, got); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
		}

		raw, _ := json.Marshal(content)
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": string(raw), "refusal": ""},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestClient(baseURL string) *OpenAIClient {
	return NewOpenAIClient(
		Config{APIKey: "test-key", BaseURL: baseURL + "/v1/", Timeout: 5 * time.Second},
		security.NewTextSanitizer(),
		metrics.Nop{},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestGenerateScenes_BuildsPromptTextAndSanitizes(t *testing.T) {
	var req recordedRequest
	ts := newTestServer(t, map[string]any{
		"scenes": []map[string]any{
			{
				"text":            "A fox wakes up.",
				"narration":       "<b>Every</b> morning begins quietly.",
				"durationSeconds": 4.5,
				"imagePrompt": map[string]any{
					"subject": "a red fox", "action": "stretching", "setting": "a snowy den",
					"style": "", "lighting": "dawn light", "mood": "", "cameraAngle": "",
					"colorPalette": "", "details": []string{"frost"}, "negative": "text",
				},
				"clipPrompt": map[string]any{
					"motion": "", "cameraMovement": "slow push in", "subjectAction": "the fox yawns",
					"pacing": "", "transition": "", "style": "", "durationSeconds": 7,
				},
			},
			{"text": "extra", "narration": "", "durationSeconds": 1, "imagePrompt": map[string]any{}, "clipPrompt": map[string]any{}},
		},
	}, &req)

	c := newTestClient(ts.URL)
	scenes, err := c.GenerateScenes(context.Background(), SceneRequest{Script: "fox story", SceneCount: 1, Style: "watercolor"})
	if err != nil {
		t.Fatalf("GenerateScenes() error = %v", err)
	}

	if len(scenes) != 1 {
		t.Fatalf("len(scenes) = %d, want 1 (truncated to SceneCount)", len(scenes))
	}
	s := scenes[0]
	if s.Index != 1 {
		t.Errorf("Index = %d, want 1", s.Index)
	}
	if s.Narration != "Every morning begins quietly." {
		t.Errorf("Narration = %q, HTML should be stripped", s.Narration)
	}
	wantImage := "a red fox, stretching, in a snowy den. Lighting: dawn light. Details: frost. Avoid: text. Vertical 9:16 composition."
	if s.ImagePromptText != wantImage {
		t.Errorf("ImagePromptText =\n%q\nwant\n%q", s.ImagePromptText, wantImage)
	}
	if s.ClipPrompt.DurationSeconds != 10 {
		t.Errorf("ClipPrompt.DurationSeconds = %d, want 10", s.ClipPrompt.DurationSeconds)
	}
	if s.ClipPromptText != "slow push in. the fox yawns. Duration: 10s." {
		t.Errorf("ClipPromptText = %q", s.ClipPromptText)
	}

	if req.Model != string(DefaultModel) {
		t.Errorf("model = %q, want %q", req.Model, DefaultModel)
	}
	if req.ResponseFormat.Type != "json_schema" || !req.ResponseFormat.JSONSchema.Strict {
		t.Errorf("response_format = %+v, want strict json_schema", req.ResponseFormat)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v, want system + user", req.Messages)
	}
	if !strings.Contains(req.Messages[1].Content, "exactly 1 scenes") || !strings.Contains(req.Messages[1].Content, "watercolor") {
		t.Errorf("user message = %q", req.Messages[1].Content)
	}
}

func TestGenerateScenes_EmptyResult_IsVendorError(t *testing.T) {
	ts := newTestServer(t, map[string]any{"scenes": []any{}}, nil)

	_, err := newTestClient(ts.URL).GenerateScenes(context.Background(), SceneRequest{Script: "x"})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeVendor {
		t.Fatalf("error = %v, want VENDOR_ERROR", err)
	}
}

func TestGenerateScenes_UpstreamError_IsVendorError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).GenerateScenes(context.Background(), SceneRequest{Script: "x"})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeVendor {
		t.Fatalf("error = %v, want VENDOR_ERROR", err)
	}
	if !strings.HasPrefix(apiErr.Details, "openai") {
		t.Errorf("details = %q, want vendor name prefix", apiErr.Details)
	}
}

func TestGenerateCaption_NormalizesHashtags(t *testing.T) {
	var req recordedRequest
	ts := newTestServer(t, map[string]any{
		"caption":  "Morning fox vibes",
		"hashtags": []string{"fox", "#Fox", "#wild life", ""},
	}, &req)

	got, err := newTestClient(ts.URL).GenerateCaption(context.Background(), CaptionRequest{Script: "fox", Platform: PlatformInstagram})
	if err != nil {
		t.Fatalf("GenerateCaption() error = %v", err)
	}
	want := &model.Caption{Caption: "Morning fox vibes", Hashtags: []string{"#fox", "#wildlife"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GenerateCaption() mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(req.Messages[1].Content, "Instagram") {
		t.Errorf("user message should carry the platform guide: %q", req.Messages[1].Content)
	}
}

func TestGenerateReply(t *testing.T) {
	ts := newTestServer(t, map[string]any{"reply": "Thanks so much!"}, nil)

	got, err := newTestClient(ts.URL).GenerateReply(context.Background(), ReplyRequest{Comment: "love it", Context: "fox video"})
	if err != nil {
		t.Fatalf("GenerateReply() error = %v", err)
	}
	if got != "Thanks so much!" {
		t.Errorf("GenerateReply() = %q", got)
	}
}

func TestGenerateReply_EmptyIsVendorError(t *testing.T) {
	ts := newTestServer(t, map[string]any{"reply": "<p></p>"}, nil)

	_, err := newTestClient(ts.URL).GenerateReply(context.Background(), ReplyRequest{Comment: "hi"})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeVendor {
		t.Fatalf("error = %v, want VENDOR_ERROR", err)
	}
}

func TestNormalizeClipDuration(t *testing.T) {
	tests := map[int]int{0: 5, 3: 5, 5: 5, 6: 10, 10: 10, 30: 10}
	for in, want := range tests {
		if got := NormalizeClipDuration(in); got != want {
			t.Errorf("NormalizeClipDuration(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestGenerateSchema_DisallowsAdditionalProperties(t *testing.T) {
	raw, err := json.Marshal(GenerateSchema[replyResponse]())
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}
	if schema["additionalProperties"] != false {
		t.Errorf("additionalProperties = %v, want false", schema["additionalProperties"])
	}
	required, _ := schema["required"].([]any)
	if len(required) != 1 || required[0] != "reply" {
		t.Errorf("required = %v, want [reply]", required)
	}
}
