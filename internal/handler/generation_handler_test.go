package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/shortsmith/internal/imagegen"
	"github.com/hitoshi/shortsmith/internal/llm"
	"github.com/hitoshi/shortsmith/internal/model"
	"github.com/hitoshi/shortsmith/internal/prompt"
)

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// --- POST /api/scenes テスト ---

func TestGenerationHandler_Scenes_Success(t *testing.T) {
	var got llm.SceneRequest
	gen := &mockGenerator{
		scenesFn: func(ctx context.Context, req llm.SceneRequest) ([]model.Scene, error) {
			got = req
			return []model.Scene{{Index: 1}, {Index: 2}}, nil
		},
	}
	h := NewGenerationHandler(gen, &mockImageService{})

	w := httptest.NewRecorder()
	h.Scenes(w, postJSON("/api/scenes", `{"script": "  a day at the beach  ", "sceneCount": 2, "style": "cinematic"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got.Script != "a day at the beach" || got.SceneCount != 2 || got.Style != "cinematic" {
		t.Errorf("SceneRequest = %+v", got)
	}
	var body scenesResponse
	decodeBody(t, w, &body)
	if len(body.Scenes) != 2 {
		t.Errorf("scenes = %d, want 2", len(body.Scenes))
	}
}

func TestGenerationHandler_Scenes_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"空の台本", `{"script": "   "}`, model.ErrCodeValidation},
		{"シーン数が負", `{"script": "x", "sceneCount": -1}`, model.ErrCodeValidation},
		{"シーン数が上限超過", fmt.Sprintf(`{"script": "x", "sceneCount": %d}`, llm.MaxSceneCount+1), model.ErrCodeValidation},
		{"不正なJSON", `{"script":`, model.ErrCodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			gen := &mockGenerator{
				scenesFn: func(ctx context.Context, req llm.SceneRequest) ([]model.Scene, error) {
					called = true
					return nil, nil
				},
			}
			h := NewGenerationHandler(gen, &mockImageService{})

			w := httptest.NewRecorder()
			h.Scenes(w, postJSON("/api/scenes", tt.body))

			assertErrorCode(t, w, http.StatusBadRequest, tt.code)
			if called {
				t.Error("generator should not be called")
			}
		})
	}
}

func TestGenerationHandler_Scenes_VendorError(t *testing.T) {
	gen := &mockGenerator{
		scenesFn: func(ctx context.Context, req llm.SceneRequest) ([]model.Scene, error) {
			return nil, model.NewVendorError("openai", errors.New("timeout"))
		},
	}
	h := NewGenerationHandler(gen, &mockImageService{})

	w := httptest.NewRecorder()
	h.Scenes(w, postJSON("/api/scenes", `{"script": "x"}`))

	assertErrorCode(t, w, http.StatusBadGateway, model.ErrCodeVendor)
}

// --- POST /api/captions テスト ---

func TestGenerationHandler_Captions_PlatformDefaultsToTikTok(t *testing.T) {
	var got llm.CaptionRequest
	gen := &mockGenerator{
		captionFn: func(ctx context.Context, req llm.CaptionRequest) (*model.Caption, error) {
			got = req
			return &model.Caption{Caption: "Sunny vibes", Hashtags: []string{"#beach"}}, nil
		},
	}
	h := NewGenerationHandler(gen, &mockImageService{})

	w := httptest.NewRecorder()
	h.Captions(w, postJSON("/api/captions", `{"script": "beach day"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got.Platform != llm.PlatformTikTok {
		t.Errorf("platform = %q, want %q", got.Platform, llm.PlatformTikTok)
	}
}

func TestGenerationHandler_Captions_InvalidPlatform(t *testing.T) {
	h := NewGenerationHandler(&mockGenerator{}, &mockImageService{})

	w := httptest.NewRecorder()
	h.Captions(w, postJSON("/api/captions", `{"script": "beach day", "platform": "myspace"}`))

	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeValidation)
}

// --- POST /api/replies テスト ---

func TestGenerationHandler_Replies(t *testing.T) {
	gen := &mockGenerator{
		replyFn: func(ctx context.Context, req llm.ReplyRequest) (string, error) {
			if req.Comment != "love this" || req.Context != "cooking video" {
				t.Errorf("ReplyRequest = %+v", req)
			}
			return "Thank you so much!", nil
		},
	}
	h := NewGenerationHandler(gen, &mockImageService{})

	w := httptest.NewRecorder()
	h.Replies(w, postJSON("/api/replies", `{"comment": "love this", "context": "cooking video"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body replyResponse
	decodeBody(t, w, &body)
	if body.Reply != "Thank you so much!" {
		t.Errorf("reply = %q", body.Reply)
	}

	w = httptest.NewRecorder()
	h.Replies(w, postJSON("/api/replies", `{"comment": ""}`))
	assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeValidation)
}

// --- POST /api/image-gen/prompt テスト ---

func TestGenerationHandler_ImagePrompt(t *testing.T) {
	h := NewGenerationHandler(&mockGenerator{}, &mockImageService{})

	w := httptest.NewRecorder()
	h.ImagePrompt(w, postJSON("/api/image-gen/prompt", `{"imagePrompt": {"subject": "a red fox"}, "vertical": true}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body promptResponse
	decodeBody(t, w, &body)
	if !strings.Contains(body.Prompt, "a red fox") {
		t.Errorf("prompt = %q, should contain subject", body.Prompt)
	}
	if !strings.HasSuffix(body.Prompt, prompt.VerticalFraming) {
		t.Errorf("prompt = %q, should end with vertical framing", body.Prompt)
	}
}

func TestGenerationHandler_ImagePrompt_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"imagePromptなし", `{}`},
		{"subjectなし", `{"imagePrompt": {"style": "watercolor"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewGenerationHandler(&mockGenerator{}, &mockImageService{})

			w := httptest.NewRecorder()
			h.ImagePrompt(w, postJSON("/api/image-gen/prompt", tt.body))

			assertErrorCode(t, w, http.StatusBadRequest, model.ErrCodeValidation)
		})
	}
}

// --- POST /api/image-gen/generate テスト ---

func TestGenerationHandler_GenerateImage_StructuredPromptGetsVerticalFraming(t *testing.T) {
	var got imagegen.Request
	images := &mockImageService{
		generateFn: func(ctx context.Context, userID string, req imagegen.Request) (*imagegen.Result, error) {
			if userID != "user-1" {
				t.Errorf("userID = %q, want %q", userID, "user-1")
			}
			got = req
			return &imagegen.Result{AssetID: "asset-1", ImageURL: "https://cdn.test/a.png", Prompt: req.Prompt}, nil
		},
	}
	h := NewGenerationHandler(&mockGenerator{}, images)

	req := withUserID(postJSON("/api/image-gen/generate", `{"imagePrompt": {"subject": "a lighthouse"}, "sceneIndex": 3}`), "user-1")
	w := httptest.NewRecorder()
	h.GenerateImage(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusCreated, w.Body.String())
	}
	if got.AspectRatio != imagegen.DefaultAspectRatio {
		t.Errorf("aspect = %q, want %q", got.AspectRatio, imagegen.DefaultAspectRatio)
	}
	if !strings.HasSuffix(got.Prompt, prompt.VerticalFraming) {
		t.Errorf("prompt = %q, should end with vertical framing", got.Prompt)
	}
	if got.SceneIndex == nil || *got.SceneIndex != 3 {
		t.Errorf("sceneIndex = %v, want 3", got.SceneIndex)
	}
}

func TestGenerationHandler_GenerateImage_RawPromptWins(t *testing.T) {
	var got imagegen.Request
	images := &mockImageService{
		generateFn: func(ctx context.Context, userID string, req imagegen.Request) (*imagegen.Result, error) {
			got = req
			return &imagegen.Result{AssetID: "asset-1"}, nil
		},
	}
	h := NewGenerationHandler(&mockGenerator{}, images)

	body := `{"prompt": "a wide desert", "imagePrompt": {"subject": "ignored"}, "aspectRatio": "16:9"}`
	w := httptest.NewRecorder()
	h.GenerateImage(w, withUserID(postJSON("/api/image-gen/generate", body), "user-1"))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got.Prompt != "a wide desert" || got.AspectRatio != "16:9" {
		t.Errorf("request = %+v", got)
	}
}

func TestGenerationHandler_GenerateImage_Errors(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		body       string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{"未認証", "", `{"prompt": "x"}`, nil, http.StatusUnauthorized, model.ErrCodeUnauthorized},
		{"プロンプトなし", "user-1", `{}`, nil, http.StatusBadRequest, model.ErrCodeValidation},
		{"不正なアスペクト比", "user-1", `{"prompt": "x", "aspectRatio": "2:1"}`, nil, http.StatusBadRequest, model.ErrCodeValidation},
		{"ベンダーエラー", "user-1", `{"prompt": "x"}`, model.NewVendorError("gemini", errors.New("quota")), http.StatusBadGateway, model.ErrCodeVendor},
		{"内部エラー", "user-1", `{"prompt": "x"}`, errors.New("db down"), http.StatusInternalServerError, model.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			images := &mockImageService{
				generateFn: func(ctx context.Context, userID string, req imagegen.Request) (*imagegen.Result, error) {
					if tt.serviceErr != nil {
						return nil, tt.serviceErr
					}
					return &imagegen.Result{}, nil
				},
			}
			h := NewGenerationHandler(&mockGenerator{}, images)

			req := postJSON("/api/image-gen/generate", tt.body)
			if tt.userID != "" {
				req = withUserID(req, tt.userID)
			}
			w := httptest.NewRecorder()
			h.GenerateImage(w, req)

			assertErrorCode(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

// --- POST /api/image-gen/batch テスト ---

func TestGenerationHandler_GenerateImageBatch(t *testing.T) {
	var got []imagegen.Request
	images := &mockImageService{
		generateBatchFn: func(ctx context.Context, userID string, reqs []imagegen.Request) ([]imagegen.Result, error) {
			got = reqs
			out := make([]imagegen.Result, len(reqs))
			for i, r := range reqs {
				out[i] = imagegen.Result{AssetID: fmt.Sprintf("asset-%d", i), Prompt: r.Prompt, SceneIndex: r.SceneIndex}
			}
			return out, nil
		},
	}
	h := NewGenerationHandler(&mockGenerator{}, images)

	body := `{"aspectRatio": "1:1", "scenes": [
		{"sceneIndex": 1, "prompt": "sunrise"},
		{"sceneIndex": 2, "imagePrompt": {"subject": "sunset"}}
	]}`
	w := httptest.NewRecorder()
	h.GenerateImageBatch(w, withUserID(postJSON("/api/image-gen/batch", body), "user-1"))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusCreated, w.Body.String())
	}
	if len(got) != 2 {
		t.Fatalf("requests = %d, want 2", len(got))
	}
	for _, r := range got {
		if r.AspectRatio != "1:1" {
			t.Errorf("aspect = %q, want 1:1", r.AspectRatio)
		}
		// 正方形では縦長の構図指定を付けない
		if strings.Contains(r.Prompt, prompt.VerticalFraming) {
			t.Errorf("prompt = %q, should not contain vertical framing", r.Prompt)
		}
	}

	var resp batchImageResponse
	decodeBody(t, w, &resp)
	if len(resp.Images) != 2 || resp.Images[0].Prompt != "sunrise" {
		t.Errorf("images = %+v", resp.Images)
	}
}

func TestGenerationHandler_GenerateImageBatch_Validation(t *testing.T) {
	tooMany := make([]string, imagegen.MaxBatchSize+1)
	for i := range tooMany {
		tooMany[i] = `{"prompt": "x"}`
	}

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"シーンなし", `{"scenes": []}`, "scenes must contain"},
		{"シーン数超過", `{"scenes": [` + strings.Join(tooMany, ",") + `]}`, "scenes must contain"},
		{"プロンプトのないシーン", `{"scenes": [{"prompt": "a"}, {"sceneIndex": 2}]}`, "scenes[1]: prompt is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewGenerationHandler(&mockGenerator{}, &mockImageService{
				generateBatchFn: func(ctx context.Context, userID string, reqs []imagegen.Request) ([]imagegen.Result, error) {
					t.Error("service should not be called")
					return nil, nil
				},
			})

			w := httptest.NewRecorder()
			h.GenerateImageBatch(w, withUserID(postJSON("/api/image-gen/batch", tt.body), "user-1"))

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if !strings.Contains(w.Body.String(), tt.message) {
				t.Errorf("body = %s, should contain %q", w.Body.String(), tt.message)
			}
		})
	}
}
