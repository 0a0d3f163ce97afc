package video

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/shortsmith/internal/metrics"
	"github.com/hitoshi/shortsmith/internal/model"
)

func newTestSeedance(t *testing.T, h http.HandlerFunc) *SeedanceClient {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return NewSeedanceClient(SeedanceConfig{
		APIKey:  "ark-key",
		BaseURL: ts.URL,
		Model:   "seedance-test",
	}, metrics.Nop{}, newTestLogger())
}

func TestSeedanceText(t *testing.T) {
	tests := []struct {
		name string
		req  model.VideoRequest
		want string
	}{
		{"既定値", model.VideoRequest{}, "--ratio 9:16 --duration 5"},
		{"プロンプトあり", model.VideoRequest{Prompt: " pan left ", AspectRatio: "1:1", DurationSeconds: 10}, "pan left --ratio 1:1 --duration 10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := seedanceText(tt.req); got != tt.want {
				t.Errorf("seedanceText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSeedanceClient_Submit(t *testing.T) {
	var got seedanceSubmitRequest
	c := newTestSeedance(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v3/contents/generations/tasks" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer ark-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{"id": "cgt-1"})
	})

	task, err := c.Submit(context.Background(), model.VideoRequest{ImageURL: "https://img.example.com/a.png", Prompt: "zoom"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if task.TaskID != "cgt-1" || task.Status != model.VideoTaskPending {
		t.Errorf("task = %+v", task)
	}
	if got.Model != "seedance-test" || len(got.Content) != 2 {
		t.Fatalf("request body = %+v", got)
	}
	if got.Content[1].ImageURL == nil || got.Content[1].ImageURL.URL != "https://img.example.com/a.png" {
		t.Errorf("image content = %+v", got.Content[1])
	}
}

func TestSeedanceClient_Submit_HTTPError(t *testing.T) {
	c := newTestSeedance(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	})

	_, err := c.Submit(context.Background(), model.VideoRequest{ImageURL: "https://img.example.com/a.png"})
	var se *statusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Errorf("err = %v, want statusError 401", err)
	}
}

func TestSeedanceClient_Status(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]any
		wantStatus model.VideoTaskStatus
		wantURL    string
		wantErr    string
	}{
		{"待機中", map[string]any{"id": "cgt-1", "status": "queued"}, model.VideoTaskPending, "", ""},
		{"実行中", map[string]any{"id": "cgt-1", "status": "running"}, model.VideoTaskProcessing, "", ""},
		{
			"成功",
			map[string]any{"id": "cgt-1", "status": "succeeded", "content": map[string]any{"video_url": "https://ark/v.mp4"}},
			model.VideoTaskSucceeded, "https://ark/v.mp4", "",
		},
		{
			"失敗",
			map[string]any{"id": "cgt-1", "status": "failed", "error": map[string]any{"code": "x", "message": "sensitive content"}},
			model.VideoTaskFailed, "", "sensitive content",
		},
		{"キャンセル", map[string]any{"id": "cgt-1", "status": "cancelled"}, model.VideoTaskFailed, "", "generation cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestSeedance(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/v3/contents/generations/tasks/cgt-1" {
					t.Errorf("path = %s", r.URL.Path)
				}
				json.NewEncoder(w).Encode(tt.body)
			})

			task, err := c.Status(context.Background(), "cgt-1")
			if err != nil {
				t.Fatalf("Status() error = %v", err)
			}
			if task.Status != tt.wantStatus || task.VideoURL != tt.wantURL || task.Error != tt.wantErr {
				t.Errorf("task = %+v", task)
			}
		})
	}
}

func TestSeedanceClient_Status_NotFound(t *testing.T) {
	c := newTestSeedance(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	if _, err := c.Status(context.Background(), "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}
