package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/shortsmith/internal/model"
)

func TestAuthRoutes(t *testing.T) {
	svc := &mockAuthService{
		getLoginURLFn: func(state string) string {
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
		handleCallbackFn: func(ctx context.Context, code string) (*model.Session, error) {
			return &model.Session{ID: "session-123", UserID: "user-123", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return &model.User{ID: "user-123", Email: "me@example.com", Name: "Me"}, nil
		},
	}
	r := chi.NewRouter()
	r.Route("/auth", authRoutes(newTestAuthHandler(svc)))

	tests := []struct {
		method     string
		target     string
		wantStatus int
	}{
		{http.MethodGet, "/auth/google/login", http.StatusTemporaryRedirect},
		{http.MethodGet, "/auth/google/callback?code=c&state=s", http.StatusTemporaryRedirect},
		{http.MethodPost, "/auth/logout", http.StatusTemporaryRedirect},
		{http.MethodGet, "/auth/me", http.StatusOK},
		{http.MethodPost, "/auth/me", http.StatusMethodNotAllowed},
		{http.MethodGet, "/auth/logout", http.StatusMethodNotAllowed},
		{http.MethodGet, "/auth/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-123"})
			req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "s"})
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
