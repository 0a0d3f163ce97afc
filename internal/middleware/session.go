// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/shortsmith/internal/model"
)

// SessionCookieName はセッションIDを保持するHTTP Only Cookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

const (
	userIDContextKey  contextKey = "user_id"
	sessionContextKey contextKey = "session"
)

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// ErrNoUserID はコンテキストに認証済みユーザーIDがないことを表す。
var ErrNoUserID = errors.New("user ID not found in context")

// NewSessionMiddleware はセッションCookieを検証し、ユーザーIDとセッションをコンテキストに載せる。
// Cookieがない場合とストアの障害時は401を返す。ストアに存在しないか期限切れのセッションは
// Cookieも削除する。
func NewSessionMiddleware(sessionFinder SessionFinder, cookies CookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				writeUnauthorized(w)
				return
			}

			session, err := sessionFinder.FindByID(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to find session", slog.String("error", err.Error()))
				writeUnauthorized(w)
				return
			}
			if session == nil || session.Expired(time.Now()) {
				ClearSessionCookie(w, cookies)
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// UserIDFromContext はセッションミドルウェアが載せたユーザーIDを返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", ErrNoUserID
	}
	return userID, nil
}

// SessionFromContext はセッションミドルウェアが載せたセッションを返す。なければnil。
func SessionFromContext(ctx context.Context) *model.Session {
	s, _ := ctx.Value(sessionContextKey).(*model.Session)
	return s
}

// ContextWithUserID はユーザーIDだけを載せたコンテキストを返す。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// ContextWithSession はセッションとそのユーザーIDを載せたコンテキストを返す。
func ContextWithSession(ctx context.Context, s *model.Session) context.Context {
	return context.WithValue(ContextWithUserID(ctx, s.UserID), sessionContextKey, s)
}
