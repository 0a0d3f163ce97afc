package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// SessionExtender はセッションの有効期限延長を行うインターフェース。
type SessionExtender interface {
	// ExtendSession はセッションの有効期限をnow+最大有効期間に延長し、新しい期限を返す。
	// セッションが既に存在しない場合はfalseを返す。
	ExtendSession(ctx context.Context, sessionID string, now time.Time) (time.Time, bool, error)
}

// FreshnessConfig はセッション鮮度チェックの設定。
type FreshnessConfig struct {
	RefreshThreshold time.Duration // 残り有効期間がこれ以下なら延長する
	CheckInterval    time.Duration // チェックの間隔。この間は何もしない
	SessionMaxAge    int           // 延長後のCookie有効期間（秒）
	Cookies          CookieConfig
}

// NewFreshnessMiddleware はセッションミドルウェアの後段で有効期限を確認し、
// 期限が近いセッションを延長するミドルウェアを返す。
// 期限切れのセッションには401を返し、セッションCookieを削除する。
func NewFreshnessMiddleware(extender SessionExtender, cfg FreshnessConfig, now func() time.Time) func(next http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := now()

			session := SessionFromContext(r.Context())
			if session == nil || session.Expired(t) {
				ClearSessionCookie(w, cfg.Cookies)
				writeUnauthorized(w)
				return
			}

			if checked, ok := lastChecked(r, t); ok && t.Sub(checked) < cfg.CheckInterval {
				next.ServeHTTP(w, r)
				return
			}

			if session.Remaining(t) <= cfg.RefreshThreshold {
				expiresAt, ok, err := extender.ExtendSession(r.Context(), session.ID, t)
				switch {
				case err != nil:
					slog.Warn("failed to extend session",
						slog.String("user_id", session.UserID),
						slog.String("error", err.Error()),
					)
				case !ok:
					ClearSessionCookie(w, cfg.Cookies)
					writeUnauthorized(w)
					return
				default:
					session.ExpiresAt = expiresAt
					SetSessionCookie(w, cfg.Cookies, session.ID, cfg.SessionMaxAge)
					slog.Debug("session extended", slog.String("user_id", session.UserID))
				}
			}

			setCheckedCookie(w, cfg.Cookies, t, cfg.SessionMaxAge)
			next.ServeHTTP(w, r)
		})
	}
}
