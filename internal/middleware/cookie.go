package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// SessionCheckedCookieName は直近のセッション鮮度チェック時刻（unix秒）を保持するCookieの名前。
const SessionCheckedCookieName = "session_checked_at"

// CookieConfig はセッション関連Cookieの共通属性。
type CookieConfig struct {
	Domain string
	Secure bool
}

// SetSessionCookie はセッションCookieを発行する。maxAgeは秒単位。
func SetSessionCookie(w http.ResponseWriter, cfg CookieConfig, sessionID string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie はセッションCookieとチェック時刻Cookieを削除する。
func ClearSessionCookie(w http.ResponseWriter, cfg CookieConfig) {
	for _, name := range []string{SessionCookieName, SessionCheckedCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Domain:   cfg.Domain,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   cfg.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func setCheckedCookie(w http.ResponseWriter, cfg CookieConfig, now time.Time, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCheckedCookieName,
		Value:    strconv.FormatInt(now.Unix(), 10),
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// lastChecked はチェック時刻Cookieの値を返す。
// 存在しない、不正、またはnowより未来の値の場合はfalse。
func lastChecked(r *http.Request, now time.Time) (time.Time, bool) {
	c, err := r.Cookie(SessionCheckedCookieName)
	if err != nil || c.Value == "" {
		return time.Time{}, false
	}
	sec, err := strconv.ParseInt(c.Value, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	checked := time.Unix(sec, 0)
	if checked.After(now) {
		return time.Time{}, false
	}
	return checked, true
}
