package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/hitoshi/shortsmith/internal/model"
	"github.com/hitoshi/shortsmith/internal/security"
)

func newTestProxy(guard *mockGuard, maxSize int64) *ProxyHandler {
	return NewProxyHandler(guard, ProxyConfig{Timeout: 5 * time.Second, MaxSize: maxSize})
}

func proxyRequest(target string) *http.Request {
	return httptest.NewRequest(http.MethodGet, "/api/proxy?url="+url.QueryEscape(target), nil)
}

func TestProxyHandler_Success(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Set-Cookie", "tracking=1")
		w.Write([]byte("MP4DATA"))
	}))
	defer upstream.Close()

	h := newTestProxy(&mockGuard{}, 1<<20)
	w := httptest.NewRecorder()
	h.Proxy(w, proxyRequest(upstream.URL+"/clip.mp4"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusOK, w.Body.String())
	}
	if w.Body.String() != "MP4DATA" {
		t.Errorf("body = %q, want %q", w.Body.String(), "MP4DATA")
	}
	if ct := w.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("Content-Type = %q, want video/mp4", ct)
	}
	if etag := w.Header().Get("ETag"); etag != `"v1"` {
		t.Errorf("ETag = %q", etag)
	}
	// 引き継ぎ対象外のヘッダーは返さない
	if c := w.Header().Get("Set-Cookie"); c != "" {
		t.Errorf("Set-Cookie should not be proxied, got %q", c)
	}
}

func TestProxyHandler_URLValidation(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		validate   error
		wantStatus int
		wantCode   string
	}{
		{"URLなし", "", nil, http.StatusBadRequest, model.ErrCodeValidation},
		{"内部アドレス", "http://10.0.0.1/", security.ErrBlockedTarget, http.StatusForbidden, model.ErrCodeSSRFBlocked},
		{"未対応のスキーム", "ftp://example.com/a", errors.New("unsupported scheme"), http.StatusBadRequest, model.ErrCodeInvalidURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestProxy(&mockGuard{
				validateFn: func(rawURL string) error { return tt.validate },
			}, 1<<20)

			req := httptest.NewRequest(http.MethodGet, "/api/proxy", nil)
			if tt.target != "" {
				req = proxyRequest(tt.target)
			}
			w := httptest.NewRecorder()
			h.Proxy(w, req)

			assertErrorCode(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

// 静的な検証を通過したURLが、接続時に内部アドレスや許可外のポートと判明した場合
func TestProxyHandler_RejectedAtDial(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"内部アドレスに解決", "http://127.0.0.1/x"},
		{"リンクローカルに解決", "http://169.254.169.254/latest/meta-data/"},
		{"許可外のポート", "http://127.0.0.1:8080/x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestProxy(&mockGuard{safeClient: true}, 1<<20)
			w := httptest.NewRecorder()
			h.Proxy(w, proxyRequest(tt.target))

			assertErrorCode(t, w, http.StatusForbidden, model.ErrCodeSSRFBlocked)
		})
	}
}

func TestProxyHandler_RealGuard(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantCode   string
	}{
		{"ループバックIP", "http://127.0.0.1/x", http.StatusForbidden, model.ErrCodeSSRFBlocked},
		{"localhost", "http://localhost/x", http.StatusForbidden, model.ErrCodeSSRFBlocked},
		{"IPv4射影アドレス", "http://[::ffff:10.0.0.1]/x", http.StatusForbidden, model.ErrCodeSSRFBlocked},
		{"未対応のスキーム", "file:///etc/passwd", http.StatusBadRequest, model.ErrCodeInvalidURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewProxyHandler(security.NewSSRFGuard(), ProxyConfig{Timeout: 2 * time.Second, MaxSize: 1 << 20})
			w := httptest.NewRecorder()
			h.Proxy(w, proxyRequest(tt.target))

			assertErrorCode(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestProxyHandler_UpstreamErrorStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer upstream.Close()

	h := newTestProxy(&mockGuard{}, 1<<20)
	w := httptest.NewRecorder()
	h.Proxy(w, proxyRequest(upstream.URL))

	assertErrorCode(t, w, http.StatusBadGateway, model.ErrCodeUpstreamFailed)
}

func TestProxyHandler_UpstreamUnreachable(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	target := upstream.URL
	upstream.Close()

	h := newTestProxy(&mockGuard{}, 1<<20)
	w := httptest.NewRecorder()
	h.Proxy(w, proxyRequest(target))

	assertErrorCode(t, w, http.StatusBadGateway, model.ErrCodeUpstreamFailed)
}

func TestProxyHandler_DeclaredSizeTooLarge(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer upstream.Close()

	h := newTestProxy(&mockGuard{}, 4)
	w := httptest.NewRecorder()
	h.Proxy(w, proxyRequest(upstream.URL))

	assertErrorCode(t, w, http.StatusRequestEntityTooLarge, model.ErrCodePayloadTooBig)
}

func TestProxyHandler_UnknownLengthIsTruncated(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123"))
		// フラッシュするとチャンク転送になりContent-Lengthが付かない
		w.(http.Flusher).Flush()
		w.Write([]byte("456789"))
	}))
	defer upstream.Close()

	h := newTestProxy(&mockGuard{}, 6)
	w := httptest.NewRecorder()
	h.Proxy(w, proxyRequest(upstream.URL))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "012345" {
		t.Errorf("body = %q, want %q", w.Body.String(), "012345")
	}
}
