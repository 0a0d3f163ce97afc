// Package security はプロキシとベンダー連携で使う入力検証を提供する。
package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

var (
	// ErrInvalidURL はURLとして解釈できない、またはhttp/https以外のスキームであることを示す。
	ErrInvalidURL = errors.New("invalid url")
	// ErrBlockedTarget は接続先が内部ネットワーク等の禁止対象であることを示す。
	ErrBlockedTarget = errors.New("blocked target")
)

// SSRFGuardService はユーザーが指定したURLへ外向きに接続する箇所で使う。
// /api/proxy と、動画ベンダーへ渡す画像URLの検証が対象。
type SSRFGuardService interface {
	// NewSafeClient はダイヤル時に解決後のIPを検査するHTTPクライアントを返す。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL はDNS解決を伴わない静的な検証を行う。
	// 返るエラーはErrInvalidURLまたはErrBlockedTargetをラップする。
	ValidateURL(rawURL string) error
}

var (
	allowedSchemes = []string{"http", "https"}

	blockedPrefixes = []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("172.16.0.0/12"),
		netip.MustParsePrefix("192.168.0.0/16"),
		netip.MustParsePrefix("100.64.0.0/10"), // CGNAT
		netip.MustParsePrefix("127.0.0.0/8"),
		netip.MustParsePrefix("169.254.0.0/16"), // メタデータサーバーを含む
		netip.MustParsePrefix("0.0.0.0/8"),
		netip.MustParsePrefix("::1/128"),
		netip.MustParsePrefix("fe80::/10"),
		netip.MustParsePrefix("fc00::/7"),
	}

	blockedHostnames = []string{"localhost", "metadata.google.internal"}
)

type ssrfGuard struct{}

// NewSSRFGuard はsafeurlを使うSSRFGuardServiceを返す。
func NewSSRFGuard() *ssrfGuard {
	return &ssrfGuard{}
}

// NewSafeClient は80/443番ポートのhttp(s)だけに接続できるクライアントを返す。
// レスポンスサイズの上限は呼び出し側で適用する。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(config).Client
}

// ValidateURL はスキーム、ホスト名、IPリテラルを検査する。
// ホスト名が解決されるIPの検査はNewSafeClientのダイヤル時に行われる。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: empty URL", ErrInvalidURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if scheme := strings.ToLower(u.Scheme); !slices.Contains(allowedSchemes, scheme) {
		return fmt.Errorf("%w: disallowed scheme %q", ErrInvalidURL, scheme)
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if blockedAddr(addr) {
			return fmt.Errorf("%w: ip address %s", ErrBlockedTarget, addr)
		}
		return nil
	}

	if blockedHost(host) {
		return fmt.Errorf("%w: host %s", ErrBlockedTarget, host)
	}
	return nil
}

// ClassifyClientError はNewSafeClientが返したエラーのうち、接続先の制限で拒否されたものを
// ErrBlockedTargetまたはErrInvalidURLをラップしたエラーに変換する。
// ホスト名の解決結果やリダイレクト先はダイヤル時にしか分からないため、ValidateURLを通過した
// URLでもここで拒否されうる。制限によるものでなければnilを返す。
func ClassifyClientError(err error) error {
	var (
		ipErr     *safeurl.AllowedIPError
		ipv6Err   *safeurl.IPv6BlockedError
		hostErr   *safeurl.AllowedHostError
		portErr   *safeurl.AllowedPortError
		schemeErr *safeurl.AllowedSchemeError
		invalid   *safeurl.InvalidHostError
	)
	switch {
	case errors.As(err, &ipErr), errors.As(err, &ipv6Err), errors.As(err, &hostErr), errors.As(err, &portErr):
		return fmt.Errorf("%w: %v", ErrBlockedTarget, err)
	case errors.As(err, &schemeErr), errors.As(err, &invalid):
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return nil
}

// blockedAddr はIPv4射影アドレスを展開してから禁止レンジと照合する。
func blockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap().WithZone("")
	return slices.ContainsFunc(blockedPrefixes, func(p netip.Prefix) bool {
		return p.Contains(addr)
	})
}

// blockedHost はhostが禁止ホスト名かそのサブドメインかを返す。
func blockedHost(host string) bool {
	return slices.ContainsFunc(blockedHostnames, func(b string) bool {
		return host == b || strings.HasSuffix(host, "."+b)
	})
}
