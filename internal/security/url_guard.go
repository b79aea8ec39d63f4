// Package security はリモート入力を取得する際の安全性検証を提供する。
package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// URLGuard はユーザーレコードをURLから取得する際のSSRF対策を定義する。
type URLGuard interface {
	// Check はDNS解決を伴わない静的検証を行う。
	Check(rawURL string) error

	// Client は接続時にも宛先IPを検証するHTTPクライアントを返す。
	Client(timeout time.Duration) *http.Client
}

// 検証エラー
var (
	ErrEmptyURL       = errors.New("empty URL")
	ErrScheme         = errors.New("disallowed scheme")
	ErrEmptyHost      = errors.New("empty host")
	ErrBlockedAddress = errors.New("blocked address")
)

var allowedSchemes = []string{"http", "https"}

// blockedPrefixes はプライベート・ループバック・リンクローカル等の宛先。
// クラウドのメタデータIP (169.254.169.254) はリンクローカルに含まれる。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

var blockedHosts = map[string]bool{
	"localhost": true,
}

type guard struct {
	ports []int
}

// NewURLGuard はポート80/443のみを許可するURLGuardを生成する。
func NewURLGuard() URLGuard {
	return &guard{ports: []int{80, 443}}
}

// Client はsafeurlでラップしたクライアントを返す。
// 宛先の検証はDialerのControlフックで行われるため、DNS再バインディングも防ぐ。
func (g *guard) Client(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(g.ports...).
		Build()
	return safeurl.Client(cfg).Client
}

// Check はスキーム・ホスト・IPアドレスを検証する。
func (g *guard) Check(rawURL string) error {
	if rawURL == "" {
		return ErrEmptyURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: %q", ErrScheme, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: %s", ErrEmptyHost, rawURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isBlockedAddr(addr) {
			return fmt.Errorf("%w: %s", ErrBlockedAddress, addr)
		}
		return nil
	}

	if blockedHosts[strings.ToLower(host)] {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
