// Package security は記事取得時のSSRF防止と、外部から受け取ったテキストの無害化を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// URLGuard は利用者が指定した記事URLやニュースフィードURLへのアクセスを安全に行うための
// 検証器とHTTPクライアントを提供する。
type URLGuard interface {
	// NewSafeClient はプライベートIP・ループバック・リンクローカル・メタデータIPへの
	// 接続をDialerレベルで拒否するHTTPクライアントを生成する。
	// DNS解決後のIPアドレスを検証するため、DNS再バインディングにも対応する。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL はリクエスト送信前にURLを静的に検証する。
	ValidateURL(rawURL string) error
}

var allowedSchemes = []string{"http", "https"}

// DefaultAllowedPorts は記事取得で接続を許可するポート。
var DefaultAllowedPorts = []int{80, 443}

var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック
		"127.0.0.0/8",
		// リンクローカル (169.254.169.254を含む)
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

var blockedHostnames = []string{
	"localhost",
	"metadata.google.internal",
}

// Guard はURLGuardの実装。
type Guard struct {
	ports []int
}

// NewGuard はGuardを生成する。portsが空の場合はDefaultAllowedPortsを使う。
func NewGuard(ports ...int) *Guard {
	if len(ports) == 0 {
		ports = DefaultAllowedPorts
	}
	return &Guard{ports: ports}
}

// NewSafeClient はsafeurlでラップしたHTTPクライアントを返す。
func (g *Guard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(g.ports...).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はスキーム・ホスト・ポート・IPアドレスを検証する。
// DNS解決は行わないため、名前解決後の検査はNewSafeClient側に任せる。
func (g *Guard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %q", scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if p := parsed.Port(); p != "" && !g.isAllowedPort(p) {
		return fmt.Errorf("disallowed port: %s", p)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if isBlockedHostname(host) {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

func (g *Guard) isAllowedPort(port string) bool {
	for _, p := range g.ports {
		if strconv.Itoa(p) == port {
			return true
		}
	}
	return false
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func isBlockedHostname(host string) bool {
	lower := strings.TrimSuffix(strings.ToLower(host), ".")
	for _, blocked := range blockedHostnames {
		if lower == blocked || strings.HasSuffix(lower, "."+blocked) {
			return true
		}
	}
	return false
}
