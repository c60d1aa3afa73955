package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// DefaultAllowedOrigins はCORS_ALLOWED_ORIGINS未指定時に許可するオリジン。
var DefaultAllowedOrigins = []string{
	"http://127.0.0.1:5500",
	"http://localhost:5500",
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"https://mykolabutylkov.github.io",
}

const githubPagesSuffix = "github.io"

// CORSConfig はCORSミドルウェアの設定を保持する。
type CORSConfig struct {
	AllowedOrigins   []string
	AllowGitHubPages bool // 任意の https://*.github.io を許可する
}

// originPolicy はオリジンの許可判定を行う。
type originPolicy struct {
	allowed          map[string]struct{}
	allowGitHubPages bool
}

func newOriginPolicy(config CORSConfig) *originPolicy {
	p := &originPolicy{
		allowed:          make(map[string]struct{}, len(config.AllowedOrigins)),
		allowGitHubPages: config.AllowGitHubPages,
	}
	for _, o := range config.AllowedOrigins {
		if o = normalizeOrigin(o); o != "" {
			p.allowed[o] = struct{}{}
		}
	}
	return p
}

func (p *originPolicy) allows(origin string) bool {
	if _, ok := p.allowed[origin]; ok {
		return true
	}
	if !p.allowGitHubPages {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme != "https" {
		return false
	}
	return isGitHubPagesHost(u.Hostname())
}

// isGitHubPagesHost はホストが github.io 配下のユーザーサイトかを判定する。
// github.io はPublic Suffix Listに登録されているため、サフィックス自体は許可しない。
func isGitHubPagesHost(host string) bool {
	host = strings.ToLower(host)
	suffix, _ := publicsuffix.PublicSuffix(host)
	return suffix == githubPagesSuffix && host != githubPagesSuffix
}

// normalizeOrigin は末尾のスラッシュを取り除く。
func normalizeOrigin(origin string) string {
	return strings.TrimSuffix(strings.TrimSpace(origin), "/")
}

// NewCORSMiddleware は許可リストに基づくCORSミドルウェアを返す。
// 許可されたオリジンにはそのオリジンをそのまま返し、ワイルドカード(*)は使用しない。
// 許可されないオリジンにはCORSヘッダーを付与せずログに記録する。
// OPTIONSプリフライトリクエストには204で応答する。
func NewCORSMiddleware(config CORSConfig) func(next http.Handler) http.Handler {
	policy := newOriginPolicy(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" {
				w.Header().Add("Vary", "Origin")
				normalized := normalizeOrigin(origin)
				if policy.allows(normalized) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
					w.Header().Set("Access-Control-Max-Age", "86400")
				} else {
					slog.Warn("cors blocked origin", slog.String("origin", normalized))
				}
			}

			// OPTIONSプリフライトリクエストには204で応答
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
