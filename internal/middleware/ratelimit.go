package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/tourneyreg/internal/model"
)

const (
	bucketSMS  = "sms"
	bucketAuth = "auth"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	SMSRate         rate.Limit    // SMS送信・検証のレート（req/sec）
	SMSBurst        int           // SMS送信・検証のバーストサイズ
	AuthRate        rate.Limit    // ログイン・パスワード再設定のレート（req/sec）
	AuthBurst       int           // ログイン・パスワード再設定のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// PerMinute は「1分あたりn回」をrate.Limitとバーストに変換する。
func PerMinute(n int) (rate.Limit, int) {
	if n <= 0 {
		return rate.Inf, 0
	}
	return rate.Limit(float64(n) / 60.0), n
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// SMS 5 req/min/IP、認証系 20 req/min/IP。
func DefaultRateLimiterConfig() RateLimiterConfig {
	smsRate, smsBurst := PerMinute(5)
	authRate, authBurst := PerMinute(20)
	return RateLimiterConfig{
		SMSRate:         smsRate,
		SMSBurst:        smsBurst,
		AuthRate:        authRate,
		AuthBurst:       authBurst,
		CleanupInterval: 5 * time.Minute,
	}
}

// RateLimitObserver はレート制限による拒否を記録する。
type RateLimitObserver interface {
	RecordRateLimited(bucket string)
}

// clientLimiter はクライアントごとのレートリミッターとアクセス時刻を保持する。
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は1種類の制限についてクライアントIPごとのリミッターを管理する。
type limiterSet struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*clientLimiter
}

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*clientLimiter),
	}
}

// get はクライアントのリミッターを取得または作成する。
func (s *limiterSet) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cl, exists := s.limiters[key]; exists {
		cl.lastAccess = now
		return cl.limiter
	}

	limiter := rate.NewLimiter(s.limit, s.burst)
	s.limiters[key] = &clientLimiter{
		limiter:    limiter,
		lastAccess: now,
	}
	return limiter
}

// evict は最終アクセスからttlを超えたエントリを削除する。
func (s *limiterSet) evict(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, cl := range s.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// RateLimiter はクライアントIPごとのレート制限を管理する。
// SMS系と認証系の2種類を独立に提供する。
type RateLimiter struct {
	config   RateLimiterConfig
	observer RateLimitObserver

	sms  *limiterSet
	auth *limiterSet

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
// observerはnilでもよい。
func NewRateLimiter(config RateLimiterConfig, observer RateLimitObserver) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}

	rl := &RateLimiter{
		config:   config,
		observer: observer,
		sms:      newLimiterSet(config.SMSRate, config.SMSBurst),
		auth:     newLimiterSet(config.AuthRate, config.AuthBurst),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// SMSMiddleware はSMS送信・検証用のレート制限ミドルウェアを返す。
func (rl *RateLimiter) SMSMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(bucketSMS, rl.sms)
}

// AuthMiddleware はログイン・パスワード再設定・管理者ログイン用のレート制限ミドルウェアを返す。
func (rl *RateLimiter) AuthMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(bucketAuth, rl.auth)
}

func (rl *RateLimiter) middleware(bucket string, set *limiterSet) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			if !set.get(ip, time.Now()).Allow() {
				writeRateLimitResponse(w, set.limit)
				if rl.observer != nil {
					rl.observer.RecordRateLimited(bucket)
				}
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("limit_type", bucket),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SMSLimiterCount は現在管理されているSMS系リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) SMSLimiterCount() int {
	return rl.sms.len()
}

// AuthLimiterCount は現在管理されている認証系リミッターのエントリ数を返す。
func (rl *RateLimiter) AuthLimiterCount() int {
	return rl.auth.len()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2
	rl.sms.evict(now, ttl)
	rl.auth.evict(now, ttl)
}

// clientIP はRemoteAddrからホスト部分を取り出す。
// プロキシ配下ではchiのRealIPミドルウェアを前段に置くこと。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	// Retry-Afterの算出: 1トークンが補充されるまでの秒数
	retryAfterSec := 1
	if r > 0 && r != rate.Inf {
		retryAfterSec = int(math.Ceil(1.0 / float64(r)))
	}
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
