package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tourneyreg/internal/model"
)

const requestIDHeader = "X-Request-ID"

var (
	requestIDContextKey   = contextKey("request_id")
	requestInfoContextKey = contextKey("request_info")
)

// requestInfo は内側のミドルウェアで判明した認証情報を
// 外側のロギングミドルウェアへ渡すための入れ物。
type requestInfo struct {
	mu     sync.Mutex
	userID int64
	role   model.Role
}

// annotateRequest はロギング用に認証情報を記録する。
func annotateRequest(ctx context.Context, userID int64, role model.Role) {
	info, ok := ctx.Value(requestInfoContextKey).(*requestInfo)
	if !ok {
		return
	}
	info.mu.Lock()
	defer info.mu.Unlock()
	if userID > 0 {
		info.userID = userID
	}
	if role != "" {
		info.role = role
	}
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、request_id、認証済みの場合はuser_idまたはroleを含む。
// リクエストIDはX-Request-IDヘッダーを引き継ぎ、なければ生成してレスポンスにも付与する。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(requestIDHeader)
			if requestID == "" || len(requestID) > 64 {
				requestID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, requestID)

			info := &requestInfo{}
			ctx := context.WithValue(r.Context(), requestIDContextKey, requestID)
			ctx = context.WithValue(ctx, requestInfoContextKey, info)

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rec, r.WithContext(ctx))

			duration := time.Since(start)
			durationMs := float64(duration.Nanoseconds()) / float64(time.Millisecond)

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
				slog.String("request_id", requestID),
			}

			info.mu.Lock()
			if info.userID > 0 {
				attrs = append(attrs, slog.String("user_id", strconv.FormatInt(info.userID, 10)))
			}
			if info.role != "" {
				attrs = append(attrs, slog.String("role", string(info.role)))
			}
			info.mu.Unlock()

			// slogのログレベルをステータスコードに応じて変更
			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "http_request", attrs...)
		})
	}
}

// RequestIDFromContext はリクエストIDを取得する。ロギングミドルウェア外では空文字を返す。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
