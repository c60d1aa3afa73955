// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/tourneyreg/internal/model"
	"github.com/hitoshi/tourneyreg/internal/token"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userIDContextKey = contextKey("user_id")
	roleContextKey   = contextKey("role")
)

// TokenVerifier はBearerトークンの検証に必要なインターフェース。
type TokenVerifier interface {
	Verify(tokenString string) (*token.Claims, error)
}

// NewUserAuthMiddleware は参加者トークンを要求するミドルウェアを返す。
// 認証済みユーザーIDをリクエストコンテキストに注入する。
// 管理者トークンは403で拒否する。
func NewUserAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := authenticate(w, r, verifier)
			if !ok {
				return
			}
			if claims.IsAdmin() {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}

			userID, ok := claims.UserID()
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("Invalid token"))
				return
			}

			annotateRequest(r.Context(), userID, "")
			ctx := ContextWithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewAdminAuthMiddleware は管理者トークンを要求するミドルウェアを返す。
// 参加者トークンは403で拒否する。
func NewAdminAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := authenticate(w, r, verifier)
			if !ok {
				return
			}
			if !claims.IsAdmin() {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}

			annotateRequest(r.Context(), 0, model.RoleAdmin)
			ctx := context.WithValue(r.Context(), roleContextKey, model.RoleAdmin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate はAuthorizationヘッダーのトークンを検証する。
// 失敗時はエラーレスポンスを書き込み、falseを返す。
func authenticate(w http.ResponseWriter, r *http.Request, verifier TokenVerifier) (*token.Claims, bool) {
	raw := bearerToken(r)
	if raw == "" {
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("No token"))
		return nil, false
	}

	claims, err := verifier.Verify(raw)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenExpiredError())
			return nil, false
		}
		slog.Debug("token rejected",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("Invalid token"))
		return nil, false
	}

	return claims, true
}

// bearerToken は "Authorization: Bearer <token>" からトークン部分を取り出す。
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, value, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// NewUserAuthMiddlewareを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	if !ok || userID <= 0 {
		return 0, false
	}
	return userID, true
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// IsAdminContext はコンテキストが管理者として認証済みかを返す。
func IsAdminContext(ctx context.Context) bool {
	role, ok := ctx.Value(roleContextKey).(model.Role)
	return ok && role == model.RoleAdmin
}
