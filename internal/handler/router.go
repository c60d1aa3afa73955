package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/tourneyreg/internal/middleware"
)

// HealthChecker はコンテナのヘルスチェックで依存先の疎通を確認する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	TokenVerifier  middleware.TokenVerifier
	CORS           middleware.CORSConfig
	RateLimiter    *middleware.RateLimiter
	Metrics        middleware.RequestRecorder // nilなら記録しない
	MetricsHandler http.Handler               // nilなら/metricsを公開しない
	HealthChecker  HealthChecker

	AuthService  AuthServiceInterface
	SMSService   SMSServiceInterface
	AdminService AdminServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Logging → Recovery → SecurityHeaders → CORS → Metrics
//
// ルート単位で RateLimit(SMS|Auth) と UserAuth / AdminAuth を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORS))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}

	authHandler := NewAuthHandler(deps.AuthService)
	smsHandler := NewSMSHandler(deps.SMSService)
	adminHandler := NewAdminHandler(deps.AdminService)

	userAuth := middleware.NewUserAuthMiddleware(deps.TokenVerifier)
	adminAuth := middleware.NewAdminAuthMiddleware(deps.TokenVerifier)
	smsLimit := deps.RateLimiter.SMSMiddleware()
	authLimit := deps.RateLimiter.AuthMiddleware()

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, okResponse{OK: true})
		})

		// 電話番号確認
		r.Route("/sms", func(r chi.Router) {
			r.Use(smsLimit)
			r.Post("/send", smsHandler.Send)
			r.Post("/verify", smsHandler.Verify)
		})

		// 参加者認証
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.With(authLimit).Post("/login", authHandler.Login)
			r.With(authLimit).Post("/forgot-password", authHandler.ForgotPassword)
			r.With(authLimit).Post("/reset-password", authHandler.ResetPassword)
			r.With(userAuth).Get("/me", authHandler.Me)
		})

		// 管理者
		r.Route("/admin", func(r chi.Router) {
			r.With(authLimit).Post("/login", adminHandler.Login)

			r.Group(func(r chi.Router) {
				r.Use(adminAuth)
				r.Get("/users", adminHandler.ListUsers)
				r.Patch("/users/{id}", adminHandler.UpdateUser)
				r.Post("/user/{id}/payment", adminHandler.SetPayment)
				r.Post("/clear-users", adminHandler.ClearUsers)
			})
		})
	})

	return r
}

// healthHandler はDBへの疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Warn("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
