// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/tourneyreg/internal/auth"
	"github.com/hitoshi/tourneyreg/internal/middleware"
	"github.com/hitoshi/tourneyreg/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Result, error)
	Login(ctx context.Context, email, password string) (*auth.Result, error)
	GetCurrentUser(ctx context.Context, userID int64) (*model.User, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, rawToken, newPassword string) error
}

// AuthHandler は参加者の認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

type registerRequest struct {
	FirstName  string `json:"firstName"`
	Nick       string `json:"nick"`
	TeamName   string `json:"teamName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Tournament string `json:"tournament"`
	Password   string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type sessionResponse struct {
	OK    bool         `json:"ok"`
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type meResponse struct {
	OK   bool         `json:"ok"`
	User userResponse `json:"user"`
}

// Register は参加者を登録し、セッショントークンを発行する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err, "Register failed")
		return
	}

	result, err := h.service.Register(r.Context(), auth.RegisterInput{
		FirstName:  req.FirstName,
		Nick:       req.Nick,
		TeamName:   req.TeamName,
		Email:      req.Email,
		Phone:      req.Phone,
		Tournament: req.Tournament,
		Password:   req.Password,
	})
	if err != nil {
		handleServiceError(w, r, err, "Register failed")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		OK:    true,
		Token: result.Token,
		User:  toUserResponse(result.User),
	})
}

// Login はメールアドレスとパスワードでログインする。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err, "Login failed")
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err, "Login failed")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		OK:    true,
		Token: result.Token,
		User:  toUserResponse(result.User),
	})
}

// Me は認証済みユーザーの情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("No token"))
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err, "Me failed")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{OK: true, User: toUserResponse(user)})
}

// ForgotPassword はパスワード再設定リンクを送信する。
// アカウントの存在を推測させないため、ボディの内容にかかわらず常に成功を返す。
// POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusOK, okResponse{OK: true})
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		slog.Error("password reset request failed",
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// ResetPassword は再設定トークンを検証して新しいパスワードを設定する。
// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err, "Reset failed")
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Email, req.Token, req.NewPassword); err != nil {
		handleServiceError(w, r, err, "Reset failed")
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
