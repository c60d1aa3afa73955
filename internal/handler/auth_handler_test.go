package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/tourneyreg/internal/auth"
	"github.com/hitoshi/tourneyreg/internal/model"
)

// --- POST /api/auth/register ---

func TestAuthHandler_Register_Success(t *testing.T) {
	var got auth.RegisterInput
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, in auth.RegisterInput) (*auth.Result, error) {
			got = in
			return &auth.Result{Token: "jwt-token", User: sampleUser()}, nil
		},
	}
	h := NewAuthHandler(svc)

	req := jsonRequest(http.MethodPost, "/api/auth/register", `{
		"firstName":"Dana","nick":"dz","teamName":"Nova","email":"D@X.com",
		"phone":"+972501234567","tournament":"CS2-Open","password":"abcd"}`)
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
	}
	if got.Email != "D@X.com" || got.TeamName != "Nova" || got.Password != "abcd" {
		t.Errorf("input passed to service = %+v", got)
	}

	body := decodeBody(t, w)
	if body["ok"] != true || body["token"] != "jwt-token" {
		t.Errorf("body = %v", body)
	}
	user, _ := body["user"].(map[string]any)
	if user["email"] != "d@x.com" || user["phoneVerified"] != true || user["paid"] != false {
		t.Errorf("user = %v", user)
	}
	if _, ok := user["passwordHash"]; ok {
		t.Error("password hash must never be returned")
	}
	if strings.Contains(w.Body.String(), "secret-hash") {
		t.Error("response leaks password hash")
	}
}

func TestAuthHandler_Register_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"重複", model.NewUserExistsError(), http.StatusConflict, model.ErrCodeConflict},
		{"必須項目不足", model.NewValidationError("Missing required fields"), http.StatusBadRequest, model.ErrCodeValidation},
		{"電話番号未確認", model.NewPhoneNotVerifiedError(), http.StatusBadRequest, model.ErrCodePhoneNotVerified},
		{"内部エラー", errors.New("db down"), http.StatusInternalServerError, model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				registerFn: func(ctx context.Context, in auth.RegisterInput) (*auth.Result, error) {
					return nil, tt.err
				},
			}
			w := httptest.NewRecorder()
			NewAuthHandler(svc).Register(w, jsonRequest(http.MethodPost, "/api/auth/register", `{"email":"a@b.c"}`))

			body := assertError(t, w, tt.wantStatus, tt.wantCode)
			if tt.wantCode == model.ErrCodeInternal {
				if body["error"] != "Register failed" {
					t.Errorf("error = %v, want generic message", body["error"])
				}
				if strings.Contains(w.Body.String(), "db down") {
					t.Error("internal detail leaked to client")
				}
			}
		})
	}
}

func TestAuthHandler_Register_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"壊れたJSON", `{"email":`},
		{"未知のフィールド", `{"email":"a@b.c","isAdmin":true}`},
		{"複数のJSON値", `{"email":"a@b.c"}{"email":"x@y.z"}`},
		{"上限超過", `{"firstName":"` + strings.Repeat("a", maxBodyBytes) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				registerFn: func(ctx context.Context, in auth.RegisterInput) (*auth.Result, error) {
					t.Error("service should not be called")
					return nil, nil
				},
			}
			w := httptest.NewRecorder()
			NewAuthHandler(svc).Register(w, jsonRequest(http.MethodPost, "/api/auth/register", tt.body))

			body := assertError(t, w, http.StatusBadRequest, model.ErrCodeValidation)
			if body["error"] != "Invalid request body" {
				t.Errorf("error = %v", body["error"])
			}
		})
	}
}

// --- POST /api/auth/login ---

func TestAuthHandler_Login_Success(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*auth.Result, error) {
			if email != "d@x.com" || password != "abcd" {
				t.Errorf("credentials = %q/%q", email, password)
			}
			return &auth.Result{Token: "t", User: sampleUser()}, nil
		},
	}
	w := httptest.NewRecorder()
	NewAuthHandler(svc).Login(w, jsonRequest(http.MethodPost, "/api/auth/login", `{"email":"d@x.com","password":"abcd"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := decodeBody(t, w); body["token"] != "t" {
		t.Errorf("token = %v", body["token"])
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*auth.Result, error) {
			return nil, model.NewInvalidCredentialsError()
		},
	}
	w := httptest.NewRecorder()
	NewAuthHandler(svc).Login(w, jsonRequest(http.MethodPost, "/api/auth/login", `{"email":"d@x.com","password":"nope"}`))

	body := assertError(t, w, http.StatusUnauthorized, model.ErrCodeInvalidCredentials)
	if body["error"] != "Invalid credentials" {
		t.Errorf("error = %v", body["error"])
	}
}

// --- GET /api/auth/me ---

func TestAuthHandler_Me_Success(t *testing.T) {
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, userID int64) (*model.User, error) {
			if userID != 1 {
				t.Errorf("userID = %d, want 1", userID)
			}
			return sampleUser(), nil
		},
	}
	w := httptest.NewRecorder()
	NewAuthHandler(svc).Me(w, withUserID(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), 1))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody(t, w)
	user, _ := body["user"].(map[string]any)
	if user["nick"] != "dz" {
		t.Errorf("user = %v", user)
	}
	if _, ok := user["paymentRef"]; ok {
		t.Error("client projection should not include paymentRef")
	}
}

func TestAuthHandler_Me_NoUserID_Returns401(t *testing.T) {
	w := httptest.NewRecorder()
	NewAuthHandler(&mockAuthService{}).Me(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	assertError(t, w, http.StatusUnauthorized, model.ErrCodeUnauthorized)
}

func TestAuthHandler_Me_UserGone_Returns404(t *testing.T) {
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, userID int64) (*model.User, error) {
			return nil, model.NewUserNotFoundError()
		},
	}
	w := httptest.NewRecorder()
	NewAuthHandler(svc).Me(w, withUserID(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), 9))

	body := assertError(t, w, http.StatusNotFound, model.ErrCodeUserNotFound)
	if body["error"] != "User not found" {
		t.Errorf("error = %v", body["error"])
	}
}

// --- POST /api/auth/forgot-password ---

// アカウントの有無やエラーにかかわらず常に成功を返すことを検証する。
func TestAuthHandler_ForgotPassword_AlwaysOK(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		svcErr error
	}{
		{"成功", `{"email":"d@x.com"}`, nil},
		{"送信失敗", `{"email":"d@x.com"}`, errors.New("smtp down")},
		{"壊れたボディ", `not json`, nil},
		{"空", `{}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				requestPasswordResetFn: func(ctx context.Context, email string) error {
					return tt.svcErr
				},
			}
			w := httptest.NewRecorder()
			NewAuthHandler(svc).ForgotPassword(w, jsonRequest(http.MethodPost, "/api/auth/forgot-password", tt.body))

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if body := decodeBody(t, w); body["ok"] != true {
				t.Errorf("ok = %v, want true", body["ok"])
			}
		})
	}
}

// --- POST /api/auth/reset-password ---

func TestAuthHandler_ResetPassword_Success(t *testing.T) {
	svc := &mockAuthService{
		resetPasswordFn: func(ctx context.Context, email, rawToken, newPassword string) error {
			if email != "d@x.com" || rawToken != "abc" || newPassword != "newpass" {
				t.Errorf("args = %q %q %q", email, rawToken, newPassword)
			}
			return nil
		},
	}
	w := httptest.NewRecorder()
	NewAuthHandler(svc).ResetPassword(w, jsonRequest(http.MethodPost, "/api/auth/reset-password",
		`{"email":"d@x.com","token":"abc","newPassword":"newpass"}`))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAuthHandler_ResetPassword_LinkErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"無効", model.NewInvalidLinkError(), model.ErrCodeInvalidLink},
		{"使用済み", model.NewLinkAlreadyUsedError(), model.ErrCodeAlreadyUsed},
		{"期限切れ", model.NewLinkExpiredError(), model.ErrCodeLinkExpired},
		{"短いパスワード", model.NewValidationError("Password must be at least 4 characters"), model.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				resetPasswordFn: func(ctx context.Context, email, rawToken, newPassword string) error {
					return tt.err
				},
			}
			w := httptest.NewRecorder()
			NewAuthHandler(svc).ResetPassword(w, jsonRequest(http.MethodPost, "/api/auth/reset-password",
				`{"email":"d@x.com","token":"abc","newPassword":"x"}`))

			assertError(t, w, http.StatusBadRequest, tt.wantCode)
		})
	}
}
