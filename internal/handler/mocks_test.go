package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tourneyreg/internal/auth"
	"github.com/hitoshi/tourneyreg/internal/middleware"
	"github.com/hitoshi/tourneyreg/internal/model"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	registerFn             func(ctx context.Context, in auth.RegisterInput) (*auth.Result, error)
	loginFn                func(ctx context.Context, email, password string) (*auth.Result, error)
	getCurrentUserFn       func(ctx context.Context, userID int64) (*model.User, error)
	requestPasswordResetFn func(ctx context.Context, email string) error
	resetPasswordFn        func(ctx context.Context, email, rawToken, newPassword string) error
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*auth.Result, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.Result, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, userID int64) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockAuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if m.requestPasswordResetFn != nil {
		return m.requestPasswordResetFn(ctx, email)
	}
	return nil
}

func (m *mockAuthService) ResetPassword(ctx context.Context, email, rawToken, newPassword string) error {
	if m.resetPasswordFn != nil {
		return m.resetPasswordFn(ctx, email, rawToken, newPassword)
	}
	return nil
}

// mockSMSService はSMSServiceInterfaceのモック実装。
type mockSMSService struct {
	sendCodeFn   func(ctx context.Context, rawPhone string) error
	verifyCodeFn func(ctx context.Context, rawPhone, code string) error
}

func (m *mockSMSService) SendCode(ctx context.Context, rawPhone string) error {
	if m.sendCodeFn != nil {
		return m.sendCodeFn(ctx, rawPhone)
	}
	return nil
}

func (m *mockSMSService) VerifyCode(ctx context.Context, rawPhone, code string) error {
	if m.verifyCodeFn != nil {
		return m.verifyCodeFn(ctx, rawPhone, code)
	}
	return nil
}

// mockAdminService はAdminServiceInterfaceのモック実装。
type mockAdminService struct {
	loginFn      func(ctx context.Context, login, password string) (string, error)
	listUsersFn  func(ctx context.Context) ([]*model.User, error)
	updateUserFn func(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error)
	setPaymentFn func(ctx context.Context, id int64, paid bool, ref *string) (*model.User, error)
	clearUsersFn func(ctx context.Context) error
}

func (m *mockAdminService) Login(ctx context.Context, login, password string) (string, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, login, password)
	}
	return "", nil
}

func (m *mockAdminService) ListUsers(ctx context.Context) ([]*model.User, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx)
	}
	return nil, nil
}

func (m *mockAdminService) UpdateUser(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error) {
	if m.updateUserFn != nil {
		return m.updateUserFn(ctx, id, patch)
	}
	return nil, nil
}

func (m *mockAdminService) SetPayment(ctx context.Context, id int64, paid bool, ref *string) (*model.User, error) {
	if m.setPaymentFn != nil {
		return m.setPaymentFn(ctx, id, paid, ref)
	}
	return nil, nil
}

func (m *mockAdminService) ClearUsers(ctx context.Context) error {
	if m.clearUsersFn != nil {
		return m.clearUsersFn(ctx)
	}
	return nil
}

// --- ヘルパー ---

func sampleUser() *model.User {
	return &model.User{
		ID:            1,
		FirstName:     "Dana",
		Nick:          "dz",
		TeamName:      "Nova",
		Email:         "d@x.com",
		Phone:         "+972501234567",
		Tournament:    "CS2-Open",
		PasswordHash:  "$2a$10$secret-hash",
		PhoneVerified: true,
		CreatedAt:     time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

// jsonRequest はJSONボディ付きのリクエストを生成する。
func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withUserID はテスト用に認証済みユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID int64) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeBody はレスポンスボディを汎用マップにデコードする。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v\nraw: %s", err, w.Body.String())
	}
	return body
}

// assertError はエラーレスポンスのステータス・コードを検証する。
func assertError(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantCode string) map[string]any {
	t.Helper()
	if w.Code != wantStatus {
		t.Errorf("status = %d, want %d (body=%s)", w.Code, wantStatus, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["ok"] != false {
		t.Errorf("ok = %v, want false", body["ok"])
	}
	if body["code"] != wantCode {
		t.Errorf("code = %v, want %q", body["code"], wantCode)
	}
	return body
}
