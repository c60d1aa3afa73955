package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tourneyreg/internal/admin"
	"github.com/hitoshi/tourneyreg/internal/model"
)

// AdminServiceInterface は管理者ハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	Login(ctx context.Context, login, password string) (string, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	UpdateUser(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error)
	SetPayment(ctx context.Context, id int64, paid bool, ref *string) (*model.User, error)
	ClearUsers(ctx context.Context) error
}

// AdminHandler は管理者向けのHTTPハンドラー。
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

type adminLoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type adminLoginResponse struct {
	OK    bool   `json:"ok"`
	Token string `json:"token"`
}

type adminUsersResponse struct {
	OK    bool                `json:"ok"`
	Users []adminUserResponse `json:"users"`
}

type adminUserEnvelope struct {
	OK   bool              `json:"ok"`
	User adminUserResponse `json:"user"`
}

// フィールドの省略と空文字列を区別するためポインタで受ける。
type updateUserRequest struct {
	Nick     *string `json:"nick"`
	TeamName *string `json:"teamName"`
	Email    *string `json:"email"`
}

type paymentRequest struct {
	Paid       *bool   `json:"paid"`
	PaymentRef *string `json:"paymentRef"`
}

// Login は管理者ログインを行い、管理者トークンを返す。
// POST /api/admin/login
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err, "Admin login failed")
		return
	}

	tok, err := h.service.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		handleServiceError(w, r, err, "Admin login failed")
		return
	}

	writeJSON(w, http.StatusOK, adminLoginResponse{OK: true, Token: tok})
}

// ListUsers は登録済みユーザーを作成日時の降順で返す。
// GET /api/admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		handleServiceError(w, r, err, "Failed to load users")
		return
	}

	resp := adminUsersResponse{OK: true, Users: make([]adminUserResponse, 0, len(users))}
	for _, u := range users {
		resp.Users = append(resp.Users, toAdminUserResponse(u))
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateUser はニックネーム、チーム名、メールアドレスを部分更新する。
// PATCH /api/admin/users/{id}
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := admin.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err, "Update failed")
		return
	}

	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err, "Update failed")
		return
	}

	user, err := h.service.UpdateUser(r.Context(), id, model.UserPatch{
		Nick:     req.Nick,
		TeamName: req.TeamName,
		Email:    req.Email,
	})
	if err != nil {
		handleServiceError(w, r, err, "Update failed")
		return
	}

	writeJSON(w, http.StatusOK, adminUserEnvelope{OK: true, User: toAdminUserResponse(user)})
}

// SetPayment は支払い状態を切り替える。
// POST /api/admin/user/{id}/payment
func (h *AdminHandler) SetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := admin.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err, "Payment update failed")
		return
	}

	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err, "Payment update failed")
		return
	}
	if req.Paid == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("paid required"))
		return
	}

	user, err := h.service.SetPayment(r.Context(), id, *req.Paid, req.PaymentRef)
	if err != nil {
		handleServiceError(w, r, err, "Payment update failed")
		return
	}

	writeJSON(w, http.StatusOK, adminUserEnvelope{OK: true, User: toAdminUserResponse(user)})
}

// ClearUsers は全ユーザーを削除し、ID採番をリセットする。
// POST /api/admin/clear-users
func (h *AdminHandler) ClearUsers(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearUsers(r.Context()); err != nil {
		handleServiceError(w, r, err, "Clear failed")
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
