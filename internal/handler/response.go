package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/tourneyreg/internal/middleware"
	"github.com/hitoshi/tourneyreg/internal/model"
)

// maxBodyBytes はJSONリクエストボディの上限。
const maxBodyBytes = 64 << 10

// userResponse はクライアントに返すユーザー表現。パスワードハッシュは含めない。
type userResponse struct {
	ID            int64     `json:"id"`
	FirstName     string    `json:"firstName"`
	Nick          string    `json:"nick"`
	TeamName      string    `json:"teamName"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Tournament    string    `json:"tournament"`
	PhoneVerified bool      `json:"phoneVerified"`
	Paid          bool      `json:"paid"`
	CreatedAt     time.Time `json:"createdAt"`
}

// adminUserResponse は管理画面向けのユーザー表現。支払い情報を追加で含む。
type adminUserResponse struct {
	userResponse
	PaidAt     *time.Time `json:"paidAt"`
	PaymentRef *string    `json:"paymentRef"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:            u.ID,
		FirstName:     u.FirstName,
		Nick:          u.Nick,
		TeamName:      u.TeamName,
		Email:         u.Email,
		Phone:         u.Phone,
		Tournament:    u.Tournament,
		PhoneVerified: u.PhoneVerified,
		Paid:          u.Paid,
		CreatedAt:     u.CreatedAt,
	}
}

func toAdminUserResponse(u *model.User) adminUserResponse {
	return adminUserResponse{
		userResponse: toUserResponse(u),
		PaidAt:       u.PaidAt,
		PaymentRef:   u.PaymentRef,
	}
}

// okResponse は成功のみを通知するレスポンス。
type okResponse struct {
	OK bool `json:"ok"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディを厳密にデコードする。
// 未知のフィールド、複数のJSON値、上限超過はいずれもVALIDATION_ERRORとする。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return model.NewValidationError("Invalid request body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return model.NewValidationError("Invalid request body")
	}
	return nil
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// APIError以外は内部エラーとし、fallbackメッセージのみをクライアントに返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	slog.Error("internal server error",
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:    model.ErrCodeInternal,
		Message: fallback,
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorのコードからHTTPステータスコードを決定する。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation,
		model.ErrCodeInvalidCode,
		model.ErrCodeInvalidLink,
		model.ErrCodeAlreadyUsed,
		model.ErrCodeLinkExpired,
		model.ErrCodePhoneNotVerified,
		model.ErrCodeNothingToUpdate:
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials,
		model.ErrCodeUnauthorized,
		model.ErrCodeTokenExpired:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeNotFound,
		model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeConflict:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
