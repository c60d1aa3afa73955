// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError はクライアントに返却するエラーを表す。
// Messageはそのままレスポンスのerrorフィールドに使われる。
type APIError struct {
	Code    string // エラーコード
	Message string // エラーメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeTokenExpired       = "TOKEN_EXPIRED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeUpstreamFailure    = "UPSTREAM_FAILURE"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeInvalidCode        = "INVALID_CODE"
	ErrCodePhoneNotVerified   = "PHONE_NOT_VERIFIED"
	ErrCodeInvalidLink        = "INVALID_LINK"
	ErrCodeAlreadyUsed        = "ALREADY_USED"
	ErrCodeLinkExpired        = "LINK_EXPIRED"
	ErrCodeNothingToUpdate    = "NOTHING_TO_UPDATE"
	ErrCodeRateLimited        = "RATE_LIMITED"
)

// NewValidationError は入力値不正エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{Code: ErrCodeValidation, Message: message}
}

// NewUserExistsError はメールアドレスまたは電話番号が登録済みの場合のエラーを生成する。
// フロントエンドは "already exists" を含むメッセージでログイン画面へ誘導する。
func NewUserExistsError() *APIError {
	return &APIError{Code: ErrCodeConflict, Message: "User already exists (email/phone)"}
}

// NewEmailTakenError は管理者編集でメールアドレスが他ユーザーと衝突した場合のエラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{Code: ErrCodeConflict, Message: "Email already in use"}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メール未登録とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{Code: ErrCodeInvalidCredentials, Message: "Invalid credentials"}
}

// NewUnauthorizedError は認証が必要な場合のエラーを生成する。
func NewUnauthorizedError(message string) *APIError {
	return &APIError{Code: ErrCodeUnauthorized, Message: message}
}

// NewTokenExpiredError はトークンの有効期限切れエラーを生成する。
func NewTokenExpiredError() *APIError {
	return &APIError{Code: ErrCodeTokenExpired, Message: "Token expired"}
}

// NewForbiddenError はロール不足のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{Code: ErrCodeForbidden, Message: "Forbidden"}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{Code: ErrCodeUserNotFound, Message: "User not found"}
}

// NewUpstreamError は外部プロバイダー（SMS、メール）の失敗エラーを生成する。
func NewUpstreamError(message string) *APIError {
	return &APIError{Code: ErrCodeUpstreamFailure, Message: message}
}

// NewInvalidCodeError はSMSコード不一致のエラーを生成する。
func NewInvalidCodeError() *APIError {
	return &APIError{Code: ErrCodeInvalidCode, Message: "Invalid code"}
}

// NewPhoneNotVerifiedError は電話番号の確認が済んでいない場合のエラーを生成する。
func NewPhoneNotVerifiedError() *APIError {
	return &APIError{Code: ErrCodePhoneNotVerified, Message: "Phone not verified"}
}

// NewInvalidLinkError は再設定リンクが無効な場合のエラーを生成する。
func NewInvalidLinkError() *APIError {
	return &APIError{Code: ErrCodeInvalidLink, Message: "Invalid or expired link"}
}

// NewLinkAlreadyUsedError は再設定リンクが使用済みの場合のエラーを生成する。
func NewLinkAlreadyUsedError() *APIError {
	return &APIError{Code: ErrCodeAlreadyUsed, Message: "Reset link already used"}
}

// NewLinkExpiredError は再設定リンクの有効期限切れエラーを生成する。
func NewLinkExpiredError() *APIError {
	return &APIError{Code: ErrCodeLinkExpired, Message: "Reset link expired"}
}

// NewNothingToUpdateError は更新対象フィールドがない場合のエラーを生成する。
func NewNothingToUpdateError() *APIError {
	return &APIError{Code: ErrCodeNothingToUpdate, Message: "Nothing to update"}
}

// NewRateLimitedError はレート制限超過時のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{Code: ErrCodeRateLimited, Message: "Too many requests"}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{Code: ErrCodeInternal, Message: "Server error"}
}
