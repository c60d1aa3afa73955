// Package model はドメインモデルを定義する。
package model

import "time"

// User は大会に登録した参加者を表す。
// PasswordHashはクライアントへ返却してはならない。
type User struct {
	ID            int64
	FirstName     string
	Nick          string
	TeamName      string
	Email         string // trim + 小文字化済み
	Phone         string // E.164形式
	Tournament    string
	PasswordHash  string
	PhoneVerified bool
	Paid          bool
	PaidAt        *time.Time // Paidがtrueの場合のみ非nil
	PaymentRef    *string
	CreatedAt     time.Time
}

// UserPatch は管理者によるユーザー部分更新の内容を表す。
// nilのフィールドは変更しない。
type UserPatch struct {
	Nick     *string
	TeamName *string
	Email    *string
}

// IsEmpty は更新対象のフィールドが1つもない場合にtrueを返す。
func (p UserPatch) IsEmpty() bool {
	return p.Nick == nil && p.TeamName == nil && p.Email == nil
}

// PasswordReset はパスワード再設定の一回限りの許可を表す。
// 生のトークンは保存せず、SHA-256ハッシュのみを保持する。
type PasswordReset struct {
	ID        string
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// IsUsed は再設定リクエストが消費済みかどうかを返す。
func (r *PasswordReset) IsUsed() bool {
	return r.UsedAt != nil
}

// IsExpired は指定時刻において有効期限を過ぎているかどうかを返す。
func (r *PasswordReset) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Role はトークンに付与されるロールを表す。
type Role string

const (
	// RoleAdmin は管理者トークンのロール。
	RoleAdmin Role = "admin"
)
