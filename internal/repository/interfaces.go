// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/tourneyreg/internal/model"
)

var (
	// ErrDuplicate は一意制約（email、phone）違反を示す。
	ErrDuplicate = errors.New("duplicate record")
	// ErrNotFound は更新対象のレコードが存在しないことを示す。
	ErrNotFound = errors.New("record not found")
	// ErrResetAlreadyUsed はパスワード再設定リクエストが既に消費されていることを示す。
	ErrResetAlreadyUsed = errors.New("password reset already used")
)

// UserRepository は参加者データの永続化インターフェース。
// Find系は見つからない場合にnil, nilを返す。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレス（正規化済み）でユーザーを取得する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByPhone は電話番号（E.164）でユーザーを取得する。
	FindByPhone(ctx context.Context, phone string) (*model.User, error)

	// FindByEmailOrPhone はメールアドレスまたは電話番号のいずれかが一致するユーザーを取得する。
	FindByEmailOrPhone(ctx context.Context, email, phone string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDと作成日時をuserに設定する。
	// 一意制約違反の場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateFields はnil以外のフィールドのみを更新し、更新後のユーザーを返す。
	// 対象が存在しない場合はErrNotFound、一意制約違反の場合はErrDuplicateを返す。
	UpdateFields(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error)

	// SetPayment は支払い状態を更新し、更新後のユーザーを返す。
	// setRefがtrueの場合のみpayment_refを更新する（refがnilならNULLにする）。
	SetPayment(ctx context.Context, id int64, paid bool, paidAt *time.Time, ref *string, setRef bool) (*model.User, error)

	// ListAll は全ユーザーを作成日時の降順で返す。
	ListAll(ctx context.Context) ([]*model.User, error)

	// DeleteAll は全ユーザーと関連データを削除し、IDの採番をリセットする。
	DeleteAll(ctx context.Context) error
}

// PasswordResetRepository はパスワード再設定リクエストの永続化インターフェース。
type PasswordResetRepository interface {
	// Create は再設定リクエストを作成する。
	Create(ctx context.Context, reset *model.PasswordReset) error

	// FindLatest はユーザーとトークンハッシュが一致する最新のリクエストを取得する。
	// 見つからない場合はnil, nilを返す。
	FindLatest(ctx context.Context, userID int64, tokenHash string) (*model.PasswordReset, error)

	// Consume はリクエストを使用済みにし、同一トランザクションでパスワードハッシュを更新する。
	// 既に使用済みの場合はErrResetAlreadyUsedを返し、パスワードは変更しない。
	Consume(ctx context.Context, resetID string, userID int64, passwordHash string, usedAt time.Time) error
}

// PhoneAttestationRepository はSMS確認済み電話番号の記録を扱うインターフェース。
// 記録は一定時間で失効する。
type PhoneAttestationRepository interface {
	// Record は電話番号を確認済みとして記録する。
	Record(ctx context.Context, phone string, ttl time.Duration) error

	// Verified は電話番号が有効な確認記録を持つかを返す。
	Verified(ctx context.Context, phone string) (bool, error)

	// Clear は電話番号の確認記録を削除する。
	Clear(ctx context.Context, phone string) error
}
