package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes はbcryptが受け付けるパスワードの最大バイト数。
const MaxPasswordBytes = 72

// PasswordHasher はパスワードのハッシュ化と照合を行うインターフェース。
type PasswordHasher interface {
	// Hash は平文パスワードからハッシュを生成する。
	Hash(password string) (string, error)
	// Verify はハッシュと平文パスワードが一致するかを返す。
	// 一致しない場合はfalse、nilを返す。
	Verify(hash, password string) (bool, error)
}

// BcryptHasher はbcryptによるPasswordHasherの実装。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher はBcryptHasherを生成する。
// costがbcryptの許容範囲外の場合はbcrypt.DefaultCostを使用する。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash は平文パスワードからbcryptハッシュを生成する。
func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify はbcryptハッシュと平文パスワードを照合する。
func (h *BcryptHasher) Verify(hash, password string) (bool, error) {
	// 上限を超えるパスワードで登録されたハッシュは存在しない
	if len(password) > MaxPasswordBytes {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("failed to verify password: %w", err)
}

// compile-time interface check
var _ PasswordHasher = (*BcryptHasher)(nil)
