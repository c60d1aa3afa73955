package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// resetTokenBytes はパスワード再設定トークンの乱数バイト長。
const resetTokenBytes = 32

// NewResetToken はパスワード再設定用のランダムトークン（16進64文字）を生成する。
func NewResetToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashResetToken はトークンのSHA-256ハッシュを16進文字列で返す。
// データベースにはこのハッシュのみを保存する。
func HashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
