// Package token はJWTによるアクセストークンの発行と検証を提供する。
//
// 参加者トークンはsubjectにユーザーIDを持ち、管理者トークンはrole="admin"を持つ。
// 署名はHS256のみを受け付ける。
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/tourneyreg/internal/model"
)

var (
	// ErrTokenInvalid は署名不正・形式不正などで検証に失敗したことを示す。
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired はトークンの有効期限切れを示す。
	ErrTokenExpired = errors.New("token expired")
)

// Claims はトークンに含まれるクレーム。
type Claims struct {
	jwt.RegisteredClaims
	Role model.Role `json:"role,omitempty"`
}

// IsAdmin は管理者トークンかどうかを返す。
func (c *Claims) IsAdmin() bool {
	return c.Role == model.RoleAdmin
}

// UserID はsubjectを数値のユーザーIDとして返す。
// 数値でない場合はokがfalseになる。
func (c *Claims) UserID() (int64, bool) {
	if c.Subject == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Issuer はトークンの発行と検証を行う。
type Issuer struct {
	secret   []byte
	userTTL  time.Duration
	adminTTL time.Duration
	now      func() time.Time
}

// NewIssuer はIssuerを生成する。nowがnilの場合はtime.Nowを使用する。
func NewIssuer(secret string, userTTL, adminTTL time.Duration, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{
		secret:   []byte(secret),
		userTTL:  userTTL,
		adminTTL: adminTTL,
		now:      now,
	}
}

// IssueUserToken は参加者用トークンを発行する。
func (i *Issuer) IssueUserToken(userID int64) (string, error) {
	return i.sign(Claims{
		RegisteredClaims: i.registered(strconv.FormatInt(userID, 10), i.userTTL),
	})
}

// IssueAdminToken は管理者用トークンを発行する。
func (i *Issuer) IssueAdminToken() (string, error) {
	return i.sign(Claims{
		RegisteredClaims: i.registered("", i.adminTTL),
		Role:             model.RoleAdmin,
	})
}

// Verify はトークンを検証してクレームを返す。
// 期限切れの場合はErrTokenExpired、それ以外の失敗はErrTokenInvalidを返す。
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !tok.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (i *Issuer) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := i.now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (i *Issuer) sign(claims Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return s, nil
}
