// Package phone は電話番号の正規化を提供する。
package phone

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// ErrInvalidPhone は電話番号として解釈できないことを示す。
var ErrInvalidPhone = errors.New("invalid phone number")

// Normalize は国際形式（+で始まる）の電話番号をE.164形式に正規化する。
// 国番号を推測しないため、+のない番号は拒否する。
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "+") {
		return "", ErrInvalidPhone
	}

	num, err := phonenumbers.Parse(s, "")
	if err != nil {
		return "", ErrInvalidPhone
	}
	// 番号帯の割当データには依存せず、国番号と桁数だけを検証する
	if !phonenumbers.IsPossibleNumber(num) {
		return "", ErrInvalidPhone
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}
