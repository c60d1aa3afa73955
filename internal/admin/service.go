// Package admin は運営者向けの認証とユーザー管理のユースケースを提供する。
// 運営者は参加者テーブルとは別の静的な資格情報で認証する。
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/tourneyreg/internal/auth"
	"github.com/hitoshi/tourneyreg/internal/model"
	"github.com/hitoshi/tourneyreg/internal/repository"
)

// TokenIssuer は管理者トークンを発行するインターフェース。
type TokenIssuer interface {
	IssueAdminToken() (string, error)
}

// Sanitizer は表示用テキストからHTMLを除去するインターフェース。
type Sanitizer interface {
	Sanitize(raw string) string
}

// EventRecorder は認証関連イベントを記録するインターフェース。
type EventRecorder interface {
	RecordAuthEvent(event, result string)
}

// Credentials は運営者の静的な資格情報。
type Credentials struct {
	Login    string
	Password string
}

// Service は管理者向けのビジネスロジックを提供する。
type Service struct {
	users     repository.UserRepository
	tokens    TokenIssuer
	sanitizer Sanitizer
	creds     Credentials
	events    EventRecorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceを生成する。eventsはnilでもよい。
func NewService(
	users repository.UserRepository,
	tokens TokenIssuer,
	sanitizer Sanitizer,
	creds Credentials,
	events EventRecorder,
	logger *slog.Logger,
) *Service {
	return &Service{
		users:     users,
		tokens:    tokens,
		sanitizer: sanitizer,
		creds:     creds,
		events:    events,
		logger:    logger,
		now:       time.Now,
	}
}

// Login は資格情報を定数時間で比較し、一致すれば管理者トークンを発行する。
func (s *Service) Login(ctx context.Context, login, password string) (string, error) {
	if login == "" || password == "" {
		return "", model.NewValidationError("Login and password required")
	}

	// 両方を必ず比較して、どちらが不一致かを処理時間から推測させない
	loginOK := subtle.ConstantTimeCompare([]byte(login), []byte(s.creds.Login))
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.creds.Password))
	if loginOK&passOK != 1 {
		s.record("admin_login", "invalid_credentials")
		s.logger.WarnContext(ctx, "admin login failed")
		return "", model.NewInvalidCredentialsError()
	}

	token, err := s.tokens.IssueAdminToken()
	if err != nil {
		s.record("admin_login", "error")
		return "", err
	}

	s.record("admin_login", "success")
	s.logger.InfoContext(ctx, "admin logged in")
	return token, nil
}

// ListUsers は全参加者を登録日時の新しい順に返す。
func (s *Service) ListUsers(ctx context.Context) ([]*model.User, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// UpdateUser はニックネーム、チーム名、メールアドレスを部分更新する。
// メールアドレスの重複判定は自分自身を除外して行う。
func (s *Service) UpdateUser(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error) {
	if patch.IsEmpty() {
		return nil, model.NewNothingToUpdateError()
	}

	clean := model.UserPatch{}
	if patch.Nick != nil {
		v := s.sanitizer.Sanitize(*patch.Nick)
		if v == "" {
			return nil, model.NewValidationError("Nick must not be empty")
		}
		clean.Nick = &v
	}
	if patch.TeamName != nil {
		v := s.sanitizer.Sanitize(*patch.TeamName)
		if v == "" {
			return nil, model.NewValidationError("Team name must not be empty")
		}
		clean.TeamName = &v
	}
	if patch.Email != nil {
		v := auth.NormalizeEmail(*patch.Email)
		if !auth.ValidEmail(v) {
			return nil, model.NewValidationError("Invalid email")
		}
		other, err := s.users.FindByEmail(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("failed to check email: %w", err)
		}
		if other != nil && other.ID != id {
			return nil, model.NewEmailTakenError()
		}
		clean.Email = &v
	}

	user, err := s.users.UpdateFields(ctx, id, clean)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, model.NewUserNotFoundError()
		case errors.Is(err, repository.ErrDuplicate):
			return nil, model.NewEmailTakenError()
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "user updated by admin", slog.Int64("user_id", id))
	return user, nil
}

// SetPayment は支払い状態を切り替える。paid=trueで支払日時を現在時刻に、falseでnullにする。
// refがnilの場合は参照番号を変更しない。空文字列は参照番号を消去する。
func (s *Service) SetPayment(ctx context.Context, id int64, paid bool, ref *string) (*model.User, error) {
	var paidAt *time.Time
	if paid {
		t := s.now()
		paidAt = &t
	}

	var cleanRef *string
	setRef := ref != nil
	if setRef {
		v := s.sanitizer.Sanitize(*ref)
		if v != "" {
			cleanRef = &v
		}
	}

	user, err := s.users.SetPayment(ctx, id, paid, paidAt, cleanRef, setRef)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "payment status changed",
		slog.Int64("user_id", id),
		slog.Bool("paid", paid),
	)
	return user, nil
}

// ClearUsers は全参加者を削除し、IDの採番をリセットする。
func (s *Service) ClearUsers(ctx context.Context) error {
	if err := s.users.DeleteAll(ctx); err != nil {
		return err
	}
	s.logger.WarnContext(ctx, "all users cleared by admin")
	return nil
}

func (s *Service) record(event, result string) {
	if s.events != nil {
		s.events.RecordAuthEvent(event, result)
	}
}

// ParseUserID はURLパラメータのユーザーIDを解析する。
func ParseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewValidationError("Invalid user id")
	}
	return id, nil
}
