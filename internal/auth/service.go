// Package auth は参加者の登録、ログイン、パスワード再設定のユースケースを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/tourneyreg/internal/model"
	"github.com/hitoshi/tourneyreg/internal/phone"
	"github.com/hitoshi/tourneyreg/internal/repository"
	"github.com/hitoshi/tourneyreg/internal/security"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 4

// checkPasswordLength は新しいパスワードの長さを検証する。
// 上限はbcryptが扱えるバイト数。
func checkPasswordLength(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return model.NewValidationError(fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > security.MaxPasswordBytes {
		return model.NewValidationError(fmt.Sprintf("Password must be at most %d bytes", security.MaxPasswordBytes))
	}
	return nil
}

// TokenIssuer は参加者トークンを発行するインターフェース。
type TokenIssuer interface {
	IssueUserToken(userID int64) (string, error)
}

// Sanitizer は表示用テキストからHTMLを除去するインターフェース。
type Sanitizer interface {
	Sanitize(raw string) string
}

// AttestationStore は電話番号の確認記録を参照・削除するインターフェース。
type AttestationStore interface {
	Verified(ctx context.Context, phone string) (bool, error)
	Clear(ctx context.Context, phone string) error
}

// ResetMailer はパスワード再設定メールを送信するインターフェース。
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, to, link string) error
}

// EventRecorder は認証関連イベントを記録するインターフェース。
type EventRecorder interface {
	RecordAuthEvent(event, result string)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	ResetTokenTTL           time.Duration // 再設定リンクの有効期間
	AppBaseURL              string        // 再設定リンクのベースURL（フロントエンド）
	RequirePhoneAttestation bool          // 登録時にSMS確認記録を必須とするか
}

// Deps は認証サービスの依存関係。
type Deps struct {
	Users        repository.UserRepository
	Resets       repository.PasswordResetRepository
	Attestations AttestationStore
	Hasher       security.PasswordHasher
	Tokens       TokenIssuer
	Sanitizer    Sanitizer
	Mailer       ResetMailer
	Events       EventRecorder // nil可
	Logger       *slog.Logger
}

// Service は参加者認証に関するビジネスロジックを提供する。
type Service struct {
	deps   Deps
	config ServiceConfig
	now    func() time.Time
	newID  func() string
}

// NewService はServiceを生成する。
func NewService(deps Deps, config ServiceConfig) *Service {
	return &Service{
		deps:   deps,
		config: config,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// RegisterInput は登録リクエストの入力値。
type RegisterInput struct {
	FirstName  string
	Nick       string
	TeamName   string
	Email      string
	Phone      string
	Tournament string
	Password   string
}

// Result はトークンとユーザーの組。
type Result struct {
	Token string
	User  *model.User
}

// Register は新しい参加者を登録し、トークンを発行する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	user, err := s.buildCandidate(in)
	if err != nil {
		return nil, err
	}

	existing, err := s.deps.Users.FindByEmailOrPhone(ctx, user.Email, user.Phone)
	if err != nil {
		s.record("register", "error")
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		s.record("register", "conflict")
		return nil, model.NewUserExistsError()
	}

	if s.config.RequirePhoneAttestation {
		ok, err := s.deps.Attestations.Verified(ctx, user.Phone)
		if err != nil {
			s.record("register", "error")
			return nil, fmt.Errorf("failed to check phone attestation: %w", err)
		}
		if !ok {
			s.record("register", "phone_not_verified")
			return nil, model.NewPhoneNotVerifiedError()
		}
	}

	hash, err := s.deps.Hasher.Hash(in.Password)
	if err != nil {
		s.record("register", "error")
		return nil, err
	}
	user.PasswordHash = hash

	// 事前チェックとINSERTの間に競合した場合は一意制約が最終判定となる
	if err := s.deps.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.record("register", "conflict")
			return nil, model.NewUserExistsError()
		}
		s.record("register", "error")
		return nil, err
	}

	if s.config.RequirePhoneAttestation {
		if err := s.deps.Attestations.Clear(ctx, user.Phone); err != nil {
			s.deps.Logger.WarnContext(ctx, "failed to clear phone attestation",
				slog.Int64("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	token, err := s.deps.Tokens.IssueUserToken(user.ID)
	if err != nil {
		s.record("register", "error")
		return nil, err
	}

	s.record("register", "success")
	s.deps.Logger.InfoContext(ctx, "user registered", slog.Int64("user_id", user.ID))
	return &Result{Token: token, User: user}, nil
}

// buildCandidate は入力値を検証・正規化して登録候補のユーザーを組み立てる。
func (s *Service) buildCandidate(in RegisterInput) (*model.User, error) {
	user := &model.User{
		FirstName:     s.deps.Sanitizer.Sanitize(in.FirstName),
		Nick:          s.deps.Sanitizer.Sanitize(in.Nick),
		TeamName:      s.deps.Sanitizer.Sanitize(in.TeamName),
		Tournament:    s.deps.Sanitizer.Sanitize(in.Tournament),
		Email:         NormalizeEmail(in.Email),
		PhoneVerified: true,
	}

	if user.FirstName == "" || user.Nick == "" || user.TeamName == "" || user.Tournament == "" ||
		user.Email == "" || strings.TrimSpace(in.Phone) == "" || strings.TrimSpace(in.Password) == "" {
		return nil, model.NewValidationError("Missing required fields")
	}
	if !ValidEmail(user.Email) {
		return nil, model.NewValidationError("Invalid email")
	}
	if err := checkPasswordLength(in.Password); err != nil {
		return nil, err
	}

	e164, err := phone.Normalize(in.Phone)
	if err != nil {
		return nil, model.NewValidationError("Invalid phone number")
	}
	user.Phone = e164

	return user, nil
}

// Login はメールアドレスとパスワードで認証し、トークンを発行する。
// メール未登録とパスワード不一致は同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, model.NewValidationError("Email and password required")
	}

	user, err := s.deps.Users.FindByEmail(ctx, email)
	if err != nil {
		s.record("login", "error")
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		s.record("login", "invalid_credentials")
		return nil, model.NewInvalidCredentialsError()
	}

	ok, err := s.deps.Hasher.Verify(user.PasswordHash, password)
	if err != nil {
		s.record("login", "error")
		return nil, err
	}
	if !ok {
		s.record("login", "invalid_credentials")
		return nil, model.NewInvalidCredentialsError()
	}

	token, err := s.deps.Tokens.IssueUserToken(user.ID)
	if err != nil {
		s.record("login", "error")
		return nil, err
	}

	s.record("login", "success")
	return &Result{Token: token, User: user}, nil
}

// GetCurrentUser はトークンのsubjectに対応するユーザーを返す。
func (s *Service) GetCurrentUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.deps.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// RequestPasswordReset は登録済みメールアドレスに再設定リンクを送信する。
// 未登録の場合は何もせずnilを返す。呼び出し側はエラーの有無にかかわらず成功を返すこと。
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if !ValidEmail(email) {
		s.record("password_reset_request", "invalid_email")
		return nil
	}

	user, err := s.deps.Users.FindByEmail(ctx, email)
	if err != nil {
		s.record("password_reset_request", "error")
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		s.record("password_reset_request", "unknown_email")
		return nil
	}

	raw, err := security.NewResetToken()
	if err != nil {
		s.record("password_reset_request", "error")
		return err
	}

	now := s.now()
	reset := &model.PasswordReset{
		ID:        s.newID(),
		UserID:    user.ID,
		TokenHash: security.HashResetToken(raw),
		ExpiresAt: now.Add(s.config.ResetTokenTTL),
		CreatedAt: now,
	}
	if err := s.deps.Resets.Create(ctx, reset); err != nil {
		s.record("password_reset_request", "error")
		return err
	}

	if err := s.deps.Mailer.SendPasswordReset(ctx, user.Email, s.resetLink(user.Email, raw)); err != nil {
		s.record("password_reset_request", "mail_error")
		return fmt.Errorf("failed to deliver reset mail: %w", err)
	}

	s.record("password_reset_request", "success")
	s.deps.Logger.InfoContext(ctx, "password reset requested", slog.Int64("user_id", user.ID))
	return nil
}

// resetLink はフロントエンドの再設定ページへのリンクを組み立てる。
func (s *Service) resetLink(email, token string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)
	return strings.TrimRight(s.config.AppBaseURL, "/") + "/reset-password.html?" + q.Encode()
}

// ResetPassword は再設定トークンを検証し、新しいパスワードを設定する。
// 成功してもトークンは発行しない。
func (s *Service) ResetPassword(ctx context.Context, email, rawToken, newPassword string) error {
	email = NormalizeEmail(email)
	rawToken = strings.TrimSpace(rawToken)
	if email == "" || rawToken == "" || newPassword == "" {
		return model.NewValidationError("Email, token and newPassword required")
	}
	if err := checkPasswordLength(newPassword); err != nil {
		return err
	}

	user, err := s.deps.Users.FindByEmail(ctx, email)
	if err != nil {
		s.record("password_reset", "error")
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		s.record("password_reset", "invalid_link")
		return model.NewInvalidLinkError()
	}

	reset, err := s.deps.Resets.FindLatest(ctx, user.ID, security.HashResetToken(rawToken))
	if err != nil {
		s.record("password_reset", "error")
		return err
	}
	if reset == nil {
		s.record("password_reset", "invalid_link")
		return model.NewInvalidLinkError()
	}
	if reset.IsUsed() {
		s.record("password_reset", "already_used")
		return model.NewLinkAlreadyUsedError()
	}
	now := s.now()
	if reset.IsExpired(now) {
		s.record("password_reset", "expired")
		return model.NewLinkExpiredError()
	}

	hash, err := s.deps.Hasher.Hash(newPassword)
	if err != nil {
		s.record("password_reset", "error")
		return err
	}

	if err := s.deps.Resets.Consume(ctx, reset.ID, user.ID, hash, now); err != nil {
		if errors.Is(err, repository.ErrResetAlreadyUsed) {
			s.record("password_reset", "already_used")
			return model.NewLinkAlreadyUsedError()
		}
		s.record("password_reset", "error")
		return err
	}

	s.record("password_reset", "success")
	s.deps.Logger.InfoContext(ctx, "password reset completed", slog.Int64("user_id", user.ID))
	return nil
}

func (s *Service) record(event, result string) {
	if s.deps.Events != nil {
		s.deps.Events.RecordAuthEvent(event, result)
	}
}

// NormalizeEmail はメールアドレスを前後空白除去・小文字化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail は表示名を含まない単一のメールアドレスかどうかを判定する。
func ValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email
}
