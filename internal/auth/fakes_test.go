package auth

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/tourneyreg/internal/model"
	"github.com/hitoshi/tourneyreg/internal/repository"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// memUserRepo はメールアドレスと電話番号の一意性を保つインメモリのUserRepository。
type memUserRepo struct {
	mu     sync.Mutex
	users  []*model.User
	nextID int64

	// 事前チェックをすり抜けた競合を再現するためのフック
	createErr error
	findErr   error
}

func (r *memUserRepo) FindByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, u := range r.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) FindByPhone(_ context.Context, phone string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Phone == phone {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) FindByEmailOrPhone(_ context.Context, email, phone string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, u := range r.users {
		if u.Email == email || u.Phone == phone {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, u := range r.users {
		if u.Email == user.Email || u.Phone == user.Phone {
			return repository.ErrDuplicate
		}
	}
	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = time.Now()
	c := *user
	r.users = append(r.users, &c)
	return nil
}

func (r *memUserRepo) UpdateFields(context.Context, int64, model.UserPatch) (*model.User, error) {
	return nil, nil
}

func (r *memUserRepo) SetPayment(context.Context, int64, bool, *time.Time, *string, bool) (*model.User, error) {
	return nil, nil
}

func (r *memUserRepo) ListAll(context.Context) ([]*model.User, error) { return nil, nil }

func (r *memUserRepo) DeleteAll(context.Context) error { return nil }

func (r *memUserRepo) setPasswordHash(id int64, hash string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			u.PasswordHash = hash
			return true
		}
	}
	return false
}

// memResetRepo はインメモリのPasswordResetRepository。ConsumeでmemUserRepoのハッシュを更新する。
type memResetRepo struct {
	mu     sync.Mutex
	resets []*model.PasswordReset
	users  *memUserRepo
}

func (r *memResetRepo) Create(_ context.Context, reset *model.PasswordReset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *reset
	r.resets = append(r.resets, &c)
	return nil
}

func (r *memResetRepo) FindLatest(_ context.Context, userID int64, tokenHash string) (*model.PasswordReset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *model.PasswordReset
	for _, rs := range r.resets {
		if rs.UserID == userID && rs.TokenHash == tokenHash {
			if latest == nil || !rs.CreatedAt.Before(latest.CreatedAt) {
				latest = rs
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	c := *latest
	return &c, nil
}

func (r *memResetRepo) Consume(_ context.Context, resetID string, userID int64, passwordHash string, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rs := range r.resets {
		if rs.ID == resetID {
			if rs.UsedAt != nil {
				return repository.ErrResetAlreadyUsed
			}
			t := usedAt
			rs.UsedAt = &t
			if !r.users.setPasswordHash(userID, passwordHash) {
				return repository.ErrNotFound
			}
			return nil
		}
	}
	return repository.ErrNotFound
}

type memAttestations struct {
	verified map[string]bool
	cleared  []string
}

func (m *memAttestations) Verified(_ context.Context, phone string) (bool, error) {
	return m.verified[phone], nil
}

func (m *memAttestations) Clear(_ context.Context, phone string) error {
	delete(m.verified, phone)
	m.cleared = append(m.cleared, phone)
	return nil
}

// plainHasher はテスト高速化のための可逆でないダミーハッシュ。
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (plainHasher) Verify(hash, password string) (bool, error) {
	return hash == "hashed:"+password, nil
}

type mockTokens struct {
	issueFn func(userID int64) (string, error)
}

func (m *mockTokens) IssueUserToken(userID int64) (string, error) {
	if m.issueFn != nil {
		return m.issueFn(userID)
	}
	return "token-for-user", nil
}

type identitySanitizer struct{}

func (identitySanitizer) Sanitize(raw string) string { return strings.TrimSpace(raw) }

type mockMailer struct {
	sendFn func(ctx context.Context, to, link string) error
	sent   []sentMail
}

type sentMail struct {
	to   string
	link string
}

func (m *mockMailer) SendPasswordReset(ctx context.Context, to, link string) error {
	m.sent = append(m.sent, sentMail{to: to, link: link})
	if m.sendFn != nil {
		return m.sendFn(ctx, to, link)
	}
	return nil
}

type mockEvents struct {
	events []string
}

func (m *mockEvents) RecordAuthEvent(event, result string) {
	m.events = append(m.events, event+":"+result)
}
