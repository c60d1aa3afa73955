package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/tourneyreg/internal/model"
)

// userColumns はusersテーブルのSELECT/RETURNING対象カラム。scanUserの順序と一致させること。
const userColumns = `id, first_name, nick, team_name, email, phone, tournament,
	password_hash, phone_verified, paid, paid_at, payment_ref, created_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindByPhone は電話番号でユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByPhone(ctx context.Context, phone string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE phone = $1`, phone,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by phone: %w", err)
	}
	return user, nil
}

// FindByEmailOrPhone はメールアドレスまたは電話番号が一致するユーザーを取得する。
// 見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmailOrPhone(ctx context.Context, email, phone string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 OR phone = $2 LIMIT 1`, email, phone,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email or phone: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。採番されたIDと作成日時をuserに設定する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (first_name, nick, team_name, email, phone, tournament, password_hash, phone_verified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		user.FirstName, user.Nick, user.TeamName, user.Email, user.Phone,
		user.Tournament, user.PasswordHash, user.PhoneVerified,
	).Scan(&user.ID, &user.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateFields はnil以外のフィールドのみを更新する。
func (r *PostgresUserRepo) UpdateFields(ctx context.Context, id int64, patch model.UserPatch) (*model.User, error) {
	if patch.IsEmpty() {
		return nil, fmt.Errorf("update fields: empty patch")
	}

	sets := make([]string, 0, 3)
	args := []any{id}
	add := func(column string, v *string) {
		if v == nil {
			return
		}
		args = append(args, *v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("nick", patch.Nick)
	add("team_name", patch.TeamName)
	add("email", patch.Email)

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// SetPayment は支払い状態を更新する。
func (r *PostgresUserRepo) SetPayment(ctx context.Context, id int64, paid bool, paidAt *time.Time, ref *string, setRef bool) (*model.User, error) {
	var row *sql.Row
	if setRef {
		row = r.db.QueryRowContext(ctx,
			`UPDATE users SET paid = $2, paid_at = $3, payment_ref = $4 WHERE id = $1 RETURNING `+userColumns,
			id, paid, nullTime(paidAt), nullString(ref),
		)
	} else {
		row = r.db.QueryRowContext(ctx,
			`UPDATE users SET paid = $2, paid_at = $3 WHERE id = $1 RETURNING `+userColumns,
			id, paid, nullTime(paidAt),
		)
	}

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set payment: %w", err)
	}
	return user, nil
}

// ListAll は全ユーザーを作成日時の降順で返す。
func (r *PostgresUserRepo) ListAll(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// DeleteAll は全ユーザーと再設定リクエストを削除し、IDの採番をリセットする。
func (r *PostgresUserRepo) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx,
		`TRUNCATE users, password_resets RESTART IDENTITY CASCADE`,
	); err != nil {
		return fmt.Errorf("failed to delete all users: %w", err)
	}
	return nil
}

// scanUser は1行分のユーザーを読み取る。
func scanUser(s rowScanner) (*model.User, error) {
	user := &model.User{}
	var paidAt sql.NullTime
	var paymentRef sql.NullString

	err := s.Scan(
		&user.ID, &user.FirstName, &user.Nick, &user.TeamName, &user.Email, &user.Phone,
		&user.Tournament, &user.PasswordHash, &user.PhoneVerified, &user.Paid,
		&paidAt, &paymentRef, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if paidAt.Valid {
		t := paidAt.Time
		user.PaidAt = &t
	}
	if paymentRef.Valid {
		ref := paymentRef.String
		user.PaymentRef = &ref
	}
	return user, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
