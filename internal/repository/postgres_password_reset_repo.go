package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/tourneyreg/internal/model"
)

// PostgresPasswordResetRepo はPostgreSQLを使用したパスワード再設定リポジトリ。
type PostgresPasswordResetRepo struct {
	db *sql.DB
}

// NewPostgresPasswordResetRepo はPostgresPasswordResetRepoを生成する。
func NewPostgresPasswordResetRepo(db *sql.DB) *PostgresPasswordResetRepo {
	return &PostgresPasswordResetRepo{db: db}
}

// Create は再設定リクエストを作成する。
func (r *PostgresPasswordResetRepo) Create(ctx context.Context, reset *model.PasswordReset) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO password_resets (id, user_id, token_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		reset.ID, reset.UserID, reset.TokenHash, reset.ExpiresAt, reset.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create password reset: %w", err)
	}
	return nil
}

// FindLatest はユーザーとトークンハッシュが一致する最新のリクエストを取得する。
// 見つからない場合はnilを返す。使用済み・期限切れの判定は呼び出し側で行う。
func (r *PostgresPasswordResetRepo) FindLatest(ctx context.Context, userID int64, tokenHash string) (*model.PasswordReset, error) {
	reset := &model.PasswordReset{}
	var usedAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, used_at, created_at
		 FROM password_resets
		 WHERE user_id = $1 AND token_hash = $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID, tokenHash,
	).Scan(&reset.ID, &reset.UserID, &reset.TokenHash, &reset.ExpiresAt, &usedAt, &reset.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find password reset: %w", err)
	}

	if usedAt.Valid {
		t := usedAt.Time
		reset.UsedAt = &t
	}
	return reset, nil
}

// Consume はリクエストを使用済みにし、パスワードハッシュを同一トランザクションで更新する。
// used_at IS NULLを条件とすることで、同時に2件が成功しないようにする。
func (r *PostgresPasswordResetRepo) Consume(ctx context.Context, resetID string, userID int64, passwordHash string, usedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE password_resets SET used_at = $2 WHERE id = $1 AND used_at IS NULL`,
		resetID, usedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mark password reset used: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrResetAlreadyUsed
	}

	result, err = tx.ExecContext(ctx,
		`UPDATE users SET password_hash = $2 WHERE id = $1`,
		userID, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	affected, err = result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PasswordResetRepository = (*PostgresPasswordResetRepo)(nil)
