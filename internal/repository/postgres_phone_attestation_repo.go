package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresPhoneAttestationRepo はPostgreSQLを使用した電話番号確認記録リポジトリ。
// REDIS_URL未設定時に使用する。期限切れの行はクリーンアップジョブが削除する。
type PostgresPhoneAttestationRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresPhoneAttestationRepo はPostgresPhoneAttestationRepoを生成する。
func NewPostgresPhoneAttestationRepo(db *sql.DB) *PostgresPhoneAttestationRepo {
	return &PostgresPhoneAttestationRepo{db: db, now: time.Now}
}

// Record は電話番号を確認済みとして記録する。既存の記録は期限を延長する。
func (r *PostgresPhoneAttestationRepo) Record(ctx context.Context, phone string, ttl time.Duration) error {
	now := r.now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO phone_attestations (phone, verified_at, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (phone) DO UPDATE SET verified_at = EXCLUDED.verified_at, expires_at = EXCLUDED.expires_at`,
		phone, now, now.Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("failed to record phone attestation: %w", err)
	}
	return nil
}

// Verified は電話番号が期限内の確認記録を持つかを返す。
func (r *PostgresPhoneAttestationRepo) Verified(ctx context.Context, phone string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM phone_attestations WHERE phone = $1 AND expires_at > $2)`,
		phone, r.now(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check phone attestation: %w", err)
	}
	return exists, nil
}

// Clear は電話番号の確認記録を削除する。
func (r *PostgresPhoneAttestationRepo) Clear(ctx context.Context, phone string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM phone_attestations WHERE phone = $1`, phone,
	); err != nil {
		return fmt.Errorf("failed to clear phone attestation: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PhoneAttestationRepository = (*PostgresPhoneAttestationRepo)(nil)
