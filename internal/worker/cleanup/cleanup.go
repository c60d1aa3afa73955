// Package cleanup は不要になった認証関連レコードの自動削除ジョブを提供する。
// 使用済みまたは期限切れのパスワードリセットトークンと、
// 期限切れの電話番号認証記録を定期バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// DefaultResetRetention はリセットトークンを使用・失効後に残しておく期間。
const DefaultResetRetention = 7 * 24 * time.Hour

const (
	deleteStaleResetsQuery = `DELETE FROM password_resets
		WHERE (used_at IS NOT NULL AND used_at < now() - $1::interval)
		   OR expires_at < now() - $1::interval`

	deleteExpiredAttestationsQuery = `DELETE FROM phone_attestations WHERE expires_at < now()`
)

// CleanupJob はパスワードリセットと電話番号認証の不要レコードを削除するジョブ。
// 何度実行しても結果が変わらない冪等な削除処理のみを行う。
type CleanupJob struct {
	db     Executor
	logger *slog.Logger

	// ResetRetention は使用済み・期限切れのリセットトークンを保持する期間。
	ResetRetention time.Duration
	// PurgeAttestations がfalseの場合、phone_attestationsは対象外にする。
	// 認証記録をRedisに保存している場合はTTLで消えるため不要。
	PurgeAttestations bool
}

// Result は1回の実行で削除した件数。
type Result struct {
	ResetsDeleted       int64
	AttestationsDeleted int64
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionが0以下の場合はDefaultResetRetentionを使う。
func NewCleanupJob(db Executor, logger *slog.Logger, retention time.Duration) *CleanupJob {
	if retention <= 0 {
		retention = DefaultResetRetention
	}
	return &CleanupJob{
		db:                db,
		logger:            logger,
		ResetRetention:    retention,
		PurgeAttestations: true,
	}
}

// Run は不要レコードを削除する。
// 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{}

	interval := fmt.Sprintf("%d seconds", int64(j.ResetRetention/time.Second))

	n, err := j.exec(ctx, deleteStaleResetsQuery, interval)
	if err != nil {
		j.logger.Error("リセットトークンのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("retention", j.ResetRetention),
		)
		return nil, fmt.Errorf("リセットトークンのクリーンアップに失敗: %w", err)
	}
	res.ResetsDeleted = n

	if j.PurgeAttestations {
		n, err = j.exec(ctx, deleteExpiredAttestationsQuery)
		if err != nil {
			j.logger.Error("電話番号認証記録のクリーンアップに失敗しました",
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("電話番号認証記録のクリーンアップに失敗: %w", err)
		}
		res.AttestationsDeleted = n
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("resets_deleted", res.ResetsDeleted),
		slog.Int64("attestations_deleted", res.AttestationsDeleted),
		slog.Duration("retention", j.ResetRetention),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return res, nil
}

// RunEvery は起動直後に1回、その後intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。個々の実行エラーはログに残して継続する。
func (j *CleanupJob) RunEvery(ctx context.Context, interval time.Duration) {
	if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (j *CleanupJob) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return n, nil
}
