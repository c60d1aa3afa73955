package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// attestationKeyPrefix はRedis上の確認記録キーの接頭辞。
const attestationKeyPrefix = "tourneyreg:phone_attestation:"

// RedisPhoneAttestationRepo はRedisを使用した電話番号確認記録リポジトリ。
// 失効はキーのTTLに任せる。
type RedisPhoneAttestationRepo struct {
	client *redis.Client
}

// NewRedisPhoneAttestationRepo はRedisPhoneAttestationRepoを生成する。
func NewRedisPhoneAttestationRepo(client *redis.Client) *RedisPhoneAttestationRepo {
	return &RedisPhoneAttestationRepo{client: client}
}

func attestationKey(phone string) string {
	return attestationKeyPrefix + phone
}

// Record は電話番号を確認済みとして記録する。
func (r *RedisPhoneAttestationRepo) Record(ctx context.Context, phone string, ttl time.Duration) error {
	if err := r.client.Set(ctx, attestationKey(phone), time.Now().UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return fmt.Errorf("failed to record phone attestation: %w", err)
	}
	return nil
}

// Verified は電話番号の確認記録が存在するかを返す。
func (r *RedisPhoneAttestationRepo) Verified(ctx context.Context, phone string) (bool, error) {
	n, err := r.client.Exists(ctx, attestationKey(phone)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check phone attestation: %w", err)
	}
	return n > 0, nil
}

// Clear は電話番号の確認記録を削除する。
func (r *RedisPhoneAttestationRepo) Clear(ctx context.Context, phone string) error {
	if err := r.client.Del(ctx, attestationKey(phone)).Err(); err != nil {
		return fmt.Errorf("failed to clear phone attestation: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PhoneAttestationRepository = (*RedisPhoneAttestationRepo)(nil)
