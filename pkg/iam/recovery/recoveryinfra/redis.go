package recoveryinfra

import (
	"context"
	"errors"
	"time"

	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/Abraxas-365/keystone/pkg/iam/recovery"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "keystone:recovery:"

// RedisStore keeps recovery tokens in Redis with a key TTL
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, token, email string, ttl time.Duration) error {
	if err := s.client.Set(ctx, redisKeyPrefix+token, email, ttl).Err(); err != nil {
		return errx.Wrap(err, "failed to save recovery token", errx.TypeExternal)
	}
	return nil
}

// Consume reads and deletes the token in one round trip
func (s *RedisStore) Consume(ctx context.Context, token string) (string, error) {
	email, err := s.client.GetDel(ctx, redisKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", recovery.ErrInvalidToken()
		}
		return "", errx.Wrap(err, "failed to read recovery token", errx.TypeExternal)
	}
	return email, nil
}

var _ recovery.Store = (*RedisStore)(nil)
