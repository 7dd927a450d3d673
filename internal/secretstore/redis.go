package secretstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyluth/cardlink/pkg/credentials"
	"github.com/redis/go-redis/v9"
)

// RedisKey returns the key holding the record for service/account.
func RedisKey(service, account string) string {
	return fmt.Sprintf("cardlink:secret:%s:%s", service, account)
}

// RedisStore keeps the record in a Redis string with no expiry.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore creates a store for service/account. Empty values fall back
// to DefaultService and DefaultAccount.
func NewRedisStore(rdb *redis.Client, service, account string) *RedisStore {
	if service == "" {
		service = DefaultService
	}
	if account == "" {
		account = DefaultAccount
	}
	return &RedisStore{rdb: rdb, key: RedisKey(service, account)}
}

func (s *RedisStore) Load(ctx context.Context) (credentials.Pair, bool, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return credentials.Pair{}, false, nil
	}
	if err != nil {
		return credentials.Pair{}, false, newError(KindReadFailed, err)
	}

	p, err := decode(data)
	if err != nil {
		return credentials.Pair{}, false, err
	}
	return p, true, nil
}

func (s *RedisStore) Save(ctx context.Context, p credentials.Pair) error {
	data, err := encode(p)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key, data, 0).Err(); err != nil {
		return newError(KindWriteFailed, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return newError(KindDeleteFailed, err)
	}
	return nil
}
