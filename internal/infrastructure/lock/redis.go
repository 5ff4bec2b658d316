// Package lock keeps concurrent embedding backfills for one user apart.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lease never removes a successor's.
const releaseScriptSource = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

var releaseScript = redis.NewScript(releaseScriptSource)

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

type RedisLocker struct {
	client redisClient
	ttl    time.Duration
	prefix string
}

func NewRedisLocker(client redisClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl, prefix: "triage:backfill:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, userID string) (func(context.Context) error, error) {
	key := l.prefix + userID
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire backfill lease: %w", err)
	}
	if !ok {
		return nil, domain.WrapError(domain.ErrConflict, "acquire backfill lease", errors.New("backfill already running"))
	}

	release := func(releaseCtx context.Context) error {
		n, err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Int64()
		if err != nil {
			return fmt.Errorf("release backfill lease: %w", err)
		}
		if n == 0 {
			log.Warn().Str("user_id", userID).Dur("ttl", l.ttl).Msg("backfill_lease_expired")
		}
		return nil
	}
	return release, nil
}
