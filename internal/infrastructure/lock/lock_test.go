package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
)

// fakeRedis implements SETNX and the compare-and-delete script over a map.
type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	setErr  error
	evalErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, exists := f.values[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.evalErr != nil {
		return redis.NewCmdResult(nil, f.evalErr)
	}
	if f.values[keys[0]] == args[0].(string) {
		delete(f.values, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) EvalSha(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.Eval(ctx, releaseScriptSource, keys, args...)
}

func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return f.EvalSha(ctx, sha1, keys, args...)
}

func (f *fakeRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func TestRedisLockerExcludesSecondRunUntilReleased(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	locker := NewRedisLocker(fake, time.Minute)

	release, err := locker.Acquire(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, fake.ttls["triage:backfill:u-1"])

	_, err = locker.Acquire(ctx, "u-1")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrConflict))

	_, err = locker.Acquire(ctx, "u-2")
	require.NoError(t, err, "leases are per user")

	require.NoError(t, release(ctx))
	_, err = locker.Acquire(ctx, "u-1")
	assert.NoError(t, err)
}

func TestRedisLockerReleaseKeepsSuccessorLease(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	locker := NewRedisLocker(fake, time.Minute)

	release, err := locker.Acquire(ctx, "u-1")
	require.NoError(t, err)

	// lease expired and another run took it over
	fake.values["triage:backfill:u-1"] = "successor"

	require.NoError(t, release(ctx))
	assert.Equal(t, "successor", fake.values["triage:backfill:u-1"])
}

func TestRedisLockerSurfacesBackendErrors(t *testing.T) {
	fake := newFakeRedis()
	fake.setErr = errors.New("connection refused")

	_, err := NewRedisLocker(fake, 0).Acquire(context.Background(), "u-1")
	require.Error(t, err)
	assert.False(t, domain.IsKind(err, domain.ErrConflict))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestLocalLockerReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()

	release, err := locker.Acquire(ctx, "u-1")
	require.NoError(t, err)
	_, err = locker.Acquire(ctx, "u-1")
	assert.True(t, domain.IsKind(err, domain.ErrConflict))

	require.NoError(t, release(ctx))
	second, err := locker.Acquire(ctx, "u-1")
	require.NoError(t, err)
	require.NoError(t, release(ctx))

	_, err = locker.Acquire(ctx, "u-1")
	assert.True(t, domain.IsKind(err, domain.ErrConflict), "stale release must not free a newer lease")
	require.NoError(t, second(ctx))
}
