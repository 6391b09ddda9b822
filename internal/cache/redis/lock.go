package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

// unlockLua deletes a lock key only if its value matches the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager using SET NX with a TTL and a
// Lua-based conditional unlock. The scheduler holds it for the length of one
// scan so two bots sharing a wallet never submit concurrently.
type LockManager struct {
	c        *Client
	unlockSc *redis.Script
}

var _ domain.LockManager = (*LockManager)(nil)

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		c:        c,
		unlockSc: redis.NewScript(unlockLua),
	}
}

// Acquire obtains the lock for key until ttl elapses or the returned unlock
// function is called. Unlock is idempotent. It returns domain.ErrLockHeld if
// another holder owns the key.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lk := lm.c.key("lock", key)

	ok, err := lm.c.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			// The caller's context may already be cancelled at shutdown.
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.unlockSc.Run(unlockCtx, lm.c.rdb, []string{lk}, token).Err()
		})
	}
	return unlock, nil
}
