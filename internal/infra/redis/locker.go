package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/logger"
)

// unlockScript deletes the lock only while it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a cross-instance mutex built on SET NX PX. A holder that dies releases the key
// when ttl elapses.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	poll   time.Duration
	log    *zap.Logger
}

func NewLocker(client *redis.Client, ttl time.Duration, log *zap.Logger) *Locker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	log = logger.OrNop(log)
	return &Locker{client: client, ttl: ttl, poll: 20 * time.Millisecond, log: log}
}

// Lock blocks until key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	key = l.key(key)
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// release with a fresh context so a cancelled request still frees the key
		err := unlockScript.Run(context.Background(), l.client, []string{key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			l.log.Warn("lock release failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (l *Locker) key(key string) string {
	return "lock:" + key
}
