package scheduler

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LockKey is the Redis key shared by every instance.
const LockKey = "digest:scheduler:lock"

// ErrLockHeld means another instance is running a pass.
var ErrLockHeld = errors.New("digest lock held by another instance")

// RedisLock is a Locker backed by bsm/redislock. The lock is refreshed while
// the pass runs so a slow pass keeps it.
type RedisLock struct {
	client *redislock.Client
	key    string
	ttl    time.Duration
	log    *zap.SugaredLogger
}

// NewRedisLock returns a lock on LockKey with the given TTL.
func NewRedisLock(rdb redis.UniversalClient, ttl time.Duration, log *zap.SugaredLogger) *RedisLock {
	return &RedisLock{
		client: redislock.New(rdb),
		key:    LockKey,
		ttl:    ttl,
		log:    log.Named("scheduler.lock"),
	}
}

func (l *RedisLock) Acquire(ctx context.Context) (func(), error) {
	lock, err := l.client.Obtain(ctx, l.key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockHeld
	}
	if err != nil {
		return nil, errors.Wrap(err, "obtain digest lock")
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(l.ttl / 2)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if err := lock.Refresh(context.Background(), l.ttl, nil); err != nil {
					l.log.Warnw("refresh digest lock failed", "err", err)
					return
				}
			}
		}
	}()

	return func() {
		close(stop)
		<-done
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.log.Warnw("release digest lock failed", "err", err)
		}
	}, nil
}
