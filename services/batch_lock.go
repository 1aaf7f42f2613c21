package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

type localLock struct {
	ch   chan struct{}
	refs int
}

// localBatchLocker serializes writers per batch id within one process
type localBatchLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*localLock
}

func NewLocalBatchLocker() BatchLocker {
	return &localBatchLocker{locks: make(map[uuid.UUID]*localLock)}
}

func (l *localBatchLocker) Lock(ctx context.Context, batchID uuid.UUID) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[batchID]
	if !ok {
		lock = &localLock{ch: make(chan struct{}, 1)}
		l.locks[batchID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lock.ch
				l.release(batchID, lock)
			})
		}, nil
	case <-ctx.Done():
		l.release(batchID, lock)
		return nil, eris.Wrapf(ctx.Err(), "services: waiting for batch lock %s", batchID)
	}
}

func (l *localBatchLocker) release(batchID uuid.UUID, lock *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, batchID)
	}
}

// Deletes the key only while it still holds our token
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

const lockPollInterval = 25 * time.Millisecond

// redisBatchLocker serializes writers per batch id across processes
type redisBatchLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisBatchLocker(client *redis.Client, ttl time.Duration) BatchLocker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &redisBatchLocker{client: client, ttl: ttl}
}

func batchLockKey(batchID uuid.UUID) string {
	return "analysis:batch-lock:" + batchID.String()
}

func (l *redisBatchLocker) Lock(ctx context.Context, batchID uuid.UUID) (func(), error) {
	key := batchLockKey(batchID)
	token := uuid.NewString()

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, eris.Wrapf(err, "services: acquire batch lock %s", batchID)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := unlockScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
						zap.L().Warn("batch lock release failed, key expires with its ttl",
							zap.String("batch_id", batchID.String()),
							zap.Duration("ttl", l.ttl),
							zap.Error(err))
					}
				})
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "services: waiting for batch lock %s", batchID)
		case <-ticker.C:
		}
	}
}
