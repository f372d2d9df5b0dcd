package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("timed out waiting for user lock")

// UserLocker serializes milestone evaluation per user.
type UserLocker interface {
	Lock(userID string) (unlock func(), err error)
}

// LocalLocker is a keyed mutex for single-instance deployments.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	mu   sync.Mutex
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

func (l *LocalLocker) Lock(userID string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[userID]
	if !ok {
		lk = &localLock{}
		l.locks[userID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}, nil
}

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker coordinates evaluation across instances with SET NX PX.
type RedisLocker struct {
	client  *redis.Client
	ttl     time.Duration
	wait    time.Duration
	backoff time.Duration
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client:  client,
		ttl:     10 * time.Second,
		wait:    5 * time.Second,
		backoff: 25 * time.Millisecond,
	}
}

func (l *RedisLocker) Lock(userID string) (func(), error) {
	key := "lock:milestones:" + userID
	token := uuid.New().String()
	deadline := time.Now().Add(l.wait)

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		time.Sleep(l.backoff)
	}

	return func() { l.release(userID, key, token) }, nil
}

// release drops the key if the token still owns it. A failed release is
// logged; the TTL frees the key regardless.
func (l *RedisLocker) release(userID, key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	err := releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	if err != nil {
		slog.Warn("failed to release milestone lock", "error", err, "user_id", userID)
	}
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 3 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = client.Ping(ctx).Err()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
