package service

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestLocalLockerReleasesKeys(t *testing.T) {
	l := NewLocalLocker()

	unlock, err := l.Lock("u1")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	unlock()

	if n := len(l.locks); n != 0 {
		t.Errorf("%d keys left after unlock, want 0", n)
	}
}

func TestRedisLockerLogsFailedRelease(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	l := NewRedisLocker(client)
	l.release("u1", "lock:milestones:u1", "token")

	out := logs.String()
	if !strings.Contains(out, "failed to release milestone lock") || !strings.Contains(out, "user_id=u1") {
		t.Errorf("release failure not logged: %q", out)
	}
}
