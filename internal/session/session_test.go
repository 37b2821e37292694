package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreBadURL(t *testing.T) {
	if _, err := NewRedisStore("://nope"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRedisRevokeAndExpire(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	revoked, err := store.IsRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("fresh token revoked=%v err=%v", revoked, err)
	}

	if err := store.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	revoked, err = store.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("revoked token revoked=%v err=%v", revoked, err)
	}
	if other, _ := store.IsRevoked(ctx, "jti-2"); other {
		t.Fatal("revocation leaked to another token")
	}

	s.FastForward(2 * time.Hour)
	if revoked, _ := store.IsRevoked(ctx, "jti-1"); revoked {
		t.Fatal("revocation should expire with the token")
	}
}

func TestRedisRevokeExpiredTokenIsNoop(t *testing.T) {
	store, s := setupTestRedis(t)
	if err := store.Revoke(context.Background(), "old", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if s.Exists("revoked:old") {
		t.Fatal("expired token should not be stored")
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.Revoke(ctx, "jti-1", now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if revoked, _ := store.IsRevoked(ctx, "jti-1"); !revoked {
		t.Fatal("expected revoked")
	}

	now = now.Add(2 * time.Hour)
	if revoked, _ := store.IsRevoked(ctx, "jti-1"); revoked {
		t.Fatal("expected revocation to lapse")
	}
	_ = store.Revoke(ctx, "jti-2", now.Add(time.Hour))
	if len(store.revoked) != 1 {
		t.Fatalf("expired entries should be pruned, have %d", len(store.revoked))
	}
}
