package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not-a-url", time.Hour); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestSaveAndLookup(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "tok-1", "user-123"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	userID, err := store.Lookup(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if userID != "user-123" {
		t.Errorf("expected user-123, got %s", userID)
	}

	// Other clients read the raw key, so the layout is part of the contract.
	raw, err := s.Get("auth_tok-1")
	if err != nil {
		t.Fatalf("raw key missing: %v", err)
	}
	if raw != "user-123" {
		t.Errorf("expected raw value user-123, got %s", raw)
	}
	if ttl := s.TTL("auth_tok-1"); ttl != time.Hour {
		t.Errorf("expected ttl 1h, got %s", ttl)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "expiring", "user-456"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	s.FastForward(time.Hour + time.Second)

	_, err := store.Lookup(ctx, "expiring")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for expired token, got %v", err)
	}
}

func TestLookupUnknownAndEmptyToken(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()

	ctx := context.Background()
	for _, token := range []string{"non-existent-token", ""} {
		if _, err := store.Lookup(ctx, token); !errors.Is(err, ErrNotFound) {
			t.Errorf("Lookup(%q): expected ErrNotFound, got %v", token, err)
		}
	}
}

func TestSaveRejectsEmptyValues(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "", "user"); err == nil {
		t.Error("expected error for empty token")
	}
	if err := store.Save(ctx, "tok", ""); err == nil {
		t.Error("expected error for empty user id")
	}
}

func TestRevoke(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "token-to-revoke", "user-789"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Revoke(ctx, "token-to-revoke"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := store.Lookup(ctx, "token-to-revoke"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after revoke, got %v", err)
	}

	// Revoking a missing token should not error
	if err := store.Revoke(ctx, "non-existent-token"); err != nil {
		t.Errorf("Revoke for non-existent token failed: %v", err)
	}
}

func TestSessionIsolation(t *testing.T) {
	store, _ := setupTestRedis(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "token-1", "user-1"); err != nil {
		t.Fatalf("Save 1 failed: %v", err)
	}
	if err := store.Save(ctx, "token-2", "user-2"); err != nil {
		t.Fatalf("Save 2 failed: %v", err)
	}
	if err := store.Revoke(ctx, "token-1"); err != nil {
		t.Fatalf("Revoke token-1 failed: %v", err)
	}

	if _, err := store.Lookup(ctx, "token-1"); err == nil {
		t.Error("expected error for revoked token-1, got nil")
	}
	user2, err := store.Lookup(ctx, "token-2")
	if err != nil {
		t.Fatalf("Lookup token-2 failed: %v", err)
	}
	if user2 != "user-2" {
		t.Errorf("expected user-2, got %s", user2)
	}
}

func TestDefaultTTL(t *testing.T) {
	store := NewRedisStoreWithClient(nil, 0)
	if store.TTL() != 24*time.Hour {
		t.Errorf("expected default ttl 24h, got %s", store.TTL())
	}
}
