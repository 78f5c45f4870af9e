package auth

import (
	"sync"
	"testing"
	"time"
)

func TestRevoke_and_IsRevoked(t *testing.T) {
	store := NewTokenRevocationStore(0)
	defer store.Close()

	jti := "token-abc-123"
	store.Revoke(jti, time.Now().Add(1*time.Hour))

	if !store.IsRevoked(jti) {
		t.Errorf("expected JTI %q to be revoked", jti)
	}
	if store.IsRevoked("unknown-jti") {
		t.Error("expected unknown JTI to not be revoked")
	}
}

func TestRevoke_EmptyJTIIgnored(t *testing.T) {
	store := NewTokenRevocationStore(0)
	defer store.Close()

	store.Revoke("", time.Now().Add(time.Hour))
	if store.Count() != 0 {
		t.Errorf("expected empty jti to be ignored, count=%d", store.Count())
	}
}

func TestCleanup_RemovesExpired(t *testing.T) {
	store := NewTokenRevocationStore(0)
	defer store.Close()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	store.Revoke("old", base.Add(-time.Minute))
	store.Revoke("fresh", base.Add(time.Hour))

	store.cleanup()

	if store.IsRevoked("old") {
		t.Error("expected expired entry to be removed")
	}
	if !store.IsRevoked("fresh") {
		t.Error("expected unexpired entry to remain")
	}
	if store.Count() != 1 {
		t.Errorf("expected 1 entry, got %d", store.Count())
	}
}

func TestClose_Idempotent(t *testing.T) {
	store := NewTokenRevocationStore(time.Hour)
	store.Close()
	store.Close()
}

func TestRevocation_Concurrent(t *testing.T) {
	store := NewTokenRevocationStore(0)
	defer store.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			jti := string(rune('a' + i%26))
			store.Revoke(jti, time.Now().Add(time.Hour))
			_ = store.IsRevoked(jti)
		}(i)
	}
	wg.Wait()

	if store.Count() != 26 {
		t.Errorf("expected 26 distinct entries, got %d", store.Count())
	}
}
