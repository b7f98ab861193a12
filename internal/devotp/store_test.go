package devotp

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Put(ctx, "ch-1", "123456", time.Now().Add(time.Minute))

	otp, ok := s.Get(ctx, "ch-1")
	if !ok {
		t.Fatal("Get should find a stored, unexpired OTP")
	}
	if otp != "123456" {
		t.Errorf("otp = %q, want 123456", otp)
	}
}

func TestMemoryStore_Missing(t *testing.T) {
	s := NewMemoryStore()
	if _, ok := s.Get(context.Background(), "nope"); ok {
		t.Error("Get should miss for unknown challenge id")
	}
}

func TestMemoryStore_Expired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Put(ctx, "ch-1", "123456", time.Now().Add(time.Minute))
	s.nowF = func() time.Time { return time.Now().Add(2 * time.Minute) }

	if _, ok := s.Get(ctx, "ch-1"); ok {
		t.Error("Get should miss for expired OTP")
	}
	// Expired entries are dropped on read.
	s.nowF = func() time.Time { return time.Now().UTC() }
	if _, ok := s.Get(ctx, "ch-1"); ok {
		t.Error("expired entry should have been deleted")
	}
}
