package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestLockerExcludesSecondHolder(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	locker := NewLocker(newClient(mr), time.Second, nil)
	unlock, err := locker.Lock(context.Background(), "attempt:quiz-1:u1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !mr.Exists("lock:attempt:quiz-1:u1") {
		t.Fatalf("expected lock key to be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "attempt:quiz-1:u1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	unlock()
	if mr.Exists("lock:attempt:quiz-1:u1") {
		t.Fatalf("expected lock key to be removed")
	}

	unlock2, err := locker.Lock(context.Background(), "attempt:quiz-1:u1")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	unlock2()
}

func TestLockerKeepsForeignToken(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	locker := NewLocker(newClient(mr), time.Second, nil)
	unlock, err := locker.Lock(context.Background(), "questions:quiz-1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	// The lease expired and someone else took the key.
	if err := mr.Set("lock:questions:quiz-1", "other-holder"); err != nil {
		t.Fatalf("set: %v", err)
	}
	unlock()

	got, err := mr.Get("lock:questions:quiz-1")
	if err != nil || got != "other-holder" {
		t.Fatalf("expected foreign lock to survive, got %q (%v)", got, err)
	}
}
