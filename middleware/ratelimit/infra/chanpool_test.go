package infra

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestChanPool_ReleaseIsIdempotent(t *testing.T) {
	p := NewChanPool(1)

	release, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()
	release()

	if p.InFlight() != 0 {
		t.Fatalf("expected 0 in flight, got %d", p.InFlight())
	}
}

func TestChanPool_BlocksAtCapacity(t *testing.T) {
	p := NewChanPool(1)

	release, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if p.Capacity() != 1 || p.InFlight() != 1 {
		t.Fatalf("unexpected state cap=%d inflight=%d", p.Capacity(), p.InFlight())
	}
}
