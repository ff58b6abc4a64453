package infra

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucket_LowBurstRejectsSecondImmediateAdmit(t *testing.T) {
	clk := newFakeClock()
	s := NewTokenBucketStore(0.02, 1, WithBucketClock(clk.Now))

	dec, _ := s.Admit(context.Background(), "k")
	if !dec.Allowed {
		t.Fatalf("expected first Admit to be allowed")
	}
	dec, _ = s.Admit(context.Background(), "k")
	if dec.Allowed {
		t.Fatalf("expected second immediate Admit to be rejected (burst=1)")
	}
	if dec.RetryAfter < 49*time.Second || dec.RetryAfter > 51*time.Second {
		t.Fatalf("expected RetryAfter~50s, got %s", dec.RetryAfter)
	}
}

func TestTokenBucket_RejectionDoesNotConsumeTokens(t *testing.T) {
	clk := newFakeClock()
	s := NewTokenBucketStore(1, 1, WithBucketClock(clk.Now))

	s.Admit(context.Background(), "k")
	for i := 0; i < 5; i++ {
		s.Admit(context.Background(), "k")
	}

	clk.Advance(time.Second)
	if dec, _ := s.Admit(context.Background(), "k"); !dec.Allowed {
		t.Fatalf("expected token refilled after 1s")
	}
}

func TestTokenBucketForWindow_MatchesFixedWindowBurst(t *testing.T) {
	clk := newFakeClock()
	s := NewTokenBucketForWindow(20, time.Minute, WithBucketClock(clk.Now))

	for i := 1; i <= 20; i++ {
		if dec, _ := s.Admit(context.Background(), "k"); !dec.Allowed {
			t.Fatalf("request %d: expected allowed", i)
		}
	}
	if dec, _ := s.Admit(context.Background(), "k"); dec.Allowed {
		t.Fatalf("expected 21st immediate request rejected")
	}
	if s.Burst() != 20 {
		t.Fatalf("expected burst=20, got %d", s.Burst())
	}
}

func TestTokenBucket_CleanupRemovesIdleEntries(t *testing.T) {
	clk := newFakeClock()
	s := NewTokenBucketStore(10, 1, WithIdleTTL(time.Minute), WithCleanupEvery(0), WithBucketClock(clk.Now))

	s.Admit(context.Background(), "k")
	clk.Advance(2 * time.Minute)

	s.Cleanup()
	if s.Len() != 0 {
		t.Fatalf("expected idle entry removed, got %d", s.Len())
	}
}
