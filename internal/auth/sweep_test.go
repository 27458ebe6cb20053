package auth_test

import (
	"fmt"
	"testing"
	"time"

	"authcore.org/internal/auth"
)

func TestSweepDeletesPastRetention(t *testing.T) {
	f := newFixture(t)
	jo := f.user("jo@example.com", false)
	now := f.clock.Now()
	retention := 90 * 24 * time.Hour

	for i := 0; i < 2*auth.SweepPageSize+7; i++ {
		_, err := f.store.RenewTokens().Create(f.ctx, auth.RenewToken{
			Token:      fmt.Sprintf("old-%d", i),
			UserID:     jo.ID,
			ExpiryDate: now.Add(-retention - time.Duration(i+1)*time.Hour),
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	keep := []time.Time{now.Add(-retention + time.Hour), now.Add(time.Hour)}
	for i, exp := range keep {
		if _, err := f.store.RenewTokens().Create(f.ctx, auth.RenewToken{
			Token: fmt.Sprintf("keep-%d", i), UserID: jo.ID, ExpiryDate: exp,
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	n, err := auth.NewSweeper(f.store, retention, f.clock.Now).Sweep(f.ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2*auth.SweepPageSize+7 {
		t.Fatalf("expected %d deletions, got %d", 2*auth.SweepPageSize+7, n)
	}
	left, err := f.store.RenewTokens().ListByUser(f.ctx, jo.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(left) != len(keep) {
		t.Fatalf("expected %d records left, got %d", len(keep), len(left))
	}
}

func TestNextRun(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 3, 1, 1, 30, 0, 0, loc)
	if got := auth.NextRun(now, 2, 0); !got.Equal(time.Date(2026, 3, 1, 2, 0, 0, 0, loc)) {
		t.Fatalf("unexpected next run: %v", got)
	}
	now = time.Date(2026, 3, 1, 2, 0, 0, 0, loc)
	if got := auth.NextRun(now, 2, 0); !got.Equal(time.Date(2026, 3, 2, 2, 0, 0, 0, loc)) {
		t.Fatalf("unexpected next run: %v", got)
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := auth.ParseClock("02:30")
	if err != nil || h != 2 || m != 30 {
		t.Fatalf("parse: %d %d %v", h, m, err)
	}
	for _, bad := range []string{"", "2", "24:00", "12:60", "ab:cd"} {
		if _, _, err := auth.ParseClock(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
