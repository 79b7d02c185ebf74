package streak

import (
	"context"
	"testing"
	"time"

	"github.com/recoverly/recoverly/internal/account"
	"github.com/recoverly/recoverly/internal/badge"
	"github.com/recoverly/recoverly/internal/logging"
	"github.com/recoverly/recoverly/internal/notification"
)

func TestElapsedDays(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		now  time.Time
		want int
	}{
		{"same instant", start, 0},
		{"just under a day", start.Add(24*time.Hour - time.Second), 0},
		{"exactly one day", start.Add(24 * time.Hour), 1},
		{"seven and a half days", start.Add(7*24*time.Hour + 12*time.Hour), 7},
		{"clock before start", start.Add(-time.Hour), 0},
	}
	for _, tc := range cases {
		if got := ElapsedDays(start, tc.now); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestReconcileWritesAtMostOnce(t *testing.T) {
	store := account.NewMemoryStore()
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	acc := account.New("streak-1", "seedling", start)
	if err := store.Create(context.Background(), acc); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := start.Add(8 * 24 * time.Hour)
	rec := &notification.Recorder{}
	tracker := NewTracker(store, badge.DefaultCatalog(), rec, logging.Discard()).WithClock(func() time.Time { return now })

	before := store.Writes()
	got, changed, err := tracker.Reconcile(context.Background(), acc.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !changed || got.BadgeTier != "sapling" {
		t.Fatalf("expected sapling after 8 days, got %s (changed=%v)", got.BadgeTier, changed)
	}

	for i := 0; i < 3; i++ {
		if _, changed, err := tracker.Reconcile(context.Background(), acc.ID); err != nil || changed {
			t.Fatalf("repeat reconcile must be a no-op: changed=%v err=%v", changed, err)
		}
	}
	if writes := store.Writes() - before; writes != 1 {
		t.Fatalf("expected exactly one write, got %d", writes)
	}
	if kinds := rec.Kinds(); len(kinds) != 1 || kinds[0] != notification.KindBadgeUnlocked {
		t.Fatalf("expected one badge notification, got %v", kinds)
	}
}

func TestSnapshotReportsNextTier(t *testing.T) {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	tracker := NewTracker(account.NewMemoryStore(), badge.DefaultCatalog(), nil, logging.Discard()).
		WithClock(func() time.Time { return start.Add(5 * 24 * time.Hour) })

	p := tracker.Snapshot(account.Account{StreakStart: start, BadgeTier: "seedling", LongestStreakDays: 2})
	if p.ElapsedDays != 5 || p.Tier.ID != "sprout" {
		t.Fatalf("unexpected progress: %+v", p)
	}
	if p.Next == nil || p.Next.ID != "sapling" || p.DaysToNext != 2 {
		t.Fatalf("expected sapling in 2 days, got %+v", p)
	}
	if !p.Stale {
		t.Fatalf("stored seedling should be stale after 5 days")
	}
	if p.LongestDays != 5 {
		t.Fatalf("longest streak should include the running streak, got %d", p.LongestDays)
	}
}
