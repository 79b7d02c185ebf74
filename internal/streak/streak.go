// Package streak tracks elapsed streak time and keeps the stored badge tier in
// line with it.
package streak

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/recoverly/recoverly/internal/account"
	"github.com/recoverly/recoverly/internal/badge"
	"github.com/recoverly/recoverly/internal/metrics"
	"github.com/recoverly/recoverly/internal/notification"
)

const day = 24 * time.Hour

// ElapsedDays counts whole 24h periods between start and now. It is never negative.
func ElapsedDays(start, now time.Time) int {
	d := now.Sub(start)
	if d <= 0 {
		return 0
	}
	return int(d / day)
}

// Progress is a read-only view of an account's streak.
type Progress struct {
	ElapsedDays int         `json:"elapsed_days"`
	Tier        badge.Tier  `json:"tier"`
	Next        *badge.Tier `json:"next_tier,omitempty"`
	DaysToNext  int         `json:"days_to_next_tier,omitempty"`
	LongestDays int         `json:"longest_streak_days"`
	Stale       bool        `json:"-"`
}

// Tracker reconciles the stored badge tier with elapsed streak time.
type Tracker struct {
	store    account.Store
	catalog  *badge.Catalog
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewTracker builds a streak tracker.
func NewTracker(store account.Store, catalog *badge.Catalog, notifier notification.Notifier, logger *slog.Logger) *Tracker {
	if notifier == nil {
		notifier = notification.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, catalog: catalog, notifier: notifier, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Catalog returns the tier ladder in use.
func (t *Tracker) Catalog() *badge.Catalog {
	return t.catalog
}

// Snapshot describes acc's streak at the current time without touching the store.
func (t *Tracker) Snapshot(acc account.Account) Progress {
	elapsed := ElapsedDays(acc.StreakStart, t.now())
	tier := t.catalog.Resolve(elapsed)
	p := Progress{
		ElapsedDays: elapsed,
		Tier:        tier,
		LongestDays: max(acc.LongestStreakDays, elapsed),
		Stale:       acc.BadgeTier != tier.ID,
	}
	if next, ok := t.catalog.Next(tier.ID); ok {
		p.Next = &next
		p.DaysToNext = next.MinDays - elapsed
	}
	return p
}

// Reconcile brings the stored tier up to date. It reads outside a transaction
// first and writes only when the tier differs, re-checking inside the
// transaction, so repeated calls without time passing write at most once.
func (t *Tracker) Reconcile(ctx context.Context, id string) (account.Account, bool, error) {
	acc, err := t.store.Get(ctx, id)
	if err != nil {
		return account.Account{}, false, err
	}
	now := t.now()
	if acc.BadgeTier == t.catalog.Resolve(ElapsedDays(acc.StreakStart, now)).ID {
		metrics.BadgeReconciliations.WithLabelValues("false").Inc()
		return acc, false, nil
	}

	var (
		changed  bool
		previous string
	)
	acc, err = t.store.Update(ctx, id, func(a *account.Account) error {
		changed = false
		want := t.catalog.Resolve(ElapsedDays(a.StreakStart, now)).ID
		if a.BadgeTier == want {
			return account.ErrSkipWrite
		}
		previous = a.BadgeTier
		a.BadgeTier = want
		changed = true
		return nil
	})
	if err != nil {
		return account.Account{}, false, err
	}
	metrics.BadgeReconciliations.WithLabelValues(strconv.FormatBool(changed)).Inc()
	if changed {
		t.logger.Info("badge tier reconciled", "account_id", id, "from", previous, "to", acc.BadgeTier)
		t.announce(ctx, acc, previous)
	}
	return acc, changed, nil
}

func (t *Tracker) announce(ctx context.Context, acc account.Account, previous string) {
	prevRank, _ := t.catalog.Rank(previous)
	rank, ok := t.catalog.Rank(acc.BadgeTier)
	if !ok || rank <= prevRank {
		return
	}
	if err := t.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindBadgeUnlocked,
		Destination: acc.ID,
		Body:        "unlocked " + acc.BadgeTier,
	}); err != nil {
		t.logger.Warn("badge notification failed", "account_id", acc.ID, "error", err)
	}
}
