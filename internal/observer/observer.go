// Package observer is the account-load path: it reconciles the badge tier and
// settles expired contracts whenever an account is looked at.
package observer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/recoverly/recoverly/internal/account"
	"github.com/recoverly/recoverly/internal/contract"
	"github.com/recoverly/recoverly/internal/feed"
	"github.com/recoverly/recoverly/internal/streak"
)

// ErrNoFeed is returned by Watch when the observer was built without a change feed.
var ErrNoFeed = errors.New("no change feed configured")

// View is what clients see of an account.
type View struct {
	Account  account.Account `json:"account"`
	Streak   streak.Progress `json:"streak"`
	Contract contract.Status `json:"contract"`
}

// Observer reconciles accounts on load and on feed updates.
type Observer struct {
	store     account.Store
	tracker   *streak.Tracker
	contracts *contract.Service
	feed      feed.Feed
	logger    *slog.Logger
	now       func() time.Time
}

// New builds an observer. f may be nil when watching is not needed; Watch then
// fails with ErrNoFeed.
func New(store account.Store, tracker *streak.Tracker, contracts *contract.Service, f feed.Feed, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{store: store, tracker: tracker, contracts: contracts, feed: f, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (o *Observer) WithClock(now func() time.Time) *Observer {
	o.now = now
	return o
}

// View reads the account without reconciling it.
func (o *Observer) View(ctx context.Context, id string) (View, error) {
	acc, err := o.store.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	return o.viewOf(acc), nil
}

// Observe reconciles the badge tier, then evaluates an expired contract, and
// returns the resulting snapshot.
func (o *Observer) Observe(ctx context.Context, id string) (View, error) {
	if _, _, err := o.tracker.Reconcile(ctx, id); err != nil {
		return View{}, err
	}
	ev, err := o.contracts.Evaluate(ctx, id)
	if err != nil {
		return View{}, err
	}
	return o.viewOf(ev.Account), nil
}

// Watch follows id on the change feed and calls fn with the current view and
// then with every later snapshot. Stale snapshots are observed first, so fn
// only sees reconciled state. Watch returns when ctx ends or fn fails.
func (o *Observer) Watch(ctx context.Context, id string, fn func(View) error) error {
	if o.feed == nil {
		return ErrNoFeed
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, err := o.feed.Subscribe(ctx, id)
	if err != nil {
		return err
	}
	current, err := o.Observe(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(current); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case acc, ok := <-updates:
			if !ok {
				return nil
			}
			if acc.Version <= current.Account.Version {
				continue
			}
			v := o.viewOf(acc)
			if o.stale(v) {
				if v, err = o.Observe(ctx, id); err != nil {
					o.logger.Warn("observe stale snapshot", "account_id", id, "error", err)
					continue
				}
			}
			current = v
			if err := fn(v); err != nil {
				return err
			}
		}
	}
}

func (o *Observer) viewOf(acc account.Account) View {
	return View{
		Account:  acc,
		Streak:   o.tracker.Snapshot(acc),
		Contract: contract.StatusOf(acc, o.now()),
	}
}

func (o *Observer) stale(v View) bool {
	return v.Streak.Stale || v.Contract.State == contract.StateExpired
}
