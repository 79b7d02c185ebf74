package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/recoverly/recoverly/internal/metrics"
)

// Mutation computes the next state of an account read inside a transaction.
// It may run more than once when the store retries a conflicting write, so it
// must not have effects outside acc. Returning ErrSkipWrite commits nothing.
type Mutation func(acc *Account) error

// Store is the transactional document store holding accounts. Update is the
// only write path for existing accounts.
type Store interface {
	Create(ctx context.Context, acc Account) error
	Get(ctx context.Context, id string) (Account, error)
	Update(ctx context.Context, id string, fn Mutation) (Account, error)
	Entries(ctx context.Context, id string, limit int) ([]Entry, error)
}

// Notifier receives every committed snapshot.
type Notifier interface {
	Publish(ctx context.Context, acc Account) error
}

const (
	maxUpdateAttempts = 8
	defaultEntryLimit = 50
	maxEntryLimit     = 500
)

// Published decorates a Store so that committed snapshots reach the change feed.
type Published struct {
	Store
	notifier Notifier
	logger   *slog.Logger
}

// NewPublished wraps store. Publish failures are logged and never fail a committed write.
func NewPublished(store Store, notifier Notifier, logger *slog.Logger) *Published {
	return &Published{Store: store, notifier: notifier, logger: logger}
}

// Create stores acc and publishes it.
func (p *Published) Create(ctx context.Context, acc Account) error {
	if err := p.Store.Create(ctx, acc); err != nil {
		return err
	}
	p.publish(ctx, acc)
	return nil
}

// Update runs fn and publishes the committed snapshot when something was written.
func (p *Published) Update(ctx context.Context, id string, fn Mutation) (Account, error) {
	var wrote bool
	acc, err := p.Store.Update(ctx, id, func(a *Account) error {
		wrote = false
		if err := fn(a); err != nil {
			return err
		}
		wrote = true
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	if wrote {
		p.publish(ctx, acc)
	}
	return acc, nil
}

func (p *Published) publish(ctx context.Context, acc Account) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Publish(ctx, acc); err != nil && p.logger != nil {
		p.logger.Warn("publish account snapshot", slog.String("account_id", acc.ID), slog.Any("error", err))
	}
}

// retry re-runs attempt while it reports a lost race, backing off between tries.
func retry(ctx context.Context, attempt func() (bool, error)) error {
	delay := 5 * time.Millisecond
	for i := 0; i < maxUpdateAttempts; i++ {
		conflict, err := attempt()
		if !conflict {
			return err
		}
		metrics.StoreConflicts.Inc()
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		if delay < 200*time.Millisecond {
			delay *= 2
		}
	}
	return ErrConcurrentModification
}

// apply runs fn against a private copy of current and reports whether the
// copy should be written.
func apply(current Account, fn Mutation) (Account, bool, error) {
	next := current.Clone()
	next.clearJournal()
	if err := fn(&next); err != nil {
		if errors.Is(err, ErrSkipWrite) {
			return current, false, nil
		}
		return Account{}, false, err
	}
	next.ID = current.ID
	next.Version = current.Version + 1
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	for i := range next.journal {
		next.journal[i].AccountID = current.ID
		next.journal[i].CreatedAt = next.UpdatedAt
	}
	return next, true, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultEntryLimit
	}
	if limit > maxEntryLimit {
		return maxEntryLimit
	}
	return limit
}
