package account

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type captureNotifier struct {
	mu   sync.Mutex
	seen []Account
	err  error
}

func (c *captureNotifier) Publish(_ context.Context, acc Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, acc)
	return c.err
}

func TestPublishedForwardsCommittedSnapshots(t *testing.T) {
	notifier := &captureNotifier{}
	store := NewPublished(NewMemoryStore(), notifier, nil)
	ctx := context.Background()

	acc := New("pub-1", "seedling", time.Now())
	if err := store.Create(ctx, acc); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Update(ctx, acc.ID, func(a *Account) error { return a.Credit(5, "check_in") }); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := store.Update(ctx, acc.ID, func(*Account) error { return ErrSkipWrite }); err != nil {
		t.Fatalf("skipped update: %v", err)
	}
	if _, err := store.Update(ctx, acc.ID, func(a *Account) error { return a.Debit(1000, "x") }); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	if len(notifier.seen) != 2 {
		t.Fatalf("expected 2 published snapshots, got %d", len(notifier.seen))
	}
	if notifier.seen[1].Coins != StartingCoins+5 || notifier.seen[1].Version != 1 {
		t.Fatalf("unexpected published snapshot: %+v", notifier.seen[1])
	}
}

func TestPublishedIgnoresNotifierFailure(t *testing.T) {
	notifier := &captureNotifier{err: errors.New("broker down")}
	store := NewPublished(NewMemoryStore(), notifier, nil)
	acc := New("pub-2", "seedling", time.Now())
	if err := store.Create(context.Background(), acc); err != nil {
		t.Fatalf("create should succeed even when publishing fails: %v", err)
	}
}

func TestRetryGivesUpAfterRepeatedConflicts(t *testing.T) {
	calls := 0
	err := retry(context.Background(), func() (bool, error) {
		calls++
		return true, nil
	})
	if !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("expected concurrent modification, got %v", err)
	}
	if calls != maxUpdateAttempts {
		t.Fatalf("expected %d attempts, got %d", maxUpdateAttempts, calls)
	}
}
