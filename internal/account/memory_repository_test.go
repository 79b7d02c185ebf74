package account

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func seedMemory(t *testing.T, coins int64) (*MemoryStore, Account) {
	t.Helper()
	store := NewMemoryStore()
	acc := New("acc-1", "seedling", time.Now())
	acc.Coins = coins
	acc.clearJournal()
	if err := store.Create(context.Background(), acc); err != nil {
		t.Fatalf("create: %v", err)
	}
	return store, acc
}

func TestMemoryStoreUpdateCommitsAndJournals(t *testing.T) {
	store, acc := seedMemory(t, 100)
	ctx := context.Background()

	updated, err := store.Update(ctx, acc.ID, func(a *Account) error {
		return a.Debit(40, "redeem:hat")
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Coins != 60 || updated.Version != acc.Version+1 {
		t.Fatalf("unexpected account after update: %+v", updated)
	}

	entries, err := store.Entries(ctx, acc.ID, 10)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Amount != -40 || entries[0].Balance != 60 || entries[0].Reason != "redeem:hat" {
		t.Fatalf("unexpected journal: %+v", entries)
	}
}

func TestMemoryStoreMutationErrorLeavesStateIntact(t *testing.T) {
	store, acc := seedMemory(t, 10)
	writes := store.Writes()

	_, err := store.Update(context.Background(), acc.ID, func(a *Account) error {
		return a.Debit(50, "too much")
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	got, _ := store.Get(context.Background(), acc.ID)
	if got.Coins != 10 || store.Writes() != writes {
		t.Fatalf("failed mutation changed state: %+v", got)
	}
}

func TestMemoryStoreSkipWrite(t *testing.T) {
	store, acc := seedMemory(t, 10)
	writes := store.Writes()

	got, err := store.Update(context.Background(), acc.ID, func(a *Account) error {
		return ErrSkipWrite
	})
	if err != nil {
		t.Fatalf("skip write returned error: %v", err)
	}
	if got.Version != acc.Version || store.Writes() != writes {
		t.Fatalf("skip write must not commit")
	}
}

func TestMemoryStoreConcurrentDebitsStayNonNegative(t *testing.T) {
	store, acc := seedMemory(t, 500)
	ctx := context.Background()

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, acc.ID, func(a *Account) error {
				return a.Debit(100, "race")
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrInsufficientBalance) && !errors.Is(err, ErrConcurrentModification) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := store.Get(ctx, acc.ID)
	if got.Coins < 0 {
		t.Fatalf("balance went negative: %d", got.Coins)
	}
	if got.Coins != 500-int64(succeeded)*100 {
		t.Fatalf("lost update: balance %d after %d successful debits", got.Coins, succeeded)
	}
	if succeeded > 5 {
		t.Fatalf("more debits succeeded than the balance allows: %d", succeeded)
	}
}

func TestMemoryStoreUnknownAccount(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Update(context.Background(), "nope", func(*Account) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.Entries(context.Background(), "nope", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
