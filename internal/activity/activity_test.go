package activity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/recoverly/recoverly/internal/account"
	"github.com/recoverly/recoverly/internal/ledger"
	"github.com/recoverly/recoverly/internal/level"
	"github.com/recoverly/recoverly/internal/logging"
)

func setupRedisGuard(t *testing.T) (*RedisGuard, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return NewRedisGuard(cache, time.Hour), mr
}

func newService(t *testing.T, guard Guard) (*Service, *account.MemoryStore, string) {
	t.Helper()
	store := account.NewMemoryStore()
	acc := account.New("activity-1", "seedling", time.Now())
	store.Seed(acc)
	l := ledger.New(store, level.Linear{}, nil, logging.Discard())
	return NewService(l, guard, logging.Discard()), store, acc.ID
}

func TestRedisGuardLifecycle(t *testing.T) {
	guard, mr := setupRedisGuard(t)
	ctx := context.Background()

	if err := guard.Begin(ctx, "k"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := guard.Begin(ctx, "k"); !errors.Is(err, ErrInProgress) {
		t.Fatalf("expected in progress, got %v", err)
	}
	if err := guard.Complete(ctx, "k"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := guard.Begin(ctx, "k"); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected already completed, got %v", err)
	}

	mr.FastForward(2 * time.Hour)
	if err := guard.Begin(ctx, "k"); err != nil {
		t.Fatalf("expired key should be reusable: %v", err)
	}
	if err := guard.Abort(ctx, "k"); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if err := guard.Begin(ctx, "k"); err != nil {
		t.Fatalf("aborted key should be reusable: %v", err)
	}
}

func TestConcurrentDuplicateCompletionsCreditOnce(t *testing.T) {
	guard, _ := setupRedisGuard(t)
	svc, store, id := newService(t, guard)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		rewarded atomic.Int64
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Complete(ctx, id, Completion{Kind: "puzzle", CompletionID: "p-42"})
			switch {
			case err == nil:
				rewarded.Add(1)
			case errors.Is(err, ErrInProgress), errors.Is(err, ErrAlreadyCompleted):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if rewarded.Load() != 1 {
		t.Fatalf("expected one reward, got %d", rewarded.Load())
	}
	acc, _ := store.Get(ctx, id)
	if acc.Coins != account.StartingCoins+Rewards["puzzle"].Coins || acc.XP != Rewards["puzzle"].XP {
		t.Fatalf("expected a single credit, got coins=%d xp=%d", acc.Coins, acc.XP)
	}
}

func TestCompleteFailureReleasesGuard(t *testing.T) {
	guard := NewMemoryGuard(time.Hour)
	svc, _, _ := newService(t, guard)
	ctx := context.Background()

	if _, err := svc.Complete(ctx, "missing", Completion{Kind: "journal", CompletionID: "j-1"}); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := guard.Begin(ctx, "missing/journal/j-1"); err != nil {
		t.Fatalf("failed completion must release its reservation: %v", err)
	}
}

func TestCompleteRejectsUnknownKind(t *testing.T) {
	svc, _, id := newService(t, NewMemoryGuard(time.Hour))
	if _, err := svc.Complete(context.Background(), id, Completion{Kind: "skydiving", CompletionID: "x"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected unknown kind, got %v", err)
	}
}

func TestConcurrentRedemptionsSerialised(t *testing.T) {
	svc, store, id := newService(t, NewMemoryGuard(time.Hour))
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		redeemed atomic.Int64
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Redeem(ctx, id, "hat", 20); err == nil {
				redeemed.Add(1)
			}
		}()
	}
	wg.Wait()

	acc, _ := store.Get(ctx, id)
	if acc.Coins < 0 {
		t.Fatalf("balance went negative: %d", acc.Coins)
	}
	if acc.Coins != account.StartingCoins-20*redeemed.Load() {
		t.Fatalf("balance %d does not match %d redemptions", acc.Coins, redeemed.Load())
	}
	if redeemed.Load() > 2 {
		t.Fatalf("redeemed more than the balance allows: %d", redeemed.Load())
	}
}
