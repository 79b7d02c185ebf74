package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/recoverly/recoverly/internal/account"
	"github.com/recoverly/recoverly/internal/level"
	"github.com/recoverly/recoverly/internal/logging"
	"github.com/recoverly/recoverly/internal/notification"
)

func seed(t *testing.T, coins int64, lvl int) (*account.MemoryStore, string) {
	t.Helper()
	store := account.NewMemoryStore()
	acc := account.New("ledger-1", "seedling", time.Now())
	acc.Coins = coins
	acc.Level = lvl
	store.Seed(acc)
	return store, acc.ID
}

func TestLevelUpBonusCreditedOnce(t *testing.T) {
	store, id := seed(t, 0, 3)
	rec := &notification.Recorder{}
	l := New(store, level.Linear{}, rec, logging.Discard())
	ctx := context.Background()

	res, err := l.Apply(ctx, id, Update{Level: 5, Reason: "quest"})
	require.NoError(t, err)
	require.Equal(t, 5, res.Account.Level)
	require.Equal(t, int64(100), res.Account.Coins)
	require.Equal(t, int64(100), res.Effect.Bonus)

	again, err := l.Apply(ctx, id, Update{Level: 5, Reason: "quest"})
	require.NoError(t, err)
	require.Equal(t, int64(100), again.Account.Coins)
	require.False(t, again.Effect.LeveledUp())

	require.Equal(t, []string{notification.KindLevelUp}, rec.Kinds())

	entries, err := l.Entries(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ReasonLevelUp, entries[0].Reason)
}

func TestApplyUpdateLevelsNeverDecrease(t *testing.T) {
	acc := account.Account{ID: "a", Level: 4, XP: 0}
	eff, err := ApplyUpdate(&acc, Update{XP: 10, Coins: 5, Reason: "check_in"}, level.Linear{})
	require.NoError(t, err)
	require.Equal(t, 4, acc.Level)
	require.Equal(t, int64(0), eff.Bonus)
	require.Equal(t, int64(5), acc.Coins)
	require.Equal(t, int64(10), acc.XP)
}

func TestApplyUpdateXPCrossesLevel(t *testing.T) {
	acc := account.Account{ID: "a", Level: 1, XP: 95}
	eff, err := ApplyUpdate(&acc, Update{XP: 10, Coins: 5, Reason: "check_in"}, level.Linear{})
	require.NoError(t, err)
	require.Equal(t, 2, acc.Level)
	require.Equal(t, int64(LevelUpBonusPerLevel), eff.Bonus)
	require.Equal(t, int64(55), acc.Coins)

	entries := acc.PendingEntries()
	require.Len(t, entries, 2)
	require.Equal(t, ReasonLevelUp, entries[0].Reason)
	require.Equal(t, "check_in", entries[1].Reason)
}

func TestApplyUpdateRejectsNegativeXP(t *testing.T) {
	acc := account.Account{ID: "a", Level: 1}
	_, err := ApplyUpdate(&acc, Update{XP: -1}, nil)
	require.ErrorIs(t, err, account.ErrInvalidAmount)
}

func TestDebitInsufficientLeavesAccountUntouched(t *testing.T) {
	store, id := seed(t, 20, 1)
	l := New(store, nil, nil, logging.Discard())

	_, err := l.Debit(context.Background(), id, 21, "redeem:hat")
	require.ErrorIs(t, err, account.ErrInsufficientBalance)

	bal, err := l.Balance(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, int64(20), bal)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	store, id := seed(t, 300, 1)
	l := New(store, nil, nil, logging.Discard())
	ctx := context.Background()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Debit(ctx, id, 50, "redeem:race")
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			if !errors.Is(err, account.ErrInsufficientBalance) && !errors.Is(err, account.ErrConcurrentModification) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	bal, err := l.Balance(ctx, id)
	require.NoError(t, err)
	require.GreaterOrEqual(t, bal, int64(0))
	require.Equal(t, int64(300-50*ok), bal)
}

func TestCreditUnknownAccount(t *testing.T) {
	l := New(account.NewMemoryStore(), nil, nil, logging.Discard())
	_, err := l.Credit(context.Background(), "missing", 5, "x")
	require.ErrorIs(t, err, account.ErrNotFound)
}
