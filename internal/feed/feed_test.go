package feed

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/recoverly/recoverly/internal/account"
	"github.com/recoverly/recoverly/internal/logging"
)

func receive(t *testing.T, ch <-chan account.Account) account.Account {
	t.Helper()
	select {
	case acc, ok := <-ch:
		if !ok {
			t.Fatalf("feed closed before delivering")
		}
		return acc
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	return account.Account{}
}

func TestMemoryFeedDelivers(t *testing.T) {
	f := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := f.Subscribe(ctx, "a1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := f.Publish(context.Background(), account.Account{ID: "a2", Coins: 1}); err != nil {
		t.Fatalf("publish other: %v", err)
	}
	if err := f.Publish(context.Background(), account.Account{ID: "a1", Coins: 7}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := receive(t, ch); got.ID != "a1" || got.Coins != 7 {
		t.Fatalf("unexpected snapshot %+v", got)
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}

func TestRedisFeedDelivers(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	f := NewRedis(client, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := f.Subscribe(ctx, "acc-9")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	snapshot := account.Account{ID: "acc-9", Coins: 42, Level: 3, BadgeTier: "sprout", Version: 5}
	if err := f.Publish(context.Background(), snapshot); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got := receive(t, ch)
	if got.ID != snapshot.ID || got.Coins != 42 || got.BadgeTier != "sprout" || got.Version != 5 {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}

func TestPublishedStoreFeedsSubscribers(t *testing.T) {
	f := NewMemory()
	store := account.NewPublished(account.NewMemoryStore(), f, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	acc := account.New("pub-feed", "seedling", time.Now())
	ch, _ := f.Subscribe(ctx, acc.ID)
	if err := store.Create(ctx, acc); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := receive(t, ch); got.Coins != account.StartingCoins {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if _, err := store.Update(ctx, acc.ID, func(a *account.Account) error { return a.Credit(3, "t") }); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := receive(t, ch); got.Coins != account.StartingCoins+3 {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}
