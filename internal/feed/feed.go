// Package feed fans committed account snapshots out to subscribers.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/recoverly/recoverly/internal/account"
)

const (
	channelPrefix = "recoverly:account:"
	bufferSize    = 16
)

// Channel is the pub/sub channel carrying snapshots of account id.
func Channel(id string) string {
	return channelPrefix + id
}

// Feed publishes snapshots and lets callers follow one account. The returned
// channel closes when ctx is cancelled.
type Feed interface {
	account.Notifier
	Subscribe(ctx context.Context, id string) (<-chan account.Account, error)
}

// Memory is an in-process feed. Slow subscribers miss snapshots rather than
// blocking writers.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[chan account.Account]struct{}
}

// NewMemory builds an in-process feed.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[chan account.Account]struct{})}
}

// Publish implements account.Notifier.
func (m *Memory) Publish(_ context.Context, acc account.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs[acc.ID] {
		select {
		case ch <- acc.Clone():
		default:
		}
	}
	return nil
}

// Subscribe implements Feed.
func (m *Memory) Subscribe(ctx context.Context, id string) (<-chan account.Account, error) {
	ch := make(chan account.Account, bufferSize)
	m.mu.Lock()
	if m.subs[id] == nil {
		m.subs[id] = make(map[chan account.Account]struct{})
	}
	m.subs[id][ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs[id], ch)
		if len(m.subs[id]) == 0 {
			delete(m.subs, id)
		}
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}

// Redis carries JSON snapshots over Redis pub/sub so every API instance sees them.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis builds a Redis-backed feed.
func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, logger: logger}
}

// Publish implements account.Notifier.
func (r *Redis) Publish(ctx context.Context, acc account.Account) error {
	payload, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := r.client.Publish(ctx, Channel(acc.ID), payload).Err(); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// Subscribe implements Feed. It returns once Redis has confirmed the subscription.
func (r *Redis) Subscribe(ctx context.Context, id string) (<-chan account.Account, error) {
	ps := r.client.Subscribe(ctx, Channel(id))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(id), err)
	}

	out := make(chan account.Account, bufferSize)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var acc account.Account
				if err := json.Unmarshal([]byte(msg.Payload), &acc); err != nil {
					r.logger.Warn("drop undecodable snapshot", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- acc:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
