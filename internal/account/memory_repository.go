package account

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// MemoryStore keeps accounts in process. Writers use optimistic concurrency:
// a mutation runs outside the lock and commits only if the version it read
// is still current.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	entries  map[string][]Entry
	writes   atomic.Int64
}

// NewMemoryStore constructs an empty in-memory store for tests and local development.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]Account),
		entries:  make(map[string][]Entry),
	}
}

func (s *MemoryStore) Create(_ context.Context, acc Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[acc.ID]; exists {
		return errors.New("account exists")
	}
	s.entries[acc.ID] = append(s.entries[acc.ID], stamp(acc.PendingEntries(), acc)...)
	acc.clearJournal()
	s.accounts[acc.ID] = acc
	s.writes.Add(1)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acc.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn Mutation) (Account, error) {
	var out Account
	err := retry(ctx, func() (bool, error) {
		current, err := s.Get(ctx, id)
		if err != nil {
			return false, err
		}
		next, write, err := apply(current, fn)
		if err != nil {
			return false, err
		}
		if !write {
			out = current
			return false, nil
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.accounts[id].Version != current.Version {
			return true, nil
		}
		s.entries[id] = append(s.entries[id], next.PendingEntries()...)
		next.clearJournal()
		s.accounts[id] = next
		s.writes.Add(1)
		out = next.Clone()
		return false, nil
	})
	if err != nil {
		return Account{}, err
	}
	return out, nil
}

func (s *MemoryStore) Entries(_ context.Context, id string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.accounts[id]; !ok {
		return nil, ErrNotFound
	}
	all := s.entries[id]
	limit = clampLimit(limit)
	out := make([]Entry, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// Writes reports how many commits the store has accepted.
func (s *MemoryStore) Writes() int64 {
	return s.writes.Load()
}

// Seed replaces an account wholesale. Test helper.
func (s *MemoryStore) Seed(acc Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc.clearJournal()
	s.accounts[acc.ID] = acc
}

func stamp(entries []Entry, acc Account) []Entry {
	for i := range entries {
		entries[i].AccountID = acc.ID
		entries[i].CreatedAt = acc.CreatedAt
	}
	return entries
}
