package account

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/recoverly/recoverly/internal/badge"
)

// Service provisions accounts and serves read-only views.
type Service struct {
	store   Store
	catalog *badge.Catalog
	now     func() time.Time
}

// NewService builds an account service instance.
func NewService(store Store, catalog *badge.Catalog) *Service {
	return &Service{store: store, catalog: catalog, now: time.Now}
}

// WithClock overrides the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Provision creates an account with the starting balance, level one and a
// streak starting now.
func (s *Service) Provision(ctx context.Context) (Account, error) {
	acc := New(uuid.NewString(), s.catalog.Initial().ID, s.now())
	if err := s.store.Create(ctx, acc); err != nil {
		return Account{}, err
	}
	acc.clearJournal()
	return acc, nil
}

// Get reads the stored account without reconciling it.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	return s.store.Get(ctx, id)
}

// Entries returns the newest coin journal lines.
func (s *Service) Entries(ctx context.Context, id string, limit int) ([]Entry, error) {
	return s.store.Entries(ctx, id, limit)
}
