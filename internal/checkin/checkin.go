// Package checkin grants the once-per-day check-in reward.
package checkin

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/recoverly/recoverly/internal/account"
	"github.com/recoverly/recoverly/internal/ledger"
	"github.com/recoverly/recoverly/internal/metrics"
)

const (
	// RewardXP is granted once per calendar date.
	RewardXP int64 = 10
	// RewardCoins is granted once per calendar date.
	RewardCoins int64 = 5

	dateLayout = "2006-01-02"
	reason     = "check_in"
)

// Result reports whether a check-in earned its reward.
type Result struct {
	Awarded bool            `json:"awarded"`
	Date    string          `json:"date"`
	Bonus   int64           `json:"level_up_bonus,omitempty"`
	Account account.Account `json:"account"`
}

// Service records daily check-ins.
type Service struct {
	store    account.Store
	ledger   *ledger.Ledger
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds a check-in service. Dates are computed in loc, UTC when nil.
func NewService(store account.Store, l *ledger.Ledger, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, ledger: l, location: loc, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Today returns the check-in date for the current instant.
func (s *Service) Today() string {
	return s.now().In(s.location).Format(dateLayout)
}

// CheckIn awards +10 XP and +5 coins the first time it is called on a date.
// Later calls on the same date return Awarded=false and write nothing.
func (s *Service) CheckIn(ctx context.Context, id string) (Result, error) {
	date := s.Today()

	var (
		awarded bool
		eff     ledger.Effect
	)
	acc, err := s.store.Update(ctx, id, func(a *account.Account) error {
		awarded = false
		eff = ledger.Effect{}
		if a.LastCheckIn == date {
			return account.ErrSkipWrite
		}
		a.LastCheckIn = date
		var err error
		eff, err = ledger.ApplyUpdate(a, ledger.Update{XP: RewardXP, Coins: RewardCoins, Reason: reason}, s.ledger.Curve())
		if err != nil {
			return err
		}
		awarded = true
		return nil
	})
	metrics.CheckIns.WithLabelValues(strconv.FormatBool(awarded)).Inc()
	if err != nil {
		return Result{}, fmt.Errorf("check in %s: %w", id, err)
	}
	if awarded {
		s.logger.Info("check-in awarded", "account_id", id, "date", date, "xp", acc.XP, "coins", acc.Coins)
		s.ledger.AfterCommit(ctx, acc, eff)
	}
	return Result{Awarded: awarded, Date: date, Bonus: eff.Bonus, Account: acc}, nil
}
