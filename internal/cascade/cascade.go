// Package cascade resets a streak together with everything that depends on it.
package cascade

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/recoverly/recoverly/internal/account"
	"github.com/recoverly/recoverly/internal/badge"
	"github.com/recoverly/recoverly/internal/metrics"
	"github.com/recoverly/recoverly/internal/notification"
	"github.com/recoverly/recoverly/internal/streak"
)

// Trigger names what caused a reset.
type Trigger string

const (
	// TriggerRestart is a user-initiated streak restart.
	TriggerRestart Trigger = "restart"
	// TriggerForfeit is a declared forfeit of the active contract.
	TriggerForfeit Trigger = "forfeit"
)

// Result describes a committed reset.
type Result struct {
	Account        account.Account `json:"account"`
	Trigger        Trigger         `json:"trigger"`
	EndedStreak    int             `json:"ended_streak_days"`
	ForfeitedStake int64           `json:"forfeited_stake"`
}

// Coordinator performs the restart/forfeit cascade as a single store update,
// so observers see either the whole reset or none of it.
type Coordinator struct {
	store    account.Store
	catalog  *badge.Catalog
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewCoordinator builds a cascade coordinator.
func NewCoordinator(store account.Store, catalog *badge.Catalog, notifier notification.Notifier, logger *slog.Logger) *Coordinator {
	if notifier == nil {
		notifier = notification.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{store: store, catalog: catalog, notifier: notifier, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// Reset sets the streak start to now, drops the badge to the first tier and
// deactivates any active contract without refund. A forfeit additionally
// requires an active contract, checked in the same transaction.
func (c *Coordinator) Reset(ctx context.Context, id string, trigger Trigger) (Result, error) {
	if trigger != TriggerRestart && trigger != TriggerForfeit {
		return Result{}, fmt.Errorf("unknown reset trigger %q", trigger)
	}

	now := c.now().UTC()
	initial := c.catalog.Initial().ID
	var res Result
	acc, err := c.store.Update(ctx, id, func(a *account.Account) error {
		res = Result{Trigger: trigger}
		if trigger == TriggerForfeit && !a.HasActiveContract() {
			return account.ErrNoActiveContract
		}
		res.EndedStreak = streak.ElapsedDays(a.StreakStart, now)
		a.LongestStreakDays = max(a.LongestStreakDays, res.EndedStreak)
		a.StreakStart = now
		a.BadgeTier = initial
		if a.HasActiveContract() {
			res.ForfeitedStake = a.Contract.StakeAmount
			a.Contract.Active = false
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("%s %s: %w", trigger, id, err)
	}
	res.Account = acc

	metrics.CascadeResets.WithLabelValues(string(trigger)).Inc()
	if res.ForfeitedStake > 0 {
		metrics.ContractResolutions.WithLabelValues("forfeit").Inc()
	}
	c.logger.Info("streak reset",
		"account_id", id,
		"trigger", string(trigger),
		"ended_streak_days", res.EndedStreak,
		"forfeited_stake", res.ForfeitedStake,
	)
	if err := c.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindStreakReset,
		Destination: id,
		Body:        fmt.Sprintf("%s after %d days", trigger, res.EndedStreak),
	}); err != nil {
		c.logger.Warn("reset notification failed", "account_id", id, "error", err)
	}
	return res, nil
}
