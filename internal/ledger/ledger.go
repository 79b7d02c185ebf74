// Package ledger owns coin and experience mutations of an account.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/recoverly/recoverly/internal/account"
	"github.com/recoverly/recoverly/internal/level"
	"github.com/recoverly/recoverly/internal/metrics"
	"github.com/recoverly/recoverly/internal/notification"
)

// LevelUpBonusPerLevel is credited for every level gained.
const LevelUpBonusPerLevel int64 = 50

// ReasonLevelUp is the journal reason of level-up bonuses.
const ReasonLevelUp = "level_up"

// Update is a combined coin and experience change. Coins is a signed delta,
// XP is non-negative and Level, when set, is a floor for the resulting level.
type Update struct {
	Coins  int64
	XP     int64
	Level  int
	Reason string
}

// Effect describes what ApplyUpdate did to an account.
type Effect struct {
	OldLevel int
	NewLevel int
	Bonus    int64
}

// LeveledUp reports whether the update raised the level.
func (e Effect) LeveledUp() bool {
	return e.NewLevel > e.OldLevel
}

// Result captures the outcome of a ledger mutation.
type Result struct {
	Account account.Account
	Effect  Effect
}

// ApplyUpdate folds upd into acc. The level bonus uses the level already on
// acc, so callers must pass the copy read inside their transaction. An update
// that changes nothing returns account.ErrSkipWrite.
func ApplyUpdate(acc *account.Account, upd Update, curve level.Curve) (Effect, error) {
	if upd.XP < 0 {
		return Effect{}, account.ErrInvalidAmount
	}
	if upd.Coins == 0 && upd.XP == 0 && upd.Level <= acc.Level {
		return Effect{}, account.ErrSkipWrite
	}

	eff := Effect{OldLevel: acc.Level, NewLevel: acc.Level}
	acc.XP += upd.XP

	target := upd.Level
	if curve != nil {
		fromXP, err := curve.LevelFor(acc.XP)
		if err != nil {
			return Effect{}, err
		}
		target = max(target, fromXP)
	}
	if target > acc.Level {
		eff.NewLevel = target
		eff.Bonus = LevelUpBonusPerLevel * int64(target-acc.Level)
		acc.Level = target
		if err := acc.Credit(eff.Bonus, ReasonLevelUp); err != nil {
			return Effect{}, err
		}
	}

	switch {
	case upd.Coins > 0:
		if err := acc.Credit(upd.Coins, upd.Reason); err != nil {
			return Effect{}, err
		}
	case upd.Coins < 0:
		if err := acc.Debit(-upd.Coins, upd.Reason); err != nil {
			return Effect{}, err
		}
	}
	return eff, nil
}

// Ledger applies coin and experience changes through the account store.
type Ledger struct {
	store    account.Store
	curve    level.Curve
	notifier notification.Notifier
	logger   *slog.Logger
}

// New builds a ledger. A nil curve derives levels only from explicit updates.
func New(store account.Store, curve level.Curve, notifier notification.Notifier, logger *slog.Logger) *Ledger {
	if notifier == nil {
		notifier = notification.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, curve: curve, notifier: notifier, logger: logger}
}

// Curve exposes the configured level curve.
func (l *Ledger) Curve() level.Curve {
	return l.curve
}

// Credit adds amount coins.
func (l *Ledger) Credit(ctx context.Context, id string, amount int64, reason string) (account.Account, error) {
	acc, err := l.store.Update(ctx, id, func(a *account.Account) error {
		return a.Credit(amount, reason)
	})
	metrics.LedgerOperations.WithLabelValues("credit", metrics.Result(err)).Inc()
	if err != nil {
		return account.Account{}, fmt.Errorf("credit %s: %w", id, err)
	}
	l.logger.Info("coins credited", "account_id", id, "amount", amount, "reason", reason, "balance", acc.Coins)
	return acc, nil
}

// Debit removes amount coins. An insufficient balance leaves the account untouched.
func (l *Ledger) Debit(ctx context.Context, id string, amount int64, reason string) (account.Account, error) {
	acc, err := l.store.Update(ctx, id, func(a *account.Account) error {
		return a.Debit(amount, reason)
	})
	metrics.LedgerOperations.WithLabelValues("debit", metrics.Result(err)).Inc()
	if err != nil {
		return account.Account{}, fmt.Errorf("debit %s: %w", id, err)
	}
	l.logger.Info("coins debited", "account_id", id, "amount", amount, "reason", reason, "balance", acc.Coins)
	return acc, nil
}

// Apply runs a combined update in one transaction, crediting the level-up
// bonus exactly once.
func (l *Ledger) Apply(ctx context.Context, id string, upd Update) (Result, error) {
	var eff Effect
	acc, err := l.store.Update(ctx, id, func(a *account.Account) error {
		var err error
		eff, err = ApplyUpdate(a, upd, l.curve)
		return err
	})
	metrics.LedgerOperations.WithLabelValues("apply", metrics.Result(err)).Inc()
	if err != nil {
		return Result{}, fmt.Errorf("apply update to %s: %w", id, err)
	}
	l.AfterCommit(ctx, acc, eff)
	return Result{Account: acc, Effect: eff}, nil
}

// AfterCommit records metrics and notifications for an effect already committed.
// Services that call ApplyUpdate inside their own transaction use it too.
func (l *Ledger) AfterCommit(ctx context.Context, acc account.Account, eff Effect) {
	if !eff.LeveledUp() {
		return
	}
	metrics.LevelUpBonus.Add(float64(eff.Bonus))
	l.logger.Info("level up", "account_id", acc.ID, "from", eff.OldLevel, "to", eff.NewLevel, "bonus", eff.Bonus)
	if err := l.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindLevelUp,
		Destination: acc.ID,
		Body:        "reached level " + strconv.Itoa(eff.NewLevel),
	}); err != nil {
		l.logger.Warn("level up notification failed", "account_id", acc.ID, "error", err)
	}
}

// Balance reads the current coin balance.
func (l *Ledger) Balance(ctx context.Context, id string) (int64, error) {
	acc, err := l.store.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return acc.Coins, nil
}

// Entries returns the newest journal lines first.
func (l *Ledger) Entries(ctx context.Context, id string, limit int) ([]account.Entry, error) {
	return l.store.Entries(ctx, id, limit)
}
