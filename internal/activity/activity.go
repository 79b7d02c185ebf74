// Package activity rewards client-reported side activities and spends coins on
// redemptions.
package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/recoverly/recoverly/internal/account"
	"github.com/recoverly/recoverly/internal/ledger"
	"github.com/recoverly/recoverly/internal/metrics"
)

// ErrUnknownKind rejects activities without a reward entry.
var ErrUnknownKind = errors.New("unknown activity kind")

// Reward is what one completion of an activity earns.
type Reward struct {
	XP    int64 `json:"xp"`
	Coins int64 `json:"coins"`
}

// Rewards is the fixed reward table.
var Rewards = map[string]Reward{
	"puzzle":     {XP: 15, Coins: 5},
	"breathing":  {XP: 5, Coins: 2},
	"journal":    {XP: 10, Coins: 3},
	"meditation": {XP: 10, Coins: 4},
}

// Kinds lists the rewarded activity kinds in name order.
func Kinds() []string {
	out := make([]string, 0, len(Rewards))
	for k := range Rewards {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Completion is a client report that an activity finished.
type Completion struct {
	Kind         string `json:"kind"`
	CompletionID string `json:"completion_id"`
}

// Result is the outcome of a rewarded completion.
type Result struct {
	Kind    string          `json:"kind"`
	Reward  Reward          `json:"reward"`
	Bonus   int64           `json:"level_up_bonus,omitempty"`
	Account account.Account `json:"account"`
}

// Service applies activity rewards and redemptions through the ledger.
type Service struct {
	ledger *ledger.Ledger
	guard  Guard
	logger *slog.Logger
}

// NewService builds an activity service.
func NewService(l *ledger.Ledger, guard Guard, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: l, guard: guard, logger: logger}
}

// Complete rewards a trusted completion report. Repeats of the same
// completion id are rejected by the guard and never credit twice.
func (s *Service) Complete(ctx context.Context, id string, c Completion) (Result, error) {
	kind := strings.ToLower(strings.TrimSpace(c.Kind))
	reward, ok := Rewards[kind]
	if !ok {
		metrics.ActivityCompletions.WithLabelValues("unknown", "rejected").Inc()
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
	if strings.TrimSpace(c.CompletionID) == "" {
		return Result{}, errors.New("completion_id is required")
	}

	key := id + "/" + kind + "/" + c.CompletionID
	if err := s.guard.Begin(ctx, key); err != nil {
		metrics.ActivityCompletions.WithLabelValues(kind, "duplicate").Inc()
		return Result{}, err
	}

	res, err := s.ledger.Apply(ctx, id, ledger.Update{XP: reward.XP, Coins: reward.Coins, Reason: "activity:" + kind})
	if err != nil {
		if abortErr := s.guard.Abort(ctx, key); abortErr != nil {
			s.logger.Warn("release activity guard", "account_id", id, "key", key, "error", abortErr)
		}
		metrics.ActivityCompletions.WithLabelValues(kind, "error").Inc()
		return Result{}, err
	}
	if err := s.guard.Complete(ctx, key); err != nil {
		s.logger.Warn("mark activity completed", "account_id", id, "key", key, "error", err)
	}
	metrics.ActivityCompletions.WithLabelValues(kind, "ok").Inc()
	s.logger.Info("activity rewarded", "account_id", id, "kind", kind, "xp", reward.XP, "coins", reward.Coins)
	return Result{Kind: kind, Reward: reward, Bonus: res.Effect.Bonus, Account: res.Account}, nil
}

// Redeem spends cost coins on item.
func (s *Service) Redeem(ctx context.Context, id, item string, cost int64) (account.Account, error) {
	item = strings.TrimSpace(item)
	if item == "" {
		return account.Account{}, errors.New("item is required")
	}
	return s.ledger.Debit(ctx, id, cost, "redeem:"+item)
}
