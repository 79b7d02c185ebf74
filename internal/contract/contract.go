// Package contract runs the stake-now, resolve-later commitment contract.
package contract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/recoverly/recoverly/internal/account"
	"github.com/recoverly/recoverly/internal/cascade"
	"github.com/recoverly/recoverly/internal/metrics"
	"github.com/recoverly/recoverly/internal/notification"
	"github.com/recoverly/recoverly/internal/streak"
)

const (
	// StakeAmount is debited when a contract starts.
	StakeAmount int64 = 100
	// RewardAmount is credited when a contract resolves successfully.
	RewardAmount int64 = 150
	// Duration is the contract term.
	Duration = 7 * 24 * time.Hour
	// RequiredStreakDays is the streak length needed at evaluation for success.
	RequiredStreakDays = 7

	reasonStake  = "contract_stake"
	reasonReward = "contract_reward"
)

// State is the lifecycle position of an account's contract.
type State string

const (
	StateNone    State = "none"
	StateActive  State = "active"
	StateExpired State = "expired"
)

// Outcome is the result of an evaluation.
type Outcome string

const (
	// OutcomeNone means there was no active contract to evaluate.
	OutcomeNone Outcome = "none"
	// OutcomePending means the contract has not reached its end yet.
	OutcomePending Outcome = "pending"
	// OutcomeSuccess means the reward was credited.
	OutcomeSuccess Outcome = "resolved_success"
	// OutcomeFailure means the stake was lost.
	OutcomeFailure Outcome = "resolved_failure"
)

// Evaluation captures what Evaluate did.
type Evaluation struct {
	Outcome  Outcome         `json:"outcome"`
	Credited int64           `json:"credited"`
	Account  account.Account `json:"account"`
}

// Resolved reports whether the evaluation settled a contract.
func (e Evaluation) Resolved() bool {
	return e.Outcome == OutcomeSuccess || e.Outcome == OutcomeFailure
}

// Status is a read-only view of the current contract.
type Status struct {
	State            State      `json:"state"`
	StakeAmount      int64      `json:"stake_amount,omitempty"`
	RewardAmount     int64      `json:"reward_amount,omitempty"`
	Start            *time.Time `json:"start,omitempty"`
	End              *time.Time `json:"end,omitempty"`
	RemainingSeconds int64      `json:"remaining_seconds"`
	StreakDays       int        `json:"streak_days"`
}

// Resetter performs the forfeit cascade.
type Resetter interface {
	Reset(ctx context.Context, id string, trigger cascade.Trigger) (cascade.Result, error)
}

// Service starts, evaluates and forfeits contracts.
type Service struct {
	store    account.Store
	resetter Resetter
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds a contract service.
func NewService(store account.Store, resetter Resetter, notifier notification.Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notification.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, resetter: resetter, notifier: notifier, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// StatusOf derives the contract state of acc at now.
func StatusOf(acc account.Account, now time.Time) Status {
	st := Status{State: StateNone, StreakDays: streak.ElapsedDays(acc.StreakStart, now)}
	if !acc.HasActiveContract() {
		return st
	}
	c := acc.Contract
	start, end := c.Start, c.End
	st.StakeAmount = c.StakeAmount
	st.RewardAmount = c.RewardAmount
	st.Start = &start
	st.End = &end
	if now.Before(end) {
		st.State = StateActive
		st.RemainingSeconds = int64(end.Sub(now) / time.Second)
	} else {
		st.State = StateExpired
	}
	return st
}

// Status reports the contract of id without evaluating it.
func (s *Service) Status(ctx context.Context, id string) (Status, error) {
	acc, err := s.store.Get(ctx, id)
	if err != nil {
		return Status{}, err
	}
	return StatusOf(acc, s.now()), nil
}

// Start debits the stake and activates a contract in one transaction. An
// expired contract still awaiting evaluation is settled first.
func (s *Service) Start(ctx context.Context, id string) (account.Account, error) {
	if _, err := s.Evaluate(ctx, id); err != nil {
		return account.Account{}, err
	}

	now := s.now().UTC()
	acc, err := s.store.Update(ctx, id, func(a *account.Account) error {
		if a.HasActiveContract() {
			return account.ErrContractAlreadyActive
		}
		if err := a.Debit(StakeAmount, reasonStake); err != nil {
			return err
		}
		a.Contract = &account.Contract{
			StakeAmount:  StakeAmount,
			RewardAmount: RewardAmount,
			Start:        now,
			End:          now.Add(Duration),
			Active:       true,
		}
		return nil
	})
	if err != nil {
		return account.Account{}, fmt.Errorf("start contract for %s: %w", id, err)
	}

	metrics.ContractsStarted.Inc()
	s.logger.Info("contract started", "account_id", id, "stake", StakeAmount, "end", acc.Contract.End)
	s.send(ctx, notification.KindContractStarted, id, fmt.Sprintf("staked %d coins until %s", StakeAmount, acc.Contract.End.Format(time.RFC3339)))
	return acc, nil
}

// Evaluate settles an expired contract. It does nothing before the contract
// end or when no contract is active, so it is safe to call on every load.
func (s *Service) Evaluate(ctx context.Context, id string) (Evaluation, error) {
	now := s.now().UTC()
	acc, err := s.store.Get(ctx, id)
	if err != nil {
		return Evaluation{}, err
	}
	switch StatusOf(acc, now).State {
	case StateNone:
		return Evaluation{Outcome: OutcomeNone, Account: acc}, nil
	case StateActive:
		return Evaluation{Outcome: OutcomePending, Account: acc}, nil
	}

	var (
		ev  Evaluation
		lag time.Duration
	)
	acc, err = s.store.Update(ctx, id, func(a *account.Account) error {
		ev = Evaluation{Outcome: OutcomeNone}
		if !a.HasActiveContract() {
			return account.ErrSkipWrite
		}
		if now.Before(a.Contract.End) {
			ev.Outcome = OutcomePending
			return account.ErrSkipWrite
		}
		lag = now.Sub(a.Contract.End)
		a.Contract.Active = false
		if streak.ElapsedDays(a.StreakStart, now) >= RequiredStreakDays {
			ev.Outcome = OutcomeSuccess
			ev.Credited = a.Contract.RewardAmount
			return a.Credit(a.Contract.RewardAmount, reasonReward)
		}
		ev.Outcome = OutcomeFailure
		return nil
	})
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate contract for %s: %w", id, err)
	}
	ev.Account = acc

	if ev.Resolved() {
		metrics.ContractResolutions.WithLabelValues(string(ev.Outcome)).Inc()
		metrics.ContractSettlementLag.Observe(lag.Seconds())
		s.logger.Info("contract settled", "account_id", id, "outcome", string(ev.Outcome), "credited", ev.Credited)
		s.send(ctx, notification.KindContractSettled, id, string(ev.Outcome))
	}
	return ev, nil
}

// DeclareForfeit gives up the active contract through the reset cascade. The
// stake is not refunded and no further penalty applies.
func (s *Service) DeclareForfeit(ctx context.Context, id string) (cascade.Result, error) {
	return s.resetter.Reset(ctx, id, cascade.TriggerForfeit)
}

func (s *Service) send(ctx context.Context, kind, id, body string) {
	if err := s.notifier.Send(ctx, notification.Message{Kind: kind, Destination: id, Body: body}); err != nil {
		s.logger.Warn("contract notification failed", "account_id", id, "kind", kind, "error", err)
	}
}
