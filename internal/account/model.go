package account

import "time"

const (
	// StartingCoins is granted when an account is provisioned.
	StartingCoins int64 = 50
	// StartingLevel is the level of a freshly provisioned account.
	StartingLevel = 1
)

// Account is the progress ledger of one user: balance, experience and streak.
type Account struct {
	ID                string    `json:"id"`
	Coins             int64     `json:"coins"`
	Level             int       `json:"level"`
	XP                int64     `json:"xp"`
	StreakStart       time.Time `json:"streak_start"`
	BadgeTier         string    `json:"badge_tier"`
	LastCheckIn       string    `json:"last_check_in,omitempty"`
	LongestStreakDays int       `json:"longest_streak_days"`
	Contract          *Contract `json:"contract,omitempty"`
	Version           int64     `json:"version"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	journal []Entry
}

// Contract is a time-boxed commitment stake.
type Contract struct {
	StakeAmount  int64     `json:"stake_amount"`
	RewardAmount int64     `json:"reward_amount"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Active       bool      `json:"active"`
}

// Entry is one line of the coin journal.
type Entry struct {
	AccountID string    `json:"account_id"`
	Amount    int64     `json:"amount"`
	Balance   int64     `json:"balance"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// HasActiveContract reports whether a stake is currently running.
func (a *Account) HasActiveContract() bool {
	return a.Contract != nil && a.Contract.Active
}

// Credit adds amount to the balance and journals it.
func (a *Account) Credit(amount int64, reason string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	a.Coins += amount
	a.record(amount, reason)
	return nil
}

// Debit removes amount from the balance. The balance never goes negative.
func (a *Account) Debit(amount int64, reason string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.Coins < amount {
		return ErrInsufficientBalance
	}
	a.Coins -= amount
	a.record(-amount, reason)
	return nil
}

// PendingEntries returns journal lines recorded since the account was loaded.
func (a *Account) PendingEntries() []Entry {
	out := make([]Entry, len(a.journal))
	copy(out, a.journal)
	return out
}

func (a *Account) record(amount int64, reason string) {
	a.journal = append(a.journal, Entry{
		AccountID: a.ID,
		Amount:    amount,
		Balance:   a.Coins,
		Reason:    reason,
	})
}

func (a *Account) clearJournal() {
	a.journal = nil
}

// Clone returns a deep copy safe to mutate.
func (a Account) Clone() Account {
	out := a
	if a.Contract != nil {
		c := *a.Contract
		out.Contract = &c
	}
	if a.journal != nil {
		out.journal = make([]Entry, len(a.journal))
		copy(out.journal, a.journal)
	}
	return out
}

// New builds a provisioned account with the starting balance already journaled.
func New(id string, initialTier string, now time.Time) Account {
	now = now.UTC()
	acc := Account{
		ID:          id,
		Level:       StartingLevel,
		StreakStart: now,
		BadgeTier:   initialTier,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_ = acc.Credit(StartingCoins, "provision")
	return acc
}
