package account

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no account exists for the identifier.
	ErrNotFound = errors.New("account not found")

	// ErrInvalidAmount rejects zero or negative ledger amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientBalance occurs when a debit exceeds the authoritative balance.
	// The account is left untouched.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrContractAlreadyActive rejects starting a commitment contract while another is active.
	ErrContractAlreadyActive = errors.New("commitment contract already active")

	// ErrNoActiveContract rejects forfeiting when nothing is staked.
	ErrNoActiveContract = errors.New("no active commitment contract")

	// ErrConcurrentModification indicates the transaction kept losing races with
	// other writers. Operations re-read state, so callers may retry.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrStoreUnavailable wraps connectivity failures of the backing store.
	ErrStoreUnavailable = errors.New("account store unavailable")

	// ErrSkipWrite is returned by a Mutation to end the transaction without
	// writing anything. Update then returns the current snapshot and no error.
	ErrSkipWrite = errors.New("skip write")
)

// unavailable classifies a driver failure as ErrStoreUnavailable while keeping
// the driver error in the chain. Cancellation is the caller's, not the store's.
func unavailable(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
