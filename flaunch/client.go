package flaunch

import (
	"context"
	"time"
)

// TxHandle identifies a transaction submitted to the ledger.
type TxHandle string

// TxStatus is the resolution of a submitted transaction.
type TxStatus int

const (
	TxConfirmed TxStatus = iota
	TxFailed
	// TxTimedOut means the transaction did not resolve within the caller's
	// deadline. It may still land; the outcome is unknown.
	TxTimedOut
)

// ConfirmationResult is the outcome reported by the confirmation service.
// Code carries the ledger's rejection code when Status is TxFailed.
type ConfirmationResult struct {
	Status TxStatus
	Code   string
}

// LedgerQuery reads sale state from the external ledger. All methods are
// read-only and idempotent; they may be called concurrently with an
// in-flight mutating action.
type LedgerQuery interface {
	// GetSaleState returns the sale's immutable config and mutable state.
	GetSaleState(ctx context.Context, sale AccountID) (*SaleConfig, *SaleState, error)

	// GetTicket returns the participant's ticket, or nil when the
	// participant has not bid.
	GetTicket(ctx context.Context, sale, participant AccountID) (*Ticket, error)

	// GetLotteryMask returns the raw lottery account bytes, or nil when
	// the lottery account has not been created yet.
	GetLotteryMask(ctx context.Context, sale AccountID) ([]byte, error)

	// GetSecondaryLaunchState returns the redemption-stage state, or nil
	// when no secondary launch is configured.
	GetSecondaryLaunchState(ctx context.Context, sale AccountID) (*SecondaryLaunch, error)

	// GetBalance returns the participant's spendable balance in base units.
	GetBalance(ctx context.Context, participant AccountID) (uint64, error)

	// GetTokenBalance returns the participant's balance of the given mint,
	// used for the redemption-token short circuit.
	GetTokenBalance(ctx context.Context, mint, participant AccountID) (uint64, error)
}

// LedgerMutator submits signed state transitions through the external
// wallet/signing collaborator. Submission is asynchronous; the returned
// handle must be passed to a TxConfirmer to learn the outcome.
type LedgerMutator interface {
	SubmitBid(ctx context.Context, sale, participant AccountID, amount uint64) (TxHandle, error)
	PunchTicket(ctx context.Context, sale, participant AccountID) (TxHandle, error)
	WithdrawTicket(ctx context.Context, sale, participant AccountID) (TxHandle, error)
	AntiRugRefund(ctx context.Context, sale, participant AccountID) (TxHandle, error)
	Redeem(ctx context.Context, sale, participant AccountID) (TxHandle, error)
}

// TxConfirmer waits for a submitted transaction to resolve. A TxTimedOut
// result is not an error return; transport failures are.
type TxConfirmer interface {
	AwaitConfirmation(ctx context.Context, handle TxHandle, timeout time.Duration) (ConfirmationResult, error)
}
