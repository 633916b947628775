package custody

import "errors"

// ErrInsufficientLiquidity is the retryable failure a Vault returns when it
// cannot service a withdrawal right now. The caller must roll back whatever
// credit it was paying out and surface the error to that claimant only.
var ErrInsufficientLiquidity = errors.New("custody: insufficient external liquidity")

// Vault is the settlement-asset custody collaborator. It may park funds in a
// yield-bearing reserve, so TotalHeld can drift from the sum deposited; the
// ledger captures that drift as yield gain or loss.
//
// All amounts are settlement-asset base units (math.AmountConfig scale).
type Vault interface {
	// Deposit moves amount into custody.
	Deposit(amount int64) error

	// Withdraw moves amount out of custody to the claimant. May fail with
	// ErrInsufficientLiquidity; the operation must then have no effect.
	Withdraw(amount int64) error

	// TotalHeld reports the current externally-held value, including any
	// accrued yield or absorbed loss.
	TotalHeld() (int64, error)
}
