package custody

import "fmt"

// SimVault is an in-memory Vault for tests and local runs. Yield is applied
// explicitly via Accrue, and liquidity can be capped to exercise withdrawal
// failure paths.
type SimVault struct {
	held         int64
	liquidityCap int64 // 0 = unlimited per-withdrawal
	failNext     bool
}

func NewSimVault() *SimVault {
	return &SimVault{}
}

// Deposit implements Vault.
func (v *SimVault) Deposit(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("custody: negative deposit %d", amount)
	}
	v.held += amount
	return nil
}

// Withdraw implements Vault.
func (v *SimVault) Withdraw(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("custody: negative withdrawal %d", amount)
	}
	if v.failNext {
		v.failNext = false
		return ErrInsufficientLiquidity
	}
	if v.liquidityCap > 0 && amount > v.liquidityCap {
		return ErrInsufficientLiquidity
	}
	if amount > v.held {
		return ErrInsufficientLiquidity
	}
	v.held -= amount
	return nil
}

// TotalHeld implements Vault.
func (v *SimVault) TotalHeld() (int64, error) {
	return v.held, nil
}

// Accrue applies yield: positive delta simulates reserve gains, negative
// delta simulates losses. Held value never goes below zero.
func (v *SimVault) Accrue(delta int64) {
	v.held += delta
	if v.held < 0 {
		v.held = 0
	}
}

// SetLiquidityCap bounds the size of a single withdrawal.
func (v *SimVault) SetLiquidityCap(cap int64) {
	v.liquidityCap = cap
}

// FailNextWithdrawal makes the next withdrawal fail regardless of liquidity.
func (v *SimVault) FailNextWithdrawal() {
	v.failNext = true
}
