package ledger

import "fmt"

// InvariantValidator checks the accountant's conservation and solvency
// invariants. Violations are fatal logic errors; the settlement core panics
// on them rather than continuing with a corrupt ledger.
type InvariantValidator struct {
	acct *Accountant
}

func NewInvariantValidator(acct *Accountant) *InvariantValidator {
	return &InvariantValidator{acct: acct}
}

// CheckConservation verifies the exact integer sum invariant:
// all buckets plus withdrawn equal total value ever taken in.
func (v *InvariantValidator) CheckConservation() error {
	sum := v.acct.bucketSum()
	if sum != v.acct.totalIntake {
		return fmt.Errorf("conservation violated: buckets sum to %d, total intake %d", sum, v.acct.totalIntake)
	}
	return nil
}

// CheckCreditsConsistent verifies the per-participant credit map sums to the
// unclaimed bucket.
func (v *InvariantValidator) CheckCreditsConsistent() error {
	var sum int64
	for _, c := range v.acct.credits {
		sum += c
	}
	if sum != v.acct.unclaimed {
		return fmt.Errorf("credit map sums to %d, unclaimed bucket %d", sum, v.acct.unclaimed)
	}
	return nil
}

// Tolerance is the allowed divergence for the external solvency comparison,
// proportional to total value.
func (v *InvariantValidator) Tolerance() int64 {
	tol := v.acct.totalIntake / SolvencyToleranceDivisor
	if tol < 1 {
		tol = 1
	}
	return tol
}

// CheckSolvency compares externally-held value against the ledger's view.
// custodyHeld comes from the custody collaborator's TotalHeld query.
func (v *InvariantValidator) CheckSolvency(custodyHeld int64) error {
	diff := custodyHeld - v.acct.InternalHeld()
	if diff < 0 {
		diff = -diff
	}
	if tol := v.Tolerance(); diff > tol {
		return fmt.Errorf("solvency mismatch: custody holds %d, ledger expects %d (tolerance %d)",
			custodyHeld, v.acct.InternalHeld(), tol)
	}
	return nil
}
