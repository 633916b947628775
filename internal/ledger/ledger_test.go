package ledger_test

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"

	"github.com/DYBL777/DYBL-Crypto42/internal/ledger"
)

func checkConserved(t *testing.T, a *ledger.Accountant) {
	t.Helper()
	v := ledger.NewInvariantValidator(a)
	if err := v.CheckConservation(); err != nil {
		t.Fatalf("conservation: %v", err)
	}
	if err := v.CheckCreditsConsistent(); err != nil {
		t.Fatalf("credits: %v", err)
	}
}

// ============================================================================
// Test: intake & yield
// ============================================================================

func TestIntake_Split(t *testing.T) {
	a := ledger.NewAccountant()

	toPot, toTreasury, err := a.Intake(1_000_000, 1000) // 10% treasury
	if err != nil {
		t.Fatalf("Intake failed: %v", err)
	}
	if toTreasury != 100_000 {
		t.Errorf("treasury share: got %d, want 100_000", toTreasury)
	}
	if toPot != 900_000 {
		t.Errorf("pot share: got %d, want 900_000", toPot)
	}
	if a.TotalIntake() != 1_000_000 {
		t.Errorf("total intake: got %d", a.TotalIntake())
	}
	checkConserved(t, a)
}

func TestIntake_RejectsNonPositive(t *testing.T) {
	a := ledger.NewAccountant()
	if _, _, err := a.Intake(0, 1000); err == nil {
		t.Error("zero intake should be rejected")
	}
	if _, _, err := a.Intake(-5, 1000); err == nil {
		t.Error("negative intake should be rejected")
	}
	checkConserved(t, a)
}

func TestAccrueYield_GainGoesToPot(t *testing.T) {
	a := ledger.NewAccountant()
	a.Intake(1_000_000, 1000)

	potBefore := a.Pot()
	treasuryBefore := a.Treasury()

	a.AccrueYield(50_000)

	if a.Pot() != potBefore+50_000 {
		t.Errorf("pot: got %d, want %d", a.Pot(), potBefore+50_000)
	}
	if a.Treasury() != treasuryBefore {
		t.Error("yield gain must never touch treasury")
	}
	checkConserved(t, a)
}

func TestAccrueYield_LossWaterfall(t *testing.T) {
	a := ledger.NewAccountant()
	a.Intake(1_000_000, 1000) // pot 900k, treasury 100k

	// Loss bigger than pot: pot to zero, remainder from treasury.
	a.AccrueYield(-950_000)

	if a.Pot() != 0 {
		t.Errorf("pot should be exhausted, got %d", a.Pot())
	}
	if a.Treasury() != 50_000 {
		t.Errorf("treasury: got %d, want 50_000", a.Treasury())
	}
	checkConserved(t, a)
}

func TestAccrueYield_LossFlooredAtZero(t *testing.T) {
	a := ledger.NewAccountant()
	a.Intake(100, 0)

	// Loss exceeding everything held: both buckets floor at zero, the
	// unabsorbable remainder is dropped.
	a.AccrueYield(-10_000)

	if a.Pot() != 0 || a.Treasury() != 0 {
		t.Errorf("pot=%d treasury=%d, want both 0", a.Pot(), a.Treasury())
	}
	checkConserved(t, a)
}

// ============================================================================
// Test: week allocation & payouts
// ============================================================================

func TestTierAllocationAndPayout(t *testing.T) {
	a := ledger.NewAccountant()
	a.Intake(1_000_000, 0)

	if err := a.AllocateTier(ledger.TierMatch5, 300_000); err != nil {
		t.Fatalf("AllocateTier: %v", err)
	}
	if a.TierPending(ledger.TierMatch5) != 300_000 {
		t.Errorf("pending: got %d", a.TierPending(ledger.TierMatch5))
	}
	checkConserved(t, a)

	winner := uuid.New()
	if err := a.CreditTierPrize(ledger.TierMatch5, winner, 150_000); err != nil {
		t.Fatalf("CreditTierPrize: %v", err)
	}
	if a.CreditOf(winner) != 150_000 {
		t.Errorf("credit: got %d", a.CreditOf(winner))
	}
	checkConserved(t, a)

	// Unpaid half returns to pot.
	if err := a.ReturnTier(ledger.TierMatch5, 150_000); err != nil {
		t.Fatalf("ReturnTier: %v", err)
	}
	if a.TierPending(ledger.TierMatch5) != 0 {
		t.Error("pending should be drained")
	}
	checkConserved(t, a)
}

func TestAllocateTier_PotUnderflow(t *testing.T) {
	a := ledger.NewAccountant()
	a.Intake(100, 0)
	if err := a.AllocateTier(ledger.TierMatch3, 101); err == nil {
		t.Error("allocation beyond pot should fail")
	}
	checkConserved(t, a)
}

func TestJackpotScenario(t *testing.T) {
	// Spec scenario: reserve 1000, one winner → 900 paid, 100 reseeds pot.
	a := ledger.NewAccountant()
	a.Intake(2_000, 0)
	if err := a.FundJackpot(1_000); err != nil {
		t.Fatal(err)
	}

	winner := uuid.New()
	if err := a.CreditJackpotPrize(winner, 900); err != nil {
		t.Fatalf("CreditJackpotPrize: %v", err)
	}
	if err := a.RecycleJackpot(100); err != nil {
		t.Fatalf("RecycleJackpot: %v", err)
	}

	if a.CreditOf(winner) != 900 {
		t.Errorf("winner credit: got %d, want 900", a.CreditOf(winner))
	}
	if a.Jackpot() != 0 {
		t.Errorf("jackpot should be empty, got %d", a.Jackpot())
	}
	if a.Pot() != 1_100 {
		t.Errorf("pot: got %d, want 1_100", a.Pot())
	}
	checkConserved(t, a)
}

func TestClaim_FullAndPartial(t *testing.T) {
	a := ledger.NewAccountant()
	a.Intake(1_000, 0)
	id := uuid.New()
	if err := a.CreditFromPot(id, 600); err != nil {
		t.Fatal(err)
	}

	if err := a.Claim(id, 200); err != nil {
		t.Fatalf("partial claim: %v", err)
	}
	if a.CreditOf(id) != 400 {
		t.Errorf("remaining credit: got %d", a.CreditOf(id))
	}
	if a.Withdrawn() != 200 {
		t.Errorf("withdrawn: got %d", a.Withdrawn())
	}

	if err := a.Claim(id, 401); err == nil {
		t.Error("over-claim should fail")
	}
	if err := a.Claim(id, 400); err != nil {
		t.Fatalf("full claim: %v", err)
	}
	if a.CreditOf(id) != 0 {
		t.Error("credit should be zero after full claim")
	}
	checkConserved(t, a)
}

func TestWithdrawTreasury(t *testing.T) {
	a := ledger.NewAccountant()
	a.Intake(1_000_000, 1000) // treasury 100k

	if err := a.WithdrawTreasury(100_001); err == nil {
		t.Error("over-draw should fail")
	}
	if err := a.WithdrawTreasury(40_000); err != nil {
		t.Fatalf("WithdrawTreasury: %v", err)
	}
	if a.Treasury() != 60_000 {
		t.Errorf("treasury: got %d", a.Treasury())
	}
	checkConserved(t, a)
}

func TestSweepToTreasury(t *testing.T) {
	a := ledger.NewAccountant()
	a.Intake(1_000, 0)
	a.FundJackpot(300)
	a.AllocateTier(ledger.TierMatch4, 100)
	a.CreditFromPot(uuid.New(), 50)

	swept := a.SweepToTreasury()
	if swept != 1_000 {
		t.Errorf("swept: got %d, want 1_000", swept)
	}
	if a.Treasury() != 1_000 {
		t.Errorf("treasury: got %d", a.Treasury())
	}
	if a.Pot() != 0 || a.Jackpot() != 0 || a.Unclaimed() != 0 {
		t.Error("all non-withdrawn buckets should be empty after sweep")
	}
	checkConserved(t, a)
}

// ============================================================================
// Test: solvency check
// ============================================================================

func TestSolvency_ProportionalTolerance(t *testing.T) {
	a := ledger.NewAccountant()
	a.Intake(100_000_000, 1000)
	v := ledger.NewInvariantValidator(a)

	held := a.InternalHeld()
	tol := v.Tolerance()
	if tol != 100 {
		t.Fatalf("tolerance: got %d, want 100", tol)
	}

	if err := v.CheckSolvency(held + tol); err != nil {
		t.Errorf("within tolerance should pass: %v", err)
	}
	if err := v.CheckSolvency(held - tol); err != nil {
		t.Errorf("within tolerance should pass: %v", err)
	}
	if err := v.CheckSolvency(held + tol + 1); err == nil {
		t.Error("beyond tolerance should fail")
	}
}

// ============================================================================
// Property: sum conservation across randomized operation sequences (spec-level
// invariant — every economic operation preserves the total).
// ============================================================================

func TestConservation_RandomizedOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		a := ledger.NewAccountant()
		v := ledger.NewInvariantValidator(a)
		ids := make([]uuid.UUID, 8)
		for i := range ids {
			ids[i] = uuid.New()
		}

		for op := 0; op < 400; op++ {
			switch rng.Intn(10) {
			case 0, 1:
				a.Intake(1+rng.Int63n(1_000_000), rng.Int63n(2000))
			case 2:
				a.AccrueYield(rng.Int63n(200_001) - 100_000)
			case 3:
				tier := ledger.LowerTiers[rng.Intn(len(ledger.LowerTiers))]
				if p := a.Pot(); p > 0 {
					a.AllocateTier(tier, rng.Int63n(p+1))
				}
			case 4:
				tier := ledger.LowerTiers[rng.Intn(len(ledger.LowerTiers))]
				if p := a.TierPending(tier); p > 0 {
					a.ReturnTier(tier, rng.Int63n(p+1))
				}
			case 5:
				if p := a.Pot(); p > 0 {
					a.FundJackpot(rng.Int63n(p + 1))
				}
			case 6:
				if j := a.Jackpot(); j > 0 {
					if rng.Intn(2) == 0 {
						a.RecycleJackpot(rng.Int63n(j + 1))
					} else {
						a.CreditJackpotPrize(ids[rng.Intn(len(ids))], rng.Int63n(j+1))
					}
				}
			case 7:
				tier := ledger.LowerTiers[rng.Intn(len(ledger.LowerTiers))]
				if p := a.TierPending(tier); p > 0 {
					a.CreditTierPrize(tier, ids[rng.Intn(len(ids))], rng.Int63n(p+1))
				}
			case 8:
				id := ids[rng.Intn(len(ids))]
				if c := a.CreditOf(id); c > 0 {
					a.Claim(id, 1+rng.Int63n(c))
				}
			case 9:
				if tr := a.Treasury(); tr > 0 {
					a.WithdrawTreasury(1 + rng.Int63n(tr))
				}
			}

			if err := v.CheckConservation(); err != nil {
				t.Fatalf("trial %d op %d: %v", trial, op, err)
			}
			if err := v.CheckCreditsConsistent(); err != nil {
				t.Fatalf("trial %d op %d: %v", trial, op, err)
			}
		}
	}
}

func TestSnapshotRestore(t *testing.T) {
	a := ledger.NewAccountant()
	a.Intake(1_000_000, 1000)
	a.FundJackpot(50_000)
	id := uuid.New()
	a.CreditFromPot(id, 10_000)

	snap := a.Snapshot()
	credits := a.Credits()

	b := ledger.NewAccountant()
	b.Restore(snap, credits)

	if b.Pot() != a.Pot() || b.Treasury() != a.Treasury() || b.Jackpot() != a.Jackpot() {
		t.Error("restored buckets differ")
	}
	if b.CreditOf(id) != 10_000 {
		t.Errorf("restored credit: got %d", b.CreditOf(id))
	}
	checkConserved(t, b)
}
