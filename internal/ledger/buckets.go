package ledger

import (
	"fmt"

	"github.com/google/uuid"

	fpmath "github.com/DYBL777/DYBL-Crypto42/internal/math"
)

// Tier is a reward bracket keyed by pick/outcome match count.
type Tier int

const (
	TierMatch3 Tier = iota
	TierMatch4
	TierMatch5
	TierJackpot // full 6-of-6 match
	tierCount
)

// LowerTiers are the tiers paid from week pools, in fixed payout order
// (highest match count first).
var LowerTiers = []Tier{TierMatch5, TierMatch4, TierMatch3}

func (t Tier) String() string {
	switch t {
	case TierMatch3:
		return "match3"
	case TierMatch4:
		return "match4"
	case TierMatch5:
		return "match5"
	case TierJackpot:
		return "jackpot"
	default:
		return "unknown"
	}
}

// TierForMatches maps a match count to its tier. ok is false below the
// lowest paying tier.
func TierForMatches(n int) (Tier, bool) {
	switch n {
	case 3:
		return TierMatch3, true
	case 4:
		return TierMatch4, true
	case 5:
		return TierMatch5, true
	case 6:
		return TierJackpot, true
	default:
		return 0, false
	}
}

// SolvencyToleranceDivisor sets the proportional tolerance for the external
// solvency comparison: tolerance = totalIntake / divisor. Never an absolute
// constant — an absolute tolerance stops meaning anything at scale.
const SolvencyToleranceDivisor = 1_000_000

// Accountant owns the mutually-exclusive value buckets. Every transfer pairs
// a debit with the complementary credit, so
//
//	pot + treasury + jackpot + unclaimed + Σ tierPending + withdrawn == totalIntake
//
// holds exactly after every mutating operation. Not thread-safe — only the
// single-threaded settlement core touches it.
type Accountant struct {
	pot         int64
	treasury    int64
	jackpot     int64
	unclaimed   int64
	withdrawn   int64
	tierPending [tierCount]int64

	totalIntake int64

	// per-participant share of the unclaimed bucket; values sum to unclaimed
	credits map[uuid.UUID]int64
}

func NewAccountant() *Accountant {
	return &Accountant{
		credits: make(map[uuid.UUID]int64),
	}
}

// --- queries ---

func (a *Accountant) Pot() int64         { return a.pot }
func (a *Accountant) Treasury() int64    { return a.treasury }
func (a *Accountant) Jackpot() int64     { return a.jackpot }
func (a *Accountant) Unclaimed() int64   { return a.unclaimed }
func (a *Accountant) Withdrawn() int64   { return a.withdrawn }
func (a *Accountant) TotalIntake() int64 { return a.totalIntake }

func (a *Accountant) TierPending(t Tier) int64 {
	if t < 0 || t >= tierCount {
		return 0
	}
	return a.tierPending[t]
}

// CreditOf returns a participant's unclaimed balance.
func (a *Accountant) CreditOf(id uuid.UUID) int64 {
	return a.credits[id]
}

// InternalHeld is the value the ledger believes custody still holds:
// everything except what has already been paid out.
func (a *Accountant) InternalHeld() int64 {
	held := a.pot + a.treasury + a.jackpot + a.unclaimed
	for _, p := range a.tierPending {
		held += p
	}
	return held
}

// bucketSum is the full conservation sum including withdrawn.
func (a *Accountant) bucketSum() int64 {
	return a.InternalHeld() + a.withdrawn
}

// --- intake & yield ---

// Intake records a payment: treasuryBps of amount goes to treasury, the rest
// to pot. Returns the split for logging.
func (a *Accountant) Intake(amount, treasuryBps int64) (toPot, toTreasury int64, err error) {
	if amount <= 0 {
		return 0, 0, fmt.Errorf("ledger: non-positive intake %d", amount)
	}
	toTreasury = fpmath.ApplyBps(amount, treasuryBps)
	toPot = amount - toTreasury

	a.totalIntake += amount
	a.treasury += toTreasury
	a.pot += toPot
	return toPot, toTreasury, nil
}

// AccrueYield absorbs a change in externally-held value. Gains go entirely
// to pot. Losses drain pot first; only once pot is exhausted does the
// remainder reduce treasury, floored at zero. totalIntake moves with the
// delta so the conservation sum stays exact.
func (a *Accountant) AccrueYield(delta int64) {
	if delta == 0 {
		return
	}
	if delta > 0 {
		a.pot += delta
		a.totalIntake += delta
		return
	}

	loss := -delta
	absorbed := loss
	if absorbed > a.pot {
		absorbed = a.pot
	}
	a.pot -= absorbed
	loss -= absorbed

	if loss > 0 {
		if loss > a.treasury {
			loss = a.treasury
		}
		a.treasury -= loss
		absorbed += loss
	}
	a.totalIntake -= absorbed
}

// --- week allocation ---

// AllocateTier moves amount from pot into a tier's pending pool.
func (a *Accountant) AllocateTier(t Tier, amount int64) error {
	if err := a.debitPot(amount); err != nil {
		return err
	}
	a.tierPending[t] += amount
	return nil
}

// ReturnTier moves amount from a tier's pending pool back to pot.
func (a *Accountant) ReturnTier(t Tier, amount int64) error {
	if amount < 0 || amount > a.tierPending[t] {
		return fmt.Errorf("ledger: tier %s pending underflow: have %d, return %d", t, a.tierPending[t], amount)
	}
	a.tierPending[t] -= amount
	a.pot += amount
	return nil
}

// FundJackpot moves amount from pot into the rolling jackpot reserve.
func (a *Accountant) FundJackpot(amount int64) error {
	if err := a.debitPot(amount); err != nil {
		return err
	}
	a.jackpot += amount
	return nil
}

// RecycleJackpot moves amount from the jackpot reserve back to pot (the
// dry-spell overflow path and the post-hit reseed).
func (a *Accountant) RecycleJackpot(amount int64) error {
	if amount < 0 || amount > a.jackpot {
		return fmt.Errorf("ledger: jackpot underflow: have %d, recycle %d", a.jackpot, amount)
	}
	a.jackpot -= amount
	a.pot += amount
	return nil
}

// --- payouts ---

// CreditTierPrize pays a participant from a tier's pending pool as unclaimed
// credit.
func (a *Accountant) CreditTierPrize(t Tier, id uuid.UUID, amount int64) error {
	if amount < 0 || amount > a.tierPending[t] {
		return fmt.Errorf("ledger: tier %s pending underflow: have %d, pay %d", t, a.tierPending[t], amount)
	}
	a.tierPending[t] -= amount
	a.unclaimed += amount
	a.credits[id] += amount
	return nil
}

// CreditJackpotPrize pays a jackpot winner from the jackpot reserve.
func (a *Accountant) CreditJackpotPrize(id uuid.UUID, amount int64) error {
	if amount < 0 || amount > a.jackpot {
		return fmt.Errorf("ledger: jackpot underflow: have %d, pay %d", a.jackpot, amount)
	}
	a.jackpot -= amount
	a.unclaimed += amount
	a.credits[id] += amount
	return nil
}

// CreditFromPot pays a participant directly from pot (dormancy drain,
// closure shares).
func (a *Accountant) CreditFromPot(id uuid.UUID, amount int64) error {
	if err := a.debitPot(amount); err != nil {
		return err
	}
	a.unclaimed += amount
	a.credits[id] += amount
	return nil
}

// Claim settles a participant's unclaimed credit after the custody transfer
// has already succeeded. The caller attempts custody first; a custody
// failure therefore leaves the credit untouched.
func (a *Accountant) Claim(id uuid.UUID, amount int64) error {
	if amount <= 0 || amount > a.credits[id] {
		return fmt.Errorf("ledger: claim %d exceeds credit %d", amount, a.credits[id])
	}
	a.credits[id] -= amount
	if a.credits[id] == 0 {
		delete(a.credits, id)
	}
	a.unclaimed -= amount
	a.withdrawn += amount
	return nil
}

// WithdrawTreasury settles an operator draw after custody success.
func (a *Accountant) WithdrawTreasury(amount int64) error {
	if amount <= 0 || amount > a.treasury {
		return fmt.Errorf("ledger: treasury draw %d exceeds balance %d", amount, a.treasury)
	}
	a.treasury -= amount
	a.withdrawn += amount
	return nil
}

// --- lifecycle drains ---

// PotToTreasury moves amount from pot to treasury (closure split).
func (a *Accountant) PotToTreasury(amount int64) error {
	if err := a.debitPot(amount); err != nil {
		return err
	}
	a.treasury += amount
	return nil
}

// SweepToTreasury moves every non-withdrawn bucket into treasury. Used only
// by the abandonment rescue, once no legitimate claimants exist; participant
// credits are extinguished.
func (a *Accountant) SweepToTreasury() int64 {
	swept := a.pot + a.jackpot + a.unclaimed
	a.pot = 0
	a.jackpot = 0
	a.unclaimed = 0
	for t := range a.tierPending {
		swept += a.tierPending[t]
		a.tierPending[t] = 0
	}
	a.credits = make(map[uuid.UUID]int64)
	a.treasury += swept
	return swept
}

func (a *Accountant) debitPot(amount int64) error {
	if amount < 0 || amount > a.pot {
		return fmt.Errorf("ledger: pot underflow: have %d, debit %d", a.pot, amount)
	}
	a.pot -= amount
	return nil
}

// --- snapshots ---

// BucketSnapshot is a point-in-time copy of all buckets, used for state
// hashing and persistence.
type BucketSnapshot struct {
	Pot         int64
	Treasury    int64
	Jackpot     int64
	Unclaimed   int64
	Withdrawn   int64
	TierPending [4]int64
	TotalIntake int64
}

func (a *Accountant) Snapshot() BucketSnapshot {
	return BucketSnapshot{
		Pot:         a.pot,
		Treasury:    a.treasury,
		Jackpot:     a.jackpot,
		Unclaimed:   a.unclaimed,
		Withdrawn:   a.withdrawn,
		TierPending: a.tierPending,
		TotalIntake: a.totalIntake,
	}
}

// Restore overwrites the buckets from a snapshot plus per-participant
// credits. Used on warm restart before replaying the operation log.
func (a *Accountant) Restore(snap BucketSnapshot, credits map[uuid.UUID]int64) {
	a.pot = snap.Pot
	a.treasury = snap.Treasury
	a.jackpot = snap.Jackpot
	a.unclaimed = snap.Unclaimed
	a.withdrawn = snap.Withdrawn
	a.tierPending = snap.TierPending
	a.totalIntake = snap.TotalIntake
	a.credits = make(map[uuid.UUID]int64, len(credits))
	for id, c := range credits {
		a.credits[id] = c
	}
}

// Credits returns a copy of the per-participant credit map.
func (a *Accountant) Credits() map[uuid.UUID]int64 {
	out := make(map[uuid.UUID]int64, len(a.credits))
	for id, c := range a.credits {
		out[id] = c
	}
	return out
}
