package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/DYBL777/DYBL-Crypto42/internal/codec"
	"github.com/DYBL777/DYBL-Crypto42/internal/custody"
	"github.com/DYBL777/DYBL-Crypto42/internal/ledger"
	fpmath "github.com/DYBL777/DYBL-Crypto42/internal/math"
	"github.com/DYBL777/DYBL-Crypto42/internal/phase"
	"github.com/DYBL777/DYBL-Crypto42/internal/registry"
	"github.com/DYBL777/DYBL-Crypto42/internal/resolver"
)

// MachinePhase is the per-week settlement state machine.
type MachinePhase int

const (
	Idle MachinePhase = iota
	Matching
	Distributing
	Draining // dormancy batch drain
)

func (m MachinePhase) String() string {
	switch m {
	case Idle:
		return "idle"
	case Matching:
		return "matching"
	case Distributing:
		return "distributing"
	case Draining:
		return "draining"
	default:
		return "unknown"
	}
}

// Params fixes the settlement economics and batch limits.
type Params struct {
	TicketPricePerWeek int64 // intake per week of coverage

	// Week pool split, in bps of the pool. The unallocated remainder
	// stays in pot as carry-forward.
	JackpotBps int64
	Match5Bps  int64
	Match4Bps  int64
	Match3Bps  int64

	JackpotPayoutBps   int64 // fraction of the reserve paid on a hit
	BonusBps           int64 // pot carve-out to lower tiers on a hit, of week pool
	OverflowRecycleBps int64 // contribution share recycled to pot on a miss

	MatchBatchSize  int
	PayoutBatchSize int
	DrainBatchSize  int

	PickLockWindow     time.Duration // picks frozen this long before week end
	StuckTimeout       time.Duration // emergency unwind eligibility
	DormancyThreshold  time.Duration
	AbandonThreshold   time.Duration
	TimelockDelay      time.Duration
	TreasuryDrawCapBps int64 // of treasury, per rolling window, wind-down only
	TreasuryDrawWindow time.Duration
}

func DefaultParams() Params {
	return Params{
		TicketPricePerWeek: 5_000_000, // 5.0 in settlement-asset units
		JackpotBps:         2000,
		Match5Bps:          3000,
		Match4Bps:          2000,
		Match3Bps:          1500,
		JackpotPayoutBps:   9000,
		BonusBps:           200,
		OverflowRecycleBps: 5000,
		MatchBatchSize:     500,
		PayoutBatchSize:    200,
		DrainBatchSize:     200,
		PickLockWindow:     12 * time.Hour,
		StuckTimeout:       72 * time.Hour,
		DormancyThreshold:  180 * 24 * time.Hour,
		AbandonThreshold:   365 * 24 * time.Hour,
		TimelockDelay:      48 * time.Hour,
		TreasuryDrawCapBps: 1000,
		TreasuryDrawWindow: 30 * 24 * time.Hour,
	}
}

// tierBpsWeights returns the lower-tier weights in ledger.LowerTiers order.
func (p Params) tierBpsWeights() []int64 {
	return []int64{p.Match5Bps, p.Match4Bps, p.Match3Bps}
}

func (p Params) tierBps(t ledger.Tier) int64 {
	switch t {
	case ledger.TierMatch5:
		return p.Match5Bps
	case ledger.TierMatch4:
		return p.Match4Bps
	case ledger.TierMatch3:
		return p.Match3Bps
	case ledger.TierJackpot:
		return p.JackpotBps
	default:
		return 0
	}
}

// weekState is the in-flight settlement of one week: outcome, winner lists,
// remaining allocations, and the resume cursors. Discarded at finalization.
type weekState struct {
	outcome     resolver.Outcome
	phase       phase.Phase // economic phase captured at resolution
	payoutBps   int64
	allocated   bool
	weekPool    int64
	contribution int64 // this week's jackpot contribution
	remaining   [4]int64 // unpaid allocation per tier
	winners     [4][]uuid.UUID

	jackpotSettled bool

	matchCursor int

	distTier   int // index into ledger.LowerTiers
	distCursor int // index into the tier's winner list
	share      int64
	shareReady bool

	lastAdvance time.Time
}

// closureState is set once closure triggers: the fixed per-founder share and
// who has claimed it.
type closureState struct {
	perFounder int64
	claimed    map[uuid.UUID]bool
}

// Engine is the settlement aggregate: one owned instance, every operation a
// serialized atomic state transition. Callers provide the operation time;
// the engine never reads a wall clock itself.
type Engine struct {
	params Params
	log    zerolog.Logger

	reg       *registry.Registry
	acct      *ledger.Accountant
	validator *ledger.InvariantValidator
	phases    *phase.Controller
	res       *resolver.Resolver
	vault     custody.Vault

	week         int64
	weekOpenedAt time.Time
	snapshot     resolver.PriceSnapshot

	machine MachinePhase
	ws      *weekState

	lastSettledAt time.Time

	// dormancy drain
	drainShare  int64
	drainCursor int

	closure *closureState

	// operator treasury draws, rolling window
	drawWindowStart time.Time
	drawnInWindow   int64

	proposals  map[uuid.UUID]*OracleProposal
}

// Deps bundles the collaborators the engine settles against.
type Deps struct {
	Registry  *registry.Registry
	Accounts  *ledger.Accountant
	Phases    *phase.Controller
	Resolver  *resolver.Resolver
	Vault     custody.Vault
	Logger    zerolog.Logger
}

// New builds the aggregate and takes the first week's price snapshot at now.
func New(params Params, deps Deps, now time.Time) *Engine {
	e := &Engine{
		params:        params,
		log:           deps.Logger,
		reg:           deps.Registry,
		acct:          deps.Accounts,
		validator:     ledger.NewInvariantValidator(deps.Accounts),
		phases:        deps.Phases,
		res:           deps.Resolver,
		vault:         deps.Vault,
		week:          1,
		weekOpenedAt:  now,
		lastSettledAt: now,
		machine:       Idle,
		proposals:     make(map[uuid.UUID]*OracleProposal),
	}
	e.snapshot = e.res.Snapshot(1, now)
	return e
}

// --- accessors ---

func (e *Engine) Week() int64            { return e.week }
func (e *Engine) Machine() MachinePhase  { return e.machine }
func (e *Engine) Accounts() *ledger.Accountant { return e.acct }
func (e *Engine) Registry() *registry.Registry { return e.reg }
func (e *Engine) Phases() *phase.Controller    { return e.phases }
func (e *Engine) WeekOpenedAt() time.Time      { return e.weekOpenedAt }
func (e *Engine) LastSettledAt() time.Time     { return e.lastSettledAt }

// EconomicPhase returns the long-horizon phase at now.
func (e *Engine) EconomicPhase(now time.Time) phase.Phase {
	return e.phases.PhaseAt(e.week, now)
}

// Outcome returns the in-flight week's outcome, if a settlement is running.
func (e *Engine) Outcome() (resolver.Outcome, bool) {
	if e.ws == nil {
		return resolver.Outcome{}, false
	}
	return e.ws.outcome, true
}

// WeekSnapshot returns the current week's start-price snapshot. The core
// records it into finalizing commands so replay never touches the feed.
func (e *Engine) WeekSnapshot() resolver.PriceSnapshot {
	return e.snapshot
}

// --- participant operations (Idle only) ---

// requireIdle guards every mutating entry point that must be mutually
// exclusive with the settlement machine.
func (e *Engine) requireIdle() error {
	if e.machine != Idle {
		return fmt.Errorf("%w: machine is %s", ErrWrongPhase, e.machine)
	}
	return nil
}

// Enroll creates a ticket covering weeks of play starting next week. The
// payment must match the coverage and is deposited to custody before the
// ledger splits it between pot and treasury.
func (e *Engine) Enroll(now time.Time, id uuid.UUID, picks [][]uint8, weeks int64, payment int64) error {
	if err := e.requireIdle(); err != nil {
		return err
	}
	ph := e.EconomicPhase(now)
	if ph == phase.Closed {
		return ErrClosed
	}
	if ph == phase.WindingDown && !e.phases.IsFounder(id) {
		// Wind-down is founders only; fresh money cannot join a dying game.
		return ErrNotFounder
	}
	if weeks <= 0 {
		return fmt.Errorf("%w: coverage must be positive", ErrTooEarly)
	}
	if payment != weeks*e.params.TicketPricePerWeek {
		return fmt.Errorf("engine: payment %d does not cover %d weeks at %d", payment, weeks, e.params.TicketPricePerWeek)
	}

	masks, err := encodePicks(picks)
	if err != nil {
		return err
	}

	if err := e.vault.Deposit(payment); err != nil {
		return fmt.Errorf("%w: custody deposit: %v", ErrRetryable, err)
	}

	t := &registry.Ticket{
		ID:         id,
		Picks:      masks,
		StartWeek:  e.week + 1,
		EndWeek:    e.week + weeks,
		JoinedWeek: e.week + 1,
	}
	if err := e.reg.Enroll(t); err != nil {
		// Roll the custody deposit back; the enrollment did not happen.
		if werr := e.vault.Withdraw(payment); werr != nil {
			panic(fmt.Sprintf("FATAL: cannot roll back custody deposit: %v", werr))
		}
		return err
	}

	treasuryBps := e.phases.TreasuryBpsAt(e.week, now)
	toPot, toTreasury, err := e.acct.Intake(payment, treasuryBps)
	if err != nil {
		panic(fmt.Sprintf("FATAL: intake after deposit: %v", err))
	}

	e.log.Info().
		Str("ticket", id.String()).
		Int64("weeks", weeks).
		Int64("to_pot", toPot).
		Int64("to_treasury", toTreasury).
		Msg("ticket enrolled")
	return nil
}

// Extend lengthens a ticket's coverage.
func (e *Engine) Extend(now time.Time, id uuid.UUID, weeks int64, payment int64) error {
	if err := e.requireIdle(); err != nil {
		return err
	}
	if e.EconomicPhase(now) == phase.Closed {
		return ErrClosed
	}
	if weeks <= 0 {
		return fmt.Errorf("%w: extension must be positive", ErrTooEarly)
	}
	if payment != weeks*e.params.TicketPricePerWeek {
		return fmt.Errorf("engine: payment %d does not cover %d weeks at %d", payment, weeks, e.params.TicketPricePerWeek)
	}

	t, ok := e.reg.Get(id)
	if !ok {
		return ErrTicketNotFound
	}

	if err := e.vault.Deposit(payment); err != nil {
		return fmt.Errorf("%w: custody deposit: %v", ErrRetryable, err)
	}

	t.EndWeek += weeks
	treasuryBps := e.phases.TreasuryBpsAt(e.week, now)
	if _, _, err := e.acct.Intake(payment, treasuryBps); err != nil {
		panic(fmt.Sprintf("FATAL: intake after deposit: %v", err))
	}
	return nil
}

// ChangePicks replaces a ticket's selections. Rejected while a settlement is
// in flight and inside the pick-lock window before week end.
func (e *Engine) ChangePicks(now time.Time, id uuid.UUID, picks [][]uint8) error {
	if err := e.requireIdle(); err != nil {
		return err
	}
	if e.pickLocked(now) {
		return ErrPickLocked
	}

	t, ok := e.reg.Get(id)
	if !ok {
		return ErrTicketNotFound
	}
	masks, err := encodePicks(picks)
	if err != nil {
		return err
	}
	t.Picks = masks
	return nil
}

func (e *Engine) pickLocked(now time.Time) bool {
	lockAt := e.weekOpenedAt.Add(e.phases.Params().WeekLength - e.params.PickLockWindow)
	return !now.Before(lockAt)
}

func encodePicks(picks [][]uint8) ([]codec.PickMask, error) {
	if len(picks) < 1 || len(picks) > 2 {
		return nil, fmt.Errorf("engine: one or two picks required, got %d", len(picks))
	}
	masks := make([]codec.PickMask, len(picks))
	for i, p := range picks {
		m, err := codec.Encode(p)
		if err != nil {
			return nil, err
		}
		masks[i] = m
	}
	return masks, nil
}

// ClaimPrize withdraws a participant's unclaimed credit through custody.
// The custody transfer runs first; on failure the credit is untouched and
// the error is retryable for that caller only.
func (e *Engine) ClaimPrize(now time.Time, id uuid.UUID, amount int64) error {
	if err := e.requireIdle(); err != nil {
		return err
	}
	if amount <= 0 || amount > e.acct.CreditOf(id) {
		return fmt.Errorf("engine: claim %d exceeds credit %d", amount, e.acct.CreditOf(id))
	}

	if err := e.vault.Withdraw(amount); err != nil {
		return fmt.Errorf("%w: custody withdraw: %v", ErrRetryable, err)
	}
	if err := e.acct.Claim(id, amount); err != nil {
		panic(fmt.Sprintf("FATAL: claim after custody success: %v", err))
	}

	e.log.Info().Str("ticket", id.String()).Int64("amount", amount).Msg("prize claimed")
	return nil
}

// SweepExpired removes up to one batch of expired tickets outside settlement.
func (e *Engine) SweepExpired(now time.Time, cursor int) (int, int, error) {
	if err := e.requireIdle(); err != nil {
		return 0, 0, err
	}
	next, removed := e.reg.SweepExpired(e.week, cursor, e.params.MatchBatchSize)
	return next, len(removed), nil
}

// SyncYield reconciles the ledger with externally-held value, attributing
// gains to pot and absorbing losses through the pot→treasury waterfall.
func (e *Engine) SyncYield(now time.Time) (int64, error) {
	if err := e.requireIdle(); err != nil {
		return 0, err
	}
	held, err := e.vault.TotalHeld()
	if err != nil {
		return 0, fmt.Errorf("%w: custody query: %v", ErrRetryable, err)
	}
	delta := held - e.acct.InternalHeld()
	e.acct.AccrueYield(delta)
	if delta != 0 {
		e.log.Info().Int64("delta", delta).Msg("yield synced")
	}
	return delta, nil
}

// --- operator operations (authenticated at the shell) ---

// WithdrawTreasury draws operator revenue. Only during wind-down, and capped
// to a fraction of treasury per rolling window.
func (e *Engine) WithdrawTreasury(now time.Time, amount int64) error {
	if err := e.requireIdle(); err != nil {
		return err
	}
	if e.EconomicPhase(now) != phase.WindingDown {
		return fmt.Errorf("%w: treasury draws only during wind-down", ErrWrongPhase)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: non-positive draw", ErrTooEarly)
	}

	if now.Sub(e.drawWindowStart) > e.params.TreasuryDrawWindow {
		e.drawWindowStart = now
		e.drawnInWindow = 0
	}
	limit := fpmath.ApplyBps(e.acct.Treasury()+e.drawnInWindow, e.params.TreasuryDrawCapBps)
	if e.drawnInWindow+amount > limit {
		return ErrDrawCap
	}

	if err := e.vault.Withdraw(amount); err != nil {
		return fmt.Errorf("%w: custody withdraw: %v", ErrRetryable, err)
	}
	if err := e.acct.WithdrawTreasury(amount); err != nil {
		panic(fmt.Sprintf("FATAL: treasury draw after custody success: %v", err))
	}
	e.drawnInWindow += amount
	return nil
}

// RenounceTreasury irreversibly zeroes all future treasury take.
func (e *Engine) RenounceTreasury(now time.Time) error {
	if e.phases.TreasuryRenounced() {
		return ErrAlreadyDone
	}
	e.phases.RenounceTreasury()
	e.log.Info().Msg("treasury take renounced")
	return nil
}

// --- invariant plumbing ---

// postCheck runs after every batch mutation; a violated ledger invariant is
// a fatal logic error, not a recoverable condition.
func (e *Engine) postCheck() {
	if err := e.validator.CheckConservation(); err != nil {
		panic(fmt.Sprintf("FATAL: %v", err))
	}
	if err := e.validator.CheckCreditsConsistent(); err != nil {
		panic(fmt.Sprintf("FATAL: %v", err))
	}
	if err := e.reg.CheckSlotInvariant(); err != nil {
		panic(fmt.Sprintf("FATAL: %v", err))
	}
}

// StateDigest builds canonical bytes over the ledger buckets and machine
// counters for the operation log's hash chain.
func (e *Engine) StateDigest() []byte {
	snap := e.acct.Snapshot()
	digest := make([]byte, 0, 96)
	for _, v := range []int64{
		e.week, int64(e.machine),
		snap.Pot, snap.Treasury, snap.Jackpot, snap.Unclaimed, snap.Withdrawn,
		snap.TierPending[0], snap.TierPending[1], snap.TierPending[2], snap.TierPending[3],
		snap.TotalIntake,
	} {
		digest = appendInt64LE(digest, v)
	}
	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56),
	)
}
