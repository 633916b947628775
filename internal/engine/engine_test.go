package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/DYBL777/DYBL-Crypto42/internal/codec"
	"github.com/DYBL777/DYBL-Crypto42/internal/custody"
	"github.com/DYBL777/DYBL-Crypto42/internal/engine"
	"github.com/DYBL777/DYBL-Crypto42/internal/ledger"
	"github.com/DYBL777/DYBL-Crypto42/internal/oracle"
	"github.com/DYBL777/DYBL-Crypto42/internal/phase"
	"github.com/DYBL777/DYBL-Crypto42/internal/registry"
	"github.com/DYBL777/DYBL-Crypto42/internal/resolver"
)

const (
	basePrice   = int64(1_000_000)
	ticketPrice = int64(10_000)
	weekLen     = 7 * 24 * time.Hour
)

var genesis = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

// harness wires the engine against fixture collaborators and drives time
// explicitly.
type harness struct {
	t     *testing.T
	e     *engine.Engine
	feed  *oracle.FixtureFeed
	vault *custody.SimVault
	now   time.Time
}

func testEngineParams() engine.Params {
	p := engine.DefaultParams()
	p.TicketPricePerWeek = ticketPrice
	p.MatchBatchSize = 4
	p.PayoutBatchSize = 2
	p.DrainBatchSize = 3
	return p
}

func testPhaseParams() phase.Params {
	p := phase.DefaultParams()
	p.AccumulationWeeks = 10
	p.WindDownWeeks = 4
	p.FoundingTenureWeeks = 3
	return p
}

func newHarness(t *testing.T, ep engine.Params, pp phase.Params) *harness {
	t.Helper()

	feed := oracle.NewFixtureFeed()
	feed.SetAll(basePrice, genesis)
	vault := custody.NewSimVault()

	deps := engine.Deps{
		Registry: registry.New(),
		Accounts: ledger.NewAccountant(),
		Phases:   phase.NewController(pp, genesis),
		Resolver: resolver.New(feed, oracle.NewBounds()),
		Vault:    vault,
		Logger:   zerolog.Nop(),
	}
	return &harness{
		t:     t,
		e:     engine.New(ep, deps, genesis),
		feed:  feed,
		vault: vault,
		now:   genesis,
	}
}

func defaultHarness(t *testing.T) *harness {
	return newHarness(t, testEngineParams(), testPhaseParams())
}

func (h *harness) enroll(id uuid.UUID, weeks int64, picks ...[]uint8) {
	h.t.Helper()
	if err := h.e.Enroll(h.now, id, picks, weeks, weeks*ticketPrice); err != nil {
		h.t.Fatalf("enroll: %v", err)
	}
}

// settleWith plays out one full week. The listed assets win in the given
// order; with none listed every price is flat and the outcome degenerates
// to assets 0..5.
func (h *harness) settleWith(assets ...uint8) {
	h.t.Helper()

	h.now = h.now.Add(weekLen)
	h.feed.SetAll(basePrice, h.now)
	for k, a := range assets {
		h.feed.SetPrice(a, basePrice+int64(len(assets)-k)*50_000, h.now)
	}

	if err := h.e.ResolveWeek(h.now, nil); err != nil {
		h.t.Fatalf("resolve week %d: %v", h.e.Week(), err)
	}
	// The outcome is fixed at resolution; flatten prices again so the next
	// week's snapshot starts from a level baseline.
	h.feed.SetAll(basePrice, h.now)

	for {
		done, err := h.e.AdvanceMatching(h.now)
		if err != nil {
			h.t.Fatalf("advance matching: %v", err)
		}
		if done {
			break
		}
	}
	for {
		done, err := h.e.AdvanceDistribution(h.now, nil)
		if err != nil {
			h.t.Fatalf("advance distribution: %v", err)
		}
		if done {
			break
		}
	}
}

func (h *harness) mustConserve() {
	h.t.Helper()
	v := ledger.NewInvariantValidator(h.e.Accounts())
	if err := v.CheckConservation(); err != nil {
		h.t.Fatalf("conservation: %v", err)
	}
	if err := v.CheckCreditsConsistent(); err != nil {
		h.t.Fatalf("credits: %v", err)
	}
}

var (
	pickA = []uint8{0, 1, 2, 3, 4, 5}
	pickB = []uint8{6, 7, 8, 9, 10, 11}
	pickC = []uint8{0, 1, 2, 3, 4, 6} // five-asset overlap with pickA
)

func TestEnroll_SplitsIntake(t *testing.T) {
	h := defaultHarness(t)
	id := uuid.New()

	h.enroll(id, 10, pickA)

	acct := h.e.Accounts()
	if acct.TotalIntake() != 100_000 {
		t.Errorf("total intake: got %d, want 100000", acct.TotalIntake())
	}
	if acct.Treasury() != 10_000 {
		t.Errorf("treasury: got %d, want 10000", acct.Treasury())
	}
	if acct.Pot() != 90_000 {
		t.Errorf("pot: got %d, want 90000", acct.Pot())
	}
	held, _ := h.vault.TotalHeld()
	if held != 100_000 {
		t.Errorf("custody held: got %d, want 100000", held)
	}

	tk, ok := h.e.Registry().Get(id)
	if !ok {
		t.Fatal("ticket not registered")
	}
	if tk.StartWeek != 2 || tk.EndWeek != 11 {
		t.Errorf("coverage: got [%d,%d], want [2,11]", tk.StartWeek, tk.EndWeek)
	}
	h.mustConserve()
}

func TestEnroll_RejectsWrongPayment(t *testing.T) {
	h := defaultHarness(t)
	err := h.e.Enroll(h.now, uuid.New(), [][]uint8{pickA}, 10, 99_999)
	if err == nil {
		t.Fatal("mispriced enrollment should fail")
	}
	held, _ := h.vault.TotalHeld()
	if held != 0 {
		t.Errorf("failed enrollment must not retain a deposit, held %d", held)
	}
}

func TestEnroll_RollsBackDepositOnBadPicks(t *testing.T) {
	h := defaultHarness(t)
	err := h.e.Enroll(h.now, uuid.New(), [][]uint8{{0, 1, 2, 3, 4, 4}}, 5, 5*ticketPrice)
	if err == nil {
		t.Fatal("duplicate assets in a pick should fail")
	}
	held, _ := h.vault.TotalHeld()
	if held != 0 {
		t.Errorf("deposit must be rolled back, held %d", held)
	}
	if h.e.Accounts().TotalIntake() != 0 {
		t.Error("no intake should be recorded")
	}
}

func TestEnroll_TwoPicksAllowed(t *testing.T) {
	h := defaultHarness(t)
	id := uuid.New()
	h.enroll(id, 5, pickA, pickB)

	tk, _ := h.e.Registry().Get(id)
	if len(tk.Picks) != 2 {
		t.Fatalf("picks: got %d, want 2", len(tk.Picks))
	}
}

func TestExtend_PushesEndWeek(t *testing.T) {
	h := defaultHarness(t)
	id := uuid.New()
	h.enroll(id, 5, pickA)

	if err := h.e.Extend(h.now, id, 3, 3*ticketPrice); err != nil {
		t.Fatalf("extend: %v", err)
	}
	tk, _ := h.e.Registry().Get(id)
	if tk.EndWeek != 9 {
		t.Errorf("end week: got %d, want 9", tk.EndWeek)
	}
	if h.e.Accounts().TotalIntake() != 80_000 {
		t.Errorf("intake after extension: got %d", h.e.Accounts().TotalIntake())
	}
}

func TestChangePicks_LockWindow(t *testing.T) {
	h := defaultHarness(t)
	id := uuid.New()
	h.enroll(id, 5, pickA)

	// Just before the lock: allowed.
	h.now = genesis.Add(weekLen - 12*time.Hour - time.Minute)
	if err := h.e.ChangePicks(h.now, id, [][]uint8{pickB}); err != nil {
		t.Fatalf("change before lock: %v", err)
	}

	// Inside the lock window: rejected.
	h.now = genesis.Add(weekLen - time.Hour)
	err := h.e.ChangePicks(h.now, id, [][]uint8{pickA})
	if !errors.Is(err, engine.ErrPickLocked) {
		t.Fatalf("change inside lock: got %v, want ErrPickLocked", err)
	}

	tk, _ := h.e.Registry().Get(id)
	if len(tk.Picks) != 1 || tk.Picks[0] != mustMask(t, pickB) {
		t.Error("locked change must not alter picks")
	}
}

func TestClaim_CustodyFirstSemantics(t *testing.T) {
	h := defaultHarness(t)
	id := uuid.New()
	h.enroll(id, 10, pickA)
	h.settleWith() // coverage starts the week after enrollment
	h.settleWith(pickA...) // full match, jackpot hit

	credit := h.e.Accounts().CreditOf(id)
	if credit == 0 {
		t.Fatal("winner should hold credit")
	}

	// Custody failure leaves the credit untouched and is retryable.
	h.vault.FailNextWithdrawal()
	err := h.e.ClaimPrize(h.now, id, credit)
	if !errors.Is(err, engine.ErrRetryable) {
		t.Fatalf("custody failure: got %v, want ErrRetryable", err)
	}
	if h.e.Accounts().CreditOf(id) != credit {
		t.Error("credit must survive a custody failure")
	}

	// Retry succeeds.
	if err := h.e.ClaimPrize(h.now, id, credit); err != nil {
		t.Fatalf("retry claim: %v", err)
	}
	if h.e.Accounts().CreditOf(id) != 0 {
		t.Error("credit should be settled")
	}
	if h.e.Accounts().Withdrawn() != credit {
		t.Errorf("withdrawn: got %d, want %d", h.e.Accounts().Withdrawn(), credit)
	}
	h.mustConserve()
}

func TestClaim_RejectsOverdraw(t *testing.T) {
	h := defaultHarness(t)
	id := uuid.New()
	h.enroll(id, 10, pickA)
	h.settleWith()
	h.settleWith(pickA...)

	credit := h.e.Accounts().CreditOf(id)
	if err := h.e.ClaimPrize(h.now, id, credit+1); err == nil {
		t.Fatal("overdraw should fail")
	}
}

func TestSyncYield_GainToPot(t *testing.T) {
	h := defaultHarness(t)
	h.enroll(uuid.New(), 10, pickA)

	h.vault.Accrue(5_000)
	delta, err := h.e.SyncYield(h.now)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if delta != 5_000 {
		t.Errorf("delta: got %d, want 5000", delta)
	}
	if h.e.Accounts().Pot() != 95_000 {
		t.Errorf("pot: got %d, want 95000", h.e.Accounts().Pot())
	}
	h.mustConserve()
}

func TestSyncYield_LossWaterfall(t *testing.T) {
	h := defaultHarness(t)
	h.enroll(uuid.New(), 10, pickA) // pot 90000, treasury 10000

	h.vault.Accrue(-92_000)
	if _, err := h.e.SyncYield(h.now); err != nil {
		t.Fatalf("sync: %v", err)
	}
	acct := h.e.Accounts()
	if acct.Pot() != 0 {
		t.Errorf("pot should be exhausted first, got %d", acct.Pot())
	}
	if acct.Treasury() != 8_000 {
		t.Errorf("treasury absorbs the overflow: got %d, want 8000", acct.Treasury())
	}
	h.mustConserve()
}

func TestWindDown_NonFounderCannotEnroll(t *testing.T) {
	h := defaultHarness(t)
	h.enroll(uuid.New(), 20, pickA)

	for i := 0; i < 10; i++ {
		h.settleWith(pickB...) // nobody matches pickB's complement enough to matter
	}
	if h.e.EconomicPhase(h.now) != phase.WindingDown {
		t.Fatalf("expected wind-down at week %d", h.e.Week())
	}

	err := h.e.Enroll(h.now, uuid.New(), [][]uint8{pickA}, 2, 2*ticketPrice)
	if !errors.Is(err, engine.ErrNotFounder) {
		t.Fatalf("fresh enrollment in wind-down: got %v, want ErrNotFounder", err)
	}
}

func TestStateDigest_TracksMutation(t *testing.T) {
	h := defaultHarness(t)
	before := append([]byte(nil), h.e.StateDigest()...)

	h.enroll(uuid.New(), 5, pickA)
	after := h.e.StateDigest()

	if string(before) == string(after) {
		t.Error("digest should change with ledger state")
	}
}

func mustMask(t *testing.T, assets []uint8) codec.PickMask {
	t.Helper()
	m, err := codec.Encode(assets)
	if err != nil {
		t.Fatalf("encode %v: %v", assets, err)
	}
	return m
}
