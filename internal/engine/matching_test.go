package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/DYBL777/DYBL-Crypto42/internal/engine"
)

func TestResolveWeek_RequiresElapsedWeek(t *testing.T) {
	h := defaultHarness(t)

	err := h.e.ResolveWeek(genesis.Add(weekLen-time.Second), nil)
	if !errors.Is(err, engine.ErrTooEarly) {
		t.Fatalf("early resolve: got %v, want ErrTooEarly", err)
	}
	if err := h.e.ResolveWeek(genesis.Add(weekLen), nil); err != nil {
		t.Fatalf("resolve at boundary: %v", err)
	}
	if h.e.Machine() != engine.Matching {
		t.Errorf("machine: got %v, want Matching", h.e.Machine())
	}
}

func TestResolveWeek_RejectsWhileInFlight(t *testing.T) {
	h := defaultHarness(t)
	h.now = h.now.Add(weekLen)
	h.feed.SetAll(basePrice, h.now)

	if err := h.e.ResolveWeek(h.now, nil); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	err := h.e.ResolveWeek(h.now, nil)
	if !errors.Is(err, engine.ErrWrongPhase) {
		t.Fatalf("double resolve: got %v, want ErrWrongPhase", err)
	}
}

func TestMutations_RejectedMidSettlement(t *testing.T) {
	h := defaultHarness(t)
	id := uuid.New()
	h.enroll(id, 10, pickA)

	h.now = h.now.Add(weekLen)
	h.feed.SetAll(basePrice, h.now)
	if err := h.e.ResolveWeek(h.now, nil); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if err := h.e.Enroll(h.now, uuid.New(), [][]uint8{pickB}, 5, 5*ticketPrice); !errors.Is(err, engine.ErrWrongPhase) {
		t.Errorf("enroll mid-settlement: got %v", err)
	}
	if err := h.e.ChangePicks(h.now, id, [][]uint8{pickB}); !errors.Is(err, engine.ErrWrongPhase) {
		t.Errorf("pick change mid-settlement: got %v", err)
	}
	if err := h.e.ClaimPrize(h.now, id, 1); !errors.Is(err, engine.ErrWrongPhase) {
		t.Errorf("claim mid-settlement: got %v", err)
	}
	if _, err := h.e.SyncYield(h.now); !errors.Is(err, engine.ErrWrongPhase) {
		t.Errorf("yield sync mid-settlement: got %v", err)
	}
}

func TestAdvanceMatching_BatchesAndResumes(t *testing.T) {
	// Ten active tickets with MatchBatchSize 4: the pass needs three calls.
	h := defaultHarness(t)
	for i := 0; i < 10; i++ {
		h.enroll(uuid.New(), 10, pickB)
	}
	h.settleWith() // activate coverage

	h.now = h.now.Add(weekLen)
	h.feed.SetAll(basePrice, h.now)
	if err := h.e.ResolveWeek(h.now, nil); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	var dones []bool
	for {
		done, err := h.e.AdvanceMatching(h.now)
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
		dones = append(dones, done)
		if done {
			break
		}
	}
	if len(dones) != 3 {
		t.Fatalf("advances: got %d, want 3", len(dones))
	}
	if dones[0] || dones[1] || !dones[2] {
		t.Errorf("done sequence wrong: %v", dones)
	}

	// Past the end of the pass the stage rejects further advances.
	if _, err := h.e.AdvanceMatching(h.now); !errors.Is(err, engine.ErrWrongPhase) {
		t.Errorf("advance after done: got %v", err)
	}
}

func TestAdvanceMatching_RemovesExpiredExactlyOnce(t *testing.T) {
	h := defaultHarness(t)
	// Three tickets covering only week two; two long ones.
	short := make([]uuid.UUID, 3)
	for i := range short {
		short[i] = uuid.New()
		h.enroll(short[i], 1, pickB)
	}
	long := []uuid.UUID{uuid.New(), uuid.New()}
	for _, id := range long {
		h.enroll(id, 10, pickC)
	}

	h.settleWith() // week 1, everyone pending
	h.settleWith() // week 2, everyone plays
	h.settleWith(pickA...) // week 3: short tickets expired, long ones match5

	reg := h.e.Registry()
	if reg.Len() != 2 {
		t.Fatalf("registry after expiry: got %d, want 2", reg.Len())
	}
	for _, id := range short {
		if _, ok := reg.Get(id); ok {
			t.Errorf("expired ticket %s still live", id)
		}
	}

	// Both survivors were scored in the same pass their neighbours expired.
	acct := h.e.Accounts()
	a, b := acct.CreditOf(long[0]), acct.CreditOf(long[1])
	if a == 0 || a != b {
		t.Errorf("survivors should split the tier evenly, got %d and %d", a, b)
	}
	h.mustConserve()
}

func TestAdvanceMatching_PendingTicketsDoNotPlay(t *testing.T) {
	h := defaultHarness(t)
	early := uuid.New()
	h.enroll(early, 10, pickC)
	h.settleWith() // week 1

	// Enrolled during week two: starts week three, must not win week two.
	late := uuid.New()
	h.enroll(late, 10, pickC)
	h.settleWith(pickA...) // week 2

	acct := h.e.Accounts()
	if acct.CreditOf(late) != 0 {
		t.Errorf("pending ticket must not be scored, got credit %d", acct.CreditOf(late))
	}
	if acct.CreditOf(early) == 0 {
		t.Error("active ticket should win the full tier")
	}
}

func TestWindDown_PromotionAndExclusion(t *testing.T) {
	h := defaultHarness(t)
	veteran := uuid.New()
	h.enroll(veteran, 14, pickC) // tenure 14, qualifies (threshold 3)

	for i := 0; i < 8; i++ {
		h.settleWith(pickB...)
	}
	// Week 9: a latecomer buys the minimum. Tenure 2 never qualifies.
	latecomer := uuid.New()
	h.enroll(latecomer, 2, pickC)
	h.settleWith(pickB...)
	h.settleWith(pickB...) // week 10, last accumulation week

	if h.e.Week() != 11 {
		t.Fatalf("week: got %d, want 11", h.e.Week())
	}

	h.settleWith(pickA...) // first wind-down settlement

	if !h.e.Phases().IsFounder(veteran) {
		t.Error("qualifying tenure should promote during the wind-down pass")
	}
	if h.e.Phases().IsFounder(latecomer) {
		t.Error("two-week tenure must not be promoted")
	}

	// Promotion grants standing from the next settlement on: the pass that
	// promoted must not score the ticket.
	acct := h.e.Accounts()
	if got := acct.CreditOf(veteran); got != 0 {
		t.Errorf("promoting pass must not score the ticket, got credit %d", got)
	}
	if acct.CreditOf(latecomer) != 0 {
		t.Errorf("excluded ticket must not win, got %d", acct.CreditOf(latecomer))
	}

	h.settleWith(pickA...) // second wind-down settlement: the founder plays
	if acct.CreditOf(veteran) == 0 {
		t.Error("established founder should win the following week")
	}
	h.mustConserve()
}

func TestSolvencyGate_PanicsOnShortfall(t *testing.T) {
	h := defaultHarness(t)
	h.enroll(uuid.New(), 10, pickA)

	// Custody silently loses value; the first allocation must trip the
	// circuit breaker rather than allocate phantom funds.
	h.vault.Accrue(-50_000)

	h.now = h.now.Add(weekLen)
	h.feed.SetAll(basePrice, h.now)
	if err := h.e.ResolveWeek(h.now, nil); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("insolvent allocation should panic")
		}
	}()
	h.e.AdvanceMatching(h.now)
}
