package phase_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/DYBL777/DYBL-Crypto42/internal/phase"
)

func testParams() phase.Params {
	p := phase.DefaultParams()
	p.AccumulationWeeks = 100
	p.WindDownWeeks = 20
	p.FoundingTenureWeeks = 10
	return p
}

var genesis = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func TestPhaseAt_WeekBoundaries(t *testing.T) {
	c := phase.NewController(testParams(), genesis)
	now := genesis.Add(time.Hour)

	tests := []struct {
		week int64
		want phase.Phase
	}{
		{1, phase.Accumulating},
		{100, phase.Accumulating},
		{101, phase.WindingDown},
		{120, phase.WindingDown},
		{121, phase.Closed},
	}
	for _, tt := range tests {
		if got := c.PhaseAt(tt.week, now); got != tt.want {
			t.Errorf("week %d: got %v, want %v", tt.week, got, tt.want)
		}
	}
}

func TestPhaseAt_WallClockDeadline(t *testing.T) {
	p := testParams()
	c := phase.NewController(p, genesis)

	// Week counter stalled at 5, but the deadline has passed.
	late := c.Deadline().Add(time.Second)
	if got := c.PhaseAt(5, late); got != phase.Closed {
		t.Errorf("past deadline: got %v, want Closed", got)
	}
	if got := c.PhaseAt(5, c.Deadline()); got != phase.Accumulating {
		t.Errorf("at deadline: got %v, want Accumulating", got)
	}
}

func TestTreasuryBps_TapersToZero(t *testing.T) {
	p := testParams()
	c := phase.NewController(p, genesis)
	now := genesis.Add(time.Hour)

	if got := c.TreasuryBpsAt(50, now); got != 1000 {
		t.Errorf("accumulation: got %d, want 1000", got)
	}

	// Linear taper across 20 wind-down weeks.
	if got := c.TreasuryBpsAt(101, now); got != 950 {
		t.Errorf("first wind-down week: got %d, want 950", got)
	}
	if got := c.TreasuryBpsAt(110, now); got != 500 {
		t.Errorf("mid wind-down: got %d, want 500", got)
	}
	if got := c.TreasuryBpsAt(120, now); got != 0 {
		t.Errorf("last wind-down week: got %d, want 0", got)
	}

	// Monotone non-increasing across the taper.
	prev := int64(1000)
	for w := int64(101); w <= 120; w++ {
		got := c.TreasuryBpsAt(w, now)
		if got > prev {
			t.Fatalf("taper not monotone at week %d: %d > %d", w, got, prev)
		}
		prev = got
	}
}

func TestPayoutRate_EscalatesToCeiling(t *testing.T) {
	p := testParams()
	c := phase.NewController(p, genesis)
	now := genesis.Add(time.Hour)

	if got := c.PayoutRateBpsAt(50, now); got != 5000 {
		t.Errorf("accumulation: got %d, want 5000", got)
	}
	if got := c.PayoutRateBpsAt(110, now); got != 7250 {
		t.Errorf("mid wind-down: got %d, want 7250", got)
	}
	if got := c.PayoutRateBpsAt(120, now); got != 9500 {
		t.Errorf("last wind-down week: got %d, want ceiling 9500", got)
	}
}

func TestRenounceTreasury(t *testing.T) {
	c := phase.NewController(testParams(), genesis)
	now := genesis.Add(time.Hour)

	c.RenounceTreasury()
	if !c.TreasuryRenounced() {
		t.Fatal("renounce should stick")
	}
	if got := c.TreasuryBpsAt(50, now); got != 0 {
		t.Errorf("renounced treasury share: got %d, want 0", got)
	}
}

func TestFounders_PermanentPromotion(t *testing.T) {
	c := phase.NewController(testParams(), genesis)
	id := uuid.New()

	if c.QualifiesFounder(9) {
		t.Error("9 weeks should not qualify")
	}
	if !c.QualifiesFounder(10) {
		t.Error("10 weeks should qualify")
	}

	if !c.Promote(id) {
		t.Error("first promotion should report newly granted")
	}
	if c.Promote(id) {
		t.Error("second promotion should be a no-op")
	}
	if !c.IsFounder(id) || c.FounderCount() != 1 {
		t.Error("founder record missing")
	}
}

func TestRestoreFounders(t *testing.T) {
	c := phase.NewController(testParams(), genesis)
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	c.RestoreFounders(ids, true)

	if c.FounderCount() != 2 {
		t.Errorf("founder count: got %d, want 2", c.FounderCount())
	}
	if !c.TreasuryRenounced() {
		t.Error("renounced flag should be restored")
	}
}
