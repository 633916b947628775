package phase

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the long-horizon economic phase of the game.
type Phase int

const (
	Accumulating Phase = iota
	WindingDown
	Closed
)

func (p Phase) String() string {
	switch p {
	case Accumulating:
		return "accumulating"
	case WindingDown:
		return "winding_down"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Params fixes the economic schedule. Set once at initialization.
type Params struct {
	AccumulationWeeks int64 // weeks 1..AccumulationWeeks
	WindDownWeeks     int64 // weeks after accumulation, founders only

	TreasuryBps       int64 // intake share to treasury during accumulation
	BasePayoutRateBps int64 // pot fraction allocated per week
	MaxPayoutRateBps  int64 // payout rate ceiling at the end of wind-down

	FoundingTenureWeeks int64 // continuous weeks to qualify as founder
	ClosureFounderBps   int64 // closure pot share to founders; rest to treasury

	WeekLength   time.Duration
	ClosureGrace time.Duration // wall-clock slack past the scheduled end
}

// DefaultParams is the production schedule: ten years of accumulation, two
// of wind-down.
func DefaultParams() Params {
	return Params{
		AccumulationWeeks:   520,
		WindDownWeeks:       104,
		TreasuryBps:         1000,
		BasePayoutRateBps:   5000,
		MaxPayoutRateBps:    9500,
		FoundingTenureWeeks: 52,
		ClosureFounderBps:   8000,
		WeekLength:          7 * 24 * time.Hour,
		ClosureGrace:        30 * 24 * time.Hour,
	}
}

// TotalWeeks is the full scheduled lifetime in weeks.
func (p Params) TotalWeeks() int64 {
	return p.AccumulationWeeks + p.WindDownWeeks
}

// Controller derives the current phase and the week's economic ratios from
// the week counter and elapsed wall time, and keeps the founding-member
// qualification records. Not thread-safe — core-owned.
type Controller struct {
	params  Params
	genesis time.Time

	treasuryRenounced bool
	founders          map[uuid.UUID]bool
}

func NewController(params Params, genesis time.Time) *Controller {
	return &Controller{
		params:   params,
		genesis:  genesis,
		founders: make(map[uuid.UUID]bool),
	}
}

func (c *Controller) Params() Params { return c.params }

// Deadline is the wall-clock time after which closure is triggerable by
// anyone regardless of the week counter.
func (c *Controller) Deadline() time.Time {
	return c.genesis.Add(time.Duration(c.params.TotalWeeks())*c.params.WeekLength + c.params.ClosureGrace)
}

// PhaseAt returns the phase for a settlement week, also honouring the
// wall-clock deadline so a stalled week counter cannot postpone closure.
func (c *Controller) PhaseAt(week int64, now time.Time) Phase {
	if now.After(c.Deadline()) {
		return Closed
	}
	switch {
	case week <= c.params.AccumulationWeeks:
		return Accumulating
	case week <= c.params.TotalWeeks():
		return WindingDown
	default:
		return Closed
	}
}

// windDownIndex returns how far into wind-down the week is, in [1, WindDownWeeks].
func (c *Controller) windDownIndex(week int64) int64 {
	idx := week - c.params.AccumulationWeeks
	if idx < 1 {
		idx = 1
	}
	if idx > c.params.WindDownWeeks {
		idx = c.params.WindDownWeeks
	}
	return idx
}

// TreasuryBpsAt returns the treasury's intake share for a week: constant
// during accumulation, tapering linearly to zero across wind-down, and zero
// forever once the operator renounces.
func (c *Controller) TreasuryBpsAt(week int64, now time.Time) int64 {
	if c.treasuryRenounced {
		return 0
	}
	switch c.PhaseAt(week, now) {
	case Accumulating:
		return c.params.TreasuryBps
	case WindingDown:
		idx := c.windDownIndex(week)
		return c.params.TreasuryBps * (c.params.WindDownWeeks - idx) / c.params.WindDownWeeks
	default:
		return 0
	}
}

// PayoutRateBpsAt returns the pot fraction allocated to a week's pool:
// the base rate during accumulation, escalating linearly to the ceiling
// across wind-down.
func (c *Controller) PayoutRateBpsAt(week int64, now time.Time) int64 {
	switch c.PhaseAt(week, now) {
	case Accumulating:
		return c.params.BasePayoutRateBps
	case WindingDown:
		idx := c.windDownIndex(week)
		span := c.params.MaxPayoutRateBps - c.params.BasePayoutRateBps
		return c.params.BasePayoutRateBps + span*idx/c.params.WindDownWeeks
	default:
		return 0
	}
}

// RenounceTreasury irreversibly commits to zero future treasury take.
func (c *Controller) RenounceTreasury() {
	c.treasuryRenounced = true
}

func (c *Controller) TreasuryRenounced() bool {
	return c.treasuryRenounced
}

// --- founding members ---

// QualifiesFounder reports whether a tenure earns founding status.
func (c *Controller) QualifiesFounder(tenureWeeks int64) bool {
	return tenureWeeks >= c.params.FoundingTenureWeeks
}

// Promote grants founding status. Status is permanent once granted; a later
// lapse does not revoke it.
func (c *Controller) Promote(id uuid.UUID) bool {
	if c.founders[id] {
		return false
	}
	c.founders[id] = true
	return true
}

func (c *Controller) IsFounder(id uuid.UUID) bool {
	return c.founders[id]
}

func (c *Controller) FounderCount() int {
	return len(c.founders)
}

// Founders returns the founder set (copy).
func (c *Controller) Founders() map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool, len(c.founders))
	for id := range c.founders {
		out[id] = true
	}
	return out
}

// RestoreFounders reloads qualification records on warm restart.
func (c *Controller) RestoreFounders(ids []uuid.UUID, renounced bool) {
	for _, id := range ids {
		c.founders[id] = true
	}
	c.treasuryRenounced = renounced
}
