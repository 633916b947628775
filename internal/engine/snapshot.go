package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DYBL777/DYBL-Crypto42/internal/codec"
	"github.com/DYBL777/DYBL-Crypto42/internal/ledger"
	"github.com/DYBL777/DYBL-Crypto42/internal/oracle"
	"github.com/DYBL777/DYBL-Crypto42/internal/registry"
	"github.com/DYBL777/DYBL-Crypto42/internal/resolver"
)

// TicketSnapshot is one ticket's persisted form.
type TicketSnapshot struct {
	ID         uuid.UUID        `json:"id"`
	Picks      []codec.PickMask `json:"picks"`
	StartWeek  int64            `json:"start_week"`
	EndWeek    int64            `json:"end_week"`
	JoinedWeek int64            `json:"joined_week"`
}

// BoundSnapshot is one asset's oracle configuration, recorded only when it
// differs from the defaults.
type BoundSnapshot struct {
	Asset    uint8         `json:"asset"`
	Endpoint string        `json:"endpoint"`
	MaxAge   time.Duration `json:"max_age"`
}

// ProposalSnapshot is one pending timelocked oracle change.
type ProposalSnapshot struct {
	ID         uuid.UUID     `json:"id"`
	Asset      uint8         `json:"asset"`
	Endpoint   string        `json:"endpoint"`
	MaxAge     time.Duration `json:"max_age"`
	ProposedAt time.Time     `json:"proposed_at"`
	ETA        time.Time     `json:"eta"`
}

// Snapshot is the full aggregate state at an Idle boundary. Snapshots are
// only taken between settlements; the operation log replays everything
// after the snapshot's sequence, including any in-flight machine state.
type Snapshot struct {
	Week          int64                  `json:"week"`
	WeekOpenedAt  time.Time              `json:"week_opened_at"`
	LastSettledAt time.Time              `json:"last_settled_at"`
	PriceSnapshot resolver.PriceSnapshot `json:"price_snapshot"`

	Buckets ledger.BucketSnapshot `json:"buckets"`
	Credits map[string]int64      `json:"credits"`

	Tickets []TicketSnapshot `json:"tickets"`

	Founders          []uuid.UUID `json:"founders"`
	TreasuryRenounced bool        `json:"treasury_renounced"`

	ClosureDone       bool        `json:"closure_done"`
	ClosurePerFounder int64       `json:"closure_per_founder"`
	ClosureClaimed    []uuid.UUID `json:"closure_claimed"`

	DrawWindowStart time.Time `json:"draw_window_start"`
	DrawnInWindow   int64     `json:"drawn_in_window"`

	OracleBounds []BoundSnapshot    `json:"oracle_bounds,omitempty"`
	Proposals    []ProposalSnapshot `json:"proposals,omitempty"`
}

// Snapshot captures the aggregate. Only valid at Idle.
func (e *Engine) Snapshot() (Snapshot, error) {
	if e.machine != Idle {
		return Snapshot{}, fmt.Errorf("%w: snapshot only at idle, machine is %s", ErrWrongPhase, e.machine)
	}

	snap := Snapshot{
		Week:              e.week,
		WeekOpenedAt:      e.weekOpenedAt,
		LastSettledAt:     e.lastSettledAt,
		PriceSnapshot:     e.snapshot,
		Buckets:           e.acct.Snapshot(),
		Credits:           make(map[string]int64),
		TreasuryRenounced: e.phases.TreasuryRenounced(),
		DrawWindowStart:   e.drawWindowStart,
		DrawnInWindow:     e.drawnInWindow,
	}
	for id, c := range e.acct.Credits() {
		snap.Credits[id.String()] = c
	}
	for i := 0; i < e.reg.Len(); i++ {
		t := e.reg.At(i)
		snap.Tickets = append(snap.Tickets, TicketSnapshot{
			ID:         t.ID,
			Picks:      append([]codec.PickMask(nil), t.Picks...),
			StartWeek:  t.StartWeek,
			EndWeek:    t.EndWeek,
			JoinedWeek: t.JoinedWeek,
		})
	}
	for id := range e.phases.Founders() {
		snap.Founders = append(snap.Founders, id)
	}
	if e.closure != nil {
		snap.ClosureDone = true
		snap.ClosurePerFounder = e.closure.perFounder
		for id := range e.closure.claimed {
			snap.ClosureClaimed = append(snap.ClosureClaimed, id)
		}
	}
	bounds := e.res.Bounds()
	for a := uint8(0); a < codec.UniverseSize; a++ {
		cfg := bounds.Get(a)
		if cfg.Endpoint != "" || cfg.MaxAge != oracle.DefaultMaxAge {
			snap.OracleBounds = append(snap.OracleBounds, BoundSnapshot{
				Asset:    a,
				Endpoint: cfg.Endpoint,
				MaxAge:   cfg.MaxAge,
			})
		}
	}
	for _, p := range e.proposals {
		snap.Proposals = append(snap.Proposals, ProposalSnapshot{
			ID:         p.ID,
			Asset:      p.Asset,
			Endpoint:   p.Config.Endpoint,
			MaxAge:     p.Config.MaxAge,
			ProposedAt: p.ProposedAt,
			ETA:        p.ETA,
		})
	}
	return snap, nil
}

// Restore overwrites the aggregate from a snapshot before log replay.
func (e *Engine) Restore(snap Snapshot) error {
	credits := make(map[uuid.UUID]int64, len(snap.Credits))
	for s, c := range snap.Credits {
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("engine: bad credit key %q: %w", s, err)
		}
		credits[id] = c
	}
	e.acct.Restore(snap.Buckets, credits)

	for _, ts := range snap.Tickets {
		t := &registry.Ticket{
			ID:         ts.ID,
			Picks:      append([]codec.PickMask(nil), ts.Picks...),
			StartWeek:  ts.StartWeek,
			EndWeek:    ts.EndWeek,
			JoinedWeek: ts.JoinedWeek,
		}
		if err := e.reg.Enroll(t); err != nil {
			return fmt.Errorf("engine: restore ticket %s: %w", ts.ID, err)
		}
	}

	e.phases.RestoreFounders(snap.Founders, snap.TreasuryRenounced)

	e.week = snap.Week
	e.weekOpenedAt = snap.WeekOpenedAt
	e.lastSettledAt = snap.LastSettledAt
	e.snapshot = snap.PriceSnapshot
	e.machine = Idle
	e.ws = nil
	e.drawWindowStart = snap.DrawWindowStart
	e.drawnInWindow = snap.DrawnInWindow

	if snap.ClosureDone {
		e.closure = &closureState{
			perFounder: snap.ClosurePerFounder,
			claimed:    make(map[uuid.UUID]bool, len(snap.ClosureClaimed)),
		}
		for _, id := range snap.ClosureClaimed {
			e.closure.claimed[id] = true
		}
	}

	for _, bs := range snap.OracleBounds {
		e.res.Bounds().Set(bs.Asset, oracle.AssetConfig{
			Endpoint: bs.Endpoint,
			MaxAge:   bs.MaxAge,
		})
	}
	for _, ps := range snap.Proposals {
		e.proposals[ps.ID] = &OracleProposal{
			ID:         ps.ID,
			Asset:      ps.Asset,
			Config:     oracle.AssetConfig{Endpoint: ps.Endpoint, MaxAge: ps.MaxAge},
			ProposedAt: ps.ProposedAt,
			ETA:        ps.ETA,
		}
	}

	if err := e.validator.CheckConservation(); err != nil {
		return fmt.Errorf("engine: restored state is inconsistent: %w", err)
	}
	return e.validator.CheckCreditsConsistent()
}
