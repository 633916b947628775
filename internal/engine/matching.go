package engine

import (
	"fmt"
	"time"

	"github.com/DYBL777/DYBL-Crypto42/internal/codec"
	"github.com/DYBL777/DYBL-Crypto42/internal/ledger"
	fpmath "github.com/DYBL777/DYBL-Crypto42/internal/math"
	"github.com/DYBL777/DYBL-Crypto42/internal/phase"
	"github.com/DYBL777/DYBL-Crypto42/internal/registry"
	"github.com/DYBL777/DYBL-Crypto42/internal/resolver"
)

// ResolveWeek closes the current week against the oracle and arms the
// settlement machine. Permissionless: the only guards are the week having
// elapsed and no settlement already in flight.
//
// On the live path recorded is nil and the outcome is computed from the
// oracle feed; replay passes the outcome recorded in the logged command so
// the feed is never consulted again. Feed state at replay time would differ
// from what the live run saw and fork the hash chain.
func (e *Engine) ResolveWeek(now time.Time, recorded *resolver.Outcome) error {
	if e.machine != Idle {
		return fmt.Errorf("%w: settlement already in flight", ErrWrongPhase)
	}
	ph := e.EconomicPhase(now)
	if ph == phase.Closed {
		return ErrClosed
	}
	if now.Before(e.weekOpenedAt.Add(e.phases.Params().WeekLength)) {
		return fmt.Errorf("%w: week %d has not elapsed", ErrTooEarly, e.week)
	}

	var out resolver.Outcome
	if recorded != nil {
		out = *recorded
	} else {
		out = e.res.Resolve(e.snapshot, now)
	}
	e.ws = &weekState{
		outcome:     out,
		phase:       ph, // frozen here so a phase flip mid-settlement cannot split the week's economics
		payoutBps:   e.phases.PayoutRateBpsAt(e.week, now),
		lastAdvance: now,
	}
	e.machine = Matching

	e.log.Info().
		Int64("week", e.week).
		Str("phase", ph.String()).
		Uints8("outcome", out.Assets[:]).
		Msg("week resolved")
	return nil
}

// AdvanceMatching runs one batch of the matching pass: the first call also
// performs the solvency gate and the week-pool allocation. Idempotent in the
// sense that repeated calls resume at the cursor; calling after the pass has
// finished returns ErrWrongPhase.
func (e *Engine) AdvanceMatching(now time.Time) (done bool, err error) {
	if e.machine != Matching {
		return false, fmt.Errorf("%w: machine is %s", ErrWrongPhase, e.machine)
	}
	ws := e.ws

	if !ws.allocated {
		if err := e.allocateWeekPool(); err != nil {
			return false, err
		}
	}

	limit := ws.matchCursor + e.params.MatchBatchSize
	for ws.matchCursor < e.reg.Len() && ws.matchCursor < limit {
		t := e.reg.At(ws.matchCursor)

		if t.Expired(e.week) {
			// Swap-and-pop at the cursor; the swapped-in ticket lands on this
			// slot and is scored on the next iteration.
			e.reg.RemoveAt(ws.matchCursor)
			limit--
			continue
		}
		if t.Pending(e.week) {
			ws.matchCursor++
			continue
		}

		if ws.phase == phase.WindingDown && !e.phases.IsFounder(t.ID) {
			// A qualifying tenure is promoted here, but founder standing
			// starts counting from the next settlement: the pass that
			// promotes still skips the ticket.
			if e.phases.QualifiesFounder(t.TenureWeeks()) {
				e.phases.Promote(t.ID)
			}
			ws.matchCursor++
			continue
		}

		e.scoreTicket(t)
		ws.matchCursor++
	}

	ws.lastAdvance = now
	e.postCheck()

	if ws.matchCursor >= e.reg.Len() {
		e.machine = Distributing
		e.log.Info().
			Int64("week", e.week).
			Int("jackpot_winners", len(ws.winners[ledger.TierJackpot])).
			Int("match5", len(ws.winners[ledger.TierMatch5])).
			Int("match4", len(ws.winners[ledger.TierMatch4])).
			Int("match3", len(ws.winners[ledger.TierMatch3])).
			Msg("matching pass complete")
		return true, nil
	}
	return false, nil
}

// allocateWeekPool gates on external solvency, then carves this week's pool
// out of pot: the jackpot contribution and the three lower-tier allocations.
// Whatever the bps split leaves over never leaves pot.
func (e *Engine) allocateWeekPool() error {
	held, err := e.vault.TotalHeld()
	if err != nil {
		// Nothing has moved; the next advance retries the gate.
		return fmt.Errorf("%w: custody query: %v", ErrRetryable, err)
	}
	if err := e.validator.CheckSolvency(held); err != nil {
		panic(fmt.Sprintf("FATAL: %v", err))
	}

	ws := e.ws
	ws.weekPool = fpmath.ApplyBps(e.acct.Pot(), ws.payoutBps)
	ws.contribution = fpmath.ApplyBps(ws.weekPool, e.params.JackpotBps)
	if err := e.acct.FundJackpot(ws.contribution); err != nil {
		panic(fmt.Sprintf("FATAL: jackpot funding: %v", err))
	}
	for _, t := range ledger.LowerTiers {
		amount := fpmath.ApplyBps(ws.weekPool, e.params.tierBps(t))
		if err := e.acct.AllocateTier(t, amount); err != nil {
			panic(fmt.Sprintf("FATAL: tier allocation: %v", err))
		}
		ws.remaining[t] = amount
	}
	ws.allocated = true

	e.log.Info().
		Int64("week", e.week).
		Int64("week_pool", ws.weekPool).
		Int64("jackpot_contribution", ws.contribution).
		Int64("payout_bps", ws.payoutBps).
		Msg("week pool allocated")
	return nil
}

// scoreTicket matches every pick on the ticket against the outcome. Each
// pick wins independently; a two-pick ticket can appear twice in one tier's
// winner list and is then paid twice.
func (e *Engine) scoreTicket(t *registry.Ticket) {
	ws := e.ws
	for _, pick := range t.Picks {
		n := codec.Overlap(pick, ws.outcome.Mask)
		tier, ok := ledger.TierForMatches(n)
		if !ok {
			continue
		}
		ws.winners[tier] = append(ws.winners[tier], t.ID)
	}
}
