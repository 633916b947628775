package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DYBL777/DYBL-Crypto42/internal/ledger"
	fpmath "github.com/DYBL777/DYBL-Crypto42/internal/math"
	"github.com/DYBL777/DYBL-Crypto42/internal/phase"
	"github.com/DYBL777/DYBL-Crypto42/internal/resolver"
)

// EmergencyUnwind aborts a settlement that has made no progress for the
// stuck timeout. Unpaid tier allocations return to pot, credits already
// issued stand, and the week is finalized so the game can move on. A stuck
// dormancy drain just returns to Idle without consuming a week.
//
// recorded carries the next week's start snapshot on replay, nil live.
func (e *Engine) EmergencyUnwind(now time.Time, recorded *resolver.PriceSnapshot) error {
	switch e.machine {
	case Matching, Distributing:
		ws := e.ws
		if now.Sub(ws.lastAdvance) <= e.params.StuckTimeout {
			return fmt.Errorf("%w: settlement not stuck yet", ErrTooEarly)
		}
		for _, tier := range ledger.LowerTiers {
			if ws.remaining[tier] == 0 {
				continue
			}
			if err := e.acct.ReturnTier(tier, ws.remaining[tier]); err != nil {
				panic(fmt.Sprintf("FATAL: unwind tier return: %v", err))
			}
			ws.remaining[tier] = 0
		}
		e.postCheck()
		e.log.Warn().Int64("week", e.week).Str("stage", e.machine.String()).Msg("settlement force-unwound")
		e.finalizeWeek(now, recorded)
		return nil

	case Draining:
		if now.Sub(e.lastSettledAt) <= e.params.StuckTimeout+e.params.DormancyThreshold {
			return fmt.Errorf("%w: drain not stuck yet", ErrTooEarly)
		}
		e.machine = Idle
		e.drainShare = 0
		e.drainCursor = 0
		e.log.Warn().Msg("dormancy drain force-unwound")
		return nil

	default:
		return fmt.Errorf("%w: nothing to unwind", ErrWrongPhase)
	}
}

// TriggerDormancy arms the batch drain once no week has settled for the
// dormancy threshold: every live ticket gets an equal pot share as credit.
func (e *Engine) TriggerDormancy(now time.Time) error {
	if err := e.requireIdle(); err != nil {
		return err
	}
	if now.Sub(e.lastSettledAt) <= e.params.DormancyThreshold {
		return fmt.Errorf("%w: game is not dormant", ErrTooEarly)
	}
	if e.reg.Len() == 0 {
		return fmt.Errorf("%w: no tickets to drain to", ErrWrongPhase)
	}

	share, _ := fpmath.SplitEven(e.acct.Pot(), e.reg.Len())
	e.drainShare = share
	e.drainCursor = 0
	e.machine = Draining

	e.log.Warn().
		Int("tickets", e.reg.Len()).
		Int64("share", share).
		Msg("dormancy drain armed")
	return nil
}

// AdvanceDrain credits one batch of the dormancy drain. The share is fixed
// when the drain arms; dust beyond share*n stays in pot.
func (e *Engine) AdvanceDrain(now time.Time) (done bool, err error) {
	if e.machine != Draining {
		return false, fmt.Errorf("%w: machine is %s", ErrWrongPhase, e.machine)
	}

	limit := e.drainCursor + e.params.DrainBatchSize
	for e.drainCursor < e.reg.Len() && e.drainCursor < limit {
		t := e.reg.At(e.drainCursor)
		if e.drainShare > 0 {
			if err := e.acct.CreditFromPot(t.ID, e.drainShare); err != nil {
				panic(fmt.Sprintf("FATAL: drain credit: %v", err))
			}
		}
		e.drainCursor++
	}
	e.postCheck()

	if e.drainCursor >= e.reg.Len() {
		e.machine = Idle
		e.drainShare = 0
		e.drainCursor = 0
		e.lastSettledAt = now
		e.log.Info().Msg("dormancy drain complete")
		return true, nil
	}
	return false, nil
}

// RescueAbandoned sweeps all residual value to treasury once the game has
// been dead past the abandonment threshold with no live tickets and no
// founders left to claim anything.
func (e *Engine) RescueAbandoned(now time.Time) (int64, error) {
	if err := e.requireIdle(); err != nil {
		return 0, err
	}
	if now.Sub(e.lastSettledAt) <= e.params.AbandonThreshold {
		return 0, fmt.Errorf("%w: abandonment threshold not reached", ErrTooEarly)
	}
	if e.reg.Len() > 0 {
		return 0, fmt.Errorf("%w: live tickets remain", ErrWrongPhase)
	}
	if e.phases.FounderCount() > 0 {
		return 0, fmt.Errorf("%w: %d founders hold closure rights", ErrWrongPhase, e.phases.FounderCount())
	}

	swept := e.acct.SweepToTreasury()
	e.closure = nil
	e.postCheck()

	e.log.Warn().Int64("swept", swept).Msg("abandoned value rescued to treasury")
	return swept, nil
}

// TriggerClosure runs the terminal split once the game is Closed: a fixed
// share of pot is reserved for founders in equal parts, everything else in
// pot and the jackpot reserve moves to treasury. Founder shares stay in pot
// until each founder claims lazily.
func (e *Engine) TriggerClosure(now time.Time) error {
	if err := e.requireIdle(); err != nil {
		return err
	}
	if e.EconomicPhase(now) != phase.Closed {
		return fmt.Errorf("%w: game is not closed", ErrWrongPhase)
	}
	if e.closure != nil {
		return ErrAlreadyDone
	}

	if jp := e.acct.Jackpot(); jp > 0 {
		if err := e.acct.RecycleJackpot(jp); err != nil {
			panic(fmt.Sprintf("FATAL: closure jackpot recycle: %v", err))
		}
	}

	founders := e.phases.FounderCount()
	perFounder := int64(0)
	reserved := int64(0)
	if founders > 0 {
		founderPool := fpmath.ApplyBps(e.acct.Pot(), e.phases.Params().ClosureFounderBps)
		perFounder, _ = fpmath.SplitEven(founderPool, founders)
		reserved = perFounder * int64(founders)
	}
	if rest := e.acct.Pot() - reserved; rest > 0 {
		if err := e.acct.PotToTreasury(rest); err != nil {
			panic(fmt.Sprintf("FATAL: closure treasury sweep: %v", err))
		}
	}

	e.closure = &closureState{
		perFounder: perFounder,
		claimed:    make(map[uuid.UUID]bool),
	}
	e.postCheck()

	e.log.Info().
		Int("founders", founders).
		Int64("per_founder", perFounder).
		Msg("closure triggered")
	return nil
}

// ClaimClosureShare credits a founder's closure share, once.
func (e *Engine) ClaimClosureShare(now time.Time, id uuid.UUID) error {
	if err := e.requireIdle(); err != nil {
		return err
	}
	if e.closure == nil {
		return fmt.Errorf("%w: closure has not run", ErrWrongPhase)
	}
	if !e.phases.IsFounder(id) {
		return ErrNotFounder
	}
	if e.closure.claimed[id] {
		return ErrAlreadyDone
	}

	if err := e.acct.CreditFromPot(id, e.closure.perFounder); err != nil {
		panic(fmt.Sprintf("FATAL: closure share credit: %v", err))
	}
	e.closure.claimed[id] = true
	e.postCheck()
	return nil
}
