package engine

import (
	"fmt"
	"time"

	"github.com/DYBL777/DYBL-Crypto42/internal/ledger"
	fpmath "github.com/DYBL777/DYBL-Crypto42/internal/math"
	"github.com/DYBL777/DYBL-Crypto42/internal/resolver"
)

// AdvanceDistribution runs one batch of prize crediting. The first call
// settles the jackpot (pay on a hit, recycle overflow on a miss); subsequent
// calls walk the lower tiers paying PayoutBatchSize credits at a time. The
// final call finalizes the week and returns the machine to Idle.
//
// recorded is the next week's start snapshot from the logged command; nil on
// the live path, where finalization reads the feed instead.
func (e *Engine) AdvanceDistribution(now time.Time, recorded *resolver.PriceSnapshot) (done bool, err error) {
	if e.machine != Distributing {
		return false, fmt.Errorf("%w: machine is %s", ErrWrongPhase, e.machine)
	}
	ws := e.ws

	if !ws.jackpotSettled {
		e.settleJackpot()
	}

	paid := 0
	for ws.distTier < len(ledger.LowerTiers) && paid < e.params.PayoutBatchSize {
		tier := ledger.LowerTiers[ws.distTier]
		winners := ws.winners[tier]

		if !ws.shareReady {
			pool := ws.remaining[tier]
			if len(winners) == 0 || pool/int64(len(winners)) == 0 {
				// No winners, or the pool splits to dust: the whole tier
				// allocation rolls back into pot.
				if err := e.acct.ReturnTier(tier, pool); err != nil {
					panic(fmt.Sprintf("FATAL: tier return: %v", err))
				}
				ws.remaining[tier] = 0
				e.log.Info().
					Int64("week", e.week).
					Str("tier", tier.String()).
					Int64("returned", pool).
					Msg("tier pool returned to pot")
				ws.distTier++
				continue
			}
			share, rem := fpmath.SplitEven(pool, len(winners))
			ws.share = share
			ws.shareReady = true
			if rem > 0 {
				if err := e.acct.ReturnTier(tier, rem); err != nil {
					panic(fmt.Sprintf("FATAL: tier remainder return: %v", err))
				}
				ws.remaining[tier] -= rem
			}
		}

		for ws.distCursor < len(winners) && paid < e.params.PayoutBatchSize {
			id := winners[ws.distCursor]
			if err := e.acct.CreditTierPrize(tier, id, ws.share); err != nil {
				panic(fmt.Sprintf("FATAL: tier credit: %v", err))
			}
			ws.remaining[tier] -= ws.share
			ws.distCursor++
			paid++
		}

		if ws.distCursor >= len(winners) {
			if ws.remaining[tier] != 0 {
				panic(fmt.Sprintf("FATAL: tier %s fully paid but %d remains", tier, ws.remaining[tier]))
			}
			ws.distTier++
			ws.distCursor = 0
			ws.shareReady = false
		}
	}

	ws.lastAdvance = now
	e.postCheck()

	if ws.distTier >= len(ledger.LowerTiers) {
		e.finalizeWeek(now, recorded)
		return true, nil
	}
	return false, nil
}

// ForceCompleteDistribution drives an in-flight distribution to completion in
// a single call, running every remaining payout batch and finalizing the
// week. Same guards and economics as AdvanceDistribution; only the batching
// differs.
func (e *Engine) ForceCompleteDistribution(now time.Time, recorded *resolver.PriceSnapshot) error {
	if e.machine != Distributing {
		return fmt.Errorf("%w: machine is %s", ErrWrongPhase, e.machine)
	}
	for {
		done, err := e.AdvanceDistribution(now, recorded)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// settleJackpot resolves the reserve for this week. A hit pays the payout
// fraction of the whole reserve split evenly across full-match picks and
// recycles the leftover to pot as the reseed. A miss recycles half the
// week's contribution so a long dry spell cannot strand the pot's value.
func (e *Engine) settleJackpot() {
	ws := e.ws
	winners := ws.winners[ledger.TierJackpot]

	if len(winners) == 0 {
		overflow := fpmath.ApplyBps(ws.contribution, e.params.OverflowRecycleBps)
		if err := e.acct.RecycleJackpot(overflow); err != nil {
			panic(fmt.Sprintf("FATAL: jackpot overflow recycle: %v", err))
		}
		ws.jackpotSettled = true
		e.log.Info().
			Int64("week", e.week).
			Int64("recycled", overflow).
			Int64("reserve", e.acct.Jackpot()).
			Msg("jackpot rolled over")
		return
	}

	reserve := e.acct.Jackpot()
	payout := fpmath.ApplyBps(reserve, e.params.JackpotPayoutBps)
	share, _ := fpmath.SplitEven(payout, len(winners))
	for _, id := range winners {
		if err := e.acct.CreditJackpotPrize(id, share); err != nil {
			panic(fmt.Sprintf("FATAL: jackpot credit: %v", err))
		}
	}
	// Everything not paid — the held-back fraction plus split dust — reseeds
	// the pot rather than lingering in the reserve.
	reseed := reserve - share*int64(len(winners))
	if err := e.acct.RecycleJackpot(reseed); err != nil {
		panic(fmt.Sprintf("FATAL: jackpot reseed: %v", err))
	}

	e.creditWinBonus()
	ws.jackpotSettled = true

	e.log.Info().
		Int64("week", e.week).
		Int("winners", len(winners)).
		Int64("share", share).
		Int64("reseeded", reseed).
		Msg("jackpot hit")
}

// creditWinBonus tops up the lower tiers from pot in a jackpot week, split
// by the tiers' bps weights. Capped at what pot actually has.
func (e *Engine) creditWinBonus() {
	ws := e.ws
	bonus := fpmath.ApplyBps(ws.weekPool, e.params.BonusBps)
	if bonus > e.acct.Pot() {
		bonus = e.acct.Pot()
	}
	if bonus <= 0 {
		return
	}
	parts, rem := fpmath.SplitByWeights(bonus, e.params.tierBpsWeights())
	for i, tier := range ledger.LowerTiers {
		amount := parts[i]
		if i == 0 {
			amount += rem // dust to the top tier
		}
		if amount == 0 {
			continue
		}
		if err := e.acct.AllocateTier(tier, amount); err != nil {
			panic(fmt.Sprintf("FATAL: bonus allocation: %v", err))
		}
		ws.remaining[tier] += amount
	}
}

// finalizeWeek advances the counter, discards the in-flight state, and takes
// the next week's price snapshot — from the logged command on replay, from
// the live feed otherwise.
func (e *Engine) finalizeWeek(now time.Time, recorded *resolver.PriceSnapshot) {
	e.week++
	e.machine = Idle
	e.ws = nil
	e.lastSettledAt = now
	e.weekOpenedAt = now
	if recorded != nil {
		e.snapshot = *recorded
	} else {
		e.snapshot = e.res.Snapshot(e.week, now)
	}

	e.log.Info().
		Int64("week", e.week).
		Int64("pot", e.acct.Pot()).
		Int64("jackpot", e.acct.Jackpot()).
		Msg("week finalized")
}
