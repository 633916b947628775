package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/DYBL777/DYBL-Crypto42/internal/command"
	"github.com/DYBL777/DYBL-Crypto42/internal/engine"
	"github.com/DYBL777/DYBL-Crypto42/internal/ledger"
	"github.com/DYBL777/DYBL-Crypto42/internal/observability"
	"github.com/DYBL777/DYBL-Crypto42/internal/oracle"
)

// Core is the single-threaded command processor: one goroutine owns it,
// every command is a serialized atomic transition, and each applied command
// extends the state-hash chain and flows to the persistence worker.
type Core struct {
	sequence    int64
	hasher      *StateHasher
	eng         *engine.Engine
	idempotency *IdempotencyChecker
	metrics     *observability.Metrics
	log         zerolog.Logger

	persistChan chan<- Output
}

// Output is one applied command headed for the operation log, together
// with the post-state bucket totals for the audit trail and the week the
// operation landed in.
type Output struct {
	Envelope *command.Envelope
	Buckets  ledger.BucketSnapshot
	Week     int64
}

// Result carries the command-specific outcome back to the submitter.
type Result struct {
	Duplicate bool

	// Done is set by crank commands when their pass completed.
	Done bool

	// Amount is set by yield syncs, sweeps, and rescues.
	Amount int64
}

func New(
	startSequence int64,
	eng *engine.Engine,
	persistChan chan<- Output,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Core {
	return &Core{
		sequence:    startSequence,
		hasher:      NewStateHasher(),
		eng:         eng,
		idempotency: NewIdempotencyChecker(1_000_000, dbChecker),
		metrics:     metrics,
		log:         log,
		persistChan: persistChan,
	}
}

// Apply runs one command through the full pipeline: dedup, dispatch, state
// hash, envelope emission. Precondition rejections return the engine's error
// with nothing recorded; retryable failures leave the command unmarked so
// the same idempotency key can be resubmitted.
func (c *Core) Apply(cmd command.Command) (Result, error) {
	start := time.Now()
	cmdType := cmd.Type().String()
	idempotencyKey := cmd.IdempotencyKey()

	if c.idempotency.IsDuplicate(cmdType, idempotencyKey) {
		if c.metrics != nil {
			c.metrics.CoreCommandsRejected.WithLabelValues(cmdType, "duplicate").Inc()
		}
		return Result{Duplicate: true}, nil
	}

	res, err := c.dispatch(cmd)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreCommandsRejected.WithLabelValues(cmdType, rejectionReason(err)).Inc()
		}
		return Result{}, err
	}

	c.emit(cmd, cmdType, idempotencyKey)
	c.idempotency.MarkProcessed(cmdType, idempotencyKey)

	if c.metrics != nil {
		c.metrics.CoreCommandsApplied.WithLabelValues(cmdType).Inc()
		c.metrics.CoreCommandDuration.WithLabelValues(cmdType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
		c.metrics.CurrentWeek.Set(float64(c.eng.Week()))
		c.metrics.MachinePhase.Set(float64(c.eng.Machine()))
		snap := c.eng.Accounts().Snapshot()
		c.metrics.ObserveBuckets(snap.Pot, snap.Treasury, snap.Jackpot, snap.Unclaimed, snap.TotalIntake)
	}
	return res, nil
}

// Replay re-dispatches a logged command during warm restart: same state
// transitions and hash chain, but nothing is re-emitted to the log and the
// dedup tiers are bypassed (the log IS the dedup record during replay).
func (c *Core) Replay(cmd command.Command) error {
	cmdType := cmd.Type().String()
	if _, err := c.dispatch(cmd); err != nil {
		return fmt.Errorf("replay %s seq %d: %w", cmdType, c.sequence, err)
	}

	hashStart := time.Now()
	c.hasher.ComputeHash(c.sequence, c.eng.StateDigest())
	if c.metrics != nil {
		c.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
		c.metrics.ReplayOpsTotal.Inc()
	}
	c.sequence++
	c.idempotency.MarkProcessed(cmdType, cmd.IdempotencyKey())
	return nil
}

// emit hashes the post-state, wraps the command, and blocks until the
// persistence worker accepts it. Blocking is deliberate backpressure: the
// core must not outrun the durable log.
func (c *Core) emit(cmd command.Command, cmdType, idempotencyKey string) {
	hashStart := time.Now()
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, c.eng.StateDigest())
	if c.metrics != nil {
		c.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		panic(fmt.Sprintf("FATAL: cannot marshal %s: %v", cmdType, err))
	}

	envelope := &command.Envelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		Type:           cmd.Type(),
		Timestamp:      cmd.Timestamp(),
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}
	c.sequence++

	c.persistChan <- Output{
		Envelope: envelope,
		Buckets:  c.eng.Accounts().Snapshot(),
		Week:     c.eng.Week(),
	}
}

func (c *Core) dispatch(cmd command.Command) (Result, error) {
	eng := c.eng
	now := cmd.Timestamp()

	switch t := cmd.(type) {
	case *command.EnrollTicket:
		return Result{}, eng.Enroll(now, t.TicketID, t.Picks, t.Weeks, t.Payment)
	case *command.ExtendTicket:
		return Result{}, eng.Extend(now, t.TicketID, t.Weeks, t.Payment)
	case *command.ChangePicks:
		return Result{}, eng.ChangePicks(now, t.TicketID, t.Picks)
	case *command.ClaimPrize:
		return Result{}, eng.ClaimPrize(now, t.TicketID, t.Amount)
	case *command.ClaimClosureShare:
		return Result{}, eng.ClaimClosureShare(now, t.TicketID)

	// The feed-dependent cranks pass the recorded derived data through and
	// write it back into the command on a live dispatch, before emit marshals
	// the payload. Replayed commands arrive with the fields populated and the
	// engine never touches the feed.
	case *command.ResolveWeek:
		if err := eng.ResolveWeek(now, t.Outcome); err != nil {
			return Result{}, err
		}
		if t.Outcome == nil {
			if out, ok := eng.Outcome(); ok {
				t.Outcome = &out
			}
		}
		return Result{}, nil
	case *command.AdvanceMatching:
		done, err := eng.AdvanceMatching(now)
		return Result{Done: done}, err
	case *command.AdvanceDistribution:
		done, err := eng.AdvanceDistribution(now, t.NextSnapshot)
		if done && err == nil {
			if t.NextSnapshot == nil {
				snap := eng.WeekSnapshot()
				t.NextSnapshot = &snap
			}
			if c.metrics != nil {
				c.metrics.WeeksSettled.Inc()
			}
		}
		return Result{Done: done}, err
	case *command.ForceCompleteDistribution:
		if err := eng.ForceCompleteDistribution(now, t.NextSnapshot); err != nil {
			return Result{}, err
		}
		if t.NextSnapshot == nil {
			snap := eng.WeekSnapshot()
			t.NextSnapshot = &snap
		}
		if c.metrics != nil {
			c.metrics.WeeksSettled.Inc()
		}
		return Result{Done: true}, nil
	case *command.SweepExpired:
		next, removed, err := eng.SweepExpired(now, t.Cursor)
		return Result{Done: next == 0, Amount: int64(removed)}, err
	case *command.SyncYield:
		delta, err := eng.SyncYield(now)
		return Result{Amount: delta}, err
	case *command.EmergencyUnwind:
		weekBefore := eng.Week()
		if err := eng.EmergencyUnwind(now, t.NextSnapshot); err != nil {
			return Result{}, err
		}
		// Only a finalized week takes a fresh snapshot; a drain unwind does
		// not advance the week and has nothing to record.
		if t.NextSnapshot == nil && eng.Week() != weekBefore {
			snap := eng.WeekSnapshot()
			t.NextSnapshot = &snap
		}
		if c.metrics != nil {
			c.metrics.EmergencyUnwinds.Inc()
		}
		return Result{}, nil
	case *command.TriggerDormancy:
		return Result{}, eng.TriggerDormancy(now)
	case *command.AdvanceDrain:
		done, err := eng.AdvanceDrain(now)
		return Result{Done: done}, err
	case *command.RescueAbandoned:
		swept, err := eng.RescueAbandoned(now)
		return Result{Amount: swept}, err
	case *command.TriggerClosure:
		return Result{}, eng.TriggerClosure(now)

	case *command.WithdrawTreasury:
		return Result{}, eng.WithdrawTreasury(now, t.Amount)
	case *command.RenounceTreasury:
		return Result{}, eng.RenounceTreasury(now)
	case *command.ProposeOracleConfig:
		return Result{}, eng.ProposeOracleConfig(now, t.CommandID, t.Asset, oracle.AssetConfig{
			Endpoint: t.Endpoint,
			MaxAge:   t.MaxAge,
		})
	case *command.CancelOracleProposal:
		return Result{}, eng.CancelOracleProposal(now, t.ProposalID)
	case *command.ExecuteOracleProposal:
		return Result{}, eng.ExecuteOracleProposal(now, t.ProposalID)

	default:
		return Result{}, fmt.Errorf("unknown command type: %T", cmd)
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, engine.ErrRetryable):
		return "retryable"
	case errors.Is(err, engine.ErrWrongPhase):
		return "wrong_phase"
	case errors.Is(err, engine.ErrTooEarly):
		return "too_early"
	case errors.Is(err, engine.ErrAlreadyDone):
		return "already_done"
	case errors.Is(err, engine.ErrClosed):
		return "closed"
	default:
		return "validation"
	}
}

// --- snapshot restore & startup ---

// RestoreCheckpoint resets the sequence counter and hash-chain tip from a
// persisted snapshot before log replay.
func (c *Core) RestoreCheckpoint(sequence int64, stateHash [32]byte) {
	c.sequence = sequence
	c.hasher.SetPrevHash(stateHash)
}

// WarmLRU loads recent idempotency keys into the LRU cache.
func (c *Core) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// Sequence returns the next sequence number to assign.
func (c *Core) Sequence() int64 {
	return c.sequence
}

// StateHash returns the current hash-chain tip.
func (c *Core) StateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// Engine exposes the aggregate for read-side services. Queries must go
// through the core's goroutine; the engine itself is not thread-safe.
func (c *Core) Engine() *engine.Engine {
	return c.eng
}
