package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DYBL777/DYBL-Crypto42/internal/codec"
	"github.com/DYBL777/DYBL-Crypto42/internal/oracle"
)

// OracleProposal is a pending oracle reconfiguration for one asset. It can
// be executed by anyone once the delay elapses, and cancelled by the
// operator before that.
type OracleProposal struct {
	ID         uuid.UUID
	Asset      uint8
	Config     oracle.AssetConfig
	ProposedAt time.Time
	ETA        time.Time
}

// ProposeOracleConfig queues an oracle change behind the timelock. The
// caller supplies the proposal ID so replaying the operation log reproduces
// the same proposal identities.
func (e *Engine) ProposeOracleConfig(now time.Time, id uuid.UUID, asset uint8, cfg oracle.AssetConfig) error {
	if asset >= codec.UniverseSize {
		return fmt.Errorf("%w: asset %d outside the universe", ErrBadProposal, asset)
	}
	if cfg.MaxAge <= 0 {
		return fmt.Errorf("engine: proposal max age must be positive")
	}
	if id == uuid.Nil {
		return ErrBadProposal
	}
	if _, ok := e.proposals[id]; ok {
		return ErrBadProposal
	}
	e.proposals[id] = &OracleProposal{
		ID:         id,
		Asset:      asset,
		Config:     cfg,
		ProposedAt: now,
		ETA:        now.Add(e.params.TimelockDelay),
	}
	e.log.Info().
		Str("proposal", id.String()).
		Uint8("asset", asset).
		Time("eta", e.proposals[id].ETA).
		Msg("oracle config proposed")
	return nil
}

// CancelOracleProposal withdraws a pending proposal.
func (e *Engine) CancelOracleProposal(now time.Time, id uuid.UUID) error {
	if _, ok := e.proposals[id]; !ok {
		return ErrBadProposal
	}
	delete(e.proposals, id)
	return nil
}

// ExecuteOracleProposal applies a matured proposal to the live oracle
// bounds. Rejected mid-settlement so an in-flight week resolves under the
// configuration it started with.
func (e *Engine) ExecuteOracleProposal(now time.Time, id uuid.UUID) error {
	if err := e.requireIdle(); err != nil {
		return err
	}
	p, ok := e.proposals[id]
	if !ok {
		return ErrBadProposal
	}
	if now.Before(p.ETA) {
		return fmt.Errorf("%w: proposal matures at %s", ErrTooEarly, p.ETA.Format(time.RFC3339))
	}

	e.res.Bounds().Set(p.Asset, p.Config)
	delete(e.proposals, id)

	e.log.Info().
		Str("proposal", id.String()).
		Uint8("asset", p.Asset).
		Msg("oracle config applied")
	return nil
}

// PendingProposals returns the queued proposals (copy).
func (e *Engine) PendingProposals() []OracleProposal {
	out := make([]OracleProposal, 0, len(e.proposals))
	for _, p := range e.proposals {
		out = append(out, *p)
	}
	return out
}
