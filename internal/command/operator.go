package command

import (
	"time"

	"github.com/google/uuid"
)

// Operator commands are authenticated at the transport layer; the core
// treats them like any other serialized input.

// WithdrawTreasury draws operator revenue during wind-down.
type WithdrawTreasury struct {
	CommandID uuid.UUID `json:"command_id"`
	Amount    int64     `json:"amount"`
	IssuedAt  time.Time `json:"issued_at"`
}

func (c *WithdrawTreasury) IdempotencyKey() string { return c.CommandID.String() }
func (c *WithdrawTreasury) Type() Type             { return TypeWithdrawTreasury }
func (c *WithdrawTreasury) Timestamp() time.Time   { return c.IssuedAt }

// RenounceTreasury irreversibly zeroes all future treasury take.
type RenounceTreasury struct {
	CommandID uuid.UUID `json:"command_id"`
	IssuedAt  time.Time `json:"issued_at"`
}

func (c *RenounceTreasury) IdempotencyKey() string { return c.CommandID.String() }
func (c *RenounceTreasury) Type() Type             { return TypeRenounceTreasury }
func (c *RenounceTreasury) Timestamp() time.Time   { return c.IssuedAt }

// ProposeOracleConfig queues an oracle change behind the timelock.
type ProposeOracleConfig struct {
	CommandID uuid.UUID     `json:"command_id"`
	Asset     uint8         `json:"asset"`
	Endpoint  string        `json:"endpoint"`
	MaxAge    time.Duration `json:"max_age"`
	IssuedAt  time.Time     `json:"issued_at"`
}

func (c *ProposeOracleConfig) IdempotencyKey() string { return c.CommandID.String() }
func (c *ProposeOracleConfig) Type() Type             { return TypeProposeOracleConfig }
func (c *ProposeOracleConfig) Timestamp() time.Time   { return c.IssuedAt }

// CancelOracleProposal withdraws a pending proposal before it matures.
type CancelOracleProposal struct {
	CommandID  uuid.UUID `json:"command_id"`
	ProposalID uuid.UUID `json:"proposal_id"`
	IssuedAt   time.Time `json:"issued_at"`
}

func (c *CancelOracleProposal) IdempotencyKey() string { return c.CommandID.String() }
func (c *CancelOracleProposal) Type() Type             { return TypeCancelOracleProposal }
func (c *CancelOracleProposal) Timestamp() time.Time   { return c.IssuedAt }

// ExecuteOracleProposal applies a matured proposal.
type ExecuteOracleProposal struct {
	CommandID  uuid.UUID `json:"command_id"`
	ProposalID uuid.UUID `json:"proposal_id"`
	IssuedAt   time.Time `json:"issued_at"`
}

func (c *ExecuteOracleProposal) IdempotencyKey() string { return c.CommandID.String() }
func (c *ExecuteOracleProposal) Type() Type             { return TypeExecuteOracleProposal }
func (c *ExecuteOracleProposal) Timestamp() time.Time   { return c.IssuedAt }
