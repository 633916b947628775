package command

import (
	"time"

	"github.com/google/uuid"

	"github.com/DYBL777/DYBL-Crypto42/internal/resolver"
)

// The crank commands are permissionless: anyone may submit them, and the
// engine's own phase and time preconditions decide whether they apply.
//
// Commands whose effect depends on the oracle feed carry the derived data
// back in the logged payload: the core fills Outcome / NextSnapshot after a
// successful live dispatch, and replay consumes the recorded values instead
// of the feed. Submissions must leave these fields empty; the parser rejects
// anything else.

// ResolveWeek closes the elapsed week against the oracle.
type ResolveWeek struct {
	CommandID uuid.UUID         `json:"command_id"`
	IssuedAt  time.Time         `json:"issued_at"`
	Outcome   *resolver.Outcome `json:"outcome,omitempty"`
}

func (c *ResolveWeek) IdempotencyKey() string { return c.CommandID.String() }
func (c *ResolveWeek) Type() Type             { return TypeResolveWeek }
func (c *ResolveWeek) Timestamp() time.Time   { return c.IssuedAt }

// AdvanceMatching runs one matching batch of the in-flight settlement.
type AdvanceMatching struct {
	CommandID uuid.UUID `json:"command_id"`
	IssuedAt  time.Time `json:"issued_at"`
}

func (c *AdvanceMatching) IdempotencyKey() string { return c.CommandID.String() }
func (c *AdvanceMatching) Type() Type             { return TypeAdvanceMatching }
func (c *AdvanceMatching) Timestamp() time.Time   { return c.IssuedAt }

// AdvanceDistribution runs one payout batch of the in-flight settlement.
type AdvanceDistribution struct {
	CommandID    uuid.UUID               `json:"command_id"`
	IssuedAt     time.Time               `json:"issued_at"`
	NextSnapshot *resolver.PriceSnapshot `json:"next_snapshot,omitempty"`
}

func (c *AdvanceDistribution) IdempotencyKey() string { return c.CommandID.String() }
func (c *AdvanceDistribution) Type() Type             { return TypeAdvanceDistribution }
func (c *AdvanceDistribution) Timestamp() time.Time   { return c.IssuedAt }

// ForceCompleteDistribution runs every remaining payout batch of the
// in-flight settlement in one operation.
type ForceCompleteDistribution struct {
	CommandID    uuid.UUID               `json:"command_id"`
	IssuedAt     time.Time               `json:"issued_at"`
	NextSnapshot *resolver.PriceSnapshot `json:"next_snapshot,omitempty"`
}

func (c *ForceCompleteDistribution) IdempotencyKey() string { return c.CommandID.String() }
func (c *ForceCompleteDistribution) Type() Type             { return TypeForceCompleteDistribution }
func (c *ForceCompleteDistribution) Timestamp() time.Time   { return c.IssuedAt }

// SweepExpired removes a batch of expired tickets outside settlement.
type SweepExpired struct {
	CommandID uuid.UUID `json:"command_id"`
	Cursor    int       `json:"cursor"`
	IssuedAt  time.Time `json:"issued_at"`
}

func (c *SweepExpired) IdempotencyKey() string { return c.CommandID.String() }
func (c *SweepExpired) Type() Type             { return TypeSweepExpired }
func (c *SweepExpired) Timestamp() time.Time   { return c.IssuedAt }

// SyncYield reconciles the ledger with externally-held value.
type SyncYield struct {
	CommandID uuid.UUID `json:"command_id"`
	IssuedAt  time.Time `json:"issued_at"`
}

func (c *SyncYield) IdempotencyKey() string { return c.CommandID.String() }
func (c *SyncYield) Type() Type             { return TypeSyncYield }
func (c *SyncYield) Timestamp() time.Time   { return c.IssuedAt }

// EmergencyUnwind aborts a settlement stuck past the timeout.
type EmergencyUnwind struct {
	CommandID    uuid.UUID               `json:"command_id"`
	IssuedAt     time.Time               `json:"issued_at"`
	NextSnapshot *resolver.PriceSnapshot `json:"next_snapshot,omitempty"`
}

func (c *EmergencyUnwind) IdempotencyKey() string { return c.CommandID.String() }
func (c *EmergencyUnwind) Type() Type             { return TypeEmergencyUnwind }
func (c *EmergencyUnwind) Timestamp() time.Time   { return c.IssuedAt }

// TriggerDormancy arms the dormancy drain.
type TriggerDormancy struct {
	CommandID uuid.UUID `json:"command_id"`
	IssuedAt  time.Time `json:"issued_at"`
}

func (c *TriggerDormancy) IdempotencyKey() string { return c.CommandID.String() }
func (c *TriggerDormancy) Type() Type             { return TypeTriggerDormancy }
func (c *TriggerDormancy) Timestamp() time.Time   { return c.IssuedAt }

// AdvanceDrain credits one dormancy drain batch.
type AdvanceDrain struct {
	CommandID uuid.UUID `json:"command_id"`
	IssuedAt  time.Time `json:"issued_at"`
}

func (c *AdvanceDrain) IdempotencyKey() string { return c.CommandID.String() }
func (c *AdvanceDrain) Type() Type             { return TypeAdvanceDrain }
func (c *AdvanceDrain) Timestamp() time.Time   { return c.IssuedAt }

// RescueAbandoned sweeps residual value once the game is abandoned.
type RescueAbandoned struct {
	CommandID uuid.UUID `json:"command_id"`
	IssuedAt  time.Time `json:"issued_at"`
}

func (c *RescueAbandoned) IdempotencyKey() string { return c.CommandID.String() }
func (c *RescueAbandoned) Type() Type             { return TypeRescueAbandoned }
func (c *RescueAbandoned) Timestamp() time.Time   { return c.IssuedAt }

// TriggerClosure runs the terminal split once the schedule ends.
type TriggerClosure struct {
	CommandID uuid.UUID `json:"command_id"`
	IssuedAt  time.Time `json:"issued_at"`
}

func (c *TriggerClosure) IdempotencyKey() string { return c.CommandID.String() }
func (c *TriggerClosure) Type() Type             { return TypeTriggerClosure }
func (c *TriggerClosure) Timestamp() time.Time   { return c.IssuedAt }
