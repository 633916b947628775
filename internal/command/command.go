package command

import (
	"time"
)

// Type discriminator for command payloads.
type Type int32

const (
	TypeUnknown Type = iota
	TypeEnrollTicket
	TypeExtendTicket
	TypeChangePicks
	TypeClaimPrize
	TypeClaimClosureShare
	TypeResolveWeek
	TypeAdvanceMatching
	TypeAdvanceDistribution
	TypeSweepExpired
	TypeSyncYield
	TypeEmergencyUnwind
	TypeTriggerDormancy
	TypeAdvanceDrain
	TypeRescueAbandoned
	TypeTriggerClosure
	TypeWithdrawTreasury
	TypeRenounceTreasury
	TypeProposeOracleConfig
	TypeCancelOracleProposal
	TypeExecuteOracleProposal
	TypeForceCompleteDistribution
)

// Envelope wraps every applied command in the operation log.
type Envelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Command type discriminator
	Type Type

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// JSON-encoded command payload
	Payload []byte

	// SHA-256 of state AFTER applying this command
	StateHash [32]byte

	// Previous command's state hash (chain integrity)
	PrevHash [32]byte
}

// Command is the interface all command payloads implement.
type Command interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// Type returns the discriminator
	Type() Type

	// Timestamp returns the versioned operation time the core settles at
	Timestamp() time.Time
}

func (t Type) String() string {
	switch t {
	case TypeEnrollTicket:
		return "EnrollTicket"
	case TypeExtendTicket:
		return "ExtendTicket"
	case TypeChangePicks:
		return "ChangePicks"
	case TypeClaimPrize:
		return "ClaimPrize"
	case TypeClaimClosureShare:
		return "ClaimClosureShare"
	case TypeResolveWeek:
		return "ResolveWeek"
	case TypeAdvanceMatching:
		return "AdvanceMatching"
	case TypeAdvanceDistribution:
		return "AdvanceDistribution"
	case TypeSweepExpired:
		return "SweepExpired"
	case TypeSyncYield:
		return "SyncYield"
	case TypeEmergencyUnwind:
		return "EmergencyUnwind"
	case TypeTriggerDormancy:
		return "TriggerDormancy"
	case TypeAdvanceDrain:
		return "AdvanceDrain"
	case TypeRescueAbandoned:
		return "RescueAbandoned"
	case TypeTriggerClosure:
		return "TriggerClosure"
	case TypeWithdrawTreasury:
		return "WithdrawTreasury"
	case TypeRenounceTreasury:
		return "RenounceTreasury"
	case TypeProposeOracleConfig:
		return "ProposeOracleConfig"
	case TypeCancelOracleProposal:
		return "CancelOracleProposal"
	case TypeExecuteOracleProposal:
		return "ExecuteOracleProposal"
	case TypeForceCompleteDistribution:
		return "ForceCompleteDistribution"
	default:
		return "Unknown"
	}
}
