package command

import (
	"encoding/json"
	"fmt"
)

// Decode unmarshals a JSON payload into its typed command. Used by the
// ingestion parser and by operation-log replay.
func Decode(t Type, payload []byte) (Command, error) {
	var cmd Command
	switch t {
	case TypeEnrollTicket:
		cmd = &EnrollTicket{}
	case TypeExtendTicket:
		cmd = &ExtendTicket{}
	case TypeChangePicks:
		cmd = &ChangePicks{}
	case TypeClaimPrize:
		cmd = &ClaimPrize{}
	case TypeClaimClosureShare:
		cmd = &ClaimClosureShare{}
	case TypeResolveWeek:
		cmd = &ResolveWeek{}
	case TypeAdvanceMatching:
		cmd = &AdvanceMatching{}
	case TypeAdvanceDistribution:
		cmd = &AdvanceDistribution{}
	case TypeSweepExpired:
		cmd = &SweepExpired{}
	case TypeSyncYield:
		cmd = &SyncYield{}
	case TypeEmergencyUnwind:
		cmd = &EmergencyUnwind{}
	case TypeTriggerDormancy:
		cmd = &TriggerDormancy{}
	case TypeAdvanceDrain:
		cmd = &AdvanceDrain{}
	case TypeRescueAbandoned:
		cmd = &RescueAbandoned{}
	case TypeTriggerClosure:
		cmd = &TriggerClosure{}
	case TypeWithdrawTreasury:
		cmd = &WithdrawTreasury{}
	case TypeRenounceTreasury:
		cmd = &RenounceTreasury{}
	case TypeProposeOracleConfig:
		cmd = &ProposeOracleConfig{}
	case TypeCancelOracleProposal:
		cmd = &CancelOracleProposal{}
	case TypeExecuteOracleProposal:
		cmd = &ExecuteOracleProposal{}
	case TypeForceCompleteDistribution:
		cmd = &ForceCompleteDistribution{}
	default:
		return nil, fmt.Errorf("command: unknown type %d", t)
	}

	if err := json.Unmarshal(payload, cmd); err != nil {
		return nil, fmt.Errorf("command: decode %s: %w", t, err)
	}
	return cmd, nil
}

// TypeFromString maps a wire name back to its discriminator.
func TypeFromString(s string) (Type, bool) {
	for t := TypeEnrollTicket; t <= TypeForceCompleteDistribution; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return TypeUnknown, false
}
