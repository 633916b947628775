package ingestion

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/DYBL777/DYBL-Crypto42/internal/command"
)

// ParseRawCommand converts a RawCommand (JSON bytes + command type string)
// into a typed command.Command. The submission shell validates and converts
// raw messages before anything reaches the settlement core; a message that
// fails here is terminally rejected, never retried.
func ParseRawCommand(raw RawCommand, commandType string) (command.Command, error) {
	t, ok := command.TypeFromString(commandType)
	if !ok {
		return nil, fmt.Errorf("unknown command type: %s", commandType)
	}

	cmd, err := command.Decode(t, raw.Data)
	if err != nil {
		return nil, err
	}

	if err := validate(cmd); err != nil {
		return nil, fmt.Errorf("validate %s: %w", commandType, err)
	}
	return cmd, nil
}

// validate enforces the shape rules a well-formed submission must satisfy.
// Economic preconditions (pricing, phase, lock windows) stay with the engine;
// only structurally broken messages are rejected here.
func validate(cmd command.Command) error {
	if cmd.IdempotencyKey() == uuid.Nil.String() {
		return fmt.Errorf("missing command_id")
	}
	if cmd.Timestamp().IsZero() {
		return fmt.Errorf("missing issued_at")
	}

	switch c := cmd.(type) {
	case *command.EnrollTicket:
		if c.TicketID == uuid.Nil {
			return fmt.Errorf("missing ticket_id")
		}
		if err := validatePicks(c.Picks); err != nil {
			return err
		}
		if c.Weeks <= 0 {
			return fmt.Errorf("weeks must be positive, got %d", c.Weeks)
		}
		if c.Payment <= 0 {
			return fmt.Errorf("payment must be positive, got %d", c.Payment)
		}

	case *command.ExtendTicket:
		if c.TicketID == uuid.Nil {
			return fmt.Errorf("missing ticket_id")
		}
		if c.Weeks <= 0 {
			return fmt.Errorf("weeks must be positive, got %d", c.Weeks)
		}
		if c.Payment <= 0 {
			return fmt.Errorf("payment must be positive, got %d", c.Payment)
		}

	case *command.ChangePicks:
		if c.TicketID == uuid.Nil {
			return fmt.Errorf("missing ticket_id")
		}
		if err := validatePicks(c.Picks); err != nil {
			return err
		}

	case *command.ClaimPrize:
		if c.TicketID == uuid.Nil {
			return fmt.Errorf("missing ticket_id")
		}
		if c.Amount <= 0 {
			return fmt.Errorf("amount must be positive, got %d", c.Amount)
		}

	case *command.ClaimClosureShare:
		if c.TicketID == uuid.Nil {
			return fmt.Errorf("missing ticket_id")
		}

	case *command.SweepExpired:
		if c.Cursor < 0 {
			return fmt.Errorf("cursor must be non-negative, got %d", c.Cursor)
		}

	// The derived fields on the feed-dependent cranks are filled by the core
	// after dispatch; a submission carrying them is trying to dictate the
	// oracle result and is rejected outright.
	case *command.ResolveWeek:
		if c.Outcome != nil {
			return fmt.Errorf("outcome is derived by the core, not submitted")
		}

	case *command.AdvanceDistribution:
		if c.NextSnapshot != nil {
			return fmt.Errorf("next_snapshot is derived by the core, not submitted")
		}

	case *command.ForceCompleteDistribution:
		if c.NextSnapshot != nil {
			return fmt.Errorf("next_snapshot is derived by the core, not submitted")
		}

	case *command.EmergencyUnwind:
		if c.NextSnapshot != nil {
			return fmt.Errorf("next_snapshot is derived by the core, not submitted")
		}

	case *command.WithdrawTreasury:
		if c.Amount <= 0 {
			return fmt.Errorf("amount must be positive, got %d", c.Amount)
		}

	case *command.ProposeOracleConfig:
		if c.Endpoint == "" {
			return fmt.Errorf("missing endpoint")
		}
		if c.MaxAge <= 0 {
			return fmt.Errorf("max_age must be positive, got %d", c.MaxAge)
		}

	case *command.CancelOracleProposal:
		if c.ProposalID == uuid.Nil {
			return fmt.Errorf("missing proposal_id")
		}

	case *command.ExecuteOracleProposal:
		if c.ProposalID == uuid.Nil {
			return fmt.Errorf("missing proposal_id")
		}
	}

	return nil
}

func validatePicks(picks [][]uint8) error {
	if len(picks) < 1 || len(picks) > 2 {
		return fmt.Errorf("picks must hold 1 or 2 lines, got %d", len(picks))
	}
	for i, line := range picks {
		if len(line) != 6 {
			return fmt.Errorf("pick line %d must hold 6 assets, got %d", i, len(line))
		}
	}
	return nil
}
