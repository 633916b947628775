package command

import (
	"time"

	"github.com/google/uuid"
)

// EnrollTicket locks a new ticket in for the coming week.
type EnrollTicket struct {
	CommandID uuid.UUID   `json:"command_id"`
	TicketID  uuid.UUID   `json:"ticket_id"`
	Picks     [][]uint8   `json:"picks"`
	Weeks     int64       `json:"weeks"`
	Payment   int64       `json:"payment"` // fixed-point settlement units
	IssuedAt  time.Time   `json:"issued_at"`
}

func (c *EnrollTicket) IdempotencyKey() string { return c.CommandID.String() }
func (c *EnrollTicket) Type() Type             { return TypeEnrollTicket }
func (c *EnrollTicket) Timestamp() time.Time   { return c.IssuedAt }

// ExtendTicket lengthens an existing ticket's coverage.
type ExtendTicket struct {
	CommandID uuid.UUID `json:"command_id"`
	TicketID  uuid.UUID `json:"ticket_id"`
	Weeks     int64     `json:"weeks"`
	Payment   int64     `json:"payment"`
	IssuedAt  time.Time `json:"issued_at"`
}

func (c *ExtendTicket) IdempotencyKey() string { return c.CommandID.String() }
func (c *ExtendTicket) Type() Type             { return TypeExtendTicket }
func (c *ExtendTicket) Timestamp() time.Time   { return c.IssuedAt }

// ChangePicks replaces a ticket's selections outside the lock window.
type ChangePicks struct {
	CommandID uuid.UUID `json:"command_id"`
	TicketID  uuid.UUID `json:"ticket_id"`
	Picks     [][]uint8 `json:"picks"`
	IssuedAt  time.Time `json:"issued_at"`
}

func (c *ChangePicks) IdempotencyKey() string { return c.CommandID.String() }
func (c *ChangePicks) Type() Type             { return TypeChangePicks }
func (c *ChangePicks) Timestamp() time.Time   { return c.IssuedAt }

// ClaimPrize withdraws unclaimed credit through custody.
type ClaimPrize struct {
	CommandID uuid.UUID `json:"command_id"`
	TicketID  uuid.UUID `json:"ticket_id"`
	Amount    int64     `json:"amount"`
	IssuedAt  time.Time `json:"issued_at"`
}

func (c *ClaimPrize) IdempotencyKey() string { return c.CommandID.String() }
func (c *ClaimPrize) Type() Type             { return TypeClaimPrize }
func (c *ClaimPrize) Timestamp() time.Time   { return c.IssuedAt }

// ClaimClosureShare collects a founder's terminal pot share.
type ClaimClosureShare struct {
	CommandID uuid.UUID `json:"command_id"`
	TicketID  uuid.UUID `json:"ticket_id"`
	IssuedAt  time.Time `json:"issued_at"`
}

func (c *ClaimClosureShare) IdempotencyKey() string { return c.CommandID.String() }
func (c *ClaimClosureShare) Type() Type             { return TypeClaimClosureShare }
func (c *ClaimClosureShare) Timestamp() time.Time   { return c.IssuedAt }
