package query

import (
	"encoding/json"
	"time"
)

// OperationResponse represents one applied operation for API queries.
type OperationResponse struct {
	Sequence       int64           `json:"sequence"`
	CommandType    string          `json:"command_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
	StateHash      []byte          `json:"state_hash"`
	PrevHash       []byte          `json:"prev_hash"`
	Timestamp      time.Time       `json:"timestamp"`
}

// StatusResponse is the live ledger status, read from the core between
// commands. Everything here comes from in-memory state, not Postgres.
type StatusResponse struct {
	Week          int64     `json:"week"`
	Machine       string    `json:"machine"`
	EconomicPhase string    `json:"economic_phase"`
	WeekOpenedAt  time.Time `json:"week_opened_at"`
	LastSettledAt time.Time `json:"last_settled_at"`
	ActiveTickets int       `json:"active_tickets"`
	Founders      int       `json:"founders"`
	Sequence      int64     `json:"sequence"`

	Pot         int64 `json:"pot"`
	Treasury    int64 `json:"treasury"`
	Jackpot     int64 `json:"jackpot"`
	Unclaimed   int64 `json:"unclaimed"`
	TotalIntake int64 `json:"total_intake"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy          bool                `json:"is_healthy"`
	HashChainBreaks    []int64             `json:"hash_chain_breaks,omitempty"`
	ConservationBreaks []ConservationBreak `json:"conservation_breaks,omitempty"`
}

// ConservationBreak is an audit row whose buckets do not sum to the
// recorded total intake.
type ConservationBreak struct {
	Sequence   int64 `json:"sequence"`
	Difference int64 `json:"difference"`
}
