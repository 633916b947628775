package query

// BucketBalancesResponse represents the ledger bucket totals for API
// queries, read from the newest audit row.
type BucketBalancesResponse struct {
	Pot       int64 `json:"pot"`
	Treasury  int64 `json:"treasury"`
	Jackpot   int64 `json:"jackpot"`
	Unclaimed int64 `json:"unclaimed"`
	Withdrawn int64 `json:"withdrawn"`

	PendingJackpot int64 `json:"pending_jackpot"`
	PendingMatch5  int64 `json:"pending_match5"`
	PendingMatch4  int64 `json:"pending_match4"`
	PendingMatch3  int64 `json:"pending_match3"`

	TotalIntake int64 `json:"total_intake"`

	// Metadata
	AsOfSequence int64 `json:"as_of_sequence"` // last persisted operation sequence
}
