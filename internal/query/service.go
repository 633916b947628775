package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// QueryService provides read-only access to the operation log and audit
// tables. Live engine state never leaves the core goroutine; everything
// here reads what the persistence worker has already committed, and every
// response carries as_of_sequence for freshness semantics.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetBucketBalances returns the bucket totals after the newest persisted
// operation.
func (qs *QueryService) GetBucketBalances(ctx context.Context) (*BucketBalancesResponse, error) {
	row := qs.db.QueryRowContext(ctx, `
		SELECT sequence, pot, treasury, jackpot, unclaimed, withdrawn,
		       pending_jackpot, pending_match5, pending_match4, pending_match3,
		       total_intake
		FROM op_log.bucket_audit
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var r BucketBalancesResponse
	err := row.Scan(
		&r.AsOfSequence, &r.Pot, &r.Treasury, &r.Jackpot, &r.Unclaimed, &r.Withdrawn,
		&r.PendingJackpot, &r.PendingMatch5, &r.PendingMatch4, &r.PendingMatch3,
		&r.TotalIntake,
	)
	if err == sql.ErrNoRows {
		return &BucketBalancesResponse{}, nil // Empty ledger
	}
	if err != nil {
		return nil, fmt.Errorf("bucket balances: %w", err)
	}
	return &r, nil
}

// GetOperation returns a single operation by sequence.
func (qs *QueryService) GetOperation(ctx context.Context, sequence int64) (*OperationResponse, error) {
	row := qs.db.QueryRowContext(ctx, `
		SELECT sequence, command_type, idempotency_key, payload,
		       state_hash, prev_hash, timestamp
		FROM op_log.operations
		WHERE sequence = $1
	`, sequence)

	var o OperationResponse
	err := row.Scan(
		&o.Sequence, &o.CommandType, &o.IdempotencyKey, &o.Payload,
		&o.StateHash, &o.PrevHash, &o.Timestamp,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOperations returns recent operations, optionally filtered by command
// type, with cursor-based pagination (descending by sequence).
func (qs *QueryService) ListOperations(
	ctx context.Context,
	commandType *string,
	limit int,
	afterSequence *int64,
) ([]OperationResponse, error) {
	query := `
		SELECT sequence, command_type, idempotency_key, payload,
		       state_hash, prev_hash, timestamp
		FROM op_log.operations
		WHERE TRUE
	`
	args := []interface{}{}
	argIdx := 1

	if commandType != nil {
		query += fmt.Sprintf(" AND command_type = $%d", argIdx)
		args = append(args, *commandType)
		argIdx++
	}

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []OperationResponse
	for rows.Next() {
		var o OperationResponse
		if err := rows.Scan(
			&o.Sequence, &o.CommandType, &o.IdempotencyKey, &o.Payload,
			&o.StateHash, &o.PrevHash, &o.Timestamp,
		); err != nil {
			return nil, err
		}
		ops = append(ops, o)
	}

	return ops, rows.Err()
}

// GetTicketOperations returns the operation history touching a ticket,
// newest first, with cursor-based pagination.
func (qs *QueryService) GetTicketOperations(
	ctx context.Context,
	ticketID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]OperationResponse, error) {
	query := `
		SELECT sequence, command_type, idempotency_key, payload,
		       state_hash, prev_hash, timestamp
		FROM op_log.operations
		WHERE payload->>'ticket_id' = $1
	`
	args := []interface{}{ticketID.String()}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []OperationResponse
	for rows.Next() {
		var o OperationResponse
		if err := rows.Scan(
			&o.Sequence, &o.CommandType, &o.IdempotencyKey, &o.Payload,
			&o.StateHash, &o.PrevHash, &o.Timestamp,
		); err != nil {
			return nil, err
		}
		ops = append(ops, o)
	}

	return ops, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks the hash chain and the conservation invariant
// against the persisted log.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	// Check hash chain continuity
	rows, err := qs.db.QueryContext(ctx, `
		SELECT o1.sequence
		FROM op_log.operations o1
		LEFT JOIN op_log.operations o2 ON o2.sequence = o1.sequence - 1
		WHERE o1.sequence > 0 AND o1.prev_hash != COALESCE(o2.state_hash, o1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Check conservation: every audit row must have its buckets sum exactly
	// to the recorded total intake.
	auditRows, err := qs.db.QueryContext(ctx, `
		SELECT sequence,
		       (pot + treasury + jackpot + unclaimed + withdrawn
		        + pending_jackpot + pending_match5 + pending_match4 + pending_match3)
		       - total_intake AS diff
		FROM op_log.bucket_audit
		WHERE (pot + treasury + jackpot + unclaimed + withdrawn
		       + pending_jackpot + pending_match5 + pending_match4 + pending_match3)
		      != total_intake
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer auditRows.Close()

	for auditRows.Next() {
		var b ConservationBreak
		if err := auditRows.Scan(&b.Sequence, &b.Difference); err != nil {
			return nil, err
		}
		report.ConservationBreaks = append(report.ConservationBreaks, b)
	}
	if err := auditRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.ConservationBreaks) == 0
	return report, nil
}
