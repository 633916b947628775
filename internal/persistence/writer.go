package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// OpLogWriter writes operations and audit rows to Postgres using batch
// inserts. Multi-row INSERT is the portable choice here; switch to pgx
// CopyFrom if write throughput ever becomes the bottleneck.
type OpLogWriter struct {
	db           *sql.DB
	batchSize    int
	flushTimeout time.Duration
}

// OperationRow represents a row in op_log.operations.
type OperationRow struct {
	Sequence       int64
	CommandType    string
	IdempotencyKey string
	Payload        []byte // JSON-encoded command payload
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
}

// AuditRow represents a row in op_log.bucket_audit: the full bucket totals
// after the operation at the same sequence was applied. Conservation can be
// re-checked offline from these rows alone.
type AuditRow struct {
	Sequence    int64
	Pot         int64
	Treasury    int64
	Jackpot     int64
	Unclaimed   int64
	Withdrawn   int64
	TierPending [4]int64
	TotalIntake int64
}

func NewOpLogWriter(db *sql.DB, batchSize int, flushTimeout time.Duration) *OpLogWriter {
	return &OpLogWriter{
		db:           db,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
	}
}

// WriteOperationBatch writes a batch of operations using multi-row INSERT.
func (w *OpLogWriter) WriteOperationBatch(ctx context.Context, tx *sql.Tx, ops []OperationRow) error {
	if len(ops) == 0 {
		return nil
	}

	query := `INSERT INTO op_log.operations
		(sequence, command_type, idempotency_key, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(ops))
	args := make([]interface{}, 0, len(ops)*7)

	for i, o := range ops {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			o.Sequence, o.CommandType, o.IdempotencyKey,
			o.Payload, o.StateHash, o.PrevHash, o.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING" // Idempotent writes

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteAuditBatch writes a batch of bucket audit rows to op_log.bucket_audit.
func (w *OpLogWriter) WriteAuditBatch(ctx context.Context, tx *sql.Tx, audits []AuditRow) error {
	if len(audits) == 0 {
		return nil
	}

	query := `INSERT INTO op_log.bucket_audit
		(sequence, pot, treasury, jackpot, unclaimed, withdrawn,
		 pending_jackpot, pending_match5, pending_match4, pending_match3, total_intake)
		VALUES `

	values := make([]string, 0, len(audits))
	args := make([]interface{}, 0, len(audits)*11)

	for i, a := range audits {
		base := i * 11
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
			base+7, base+8, base+9, base+10, base+11,
		))
		args = append(args,
			a.Sequence, a.Pot, a.Treasury, a.Jackpot, a.Unclaimed, a.Withdrawn,
			a.TierPending[0], a.TierPending[1], a.TierPending[2], a.TierPending[3],
			a.TotalIntake,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
