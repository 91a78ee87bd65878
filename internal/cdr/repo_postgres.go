package cdr

import (
	"context"
	"database/sql"

	"callmgr/pkg/utils"

	"github.com/google/uuid"
)

// PostgresRepo persists call detail records via database/sql (pgx stdlib
// driver). Inserts run inside a transaction so a partial write never lands.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO call_detail_records
				(id, call_id, node, direction, caller_id_number, destination,
				 hangup_cause, bill_seconds, raw, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (call_id) DO NOTHING`,
			rec.ID,
			rec.CallID,
			rec.Node,
			rec.Direction,
			rec.CallerIDNumber,
			rec.Destination,
			rec.HangupCause,
			rec.BillSeconds,
			rec.Raw,
			rec.CreatedAt,
		)
		return err
	})
}
