package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/salonpos/libs/db"
	"github.com/md-rashed-zaman/salonpos/services/ledger-service/internal/projection"
)

type LedgerRepository struct {
	pool *db.Pool
}

func NewLedgerRepository(pool *db.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// PostCompletion writes the posting in one transaction. The unique keys on
// (booking_id, entry_type) and commission_records.booking_id make replays no-ops.
func (r *LedgerRepository) PostCompletion(ctx context.Context, p projection.Posting) (projection.PostResult, error) {
	var res projection.PostResult
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		entries := []projection.LedgerEntry{p.Revenue}
		if p.Commission != nil {
			entries = append(entries, *p.Commission)
		}
		for _, e := range entries {
			tag, err := tx.Exec(ctx, `
				INSERT INTO ledger_entries
					(id, booking_id, resource_id, account_id, entry_type, amount, status, entry_date, created_at)
				VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8::date, $9)
				ON CONFLICT (booking_id, entry_type) DO NOTHING
			`, e.ID, e.BookingID, e.ResourceID, e.AccountID, string(e.Type), e.Amount, e.Status, e.EntryDate, e.CreatedAt)
			if err != nil {
				return err
			}
			res.Entries += int(tag.RowsAffected())
		}
		if p.Record == nil {
			return nil
		}
		rec := p.Record
		tag, err := tx.Exec(ctx, `
			INSERT INTO commission_records (id, booking_id, resource_id, rate, amount, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (booking_id) DO NOTHING
		`, rec.ID, rec.BookingID, rec.ResourceID, rec.Rate, rec.Amount, rec.Status, rec.CreatedAt)
		if err != nil {
			return err
		}
		res.Records = int(tag.RowsAffected())
		return nil
	})
	return res, err
}

func (r *LedgerRepository) VoidBookingEntries(ctx context.Context, bookingID, reason string) (int, error) {
	var voided int
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE ledger_entries
			SET status = 'canceled', void_reason = $2, voided_at = now()
			WHERE booking_id = $1 AND status <> 'canceled'
		`, bookingID, reason)
		if err != nil {
			return err
		}
		voided = int(tag.RowsAffected())

		// A voided booking leaves no payable commission behind.
		_, err = tx.Exec(ctx, `
			UPDATE commission_records
			SET status = 'canceled'
			WHERE booking_id = $1 AND status = 'pending'
		`, bookingID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return voided, nil
}

func (r *LedgerRepository) ListEntries(ctx context.Context, bookingID string) ([]projection.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, booking_id, resource_id, COALESCE(account_id, ''), entry_type, amount, status,
			entry_date::text, created_at
		FROM ledger_entries
		WHERE booking_id = $1
		ORDER BY entry_type
	`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []projection.LedgerEntry
	for rows.Next() {
		var e projection.LedgerEntry
		var entryType string
		if err := rows.Scan(&e.ID, &e.BookingID, &e.ResourceID, &e.AccountID, &entryType, &e.Amount, &e.Status, &e.EntryDate, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = projection.EntryType(entryType)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *LedgerRepository) GetCommission(ctx context.Context, bookingID string) (projection.CommissionRecord, bool, error) {
	var rec projection.CommissionRecord
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, booking_id, resource_id, rate, amount, status, created_at
		FROM commission_records
		WHERE booking_id = $1
	`, bookingID).Scan(&rec.ID, &rec.BookingID, &rec.ResourceID, &rec.Rate, &rec.Amount, &rec.Status, &rec.CreatedAt)
	if db.IsNotFound(err) {
		return projection.CommissionRecord{}, false, nil
	}
	if err != nil {
		return projection.CommissionRecord{}, false, err
	}
	return rec, true, nil
}
