package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jeogo/casnos-sub001/internal/models"
	"github.com/jeogo/casnos-sub001/internal/store"

	"github.com/jackc/pgx/v5"
)

const resetColumns = "id, last_reset_date, last_reset_timestamp, tickets_reset, pdfs_reset, cache_reset, created_at"

func scanReset(row scanner) (models.DailyReset, error) {
	var reset models.DailyReset
	if err := row.Scan(&reset.ID, &reset.LastResetDate, &reset.LastResetTimestamp, &reset.TicketsReset, &reset.PDFsReset, &reset.CacheReset, &reset.CreatedAt); err != nil {
		return models.DailyReset{}, err
	}
	return reset, nil
}

// ClaimDailyReset records the reset for input.Date and clears the ticket
// table in the same transaction. A date that is already recorded is not
// claimed again and nothing is cleared.
func (s *Store) ClaimDailyReset(ctx context.Context, input store.DailyResetInput) (store.DailyResetResult, error) {
	if input.Date == "" {
		return store.DailyResetResult{}, store.ErrValidation
	}
	timestamp := input.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.DailyResetResult{}, classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	record, err := scanReset(tx.QueryRow(ctx, `
		INSERT INTO daily_resets (last_reset_date, last_reset_timestamp, tickets_reset, pdfs_reset, cache_reset)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (last_reset_date) DO NOTHING
		RETURNING `+resetColumns,
		input.Date, timestamp, input.ResetTickets, input.ResetPDFs, input.ResetCache))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.DailyResetResult{Claimed: false}, nil
		}
		return store.DailyResetResult{}, classify(err)
	}

	result := store.DailyResetResult{Record: record, Claimed: true}
	if input.ResetTickets {
		tag, err := tx.Exec(ctx, `DELETE FROM tickets`)
		if err != nil {
			return store.DailyResetResult{}, classify(err)
		}
		// Numbering restarts at 001 because ids are max(id)+1 over tickets.
		result.TicketsCleared = tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return store.DailyResetResult{}, classify(err)
	}
	return result, nil
}

func (s *Store) DeleteDailyReset(ctx context.Context, date string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM daily_resets WHERE last_reset_date = $1`, date); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) GetDailyReset(ctx context.Context, date string) (models.DailyReset, bool, error) {
	record, err := scanReset(s.pool.QueryRow(ctx, `SELECT `+resetColumns+` FROM daily_resets WHERE last_reset_date = $1`, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DailyReset{}, false, nil
		}
		return models.DailyReset{}, false, classify(err)
	}
	return record, true, nil
}

func (s *Store) LastDailyReset(ctx context.Context) (models.DailyReset, bool, error) {
	record, err := scanReset(s.pool.QueryRow(ctx, `SELECT `+resetColumns+` FROM daily_resets ORDER BY last_reset_timestamp DESC, id DESC LIMIT 1`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DailyReset{}, false, nil
		}
		return models.DailyReset{}, false, classify(err)
	}
	return record, true, nil
}

// Maintain runs outside a transaction block because VACUUM refuses one.
func (s *Store) Maintain(ctx context.Context) error {
	for _, table := range []string{"tickets", "daily_resets", "devices"} {
		if _, err := s.pool.Exec(ctx, "VACUUM ANALYZE "+table, pgx.QueryExecModeSimpleProtocol); err != nil {
			return classify(err)
		}
	}
	return nil
}
