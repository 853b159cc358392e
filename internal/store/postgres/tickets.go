package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jeogo/casnos-sub001/internal/models"
	"github.com/jeogo/casnos-sub001/internal/store"

	"github.com/jackc/pgx/v5"
)

const ticketColumns = "id, ticket_number, service_id, status, print_status, created_at, called_at, served_at, window_id"

func scanTicket(row scanner) (models.Ticket, error) {
	var ticket models.Ticket
	var calledAtNull sql.NullTime
	var servedAtNull sql.NullTime
	var windowIDNull sql.NullInt64
	if err := row.Scan(&ticket.ID, &ticket.TicketNumber, &ticket.ServiceID, &ticket.Status, &ticket.PrintStatus, &ticket.CreatedAt, &calledAtNull, &servedAtNull, &windowIDNull); err != nil {
		return models.Ticket{}, err
	}
	ticket.CalledAt = nullTimePtr(calledAtNull)
	ticket.ServedAt = nullTimePtr(servedAtNull)
	ticket.WindowID = nullInt64Ptr(windowIDNull)
	return ticket, nil
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	found, err := exists(ctx, tx, `SELECT 1 FROM services WHERE id = $1`, input.ServiceID)
	if err != nil {
		return models.Ticket{}, classify(err)
	}
	if !found {
		return models.Ticket{}, store.ErrServiceNotFound
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ticketNumberLock); err != nil {
		return models.Ticket{}, classify(err)
	}

	var seq int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM tickets`).Scan(&seq); err != nil {
		return models.Ticket{}, classify(err)
	}

	printStatus := input.PrintStatus
	if printStatus == "" {
		printStatus = models.PrintPending
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO tickets (id, ticket_number, service_id, status, print_status, created_at)
		VALUES ($1, $2, $3, 'pending', $4, $5)
		RETURNING `+ticketColumns,
		seq, formatTicketNumber(seq), input.ServiceID, printStatus, createdAt)
	ticket, err := scanTicket(row)
	if err != nil {
		return models.Ticket{}, classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Ticket{}, classify(err)
	}
	return ticket, nil
}

func (s *Store) GetTicket(ctx context.Context, id int64) (models.Ticket, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, classify(err)
	}
	return ticket, nil
}

func (s *Store) ListTickets(ctx context.Context) ([]models.Ticket, error) {
	return s.queryTickets(ctx, `SELECT `+ticketColumns+` FROM tickets ORDER BY created_at DESC, id DESC`)
}

func (s *Store) ListPendingTickets(ctx context.Context, serviceID int64) ([]models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE status = 'pending'`
	args := []interface{}{}
	if serviceID > 0 {
		query += " AND service_id = $1"
		args = append(args, serviceID)
	}
	query += " ORDER BY created_at ASC, id ASC"
	return s.queryTickets(ctx, query, args...)
}

func (s *Store) queryTickets(ctx context.Context, query string, args ...interface{}) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	tickets := []models.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, classify(err)
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return tickets, nil
}

func (s *Store) CallTicket(ctx context.Context, input store.CallTicketInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	found, err := exists(ctx, tx, `SELECT 1 FROM windows WHERE id = $1`, input.WindowID)
	if err != nil {
		return models.Ticket{}, classify(err)
	}
	if !found {
		return models.Ticket{}, store.ErrWindowNotFound
	}

	row := tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = 'called', called_at = $2, window_id = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING `+ticketColumns,
		input.TicketID, calledAt(input.CalledAt), input.WindowID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, guardFailure(ctx, tx, input.TicketID, "call")
		}
		return models.Ticket{}, classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Ticket{}, classify(err)
	}
	return ticket, nil
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if input.ServiceID > 0 {
		found, err := exists(ctx, tx, `SELECT 1 FROM services WHERE id = $1`, input.ServiceID)
		if err != nil {
			return models.Ticket{}, false, classify(err)
		}
		if !found {
			return models.Ticket{}, false, store.ErrServiceNotFound
		}
	}
	found, err := exists(ctx, tx, `SELECT 1 FROM windows WHERE id = $1`, input.WindowID)
	if err != nil {
		return models.Ticket{}, false, classify(err)
	}
	if !found {
		return models.Ticket{}, false, store.ErrWindowNotFound
	}

	filter := ""
	args := []interface{}{calledAt(input.CalledAt), input.WindowID}
	if input.ServiceID > 0 {
		filter = " AND service_id = $3"
		args = append(args, input.ServiceID)
	}
	query := `
		WITH next_ticket AS (
			SELECT id
			FROM tickets
			WHERE status = 'pending'` + filter + `
			ORDER BY created_at ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE tickets
		SET status = 'called',
			called_at = $1,
			window_id = $2
		FROM next_ticket
		WHERE tickets.id = next_ticket.id
		RETURNING tickets.id, tickets.ticket_number, tickets.service_id, tickets.status, tickets.print_status, tickets.created_at, tickets.called_at, tickets.served_at, tickets.window_id
	`
	ticket, err := scanTicket(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, classify(err)
	}
	return ticket, true, nil
}

func (s *Store) ServeTicket(ctx context.Context, input store.ServeTicketInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	servedAt := input.ServedAt
	if servedAt.IsZero() {
		servedAt = time.Now().UTC()
	}
	row := tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = 'served', served_at = $2
		WHERE id = $1 AND status = 'called'
		RETURNING `+ticketColumns,
		input.TicketID, servedAt)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, guardFailure(ctx, tx, input.TicketID, "serve")
		}
		return models.Ticket{}, classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Ticket{}, classify(err)
	}
	return ticket, nil
}

func (s *Store) UpdatePrintStatus(ctx context.Context, id int64, printStatus string) (models.Ticket, error) {
	if !models.ValidPrintStatus(printStatus) {
		return models.Ticket{}, store.ErrValidation
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE tickets SET print_status = $2 WHERE id = $1
		RETURNING `+ticketColumns, id, printStatus)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, classify(err)
	}
	return ticket, nil
}

func (s *Store) DeleteTicket(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tickets WHERE id = $1`, id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrTicketNotFound
	}
	return nil
}

func (s *Store) CountTickets(ctx context.Context) (models.QueueCounts, error) {
	var counts models.QueueCounts
	row := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'called'),
			COUNT(*) FILTER (WHERE status = 'served'),
			COUNT(*)
		FROM tickets
	`)
	if err := row.Scan(&counts.Pending, &counts.Called, &counts.Served, &counts.Total); err != nil {
		return models.QueueCounts{}, classify(err)
	}
	return counts, nil
}

func guardFailure(ctx context.Context, tx pgx.Tx, ticketID int64, action string) error {
	var status string
	if err := tx.QueryRow(ctx, `SELECT status FROM tickets WHERE id = $1`, ticketID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrTicketNotFound
		}
		return classify(err)
	}
	if store.ValidTransition(action, status) {
		// row changed between the guarded update and this lookup
		return store.ErrTransient
	}
	return store.ErrInvalidState
}

func calledAt(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC()
	}
	return value
}
