package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jeogo/casnos-sub001/internal/models"
	"github.com/jeogo/casnos-sub001/internal/store"

	"github.com/jackc/pgx/v5"
)

const windowColumns = "id, service_id, device_id, active, created_at, updated_at"

func scanWindow(row scanner) (models.Window, error) {
	var window models.Window
	var serviceIDNull sql.NullInt64
	var deviceIDNull sql.NullString
	if err := row.Scan(&window.ID, &serviceIDNull, &deviceIDNull, &window.Active, &window.CreatedAt, &window.UpdatedAt); err != nil {
		return models.Window{}, err
	}
	window.ServiceID = nullInt64Ptr(serviceIDNull)
	window.DeviceID = nullStringPtr(deviceIDNull)
	return window, nil
}

func (s *Store) ListWindows(ctx context.Context) ([]models.Window, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+windowColumns+` FROM windows ORDER BY id ASC`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	windows := []models.Window{}
	for rows.Next() {
		window, err := scanWindow(rows)
		if err != nil {
			return nil, classify(err)
		}
		windows = append(windows, window)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return windows, nil
}

func (s *Store) GetWindow(ctx context.Context, id int64) (models.Window, error) {
	window, err := scanWindow(s.pool.QueryRow(ctx, `SELECT `+windowColumns+` FROM windows WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Window{}, store.ErrWindowNotFound
		}
		return models.Window{}, classify(err)
	}
	return window, nil
}

func (s *Store) GetWindowByDevice(ctx context.Context, deviceID string) (models.Window, bool, error) {
	window, err := scanWindow(s.pool.QueryRow(ctx, `
		SELECT `+windowColumns+` FROM windows
		WHERE device_id = $1
		ORDER BY id ASC
		LIMIT 1`, deviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Window{}, false, nil
		}
		return models.Window{}, false, classify(err)
	}
	return window, true, nil
}

func (s *Store) CreateWindow(ctx context.Context, input store.WindowInput) (models.Window, error) {
	window, err := scanWindow(s.pool.QueryRow(ctx, `
		INSERT INTO windows (service_id, device_id, active)
		VALUES ($1, $2, $3)
		RETURNING `+windowColumns,
		nullIfZero(input.ServiceID), nullIfEmpty(input.DeviceID), input.Active))
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.Window{}, fmt.Errorf("%w: unknown service or device", store.ErrValidation)
		}
		return models.Window{}, classify(err)
	}
	return window, nil
}

func (s *Store) UpdateWindow(ctx context.Context, id int64, input store.WindowInput) (models.Window, error) {
	window, err := scanWindow(s.pool.QueryRow(ctx, `
		UPDATE windows
		SET service_id = $2, device_id = $3, active = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+windowColumns,
		id, nullIfZero(input.ServiceID), nullIfEmpty(input.DeviceID), input.Active))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Window{}, store.ErrWindowNotFound
		}
		if isForeignKeyViolation(err) {
			return models.Window{}, fmt.Errorf("%w: unknown service or device", store.ErrValidation)
		}
		return models.Window{}, classify(err)
	}
	return window, nil
}

func (s *Store) SetWindowActive(ctx context.Context, id int64, active bool) (models.Window, error) {
	window, err := scanWindow(s.pool.QueryRow(ctx, `
		UPDATE windows SET active = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+windowColumns, id, active))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Window{}, store.ErrWindowNotFound
		}
		return models.Window{}, classify(err)
	}
	return window, nil
}

func (s *Store) DeleteWindow(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM windows WHERE id = $1`, id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrWindowNotFound
	}
	return nil
}
