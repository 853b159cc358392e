package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jeogo/casnos-sub001/internal/models"
	"github.com/jeogo/casnos-sub001/internal/store"

	"github.com/jackc/pgx/v5"
)

const serviceColumns = "id, name, created_at, updated_at"

func scanService(row scanner) (models.Service, error) {
	var service models.Service
	if err := row.Scan(&service.ID, &service.Name, &service.CreatedAt, &service.UpdatedAt); err != nil {
		return models.Service{}, err
	}
	return service, nil
}

func (s *Store) ListServices(ctx context.Context) ([]models.Service, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY id ASC`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	services := []models.Service{}
	for rows.Next() {
		service, err := scanService(rows)
		if err != nil {
			return nil, classify(err)
		}
		services = append(services, service)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return services, nil
}

func (s *Store) GetService(ctx context.Context, id int64) (models.Service, error) {
	service, err := scanService(s.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Service{}, store.ErrServiceNotFound
		}
		return models.Service{}, classify(err)
	}
	return service, nil
}

func (s *Store) CreateService(ctx context.Context, name string) (models.Service, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Service{}, store.ErrValidation
	}
	service, err := scanService(s.pool.QueryRow(ctx, `
		INSERT INTO services (name) VALUES ($1)
		RETURNING `+serviceColumns, name))
	if err != nil {
		if isUniqueViolation(err) {
			return models.Service{}, store.ErrDuplicateService
		}
		return models.Service{}, classify(err)
	}
	return service, nil
}

func (s *Store) UpdateService(ctx context.Context, id int64, name string) (models.Service, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Service{}, store.ErrValidation
	}
	service, err := scanService(s.pool.QueryRow(ctx, `
		UPDATE services SET name = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+serviceColumns, id, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Service{}, store.ErrServiceNotFound
		}
		if isUniqueViolation(err) {
			return models.Service{}, store.ErrDuplicateService
		}
		return models.Service{}, classify(err)
	}
	return service, nil
}

func (s *Store) DeleteService(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrServiceNotFound
	}
	return nil
}

// EnsureDefaultService creates the "General" service on an empty catalogue.
func (s *Store) EnsureDefaultService(ctx context.Context) (models.Service, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Service{}, false, classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := scanService(tx.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY id ASC LIMIT 1`))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Service{}, false, classify(err)
	}

	created, err := scanService(tx.QueryRow(ctx, `
		INSERT INTO services (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET updated_at = services.updated_at
		RETURNING `+serviceColumns, models.DefaultServiceName))
	if err != nil {
		return models.Service{}, false, classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Service{}, false, classify(err)
	}
	return created, true, nil
}
