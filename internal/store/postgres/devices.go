package postgres

import (
	"context"
	"errors"

	"github.com/jeogo/casnos-sub001/internal/models"
	"github.com/jeogo/casnos-sub001/internal/store"

	"github.com/jackc/pgx/v5"
)

const (
	deviceColumns  = "id, device_id, name, ip_address, device_type, status, created_at, updated_at"
	printerColumns = "id, device_id, printer_id, printer_name, is_default, created_at, updated_at"
)

func scanDevice(row scanner) (models.Device, error) {
	var device models.Device
	if err := row.Scan(&device.ID, &device.DeviceID, &device.Name, &device.IPAddress, &device.DeviceType, &device.Status, &device.CreatedAt, &device.UpdatedAt); err != nil {
		return models.Device{}, err
	}
	return device, nil
}

func scanPrinter(row scanner) (models.DevicePrinter, error) {
	var printer models.DevicePrinter
	if err := row.Scan(&printer.ID, &printer.DeviceID, &printer.PrinterID, &printer.PrinterName, &printer.IsDefault, &printer.CreatedAt, &printer.UpdatedAt); err != nil {
		return models.DevicePrinter{}, err
	}
	return printer, nil
}

func (s *Store) ListDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY id ASC`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	devices := []models.Device{}
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, classify(err)
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return devices, nil
}

func (s *Store) GetDevice(ctx context.Context, deviceID string) (models.Device, error) {
	device, err := scanDevice(s.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE device_id = $1`, deviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Device{}, store.ErrDeviceNotFound
		}
		return models.Device{}, classify(err)
	}
	return device, nil
}

func (s *Store) UpsertDeviceOnline(ctx context.Context, input store.DeviceInput) (models.Device, error) {
	if input.DeviceID == "" || !models.ValidDeviceType(input.DeviceType) {
		return models.Device{}, store.ErrValidation
	}
	device, err := scanDevice(s.pool.QueryRow(ctx, `
		INSERT INTO devices (device_id, name, ip_address, device_type, status)
		VALUES ($1, $2, $3, $4, 'online')
		ON CONFLICT (device_id) DO UPDATE
		SET name = EXCLUDED.name,
			ip_address = EXCLUDED.ip_address,
			device_type = EXCLUDED.device_type,
			status = 'online',
			updated_at = now()
		RETURNING `+deviceColumns,
		input.DeviceID, input.Name, input.IPAddress, input.DeviceType))
	if err != nil {
		return models.Device{}, classify(err)
	}
	return device, nil
}

func (s *Store) SetDeviceStatus(ctx context.Context, deviceID, status string) (models.Device, error) {
	if !models.ValidDeviceStatus(status) {
		return models.Device{}, store.ErrValidation
	}
	device, err := scanDevice(s.pool.QueryRow(ctx, `
		UPDATE devices SET status = $2, updated_at = now()
		WHERE device_id = $1
		RETURNING `+deviceColumns, deviceID, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Device{}, store.ErrDeviceNotFound
		}
		return models.Device{}, classify(err)
	}
	return device, nil
}

func (s *Store) TouchDevice(ctx context.Context, deviceID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE devices SET updated_at = now() WHERE device_id = $1`, deviceID)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrDeviceNotFound
	}
	return nil
}

func (s *Store) DeleteDevice(ctx context.Context, deviceID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM devices WHERE device_id = $1`, deviceID)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrDeviceNotFound
	}
	return nil
}

func (s *Store) ListDevicePrinters(ctx context.Context, deviceID string) ([]models.DevicePrinter, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+printerColumns+` FROM device_printers
		WHERE device_id = $1
		ORDER BY is_default DESC, id ASC`, deviceID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	printers := []models.DevicePrinter{}
	for rows.Next() {
		printer, err := scanPrinter(rows)
		if err != nil {
			return nil, classify(err)
		}
		printers = append(printers, printer)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return printers, nil
}

// UpsertDevicePrinter keeps at most one default printer per device.
func (s *Store) UpsertDevicePrinter(ctx context.Context, input store.DevicePrinterInput) (models.DevicePrinter, error) {
	if input.DeviceID == "" || input.PrinterID == "" {
		return models.DevicePrinter{}, store.ErrValidation
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.DevicePrinter{}, classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	found, err := exists(ctx, tx, `SELECT 1 FROM devices WHERE device_id = $1`, input.DeviceID)
	if err != nil {
		return models.DevicePrinter{}, classify(err)
	}
	if !found {
		return models.DevicePrinter{}, store.ErrDeviceNotFound
	}

	if input.IsDefault {
		if _, err := tx.Exec(ctx, `UPDATE device_printers SET is_default = false, updated_at = now() WHERE device_id = $1 AND is_default`, input.DeviceID); err != nil {
			return models.DevicePrinter{}, classify(err)
		}
	}

	printerName := input.PrinterName
	if printerName == "" {
		printerName = input.PrinterID
	}
	printer, err := scanPrinter(tx.QueryRow(ctx, `
		INSERT INTO device_printers (device_id, printer_id, printer_name, is_default)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (device_id, printer_id) DO UPDATE
		SET printer_name = EXCLUDED.printer_name,
			is_default = EXCLUDED.is_default,
			updated_at = now()
		RETURNING `+printerColumns,
		input.DeviceID, input.PrinterID, printerName, input.IsDefault))
	if err != nil {
		return models.DevicePrinter{}, classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.DevicePrinter{}, classify(err)
	}
	return printer, nil
}

func (s *Store) DeleteDevicePrinter(ctx context.Context, deviceID, printerID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM device_printers WHERE device_id = $1 AND printer_id = $2`, deviceID, printerID)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrPrinterNotFound
	}
	return nil
}
