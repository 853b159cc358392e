package store

import (
	"context"
	"time"

	"github.com/jeogo/casnos-sub001/internal/models"
)

type CreateTicketInput struct {
	ServiceID   int64
	PrintStatus string
	CreatedAt   time.Time
}

type CallTicketInput struct {
	TicketID int64
	WindowID int64
	CalledAt time.Time
}

type CallNextInput struct {
	ServiceID int64
	WindowID  int64
	CalledAt  time.Time
}

type ServeTicketInput struct {
	TicketID int64
	ServedAt time.Time
}

type WindowInput struct {
	ServiceID *int64
	DeviceID  *string
	Active    bool
}

type DeviceInput struct {
	DeviceID   string
	Name       string
	IPAddress  string
	DeviceType string
}

type DevicePrinterInput struct {
	DeviceID    string
	PrinterID   string
	PrinterName string
	IsDefault   bool
}

type DailyResetInput struct {
	Date         string
	Timestamp    time.Time
	ResetTickets bool
	ResetPDFs    bool
	ResetCache   bool
}

type DailyResetResult struct {
	Record         models.DailyReset
	TicketsCleared int64
	Claimed        bool
}

type ServiceStore interface {
	ListServices(ctx context.Context) ([]models.Service, error)
	GetService(ctx context.Context, id int64) (models.Service, error)
	CreateService(ctx context.Context, name string) (models.Service, error)
	UpdateService(ctx context.Context, id int64, name string) (models.Service, error)
	DeleteService(ctx context.Context, id int64) error
	EnsureDefaultService(ctx context.Context) (models.Service, bool, error)
}

type WindowStore interface {
	ListWindows(ctx context.Context) ([]models.Window, error)
	GetWindow(ctx context.Context, id int64) (models.Window, error)
	GetWindowByDevice(ctx context.Context, deviceID string) (models.Window, bool, error)
	CreateWindow(ctx context.Context, input WindowInput) (models.Window, error)
	UpdateWindow(ctx context.Context, id int64, input WindowInput) (models.Window, error)
	SetWindowActive(ctx context.Context, id int64, active bool) (models.Window, error)
	DeleteWindow(ctx context.Context, id int64) error
}

type DeviceStore interface {
	ListDevices(ctx context.Context) ([]models.Device, error)
	GetDevice(ctx context.Context, deviceID string) (models.Device, error)
	UpsertDeviceOnline(ctx context.Context, input DeviceInput) (models.Device, error)
	SetDeviceStatus(ctx context.Context, deviceID, status string) (models.Device, error)
	TouchDevice(ctx context.Context, deviceID string) error
	DeleteDevice(ctx context.Context, deviceID string) error
	ListDevicePrinters(ctx context.Context, deviceID string) ([]models.DevicePrinter, error)
	UpsertDevicePrinter(ctx context.Context, input DevicePrinterInput) (models.DevicePrinter, error)
	DeleteDevicePrinter(ctx context.Context, deviceID, printerID string) error
}

type TicketStore interface {
	CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, error)
	GetTicket(ctx context.Context, id int64) (models.Ticket, error)
	ListTickets(ctx context.Context) ([]models.Ticket, error)
	ListPendingTickets(ctx context.Context, serviceID int64) ([]models.Ticket, error)
	CallTicket(ctx context.Context, input CallTicketInput) (models.Ticket, error)
	CallNext(ctx context.Context, input CallNextInput) (models.Ticket, bool, error)
	ServeTicket(ctx context.Context, input ServeTicketInput) (models.Ticket, error)
	UpdatePrintStatus(ctx context.Context, id int64, printStatus string) (models.Ticket, error)
	DeleteTicket(ctx context.Context, id int64) error
	CountTickets(ctx context.Context) (models.QueueCounts, error)
}

type ResetStore interface {
	ClaimDailyReset(ctx context.Context, input DailyResetInput) (DailyResetResult, error)
	DeleteDailyReset(ctx context.Context, date string) error
	GetDailyReset(ctx context.Context, date string) (models.DailyReset, bool, error)
	LastDailyReset(ctx context.Context) (models.DailyReset, bool, error)
	Maintain(ctx context.Context) error
}

type Store interface {
	ServiceStore
	WindowStore
	DeviceStore
	TicketStore
	ResetStore
}
