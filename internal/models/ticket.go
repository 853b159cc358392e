package models

import "time"

type Ticket struct {
	ID           int64      `json:"id"`
	TicketNumber string     `json:"ticket_number"`
	ServiceID    int64      `json:"service_id"`
	Status       string     `json:"status"`
	PrintStatus  string     `json:"print_status"`
	CreatedAt    time.Time  `json:"created_at"`
	CalledAt     *time.Time `json:"called_at,omitempty"`
	ServedAt     *time.Time `json:"served_at,omitempty"`
	WindowID     *int64     `json:"window_id,omitempty"`
}

const (
	StatusPending = "pending"
	StatusCalled  = "called"
	StatusServed  = "served"
)

const (
	PrintPending  = "pending"
	PrintPrinting = "printing"
	PrintPrinted  = "printed"
	PrintFailed   = "print_failed"
)

func ValidPrintStatus(status string) bool {
	switch status {
	case PrintPending, PrintPrinting, PrintPrinted, PrintFailed:
		return true
	default:
		return false
	}
}

type QueueCounts struct {
	Pending int `json:"pending"`
	Called  int `json:"called"`
	Served  int `json:"served"`
	Total   int `json:"total"`
}

// TicketData is the printable view of a ticket.
type TicketData struct {
	ID           int64     `json:"id"`
	TicketNumber string    `json:"ticket_number"`
	ServiceID    int64     `json:"service_id"`
	ServiceName  string    `json:"service_name"`
	CreatedAt    time.Time `json:"created_at"`
	CompanyName  string    `json:"company_name"`
	Position     int       `json:"position"`
	PrintSource  string    `json:"print_source"`
}
