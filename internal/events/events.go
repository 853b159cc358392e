package events

import (
	"github.com/jeogo/casnos-sub001/internal/models"
)

const (
	TicketCreated       = "ticket:created"
	TicketCalled        = "ticket:called"
	TicketServed        = "ticket:served"
	TicketStatusUpdated = "ticket:status-updated"
	TicketNext          = "ticket:next"
	QueueUpdated        = "queue:updated"

	PrintStatusUpdated  = "print:status-updated"
	PrintPendingInstant = "print:pending-instant"

	DisplayTicketCalled = "display:ticket-called"
	DisplayPlaySound    = "display:play-sound"

	DeviceConnected    = "device:connected"
	DeviceDisconnected = "device:disconnected"
	DeviceStatusUpdate = "device:status-update"
	DeviceRegistered   = "device:registered"
	DevicesStatus      = "devices:status"

	WindowCreated       = "window:created"
	WindowStatusUpdated = "window:status-updated"

	ServiceCreated = "service:created"
	ServiceUpdated = "service:updated"
	ServiceDeleted = "service:deleted"

	SystemReset = "system:reset"
	InitialData = "initial-data"
	Pong        = "pong"
	TicketError = "ticket:error"
	Error       = "error"

	AdminSystemStatus   = "admin:system-status"
	AdminStatistics     = "admin:statistics"
	AdminDevices        = "admin:devices"
	AdminResetCompleted = "admin:reset-completed"
	AdminMessage        = "admin:message"
	AdminMessageSent    = "admin:message-sent"
	AdminUnauthorized   = "admin:unauthorized"
)

const (
	RoomDisplays  = "displays"
	RoomWindows   = "windows"
	RoomCustomers = "customers"
	RoomPrinters  = "printers"
	RoomAdmins    = "admins"
)

// Event is a domain notification produced by a mutation. An empty Room
// means every connection.
type Event struct {
	Name string
	Room string
	Data map[string]interface{}
}

func DeviceRoom(deviceID string) string {
	return "device:" + deviceID
}

func TypeRoom(deviceType string) string {
	return "type:" + deviceType
}

// CoarseRoom maps a device type to its shared room.
func CoarseRoom(deviceType string) string {
	switch deviceType {
	case models.DeviceDisplay:
		return RoomDisplays
	case models.DeviceWindow:
		return RoomWindows
	case models.DeviceCustomer:
		return RoomCustomers
	case models.DevicePrinterType:
		return RoomPrinters
	case models.DeviceAdmin:
		return RoomAdmins
	default:
		return ""
	}
}

func Queue(counts models.QueueCounts) Event {
	return Event{Name: QueueUpdated, Data: map[string]interface{}{
		"pending": counts.Pending,
		"called":  counts.Called,
		"served":  counts.Served,
		"total":   counts.Total,
	}}
}

func Created(ticket models.Ticket, serviceName string) Event {
	return Event{Name: TicketCreated, Data: map[string]interface{}{
		"success":      true,
		"ticket":       ticket,
		"service_name": serviceName,
	}}
}

func PendingInstant(ticket models.Ticket, data models.TicketData) Event {
	return Event{Name: PrintPendingInstant, Room: RoomDisplays, Data: map[string]interface{}{
		"ticket":     ticket,
		"ticketData": data,
	}}
}

// Called returns the full announcement set for a call: the general
// ticket:called plus the display-only pair.
func Called(ticket models.Ticket, serviceName string, windowID int64) []Event {
	return []Event{
		{Name: TicketCalled, Data: map[string]interface{}{
			"success":       true,
			"ticket":        ticket,
			"ticket_number": ticket.TicketNumber,
			"service_name":  serviceName,
			"window_id":     windowID,
			"window_number": windowID,
		}},
		{Name: DisplayTicketCalled, Room: RoomDisplays, Data: map[string]interface{}{
			"ticket":        ticket,
			"ticket_number": ticket.TicketNumber,
			"service_name":  serviceName,
			"window_id":     windowID,
			"status":        models.StatusCalled,
		}},
		{Name: DisplayPlaySound, Room: RoomDisplays, Data: map[string]interface{}{
			"ticketNumber": ticket.TicketNumber,
			"windowNumber": windowID,
		}},
	}
}

func Served(ticket models.Ticket, serviceName, previousStatus string) []Event {
	var windowID interface{}
	if ticket.WindowID != nil {
		windowID = *ticket.WindowID
	}
	return []Event{
		{Name: TicketStatusUpdated, Data: map[string]interface{}{
			"ticket":        ticket,
			"ticket_number": ticket.TicketNumber,
			"service_name":  serviceName,
			"old_status":    previousStatus,
			"new_status":    ticket.Status,
			"window_id":     windowID,
		}},
		{Name: TicketServed, Data: map[string]interface{}{
			"success": true,
			"ticket":  ticket,
		}},
	}
}

func PrintStatus(ticket models.Ticket, errorMessage string) Event {
	return Event{Name: PrintStatusUpdated, Data: map[string]interface{}{
		"ticket":        ticket,
		"ticket_number": ticket.TicketNumber,
		"print_status":  ticket.PrintStatus,
		"error_message": errorMessage,
	}}
}

func DeviceOnline(device models.Device) Event {
	return Event{Name: DeviceConnected, Data: map[string]interface{}{
		"device":     device,
		"deviceId":   device.DeviceID,
		"deviceType": device.DeviceType,
		"status":     models.DeviceOnline,
	}}
}

func DeviceOffline(deviceID, reason string) Event {
	return Event{Name: DeviceDisconnected, Data: map[string]interface{}{
		"deviceId": deviceID,
		"status":   models.DeviceOffline,
		"reason":   reason,
	}}
}

func DeviceStatus(deviceID, status string) Event {
	return Event{Name: DeviceStatusUpdate, Data: map[string]interface{}{
		"deviceId": deviceID,
		"status":   status,
	}}
}

func WindowNew(window models.Window) Event {
	return Event{Name: WindowCreated, Data: map[string]interface{}{
		"window": window,
	}}
}

func WindowStatus(window models.Window) Event {
	return Event{Name: WindowStatusUpdated, Data: map[string]interface{}{
		"window":   window,
		"windowId": window.ID,
		"active":   window.Active,
	}}
}

func Service(name string, service models.Service) Event {
	return Event{Name: name, Data: map[string]interface{}{
		"service": service,
	}}
}

func Reset(ticketsCleared int64) Event {
	return Event{Name: SystemReset, Data: map[string]interface{}{
		"message":        "daily reset completed",
		"action":         "refresh-required",
		"ticketsCleared": ticketsCleared,
	}}
}
