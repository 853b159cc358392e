package realtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jeogo/casnos-sub001/internal/store"
)

// Inbound command names.
const (
	CmdRegister  = "device:register"
	CmdHeartbeat = "device:heartbeat"
	CmdPing      = "ping"

	CmdCreateTicket = "ticket:create"
	CmdCallTicket   = "ticket:call"
	CmdCallNext     = "ticket:call-next"
	CmdServeTicket  = "ticket:serve"
	CmdServeAndNext = "ticket:serve-and-next"

	CmdSystemStatus  = "admin:get-system-status"
	CmdStatistics    = "admin:get-statistics"
	CmdSystemReset   = "admin:system-reset"
	CmdDevices       = "admin:get-devices"
	CmdMessageDevice = "admin:message-device"
)

// frame is the wire shape in both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type command interface {
	Validate() error
}

func decodeCommand(raw json.RawMessage, cmd command) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed != "" && trimmed != "null" {
		if err := json.Unmarshal(raw, cmd); err != nil {
			return fmt.Errorf("%w: malformed payload", store.ErrValidation)
		}
	}
	return cmd.Validate()
}

type pingCommand struct {
	ClientTime *int64 `json:"clientTime"`
}

func (c *pingCommand) Validate() error {
	if c.ClientTime != nil && *c.ClientTime < 0 {
		return fmt.Errorf("%w: clientTime must not be negative", store.ErrValidation)
	}
	return nil
}

type createTicketCommand struct {
	ServiceID int64  `json:"service_id"`
	PrintType string `json:"print_type"`
}

func (c *createTicketCommand) Validate() error {
	if c.ServiceID <= 0 {
		return fmt.Errorf("%w: service_id is required", store.ErrValidation)
	}
	c.PrintType = strings.TrimSpace(c.PrintType)
	return nil
}

type callTicketCommand struct {
	TicketID int64 `json:"ticket_id"`
	WindowID int64 `json:"window_id"`
}

func (c *callTicketCommand) Validate() error {
	if c.TicketID <= 0 {
		return fmt.Errorf("%w: ticket_id is required", store.ErrValidation)
	}
	if c.WindowID <= 0 {
		return fmt.Errorf("%w: window_id is required", store.ErrValidation)
	}
	return nil
}

type callNextCommand struct {
	ServiceID int64 `json:"service_id"`
	WindowID  int64 `json:"window_id"`
}

func (c *callNextCommand) Validate() error {
	if c.ServiceID < 0 {
		return fmt.Errorf("%w: service_id must not be negative", store.ErrValidation)
	}
	if c.WindowID <= 0 {
		return fmt.Errorf("%w: window_id is required", store.ErrValidation)
	}
	return nil
}

type serveTicketCommand struct {
	TicketID int64 `json:"ticket_id"`
}

func (c *serveTicketCommand) Validate() error {
	if c.TicketID <= 0 {
		return fmt.Errorf("%w: ticket_id is required", store.ErrValidation)
	}
	return nil
}

type serveAndNextCommand struct {
	CurrentTicketID *int64 `json:"current_ticket_id"`
	ServiceID       int64  `json:"service_id"`
	WindowID        int64  `json:"window_id"`
}

func (c *serveAndNextCommand) Validate() error {
	if c.CurrentTicketID != nil && *c.CurrentTicketID <= 0 {
		return fmt.Errorf("%w: current_ticket_id must be positive", store.ErrValidation)
	}
	if c.ServiceID < 0 {
		return fmt.Errorf("%w: service_id must not be negative", store.ErrValidation)
	}
	if c.WindowID <= 0 {
		return fmt.Errorf("%w: window_id is required", store.ErrValidation)
	}
	return nil
}

type messageDeviceCommand struct {
	DeviceID string `json:"device_id"`
	Message  string `json:"message"`
	Type     string `json:"type"`
}

func (c *messageDeviceCommand) Validate() error {
	c.DeviceID = strings.TrimSpace(c.DeviceID)
	if c.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", store.ErrValidation)
	}
	if strings.TrimSpace(c.Message) == "" {
		return fmt.Errorf("%w: message is required", store.ErrValidation)
	}
	if c.Type == "" {
		c.Type = "info"
	}
	return nil
}
