package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/jeogo/casnos-sub001/internal/events"
	"github.com/jeogo/casnos-sub001/internal/models"
	"github.com/jeogo/casnos-sub001/internal/presence"
	"github.com/jeogo/casnos-sub001/internal/store"
)

func (s *Server) handleRegister(ctx context.Context, conn Conn, data json.RawMessage) error {
	var input presence.RegisterInput
	if err := decodeCommand(data, &input); err != nil {
		return s.registerFailed(conn, err)
	}
	device, err := s.presence.Register(ctx, conn.ID, input)
	if err != nil {
		return s.registerFailed(conn, err)
	}
	s.reply(conn, events.DeviceRegistered, map[string]interface{}{
		"success":      true,
		"device":       device,
		"connectionId": conn.ID,
	})
	log.Printf("device registered device_id=%s type=%s conn_id=%s", device.DeviceID, device.DeviceType, conn.ID)
	return nil
}

func (s *Server) registerFailed(conn Conn, err error) error {
	code, message := errorCode(err)
	s.reply(conn, events.DeviceRegistered, map[string]interface{}{
		"success": false,
		"code":    code,
		"error":   message,
	})
	return err
}

func (s *Server) handleHeartbeat(ctx context.Context, conn Conn, data json.RawMessage) error {
	if err := s.presence.Heartbeat(ctx, conn.ID); err != nil {
		code, message := errorCode(err)
		s.reply(conn, events.Error, map[string]interface{}{
			"success": false,
			"command": CmdHeartbeat,
			"code":    code,
			"error":   message,
		})
		return err
	}
	return nil
}

func (s *Server) handlePing(ctx context.Context, conn Conn, data json.RawMessage) error {
	var cmd pingCommand
	if err := decodeCommand(data, &cmd); err != nil {
		return s.commandFailed(conn, CmdPing, err)
	}
	out := map[string]interface{}{
		"clientTimestamp": nil,
		"roundTripTime":   nil,
	}
	if cmd.ClientTime != nil {
		out["clientTimestamp"] = *cmd.ClientTime
		out["roundTripTime"] = s.now().UnixMilli() - *cmd.ClientTime
	}
	s.reply(conn, events.Pong, out)
	return nil
}

func (s *Server) handleCreateTicket(ctx context.Context, conn Conn, data json.RawMessage) error {
	var cmd createTicketCommand
	if err := decodeCommand(data, &cmd); err != nil {
		return s.commandFailed(conn, CmdCreateTicket, err)
	}
	ticket, evts, err := s.queue.CreateTicket(ctx, cmd.ServiceID, cmd.PrintType)
	if err != nil {
		return s.commandFailed(conn, CmdCreateTicket, err)
	}
	s.publish(ctx, evts)
	s.reply(conn, events.TicketCreated, map[string]interface{}{
		"success": true,
		"ticket":  ticket,
	})
	return nil
}

func (s *Server) handleCallTicket(ctx context.Context, conn Conn, data json.RawMessage) error {
	var cmd callTicketCommand
	if err := decodeCommand(data, &cmd); err != nil {
		return s.commandFailed(conn, CmdCallTicket, err)
	}
	ticket, evts, err := s.queue.CallTicket(ctx, cmd.TicketID, cmd.WindowID)
	if err != nil {
		return s.commandFailed(conn, CmdCallTicket, err)
	}
	s.publish(ctx, evts)
	s.reply(conn, events.TicketCalled, map[string]interface{}{
		"success": true,
		"ticket":  ticket,
	})
	return nil
}

func (s *Server) handleCallNext(ctx context.Context, conn Conn, data json.RawMessage) error {
	var cmd callNextCommand
	if err := decodeCommand(data, &cmd); err != nil {
		return s.commandFailed(conn, CmdCallNext, err)
	}
	ticket, evts, err := s.queue.CallNext(ctx, cmd.ServiceID, cmd.WindowID)
	if errors.Is(err, store.ErrNoTicket) {
		s.reply(conn, events.TicketCalled, map[string]interface{}{
			"success": false,
			"ticket":  nil,
			"message": "no pending tickets",
		})
		return nil
	}
	if err != nil {
		return s.commandFailed(conn, CmdCallNext, err)
	}
	s.publish(ctx, evts)
	s.reply(conn, events.TicketCalled, map[string]interface{}{
		"success": true,
		"ticket":  ticket,
	})
	return nil
}

func (s *Server) handleServeTicket(ctx context.Context, conn Conn, data json.RawMessage) error {
	var cmd serveTicketCommand
	if err := decodeCommand(data, &cmd); err != nil {
		return s.commandFailed(conn, CmdServeTicket, err)
	}
	ticket, evts, err := s.queue.ServeTicket(ctx, cmd.TicketID)
	if err != nil {
		return s.commandFailed(conn, CmdServeTicket, err)
	}
	s.publish(ctx, evts)
	s.reply(conn, events.TicketServed, map[string]interface{}{
		"success": true,
		"ticket":  ticket,
	})
	return nil
}

func (s *Server) handleServeAndNext(ctx context.Context, conn Conn, data json.RawMessage) error {
	var cmd serveAndNextCommand
	if err := decodeCommand(data, &cmd); err != nil {
		return s.commandFailed(conn, CmdServeAndNext, err)
	}
	ticket, evts, err := s.queue.ServeAndNext(ctx, cmd.CurrentTicketID, cmd.ServiceID, cmd.WindowID)
	s.publish(ctx, evts)
	if err != nil {
		return s.commandFailed(conn, CmdServeAndNext, err)
	}
	var next interface{}
	if ticket != nil {
		next = *ticket
	}
	s.reply(conn, events.TicketNext, map[string]interface{}{
		"success": true,
		"ticket":  next,
	})
	return nil
}

func (s *Server) handleSystemStatus(ctx context.Context, conn Conn, data json.RawMessage) error {
	counts, err := s.queue.Counts(ctx)
	if err != nil {
		return s.adminFailed(conn, CmdSystemStatus, err)
	}
	now := s.now()
	s.reply(conn, events.AdminSystemStatus, map[string]interface{}{
		"server": map[string]interface{}{
			"uptime_seconds": int64(now.Sub(s.started).Seconds()),
			"started_at":     s.started,
		},
		"connections": s.hub.ClientCount(),
		"devices":     s.presence.Snapshot(),
		"queue":       counts,
	})
	return nil
}

func (s *Server) handleStatistics(ctx context.Context, conn Conn, data json.RawMessage) error {
	tickets, err := s.tickets.ListTickets(ctx)
	if err != nil {
		return s.adminFailed(conn, CmdStatistics, err)
	}
	var counts models.QueueCounts
	today := 0
	y, m, d := s.now().In(s.location).Date()
	for _, ticket := range tickets {
		counts.Total++
		switch ticket.Status {
		case models.StatusPending:
			counts.Pending++
		case models.StatusCalled:
			counts.Called++
		case models.StatusServed:
			counts.Served++
		}
		ty, tm, td := ticket.CreatedAt.In(s.location).Date()
		if ty == y && tm == m && td == d {
			today++
		}
	}

	devices := s.presence.Snapshot()
	byType := map[string]int{}
	for _, entry := range devices {
		byType[entry.Role]++
	}
	s.reply(conn, events.AdminStatistics, map[string]interface{}{
		"tickets": map[string]interface{}{
			"total":   counts.Total,
			"pending": counts.Pending,
			"called":  counts.Called,
			"served":  counts.Served,
			"today":   today,
		},
		"devices": map[string]interface{}{
			"connected": len(devices),
			"byType":    byType,
		},
	})
	return nil
}

func (s *Server) handleSystemReset(ctx context.Context, conn Conn, data json.RawMessage) error {
	result, err := s.reset.Force(ctx)
	if err != nil {
		s.reply(conn, events.AdminResetCompleted, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return err
	}
	log.Printf("admin reset conn_id=%s tickets_cleared=%d", conn.ID, result.TicketsCleared)
	s.reply(conn, events.AdminResetCompleted, map[string]interface{}{
		"success": true,
		"result":  result,
	})
	return nil
}

func (s *Server) handleDevices(ctx context.Context, conn Conn, data json.RawMessage) error {
	s.reply(conn, events.AdminDevices, map[string]interface{}{
		"devices": s.presence.Snapshot(),
	})
	return nil
}

func (s *Server) handleMessageDevice(ctx context.Context, conn Conn, data json.RawMessage) error {
	var cmd messageDeviceCommand
	if err := decodeCommand(data, &cmd); err != nil {
		return s.adminFailed(conn, CmdMessageDevice, err)
	}
	s.hub.EmitDevice(cmd.DeviceID, events.AdminMessage, map[string]interface{}{
		"message": cmd.Message,
		"type":    cmd.Type,
		"from":    "admin",
	})
	s.reply(conn, events.AdminMessageSent, map[string]interface{}{
		"deviceId": cmd.DeviceID,
		"success":  true,
	})
	return nil
}

func (s *Server) commandFailed(conn Conn, command string, err error) error {
	code, message := errorCode(err)
	if code == "internal_error" {
		log.Printf("socket command=%s conn_id=%s: %v", command, conn.ID, err)
	}
	s.reply(conn, events.TicketError, map[string]interface{}{
		"success": false,
		"command": command,
		"code":    code,
		"error":   message,
	})
	return err
}

// adminFailed exposes the raw error; admins are the only audience for it.
func (s *Server) adminFailed(conn Conn, command string, err error) error {
	code, _ := errorCode(err)
	s.reply(conn, events.Error, map[string]interface{}{
		"success": false,
		"command": command,
		"code":    code,
		"error":   err.Error(),
	})
	return err
}

func errorCode(err error) (string, string) {
	switch {
	case errors.Is(err, store.ErrValidation):
		return "invalid_request", err.Error()
	case errors.Is(err, store.ErrServiceNotFound):
		return "service_not_found", "service not found"
	case errors.Is(err, store.ErrTicketNotFound):
		return "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrWindowNotFound):
		return "window_not_found", "window not found"
	case errors.Is(err, store.ErrDeviceNotFound):
		return "device_not_found", "device not found"
	case errors.Is(err, store.ErrInvalidState):
		return "invalid_state", "ticket state does not allow this action"
	case errors.Is(err, store.ErrNoTicket):
		return "queue_empty", "no pending tickets"
	case errors.Is(err, store.ErrTransient):
		return "retry", "temporarily unavailable, retry"
	case errors.Is(err, presence.ErrNotRegistered):
		return "not_registered", "device is not registered"
	case errors.Is(err, presence.ErrUnauthorized):
		return "unauthorized", "admin token required"
	default:
		return "internal_error", "internal server error"
	}
}
