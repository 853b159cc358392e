package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jeogo/casnos-sub001/internal/events"
	"github.com/jeogo/casnos-sub001/internal/hub"
	"github.com/jeogo/casnos-sub001/internal/metrics"
	"github.com/jeogo/casnos-sub001/internal/models"
	"github.com/jeogo/casnos-sub001/internal/presence"
	"github.com/jeogo/casnos-sub001/internal/reset"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
)

const (
	DefaultPrefix = "/socket"

	defaultSendBuffer     = 64
	defaultCommandTimeout = 10 * time.Second
)

type Tickets interface {
	ListTickets(ctx context.Context) ([]models.Ticket, error)
	ListPendingTickets(ctx context.Context, serviceID int64) ([]models.Ticket, error)
}

type Queue interface {
	CreateTicket(ctx context.Context, serviceID int64, printType string) (models.Ticket, []events.Event, error)
	CallTicket(ctx context.Context, ticketID, windowID int64) (models.Ticket, []events.Event, error)
	CallNext(ctx context.Context, serviceID, windowID int64) (models.Ticket, []events.Event, error)
	ServeTicket(ctx context.Context, ticketID int64) (models.Ticket, []events.Event, error)
	ServeAndNext(ctx context.Context, currentID *int64, serviceID, windowID int64) (*models.Ticket, []events.Event, error)
	Counts(ctx context.Context) (models.QueueCounts, error)
}

type Presence interface {
	Register(ctx context.Context, connID string, input presence.RegisterInput) (models.Device, error)
	Heartbeat(ctx context.Context, connID string) error
	Disconnect(ctx context.Context, connID, reason string) bool
	Snapshot() []presence.Entry
}

type Resetter interface {
	Force(ctx context.Context) (reset.Result, error)
}

type Publisher interface {
	Publish(ctx context.Context, evts ...events.Event)
}

type Deps struct {
	Tickets  Tickets
	Queue    Queue
	Presence Presence
	Reset    Resetter
	Events   Publisher
}

type Options struct {
	Prefix         string
	SendBuffer     int
	CommandTimeout time.Duration
	Location       *time.Location
	Started        time.Time
	Now            func() time.Time
}

// Conn identifies one realtime connection to the command handlers.
type Conn struct {
	ID       string
	RemoteIP string
}

// Server bridges SockJS sessions to the hub and the domain components.
type Server struct {
	hub      *hub.Hub
	tickets  Tickets
	queue    Queue
	presence Presence
	reset    Resetter
	events   Publisher

	prefix     string
	sendBuffer int
	timeout    time.Duration
	location   *time.Location
	started    time.Time
	now        func() time.Time
}

func NewServer(h *hub.Hub, deps Deps, opts Options) *Server {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Started.IsZero() {
		opts.Started = opts.Now()
	}
	return &Server{
		hub:        h,
		tickets:    deps.Tickets,
		queue:      deps.Queue,
		presence:   deps.Presence,
		reset:      deps.Reset,
		events:     deps.Events,
		prefix:     opts.Prefix,
		sendBuffer: opts.SendBuffer,
		timeout:    opts.CommandTimeout,
		location:   opts.Location,
		started:    opts.Started,
		now:        opts.Now,
	}
}

func (s *Server) Prefix() string {
	return s.prefix
}

// Handler serves the SockJS endpoint. Mount it under Prefix()+"/".
func (s *Server) Handler() http.Handler {
	return sockjs.NewHandler(s.prefix, sockjs.DefaultOptions, s.serveSession)
}

func (s *Server) serveSession(session sockjs.Session) {
	conn := Conn{ID: uuid.NewString(), RemoteIP: remoteIP(session.Request())}
	client := hub.NewClient(conn.ID, s.sendBuffer)
	s.hub.Register(client)
	metrics.SocketConnections.Inc()
	log.Printf("socket connected conn_id=%s ip=%s", conn.ID, conn.RemoteIP)

	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		for msg := range client.Send {
			if err := session.Send(string(msg)); err != nil {
				log.Printf("socket send conn_id=%s: %v", conn.ID, err)
			}
		}
	}()

	s.Connect(context.Background(), conn)
	for {
		msg, err := session.Recv()
		if err != nil {
			break
		}
		s.Handle(context.Background(), conn, []byte(msg))
	}

	s.Disconnect(context.Background(), conn)
	s.hub.Unregister(client)
	<-pumped
	metrics.SocketConnections.Dec()
	log.Printf("socket disconnected conn_id=%s", conn.ID)
}

// Connect sends the initial snapshot to a freshly registered connection.
func (s *Server) Connect(ctx context.Context, conn Conn) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pending, err := s.tickets.ListPendingTickets(ctx, 0)
	if err != nil {
		log.Printf("initial data pending conn_id=%s: %v", conn.ID, err)
		pending = []models.Ticket{}
	}
	all, err := s.tickets.ListTickets(ctx)
	if err != nil {
		log.Printf("initial data tickets conn_id=%s: %v", conn.ID, err)
		all = []models.Ticket{}
	}
	s.hub.Send(conn.ID, events.InitialData, map[string]interface{}{
		"pendingTickets":   pending,
		"allTickets":       all,
		"connectedDevices": s.presence.Snapshot(),
	})
}

// Disconnect releases the connection's presence entry, if it registered one.
func (s *Server) Disconnect(ctx context.Context, conn Conn) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	s.presence.Disconnect(ctx, conn.ID, presence.ReasonDisconnect)
}

// Handle decodes one inbound frame and runs the matching command. Replies
// go to the connection only; state changes are broadcast through the
// publisher.
func (s *Server) Handle(ctx context.Context, conn Conn, raw []byte) {
	var in frame
	if err := json.Unmarshal(raw, &in); err != nil || strings.TrimSpace(in.Event) == "" {
		s.reply(conn, events.Error, map[string]interface{}{
			"success": false,
			"code":    "invalid_frame",
			"error":   "expected {\"event\", \"data\"}",
		})
		metrics.SocketCommands.WithLabelValues("invalid", "error").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	handler, ok := s.route(in.Event)
	if !ok {
		s.reply(conn, events.Error, map[string]interface{}{
			"success": false,
			"code":    "unknown_event",
			"error":   "unknown event " + in.Event,
		})
		metrics.SocketCommands.WithLabelValues("unknown", "error").Inc()
		return
	}
	if strings.HasPrefix(in.Event, "admin:") && !s.isAdmin(conn.ID) {
		s.reply(conn, events.AdminUnauthorized, map[string]interface{}{
			"message": "admin access required",
		})
		metrics.SocketCommands.WithLabelValues(in.Event, "unauthorized").Inc()
		return
	}

	outcome := "ok"
	if err := handler(ctx, conn, in.Data); err != nil {
		outcome = "error"
	}
	metrics.SocketCommands.WithLabelValues(in.Event, outcome).Inc()
}

type commandFunc func(ctx context.Context, conn Conn, data json.RawMessage) error

func (s *Server) route(event string) (commandFunc, bool) {
	switch event {
	case CmdRegister:
		return s.handleRegister, true
	case CmdHeartbeat:
		return s.handleHeartbeat, true
	case CmdPing:
		return s.handlePing, true
	case CmdCreateTicket:
		return s.handleCreateTicket, true
	case CmdCallTicket:
		return s.handleCallTicket, true
	case CmdCallNext:
		return s.handleCallNext, true
	case CmdServeTicket:
		return s.handleServeTicket, true
	case CmdServeAndNext:
		return s.handleServeAndNext, true
	case CmdSystemStatus:
		return s.handleSystemStatus, true
	case CmdStatistics:
		return s.handleStatistics, true
	case CmdSystemReset:
		return s.handleSystemReset, true
	case CmdDevices:
		return s.handleDevices, true
	case CmdMessageDevice:
		return s.handleMessageDevice, true
	default:
		return nil, false
	}
}

// isAdmin trusts room membership only; the room is joined server-side after
// a verified admin registration.
func (s *Server) isAdmin(connID string) bool {
	return s.hub.InRoom(connID, events.TypeRoom(models.DeviceAdmin))
}

func (s *Server) reply(conn Conn, event string, data map[string]interface{}) {
	s.hub.Send(conn.ID, event, data)
}

func (s *Server) publish(ctx context.Context, evts []events.Event) {
	if s.events != nil && len(evts) > 0 {
		s.events.Publish(ctx, evts...)
	}
}

func remoteIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
