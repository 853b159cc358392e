package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jeogo/casnos-sub001/internal/events"
	"github.com/jeogo/casnos-sub001/internal/hub"
	"github.com/jeogo/casnos-sub001/internal/models"
	"github.com/jeogo/casnos-sub001/internal/presence"
	"github.com/jeogo/casnos-sub001/internal/queue"
	"github.com/jeogo/casnos-sub001/internal/reset"
	"github.com/jeogo/casnos-sub001/internal/store"
	"github.com/jeogo/casnos-sub001/internal/store/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evts ...events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evts...)
}

func (p *recordingPublisher) count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, evt := range p.events {
		if evt.Name == name {
			n++
		}
	}
	return n
}

type received struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

type fixture struct {
	server    *Server
	hub       *hub.Hub
	store     *memory.Store
	engine    *queue.Engine
	presence  *presence.Registry
	publisher *recordingPublisher
	service   models.Service
	window    models.Window
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		hub:       hub.New(),
		store:     memory.NewStore(),
		publisher: &recordingPublisher{},
		now:       time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return f.now }
	f.engine = queue.NewEngine(f.store, queue.Options{Now: now})
	f.presence = presence.NewRegistry(f.store, f.hub, f.publisher, presence.Options{Now: now})
	scheduler := reset.NewScheduler(f.store, f.publisher, reset.Options{
		Config:   reset.DefaultConfig(),
		Location: time.UTC,
		Now:      now,
	})
	f.server = NewServer(f.hub, Deps{
		Tickets:  f.store,
		Queue:    f.engine,
		Presence: f.presence,
		Reset:    scheduler,
		Events:   f.publisher,
	}, Options{Location: time.UTC, Now: now, Started: f.now.Add(-time.Minute)})

	ctx := context.Background()
	service, err := f.store.CreateService(ctx, "General")
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	window, err := f.store.CreateWindow(ctx, store.WindowInput{Active: true})
	if err != nil {
		t.Fatalf("create window: %v", err)
	}
	f.service = service
	f.window = window
	return f
}

func (f *fixture) connect(t *testing.T, id string) (Conn, *hub.Client) {
	t.Helper()
	client := hub.NewClient(id, 32)
	f.hub.Register(client)
	return Conn{ID: id, RemoteIP: "192.168.1.20"}, client
}

func (f *fixture) send(t *testing.T, conn Conn, event string, data interface{}) {
	t.Helper()
	payload := map[string]interface{}{"event": event}
	if data != nil {
		payload["data"] = data
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f.server.Handle(context.Background(), conn, raw)
}

func next(t *testing.T, client *hub.Client) received {
	t.Helper()
	select {
	case raw := <-client.Send:
		var msg received
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("decode frame %s: %v", raw, err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatalf("no frame delivered")
		return received{}
	}
}

func expectNone(t *testing.T, client *hub.Client) {
	t.Helper()
	select {
	case raw := <-client.Send:
		t.Fatalf("unexpected frame %s", raw)
	default:
	}
}

func TestConnectSendsInitialData(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.engine.CreateTicket(context.Background(), f.service.ID, "local"); err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	conn, client := f.connect(t, "c1")
	f.server.Connect(context.Background(), conn)

	msg := next(t, client)
	if msg.Event != events.InitialData {
		t.Fatalf("expected initial-data, got %s", msg.Event)
	}
	pending, _ := msg.Data["pendingTickets"].([]interface{})
	all, _ := msg.Data["allTickets"].([]interface{})
	if len(pending) != 1 || len(all) != 1 {
		t.Fatalf("expected one ticket in snapshot, got pending=%d all=%d", len(pending), len(all))
	}
	if _, ok := msg.Data["serverTime"]; !ok {
		t.Fatalf("expected serverTime in initial data")
	}
}

func TestRegisterHeartbeatDisconnect(t *testing.T) {
	f := newFixture(t)
	conn, client := f.connect(t, "c1")

	f.send(t, conn, CmdHeartbeat, nil)
	msg := next(t, client)
	if msg.Event != events.Error || msg.Data["code"] != "not_registered" {
		t.Fatalf("expected not_registered error, got %s %v", msg.Event, msg.Data)
	}

	f.send(t, conn, CmdRegister, map[string]interface{}{
		"device_id":   "display-1",
		"device_type": models.DeviceDisplay,
		"ip_address":  "192.168.1.31",
	})
	msg = next(t, client)
	if msg.Event != events.DeviceRegistered || msg.Data["success"] != true {
		t.Fatalf("expected successful registration, got %s %v", msg.Event, msg.Data)
	}
	device, _ := msg.Data["device"].(map[string]interface{})
	if device["ip_address"] != "192.168.1.31" {
		t.Fatalf("expected reported address, got %v", device["ip_address"])
	}
	if !f.hub.InRoom(conn.ID, events.RoomDisplays) {
		t.Fatalf("expected display to join the displays room")
	}

	f.send(t, conn, CmdHeartbeat, nil)
	expectNone(t, client)

	f.server.Disconnect(context.Background(), conn)
	if f.presence.IsPresent("display-1") {
		t.Fatalf("expected presence entry removed on disconnect")
	}
	if f.publisher.count(events.DeviceDisconnected) != 1 {
		t.Fatalf("expected one device:disconnected event")
	}
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		data map[string]interface{}
	}{
		{"unknown type", map[string]interface{}{"device_id": "x", "device_type": "toaster", "ip_address": "192.168.1.40"}},
		{"missing address", map[string]interface{}{"device_id": "kiosk-9", "device_type": models.DeviceCustomer}},
		{"blank address", map[string]interface{}{"device_id": "kiosk-9", "device_type": models.DeviceCustomer, "ip_address": "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			conn, client := f.connect(t, "c1")
			f.send(t, conn, CmdRegister, tt.data)
			msg := next(t, client)
			if msg.Event != events.DeviceRegistered || msg.Data["success"] != false || msg.Data["code"] != "invalid_request" {
				t.Fatalf("expected invalid_request, got %s %v", msg.Event, msg.Data)
			}
			if f.presence.IsPresent(tt.data["device_id"].(string)) {
				t.Fatalf("expected rejected device to stay absent")
			}
		})
	}
}

func TestPing(t *testing.T) {
	f := newFixture(t)
	conn, client := f.connect(t, "c1")
	sent := f.now.Add(-25 * time.Millisecond).UnixMilli()
	f.send(t, conn, CmdPing, map[string]interface{}{"clientTime": sent})

	msg := next(t, client)
	if msg.Event != events.Pong {
		t.Fatalf("expected pong, got %s", msg.Event)
	}
	if msg.Data["clientTimestamp"] != float64(sent) {
		t.Fatalf("expected client timestamp echoed, got %v", msg.Data["clientTimestamp"])
	}
	if msg.Data["roundTripTime"] != float64(25) {
		t.Fatalf("expected round trip 25, got %v", msg.Data["roundTripTime"])
	}

	f.send(t, conn, CmdPing, nil)
	msg = next(t, client)
	if msg.Data["roundTripTime"] != nil {
		t.Fatalf("expected null round trip without client time, got %v", msg.Data["roundTripTime"])
	}
}

func TestTicketCommands(t *testing.T) {
	f := newFixture(t)
	conn, client := f.connect(t, "c1")

	f.send(t, conn, CmdCreateTicket, map[string]interface{}{"service_id": f.service.ID, "print_type": "local"})
	msg := next(t, client)
	if msg.Event != events.TicketCreated || msg.Data["success"] != true {
		t.Fatalf("expected ticket:created, got %s %v", msg.Event, msg.Data)
	}
	ticket, _ := msg.Data["ticket"].(map[string]interface{})
	ticketID := int64(ticket["id"].(float64))

	f.send(t, conn, CmdCallNext, map[string]interface{}{"window_id": f.window.ID})
	msg = next(t, client)
	if msg.Event != events.TicketCalled || msg.Data["success"] != true {
		t.Fatalf("expected ticket:called, got %s %v", msg.Event, msg.Data)
	}
	if f.publisher.count(events.DisplayPlaySound) != 1 {
		t.Fatalf("expected play-sound published for displays")
	}

	f.send(t, conn, CmdServeTicket, map[string]interface{}{"ticket_id": ticketID})
	msg = next(t, client)
	if msg.Event != events.TicketServed || msg.Data["success"] != true {
		t.Fatalf("expected ticket:served, got %s %v", msg.Event, msg.Data)
	}

	f.send(t, conn, CmdCallNext, map[string]interface{}{"window_id": f.window.ID})
	msg = next(t, client)
	if msg.Event != events.TicketCalled || msg.Data["success"] != false {
		t.Fatalf("expected empty queue reply, got %s %v", msg.Event, msg.Data)
	}

	f.send(t, conn, CmdServeAndNext, map[string]interface{}{"window_id": f.window.ID})
	msg = next(t, client)
	if msg.Event != events.TicketNext || msg.Data["ticket"] != nil {
		t.Fatalf("expected ticket:next with null ticket, got %s %v", msg.Event, msg.Data)
	}

	counts, err := f.engine.Counts(context.Background())
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Served != 1 || counts.Total != 1 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestCommandErrors(t *testing.T) {
	f := newFixture(t)
	conn, client := f.connect(t, "c1")

	tests := []struct {
		name  string
		raw   string
		event string
		code  string
	}{
		{"missing service", `{"event":"ticket:create","data":{}}`, events.TicketError, "invalid_request"},
		{"unknown service", `{"event":"ticket:create","data":{"service_id":999}}`, events.TicketError, "service_not_found"},
		{"unknown ticket", `{"event":"ticket:call","data":{"ticket_id":999,"window_id":1}}`, events.TicketError, "ticket_not_found"},
		{"malformed data", `{"event":"ticket:serve","data":[1,2]}`, events.TicketError, "invalid_request"},
		{"unknown event", `{"event":"ticket:explode","data":{}}`, events.Error, "unknown_event"},
		{"not a frame", `hello`, events.Error, "invalid_frame"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.server.Handle(context.Background(), conn, []byte(tt.raw))
			msg := next(t, client)
			if msg.Event != tt.event || msg.Data["code"] != tt.code {
				t.Fatalf("expected %s/%s, got %s %v", tt.event, tt.code, msg.Event, msg.Data)
			}
		})
	}
}

func TestAdminCommandsRequireAdminRoom(t *testing.T) {
	f := newFixture(t)
	plain, plainClient := f.connect(t, "plain")
	f.send(t, plain, CmdDevices, nil)
	if msg := next(t, plainClient); msg.Event != events.AdminUnauthorized {
		t.Fatalf("expected admin:unauthorized, got %s", msg.Event)
	}

	f.send(t, plain, CmdRegister, map[string]interface{}{"device_id": "window-1", "device_type": models.DeviceWindow, "ip_address": "192.168.1.41"})
	next(t, plainClient)

	admin, adminClient := f.connect(t, "admin")
	f.send(t, admin, CmdRegister, map[string]interface{}{"device_id": "console", "device_type": models.DeviceAdmin, "ip_address": "192.168.1.42"})
	if msg := next(t, adminClient); msg.Data["success"] != true {
		t.Fatalf("admin registration failed: %v", msg.Data)
	}

	if _, _, err := f.engine.CreateTicket(context.Background(), f.service.ID, "local"); err != nil {
		t.Fatalf("create ticket: %v", err)
	}

	f.send(t, admin, CmdStatistics, nil)
	msg := next(t, adminClient)
	if msg.Event != events.AdminStatistics {
		t.Fatalf("expected admin:statistics, got %s", msg.Event)
	}
	tickets, _ := msg.Data["tickets"].(map[string]interface{})
	if tickets["total"] != float64(1) || tickets["today"] != float64(1) {
		t.Fatalf("unexpected ticket statistics %v", tickets)
	}
	devices, _ := msg.Data["devices"].(map[string]interface{})
	if devices["connected"] != float64(2) {
		t.Fatalf("expected two connected devices, got %v", devices["connected"])
	}

	f.send(t, admin, CmdMessageDevice, map[string]interface{}{"device_id": "window-1", "message": "counter closing"})
	if msg := next(t, adminClient); msg.Event != events.AdminMessageSent {
		t.Fatalf("expected admin:message-sent, got %s", msg.Event)
	}
	delivered := next(t, plainClient)
	if delivered.Event != events.AdminMessage || delivered.Data["message"] != "counter closing" || delivered.Data["type"] != "info" {
		t.Fatalf("unexpected device message %s %v", delivered.Event, delivered.Data)
	}

	f.send(t, admin, CmdSystemReset, nil)
	msg = next(t, adminClient)
	if msg.Event != events.AdminResetCompleted || msg.Data["success"] != true {
		t.Fatalf("expected admin:reset-completed, got %s %v", msg.Event, msg.Data)
	}
	counts, err := f.engine.Counts(context.Background())
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Total != 0 {
		t.Fatalf("expected tickets cleared by reset, got %+v", counts)
	}
	if f.publisher.count(events.SystemReset) != 1 {
		t.Fatalf("expected system:reset broadcast")
	}
}
