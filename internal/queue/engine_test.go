package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jeogo/casnos-sub001/internal/events"
	"github.com/jeogo/casnos-sub001/internal/models"
	"github.com/jeogo/casnos-sub001/internal/store"
	"github.com/jeogo/casnos-sub001/internal/store/memory"
)

type fixture struct {
	engine  *Engine
	store   *memory.Store
	service models.Service
	window  models.Window
	clock   *fakeClock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
	st := memory.NewStore()
	st.SetClock(clock.Now)
	service, err := st.CreateService(ctx, "Counter A")
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	window, err := st.CreateWindow(ctx, store.WindowInput{ServiceID: &service.ID, Active: true})
	if err != nil {
		t.Fatalf("create window: %v", err)
	}
	engine := NewEngine(st, Options{Now: clock.Now})
	return fixture{engine: engine, store: st, service: service, window: window, clock: clock}
}

func (f fixture) create(t *testing.T, printType string) models.Ticket {
	t.Helper()
	ticket, _, err := f.engine.CreateTicket(context.Background(), f.service.ID, printType)
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	f.clock.Advance(time.Second)
	return ticket
}

func TestCounterAScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.create(t, PrintTypeLocal)
	second := f.create(t, PrintTypeLocal)

	called, _, err := f.engine.CallNext(ctx, f.service.ID, f.window.ID)
	if err != nil {
		t.Fatalf("call next: %v", err)
	}
	if called.ID != first.ID {
		t.Fatalf("expected first ticket, got %s", called.TicketNumber)
	}

	if _, _, err := f.engine.ServeTicket(ctx, first.ID); err != nil {
		t.Fatalf("serve: %v", err)
	}

	called, evts, err := f.engine.CallNext(ctx, f.service.ID, f.window.ID)
	if err != nil {
		t.Fatalf("call next: %v", err)
	}
	if called.ID != second.ID {
		t.Fatalf("expected second ticket, got %s", called.TicketNumber)
	}

	last := evts[len(evts)-1]
	if last.Name != events.QueueUpdated {
		t.Fatalf("expected queue:updated last, got %s", last.Name)
	}
	want := map[string]int{"pending": 0, "called": 1, "served": 1, "total": 2}
	for key, value := range want {
		if last.Data[key] != value {
			t.Fatalf("expected %s=%d, got %v", key, value, last.Data[key])
		}
	}
}

func TestSecondCallIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.create(t, PrintTypeLocal)

	if _, _, err := f.engine.CallTicket(ctx, ticket.ID, f.window.ID); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, evts, err := f.engine.CallTicket(ctx, ticket.ID, f.window.ID)
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if len(evts) != 0 {
		t.Fatalf("expected no events on conflict, got %d", len(evts))
	}
}

func TestCalledTicketInvariants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.create(t, PrintTypeLocal)

	called, _, err := f.engine.CallTicket(ctx, ticket.ID, f.window.ID)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if called.CalledAt == nil || called.WindowID == nil || *called.WindowID != f.window.ID {
		t.Fatalf("called ticket missing window or timestamp: %+v", called)
	}

	served, _, err := f.engine.ServeTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if served.ServedAt == nil || served.CalledAt == nil || served.ServedAt.Before(*served.CalledAt) {
		t.Fatalf("served ticket timestamps out of order: %+v", served)
	}
	if _, _, err := f.engine.ServeTicket(ctx, ticket.ID); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected served to be terminal, got %v", err)
	}
}

func TestCallEmitsDisplayEvents(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, PrintTypeLocal)

	_, evts, err := f.engine.CallTicket(context.Background(), ticket.ID, f.window.ID)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	rooms := map[string]string{}
	for _, evt := range evts {
		rooms[evt.Name] = evt.Room
	}
	if rooms[events.DisplayTicketCalled] != events.RoomDisplays || rooms[events.DisplayPlaySound] != events.RoomDisplays {
		t.Fatalf("display events must target displays room: %v", rooms)
	}
	if room, ok := rooms[events.TicketCalled]; !ok || room != "" {
		t.Fatalf("ticket:called must go to all, got %q ok=%v", room, ok)
	}
}

func TestCallNextEmptyQueue(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.engine.CallNext(context.Background(), f.service.ID, f.window.ID); !errors.Is(err, store.ErrNoTicket) {
		t.Fatalf("expected ErrNoTicket, got %v", err)
	}
}

func TestCreateValidatesService(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.engine.CreateTicket(context.Background(), 77, PrintTypeLocal); !errors.Is(err, store.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
	if _, _, err := f.engine.CreateTicket(context.Background(), 0, PrintTypeLocal); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCreatePrintStatusByPrintType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	local, evts, err := f.engine.CreateTicket(ctx, f.service.ID, PrintTypeLocal)
	if err != nil {
		t.Fatalf("create local: %v", err)
	}
	if local.PrintStatus != models.PrintPrinting {
		t.Fatalf("expected printing, got %s", local.PrintStatus)
	}
	if countNamed(evts, events.PrintPendingInstant) != 0 {
		t.Fatalf("local print must not notify displays")
	}

	network, evts, err := f.engine.CreateTicket(ctx, f.service.ID, PrintTypeNetwork)
	if err != nil {
		t.Fatalf("create network: %v", err)
	}
	if network.PrintStatus != models.PrintPending {
		t.Fatalf("expected pending, got %s", network.PrintStatus)
	}
	if countNamed(evts, events.PrintPendingInstant) != 1 {
		t.Fatalf("expected one pending-instant event")
	}
}

func TestPendingInstantDedupe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.create(t, PrintTypeNetwork)

	_, evts, err := f.engine.UpdatePrintStatus(ctx, ticket.ID, models.PrintPending, "")
	if err != nil {
		t.Fatalf("update print status: %v", err)
	}
	if countNamed(evts, events.PrintPendingInstant) != 0 {
		t.Fatalf("expected duplicate pending-instant to be suppressed")
	}

	if _, _, err := f.engine.UpdatePrintStatus(ctx, ticket.ID, models.PrintFailed, "paper jam"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if f.engine.tracked(ticket.ID) {
		t.Fatalf("expected print_failed to clear tracking")
	}

	_, evts, err = f.engine.UpdatePrintStatus(ctx, ticket.ID, models.PrintPending, "")
	if err != nil {
		t.Fatalf("reprint: %v", err)
	}
	if countNamed(evts, events.PrintPendingInstant) != 1 {
		t.Fatalf("expected reprint to notify displays again")
	}
}

func TestCleanupDedupeExpires(t *testing.T) {
	f := newFixture(t)
	ticket := f.create(t, PrintTypeNetwork)

	if removed := f.engine.CleanupDedupe(); removed != 0 {
		t.Fatalf("expected nothing expired, removed %d", removed)
	}
	f.clock.Advance(11 * time.Minute)
	if removed := f.engine.CleanupDedupe(); removed != 1 {
		t.Fatalf("expected one expired entry, removed %d", removed)
	}
	if f.engine.tracked(ticket.ID) {
		t.Fatalf("expected entry to be gone")
	}
}

func TestServeAndNextSkipsFailedServe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.create(t, PrintTypeLocal)

	missing := int64(999)
	next, _, err := f.engine.ServeAndNext(ctx, &missing, f.service.ID, f.window.ID)
	if err != nil {
		t.Fatalf("serve and next: %v", err)
	}
	if next == nil || next.ID != pending.ID {
		t.Fatalf("expected pending ticket to be called, got %+v", next)
	}

	next, evts, err := f.engine.ServeAndNext(ctx, &pending.ID, f.service.ID, f.window.ID)
	if err != nil {
		t.Fatalf("serve and next: %v", err)
	}
	if next != nil {
		t.Fatalf("expected empty queue, got %+v", next)
	}
	if countNamed(evts, events.TicketServed) != 1 {
		t.Fatalf("expected served event even when queue is empty")
	}
}

func TestFIFOAcrossManyTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var created []models.Ticket
	for i := 0; i < 5; i++ {
		created = append(created, f.create(t, PrintTypeLocal))
	}
	for i := 0; i < 5; i++ {
		called, _, err := f.engine.CallNext(ctx, 0, f.window.ID)
		if err != nil {
			t.Fatalf("call next %d: %v", i, err)
		}
		if called.ID != created[i].ID {
			t.Fatalf("position %d: expected %s, got %s", i, created[i].TicketNumber, called.TicketNumber)
		}
	}
}

func countNamed(evts []events.Event, name string) int {
	count := 0
	for _, evt := range evts {
		if evt.Name == name {
			count++
		}
	}
	return count
}
