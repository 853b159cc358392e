package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jeogo/casnos-sub001/internal/models"
	"github.com/jeogo/casnos-sub001/internal/store"
)

func TestCallNextFIFOAcrossServices(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	a, _ := st.CreateService(ctx, "A")
	b, _ := st.CreateService(ctx, "B")
	window, err := st.CreateWindow(ctx, store.WindowInput{Active: true})
	if err != nil {
		t.Fatalf("create window: %v", err)
	}

	mustCreate(t, st, store.CreateTicketInput{ServiceID: b.ID, CreatedAt: base.Add(2 * time.Second)})
	first := mustCreate(t, st, store.CreateTicketInput{ServiceID: a.ID, CreatedAt: base})
	mustCreate(t, st, store.CreateTicketInput{ServiceID: a.ID, CreatedAt: base.Add(time.Second)})

	called, ok, err := st.CallNext(ctx, store.CallNextInput{WindowID: window.ID})
	if err != nil || !ok {
		t.Fatalf("call next: ok=%v err=%v", ok, err)
	}
	if called.ID != first.ID {
		t.Fatalf("expected oldest ticket %d, got %d", first.ID, called.ID)
	}

	called, ok, err = st.CallNext(ctx, store.CallNextInput{ServiceID: b.ID, WindowID: window.ID})
	if err != nil || !ok {
		t.Fatalf("call next for service: ok=%v err=%v", ok, err)
	}
	if called.ServiceID != b.ID {
		t.Fatalf("expected service %d, got %d", b.ID, called.ServiceID)
	}
}

func TestTicketNumbersRestartAfterReset(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	service, _ := st.CreateService(ctx, "General")

	mustCreate(t, st, store.CreateTicketInput{ServiceID: service.ID})
	second := mustCreate(t, st, store.CreateTicketInput{ServiceID: service.ID})
	if second.TicketNumber != "002" {
		t.Fatalf("expected 002, got %s", second.TicketNumber)
	}

	result, err := st.ClaimDailyReset(ctx, store.DailyResetInput{Date: "2026-03-01", ResetTickets: true})
	if err != nil || !result.Claimed || result.TicketsCleared != 2 {
		t.Fatalf("unexpected claim result=%+v err=%v", result, err)
	}
	again, err := st.ClaimDailyReset(ctx, store.DailyResetInput{Date: "2026-03-01", ResetTickets: true})
	if err != nil || again.Claimed {
		t.Fatalf("expected second claim skipped, got %+v err=%v", again, err)
	}

	next := mustCreate(t, st, store.CreateTicketInput{ServiceID: service.ID})
	if next.TicketNumber != "001" {
		t.Fatalf("expected 001 after reset, got %s", next.TicketNumber)
	}
}

func TestServeRequiresCalled(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	service, _ := st.CreateService(ctx, "General")
	ticket := mustCreate(t, st, store.CreateTicketInput{ServiceID: service.ID})

	if _, err := st.ServeTicket(ctx, store.ServeTicketInput{TicketID: ticket.ID}); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if _, err := st.ServeTicket(ctx, store.ServeTicketInput{TicketID: 99}); !errors.Is(err, store.ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound, got %v", err)
	}
}

func TestEnsureDefaultService(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	service, created, err := st.EnsureDefaultService(ctx)
	if err != nil || !created || service.Name != models.DefaultServiceName {
		t.Fatalf("unexpected first ensure: %+v created=%v err=%v", service, created, err)
	}
	_, created, err = st.EnsureDefaultService(ctx)
	if err != nil || created {
		t.Fatalf("expected existing service to be kept, created=%v err=%v", created, err)
	}
}

func TestDeleteDeviceDetachesWindow(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	if _, err := st.UpsertDeviceOnline(ctx, store.DeviceInput{DeviceID: "w-1", DeviceType: models.DeviceWindow}); err != nil {
		t.Fatalf("upsert device: %v", err)
	}
	deviceID := "w-1"
	window, err := st.CreateWindow(ctx, store.WindowInput{DeviceID: &deviceID, Active: true})
	if err != nil {
		t.Fatalf("create window: %v", err)
	}
	if err := st.DeleteDevice(ctx, deviceID); err != nil {
		t.Fatalf("delete device: %v", err)
	}
	got, err := st.GetWindow(ctx, window.ID)
	if err != nil {
		t.Fatalf("get window: %v", err)
	}
	if got.DeviceID != nil {
		t.Fatalf("expected device to be detached")
	}
}

func TestDeleteWindowDetachesTickets(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	service, _ := st.CreateService(ctx, "A")
	window, err := st.CreateWindow(ctx, store.WindowInput{Active: true})
	if err != nil {
		t.Fatalf("create window: %v", err)
	}
	ticket := mustCreate(t, st, store.CreateTicketInput{ServiceID: service.ID})
	if _, err := st.CallTicket(ctx, store.CallTicketInput{TicketID: ticket.ID, WindowID: window.ID}); err != nil {
		t.Fatalf("call ticket: %v", err)
	}

	if err := st.DeleteWindow(ctx, window.ID); err != nil {
		t.Fatalf("delete window: %v", err)
	}
	got, err := st.GetTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if got.Status != models.StatusCalled || got.WindowID != nil {
		t.Fatalf("expected called ticket without window, got status=%s window=%v", got.Status, got.WindowID)
	}
}

func mustCreate(t *testing.T, st *Store, input store.CreateTicketInput) models.Ticket {
	t.Helper()
	ticket, err := st.CreateTicket(context.Background(), input)
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}
