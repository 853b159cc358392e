package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/jeogo/casnos-sub001/internal/events"
	"github.com/jeogo/casnos-sub001/internal/models"
)

type emission struct {
	room  string
	event string
	data  map[string]interface{}
}

type fakeEmitter struct {
	emissions []emission
}

func (f *fakeEmitter) EmitAll(event string, data map[string]interface{}) {
	f.emissions = append(f.emissions, emission{event: event, data: data})
}

func (f *fakeEmitter) EmitRoom(room, event string, data map[string]interface{}) {
	f.emissions = append(f.emissions, emission{room: room, event: event, data: data})
}

type fakeCounter struct {
	counts models.QueueCounts
	err    error
}

func (f fakeCounter) Counts(ctx context.Context) (models.QueueCounts, error) {
	return f.counts, f.err
}

func TestPublishRoutesByRoom(t *testing.T) {
	emitter := &fakeEmitter{}
	d := New(emitter, nil)

	ticket := models.Ticket{ID: 1, TicketNumber: "001"}
	d.Publish(context.Background(), events.Called(ticket, "General", 2)...)

	if len(emitter.emissions) != 3 {
		t.Fatalf("expected 3 emissions, got %d", len(emitter.emissions))
	}
	for _, e := range emitter.emissions {
		switch e.event {
		case events.TicketCalled:
			if e.room != "" {
				t.Fatalf("ticket:called must go to all")
			}
		case events.DisplayTicketCalled, events.DisplayPlaySound:
			if e.room != events.RoomDisplays {
				t.Fatalf("%s must go to displays, got %q", e.event, e.room)
			}
		default:
			t.Fatalf("unexpected event %s", e.event)
		}
	}
}

func TestQueueHeartbeat(t *testing.T) {
	emitter := &fakeEmitter{}
	d := New(emitter, nil)

	if err := d.QueueHeartbeat(context.Background(), fakeCounter{counts: models.QueueCounts{Pending: 2, Total: 2}}); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if len(emitter.emissions) != 1 || emitter.emissions[0].event != events.QueueUpdated {
		t.Fatalf("expected a single queue:updated, got %+v", emitter.emissions)
	}
	if emitter.emissions[0].data["pending"] != 2 {
		t.Fatalf("unexpected pending %v", emitter.emissions[0].data["pending"])
	}

	boom := errors.New("boom")
	if err := d.QueueHeartbeat(context.Background(), fakeCounter{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected counter error, got %v", err)
	}
}
