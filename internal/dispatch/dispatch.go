package dispatch

import (
	"context"
	"log"

	"github.com/jeogo/casnos-sub001/internal/cache"
	"github.com/jeogo/casnos-sub001/internal/events"
	"github.com/jeogo/casnos-sub001/internal/models"
)

type Emitter interface {
	EmitAll(event string, data map[string]interface{})
	EmitRoom(room, event string, data map[string]interface{})
}

type Counter interface {
	Counts(ctx context.Context) (models.QueueCounts, error)
}

// Dispatcher turns domain events into hub emissions. Delivery problems are
// logged and never reach the caller.
type Dispatcher struct {
	emitter Emitter
	cache   *cache.Cache
}

func New(emitter Emitter, c *cache.Cache) *Dispatcher {
	return &Dispatcher{emitter: emitter, cache: c}
}

func (d *Dispatcher) Publish(ctx context.Context, evts ...events.Event) {
	for _, evt := range evts {
		if evt.Name == "" {
			continue
		}
		if evt.Room == "" {
			d.emitter.EmitAll(evt.Name, evt.Data)
		} else {
			d.emitter.EmitRoom(evt.Room, evt.Name, evt.Data)
		}
		if evt.Name == events.QueueUpdated {
			d.mirrorCounts(ctx, evt.Data)
		}
	}
}

// QueueHeartbeat re-broadcasts the current counts to everyone.
func (d *Dispatcher) QueueHeartbeat(ctx context.Context, counter Counter) error {
	counts, err := counter.Counts(ctx)
	if err != nil {
		return err
	}
	d.Publish(ctx, events.Queue(counts))
	return nil
}

func (d *Dispatcher) mirrorCounts(ctx context.Context, data map[string]interface{}) {
	if d.cache == nil {
		return
	}
	counts := models.QueueCounts{
		Pending: intValue(data["pending"]),
		Called:  intValue(data["called"]),
		Served:  intValue(data["served"]),
		Total:   intValue(data["total"]),
	}
	if err := d.cache.SaveQueueCounts(ctx, counts); err != nil {
		log.Printf("cache queue counts: %v", err)
	}
}

func intValue(value interface{}) int {
	if v, ok := value.(int); ok {
		return v
	}
	return 0
}
