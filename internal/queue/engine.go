package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jeogo/casnos-sub001/internal/events"
	"github.com/jeogo/casnos-sub001/internal/metrics"
	"github.com/jeogo/casnos-sub001/internal/models"
	"github.com/jeogo/casnos-sub001/internal/store"
)

const (
	PrintTypeLocal   = "local"
	PrintTypeNetwork = "network"

	defaultDedupeTTL = 10 * time.Minute
)

type Store interface {
	store.TicketStore
	GetService(ctx context.Context, id int64) (models.Service, error)
}

type Options struct {
	DedupeTTL time.Duration
	Now       func() time.Time
}

// Engine owns the ticket lifecycle. It returns events for every mutation
// and never talks to connections itself.
type Engine struct {
	store     Store
	dedupeTTL time.Duration
	now       func() time.Time

	mu      sync.Mutex
	instant map[int64]instantEntry
}

type instantEntry struct {
	sentAt time.Time
	source string
}

func NewEngine(st Store, opts Options) *Engine {
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = defaultDedupeTTL
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		store:     st,
		dedupeTTL: opts.DedupeTTL,
		now:       opts.Now,
		instant:   map[int64]instantEntry{},
	}
}

func (e *Engine) CreateTicket(ctx context.Context, serviceID int64, printType string) (models.Ticket, []events.Event, error) {
	if serviceID <= 0 {
		return models.Ticket{}, nil, fmt.Errorf("%w: service_id is required", store.ErrValidation)
	}
	service, err := e.store.GetService(ctx, serviceID)
	if err != nil {
		return models.Ticket{}, nil, err
	}

	printStatus := models.PrintPending
	if printType == PrintTypeLocal {
		printStatus = models.PrintPrinting
	}
	ticket, err := e.store.CreateTicket(ctx, store.CreateTicketInput{
		ServiceID:   serviceID,
		PrintStatus: printStatus,
		CreatedAt:   e.now(),
	})
	if err != nil {
		return models.Ticket{}, nil, err
	}
	if printType == PrintTypeLocal {
		metrics.TicketsCreated.WithLabelValues(PrintTypeLocal).Inc()
	} else {
		metrics.TicketsCreated.WithLabelValues(PrintTypeNetwork).Inc()
	}

	evts := []events.Event{events.Created(ticket, service.Name)}
	if printType != PrintTypeLocal {
		if evt, ok := e.pendingInstant(ticket, service.Name, "createTicket-network"); ok {
			evts = append(evts, evt)
		}
	}
	return ticket, e.withCounts(ctx, evts), nil
}

// CommitPrinted stores a ticket whose paper copy already exists.
func (e *Engine) CommitPrinted(ctx context.Context, serviceID int64) (models.Ticket, []events.Event, error) {
	service, err := e.store.GetService(ctx, serviceID)
	if err != nil {
		return models.Ticket{}, nil, err
	}
	ticket, err := e.store.CreateTicket(ctx, store.CreateTicketInput{
		ServiceID:   serviceID,
		PrintStatus: models.PrintPrinted,
		CreatedAt:   e.now(),
	})
	if err != nil {
		return models.Ticket{}, nil, err
	}
	metrics.TicketsCreated.WithLabelValues("atomic").Inc()
	return ticket, e.withCounts(ctx, []events.Event{events.Created(ticket, service.Name)}), nil
}

func (e *Engine) CallTicket(ctx context.Context, ticketID, windowID int64) (models.Ticket, []events.Event, error) {
	if ticketID <= 0 || windowID <= 0 {
		return models.Ticket{}, nil, fmt.Errorf("%w: ticket_id and window_id are required", store.ErrValidation)
	}
	ticket, err := e.store.CallTicket(ctx, store.CallTicketInput{
		TicketID: ticketID,
		WindowID: windowID,
		CalledAt: e.now(),
	})
	if err != nil {
		return models.Ticket{}, nil, err
	}
	return ticket, e.withCounts(ctx, events.Called(ticket, e.serviceName(ctx, ticket.ServiceID), windowID)), nil
}

// CallNext claims the oldest pending ticket, optionally restricted to one
// service. An empty queue yields store.ErrNoTicket.
func (e *Engine) CallNext(ctx context.Context, serviceID, windowID int64) (models.Ticket, []events.Event, error) {
	if windowID <= 0 {
		return models.Ticket{}, nil, fmt.Errorf("%w: window_id is required", store.ErrValidation)
	}
	ticket, ok, err := e.store.CallNext(ctx, store.CallNextInput{
		ServiceID: serviceID,
		WindowID:  windowID,
		CalledAt:  e.now(),
	})
	if err != nil {
		return models.Ticket{}, nil, err
	}
	if !ok {
		return models.Ticket{}, nil, store.ErrNoTicket
	}
	return ticket, e.withCounts(ctx, events.Called(ticket, e.serviceName(ctx, ticket.ServiceID), windowID)), nil
}

func (e *Engine) ServeTicket(ctx context.Context, ticketID int64) (models.Ticket, []events.Event, error) {
	if ticketID <= 0 {
		return models.Ticket{}, nil, fmt.Errorf("%w: ticket_id is required", store.ErrValidation)
	}
	ticket, err := e.store.ServeTicket(ctx, store.ServeTicketInput{TicketID: ticketID, ServedAt: e.now()})
	if err != nil {
		return models.Ticket{}, nil, err
	}
	return ticket, e.withCounts(ctx, events.Served(ticket, e.serviceName(ctx, ticket.ServiceID), models.StatusCalled)), nil
}

// ServeAndNext serves currentID when given, then calls the next ticket of
// the service. A failed serve is logged and does not block the call. A nil
// ticket means the queue was empty.
func (e *Engine) ServeAndNext(ctx context.Context, currentID *int64, serviceID, windowID int64) (*models.Ticket, []events.Event, error) {
	if windowID <= 0 {
		return nil, nil, fmt.Errorf("%w: window_id is required", store.ErrValidation)
	}
	var evts []events.Event
	if currentID != nil && *currentID > 0 {
		served, err := e.store.ServeTicket(ctx, store.ServeTicketInput{TicketID: *currentID, ServedAt: e.now()})
		if err != nil {
			log.Printf("serve-and-next: serve ticket_id=%d failed: %v", *currentID, err)
		} else {
			evts = append(evts, events.Served(served, e.serviceName(ctx, served.ServiceID), models.StatusCalled)...)
		}
	}

	next, ok, err := e.store.CallNext(ctx, store.CallNextInput{
		ServiceID: serviceID,
		WindowID:  windowID,
		CalledAt:  e.now(),
	})
	if err != nil {
		if len(evts) > 0 {
			// the serve already committed, so its events still go out
			return nil, e.withCounts(ctx, evts), err
		}
		return nil, nil, err
	}
	if !ok {
		if len(evts) == 0 {
			return nil, nil, nil
		}
		return nil, e.withCounts(ctx, evts), nil
	}
	evts = append(evts, events.Called(next, e.serviceName(ctx, next.ServiceID), windowID)...)
	return &next, e.withCounts(ctx, evts), nil
}

func (e *Engine) UpdatePrintStatus(ctx context.Context, ticketID int64, printStatus, errorMessage string) (models.Ticket, []events.Event, error) {
	if !models.ValidPrintStatus(printStatus) {
		return models.Ticket{}, nil, fmt.Errorf("%w: unknown print_status %q", store.ErrValidation, printStatus)
	}
	ticket, err := e.store.UpdatePrintStatus(ctx, ticketID, printStatus)
	if err != nil {
		return models.Ticket{}, nil, err
	}

	evts := []events.Event{events.PrintStatus(ticket, errorMessage)}
	switch printStatus {
	case models.PrintPending:
		if evt, ok := e.pendingInstant(ticket, e.serviceName(ctx, ticket.ServiceID), "updatePrintStatus-reprint"); ok {
			evts = append(evts, evt)
		}
	case models.PrintPrinted, models.PrintFailed:
		e.untrack(ticket.ID)
	}
	return ticket, e.withCounts(ctx, evts), nil
}

func (e *Engine) DeleteTicket(ctx context.Context, ticketID int64) ([]events.Event, error) {
	if err := e.store.DeleteTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	e.untrack(ticketID)
	return e.withCounts(ctx, nil), nil
}

func (e *Engine) Counts(ctx context.Context) (models.QueueCounts, error) {
	return e.store.CountTickets(ctx)
}

// CleanupDedupe drops pending-instant entries older than the de-dup window
// and returns how many were removed.
func (e *Engine) CleanupDedupe() int {
	cutoff := e.now().Add(-e.dedupeTTL)
	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for id, entry := range e.instant {
		if entry.sentAt.Before(cutoff) {
			delete(e.instant, id)
			removed++
		}
	}
	return removed
}

// ResetDedupe forgets every pending-instant entry. Used after the ticket
// table is cleared.
func (e *Engine) ResetDedupe() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.instant = map[int64]instantEntry{}
}

func (e *Engine) pendingInstant(ticket models.Ticket, serviceName, source string) (events.Event, bool) {
	now := e.now()
	e.mu.Lock()
	entry, tracked := e.instant[ticket.ID]
	if tracked && now.Sub(entry.sentAt) < e.dedupeTTL {
		e.mu.Unlock()
		return events.Event{}, false
	}
	e.instant[ticket.ID] = instantEntry{sentAt: now, source: source}
	e.mu.Unlock()

	return events.PendingInstant(ticket, models.TicketData{
		ID:           ticket.ID,
		TicketNumber: ticket.TicketNumber,
		ServiceID:    ticket.ServiceID,
		ServiceName:  serviceName,
		CreatedAt:    ticket.CreatedAt,
		Position:     1,
		PrintSource:  "display",
	}), true
}

func (e *Engine) untrack(ticketID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.instant, ticketID)
}

func (e *Engine) tracked(ticketID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.instant[ticketID]
	return ok
}

func (e *Engine) serviceName(ctx context.Context, serviceID int64) string {
	service, err := e.store.GetService(ctx, serviceID)
	if err != nil {
		if !errors.Is(err, store.ErrServiceNotFound) {
			log.Printf("lookup service_id=%d: %v", serviceID, err)
		}
		return ""
	}
	return service.Name
}

func (e *Engine) withCounts(ctx context.Context, evts []events.Event) []events.Event {
	counts, err := e.store.CountTickets(ctx)
	if err != nil {
		log.Printf("count tickets: %v", err)
		return evts
	}
	return append(evts, events.Queue(counts))
}
