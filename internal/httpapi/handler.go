package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jeogo/casnos-sub001/internal/auth"
	"github.com/jeogo/casnos-sub001/internal/events"
	"github.com/jeogo/casnos-sub001/internal/models"
	"github.com/jeogo/casnos-sub001/internal/presence"
	"github.com/jeogo/casnos-sub001/internal/printing"
	"github.com/jeogo/casnos-sub001/internal/reset"
	"github.com/jeogo/casnos-sub001/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Queue interface {
	CreateTicket(ctx context.Context, serviceID int64, printType string) (models.Ticket, []events.Event, error)
	CallTicket(ctx context.Context, ticketID, windowID int64) (models.Ticket, []events.Event, error)
	CallNext(ctx context.Context, serviceID, windowID int64) (models.Ticket, []events.Event, error)
	ServeTicket(ctx context.Context, ticketID int64) (models.Ticket, []events.Event, error)
	ServeAndNext(ctx context.Context, currentID *int64, serviceID, windowID int64) (*models.Ticket, []events.Event, error)
	UpdatePrintStatus(ctx context.Context, ticketID int64, printStatus, errorMessage string) (models.Ticket, []events.Event, error)
	DeleteTicket(ctx context.Context, ticketID int64) ([]events.Event, error)
	Counts(ctx context.Context) (models.QueueCounts, error)
}

type Printing interface {
	Commit(ctx context.Context, input printing.CommitInput) (models.Ticket, []events.Event, error)
	Stats() printing.Stats
	CleanupTempFiles() (int, error)
}

type Resetter interface {
	Status(ctx context.Context) (reset.Status, error)
	Force(ctx context.Context) (reset.Result, error)
	UpdateConfig(patch reset.ConfigPatch) (reset.Config, error)
}

type Presence interface {
	Snapshot() []presence.Entry
	IsPresent(deviceID string) bool
	WindowActive(window models.Window) bool
}

type Publisher interface {
	Publish(ctx context.Context, evts ...events.Event)
}

type Authenticator interface {
	Enabled() bool
	Login(key string) (string, time.Time, error)
	Verify(token string) error
}

type Deps struct {
	Store    store.Store
	Queue    Queue
	Printing Printing
	Reset    Resetter
	Presence Presence
	Events   Publisher
	Auth     Authenticator
	// Clients reports live realtime connections.
	Clients func() int
	Started time.Time
	Now     func() time.Time
}

type Handler struct {
	store    store.Store
	queue    Queue
	printing Printing
	reset    Resetter
	presence Presence
	events   Publisher
	auth     Authenticator
	clients  func() int
	started  time.Time
	now      func() time.Time
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(deps Deps) *Handler {
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.Started.IsZero() {
		deps.Started = deps.Now()
	}
	if deps.Clients == nil {
		deps.Clients = func() int { return 0 }
	}
	return &Handler{
		store:    deps.Store,
		queue:    deps.Queue,
		printing: deps.Printing,
		reset:    deps.Reset,
		presence: deps.Presence,
		events:   deps.Events,
		auth:     deps.Auth,
		clients:  deps.Clients,
		started:  deps.Started,
		now:      deps.Now,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.handleHealth)
	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/services", h.handleListServices)
		r.Post("/services", h.handleCreateService)
		r.Get("/services/{id}", h.handleGetService)
		r.Put("/services/{id}", h.handleUpdateService)
		r.Delete("/services/{id}", h.handleDeleteService)

		r.Get("/windows", h.handleListWindows)
		r.Post("/windows", h.handleCreateWindow)
		r.Get("/windows/active", h.handleActiveWindows)
		r.Get("/windows/{id}", h.handleGetWindow)
		r.Put("/windows/{id}", h.handleUpdateWindow)
		r.Delete("/windows/{id}", h.handleDeleteWindow)

		r.Get("/devices", h.handleListDevices)
		r.Get("/devices/online", h.handleOnlineDevices)
		r.Get("/devices/{deviceID}", h.handleGetDevice)
		r.Delete("/devices/{deviceID}", h.handleDeleteDevice)
		r.Get("/devices/{deviceID}/printers", h.handleListPrinters)
		r.Post("/devices/{deviceID}/printers", h.handleUpsertPrinter)
		r.Delete("/devices/{deviceID}/printers/{printerID}", h.handleDeletePrinter)

		r.Get("/tickets", h.handleListTickets)
		r.Post("/tickets", h.handleCreateTicket)
		r.Get("/tickets/pending", h.handlePendingTickets)
		r.Post("/tickets/call", h.handleCallTicket)
		r.Post("/tickets/call-next", h.handleCallNext)
		r.Post("/tickets/serve-and-next", h.handleServeAndNext)
		r.Post("/tickets/print-commit", h.handlePrintCommit)
		r.Get("/tickets/{id}", h.handleGetTicket)
		r.Delete("/tickets/{id}", h.handleDeleteTicket)
		r.Post("/tickets/{id}/serve", h.handleServeTicket)
		r.Put("/tickets/{id}/print-status", h.handlePrintStatus)

		r.Get("/queue/status", h.handleQueueStatus)

		r.Post("/admin/login", h.handleAdminLogin)
		r.Group(func(r chi.Router) {
			r.Use(h.adminOnly)
			r.Get("/admin/daily-reset", h.handleResetStatus)
			r.Post("/admin/daily-reset/force", h.handleForceReset)
			r.Put("/admin/daily-reset/config", h.handleResetConfig)
			r.Get("/admin/print/stats", h.handlePrintStats)
			r.Post("/admin/print/cleanup", h.handlePrintCleanup)
			r.Get("/admin/system-status", h.handleSystemStatus)
		})
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": h.now(),
		"uptime":    int64(h.now().Sub(h.started).Seconds()),
	})
}

func (h *Handler) publish(ctx context.Context, evts []events.Event) {
	if h.events == nil || len(evts) == 0 {
		return
	}
	h.events.Publish(ctx, evts...)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("request path=%s request_id=%s: %v", r.URL.Path, requestID(r), err)
	}
	writeError(w, requestID(r), status, code, msg)
}

// failAdmin exposes the raw error text to operators.
func (h *Handler) failAdmin(w http.ResponseWriter, r *http.Request, err error) {
	status, code, _ := mapError(err)
	log.Printf("admin request path=%s request_id=%s: %v", r.URL.Path, requestID(r), err)
	writeError(w, requestID(r), status, code, err.Error())
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, store.ErrServiceNotFound):
		return http.StatusNotFound, "service_not_found", "service not found"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrWindowNotFound):
		return http.StatusNotFound, "window_not_found", "window not found"
	case errors.Is(err, store.ErrDeviceNotFound):
		return http.StatusNotFound, "device_not_found", "device not found"
	case errors.Is(err, store.ErrPrinterNotFound):
		return http.StatusNotFound, "printer_not_found", "printer not found"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "ticket state does not allow this action"
	case errors.Is(err, store.ErrDuplicateService):
		return http.StatusConflict, "duplicate_service", "service name already exists"
	case errors.Is(err, store.ErrNoTicket):
		return http.StatusConflict, "queue_empty", "no pending tickets"
	case errors.Is(err, store.ErrTransient):
		return http.StatusServiceUnavailable, "retry", "temporarily unavailable, retry"
	case errors.Is(err, printing.ErrPrintTimeout):
		return http.StatusGatewayTimeout, "print_timeout", "printer did not respond in time"
	case errors.Is(err, printing.ErrPrintFailed):
		return http.StatusBadGateway, "print_failed", "printing failed"
	case errors.Is(err, printing.ErrRenderFailed):
		return http.StatusBadGateway, "render_failed", "ticket rendering failed"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid admin key"
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid_token", "invalid or expired token"
	case errors.Is(err, auth.ErrDisabled):
		return http.StatusBadRequest, "admin_auth_disabled", "admin authentication is not configured"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func requestID(r *http.Request) string {
	return r.Header.Get(requestIDHeader)
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
