package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/jeogo/casnos-sub001/internal/models"
	"github.com/jeogo/casnos-sub001/internal/printing"
	"github.com/jeogo/casnos-sub001/internal/store"
)

type createTicketRequest struct {
	ServiceID int64  `json:"service_id"`
	PrintType string `json:"print_type"`
}

type callTicketRequest struct {
	TicketID int64 `json:"ticket_id"`
	WindowID int64 `json:"window_id"`
}

type callNextRequest struct {
	ServiceID int64 `json:"service_id"`
	WindowID  int64 `json:"window_id"`
}

type serveAndNextRequest struct {
	CurrentTicketID *int64 `json:"current_ticket_id"`
	ServiceID       int64  `json:"service_id"`
	WindowID        int64  `json:"window_id"`
}

type printStatusRequest struct {
	PrintStatus  string `json:"print_status"`
	ErrorMessage string `json:"error_message"`
}

type serveAndNextResponse struct {
	Ticket *models.Ticket `json:"ticket"`
}

func (h *Handler) handleListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.store.ListTickets(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) handlePendingTickets(w http.ResponseWriter, r *http.Request) {
	var serviceID int64
	if raw := strings.TrimSpace(r.URL.Query().Get("service_id")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "service_id must be a positive integer")
			return
		}
		serviceID = parsed
	}
	tickets, err := h.store.ListPendingTickets(r.Context(), serviceID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ticket, err := h.store.GetTicket(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req createTicketRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ticket, evts, err := h.queue.CreateTicket(r.Context(), req.ServiceID, strings.TrimSpace(req.PrintType))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.publish(r.Context(), evts)
	writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) handleDeleteTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	evts, err := h.queue.DeleteTicket(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.publish(r.Context(), evts)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCallTicket(w http.ResponseWriter, r *http.Request) {
	var req callTicketRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TicketID <= 0 || req.WindowID <= 0 {
		h.fail(w, r, fmt.Errorf("%w: ticket_id and window_id are required", store.ErrValidation))
		return
	}
	ticket, evts, err := h.queue.CallTicket(r.Context(), req.TicketID, req.WindowID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.publish(r.Context(), evts)
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	var req callNextRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ticket, evts, err := h.queue.CallNext(r.Context(), req.ServiceID, req.WindowID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.publish(r.Context(), evts)
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleServeTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ticket, evts, err := h.queue.ServeTicket(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.publish(r.Context(), evts)
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleServeAndNext(w http.ResponseWriter, r *http.Request) {
	var req serveAndNextRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ticket, evts, err := h.queue.ServeAndNext(r.Context(), req.CurrentTicketID, req.ServiceID, req.WindowID)
	h.publish(r.Context(), evts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, serveAndNextResponse{Ticket: ticket})
}

func (h *Handler) handlePrintStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req printStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ticket, evts, err := h.queue.UpdatePrintStatus(r.Context(), id, strings.TrimSpace(req.PrintStatus), req.ErrorMessage)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.publish(r.Context(), evts)
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handlePrintCommit(w http.ResponseWriter, r *http.Request) {
	var req printing.CommitInput
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ServiceID <= 0 {
		h.fail(w, r, fmt.Errorf("%w: service_id is required", store.ErrValidation))
		return
	}
	ticket, evts, err := h.printing.Commit(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.publish(r.Context(), evts)
	writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := h.queue.Counts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}
