package httpapi

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/jeogo/casnos-sub001/internal/events"
	"github.com/jeogo/casnos-sub001/internal/models"
	"github.com/jeogo/casnos-sub001/internal/store"

	"github.com/go-chi/chi/v5"
)

type serviceRequest struct {
	Name string `json:"name"`
}

type windowRequest struct {
	ServiceID *int64  `json:"service_id"`
	DeviceID  *string `json:"device_id"`
	Active    *bool   `json:"active"`
}

type printerRequest struct {
	PrinterID   string `json:"printer_id"`
	PrinterName string `json:"printer_name"`
	IsDefault   bool   `json:"is_default"`
}

// windowResponse reports the effective activity next to the stored flag.
type windowResponse struct {
	models.Window
	Active       bool `json:"active"`
	StoredActive bool `json:"stored_active"`
}

type deviceResponse struct {
	models.Device
	IsOnline bool `json:"is_online"`
}

func (h *Handler) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.store.ListServices(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

func (h *Handler) handleGetService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	service, err := h.store.GetService(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, service)
}

func (h *Handler) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	service, err := h.store.CreateService(r.Context(), name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.publish(r.Context(), []events.Event{events.Service(events.ServiceCreated, service)})
	writeJSON(w, http.StatusCreated, service)
}

func (h *Handler) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req serviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, requestID(r), http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	service, err := h.store.UpdateService(r.Context(), id, name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.publish(r.Context(), []events.Event{events.Service(events.ServiceUpdated, service)})
	writeJSON(w, http.StatusOK, service)
}

func (h *Handler) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	service, err := h.store.GetService(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.store.DeleteService(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	evts := []events.Event{events.Service(events.ServiceDeleted, service)}
	// The service's tickets went with it.
	if counts, err := h.queue.Counts(r.Context()); err != nil {
		log.Printf("queue counts after service delete service_id=%d: %v", id, err)
	} else {
		evts = append(evts, events.Queue(counts))
	}
	h.publish(r.Context(), evts)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) windowView(window models.Window) windowResponse {
	active := window.Active
	if h.presence != nil {
		active = h.presence.WindowActive(window)
	}
	return windowResponse{Window: window, Active: active, StoredActive: window.Active}
}

func (h *Handler) handleListWindows(w http.ResponseWriter, r *http.Request) {
	windows, err := h.store.ListWindows(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]windowResponse, 0, len(windows))
	for _, window := range windows {
		out = append(out, h.windowView(window))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleActiveWindows(w http.ResponseWriter, r *http.Request) {
	windows, err := h.store.ListWindows(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := []windowResponse{}
	for _, window := range windows {
		if view := h.windowView(window); view.Active {
			out = append(out, view)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetWindow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	window, err := h.store.GetWindow(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.windowView(window))
}

func (req windowRequest) input(current models.Window) store.WindowInput {
	input := store.WindowInput{ServiceID: current.ServiceID, DeviceID: current.DeviceID, Active: current.Active}
	if req.ServiceID != nil {
		input.ServiceID = req.ServiceID
	}
	if req.DeviceID != nil {
		deviceID := strings.TrimSpace(*req.DeviceID)
		input.DeviceID = &deviceID
	}
	if req.Active != nil {
		input.Active = *req.Active
	}
	return input
}

func (h *Handler) handleCreateWindow(w http.ResponseWriter, r *http.Request) {
	var req windowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	window, err := h.store.CreateWindow(r.Context(), req.input(models.Window{Active: true}))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.publish(r.Context(), []events.Event{events.WindowNew(window)})
	writeJSON(w, http.StatusCreated, h.windowView(window))
}

func (h *Handler) handleUpdateWindow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req windowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	current, err := h.store.GetWindow(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	window, err := h.store.UpdateWindow(r.Context(), id, req.input(current))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.publish(r.Context(), []events.Event{events.WindowStatus(window)})
	writeJSON(w, http.StatusOK, h.windowView(window))
}

func (h *Handler) handleDeleteWindow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteWindow(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deviceView(device models.Device) deviceResponse {
	online := false
	if h.presence != nil {
		online = h.presence.IsPresent(device.DeviceID)
	}
	return deviceResponse{Device: device, IsOnline: online}
}

func (h *Handler) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.store.ListDevices(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]deviceResponse, 0, len(devices))
	for _, device := range devices {
		out = append(out, h.deviceView(device))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleOnlineDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.store.ListDevices(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := []deviceResponse{}
	for _, device := range devices {
		if view := h.deviceView(device); view.IsOnline {
			out = append(out, view)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	device, err := h.store.GetDevice(r.Context(), chi.URLParam(r, "deviceID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.deviceView(device))
}

func (h *Handler) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteDevice(r.Context(), chi.URLParam(r, "deviceID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListPrinters(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if _, err := h.store.GetDevice(r.Context(), deviceID); err != nil {
		h.fail(w, r, err)
		return
	}
	printers, err := h.store.ListDevicePrinters(r.Context(), deviceID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, printers)
}

func (h *Handler) handleUpsertPrinter(w http.ResponseWriter, r *http.Request) {
	var req printerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.PrinterID = strings.TrimSpace(req.PrinterID)
	if req.PrinterID == "" {
		h.fail(w, r, fmt.Errorf("%w: printer_id is required", store.ErrValidation))
		return
	}
	printer, err := h.store.UpsertDevicePrinter(r.Context(), store.DevicePrinterInput{
		DeviceID:    chi.URLParam(r, "deviceID"),
		PrinterID:   req.PrinterID,
		PrinterName: strings.TrimSpace(req.PrinterName),
		IsDefault:   req.IsDefault,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, printer)
}

func (h *Handler) handleDeletePrinter(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteDevicePrinter(r.Context(), chi.URLParam(r, "deviceID"), chi.URLParam(r, "printerID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
