package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeogo/casnos-sub001/internal/models"
	"github.com/jeogo/casnos-sub001/internal/store"
)

const ticketNumberPad = 3

// Store keeps the whole catalogue in process memory. It serves deployments
// without DB_DSN and the engine tests.
type Store struct {
	mu sync.Mutex

	now func() time.Time

	services       map[int64]models.Service
	windows        map[int64]models.Window
	devices        map[string]models.Device
	printers       map[string]map[string]models.DevicePrinter
	tickets        map[int64]models.Ticket
	resets         map[string]models.DailyReset
	nextServiceID  int64
	nextWindowID   int64
	nextDeviceID   int64
	nextPrinterID  int64
	nextResetID    int64
	maintainCalled int
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		now:      func() time.Time { return time.Now().UTC() },
		services: map[int64]models.Service{},
		windows:  map[int64]models.Window{},
		devices:  map[string]models.Device{},
		printers: map[string]map[string]models.DevicePrinter{},
		tickets:  map[int64]models.Ticket{},
		resets:   map[string]models.DailyReset{},
	}
}

// SetClock replaces the timestamp source used for rows the caller did not
// stamp itself.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// MaintainCount reports how many times Maintain ran.
func (s *Store) MaintainCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maintainCalled
}

func (s *Store) ListServices(ctx context.Context) ([]models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	services := make([]models.Service, 0, len(s.services))
	for _, service := range s.services {
		services = append(services, service)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].ID < services[j].ID })
	return services, nil
}

func (s *Store) GetService(ctx context.Context, id int64) (models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	service, ok := s.services[id]
	if !ok {
		return models.Service{}, store.ErrServiceNotFound
	}
	return service, nil
}

func (s *Store) CreateService(ctx context.Context, name string) (models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createServiceLocked(name)
}

func (s *Store) createServiceLocked(name string) (models.Service, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Service{}, store.ErrValidation
	}
	for _, existing := range s.services {
		if existing.Name == name {
			return models.Service{}, store.ErrDuplicateService
		}
	}
	s.nextServiceID++
	now := s.now()
	service := models.Service{ID: s.nextServiceID, Name: name, CreatedAt: now, UpdatedAt: now}
	s.services[service.ID] = service
	return service, nil
}

func (s *Store) UpdateService(ctx context.Context, id int64, name string) (models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Service{}, store.ErrValidation
	}
	service, ok := s.services[id]
	if !ok {
		return models.Service{}, store.ErrServiceNotFound
	}
	for _, existing := range s.services {
		if existing.ID != id && existing.Name == name {
			return models.Service{}, store.ErrDuplicateService
		}
	}
	service.Name = name
	service.UpdatedAt = s.now()
	s.services[id] = service
	return service, nil
}

func (s *Store) DeleteService(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[id]; !ok {
		return store.ErrServiceNotFound
	}
	delete(s.services, id)
	for ticketID, ticket := range s.tickets {
		if ticket.ServiceID == id {
			delete(s.tickets, ticketID)
		}
	}
	for windowID, window := range s.windows {
		if window.ServiceID != nil && *window.ServiceID == id {
			window.ServiceID = nil
			s.windows[windowID] = window
		}
	}
	return nil
}

func (s *Store) EnsureDefaultService(ctx context.Context) (models.Service, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.services) > 0 {
		var first models.Service
		for _, service := range s.services {
			if first.ID == 0 || service.ID < first.ID {
				first = service
			}
		}
		return first, false, nil
	}
	service, err := s.createServiceLocked(models.DefaultServiceName)
	if err != nil {
		return models.Service{}, false, err
	}
	return service, true, nil
}

func (s *Store) ListWindows(ctx context.Context) ([]models.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	windows := make([]models.Window, 0, len(s.windows))
	for _, window := range s.windows {
		windows = append(windows, copyWindow(window))
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].ID < windows[j].ID })
	return windows, nil
}

func (s *Store) GetWindow(ctx context.Context, id int64) (models.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	window, ok := s.windows[id]
	if !ok {
		return models.Window{}, store.ErrWindowNotFound
	}
	return copyWindow(window), nil
}

func (s *Store) GetWindowByDevice(ctx context.Context, deviceID string) (models.Window, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found models.Window
	for _, window := range s.windows {
		if window.DeviceID == nil || *window.DeviceID != deviceID {
			continue
		}
		if found.ID == 0 || window.ID < found.ID {
			found = window
		}
	}
	if found.ID == 0 {
		return models.Window{}, false, nil
	}
	return copyWindow(found), true, nil
}

func (s *Store) CreateWindow(ctx context.Context, input store.WindowInput) (models.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	serviceID, deviceID, err := s.windowRefsLocked(input)
	if err != nil {
		return models.Window{}, err
	}
	s.nextWindowID++
	now := s.now()
	window := models.Window{ID: s.nextWindowID, ServiceID: serviceID, DeviceID: deviceID, Active: input.Active, CreatedAt: now, UpdatedAt: now}
	s.windows[window.ID] = window
	return copyWindow(window), nil
}

func (s *Store) UpdateWindow(ctx context.Context, id int64, input store.WindowInput) (models.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	window, ok := s.windows[id]
	if !ok {
		return models.Window{}, store.ErrWindowNotFound
	}
	serviceID, deviceID, err := s.windowRefsLocked(input)
	if err != nil {
		return models.Window{}, err
	}
	window.ServiceID = serviceID
	window.DeviceID = deviceID
	window.Active = input.Active
	window.UpdatedAt = s.now()
	s.windows[id] = window
	return copyWindow(window), nil
}

func (s *Store) windowRefsLocked(input store.WindowInput) (*int64, *string, error) {
	var serviceID *int64
	if input.ServiceID != nil && *input.ServiceID != 0 {
		if _, ok := s.services[*input.ServiceID]; !ok {
			return nil, nil, fmt.Errorf("%w: unknown service or device", store.ErrValidation)
		}
		id := *input.ServiceID
		serviceID = &id
	}
	var deviceID *string
	if input.DeviceID != nil && strings.TrimSpace(*input.DeviceID) != "" {
		if _, ok := s.devices[*input.DeviceID]; !ok {
			return nil, nil, fmt.Errorf("%w: unknown service or device", store.ErrValidation)
		}
		id := *input.DeviceID
		deviceID = &id
	}
	return serviceID, deviceID, nil
}

func (s *Store) SetWindowActive(ctx context.Context, id int64, active bool) (models.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	window, ok := s.windows[id]
	if !ok {
		return models.Window{}, store.ErrWindowNotFound
	}
	window.Active = active
	window.UpdatedAt = s.now()
	s.windows[id] = window
	return copyWindow(window), nil
}

func (s *Store) DeleteWindow(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[id]; !ok {
		return store.ErrWindowNotFound
	}
	delete(s.windows, id)
	// Same as ON DELETE SET NULL: called and served tickets keep their
	// status but lose the window.
	for ticketID, ticket := range s.tickets {
		if ticket.WindowID != nil && *ticket.WindowID == id {
			ticket.WindowID = nil
			s.tickets[ticketID] = ticket
		}
	}
	return nil
}

func (s *Store) ListDevices(ctx context.Context) ([]models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	devices := make([]models.Device, 0, len(s.devices))
	for _, device := range s.devices {
		devices = append(devices, device)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

func (s *Store) GetDevice(ctx context.Context, deviceID string) (models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	device, ok := s.devices[deviceID]
	if !ok {
		return models.Device{}, store.ErrDeviceNotFound
	}
	return device, nil
}

func (s *Store) UpsertDeviceOnline(ctx context.Context, input store.DeviceInput) (models.Device, error) {
	if input.DeviceID == "" || !models.ValidDeviceType(input.DeviceType) {
		return models.Device{}, store.ErrValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	device, ok := s.devices[input.DeviceID]
	if !ok {
		s.nextDeviceID++
		device = models.Device{ID: s.nextDeviceID, DeviceID: input.DeviceID, CreatedAt: now}
	}
	device.Name = input.Name
	device.IPAddress = input.IPAddress
	device.DeviceType = input.DeviceType
	device.Status = models.DeviceOnline
	device.UpdatedAt = now
	s.devices[input.DeviceID] = device
	return device, nil
}

func (s *Store) SetDeviceStatus(ctx context.Context, deviceID, status string) (models.Device, error) {
	if !models.ValidDeviceStatus(status) {
		return models.Device{}, store.ErrValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	device, ok := s.devices[deviceID]
	if !ok {
		return models.Device{}, store.ErrDeviceNotFound
	}
	device.Status = status
	device.UpdatedAt = s.now()
	s.devices[deviceID] = device
	return device, nil
}

func (s *Store) TouchDevice(ctx context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	device, ok := s.devices[deviceID]
	if !ok {
		return store.ErrDeviceNotFound
	}
	device.UpdatedAt = s.now()
	s.devices[deviceID] = device
	return nil
}

func (s *Store) DeleteDevice(ctx context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[deviceID]; !ok {
		return store.ErrDeviceNotFound
	}
	delete(s.devices, deviceID)
	delete(s.printers, deviceID)
	for windowID, window := range s.windows {
		if window.DeviceID != nil && *window.DeviceID == deviceID {
			window.DeviceID = nil
			s.windows[windowID] = window
		}
	}
	return nil
}

func (s *Store) ListDevicePrinters(ctx context.Context, deviceID string) ([]models.DevicePrinter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	printers := []models.DevicePrinter{}
	for _, printer := range s.printers[deviceID] {
		printers = append(printers, printer)
	}
	sort.Slice(printers, func(i, j int) bool {
		if printers[i].IsDefault != printers[j].IsDefault {
			return printers[i].IsDefault
		}
		return printers[i].ID < printers[j].ID
	})
	return printers, nil
}

func (s *Store) UpsertDevicePrinter(ctx context.Context, input store.DevicePrinterInput) (models.DevicePrinter, error) {
	if input.DeviceID == "" || input.PrinterID == "" {
		return models.DevicePrinter{}, store.ErrValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[input.DeviceID]; !ok {
		return models.DevicePrinter{}, store.ErrDeviceNotFound
	}
	byID := s.printers[input.DeviceID]
	if byID == nil {
		byID = map[string]models.DevicePrinter{}
		s.printers[input.DeviceID] = byID
	}
	now := s.now()
	if input.IsDefault {
		for id, printer := range byID {
			if printer.IsDefault {
				printer.IsDefault = false
				printer.UpdatedAt = now
				byID[id] = printer
			}
		}
	}
	printer, ok := byID[input.PrinterID]
	if !ok {
		s.nextPrinterID++
		printer = models.DevicePrinter{ID: s.nextPrinterID, DeviceID: input.DeviceID, PrinterID: input.PrinterID, CreatedAt: now}
	}
	printer.PrinterName = input.PrinterName
	if printer.PrinterName == "" {
		printer.PrinterName = input.PrinterID
	}
	printer.IsDefault = input.IsDefault
	printer.UpdatedAt = now
	byID[input.PrinterID] = printer
	return printer, nil
}

func (s *Store) DeleteDevicePrinter(ctx context.Context, deviceID, printerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.printers[deviceID]
	if _, ok := byID[printerID]; !ok {
		return store.ErrPrinterNotFound
	}
	delete(byID, printerID)
	return nil
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[input.ServiceID]; !ok {
		return models.Ticket{}, store.ErrServiceNotFound
	}
	var maxID int64
	for id := range s.tickets {
		if id > maxID {
			maxID = id
		}
	}
	seq := maxID + 1
	printStatus := input.PrintStatus
	if printStatus == "" {
		printStatus = models.PrintPending
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	ticket := models.Ticket{
		ID:           seq,
		TicketNumber: fmt.Sprintf("%0*d", ticketNumberPad, seq),
		ServiceID:    input.ServiceID,
		Status:       models.StatusPending,
		PrintStatus:  printStatus,
		CreatedAt:    createdAt,
	}
	s.tickets[seq] = ticket
	return copyTicket(ticket), nil
}

func (s *Store) GetTicket(ctx context.Context, id int64) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return copyTicket(ticket), nil
}

func (s *Store) ListTickets(ctx context.Context) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tickets := make([]models.Ticket, 0, len(s.tickets))
	for _, ticket := range s.tickets {
		tickets = append(tickets, copyTicket(ticket))
	}
	sort.Slice(tickets, func(i, j int) bool { return !fifoLess(tickets[i], tickets[j]) })
	return tickets, nil
}

func (s *Store) ListPendingTickets(ctx context.Context, serviceID int64) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked(serviceID), nil
}

func (s *Store) pendingLocked(serviceID int64) []models.Ticket {
	tickets := []models.Ticket{}
	for _, ticket := range s.tickets {
		if ticket.Status != models.StatusPending {
			continue
		}
		if serviceID > 0 && ticket.ServiceID != serviceID {
			continue
		}
		tickets = append(tickets, copyTicket(ticket))
	}
	sort.Slice(tickets, func(i, j int) bool { return fifoLess(tickets[i], tickets[j]) })
	return tickets
}

func (s *Store) CallTicket(ctx context.Context, input store.CallTicketInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[input.WindowID]; !ok {
		return models.Ticket{}, store.ErrWindowNotFound
	}
	ticket, ok := s.tickets[input.TicketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if !store.ValidTransition("call", ticket.Status) {
		return models.Ticket{}, store.ErrInvalidState
	}
	return s.markCalledLocked(ticket, input.WindowID, input.CalledAt), nil
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if input.ServiceID > 0 {
		if _, ok := s.services[input.ServiceID]; !ok {
			return models.Ticket{}, false, store.ErrServiceNotFound
		}
	}
	if _, ok := s.windows[input.WindowID]; !ok {
		return models.Ticket{}, false, store.ErrWindowNotFound
	}
	pending := s.pendingLocked(input.ServiceID)
	if len(pending) == 0 {
		return models.Ticket{}, false, nil
	}
	return s.markCalledLocked(s.tickets[pending[0].ID], input.WindowID, input.CalledAt), true, nil
}

func (s *Store) markCalledLocked(ticket models.Ticket, windowID int64, calledAt time.Time) models.Ticket {
	if calledAt.IsZero() {
		calledAt = s.now()
	}
	ticket.Status = models.StatusCalled
	ticket.CalledAt = &calledAt
	ticket.WindowID = &windowID
	s.tickets[ticket.ID] = ticket
	return copyTicket(ticket)
}

func (s *Store) ServeTicket(ctx context.Context, input store.ServeTicketInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[input.TicketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if !store.ValidTransition("serve", ticket.Status) {
		return models.Ticket{}, store.ErrInvalidState
	}
	servedAt := input.ServedAt
	if servedAt.IsZero() {
		servedAt = s.now()
	}
	ticket.Status = models.StatusServed
	ticket.ServedAt = &servedAt
	s.tickets[ticket.ID] = ticket
	return copyTicket(ticket), nil
}

func (s *Store) UpdatePrintStatus(ctx context.Context, id int64, printStatus string) (models.Ticket, error) {
	if !models.ValidPrintStatus(printStatus) {
		return models.Ticket{}, store.ErrValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	ticket.PrintStatus = printStatus
	s.tickets[id] = ticket
	return copyTicket(ticket), nil
}

func (s *Store) DeleteTicket(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[id]; !ok {
		return store.ErrTicketNotFound
	}
	delete(s.tickets, id)
	return nil
}

func (s *Store) CountTickets(ctx context.Context) (models.QueueCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts models.QueueCounts
	for _, ticket := range s.tickets {
		switch ticket.Status {
		case models.StatusPending:
			counts.Pending++
		case models.StatusCalled:
			counts.Called++
		case models.StatusServed:
			counts.Served++
		}
		counts.Total++
	}
	return counts, nil
}

func (s *Store) ClaimDailyReset(ctx context.Context, input store.DailyResetInput) (store.DailyResetResult, error) {
	if input.Date == "" {
		return store.DailyResetResult{}, store.ErrValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resets[input.Date]; ok {
		return store.DailyResetResult{Claimed: false}, nil
	}
	timestamp := input.Timestamp
	if timestamp.IsZero() {
		timestamp = s.now()
	}
	s.nextResetID++
	record := models.DailyReset{
		ID:                 s.nextResetID,
		LastResetDate:      input.Date,
		LastResetTimestamp: timestamp,
		TicketsReset:       input.ResetTickets,
		PDFsReset:          input.ResetPDFs,
		CacheReset:         input.ResetCache,
		CreatedAt:          s.now(),
	}
	s.resets[input.Date] = record
	result := store.DailyResetResult{Record: record, Claimed: true}
	if input.ResetTickets {
		result.TicketsCleared = int64(len(s.tickets))
		s.tickets = map[int64]models.Ticket{}
	}
	return result, nil
}

func (s *Store) DeleteDailyReset(ctx context.Context, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.resets, date)
	return nil
}

func (s *Store) GetDailyReset(ctx context.Context, date string) (models.DailyReset, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.resets[date]
	return record, ok, nil
}

func (s *Store) LastDailyReset(ctx context.Context) (models.DailyReset, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last models.DailyReset
	found := false
	for _, record := range s.resets {
		if !found || record.LastResetTimestamp.After(last.LastResetTimestamp) ||
			(record.LastResetTimestamp.Equal(last.LastResetTimestamp) && record.ID > last.ID) {
			last = record
			found = true
		}
	}
	return last, found, nil
}

func (s *Store) Maintain(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maintainCalled++
	return nil
}

func fifoLess(a, b models.Ticket) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func copyTicket(ticket models.Ticket) models.Ticket {
	if ticket.CalledAt != nil {
		value := *ticket.CalledAt
		ticket.CalledAt = &value
	}
	if ticket.ServedAt != nil {
		value := *ticket.ServedAt
		ticket.ServedAt = &value
	}
	if ticket.WindowID != nil {
		value := *ticket.WindowID
		ticket.WindowID = &value
	}
	return ticket
}

func copyWindow(window models.Window) models.Window {
	if window.ServiceID != nil {
		value := *window.ServiceID
		window.ServiceID = &value
	}
	if window.DeviceID != nil {
		value := *window.DeviceID
		window.DeviceID = &value
	}
	return window
}
