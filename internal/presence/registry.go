package presence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeogo/casnos-sub001/internal/cache"
	"github.com/jeogo/casnos-sub001/internal/events"
	"github.com/jeogo/casnos-sub001/internal/models"
	"github.com/jeogo/casnos-sub001/internal/store"
)

const (
	ReasonDisconnect = "client_disconnect"
	ReasonStale      = "stale_connection"

	defaultStaleAfter   = 2 * time.Minute
	defaultOnlineWindow = 60 * time.Second
)

var (
	ErrNotRegistered = errors.New("connection is not registered")
	ErrUnauthorized  = errors.New("admin token required")
)

type Store interface {
	UpsertDeviceOnline(ctx context.Context, input store.DeviceInput) (models.Device, error)
	SetDeviceStatus(ctx context.Context, deviceID, status string) (models.Device, error)
	TouchDevice(ctx context.Context, deviceID string) error
	GetWindowByDevice(ctx context.Context, deviceID string) (models.Window, bool, error)
	CreateWindow(ctx context.Context, input store.WindowInput) (models.Window, error)
	SetWindowActive(ctx context.Context, id int64, active bool) (models.Window, error)
}

type Rooms interface {
	Join(clientID, room string) bool
	Leave(clientID, room string)
}

type Sink interface {
	Publish(ctx context.Context, evts ...events.Event)
}

type Verifier interface {
	Enabled() bool
	Verify(token string) error
}

type RegisterInput struct {
	DeviceID   string                 `json:"device_id"`
	Name       string                 `json:"name"`
	IPAddress  string                 `json:"ip_address"`
	DeviceType string                 `json:"device_type"`
	Info       map[string]interface{} `json:"info,omitempty"`
	Token      string                 `json:"token,omitempty"`
}

func (in *RegisterInput) Validate() error {
	in.DeviceID = strings.TrimSpace(in.DeviceID)
	in.IPAddress = strings.TrimSpace(in.IPAddress)
	in.DeviceType = strings.TrimSpace(in.DeviceType)
	in.Name = strings.TrimSpace(in.Name)
	if in.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", store.ErrValidation)
	}
	if in.IPAddress == "" {
		return fmt.Errorf("%w: ip_address is required", store.ErrValidation)
	}
	if !models.ValidDeviceType(in.DeviceType) {
		return fmt.Errorf("%w: unknown device_type %q", store.ErrValidation, in.DeviceType)
	}
	if in.Name == "" {
		in.Name = in.DeviceID
	}
	return nil
}

type Entry struct {
	DeviceID     string                 `json:"device_id"`
	ConnectionID string                 `json:"connection_id"`
	Role         string                 `json:"device_type"`
	Name         string                 `json:"name"`
	IPAddress    string                 `json:"ip_address"`
	ConnectedAt  time.Time              `json:"connected_at"`
	LastSeenAt   time.Time              `json:"last_seen_at"`
	Info         map[string]interface{} `json:"info,omitempty"`
	IsOnline     bool                   `json:"isOnline"`
}

type Options struct {
	StaleAfter   time.Duration
	OnlineWindow time.Duration
	Cache        *cache.Cache
	Verifier     Verifier
	Now          func() time.Time
}

// Registry tracks live device connections. Only Register, Heartbeat,
// Disconnect and Sweep mutate it; readers get copies.
type Registry struct {
	store        Store
	rooms        Rooms
	sink         Sink
	cache        *cache.Cache
	verifier     Verifier
	staleAfter   time.Duration
	onlineWindow time.Duration
	now          func() time.Time

	mu      sync.RWMutex
	entries map[string]*Entry
	byConn  map[string]string
}

func NewRegistry(st Store, rooms Rooms, sink Sink, opts Options) *Registry {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}
	if opts.OnlineWindow <= 0 {
		opts.OnlineWindow = defaultOnlineWindow
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Registry{
		store:        st,
		rooms:        rooms,
		sink:         sink,
		cache:        opts.Cache,
		verifier:     opts.Verifier,
		staleAfter:   opts.StaleAfter,
		onlineWindow: opts.OnlineWindow,
		now:          opts.Now,
		entries:      map[string]*Entry{},
		byConn:       map[string]string{},
	}
}

func (r *Registry) Register(ctx context.Context, connID string, input RegisterInput) (models.Device, error) {
	if err := input.Validate(); err != nil {
		return models.Device{}, err
	}
	if input.DeviceType == models.DeviceAdmin && r.verifier != nil && r.verifier.Enabled() {
		if err := r.verifier.Verify(input.Token); err != nil {
			return models.Device{}, ErrUnauthorized
		}
	}

	device, err := r.store.UpsertDeviceOnline(ctx, store.DeviceInput{
		DeviceID:   input.DeviceID,
		Name:       input.Name,
		IPAddress:  input.IPAddress,
		DeviceType: input.DeviceType,
	})
	if err != nil {
		return models.Device{}, err
	}

	now := r.now()
	entry := &Entry{
		DeviceID:     device.DeviceID,
		ConnectionID: connID,
		Role:         device.DeviceType,
		Name:         device.Name,
		IPAddress:    device.IPAddress,
		ConnectedAt:  now,
		LastSeenAt:   now,
		Info:         input.Info,
	}
	r.mu.Lock()
	if previous, ok := r.entries[device.DeviceID]; ok && previous.ConnectionID != connID {
		delete(r.byConn, previous.ConnectionID)
	}
	var replaced *Entry
	if previousDevice, ok := r.byConn[connID]; ok && previousDevice != device.DeviceID {
		replaced = r.entries[previousDevice]
		delete(r.entries, previousDevice)
	}
	r.entries[device.DeviceID] = entry
	r.byConn[connID] = device.DeviceID
	r.mu.Unlock()

	// A connection that switches identity takes its old device offline.
	if replaced != nil {
		r.rooms.Leave(connID, events.DeviceRoom(replaced.DeviceID))
		if replaced.Role != device.DeviceType {
			r.rooms.Leave(connID, events.TypeRoom(replaced.Role))
			if room := events.CoarseRoom(replaced.Role); room != "" {
				r.rooms.Leave(connID, room)
			}
		}
		r.offline(ctx, replaced.DeviceID, ReasonDisconnect)
	}

	r.rooms.Join(connID, events.DeviceRoom(device.DeviceID))
	r.rooms.Join(connID, events.TypeRoom(device.DeviceType))
	if room := events.CoarseRoom(device.DeviceType); room != "" {
		r.rooms.Join(connID, room)
	}

	evts := []events.Event{events.DeviceOnline(device)}
	if evt, ok := r.activateWindow(ctx, device); ok {
		evts = append(evts, evt)
	}
	r.sink.Publish(ctx, evts...)
	r.mirror(ctx, *entry)
	return device, nil
}

func (r *Registry) activateWindow(ctx context.Context, device models.Device) (events.Event, bool) {
	window, found, err := r.store.GetWindowByDevice(ctx, device.DeviceID)
	if err != nil {
		log.Printf("window lookup device_id=%s: %v", device.DeviceID, err)
		return events.Event{}, false
	}
	if found {
		updated, err := r.store.SetWindowActive(ctx, window.ID, true)
		if err != nil {
			log.Printf("activate window_id=%d: %v", window.ID, err)
			return events.Event{}, false
		}
		return events.WindowStatus(updated), true
	}
	if device.DeviceType != models.DeviceWindow {
		return events.Event{}, false
	}
	deviceID := device.DeviceID
	created, err := r.store.CreateWindow(ctx, store.WindowInput{DeviceID: &deviceID, Active: true})
	if err != nil {
		log.Printf("create window device_id=%s: %v", device.DeviceID, err)
		return events.Event{}, false
	}
	return events.WindowNew(created), true
}

func (r *Registry) Heartbeat(ctx context.Context, connID string) error {
	r.mu.Lock()
	deviceID, ok := r.byConn[connID]
	var entry Entry
	if ok {
		current := r.entries[deviceID]
		current.LastSeenAt = r.now()
		entry = *current
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotRegistered
	}

	if err := r.store.TouchDevice(ctx, deviceID); err != nil {
		log.Printf("touch device_id=%s: %v", deviceID, err)
	}
	r.sink.Publish(ctx, events.DeviceStatus(deviceID, models.DeviceOnline))
	r.mirror(ctx, entry)
	return nil
}

// Disconnect drops the connection's entry and takes its device offline. A
// connection that was superseded by a newer registration is ignored.
func (r *Registry) Disconnect(ctx context.Context, connID, reason string) bool {
	if reason == "" {
		reason = ReasonDisconnect
	}
	r.mu.Lock()
	deviceID, ok := r.byConn[connID]
	if ok {
		delete(r.byConn, connID)
		if entry, exists := r.entries[deviceID]; exists && entry.ConnectionID == connID {
			delete(r.entries, deviceID)
		} else {
			ok = false
		}
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.offline(ctx, deviceID, reason)
	return true
}

// Sweep removes entries not seen within the stale threshold and returns
// their device ids.
func (r *Registry) Sweep(ctx context.Context) []string {
	now := r.now()
	var stale []string
	r.mu.Lock()
	for deviceID, entry := range r.entries {
		if now.Sub(entry.LastSeenAt) > r.staleAfter {
			stale = append(stale, deviceID)
			delete(r.byConn, entry.ConnectionID)
			delete(r.entries, deviceID)
		}
	}
	r.mu.Unlock()

	sort.Strings(stale)
	for _, deviceID := range stale {
		r.offline(ctx, deviceID, ReasonStale)
	}
	return stale
}

func (r *Registry) offline(ctx context.Context, deviceID, reason string) {
	if _, err := r.store.SetDeviceStatus(ctx, deviceID, models.DeviceOffline); err != nil && !errors.Is(err, store.ErrDeviceNotFound) {
		log.Printf("mark offline device_id=%s: %v", deviceID, err)
	}
	evts := []events.Event{events.DeviceOffline(deviceID, reason)}
	window, found, err := r.store.GetWindowByDevice(ctx, deviceID)
	if err != nil {
		log.Printf("window lookup device_id=%s: %v", deviceID, err)
	} else if found {
		updated, err := r.store.SetWindowActive(ctx, window.ID, false)
		if err != nil {
			log.Printf("deactivate window_id=%d: %v", window.ID, err)
		} else {
			evts = append(evts, events.WindowStatus(updated))
		}
	}
	r.sink.Publish(ctx, evts...)
	if err := r.cache.DeletePresence(ctx, deviceID); err != nil {
		log.Printf("cache presence delete device_id=%s: %v", deviceID, err)
	}
}

func (r *Registry) mirror(ctx context.Context, entry Entry) {
	err := r.cache.SavePresence(ctx, cache.Presence{
		DeviceID:     entry.DeviceID,
		DeviceType:   entry.Role,
		ConnectionID: entry.ConnectionID,
		IPAddress:    entry.IPAddress,
		LastSeenAt:   entry.LastSeenAt,
	})
	if err != nil {
		log.Printf("cache presence device_id=%s: %v", entry.DeviceID, err)
	}
}

func (r *Registry) Snapshot() []Entry {
	now := r.now()
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		copied := *entry
		copied.IsOnline = now.Sub(entry.LastSeenAt) <= r.onlineWindow
		out = append(out, copied)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

func (r *Registry) IsPresent(deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[deviceID]
	return ok
}

func (r *Registry) DeviceForConnection(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	deviceID, ok := r.byConn[connID]
	return deviceID, ok
}

// StatusEvent is the periodic devices:status broadcast.
func (r *Registry) StatusEvent() events.Event {
	snapshot := r.Snapshot()
	online := 0
	for _, entry := range snapshot {
		if entry.IsOnline {
			online++
		}
	}
	return events.Event{Name: events.DevicesStatus, Data: map[string]interface{}{
		"devices": snapshot,
		"total":   len(snapshot),
		"online":  online,
	}}
}

// WindowActive reports the effective activity of a window: its stored flag,
// and when a device is bound, that device's live presence.
func (r *Registry) WindowActive(window models.Window) bool {
	if !window.Active {
		return false
	}
	if window.DeviceID == nil {
		return true
	}
	return r.IsPresent(*window.DeviceID)
}
