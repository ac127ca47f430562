package model

import "encoding/json"

// MessageKind is the declared type of an inbound device message.
type MessageKind string

const (
	KindRegister    MessageKind = "register"
	KindCameraFrame MessageKind = "camera_frame"
	KindLocation    MessageKind = "location_update"
	KindSystemInfo  MessageKind = "system_info"
	KindPing        MessageKind = "ping"
)

// Known reports whether k is one of the kinds the dispatcher routes.
func (k MessageKind) Known() bool {
	switch k {
	case KindRegister, KindCameraFrame, KindLocation, KindSystemInfo, KindPing:
		return true
	}
	return false
}

// Envelope is the outer shape of every device message: a type tag plus the
// raw body, decoded again by the handler the tag selects.
type Envelope struct {
	Type MessageKind     `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// DecodeEnvelope extracts the type tag and keeps the full raw message for
// the typed second pass.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	env.Raw = append(json.RawMessage(nil), data...)
	return &env, nil
}

// DeviceInfo is the device-supplied attribute set in the register handshake.
type DeviceInfo struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	IMEI           string `json:"imei,omitempty"`
	Model          string `json:"model"`
	Manufacturer   string `json:"manufacturer"`
	AndroidVersion string `json:"android_version"`
	SDK            int    `json:"sdk"`
}

// RegisterMessage is the first message on a device connection: either
// device_info for (re-)registration or a pre-issued token.
type RegisterMessage struct {
	Type       MessageKind `json:"type"`
	DeviceInfo *DeviceInfo `json:"device_info,omitempty"`
	Token      string      `json:"token,omitempty"`
}

// CameraFrameMessage carries one camera frame, image bytes base64-encoded.
type CameraFrameMessage struct {
	Camera    string `json:"camera"` // "front", "back" or "screen"
	Data      string `json:"data"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Timestamp int64  `json:"timestamp"`
}

// LocationMessage carries one location fix.
type LocationMessage struct {
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// ValidCoordinates reports whether lat/lon are inside the WGS84 envelope.
// Boundary values are accepted.
func (m *LocationMessage) ValidCoordinates() bool {
	return m.Lat >= -90 && m.Lat <= 90 && m.Lon >= -180 && m.Lon <= 180
}

// SystemInfoMessage wraps the free-form system stats payload.
type SystemInfoMessage struct {
	Data map[string]any `json:"data"`
}

// Command is an admin-issued instruction for a single device.
type Command struct {
	Command string         `json:"command"`
	Data    map[string]any `json:"data"`
}

// AdminCommand is the admin WebSocket command envelope.
type AdminCommand struct {
	Type     string         `json:"type"`
	DeviceID string         `json:"device_id"`
	Command  string         `json:"command"`
	Data     map[string]any `json:"data"`
}
