package model

import "time"

// Session is the process-local view of a currently or recently connected
// device. It is never persisted; a restart rebuilds sessions as devices
// reconnect.
type Session struct {
	DeviceID       string         `json:"device_id"`
	DeviceName     string         `json:"device_name"`
	IMEI           string         `json:"imei,omitempty"`
	Model          string         `json:"model"`
	Manufacturer   string         `json:"manufacturer"`
	AndroidVersion string         `json:"android_version"`
	ConnectedAt    time.Time      `json:"connected_at"`
	LastActivity   time.Time      `json:"last_activity"`
	CurrentCamera  string         `json:"current_camera"`
	Location       map[string]any `json:"location,omitempty"`
	BatteryLevel   *int           `json:"battery_level,omitempty"`
	IsOnline       bool           `json:"is_online"`
}

// Clone returns a copy safe to hand out while the registry keeps mutating
// the original.
func (s *Session) Clone() *Session {
	cp := *s
	if s.Location != nil {
		cp.Location = make(map[string]any, len(s.Location))
		for k, v := range s.Location {
			cp.Location[k] = v
		}
	}
	if s.BatteryLevel != nil {
		lvl := *s.BatteryLevel
		cp.BatteryLevel = &lvl
	}
	return &cp
}

// TelemetryUpdate is a partial session update merged by the registry.
// Zero fields are left untouched.
type TelemetryUpdate struct {
	BatteryLevel  *int
	Location      map[string]any
	CurrentCamera string
}

// LoginRequest is the admin login body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AdminToken is the admin login response.
type AdminToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// CommandRequest is the REST body for POST /api/devices/:id/command.
type CommandRequest struct {
	Command string         `json:"command" binding:"required"`
	Data    map[string]any `json:"data"`
}

// RegisterDeviceRequest is the body for manual device registration.
type RegisterDeviceRequest struct {
	Name           string `json:"name" binding:"required"`
	IMEI           string `json:"imei"`
	Model          string `json:"model"`
	Manufacturer   string `json:"manufacturer"`
	AndroidVersion string `json:"android_version"`
	SDK            int    `json:"sdk"`
}

// RegisterDeviceResponse returns the provisioned identity and token.
type RegisterDeviceResponse struct {
	DeviceID string `json:"device_id"`
	Token    string `json:"token"`
}

// StatsResponse is the GET /api/stats payload.
type StatsResponse struct {
	TotalDevices     int `json:"total_devices"`
	OnlineDevices    int `json:"online_devices"`
	AdminConnections int `json:"admin_connections"`
}
