package constants

// Пути health, ready и WebSocket endpoints.
const (
	PathHealth   = "/health"
	PathReady    = "/ready"
	PathWSDevice = "/ws/device"
	PathWSAdmin  = "/ws/admin"
)
