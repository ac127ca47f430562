// Package storagetest provides an in-memory Store for tests.
package storagetest

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/Sp1ker2/rat/internal/errs"
	"github.com/Sp1ker2/rat/internal/model"
	"github.com/Sp1ker2/rat/internal/storage"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MemStore implements storage.Store on maps. Set FailWrites to make every
// write operation fail with that error.
type MemStore struct {
	mu        sync.Mutex
	devices   map[string]*model.Device
	frames    []model.CameraFrame
	locations []model.LocationHistory
	events    []model.DeviceEvent

	FailWrites error
}

// New creates an empty MemStore.
func New() *MemStore {
	return &MemStore{devices: make(map[string]*model.Device)}
}

func (s *MemStore) CreateDevice(_ context.Context, id, name, token string, attrs storage.DeviceAttrs) (*model.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return nil, s.FailWrites
	}
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
	s.devices[id] = dev
	cp := *dev
	return &cp, nil
}

func (s *MemStore) GetDevice(_ context.Context, id string) (*model.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dev, ok := s.devices[id]
	if !ok {
		return nil, errs.ErrDeviceNotFound
	}
	cp := *dev
	return &cp, nil
}

func (s *MemStore) GetDeviceByToken(_ context.Context, token string) (*model.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dev := range s.devices {
		if dev.Token == token {
			cp := *dev
			return &cp, nil
		}
	}
	return nil, errs.ErrInvalidToken
}

func (s *MemStore) UpdateDevice(_ context.Context, id string, name string, attrs storage.DeviceAttrs) (*model.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return nil, s.FailWrites
	}
	dev, ok := s.devices[id]
	if !ok {
		return nil, errs.ErrDeviceNotFound
	}
	if name != "" {
		dev.Name = name
	}
	if attrs.IMEI != "" {
		dev.IMEI = attrs.IMEI
	}
	if attrs.Model != "" {
		dev.Model = attrs.Model
	}
	if attrs.Manufacturer != "" {
		dev.Manufacturer = attrs.Manufacturer
	}
	if attrs.AndroidVersion != "" {
		dev.AndroidVersion = attrs.AndroidVersion
	}
	if attrs.SDK != 0 {
		dev.SDK = attrs.SDK
	}
	dev.LastSeen = time.Now().UTC()
	cp := *dev
	return &cp, nil
}

func (s *MemStore) UpdateDeviceToken(_ context.Context, id, token string) (*model.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return nil, s.FailWrites
	}
	dev, ok := s.devices[id]
	if !ok {
		return nil, errs.ErrDeviceNotFound
	}
	dev.Token = token
	cp := *dev
	return &cp, nil
}

func (s *MemStore) ListDevices(_ context.Context) ([]model.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Device, 0, len(s.devices))
	for _, dev := range s.devices {
		out = append(out, *dev)
	}
	return out, nil
}

func (s *MemStore) SaveCameraFrame(_ context.Context, deviceID, camera string, data []byte, width, height int, timestamp int64) (*model.CameraFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return nil, s.FailWrites
	}
	frame := model.CameraFrame{
		ID:        uuid.New().String(),
		DeviceID:  deviceID,
		Camera:    camera,
		FrameData: append([]byte(nil), data...),
		Width:     width,
		Height:    height,
		Timestamp: timestamp,
		CreatedAt: time.Now().UTC(),
	}
	s.frames = append(s.frames, frame)
	cp := frame
	return &cp, nil
}

func (s *MemStore) GetLatestFrame(_ context.Context, deviceID, camera string) (*model.CameraFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *model.CameraFrame
	for i := range s.frames {
		f := &s.frames[i]
		if f.DeviceID != deviceID || f.Camera != camera {
			continue
		}
		if latest == nil || f.Timestamp > latest.Timestamp {
			latest = f
		}
	}
	if latest == nil {
		return nil, errs.ErrFrameNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemStore) GetFrameHistory(_ context.Context, deviceID, camera string, limit, offset int) ([]model.CameraFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CameraFrame
	for _, f := range s.frames {
		if f.DeviceID == deviceID && f.Camera == camera {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return window(out, limit, offset), nil
}

func (s *MemStore) SaveLocation(_ context.Context, deviceID string, lat, lon float64, accuracy *float64, timestamp int64) (*model.LocationHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return nil, s.FailWrites
	}
	loc := model.LocationHistory{
		ID:        uuid.New().String(),
		DeviceID:  deviceID,
		Lat:       lat,
		Lon:       lon,
		Accuracy:  accuracy,
		Timestamp: timestamp,
		CreatedAt: time.Now().UTC(),
	}
	s.locations = append(s.locations, loc)
	cp := loc
	return &cp, nil
}

func (s *MemStore) GetLocationHistory(_ context.Context, deviceID string, limit, offset int) ([]model.LocationHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.LocationHistory
	for _, l := range s.locations {
		if l.DeviceID == deviceID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return window(out, limit, offset), nil
}

func (s *MemStore) LogDeviceEvent(_ context.Context, deviceID, eventType string, eventData map[string]any, timestamp int64) (*model.DeviceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return nil, s.FailWrites
	}
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
	evt := model.DeviceEvent{
		ID:        uuid.New().String(),
		DeviceID:  deviceID,
		EventType: eventType,
		EventData: payload,
		Timestamp: timestamp,
		CreatedAt: time.Now().UTC(),
	}
	s.events = append(s.events, evt)
	cp := evt
	return &cp, nil
}

func (s *MemStore) GetDeviceEvents(_ context.Context, deviceID, eventType string, limit, offset int) ([]model.DeviceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.DeviceEvent
	for _, e := range s.events {
		if e.DeviceID == deviceID && (eventType == "" || e.EventType == eventType) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return window(out, limit, offset), nil
}

// Events returns every stored event of a type, for assertions.
func (s *MemStore) Events(deviceID, eventType string) []model.DeviceEvent {
	out, _ := s.GetDeviceEvents(context.Background(), deviceID, eventType, 0, 0)
	return out
}

func window[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

var _ storage.Store = (*MemStore)(nil)
