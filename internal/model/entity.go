package model

import (
	"time"

	"gorm.io/datatypes"
)

// Device — durable device profile (GORM).
type Device struct {
	ID             string    `gorm:"type:uuid;primaryKey"`
	Name           string    `gorm:"size:255;not null"`
	Token          string    `gorm:"size:64;not null;uniqueIndex"`
	IMEI           string    `gorm:"column:imei;size:32"`
	Model          string    `gorm:"size:255"`
	Manufacturer   string    `gorm:"size:255"`
	AndroidVersion string    `gorm:"size:50"`
	SDK            int       `gorm:"column:sdk"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	LastSeen       time.Time `gorm:"column:last_seen;not null"`
	IsActive       bool      `gorm:"not null;default:true"`
}

func (Device) TableName() string { return "devices" }

// CameraFrame — one stored frame; Timestamp is the device clock in
// milliseconds, CreatedAt the server clock.
type CameraFrame struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	DeviceID  string    `gorm:"type:uuid;not null;index"`
	Camera    string    `gorm:"size:10;not null"`
	FrameData []byte    `gorm:"column:frame_data;type:bytea;not null"`
	Width     int       `gorm:"not null"`
	Height    int       `gorm:"not null"`
	Timestamp int64     `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

func (CameraFrame) TableName() string { return "camera_frames" }

// LocationHistory — one stored location fix.
type LocationHistory struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	DeviceID  string    `gorm:"type:uuid;not null;index"`
	Lat       float64   `gorm:"not null"`
	Lon       float64   `gorm:"not null"`
	Accuracy  *float64  `gorm:""`
	Timestamp int64     `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

func (LocationHistory) TableName() string { return "location_history" }

// DeviceEvent — append-only typed fact with a free-form JSONB payload.
type DeviceEvent struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	DeviceID  string         `gorm:"type:uuid;not null;index" json:"device_id"`
	EventType string         `gorm:"size:100;not null;index" json:"event_type"`
	EventData datatypes.JSON `gorm:"type:jsonb" json:"event_data,omitempty"`
	Timestamp int64          `gorm:"not null;index" json:"timestamp"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

func (DeviceEvent) TableName() string { return "device_events" }

// FrameMeta is the metadata-only view of a CameraFrame for history
// responses (never carries the image bytes).
type FrameMeta struct {
	ID        string    `json:"id"`
	Camera    string    `json:"camera"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Size      int       `json:"size"`
	Timestamp int64     `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

// Meta strips the frame down to its metadata.
func (f *CameraFrame) Meta() FrameMeta {
	return FrameMeta{
		ID:        f.ID,
		Camera:    f.Camera,
		Width:     f.Width,
		Height:    f.Height,
		Size:      len(f.FrameData),
		Timestamp: f.Timestamp,
		CreatedAt: f.CreatedAt,
	}
}

// LocationFix is the API view of a LocationHistory row.
type LocationFix struct {
	ID        string    `json:"id"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Timestamp int64     `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

// Fix converts the stored row to its API view.
func (l *LocationHistory) Fix() LocationFix {
	return LocationFix{
		ID:        l.ID,
		Lat:       l.Lat,
		Lon:       l.Lon,
		Accuracy:  l.Accuracy,
		Timestamp: l.Timestamp,
		CreatedAt: l.CreatedAt,
	}
}
