package handler

import (
	"net/http"

	"github.com/Sp1ker2/rat/internal/auth"
	"github.com/Sp1ker2/rat/internal/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthHandler handles admin login and token verification.
type AuthHandler struct {
	verifier *auth.Verifier
	logger   *zap.Logger
}

// NewAuthHandler creates the auth handler.
func NewAuthHandler(verifier *auth.Verifier, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{verifier: verifier, logger: logger}
}

// Login godoc
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	if !h.verifier.VerifyAdmin(req.Username, req.Password) {
		h.logger.Warn("failed admin login", zap.String("username", req.Username))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect username or password"})
		return
	}
	token, err := h.verifier.IssueAdminToken(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, model.AdminToken{AccessToken: token, TokenType: "bearer"})
}

// Verify godoc
// GET /api/auth/verify
func (h *AuthHandler) Verify(c *gin.Context) {
	username := c.GetString(ctxAdminKey)
	c.JSON(http.StatusOK, gin.H{"username": username, "valid": true})
}

// Logout godoc
// POST /api/auth/logout (client-side token removal)
func (h *AuthHandler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}
