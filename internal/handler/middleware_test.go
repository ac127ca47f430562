package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sp1ker2/rat/internal/auth"
	"github.com/Sp1ker2/rat/internal/model"
	"github.com/Sp1ker2/rat/internal/storage"
	"github.com/Sp1ker2/rat/internal/storage/storagetest"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestVerifier(t *testing.T) (*auth.Verifier, *storagetest.MemStore) {
	t.Helper()
	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)
	store := storagetest.New()
	return auth.NewVerifier(store, "test-secret", "admin", hash, time.Hour), store
}

func TestAdminAuth(t *testing.T) {
	verifier, _ := newTestVerifier(t)
	token, err := verifier.IssueAdminToken("admin")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/protected", AdminAuth(verifier), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": c.GetString(ctxAdminKey)})
	})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Token abc", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestDeviceAuth(t *testing.T) {
	verifier, store := newTestVerifier(t)
	_, err := store.CreateDevice(context.Background(), "d1", "phone", "tok-123", storage.DeviceAttrs{})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/upload", DeviceAuth(verifier), func(c *gin.Context) {
		dev := c.MustGet(ctxDeviceKey).(*model.Device)
		c.JSON(http.StatusOK, gin.H{"device_id": dev.ID})
	})

	t.Run("header token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/upload", nil)
		req.Header.Set("X-Device-Token", "tok-123")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "d1")
	})

	t.Run("query token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/upload?token=tok-123", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/upload", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/upload", nil)
		req.Header.Set("X-Device-Token", "tok-999")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
