package session

import (
	"context"
	"testing"
	"time"

	"github.com/Sp1ker2/rat/internal/model"
	"github.com/Sp1ker2/rat/internal/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T) (*Registry, *storagetest.MemStore) {
	t.Helper()
	store := storagetest.New()
	reg := NewRegistry(store, func() string { return "generated-token" }, zap.NewNop())
	return reg, store
}

func deviceInfo(id, name string) model.DeviceInfo {
	return model.DeviceInfo{
		ID:             id,
		Name:           name,
		Model:          "Galaxy S21",
		Manufacturer:   "Samsung",
		AndroidVersion: "12",
		SDK:            31,
	}
}

func TestRegisterProvisionsUnknownDevice(t *testing.T) {
	reg, store := newTestRegistry(t)

	sess, err := reg.Register(context.Background(), deviceInfo("d1", "Phone"))
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.True(t, sess.IsOnline)
	assert.Equal(t, "Phone", sess.DeviceName)
	assert.Equal(t, "back", sess.CurrentCamera)

	dev, err := store.GetDevice(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "generated-token", dev.Token)
	assert.Equal(t, "Samsung", dev.Manufacturer)
	assert.Equal(t, 31, dev.SDK)

	events := store.Events("d1", "connected")
	assert.Len(t, events, 1)
}

func TestRegisterDistinctIdentities(t *testing.T) {
	reg, _ := newTestRegistry(t)

	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		_, err := reg.Register(context.Background(), deviceInfo(id, "dev-"+id))
		require.NoError(t, err)
	}

	all := reg.All()
	require.Len(t, all, len(ids))
	for _, sess := range all {
		assert.True(t, sess.IsOnline)
	}
}

func TestRegisterSameIdentityTwice(t *testing.T) {
	reg, _ := newTestRegistry(t)

	first, err := reg.Register(context.Background(), deviceInfo("d1", "Phone"))
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	second, err := reg.Register(context.Background(), deviceInfo("d1", "Phone Renamed"))
	require.NoError(t, err)

	assert.Len(t, reg.All(), 1)
	assert.Equal(t, first.ConnectedAt, second.ConnectedAt, "connected_at from the first call is preserved")
	assert.True(t, second.LastActivity.After(first.LastActivity), "last_activity is refreshed")
	assert.Equal(t, "Phone Renamed", second.DeviceName)
}

func TestMarkOfflineKeepsSessionListed(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Register(context.Background(), deviceInfo("d1", "Phone"))
	require.NoError(t, err)

	reg.MarkOffline("d1")

	assert.Empty(t, reg.Online())
	require.Len(t, reg.All(), 1)
	assert.False(t, reg.All()[0].IsOnline)

	sess := reg.Get("d1")
	require.NotNil(t, sess)
	assert.False(t, sess.IsOnline)
}

func TestMarkOfflineUnknownIdentity(t *testing.T) {
	reg, _ := newTestRegistry(t)
	reg.MarkOffline("never-seen") // no-op
	assert.Empty(t, reg.All())
}

func TestUpdateTelemetry(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Register(context.Background(), deviceInfo("d1", "Phone"))
	require.NoError(t, err)

	battery := 73
	reg.UpdateTelemetry("d1", model.TelemetryUpdate{
		BatteryLevel:  &battery,
		CurrentCamera: "front",
		Location:      map[string]any{"lat": 1.0, "lon": 2.0},
	})

	sess := reg.Get("d1")
	require.NotNil(t, sess)
	require.NotNil(t, sess.BatteryLevel)
	assert.Equal(t, 73, *sess.BatteryLevel)
	assert.Equal(t, "front", sess.CurrentCamera)
	assert.Equal(t, 1.0, sess.Location["lat"])
}

func TestUpdateTelemetryBeforeRegistrationIsDropped(t *testing.T) {
	reg, _ := newTestRegistry(t)

	battery := 50
	reg.UpdateTelemetry("unknown", model.TelemetryUpdate{BatteryLevel: &battery})

	assert.Nil(t, reg.Get("unknown"))
	assert.Empty(t, reg.All())
}

func TestGetReturnsCopy(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Register(context.Background(), deviceInfo("d1", "Phone"))
	require.NoError(t, err)

	sess := reg.Get("d1")
	sess.DeviceName = "mutated"
	sess.Location = map[string]any{"lat": 99.0}

	fresh := reg.Get("d1")
	assert.Equal(t, "Phone", fresh.DeviceName)
	assert.Nil(t, fresh.Location)
}

func TestRegisterPropagatesProvisionFailure(t *testing.T) {
	store := storagetest.New()
	store.FailWrites = assert.AnError
	reg := NewRegistry(store, func() string { return "tok" }, zap.NewNop())

	_, err := reg.Register(context.Background(), deviceInfo("d1", "Phone"))
	require.Error(t, err)
	assert.Empty(t, reg.All(), "no session is created when profile sync fails")
}
