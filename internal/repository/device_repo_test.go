package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lynx-remote/backend/internal/db"
	"github.com/lynx-remote/backend/internal/model"
)

func newTestRepo(t *testing.T) *DeviceRepository {
	t.Helper()

	testDB, err := db.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { testDB.Close() })

	return NewDeviceRepository(testDB)
}

func strPtr(s string) *string { return &s }

func TestCreateAndGetDevice(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now()
	device := &model.Device{
		ID:        "d1",
		UserID:    "user-1",
		Name:      "Office PC",
		Status:    model.DeviceStatusOffline,
		OS:        "windows",
		Version:   "1.4.2",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, device))

	got, err := repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", got.ID)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "Office PC", got.Name)
	assert.Equal(t, model.DeviceStatusOffline, got.Status)
	assert.Equal(t, "windows", got.OS)
	assert.Equal(t, "1.4.2", got.Version)
	assert.Nil(t, got.LastSeen)
	assert.Nil(t, got.Uptime)
}

func TestGetMissingDevice(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrDeviceNotFound)
}

func TestUpsertCreatesWithOwner(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	online := model.DeviceStatusOnline
	now := time.Now()
	err := repo.Upsert(ctx, model.DeviceUpsert{
		ID:       "d1",
		UserID:   "user-1",
		Status:   &online,
		LastSeen: &now,
		OS:       strPtr("linux"),
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, model.DeviceStatusOnline, got.Status)
	assert.Equal(t, "linux", got.OS)
	// Name defaults to the identifier when the agent supplied none
	assert.Equal(t, "d1", got.Name)
	require.NotNil(t, got.LastSeen)
}

func TestUpsertWithoutOwnerFails(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.Upsert(context.Background(), model.DeviceUpsert{ID: "d1"})
	assert.ErrorIs(t, err, model.ErrNoOwner)
}

func TestUpsertAppliesOnlyProvidedFields(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, model.DeviceUpsert{
		ID:     "d1",
		UserID: "user-1",
		Name:   strPtr("Office PC"),
		OS:     strPtr("windows"),
	}))

	offline := model.DeviceStatusOffline
	uptime := int64(3600)
	require.NoError(t, repo.Upsert(ctx, model.DeviceUpsert{
		ID:     "d1",
		Status: &offline,
		Uptime: &uptime,
	}))

	got, err := repo.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, model.DeviceStatusOffline, got.Status)
	assert.Equal(t, "Office PC", got.Name)
	assert.Equal(t, "windows", got.OS)
	require.NotNil(t, got.Uptime)
	assert.Equal(t, int64(3600), *got.Uptime)
}

func TestDeleteDevice(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, model.DeviceUpsert{ID: "d1", UserID: "user-1"}))
	require.NoError(t, repo.Delete(ctx, "d1"))

	_, err := repo.GetByID(ctx, "d1")
	assert.ErrorIs(t, err, model.ErrDeviceNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, "d1"), model.ErrDeviceNotFound)
}

func TestList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, model.DeviceUpsert{ID: "d1", UserID: "user-1"}))
	require.NoError(t, repo.Upsert(ctx, model.DeviceUpsert{ID: "d2", UserID: "user-2"}))

	devices, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, devices, 2)
}

func TestFallbackOwner(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.FallbackOwnerID(ctx)
	assert.ErrorIs(t, err, model.ErrNoOwner)

	require.NoError(t, repo.CreateUser(ctx, "user-1", "Admin", "admin@example.com"))
	require.NoError(t, repo.CreateUser(ctx, "user-2", "Second", "second@example.com"))

	owner, err := repo.FallbackOwnerID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", owner)
}

func TestDeviceLogs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertLog(ctx, "d1", model.DeviceLogConnect, ""))
	require.NoError(t, repo.InsertLog(ctx, "d1", model.DeviceLogDisconnect, "socket closed"))
	require.NoError(t, repo.InsertLog(ctx, "d2", model.DeviceLogConnect, ""))

	logs, err := repo.ListLogs(ctx, "d1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	// Most recent first
	assert.Equal(t, model.DeviceLogDisconnect, logs[0].Type)
	assert.Equal(t, "socket closed", logs[0].Message)
	assert.Equal(t, model.DeviceLogConnect, logs[1].Type)
}
