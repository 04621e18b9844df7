// Package presence reconciles live device connect, disconnect and
// heartbeat events with the durable device record. All writes are
// fire-and-forget: they run on the background task queue, failures are
// logged and reported but never retried, and the in-memory relay state
// is never rolled back.
package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lynx-remote/backend/internal/model"
	"github.com/lynx-remote/backend/internal/relay"
	"github.com/lynx-remote/backend/internal/repository"
	"github.com/lynx-remote/backend/internal/task"
)

// Synchronizer mirrors device presence into the device repository.
type Synchronizer struct {
	repo  *repository.DeviceRepository
	tasks *task.Queue

	mu          sync.Mutex
	connectedAt map[string]time.Time
}

// NewSynchronizer creates a presence synchronizer.
func NewSynchronizer(repo *repository.DeviceRepository, tasks *task.Queue) *Synchronizer {
	return &Synchronizer{
		repo:        repo,
		tasks:       tasks,
		connectedAt: make(map[string]time.Time),
	}
}

// DeviceConnected upserts the durable record for a connecting device.
// A missing record is created lazily, owned by the supplied user or the
// repository's fallback owner; when neither resolves, the record is not
// persisted, the failure is reported, and the live registration stands.
func (s *Synchronizer) DeviceConnected(id string, info relay.DeviceInfo) {
	now := time.Now()

	s.mu.Lock()
	s.connectedAt[id] = now
	s.mu.Unlock()

	s.tasks.Submit("presence connect", func() error {
		ctx := context.Background()

		online := model.DeviceStatusOnline
		up := model.DeviceUpsert{
			ID:       id,
			Status:   &online,
			LastSeen: &now,
		}
		if info.Name != "" {
			up.Name = &info.Name
		}
		if info.OS != "" {
			up.OS = &info.OS
		}
		if info.Version != "" {
			up.Version = &info.Version
		}

		logType := model.DeviceLogReconnect

		_, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, model.ErrDeviceNotFound) {
			owner := info.UserID
			if owner == "" {
				owner, err = s.repo.FallbackOwnerID(ctx)
				if err != nil {
					return fmt.Errorf("device %s not persisted: %w", id, err)
				}
			}
			up.UserID = owner
			logType = model.DeviceLogConnect
		} else if err != nil {
			return fmt.Errorf("device %s: %w", id, err)
		}

		if err := s.repo.Upsert(ctx, up); err != nil {
			return fmt.Errorf("device %s: %w", id, err)
		}
		return s.repo.InsertLog(ctx, id, logType, "")
	})
}

// DeviceDisconnected downgrades the durable record after a disconnect and
// records the session uptime.
func (s *Synchronizer) DeviceDisconnected(id string) {
	now := time.Now()

	s.mu.Lock()
	connectedAt, ok := s.connectedAt[id]
	delete(s.connectedAt, id)
	s.mu.Unlock()

	var uptime *int64
	if ok {
		u := int64(now.Sub(connectedAt).Seconds())
		uptime = &u
	}

	s.tasks.Submit("presence disconnect", func() error {
		ctx := context.Background()

		offline := model.DeviceStatusOffline
		up := model.DeviceUpsert{
			ID:       id,
			Status:   &offline,
			LastSeen: &now,
			Uptime:   uptime,
		}
		if err := s.repo.Upsert(ctx, up); err != nil {
			return fmt.Errorf("device %s: %w", id, err)
		}
		return s.repo.InsertLog(ctx, id, model.DeviceLogDisconnect, "")
	})
}

// Heartbeat refreshes the durable last-seen timestamp.
func (s *Synchronizer) Heartbeat(id string) {
	now := time.Now()

	s.tasks.Submit("presence heartbeat", func() error {
		up := model.DeviceUpsert{ID: id, LastSeen: &now}
		if err := s.repo.Upsert(context.Background(), up); err != nil {
			return fmt.Errorf("device %s: %w", id, err)
		}
		return nil
	})
}
