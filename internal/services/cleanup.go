package services

import (
	"context"
	"errors"
	"time"

	"github.com/adi-253/webchat/backend/internal/cloud"
	"github.com/adi-253/webchat/backend/internal/models"
	"github.com/adi-253/webchat/backend/internal/records"
	"github.com/sirupsen/logrus"
)

// CleanupService handles automatic deletion of orphaned sessions.
// It runs as a background goroutine in the local server and as a scheduled
// function in the cloud, and deletes sessions whose room has closed or whose
// queue is gone.
type CleanupService struct {
	deps     Deps
	sessions *SessionService
	name     Naming
	log      logrus.FieldLogger

	interval  time.Duration
	threshold time.Duration
	stopChan  chan struct{}
}

// NewCleanupService creates a new cleanup service.
// - interval: how often to sweep (e.g., 15 minutes)
// - threshold: how old a session must be before it is considered (e.g., 2 hours)
func NewCleanupService(deps Deps, sessions *SessionService, interval, threshold time.Duration) *CleanupService {
	deps = deps.withDefaults()
	return &CleanupService{
		deps:      deps,
		sessions:  sessions,
		name:      deps.naming(),
		log:       deps.Log.WithField("service", "cleanup"),
		interval:  interval,
		threshold: threshold,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the background cleanup worker.
// This method runs in its own goroutine and should be called with 'go'.
func (s *CleanupService) Start() {
	s.log.WithFields(logrus.Fields{"interval": s.interval, "threshold": s.threshold}).Info("Cleanup service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(context.Background()); err != nil {
				s.log.WithError(err).Error("Cleanup sweep failed")
			}
		case <-s.stopChan:
			s.log.Info("Cleanup service stopped")
			return
		}
	}
}

// Stop gracefully shuts down the cleanup service.
func (s *CleanupService) Stop() {
	close(s.stopChan)
}

// RunOnce sweeps every session record once and returns how many sessions it
// deleted. A failure on one session is logged and the sweep moves on.
func (s *CleanupService) RunOnce(ctx context.Context) (int, error) {
	sessions, err := s.deps.Records.ListAllSessions(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := s.deps.Now().Add(-s.threshold).Unix()
	rooms := make(map[string]bool)
	deleted := 0

	for _, session := range sessions {
		if session.Created > cutoff {
			continue
		}
		log := s.logger(ctx).WithFields(logrus.Fields{"room_id": session.RoomID, "session_id": session.ID})

		orphaned, err := s.orphaned(ctx, session, rooms)
		if err != nil {
			log.WithError(err).Warn("Failed to check session")
			continue
		}
		if !orphaned {
			continue
		}

		if err := s.sessions.remove(ctx, session); err != nil {
			log.WithError(err).Error("Failed to delete orphaned session")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.logger(ctx).WithField("deleted", deleted).Info("Orphaned sessions deleted")
	}
	return deleted, nil
}

// orphaned reports whether a session's room is no longer open or its queue no
// longer exists. Room lookups are memoized per sweep in open.
func (s *CleanupService) orphaned(ctx context.Context, session models.Session, open map[string]bool) (bool, error) {
	isOpen, seen := open[session.RoomID]
	if !seen {
		room, err := s.deps.Records.GetRoom(ctx, session.RoomID)
		switch {
		case errors.Is(err, records.ErrNotFound):
			isOpen = false
		case err != nil:
			return false, err
		default:
			isOpen = room.State == models.RoomOpen
		}
		open[session.RoomID] = isOpen
	}
	if !isOpen {
		return true, nil
	}

	_, err := s.deps.Queues.QueueURL(ctx, s.name.QueueName(session.RoomID, session.ID))
	if errors.Is(err, cloud.ErrNotFound) {
		return true, nil
	}
	return false, err
}

func (s *CleanupService) logger(ctx context.Context) logrus.FieldLogger {
	return s.deps.logger(ctx, "cleanup")
}
