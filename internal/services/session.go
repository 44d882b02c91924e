package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/adi-253/webchat/backend/internal/cloud"
	"github.com/adi-253/webchat/backend/internal/models"
	"github.com/adi-253/webchat/backend/internal/policy"
	"github.com/adi-253/webchat/backend/internal/records"
	"github.com/sirupsen/logrus"
)

// maxQueueListPasses bounds how often room teardown re-lists session queues
// while the provider's listing catches up.
const maxQueueListPasses = 10

// visibilityTimeout is how long a polled message stays hidden before it is
// redelivered to the same session.
const visibilityTimeout = 30

// SessionService creates and deletes sessions: one queue per participant,
// subscribed to the room topic.
type SessionService struct {
	deps  Deps
	rooms *RoomService
	name  Naming
}

// NewSessionService creates a new SessionService instance.
func NewSessionService(deps Deps, rooms *RoomService) *SessionService {
	deps = deps.withDefaults()
	return &SessionService{deps: deps, rooms: rooms, name: deps.naming()}
}

// CreateSession creates a queue that only the room topic may write to and
// subscribes it. If the subscription is refused the queue is deleted again,
// so a failed call leaves nothing behind.
func (s *SessionService) CreateSession(ctx context.Context, roomID string, caller models.Identity) (models.Session, error) {
	room, err := s.rooms.RoomTopic(ctx, roomID)
	if errors.Is(err, ErrRoomNotFound) {
		return models.Session{}, roomSpecifiedUnavailable()
	}
	if err != nil {
		return models.Session{}, err
	}

	sessionID := s.deps.NewSessionID()
	queueName := s.name.QueueName(roomID, sessionID)
	log := s.logger(ctx).WithFields(logrus.Fields{"room_id": roomID, "session_id": sessionID})

	queuePolicy := policy.QueuePolicy(room.TopicARN, s.deps.queueRoles())
	queueURL, err := s.deps.Queues.CreateQueue(ctx, queueName, map[string]string{
		cloud.QueueAttributePolicy:            queuePolicy.String(),
		cloud.QueueAttributeVisibilityTimeout: strconv.Itoa(visibilityTimeout),
	})
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to create session queue: %w", err)
	}

	session, err := s.subscribe(ctx, room, sessionID, queueURL, caller)
	if err != nil {
		if delErr := s.deps.Queues.DeleteQueue(ctx, queueURL); delErr != nil && !errors.Is(delErr, cloud.ErrNotFound) {
			log.WithError(delErr).Error("Failed to delete queue of failed session")
		}
		return models.Session{}, err
	}

	s.deps.Cache.Add(queueName, queueURL)
	log.Info("Session created")
	return session, nil
}

func (s *SessionService) subscribe(ctx context.Context, room models.Room, sessionID, queueURL string, caller models.Identity) (models.Session, error) {
	queueARN, err := s.deps.Queues.QueueARN(ctx, queueURL)
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to read session queue arn: %w", err)
	}

	subscriptionARN, err := s.deps.Topics.Subscribe(ctx, room.TopicARN, cloud.ProtocolSQS, queueARN)
	if err != nil {
		// A closed or deleted room refuses subscriptions.
		if errors.Is(err, cloud.ErrUnauthorized) || errors.Is(err, cloud.ErrNotFound) || errors.Is(err, cloud.ErrInvalidParameter) {
			return models.Session{}, roomSpecifiedUnavailable()
		}
		return models.Session{}, fmt.Errorf("failed to subscribe session queue: %w", err)
	}

	session := models.Session{
		ID:              sessionID,
		RoomID:          room.ID,
		Created:         s.deps.Now().Unix(),
		OwnerID:         caller.ID,
		QueueURL:        queueURL,
		QueueARN:        queueARN,
		SubscriptionARN: subscriptionARN,
	}
	if err := s.deps.Records.PutSession(ctx, session); err != nil {
		if unsubErr := s.unsubscribe(ctx, subscriptionARN); unsubErr != nil {
			s.logger(ctx).WithField("subscription_arn", subscriptionARN).WithError(unsubErr).
				Error("Failed to remove subscription of failed session")
		}
		return models.Session{}, fmt.Errorf("failed to record session: %w", err)
	}
	return session, nil
}

// unsubscribe removes a session's subscription. A subscription that went away
// with its topic counts as removed.
func (s *SessionService) unsubscribe(ctx context.Context, subscriptionARN string) error {
	if subscriptionARN == "" {
		return nil
	}
	err := s.deps.Topics.Unsubscribe(ctx, subscriptionARN)
	if err != nil && !cloud.IsGone(err) {
		return fmt.Errorf("failed to unsubscribe session queue: %w", err)
	}
	return nil
}

// QueueURL resolves the queue of a session, consulting the cache first.
func (s *SessionService) QueueURL(ctx context.Context, roomID, sessionID string) (string, error) {
	if !ValidRoomID(roomID) || !ValidSessionID(sessionID) {
		return "", sessionUnavailable()
	}
	name := s.name.QueueName(roomID, sessionID)
	if url, ok := s.deps.Cache.Get(name); ok {
		return url, nil
	}

	url, err := s.deps.Queues.QueueURL(ctx, name)
	if errors.Is(err, cloud.ErrNotFound) || errors.Is(err, cloud.ErrUnauthorized) {
		return "", sessionUnavailable()
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up session queue: %w", err)
	}
	s.deps.Cache.Add(name, url)
	return url, nil
}

// Forget drops a cached queue URL after the provider reported the queue gone.
func (s *SessionService) Forget(roomID, sessionID string) {
	s.deps.Cache.Remove(s.name.QueueName(roomID, sessionID))
}

// DeleteSession deletes a session's queue and record. Only the session owner
// or an administrator may delete it; anyone else gets the same answer as for
// a session that doesn't exist. Deleting an already deleted session succeeds.
func (s *SessionService) DeleteSession(ctx context.Context, roomID, sessionID string, caller models.Identity) error {
	if !ValidRoomID(roomID) || !ValidSessionID(sessionID) {
		return sessionUnavailable()
	}

	session, err := s.deps.Records.GetSession(ctx, roomID, sessionID)
	if errors.Is(err, records.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}

	if session.OwnerID != caller.ID && !s.deps.Config.IsAdmin(caller.ID) {
		s.logger(ctx).WithFields(logrus.Fields{"room_id": roomID, "session_id": sessionID, "caller": caller.ID}).
			Warn("Session delete refused for non-owner")
		return sessionUnavailable()
	}

	return s.remove(ctx, session)
}

func (s *SessionService) remove(ctx context.Context, session models.Session) error {
	if err := s.unsubscribe(ctx, session.SubscriptionARN); err != nil {
		return err
	}
	err := s.deps.Queues.DeleteQueue(ctx, session.QueueURL)
	if err != nil && !errors.Is(err, cloud.ErrNotFound) {
		return fmt.Errorf("failed to delete session queue: %w", err)
	}
	if err := s.deps.Records.DeleteSession(ctx, session.RoomID, session.ID); err != nil {
		return err
	}
	s.Forget(session.RoomID, session.ID)
	s.logger(ctx).WithFields(logrus.Fields{"room_id": session.RoomID, "session_id": session.ID}).Info("Session deleted")
	return nil
}

// DeleteRoomSessions deletes every session queue of a room. The queue listing
// lags behind creation and deletion, so it is repeated until a pass finds no
// queue it has not already deleted. Recorded sessions are deleted as well, in
// case the listing never showed their queue.
func (s *SessionService) DeleteRoomSessions(ctx context.Context, roomID string) error {
	log := s.logger(ctx).WithField("room_id", roomID)
	prefix := s.name.QueuePrefix(roomID)
	deleted := make(map[string]bool)

	for pass := 0; pass < maxQueueListPasses; pass++ {
		urls, err := s.deps.Queues.ListQueues(ctx, prefix)
		if err != nil {
			return fmt.Errorf("failed to list room queues: %w", err)
		}

		attempted := 0
		for _, url := range urls {
			if deleted[url] {
				continue
			}
			attempted++
			err := s.deps.Queues.DeleteQueue(ctx, url)
			if err != nil && !errors.Is(err, cloud.ErrNotFound) {
				return fmt.Errorf("failed to delete room queue %s: %w", url, err)
			}
			deleted[url] = true
		}
		if len(urls) == 0 || attempted == 0 {
			break
		}
	}

	sessions, err := s.deps.Records.ListSessions(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed to list room sessions: %w", err)
	}
	for _, session := range sessions {
		if deleted[session.QueueURL] {
			if err := s.deps.Records.DeleteSession(ctx, roomID, session.ID); err != nil {
				return err
			}
			s.Forget(roomID, session.ID)
			continue
		}
		if err := s.remove(ctx, session); err != nil {
			return err
		}
	}

	log.WithField("queues_deleted", len(deleted)).Info("Room sessions deleted")
	return nil
}

func (s *SessionService) logger(ctx context.Context) logrus.FieldLogger {
	return s.deps.logger(ctx, "session")
}
