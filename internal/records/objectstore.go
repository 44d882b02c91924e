package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/adi-253/webchat/backend/internal/cloud"
	"github.com/adi-253/webchat/backend/internal/models"
)

const (
	roomPrefix    = "room-topics/"
	sessionPrefix = "room-queues/"
	jsonType      = "application/json"
)

// ObjectStore keeps records as JSON objects in the shared bucket:
// room-topics/{room}.json and room-queues/{room}/{session}.json.
type ObjectStore struct {
	objects cloud.Objects
}

// NewObjectStore creates a record store on top of an object store.
func NewObjectStore(objects cloud.Objects) *ObjectStore {
	return &ObjectStore{objects: objects}
}

func roomKey(roomID string) string {
	return roomPrefix + roomID + ".json"
}

func sessionKey(roomID, sessionID string) string {
	return sessionPrefix + roomID + "/" + sessionID + ".json"
}

func (s *ObjectStore) PutRoom(ctx context.Context, room models.Room) error {
	return s.put(ctx, roomKey(room.ID), room)
}

func (s *ObjectStore) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	var room models.Room
	if err := s.get(ctx, roomKey(roomID), &room); err != nil {
		return models.Room{}, err
	}
	// Records written before the id and state were stored carry neither.
	if room.ID == "" {
		room.ID = roomID
	}
	if room.State == "" {
		room.State = models.RoomOpen
	}
	return room, nil
}

func (s *ObjectStore) DeleteRoom(ctx context.Context, roomID string) error {
	return s.delete(ctx, roomKey(roomID))
}

func (s *ObjectStore) PutSession(ctx context.Context, session models.Session) error {
	return s.put(ctx, sessionKey(session.RoomID, session.ID), session)
}

func (s *ObjectStore) GetSession(ctx context.Context, roomID, sessionID string) (models.Session, error) {
	var session models.Session
	if err := s.get(ctx, sessionKey(roomID, sessionID), &session); err != nil {
		return models.Session{}, err
	}
	if session.ID == "" {
		session.ID = sessionID
	}
	if session.RoomID == "" {
		session.RoomID = roomID
	}
	return session, nil
}

func (s *ObjectStore) DeleteSession(ctx context.Context, roomID, sessionID string) error {
	return s.delete(ctx, sessionKey(roomID, sessionID))
}

func (s *ObjectStore) ListSessions(ctx context.Context, roomID string) ([]models.Session, error) {
	return s.listSessions(ctx, sessionPrefix+roomID+"/")
}

func (s *ObjectStore) ListAllSessions(ctx context.Context) ([]models.Session, error) {
	return s.listSessions(ctx, sessionPrefix)
}

func (s *ObjectStore) listSessions(ctx context.Context, prefix string) ([]models.Session, error) {
	var sessions []models.Session
	in := cloud.ListInput{Prefix: prefix}
	for {
		page, err := s.objects.List(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("failed to list session records: %w", err)
		}
		for _, key := range page.Keys {
			roomID, sessionID, ok := parseSessionKey(key)
			if !ok {
				continue
			}
			session, err := s.GetSession(ctx, roomID, sessionID)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			sessions = append(sessions, session)
		}
		if !page.Truncated {
			return sessions, nil
		}
		in.ContinuationToken = page.NextToken
	}
}

func parseSessionKey(key string) (roomID, sessionID string, ok bool) {
	rest := strings.TrimPrefix(key, sessionPrefix)
	rest, found := strings.CutSuffix(rest, ".json")
	if !found {
		return "", "", false
	}
	roomID, sessionID, ok = strings.Cut(rest, "/")
	if !ok || roomID == "" || sessionID == "" || strings.Contains(sessionID, "/") {
		return "", "", false
	}
	return roomID, sessionID, true
}

func (s *ObjectStore) put(ctx context.Context, key string, v any) error {
	body, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", key, err)
	}
	if err := s.objects.Put(ctx, key, body, jsonType); err != nil {
		return fmt.Errorf("failed to write record %s: %w", key, err)
	}
	return nil
}

func (s *ObjectStore) get(ctx context.Context, key string, v any) error {
	body, err := s.objects.Get(ctx, key)
	if errors.Is(err, cloud.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read record %s: %w", key, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode record %s: %w", key, err)
	}
	return nil
}

func (s *ObjectStore) delete(ctx context.Context, key string) error {
	err := s.objects.Delete(ctx, key)
	if err != nil && !errors.Is(err, cloud.ErrNotFound) {
		return fmt.Errorf("failed to delete record %s: %w", key, err)
	}
	return nil
}
