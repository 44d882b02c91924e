// Package records stores the room and session records that let the services
// find a room's topic and clean up provider resources later.
package records

import (
	"context"
	"errors"

	"github.com/adi-253/webchat/backend/internal/models"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("records: not found")

// Store persists room and session records. Deletes are idempotent.
type Store interface {
	PutRoom(ctx context.Context, room models.Room) error
	GetRoom(ctx context.Context, roomID string) (models.Room, error)
	DeleteRoom(ctx context.Context, roomID string) error

	PutSession(ctx context.Context, session models.Session) error
	GetSession(ctx context.Context, roomID, sessionID string) (models.Session, error)
	DeleteSession(ctx context.Context, roomID, sessionID string) error
	ListSessions(ctx context.Context, roomID string) ([]models.Session, error)
	ListAllSessions(ctx context.Context) ([]models.Session, error)
}
