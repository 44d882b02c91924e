package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adi-253/webchat/backend/internal/cloud"
	"github.com/adi-253/webchat/backend/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// DirectionReverse lists the event log newest first. It is the only
	// direction the key layout supports.
	DirectionReverse = "reverse"

	logPageSize   = 10
	logFetchLimit = 10
)

// LogQuery selects a page of a room's event log.
type LogQuery struct {
	Direction string
	// From is a unix timestamp; only messages at or before it are listed.
	// It defaults to now.
	From string
	// NextToken continues a previous listing.
	NextToken string
}

// ArchiveService writes every message a room topic delivers to the object
// store, and reads the event log back.
type ArchiveService struct {
	deps Deps
	name Naming
}

// NewArchiveService creates a new ArchiveService instance.
func NewArchiveService(deps Deps) *ArchiveService {
	deps = deps.withDefaults()
	return &ArchiveService{deps: deps, name: deps.naming()}
}

// ArchiveDelivery stores one delivered message. The key only depends on the
// message, so a redelivery overwrites the same object.
func (s *ArchiveService) ArchiveDelivery(ctx context.Context, topicARN, messageID, message string, published time.Time) error {
	roomID, err := s.name.RoomIDFromTopicARN(topicARN)
	if err != nil {
		return err
	}
	if messageID == "" {
		return fmt.Errorf("delivery on %s has no message id", topicARN)
	}

	var msg models.Message
	if err := json.Unmarshal([]byte(message), &msg); err != nil {
		return fmt.Errorf("failed to decode delivered message %s: %w", messageID, err)
	}
	ts := msg.Timestamp
	if ts <= 0 {
		ts = published.Unix()
	}

	key := ArchiveKey(roomID, ts, messageID)
	if err := s.deps.Objects.Put(ctx, key, []byte(message), "application/json"); err != nil {
		return fmt.Errorf("failed to archive message %s: %w", messageID, err)
	}
	s.logger(ctx).WithFields(logrus.Fields{"room_id": roomID, "message_id": messageID}).Debug("Message archived")
	return nil
}

// ValidateLogQuery checks the query parameters of a log fetch.
func ValidateLogQuery(q LogQuery) error {
	if q.Direction != "" && q.Direction != DirectionReverse {
		return BadRequest("URL parameter \"direction\" should be one of: %s", DirectionReverse)
	}
	if q.From != "" {
		if ts, err := strconv.ParseInt(q.From, 10, 64); err != nil || ts < 0 {
			return BadRequest("URL parameter \"from\" should be a unix timestamp.")
		}
	}
	return nil
}

// FetchLog returns one page of the room's event log, newest first. The log
// outlives the room, so a deleted room's log can still be read.
func (s *ArchiveService) FetchLog(ctx context.Context, roomID string, q LogQuery) (models.LogPage, error) {
	if !ValidRoomID(roomID) {
		return models.LogPage{}, roomUnavailable(roomID)
	}
	if err := ValidateLogQuery(q); err != nil {
		return models.LogPage{}, err
	}

	prefix := archiveRoomPrefix(roomID)
	in := cloud.ListInput{Prefix: prefix, ContinuationToken: q.NextToken, MaxKeys: logPageSize}
	if q.NextToken == "" {
		from := s.deps.Now().Unix()
		if q.From != "" {
			from, _ = strconv.ParseInt(q.From, 10, 64)
		}
		in.StartAfter = prefix + ReverseTimestamp(from) + "-"
	}

	page, err := s.deps.Objects.List(ctx, in)
	if err != nil {
		return models.LogPage{}, fmt.Errorf("failed to list event log: %w", err)
	}

	messages := make([]*models.Message, len(page.Keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(logFetchLimit)
	for i, key := range page.Keys {
		i, key := i, key
		g.Go(func() error {
			msg, ok, err := s.readEntry(gctx, key)
			if err != nil || !ok {
				return err
			}
			messages[i] = &msg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.LogPage{}, err
	}

	out := models.LogPage{Messages: make([]models.Message, 0, len(messages)), Truncated: page.Truncated, NextToken: page.NextToken}
	for _, msg := range messages {
		if msg != nil {
			out.Messages = append(out.Messages, *msg)
		}
	}
	return out, nil
}

// readEntry loads one archived message. Entries deleted since the listing and
// keys that are not archive entries are skipped.
func (s *ArchiveService) readEntry(ctx context.Context, key string) (models.Message, bool, error) {
	ts, messageID, ok := parseArchiveKey(key)
	if !ok {
		s.logger(ctx).WithField("key", key).Warn("Skipping unrecognized event log key")
		return models.Message{}, false, nil
	}

	body, err := s.deps.Objects.Get(ctx, key)
	if errors.Is(err, cloud.ErrNotFound) {
		return models.Message{}, false, nil
	}
	if err != nil {
		return models.Message{}, false, fmt.Errorf("failed to read event log entry %s: %w", key, err)
	}

	var msg models.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		s.logger(ctx).WithField("key", key).WithError(err).Warn("Skipping undecodable event log entry")
		return models.Message{}, false, nil
	}
	msg.MessageID = messageID
	if msg.Timestamp == 0 {
		msg.Timestamp = ts
	}
	return msg, true, nil
}

func (s *ArchiveService) logger(ctx context.Context) logrus.FieldLogger {
	return s.deps.logger(ctx, "archive")
}
