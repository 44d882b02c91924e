package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/adi-253/webchat/backend/internal/cloud"
	"github.com/adi-253/webchat/backend/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	messageVersion         = "1"
	maxClientMessageIDSize = 36
	// deleteBatchSize is the most entries one batch delete accepts.
	deleteBatchSize = 10
)

// MessageService posts messages to room topics and lets sessions poll and
// acknowledge what their queue received.
type MessageService struct {
	deps     Deps
	rooms    *RoomService
	sessions *SessionService
}

// NewMessageService creates a new MessageService instance.
func NewMessageService(deps Deps, rooms *RoomService, sessions *SessionService) *MessageService {
	deps = deps.withDefaults()
	return &MessageService{deps: deps, rooms: rooms, sessions: sessions}
}

// ValidatePost checks a post request before any provider call is made.
func ValidatePost(req models.PostMessageRequest) error {
	version := req.Version
	if version == "" {
		version = messageVersion
	}
	if version != messageVersion {
		return BadRequest("Unsupported message version: %s", version)
	}
	if len(req.ClientMessageID) > maxClientMessageIDSize {
		return BadRequest("Parameter \"client-message-id\" must be %d bytes or fewer.", maxClientMessageIDSize)
	}
	return nil
}

// PostMessage publishes a message to the room topic and returns the id the
// topic assigned to it.
func (s *MessageService) PostMessage(ctx context.Context, roomID string, caller models.Identity, req models.PostMessageRequest) (string, error) {
	if err := ValidatePost(req); err != nil {
		return "", err
	}

	room, err := s.rooms.RoomTopic(ctx, roomID)
	if errors.Is(err, ErrRoomNotFound) {
		return "", roomUnavailable(roomID)
	}
	if err != nil {
		return "", err
	}

	msg := models.Message{
		IdentityID:      caller.ID,
		AuthorName:      s.authorName(ctx, caller),
		Message:         req.Message,
		Timestamp:       s.deps.Now().Unix(),
		ClientMessageID: req.ClientMessageID,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}

	messageID, err := s.deps.Topics.Publish(ctx, room.TopicARN, string(body))
	if err != nil {
		if errors.Is(err, cloud.ErrNotFound) || errors.Is(err, cloud.ErrUnauthorized) || errors.Is(err, cloud.ErrInvalidParameter) {
			return "", roomUnavailable(roomID)
		}
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	s.logger(ctx).WithFields(logrus.Fields{"room_id": roomID, "message_id": messageID}).Debug("Message posted")
	return messageID, nil
}

// authorName prefers the name the caller presented, then the directory, then
// the bare identity id.
func (s *MessageService) authorName(ctx context.Context, caller models.Identity) string {
	if caller.Name != "" {
		return caller.Name
	}
	if s.deps.Directory != nil && caller.AuthProvider != "" {
		name, err := s.deps.Directory.DisplayName(ctx, caller.AuthProvider)
		if err == nil && name != "" {
			return name
		}
		if err != nil {
			s.logger(ctx).WithField("identity_id", caller.ID).WithError(err).Warn("Failed to resolve author name")
		}
	}
	return caller.ID
}

// PollMessages long-polls the session queue. An empty result after the wait
// is not an error.
func (s *MessageService) PollMessages(ctx context.Context, roomID, sessionID string) (models.PollResponse, error) {
	queueURL, err := s.sessions.QueueURL(ctx, roomID, sessionID)
	if err != nil {
		return models.PollResponse{}, err
	}

	cfg := s.deps.Config
	deliveries, err := s.deps.Queues.Receive(ctx, queueURL, cfg.PollBatchSize, cfg.PollWait)
	if errors.Is(err, cloud.ErrNotFound) {
		s.sessions.Forget(roomID, sessionID)
		return models.PollResponse{}, sessionUnavailable()
	}
	if err != nil {
		return models.PollResponse{}, fmt.Errorf("failed to receive messages: %w", err)
	}

	resp := models.PollResponse{Messages: []models.Message{}, ReceiptHandles: []string{}}
	var poison []string
	for _, d := range deliveries {
		msg, err := unwrapDelivery(d)
		if err != nil {
			s.logger(ctx).WithFields(logrus.Fields{"session_id": sessionID, "delivery_id": d.MessageID}).
				WithError(err).Error("Dropping undecodable delivery")
			poison = append(poison, d.ReceiptHandle)
			continue
		}
		resp.Messages = append(resp.Messages, msg)
		resp.ReceiptHandles = append(resp.ReceiptHandles, d.ReceiptHandle)
	}
	if len(poison) > 0 {
		s.deleteHandles(ctx, queueURL, poison)
	}
	return resp, nil
}

// unwrapDelivery recovers the posted message from the topic notification the
// queue holds, and stamps it with the topic's message id.
func unwrapDelivery(d cloud.Delivery) (models.Message, error) {
	var n cloud.Notification
	if err := json.Unmarshal([]byte(d.Body), &n); err != nil {
		return models.Message{}, fmt.Errorf("failed to decode notification: %w", err)
	}
	var msg models.Message
	if err := json.Unmarshal([]byte(n.Message), &msg); err != nil {
		return models.Message{}, fmt.Errorf("failed to decode message: %w", err)
	}
	msg.MessageID = n.MessageID
	if msg.MessageID == "" {
		msg.MessageID = d.MessageID
	}
	return msg, nil
}

// AcknowledgeMessages deletes the acknowledged messages from the session
// queue. Handles that fail to delete are logged; the client sees them again
// on a later poll.
func (s *MessageService) AcknowledgeMessages(ctx context.Context, roomID, sessionID string, handles []string) error {
	if len(handles) == 0 {
		return BadRequest("Value for \"receipt-handles\" must be an array including at least one string.")
	}

	queueURL, err := s.sessions.QueueURL(ctx, roomID, sessionID)
	if err != nil {
		return err
	}

	if err := s.deleteHandles(ctx, queueURL, handles); err != nil {
		if errors.Is(err, cloud.ErrNotFound) {
			s.sessions.Forget(roomID, sessionID)
			return sessionUnavailable()
		}
		return err
	}
	return nil
}

// deleteHandles deletes in batches. Per-entry failures don't stop the
// remaining batches; only a failed batch call is returned.
func (s *MessageService) deleteHandles(ctx context.Context, queueURL string, handles []string) error {
	for start := 0; start < len(handles); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(handles))

		entries := make([]cloud.DeleteEntry, 0, end-start)
		for i := start; i < end; i++ {
			entries = append(entries, cloud.DeleteEntry{ID: strconv.Itoa(i), ReceiptHandle: handles[i]})
		}

		failures, err := s.deps.Queues.DeleteBatch(ctx, queueURL, entries)
		if err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		for _, f := range failures {
			s.logger(ctx).WithFields(logrus.Fields{"entry": f.ID, "code": f.Code}).Warn("Failed to acknowledge message: " + f.Message)
		}
	}
	return nil
}

func (s *MessageService) logger(ctx context.Context) logrus.FieldLogger {
	return s.deps.logger(ctx, "message")
}
