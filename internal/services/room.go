package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adi-253/webchat/backend/internal/cloud"
	"github.com/adi-253/webchat/backend/internal/models"
	"github.com/adi-253/webchat/backend/internal/policy"
	"github.com/adi-253/webchat/backend/internal/records"
	"github.com/sirupsen/logrus"
)

// Dwell time metric extracted from each room's delivery status log group.
const (
	dwellFilterName    = "SNSRoomTopicDwellTime"
	dwellFilterPattern = "{ $.delivery.dwellTimeMs > 0 }"
	dwellMetricName    = "DwellTimeMs"
	dwellMetricValue   = "$.delivery.dwellTimeMs"
)

// RoomService handles room creation, lookup and teardown.
// Each room is one topic plus a record pointing at it.
type RoomService struct {
	deps Deps
	name Naming
}

// NewRoomService creates a new RoomService instance.
func NewRoomService(deps Deps) *RoomService {
	deps = deps.withDefaults()
	return &RoomService{deps: deps, name: deps.naming()}
}

// CreateRoom provisions the room topic, its open policy and delivery logging,
// records the room, and schedules its lifecycle. A failure part way through
// tears down whatever was created.
func (s *RoomService) CreateRoom(ctx context.Context) (models.Room, error) {
	roomID := s.deps.NewRoomID()
	log := s.logger(ctx).WithField("room_id", roomID)

	topicARN, err := s.deps.Topics.CreateTopic(ctx, s.name.TopicName(roomID))
	if err != nil {
		return models.Room{}, fmt.Errorf("failed to create room topic: %w", err)
	}

	room := models.Room{
		ID:       roomID,
		Created:  s.deps.Now().Unix(),
		Duration: int64(s.deps.Config.RoomDuration.Seconds()),
		TopicARN: topicARN,
		State:    models.RoomOpen,
	}

	if err := s.provision(ctx, &room); err != nil {
		log.WithError(err).Error("Room provisioning failed, tearing down")
		if cleanupErr := s.DeleteRoom(ctx, room); cleanupErr != nil {
			log.WithError(cleanupErr).Error("Failed to tear down partially created room")
		}
		return models.Room{}, err
	}

	log.WithField("topic_arn", topicARN).Info("Room created")
	return room, nil
}

func (s *RoomService) provision(ctx context.Context, room *models.Room) error {
	cfg := s.deps.Config

	open := policy.OpenTopicPolicy(room.TopicARN, s.deps.topicRoles())
	attributes := [][2]string{{cloud.TopicAttributePolicy, open.String()}}
	if cfg.Roles.FailureFeedback != "" {
		attributes = append(attributes, [2]string{cloud.TopicAttributeFailureFeedback, cfg.Roles.FailureFeedback})
	}
	if cfg.Roles.SuccessFeedback != "" {
		attributes = append(attributes, [2]string{cloud.TopicAttributeSuccessFeedback, cfg.Roles.SuccessFeedback})
	}
	for _, attr := range attributes {
		if err := s.deps.Topics.SetTopicAttribute(ctx, room.TopicARN, attr[0], attr[1]); err != nil {
			return fmt.Errorf("failed to set room topic %s: %w", attr[0], err)
		}
	}

	if s.deps.LogGroups != nil {
		group := s.name.LogGroupName(room.ID)
		err := s.deps.LogGroups.CreateLogGroup(ctx, group)
		if err != nil && !errors.Is(err, cloud.ErrAlreadyExists) {
			return fmt.Errorf("failed to create room log group: %w", err)
		}
		room.LogGroup = group

		err = s.deps.LogGroups.PutMetricFilter(ctx, group, cloud.MetricFilter{
			Name:        dwellFilterName,
			Pattern:     dwellFilterPattern,
			MetricName:  dwellMetricName,
			Namespace:   cfg.MetricNamespace,
			MetricValue: dwellMetricValue,
		})
		if err != nil {
			return fmt.Errorf("failed to create dwell time metric filter: %w", err)
		}
	}

	if err := s.deps.Records.PutRoom(ctx, *room); err != nil {
		return fmt.Errorf("failed to record room: %w", err)
	}

	if cfg.ArchiverFunctionARN != "" {
		if _, err := s.deps.Topics.Subscribe(ctx, room.TopicARN, cloud.ProtocolLambda, cfg.ArchiverFunctionARN); err != nil {
			return fmt.Errorf("failed to subscribe archiver: %w", err)
		}
		s.publishOpenNotice(ctx, *room)
	}

	if s.deps.Orchestrator != nil {
		state := models.LifecycleState{
			ID:          room.ID,
			Config:      models.LifecycleConfig{TopicARN: room.TopicARN, LogGroup: room.LogGroup, Duration: room.Duration},
			State:       models.RoomOpen,
			WaitSeconds: room.Duration,
		}
		if _, err := s.deps.Orchestrator.StartRoomLifecycle(ctx, state); err != nil {
			return fmt.Errorf("failed to start room lifecycle: %w", err)
		}
	}
	return nil
}

// publishOpenNotice starts the room's event log. Only the archiver is
// subscribed at this point, so sessions never see it.
func (s *RoomService) publishOpenNotice(ctx context.Context, room models.Room) {
	notice := models.Message{
		IdentityID: models.SystemIdentity,
		AuthorName: systemAuthor,
		Message:    "The room is now open.",
		Timestamp:  room.Created,
		Type:       models.MessageTypeRoomOpen,
	}
	body, _ := json.Marshal(notice)
	if _, err := s.deps.Topics.Publish(ctx, room.TopicARN, string(body)); err != nil {
		s.logger(ctx).WithField("room_id", room.ID).WithError(err).Warn("Failed to publish room open notice")
	}
}

// RoomTopic returns the room record. Unknown, malformed and closed rooms all
// yield ErrRoomNotFound.
func (s *RoomService) RoomTopic(ctx context.Context, roomID string) (models.Room, error) {
	if !ValidRoomID(roomID) {
		return models.Room{}, ErrRoomNotFound
	}
	room, err := s.deps.Records.GetRoom(ctx, roomID)
	if errors.Is(err, records.ErrNotFound) {
		return models.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("failed to look up room %s: %w", roomID, err)
	}
	if room.State != models.RoomOpen {
		return models.Room{}, ErrRoomNotFound
	}
	return room, nil
}

// MarkDraining records that the room no longer accepts sessions or posts.
// A missing record is left missing.
func (s *RoomService) MarkDraining(ctx context.Context, roomID string) error {
	room, err := s.deps.Records.GetRoom(ctx, roomID)
	if errors.Is(err, records.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up room %s: %w", roomID, err)
	}
	if room.State != models.RoomOpen {
		return nil
	}
	room.State = models.RoomDraining
	if err := s.deps.Records.PutRoom(ctx, room); err != nil {
		return fmt.Errorf("failed to record room %s as draining: %w", roomID, err)
	}
	return nil
}

// DeleteRoom removes the room topic, its log group and its record. Resources
// that are already gone count as deleted, so repeated calls succeed.
func (s *RoomService) DeleteRoom(ctx context.Context, room models.Room) error {
	log := s.logger(ctx).WithField("room_id", room.ID)

	if room.TopicARN != "" {
		err := s.deps.Topics.DeleteTopic(ctx, room.TopicARN)
		switch {
		case err == nil:
			log.WithField("topic_arn", room.TopicARN).Info("Room topic deleted")
		case cloud.IsGone(err):
			// A deleted topic reports AuthorizationError rather than NotFound.
			log.WithField("topic_arn", room.TopicARN).Debug("Room topic already gone")
		default:
			return fmt.Errorf("failed to delete room topic: %w", err)
		}
	}

	if room.LogGroup != "" && s.deps.LogGroups != nil {
		err := s.deps.LogGroups.DeleteLogGroup(ctx, room.LogGroup)
		if err != nil && !errors.Is(err, cloud.ErrNotFound) {
			return fmt.Errorf("failed to delete room log group: %w", err)
		}
	}

	if err := s.deps.Records.DeleteRoom(ctx, room.ID); err != nil {
		return fmt.Errorf("failed to delete room record: %w", err)
	}
	return nil
}

func (s *RoomService) logger(ctx context.Context) logrus.FieldLogger {
	return s.deps.logger(ctx, "room")
}
