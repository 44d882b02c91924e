package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/adi-253/webchat/backend/internal/cloud"
	"github.com/adi-253/webchat/backend/internal/models"
	"github.com/adi-253/webchat/backend/internal/policy"
	"github.com/sirupsen/logrus"
)

// systemAuthor is the author name of notices the service publishes itself.
const systemAuthor = "System Message"

// Effect is one side effect of a lifecycle transition.
type Effect string

const (
	EffectCloseTopic    Effect = "close-topic"
	EffectPublishClosed Effect = "publish-closed-notice"
	EffectMarkDraining  Effect = "mark-draining"
	EffectDeleteRoom    Effect = "delete-room"
	EffectDeleteQueues  Effect = "delete-session-queues"
)

// Transition returns the state a room moves to on its next lifecycle tick and
// the effects that move requires. DELETED is terminal.
func Transition(state models.RoomState) (models.RoomState, []Effect, error) {
	if !state.Valid() {
		return "", nil, fmt.Errorf("unknown room state %q", state)
	}
	switch state {
	case models.RoomOpen:
		return models.RoomDraining, []Effect{EffectCloseTopic, EffectPublishClosed, EffectMarkDraining}, nil
	case models.RoomDraining:
		return models.RoomDeleted, []Effect{EffectDeleteRoom, EffectDeleteQueues}, nil
	default:
		return models.RoomDeleted, nil, nil
	}
}

// LifecycleService runs one tick of a room's lifecycle per call. The
// orchestrator persists the returned state and waits WaitSeconds before the
// next tick. Every effect tolerates resources that are already gone, so a
// retried tick is safe.
type LifecycleService struct {
	deps     Deps
	rooms    *RoomService
	sessions *SessionService
}

// NewLifecycleService creates a new LifecycleService instance.
func NewLifecycleService(deps Deps, rooms *RoomService, sessions *SessionService) *LifecycleService {
	deps = deps.withDefaults()
	return &LifecycleService{deps: deps, rooms: rooms, sessions: sessions}
}

// Step applies the transition out of state.State. A state without one is a
// freshly started execution and counts as OPEN.
func (s *LifecycleService) Step(ctx context.Context, state models.LifecycleState) (models.LifecycleState, error) {
	if state.ID == "" {
		return state, fmt.Errorf("lifecycle state has no room id")
	}
	current := state.State
	if current == "" {
		current = models.RoomOpen
	}

	next, effects, err := Transition(current)
	if err != nil {
		return state, err
	}

	log := s.logger(ctx).WithFields(logrus.Fields{"room_id": state.ID, "state": current})
	for _, effect := range effects {
		if err := s.apply(ctx, state, effect); err != nil {
			log.WithField("effect", effect).WithError(err).Error("Lifecycle step failed")
			return state, err
		}
	}

	out := state
	out.State = next
	switch next {
	case models.RoomDraining:
		out.WaitSeconds = int64(s.deps.Config.InflightWait.Seconds())
	default:
		out.WaitSeconds = 0
	}
	if next != current {
		log.WithField("next_state", next).Info("Room lifecycle advanced")
	}
	return out, nil
}

func (s *LifecycleService) apply(ctx context.Context, state models.LifecycleState, effect Effect) error {
	topicARN := state.Config.TopicARN

	switch effect {
	case EffectCloseTopic:
		closed := policy.ClosedTopicPolicy(topicARN, s.deps.topicRoles())
		err := s.deps.Topics.SetTopicAttribute(ctx, topicARN, cloud.TopicAttributePolicy, closed.String())
		if err != nil && !cloud.IsGone(err) {
			return fmt.Errorf("failed to close room topic: %w", err)
		}
		return nil

	case EffectPublishClosed:
		notice := models.Message{
			IdentityID: models.SystemIdentity,
			AuthorName: systemAuthor,
			Message:    "The room is now closed.",
			Timestamp:  s.deps.Now().Unix(),
			Type:       models.MessageTypeRoomClosed,
		}
		body, err := json.Marshal(notice)
		if err != nil {
			return err
		}
		if _, err := s.deps.Topics.Publish(ctx, topicARN, string(body)); err != nil && !cloud.IsGone(err) {
			return fmt.Errorf("failed to publish room closed notice: %w", err)
		}
		return nil

	case EffectMarkDraining:
		return s.rooms.MarkDraining(ctx, state.ID)

	case EffectDeleteRoom:
		return s.rooms.DeleteRoom(ctx, models.Room{
			ID:       state.ID,
			TopicARN: topicARN,
			LogGroup: state.Config.LogGroup,
		})

	case EffectDeleteQueues:
		return s.sessions.DeleteRoomSessions(ctx, state.ID)
	}
	return fmt.Errorf("unknown lifecycle effect %q", effect)
}

func (s *LifecycleService) logger(ctx context.Context) logrus.FieldLogger {
	return s.deps.logger(ctx, "lifecycle")
}
