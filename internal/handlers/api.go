package handlers

import (
	"context"
	"net/http"

	"github.com/adi-253/webchat/backend/internal/gateway"
	"github.com/adi-253/webchat/backend/internal/logging"
	"github.com/adi-253/webchat/backend/internal/models"
	"github.com/adi-253/webchat/backend/internal/services"
	"github.com/sirupsen/logrus"
)

const invalidReceiptHandles = `Value for "receipt-handles" must be an array including at least one string.`

// Operation handles one API route and returns the value to send as JSON.
type Operation func(ctx context.Context, req gateway.Request) (any, error)

// Route binds an operation to a method and resource. Resources use the
// API Gateway {param} syntax, which chi understands as well.
type Route struct {
	Method    string
	Resource  string
	Operation Operation
}

// API holds the services behind the HTTP operations.
type API struct {
	rooms    *services.RoomService
	sessions *services.SessionService
	messages *services.MessageService
	archive  *services.ArchiveService
	log      logrus.FieldLogger
}

// NewAPI creates the API handlers.
func NewAPI(rooms *services.RoomService, sessions *services.SessionService, messages *services.MessageService, archive *services.ArchiveService, log logrus.FieldLogger) *API {
	return &API{rooms: rooms, sessions: sessions, messages: messages, archive: archive, log: log}
}

// Routes lists every API operation.
func (a *API) Routes() []Route {
	return []Route{
		{http.MethodPost, "/room", a.CreateRoom},
		{http.MethodPost, "/room/{room-id}/session", a.CreateSession},
		{http.MethodDelete, "/room/{room-id}/session/{session-id}", a.DeleteSession},
		{http.MethodPost, "/room/{room-id}/message", a.PostMessage},
		{http.MethodGet, "/room/{room-id}/message", a.FetchLog},
		{http.MethodGet, "/room/{room-id}/session/{session-id}/message", a.PollMessages},
		{http.MethodPut, "/room/{room-id}/session/{session-id}/message", a.AcknowledgeMessages},
	}
}

// Serve runs an operation and returns the status and JSON body to send.
// Internal errors are logged here with the request context; the client only
// sees a generic message.
func (a *API) Serve(ctx context.Context, op Operation, req gateway.Request) (int, any) {
	log := a.log.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"method":     req.Method,
		"resource":   req.Resource,
	})
	ctx = logging.WithContext(ctx, log)

	result, err := op(ctx, req)
	if err != nil {
		status := services.StatusOf(err)
		if status >= http.StatusInternalServerError {
			log.WithFields(logrus.Fields{"room_id": req.RoomID, "session_id": req.SessionID}).
				WithError(err).Error("Request failed")
		} else {
			log.WithField("status", status).Debug(services.PublicMessage(err))
		}
		return status, gateway.ErrorBody{Message: services.PublicMessage(err)}
	}
	return http.StatusOK, result
}

// CreateRoom handles POST /room
func (a *API) CreateRoom(ctx context.Context, req gateway.Request) (any, error) {
	room, err := a.rooms.CreateRoom(ctx)
	if err != nil {
		return nil, err
	}
	return models.CreateRoomResponse{ID: room.ID, Room: req.BaseURL + "/room/" + room.ID}, nil
}

// CreateSession handles POST /room/{room-id}/session
func (a *API) CreateSession(ctx context.Context, req gateway.Request) (any, error) {
	session, err := a.sessions.CreateSession(ctx, req.RoomID, req.Caller)
	if err != nil {
		return nil, err
	}
	return models.CreateSessionResponse{ID: session.ID}, nil
}

// DeleteSession handles DELETE /room/{room-id}/session/{session-id}
func (a *API) DeleteSession(ctx context.Context, req gateway.Request) (any, error) {
	if err := a.sessions.DeleteSession(ctx, req.RoomID, req.SessionID, req.Caller); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

// PostMessage handles POST /room/{room-id}/message
func (a *API) PostMessage(ctx context.Context, req gateway.Request) (any, error) {
	var body models.PostMessageRequest
	if err := req.DecodeBody(&body); err != nil {
		return nil, services.BadRequest("Request body must be a JSON object with a \"message\" string.")
	}
	id, err := a.messages.PostMessage(ctx, req.RoomID, req.Caller, body)
	if err != nil {
		return nil, err
	}
	return models.PostMessageResponse{MessageID: id}, nil
}

// FetchLog handles GET /room/{room-id}/message
// Query params: direction (reverse), from (unix timestamp), next-token.
func (a *API) FetchLog(ctx context.Context, req gateway.Request) (any, error) {
	return a.archive.FetchLog(ctx, req.RoomID, services.LogQuery{
		Direction: req.Query["direction"],
		From:      req.Query["from"],
		NextToken: req.Query["next-token"],
	})
}

// PollMessages handles GET /room/{room-id}/session/{session-id}/message
func (a *API) PollMessages(ctx context.Context, req gateway.Request) (any, error) {
	return a.messages.PollMessages(ctx, req.RoomID, req.SessionID)
}

// AcknowledgeMessages handles PUT /room/{room-id}/session/{session-id}/message
func (a *API) AcknowledgeMessages(ctx context.Context, req gateway.Request) (any, error) {
	var body models.AcknowledgeRequest
	if err := req.DecodeBody(&body); err != nil {
		return nil, services.BadRequest(invalidReceiptHandles)
	}
	if err := a.messages.AcknowledgeMessages(ctx, req.RoomID, req.SessionID, body.ReceiptHandles); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}
