package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ClientError is a failure the caller caused. Status and Message are sent to
// the client as is.
type ClientError struct {
	Status  int
	Message string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// BadRequest builds a 400 ClientError.
func BadRequest(format string, args ...any) *ClientError {
	return &ClientError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// ErrRoomNotFound is returned by RoomTopic when no open room has the id.
var ErrRoomNotFound = errors.New("room not found")

const internalMessage = "Internal server error."

// StatusOf maps an error to the HTTP status sent to the client.
func StatusOf(err error) int {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Status
	}
	return http.StatusInternalServerError
}

// PublicMessage is the message sent to the client. Internal errors never leak
// provider details.
func PublicMessage(err error) string {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return internalMessage
}

func roomUnavailable(roomID string) *ClientError {
	return BadRequest("Room %q either doesn't exist or you don't have access to it.", roomID)
}

func roomSpecifiedUnavailable() *ClientError {
	return BadRequest("Room specified doesn't exist or you don't have access to it.")
}

func sessionUnavailable() *ClientError {
	return BadRequest("Room session doesn't exist or you don't have access to it.")
}
