package server

import (
	"net/http"
	"time"

	"github.com/webchat-dev/webchat/internal/types"
)

type BaseEvent struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientEvent is the envelope for everything a connection sends us.
// Exactly one of the event fields is set.
type ClientEvent struct {
	BaseEvent
	Subscribe       *Subscribe       `json:"subscribe,omitempty"`
	Unsubscribe     *Unsubscribe     `json:"unsubscribe,omitempty"`
	SendMessage     *SendMessage     `json:"sendMessage,omitempty"`
	GetMoreMessages *GetMoreMessages `json:"getMoreMessages,omitempty"`

	UserId   int     `json:"-"`
	Username string  `json:"-"`
	client   *Client `json:"-"`
	// disconnect marks unsubscribes generated by connection teardown,
	// which must not be acknowledged.
	disconnect bool
}

type Subscribe struct {
	RoomId      int        `json:"roomId"`
	EarlierThan *time.Time `json:"earlierThan,omitempty"`
}

type Unsubscribe struct {
	RoomId int `json:"roomId"`
}

type SendMessage struct {
	RoomId  int    `json:"roomId"`
	Message string `json:"message"`
}

type GetMoreMessages struct {
	RoomId      int        `json:"roomId"`
	EarlierThan *time.Time `json:"earlierThan"`
}

// ServerEvent is the envelope for everything we send a connection.
// Message carries live broadcasts and initial history replay;
// PrependMessage carries older pages fetched through pagination.
type ServerEvent struct {
	BaseEvent
	Response       *Response      `json:"response,omitempty"`
	Message        *types.Message `json:"message,omitempty"`
	PrependMessage *types.Message `json:"prependMessage,omitempty"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

func NoErrOK(id int, data map[string]any) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func ErrRoomNotFound(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "room not found",
		},
	}
}

func ErrNotRoomMember(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        "not a room member",
		},
	}
}

func ErrNotSubscribed(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        "not subscribed to room",
		},
	}
}

func ErrInternalError(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerEvent {
	msg := &ServerEvent{
		BaseEvent: BaseEvent{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
