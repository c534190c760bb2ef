package server

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/webchat-dev/webchat/internal/types"
)

func TestClientEventDecoding(t *testing.T) {
	raw := `{"id":7,"subscribe":{"roomId":3,"earlierThan":"2026-08-30T12:00:00Z"}}`

	var event ClientEvent
	assert.NoError(t, json.Unmarshal([]byte(raw), &event))
	assert.Equal(t, 7, event.Id)
	assert.NotNil(t, event.Subscribe)
	assert.Equal(t, 3, event.Subscribe.RoomId)
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), *event.Subscribe.EarlierThan)
	assert.Nil(t, event.SendMessage)

	raw = `{"id":8,"getMoreMessages":{"roomId":3,"earlierThan":null}}`
	event = ClientEvent{}
	assert.NoError(t, json.Unmarshal([]byte(raw), &event))
	assert.NotNil(t, event.GetMoreMessages)
	assert.Nil(t, event.GetMoreMessages.EarlierThan)
}

func TestServerEventEncoding(t *testing.T) {
	event := &ServerEvent{
		BaseEvent: BaseEvent{Timestamp: ts(100)},
		Message: &types.Message{
			Id:             1,
			RoomId:         2,
			SenderId:       3,
			SenderUsername: "alice",
			Message:        "hello",
			CreatedAt:      ts(100),
		},
	}

	data, err := json.Marshal(event)
	assert.NoError(t, err)
	assert.JSONEq(t, `{
		"timestamp": "1970-01-01T00:00:00.1Z",
		"message": {
			"id": 1,
			"roomId": 2,
			"senderId": 3,
			"senderUsername": "alice",
			"message": "hello",
			"createdAt": "1970-01-01T00:00:00.1Z"
		}
	}`, string(data))

	event = &ServerEvent{
		BaseEvent:      BaseEvent{Timestamp: ts(100)},
		PrependMessage: &types.Message{Id: 1, RoomId: 2, SenderId: 3, SenderUsername: "alice", Message: "old", CreatedAt: ts(50)},
	}
	data, err = json.Marshal(event)
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"prependMessage"`)
	assert.NotContains(t, string(data), `"response"`)
}

func TestResponseHelpers(t *testing.T) {
	assert.Equal(t, http.StatusOK, NoErrOK(1, nil).Response.ResponseCode)
	assert.Equal(t, http.StatusAccepted, NoErrAccepted(1).Response.ResponseCode)
	assert.Equal(t, http.StatusNotFound, ErrRoomNotFound(1).Response.ResponseCode)
	assert.Equal(t, http.StatusForbidden, ErrNotRoomMember(1).Response.ResponseCode)
	assert.Equal(t, http.StatusForbidden, ErrNotSubscribed(1).Response.ResponseCode)
	assert.Equal(t, http.StatusInternalServerError, ErrInternalError(1).Response.ResponseCode)
	assert.Equal(t, http.StatusServiceUnavailable, ErrServiceUnavailable(1).Response.ResponseCode)
	assert.Equal(t, http.StatusBadRequest, ErrInvalidMessage(1).Response.ResponseCode)
	assert.Equal(t, 1, NoErrOK(1, nil).Id)
	assert.Zero(t, ErrInvalidMessage(0).Id)
}

func TestNowIsUTCMilliseconds(t *testing.T) {
	now := Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.Zero(t, now.Nanosecond()%int(time.Millisecond))
}
