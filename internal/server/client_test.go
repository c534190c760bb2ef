package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/webchat-dev/webchat/internal/database"
	"github.com/webchat-dev/webchat/internal/types"
)

func TestClientRouteSubscribeGoesToServer(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{}, newMockStatsUpdater(), nil)
	client := newTestClient(t, cs, types.User{Id: 10, Username: "alice"})

	event := &ClientEvent{
		BaseEvent: BaseEvent{Id: 1},
		Subscribe: &Subscribe{RoomId: 1},
		UserId:    10,
		client:    client,
	}
	client.routeEvent(event)

	select {
	case queued := <-cs.subscribeChan:
		assert.Equal(t, event, queued)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("subscribe was not queued")
	}
}

func TestClientRouteUnsubscribeUnknownRoom(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{}, newMockStatsUpdater(), nil)
	client := newTestClient(t, cs, types.User{Id: 10, Username: "alice"})

	client.routeEvent(&ClientEvent{
		BaseEvent:   BaseEvent{Id: 1},
		Unsubscribe: &Unsubscribe{RoomId: 5},
		client:      client,
	})

	ack := recvEvent(t, client)
	assert.Equal(t, http.StatusOK, ack.Response.ResponseCode)
}

func TestClientRouteSendToUnsubscribedRoom(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{}, newMockStatsUpdater(), nil)
	client := newTestClient(t, cs, types.User{Id: 10, Username: "alice"})

	client.routeEvent(&ClientEvent{
		BaseEvent:   BaseEvent{Id: 1},
		SendMessage: &SendMessage{RoomId: 5, Message: "hello"},
		client:      client,
	})

	ack := recvEvent(t, client)
	assert.Equal(t, http.StatusForbidden, ack.Response.ResponseCode)

	client.routeEvent(&ClientEvent{
		BaseEvent:       BaseEvent{Id: 2},
		GetMoreMessages: &GetMoreMessages{RoomId: 5},
		client:          client,
	})

	ack = recvEvent(t, client)
	assert.Equal(t, http.StatusForbidden, ack.Response.ResponseCode)
}

func TestClientRouteEmptyEvent(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{}, newMockStatsUpdater(), nil)
	client := newTestClient(t, cs, types.User{Id: 10, Username: "alice"})

	client.routeEvent(&ClientEvent{BaseEvent: BaseEvent{Id: 9}, client: client})

	ack := recvEvent(t, client)
	assert.Equal(t, http.StatusBadRequest, ack.Response.ResponseCode)
}

func TestClientRoutedToSubscribedRoom(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{}, newMockStatsUpdater(), nil)
	client := newTestClient(t, cs, types.User{Id: 10, Username: "alice"})
	room := NewRoom(database.Room{Id: 5, Name: "general"}, cs)
	client.addRoom(room)

	event := &ClientEvent{
		BaseEvent:   BaseEvent{Id: 1},
		SendMessage: &SendMessage{RoomId: 5, Message: "hello"},
		client:      client,
	}
	client.routeEvent(event)

	select {
	case queued := <-room.eventChan:
		assert.Equal(t, event, queued)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("event was not routed to the room")
	}
}

func TestClientLeaveAllRooms(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{}, newMockStatsUpdater(), nil)
	client := newTestClient(t, cs, types.User{Id: 10, Username: "alice"})

	first := NewRoom(database.Room{Id: 1, Name: "general"}, cs)
	second := NewRoom(database.Room{Id: 2, Name: "random"}, cs)
	client.addRoom(first)
	client.addRoom(second)

	client.leaveAllRooms()

	for _, room := range []*Room{first, second} {
		select {
		case event := <-room.leaveChan:
			assert.True(t, event.disconnect)
			assert.Equal(t, room.id, event.Unsubscribe.RoomId)
			assert.Equal(t, 10, event.UserId)
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("no leave event for room %d", room.id)
		}
	}
}

func TestClientQueueMessageDropsWhenFull(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{}, newMockStatsUpdater(), nil)
	client := newTestClient(t, cs, types.User{Id: 10, Username: "alice"})
	client.send = make(chan *ServerEvent, 1)

	client.queueMessage(NoErrOK(1, nil))
	client.queueMessage(NoErrOK(2, nil))

	event := recvEvent(t, client)
	assert.Equal(t, 1, event.Id)
	assertNoEvent(t, client)
}
