package server

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/webchat-dev/webchat/internal/database"
	"github.com/webchat-dev/webchat/internal/stats"
	"github.com/webchat-dev/webchat/internal/types"
)

func TestNewChatServerRegistersMetrics(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", stats.MetricActiveClients).Once()
	su.On("RegisterMetric", stats.MetricActiveRooms).Once()
	su.On("RegisterMetric", stats.MetricMessages).Once()
	su.On("RegisterMetric", stats.MetricHistoryQueries).Once()

	newTestChatServer(t, &database.MockChatRepository{}, su, nil)
	su.AssertExpectations(t)
}

func TestChatServerSubscribeLoadsRoom(t *testing.T) {
	db := &database.MockChatRepository{}
	db.On("GetRoomById", 1).Return(database.Room{Id: 1, Name: "general"}, nil).Once()
	db.On("IsRoomMember", 1, 10).Return(true, nil)
	db.On("GetRoomMessages", 1, 20, (*time.Time)(nil)).Return([]database.Message{}, nil)

	su := newMockStatsUpdater()
	cs := newTestChatServer(t, db, su, nil)
	go cs.Run()

	client := newTestClient(t, cs, types.User{Id: 10, Username: "alice"})
	cs.Subscribe(&ClientEvent{
		BaseEvent: BaseEvent{Id: 1},
		Subscribe: &Subscribe{RoomId: 1},
		UserId:    10,
		client:    client,
	})

	ack := recvEvent(t, client)
	assert.Equal(t, http.StatusOK, ack.Response.ResponseCode)
	su.AssertCalled(t, "Incr", stats.MetricActiveRooms)

	// second subscriber reuses the loaded room
	other := newTestClient(t, cs, types.User{Id: 10, Username: "alice"})
	cs.Subscribe(&ClientEvent{
		BaseEvent: BaseEvent{Id: 1},
		Subscribe: &Subscribe{RoomId: 1},
		UserId:    10,
		client:    other,
	})

	ack = recvEvent(t, other)
	assert.Equal(t, http.StatusOK, ack.Response.ResponseCode)
	db.AssertExpectations(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, cs.Shutdown(ctx))
}

func TestChatServerSubscribeRoomNotFound(t *testing.T) {
	db := &database.MockChatRepository{}
	db.On("GetRoomById", 42).Return(database.Room{}, sql.ErrNoRows)

	cs := newTestChatServer(t, db, newMockStatsUpdater(), nil)
	go cs.Run()

	client := newTestClient(t, cs, types.User{Id: 10, Username: "alice"})
	cs.Subscribe(&ClientEvent{
		BaseEvent: BaseEvent{Id: 1},
		Subscribe: &Subscribe{RoomId: 42},
		UserId:    10,
		client:    client,
	})

	ack := recvEvent(t, client)
	assert.Equal(t, http.StatusNotFound, ack.Response.ResponseCode)
	assert.Empty(t, cs.rooms)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, cs.Shutdown(ctx))
}

func TestChatServerRegisterDeRegisterClient(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Times(4)
	su.On("Incr", stats.MetricActiveClients).Once()
	su.On("Decr", stats.MetricActiveClients).Once()

	cs := newTestChatServer(t, &database.MockChatRepository{}, su, nil)
	client := newTestClient(t, cs, types.User{Id: 10, Username: "alice"})

	cs.RegisterClient(client)
	assert.Contains(t, cs.clients, client)

	cs.DeRegisterClient(client)
	assert.NotContains(t, cs.clients, client)

	// deregistering twice must not skew the gauge
	cs.DeRegisterClient(client)
	su.AssertExpectations(t)
}

func TestChatServerSubscribeAfterShutdown(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{}, newMockStatsUpdater(), nil)
	go cs.Run()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, cs.Shutdown(ctx))

	client := newTestClient(t, cs, types.User{Id: 10, Username: "alice"})
	cs.Subscribe(&ClientEvent{
		BaseEvent: BaseEvent{Id: 1},
		Subscribe: &Subscribe{RoomId: 1},
		UserId:    10,
		client:    client,
	})

	ack := recvEvent(t, client)
	assert.Equal(t, http.StatusServiceUnavailable, ack.Response.ResponseCode)
}

func TestChatServerUnloadsIdleRoom(t *testing.T) {
	su := newMockStatsUpdater()
	cs := newTestChatServer(t, &database.MockChatRepository{}, su, nil)

	room := NewRoom(database.Room{Id: 1, Name: "general"}, cs)
	cs.rooms[1] = room
	go room.Run()

	cs.unloadRoom(room)
	assert.Empty(t, cs.rooms)
	su.AssertCalled(t, "Decr", stats.MetricActiveRooms)
}

func TestChatServerKeepsOccupiedRoomOnUnload(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{}, newMockStatsUpdater(), nil)

	room := NewRoom(database.Room{Id: 1, Name: "general"}, cs)
	client := newTestClient(t, cs, types.User{Id: 10, Username: "alice"})
	room.clients[client] = struct{}{}
	cs.rooms[1] = room
	go room.Run()

	// a subscriber raced the idle unload; the room must stay loaded
	cs.unloadRoom(room)
	assert.Contains(t, cs.rooms, 1)

	req := &exitReq{force: true, done: make(chan bool)}
	room.exit <- req
	assert.True(t, <-req.done)
}
