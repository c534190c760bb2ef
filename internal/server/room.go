package server

import (
	"log"
	"time"

	"github.com/webchat-dev/webchat/internal/database"
	"github.com/webchat-dev/webchat/internal/stats"
	"github.com/webchat-dev/webchat/internal/types"
)

// roomIdleTimeout is how long an empty room stays loaded before it is
// unloaded from memory.
const roomIdleTimeout = 5 * time.Second

type exitReq struct {
	force bool
	done  chan bool
}

// Room fans events out to the set of clients subscribed to a chatroom.
// A single goroutine owns all room state, so persistence and broadcast
// happen in submission order.
type Room struct {
	id                int
	name              string
	chatServer        *ChatServer
	db                database.ChatRepository
	log               *log.Logger
	stats             stats.StatsProvider
	pageSize          int
	requireMembership bool

	clients   map[*Client]struct{}
	joinChan  chan *ClientEvent
	leaveChan chan *ClientEvent
	eventChan chan *ClientEvent
	killTimer *time.Timer
	exit      chan *exitReq
}

func NewRoom(room database.Room, cs *ChatServer) *Room {
	return &Room{
		id:                room.Id,
		name:              room.Name,
		chatServer:        cs,
		db:                cs.db,
		log:               cs.log,
		stats:             cs.stats,
		pageSize:          cs.pageSize,
		requireMembership: cs.requireMembership,
		clients:           make(map[*Client]struct{}),
		joinChan:          make(chan *ClientEvent, 8),
		leaveChan:         make(chan *ClientEvent, 8),
		eventChan:         make(chan *ClientEvent, 32),
		killTimer:         time.NewTimer(roomIdleTimeout),
		exit:              make(chan *exitReq),
	}
}

func (r *Room) Run() {
	for {
		select {
		case event := <-r.joinChan:
			r.handleSubscribe(event)
		case event := <-r.leaveChan:
			r.handleUnsubscribe(event)
		case event := <-r.eventChan:
			switch {
			case event.SendMessage != nil:
				r.handleSendMessage(event)
			case event.GetMoreMessages != nil:
				r.handleGetMoreMessages(event)
			}
		case <-r.killTimer.C:
			if r.offerUnload() {
				return
			}
		case req := <-r.exit:
			if r.handleExit(req) {
				return
			}
		}
	}
}

// offerUnload asks the server to retire the room after its idle timer
// fired. While the offer is pending the room keeps accepting joins (a
// join cancels the offer, the server run loop may be busy sending us
// one) and exit requests (the server may be shutting down instead of
// fielding unload requests). Reports whether the room should stop.
func (r *Room) offerUnload() bool {
	select {
	case r.chatServer.unloadRoomChan <- r:
		return false
	case event := <-r.joinChan:
		r.handleSubscribe(event)
		return false
	case req := <-r.exit:
		return r.handleExit(req)
	}
}

// handleExit decides whether the room can be retired. A subscribe may
// have raced the idle unload, in which case the room declines and stays
// loaded.
func (r *Room) handleExit(req *exitReq) bool {
	r.drainJoins()
	if !req.force && len(r.clients) > 0 {
		req.done <- false
		return false
	}
	req.done <- true
	return true
}

func (r *Room) drainJoins() {
	for {
		select {
		case event := <-r.joinChan:
			r.handleSubscribe(event)
		default:
			return
		}
	}
}

// handleSubscribe attaches a client to the room and replays the latest
// page of history. Re-subscribing is a no-op acknowledged with the
// current state.
func (r *Room) handleSubscribe(event *ClientEvent) {
	r.killTimer.Stop()

	if _, ok := r.clients[event.client]; ok {
		event.client.queueMessage(NoErrOK(event.Id, map[string]any{"name": r.name}))
		return
	}

	if r.requireMembership {
		member, err := r.db.IsRoomMember(r.id, event.UserId)
		if err != nil {
			r.log.Printf("membership check failed for user %d in room %d: %s", event.UserId, r.id, err)
			event.client.queueMessage(ErrInternalError(event.Id))
			r.resetKillTimerIfEmpty()
			return
		}
		if !member {
			event.client.queueMessage(ErrNotRoomMember(event.Id))
			r.resetKillTimerIfEmpty()
			return
		}
	}

	r.clients[event.client] = struct{}{}
	event.client.addRoom(r)
	event.client.queueMessage(NoErrOK(event.Id, map[string]any{"name": r.name}))

	messages, err := r.db.GetRoomMessages(r.id, r.pageSize, event.Subscribe.EarlierThan)
	if err != nil {
		r.log.Printf("failed to load history for room %d: %s", r.id, err)
		event.client.queueMessage(ErrInternalError(event.Id))
		return
	}

	// query is newest-first; replay oldest-first
	for i := len(messages) - 1; i >= 0; i-- {
		event.client.queueMessage(&ServerEvent{
			BaseEvent: BaseEvent{Timestamp: Now()},
			Message:   r.messageEvent(messages[i]),
		})
	}
}

// handleUnsubscribe detaches a client. Leaves triggered by connection
// teardown are silent; explicit leaves are acknowledged, including for
// clients that were never attached.
func (r *Room) handleUnsubscribe(event *ClientEvent) {
	if _, ok := r.clients[event.client]; ok {
		delete(r.clients, event.client)
		event.client.removeRoom(r.id)
	}

	if !event.disconnect {
		event.client.queueMessage(NoErrOK(event.Id, nil))
	}

	r.resetKillTimerIfEmpty()
}

// handleSendMessage persists the message and then broadcasts it to all
// subscribers, the sender included. Failures are reported to the sender
// only; other subscribers never see a partial send.
func (r *Room) handleSendMessage(event *ClientEvent) {
	content, err := ParseContent(event.SendMessage.Message)
	if err != nil {
		event.client.queueMessage(ErrInvalidMessage(event.Id))
		return
	}

	body, err := content.Encode()
	if err != nil {
		event.client.queueMessage(ErrInternalError(event.Id))
		return
	}

	msg, err := r.db.AppendMessage(r.id, event.UserId, body)
	if err != nil {
		r.log.Printf("failed to save message in room %d: %s", r.id, err)
		event.client.queueMessage(ErrInternalError(event.Id))
		return
	}

	event.client.queueMessage(NoErrAccepted(event.Id))

	broadcast := &ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Message: &types.Message{
			Id:             msg.Id,
			RoomId:         r.id,
			SenderId:       event.UserId,
			SenderUsername: event.Username,
			Message:        body,
			CreatedAt:      msg.CreatedAt,
		},
	}

	for client := range r.clients {
		client.queueMessage(broadcast)
	}

	r.stats.Incr(stats.MetricMessages)
}

// handleGetMoreMessages sends the requester the page of history older
// than the given cursor, oldest-first. The cursor is required: the
// newest page is only served through the subscribe replay, so a nil
// cursor would duplicate it.
func (r *Room) handleGetMoreMessages(event *ClientEvent) {
	if event.GetMoreMessages.EarlierThan == nil {
		event.client.queueMessage(ErrInvalidMessage(event.Id))
		return
	}

	messages, err := r.db.GetRoomMessages(r.id, r.pageSize, event.GetMoreMessages.EarlierThan)
	if err != nil {
		r.log.Printf("failed to load history for room %d: %s", r.id, err)
		event.client.queueMessage(ErrInternalError(event.Id))
		return
	}

	for i := len(messages) - 1; i >= 0; i-- {
		event.client.queueMessage(&ServerEvent{
			BaseEvent:      BaseEvent{Timestamp: Now()},
			PrependMessage: r.messageEvent(messages[i]),
		})
	}

	r.stats.Incr(stats.MetricHistoryQueries)
}

func (r *Room) messageEvent(msg database.Message) *types.Message {
	return &types.Message{
		Id:             msg.Id,
		RoomId:         msg.RoomId,
		SenderId:       msg.UserId,
		SenderUsername: msg.SenderUsername,
		Message:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	}
}

func (r *Room) resetKillTimerIfEmpty() {
	if len(r.clients) == 0 {
		r.killTimer.Reset(roomIdleTimeout)
	}
}
