package server

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"

	"github.com/webchat-dev/webchat/internal/config"
	"github.com/webchat-dev/webchat/internal/database"
	"github.com/webchat-dev/webchat/internal/stats"
)

// ChatServer owns the set of live rooms and connections. Rooms are
// loaded on first subscribe and unloaded after sitting empty; the run
// loop serializes all access to the room table.
type ChatServer struct {
	log               *log.Logger
	db                database.ChatRepository
	stats             stats.StatsProvider
	pageSize          int
	requireMembership bool

	clients   map[*Client]struct{}
	clientsMu sync.Mutex

	rooms          map[int]*Room
	subscribeChan  chan *ClientEvent
	unloadRoomChan chan *Room

	stop chan struct{}
	done chan struct{}
}

func NewChatServer(db database.ChatRepository, logger *log.Logger, statsProvider stats.StatsProvider, cfg *config.Config) *ChatServer {
	cs := &ChatServer{
		log:               logger,
		db:                db,
		stats:             statsProvider,
		pageSize:          cfg.PageSize,
		requireMembership: cfg.RequireMembership,
		clients:           make(map[*Client]struct{}),
		rooms:             make(map[int]*Room),
		subscribeChan:     make(chan *ClientEvent, 32),
		unloadRoomChan:    make(chan *Room),
		stop:              make(chan struct{}),
		done:              make(chan struct{}),
	}

	cs.stats.RegisterMetric(stats.MetricActiveClients)
	cs.stats.RegisterMetric(stats.MetricActiveRooms)
	cs.stats.RegisterMetric(stats.MetricMessages)
	cs.stats.RegisterMetric(stats.MetricHistoryQueries)

	return cs
}

func (cs *ChatServer) Run() {
	for {
		select {
		case event := <-cs.subscribeChan:
			cs.handleSubscribe(event)
		case room := <-cs.unloadRoomChan:
			cs.unloadRoom(room)
		case <-cs.stop:
			for _, room := range cs.rooms {
				req := &exitReq{force: true, done: make(chan bool)}
				room.exit <- req
				<-req.done
				cs.stats.Decr(stats.MetricActiveRooms)
			}
			cs.rooms = make(map[int]*Room)
			close(cs.done)
			return
		}
	}
}

// handleSubscribe resolves the target room, loading it from the
// database if it is not in memory, and hands the event to it.
func (cs *ChatServer) handleSubscribe(event *ClientEvent) {
	room, ok := cs.rooms[event.Subscribe.RoomId]
	if !ok {
		dbRoom, err := cs.db.GetRoomById(event.Subscribe.RoomId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				event.client.queueMessage(ErrRoomNotFound(event.Id))
				return
			}
			cs.log.Printf("failed to load room %d: %s", event.Subscribe.RoomId, err)
			event.client.queueMessage(ErrInternalError(event.Id))
			return
		}

		room = NewRoom(dbRoom, cs)
		cs.rooms[room.id] = room
		go room.Run()
		cs.stats.Incr(stats.MetricActiveRooms)
		cs.log.Printf("loaded room %d (%s)", room.id, room.name)
	}

	room.joinChan <- event
}

func (cs *ChatServer) unloadRoom(room *Room) {
	req := &exitReq{done: make(chan bool)}
	room.exit <- req
	if !<-req.done {
		return
	}

	delete(cs.rooms, room.id)
	cs.stats.Decr(stats.MetricActiveRooms)
	cs.log.Printf("unloaded idle room %d (%s)", room.id, room.name)
}

// Subscribe queues a subscribe event for the run loop. Events arriving
// during shutdown are refused.
func (cs *ChatServer) Subscribe(event *ClientEvent) {
	select {
	case <-cs.stop:
		event.client.queueMessage(ErrServiceUnavailable(event.Id))
		return
	default:
	}

	select {
	case cs.subscribeChan <- event:
	case <-cs.stop:
		event.client.queueMessage(ErrServiceUnavailable(event.Id))
	}
}

func (cs *ChatServer) RegisterClient(client *Client) {
	cs.clientsMu.Lock()
	defer cs.clientsMu.Unlock()

	cs.clients[client] = struct{}{}
	cs.stats.Incr(stats.MetricActiveClients)
	cs.log.Printf("client %s connected (user %q)", client.sessionId, client.user.Username)
}

func (cs *ChatServer) DeRegisterClient(client *Client) {
	cs.clientsMu.Lock()
	defer cs.clientsMu.Unlock()

	if _, ok := cs.clients[client]; !ok {
		return
	}

	delete(cs.clients, client)
	cs.stats.Decr(stats.MetricActiveClients)
	cs.log.Printf("client %s disconnected (user %q)", client.sessionId, client.user.Username)
}

// Shutdown stops the run loop and tears down all rooms, waiting up to
// the context deadline.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
