package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"
	"github.com/webchat-dev/webchat/internal/types"
)

const (
	// writeWait is the max time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// pongWait is the max time allowed between pongs from the peer.
	pongWait = time.Minute
	// pingInterval must be less than pongWait.
	pingInterval = (pongWait * 9) / 10
	// maxMessageSize is the max inbound frame size in bytes.
	maxMessageSize = 8192
	// sendQueueSize is the per-connection outbound buffer.
	sendQueueSize = 256
)

type Client struct {
	sessionId  string
	user       types.User
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger

	send     chan *ServerEvent
	rooms    map[int]*Room
	roomsMu  sync.Mutex
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(conn *websocket.Conn, cs *ChatServer, logger *log.Logger, user types.User) *Client {
	return &Client{
		sessionId:  shortid.MustGenerate(),
		user:       user,
		conn:       conn,
		chatServer: cs,
		log:        logger,
		send:       make(chan *ServerEvent, sendQueueSize),
		rooms:      make(map[int]*Room),
		stop:       make(chan struct{}),
	}
}

// queueMessage enqueues an event for delivery, dropping it if the
// client's send buffer is full.
func (c *Client) queueMessage(event *ServerEvent) {
	select {
	case c.send <- event:
	default:
		c.log.Printf("dropping message for slow client %s", c.sessionId)
	}
}

func (c *Client) addRoom(room *Room) {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	c.rooms[room.id] = room
}

func (c *Client) removeRoom(roomId int) {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	delete(c.rooms, roomId)
}

func (c *Client) getRoom(roomId int) (*Room, bool) {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	room, ok := c.rooms[roomId]
	return room, ok
}

// leaveAllRooms detaches the client from every room it is subscribed
// to. Teardown leaves are not acknowledged.
func (c *Client) leaveAllRooms() {
	c.roomsMu.Lock()
	rooms := make([]*Room, 0, len(c.rooms))
	for _, room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.roomsMu.Unlock()

	for _, room := range rooms {
		event := &ClientEvent{
			Unsubscribe: &Unsubscribe{RoomId: room.id},
			UserId:      c.user.Id,
			Username:    c.user.Username,
			client:      c,
			disconnect:  true,
		}

		// rooms stop draining their channels once the server shuts down
		select {
		case room.leaveChan <- event:
		case <-c.chatServer.stop:
		}
	}
}

func (c *Client) close() {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.leaveAllRooms()
		c.chatServer.DeRegisterClient(c)
		c.conn.Close()
	})
}

// Read pumps inbound frames from the websocket, decodes them and routes
// each event. It exits, tearing down the connection, when the peer goes
// away or sends an unreadable frame.
func (c *Client) Read() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Printf("unexpected close from client %s: %s", c.sessionId, err)
			}
			return
		}

		var event ClientEvent
		if err := json.Unmarshal(data, &event); err != nil {
			c.log.Printf("failed to parse message from client %s: %s", c.sessionId, err)
			c.queueMessage(ErrInvalidMessage(0))
			continue
		}

		event.UserId = c.user.Id
		event.Username = c.user.Username
		event.client = c

		c.routeEvent(&event)
	}
}

// routeEvent dispatches a decoded event. Subscribes go through the chat
// server, which owns room loading; everything else is handled by the
// room the client is already attached to.
func (c *Client) routeEvent(event *ClientEvent) {
	switch {
	case event.Subscribe != nil:
		c.chatServer.Subscribe(event)
	case event.Unsubscribe != nil:
		room, ok := c.getRoom(event.Unsubscribe.RoomId)
		if !ok {
			// already detached, nothing to undo
			c.queueMessage(NoErrOK(event.Id, nil))
			return
		}
		room.leaveChan <- event
	case event.SendMessage != nil:
		room, ok := c.getRoom(event.SendMessage.RoomId)
		if !ok {
			c.queueMessage(ErrNotSubscribed(event.Id))
			return
		}
		room.eventChan <- event
	case event.GetMoreMessages != nil:
		room, ok := c.getRoom(event.GetMoreMessages.RoomId)
		if !ok {
			c.queueMessage(ErrNotSubscribed(event.Id))
			return
		}
		room.eventChan <- event
	default:
		c.queueMessage(ErrInvalidMessage(event.Id))
	}
}

// Write pumps queued events to the websocket and keeps the connection
// alive with periodic pings.
func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(event); err != nil {
				c.log.Printf("failed to write message to client %s: %s", c.sessionId, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.stop:
			return
		}
	}
}
