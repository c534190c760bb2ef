package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Room struct {
	Id          int       `json:"id"`
	Name        string    `json:"name"`
	CreatorId   int       `json:"creator_id"`
	Members     []User    `json:"members,omitempty"`
	LastMessage string    `json:"last_message,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// Message is the wire shape of a chat message. The camelCase keys match
// what the web client reads off the socket.
type Message struct {
	Id             int       `json:"id,omitempty"`
	RoomId         int       `json:"roomId"`
	SenderId       int       `json:"senderId"`
	SenderUsername string    `json:"senderUsername"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"createdAt"`
}
