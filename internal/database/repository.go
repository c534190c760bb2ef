package database

import "time"

type ChatRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	CreateRoom(name string, creatorId int) (Room, error)
	GetRoomById(roomId int) (Room, error)
	GetRoomByName(name string) (Room, error)
	GetRoomWithMembers(roomId int) (*Room, error)
	AddRoomMember(roomId, accountId int) error
	IsRoomMember(roomId, accountId int) (bool, error)
	ListRoomsForAccount(accountId int) ([]Room, error)
	AppendMessage(roomId, accountId int, content string) (Message, error)
	GetRoomMessages(roomId, limit int, earlierThan *time.Time) ([]Message, error)
}
