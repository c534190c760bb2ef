package database

import "time"

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id          int
	Name        string
	CreatorId   int
	CreatedAt   time.Time
	Members     []Member
	LastMessage string
}

type Member struct {
	AccountId int
	Username  string
	JoinedAt  time.Time
}

type Message struct {
	Id             int
	RoomId         int
	UserId         int
	SenderUsername string
	Content        string
	CreatedAt      time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}
