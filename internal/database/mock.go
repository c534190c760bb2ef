package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) CreateRoom(name string, creatorId int) (Room, error) {
	args := m.Called(name, creatorId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) GetRoomById(roomId int) (Room, error) {
	args := m.Called(roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) GetRoomByName(name string) (Room, error) {
	args := m.Called(name)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) GetRoomWithMembers(roomId int) (*Room, error) {
	args := m.Called(roomId)
	if room, ok := args.Get(0).(*Room); ok {
		return room, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) AddRoomMember(roomId, accountId int) error {
	args := m.Called(roomId, accountId)
	return args.Error(0)
}
func (m *MockChatRepository) IsRoomMember(roomId, accountId int) (bool, error) {
	args := m.Called(roomId, accountId)
	return args.Bool(0), args.Error(1)
}
func (m *MockChatRepository) ListRoomsForAccount(accountId int) ([]Room, error) {
	args := m.Called(accountId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockChatRepository) AppendMessage(roomId, accountId int, content string) (Message, error) {
	args := m.Called(roomId, accountId, content)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetRoomMessages(roomId, limit int, earlierThan *time.Time) ([]Message, error) {
	args := m.Called(roomId, limit, earlierThan)
	return args.Get(0).([]Message), args.Error(1)
}
