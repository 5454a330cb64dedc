package database

import (
	"github.com/stretchr/testify/mock"
)

type MockTeamChatRepository struct {
	mock.Mock
}

func (m *MockTeamChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockTeamChatRepository) GetAccountById(accountId string) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockTeamChatRepository) GetChannelById(channelId string) (Channel, error) {
	args := m.Called(channelId)
	return args.Get(0).(Channel), args.Error(1)
}
func (m *MockTeamChatRepository) IsChannelMember(channelId, accountId string) (bool, error) {
	args := m.Called(channelId, accountId)
	return args.Bool(0), args.Error(1)
}
func (m *MockTeamChatRepository) GetSessionById(sessionId string) (Session, error) {
	args := m.Called(sessionId)
	return args.Get(0).(Session), args.Error(1)
}
func (m *MockTeamChatRepository) IsSessionParticipant(sessionId, accountId string) (bool, error) {
	args := m.Called(sessionId, accountId)
	return args.Bool(0), args.Error(1)
}
