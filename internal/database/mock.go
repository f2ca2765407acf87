package database

import (
	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) GetAccountById(accountId int) (Account, error) {
	args := m.Called(accountId)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockChatRepository) GetSessionById(sessionId int) (Session, error) {
	args := m.Called(sessionId)
	return args.Get(0).(Session), args.Error(1)
}
func (m *MockChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetConversation(accountId, partnerId int) ([]Message, error) {
	args := m.Called(accountId, partnerId)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) GetSessionMessages(sessionId int) ([]Message, error) {
	args := m.Called(sessionId)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) MarkConversationRead(readerId, senderId int) (int, error) {
	args := m.Called(readerId, senderId)
	return args.Int(0), args.Error(1)
}
func (m *MockChatRepository) UnreadCount(accountId int) (int, error) {
	args := m.Called(accountId)
	return args.Int(0), args.Error(1)
}
func (m *MockChatRepository) ConversationSummaries(accountId int) ([]ConversationSummary, error) {
	args := m.Called(accountId)
	return args.Get(0).([]ConversationSummary), args.Error(1)
}
func (m *MockChatRepository) DeleteConversation(accountId, partnerId int) error {
	args := m.Called(accountId, partnerId)
	return args.Error(0)
}
func (m *MockChatRepository) DeleteSessionMessages(sessionId int) error {
	args := m.Called(sessionId)
	return args.Error(0)
}
