package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"cipher-chat/internal/models"
	"cipher-chat/internal/repositories"
)

type MessageRepositoryMock struct {
	mock.Mock
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)

func (m *MessageRepositoryMock) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	return messageArg(args, 0), args.Error(1)
}

func (m *MessageRepositoryMock) FindByID(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	return messageArg(args, 0), args.Error(1)
}

func (m *MessageRepositoryMock) Find(ctx context.Context, filter repositories.MessageFilter) ([]models.Message, error) {
	args := m.Called(ctx, filter)
	return messagesArg(args, 0), args.Error(1)
}

func (m *MessageRepositoryMock) UpdateStatusBulk(ctx context.Context, filter repositories.MessageFilter, status models.Status) ([]models.Message, error) {
	args := m.Called(ctx, filter, status)
	return messagesArg(args, 0), args.Error(1)
}

func (m *MessageRepositoryMock) UpdateText(ctx context.Context, messageID string, senderID string, text string, editedAt time.Time) (models.Message, error) {
	args := m.Called(ctx, messageID, senderID, text, editedAt)
	return messageArg(args, 0), args.Error(1)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, messageID string, senderID string) (models.Message, error) {
	args := m.Called(ctx, messageID, senderID)
	return messageArg(args, 0), args.Error(1)
}

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) Send(ctx context.Context, senderID, receiverID, text, image string) (models.Message, error) {
	args := m.Called(ctx, senderID, receiverID, text, image)
	return messageArg(args, 0), args.Error(1)
}

func (m *MessageServiceMock) Deliver(ctx context.Context, messageID, receiverID string) (models.Message, bool, error) {
	args := m.Called(ctx, messageID, receiverID)
	return messageArg(args, 0), args.Bool(1), args.Error(2)
}

func (m *MessageServiceMock) FetchHistory(ctx context.Context, userID, otherID string) ([]models.Message, error) {
	args := m.Called(ctx, userID, otherID)
	return messagesArg(args, 0), args.Error(1)
}

func (m *MessageServiceMock) MarkRead(ctx context.Context, readerID, otherID string) ([]models.Message, error) {
	args := m.Called(ctx, readerID, otherID)
	return messagesArg(args, 0), args.Error(1)
}

func (m *MessageServiceMock) Edit(ctx context.Context, userID, messageID, text string) (models.Message, error) {
	args := m.Called(ctx, userID, messageID, text)
	return messageArg(args, 0), args.Error(1)
}

func (m *MessageServiceMock) Delete(ctx context.Context, userID, messageID string) (models.Message, error) {
	args := m.Called(ctx, userID, messageID)
	return messageArg(args, 0), args.Error(1)
}

type PresenceMock struct {
	mock.Mock
}

func (m *PresenceMock) OnlineUsers() []string {
	args := m.Called()
	var users []string
	if val := args.Get(0); val != nil {
		users = val.([]string)
	}
	return users
}

func messageArg(args mock.Arguments, i int) models.Message {
	var msg models.Message
	if val := args.Get(i); val != nil {
		msg = val.(models.Message)
	}
	return msg
}

func messagesArg(args mock.Arguments, i int) []models.Message {
	var msgs []models.Message
	if val := args.Get(i); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs
}
