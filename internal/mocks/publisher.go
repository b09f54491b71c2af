package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"cipher-chat/internal/rabbitmq"
)

var _ rabbitmq.Publisher = (*PublisherMock)(nil)

// PublisherMock stands in for the bus. It also satisfies the narrower
// publisher interfaces of the audit emitter and the event helpers.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	return m.Called(ctx, routingKey, event).Error(0)
}

func (m *PublisherMock) PublishJSON(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	return m.Called(ctx, routingKey, event, headers).Error(0)
}

func (m *PublisherMock) Close() error {
	return m.Called().Error(0)
}

// AllowPublishes accepts any number of publishes of either kind.
func (m *PublisherMock) AllowPublishes() *PublisherMock {
	m.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishJSON", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}
