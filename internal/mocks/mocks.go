package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"staffchat/internal/fanout"
	"staffchat/internal/models"
	"staffchat/internal/repositories"
)

type StaffRepositoryMock struct {
	mock.Mock
}

func (m *StaffRepositoryMock) GetByToken(ctx context.Context, token string) (models.Identity, error) {
	args := m.Called(ctx, token)
	var who models.Identity
	if val := args.Get(0); val != nil {
		who = val.(models.Identity)
	}
	return who, args.Error(1)
}

func (m *StaffRepositoryMock) Get(ctx context.Context, id int64) (models.Identity, error) {
	args := m.Called(ctx, id)
	var who models.Identity
	if val := args.Get(0); val != nil {
		who = val.(models.Identity)
	}
	return who, args.Error(1)
}

type ThreadRepositoryMock struct {
	mock.Mock
}

func (m *ThreadRepositoryMock) ListForViewer(ctx context.Context, viewer models.Identity) ([]models.Thread, error) {
	args := m.Called(ctx, viewer)
	var threads []models.Thread
	if val := args.Get(0); val != nil {
		threads = val.([]models.Thread)
	}
	return threads, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, sender models.Identity, peerID int64, text string) (models.Message, error) {
	args := m.Called(ctx, sender, peerID, text)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListByPair(ctx context.Context, coordinatorID, counterpartID int64) ([]models.Message, error) {
	args := m.Called(ctx, coordinatorID, counterpartID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, reader models.Identity, peerID int64) (int64, error) {
	args := m.Called(ctx, reader, peerID)
	return args.Get(0).(int64), args.Error(1)
}

type BrokerMock struct {
	mock.Mock
}

func (m *BrokerMock) Publish(ctx context.Context, msg models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *BrokerMock) Subscribe(ctx context.Context, deliver fanout.DeliverFunc) error {
	<-ctx.Done()
	return nil
}

func (m *BrokerMock) Close() error {
	return nil
}

var _ repositories.StaffRepository = (*StaffRepositoryMock)(nil)
var _ repositories.ThreadRepository = (*ThreadRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ fanout.Broker = (*BrokerMock)(nil)
