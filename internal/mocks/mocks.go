package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"messenger-service/internal/models"
	"messenger-service/internal/store"
	"messenger-service/internal/telemetry"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) Create(user models.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *UserRepositoryMock) GetByID(id string) (models.User, error) {
	args := m.Called(id)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetByEmail(email string) (models.User, error) {
	args := m.Called(email)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) List() ([]models.User, error) {
	args := m.Called()
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) UpdatePresence(id string, status models.Presence, lastSeen time.Time) error {
	args := m.Called(id, status, lastSeen)
	return args.Error(0)
}

type LedgerRepositoryMock struct {
	mock.Mock
}

func (m *LedgerRepositoryMock) Put(roomID string, seq uint64, msg models.Message) error {
	args := m.Called(roomID, seq, msg)
	return args.Error(0)
}

func (m *LedgerRepositoryMock) Delete(roomID string, seq uint64) error {
	args := m.Called(roomID, seq)
	return args.Error(0)
}

func (m *LedgerRepositoryMock) Load() (map[string][]store.Entry, error) {
	args := m.Called()
	var rooms map[string][]store.Entry
	if val := args.Get(0); val != nil {
		rooms = val.(map[string][]store.Entry)
	}
	return rooms, args.Error(1)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ store.UserRepository = (*UserRepositoryMock)(nil)
var _ store.LedgerRepository = (*LedgerRepositoryMock)(nil)
var _ telemetry.Publisher = (*PublisherMock)(nil)
