package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/bigkaa/goartstore/case-store/internal/domain/model"
	"github.com/bigkaa/goartstore/case-store/internal/notification"
)

// mockIndex — mock индекса метаданных.
type mockIndex struct {
	mock.Mock
}

func (m *mockIndex) Add(ctx context.Context, meta *model.CaseMetadata) error {
	return m.Called(ctx, meta).Error(0)
}

func (m *mockIndex) GetByUUID(ctx context.Context, id uuid.UUID) (*model.CaseMetadata, error) {
	args := m.Called(ctx, id)
	meta, _ := args.Get(0).(*model.CaseMetadata)
	return meta, args.Error(1)
}

func (m *mockIndex) GetMany(ctx context.Context, ids []uuid.UUID) ([]*model.CaseMetadata, error) {
	args := m.Called(ctx, ids)
	list, _ := args.Get(0).([]*model.CaseMetadata)
	return list, args.Error(1)
}

func (m *mockIndex) Search(ctx context.Context, query string) ([]*model.CaseMetadata, error) {
	args := m.Called(ctx, query)
	list, _ := args.Get(0).([]*model.CaseMetadata)
	return list, args.Error(1)
}

func (m *mockIndex) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockIndex) DeleteAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockIndex) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockIndex) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]uuid.UUID)
	return ids, args.Error(1)
}

// mockExpirations — mock трекера сроков хранения.
type mockExpirations struct {
	mock.Mock
}

func (m *mockExpirations) Save(ctx context.Context, r *model.ExpirationRecord) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockExpirations) Get(ctx context.Context, id uuid.UUID) (*model.ExpirationRecord, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(*model.ExpirationRecord)
	return rec, args.Error(1)
}

func (m *mockExpirations) FindAll(ctx context.Context) ([]*model.ExpirationRecord, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]*model.ExpirationRecord)
	return list, args.Error(1)
}

func (m *mockExpirations) FindExpired(ctx context.Context, now time.Time) ([]*model.ExpirationRecord, error) {
	args := m.Called(ctx, now)
	list, _ := args.Get(0).([]*model.ExpirationRecord)
	return list, args.Error(1)
}

func (m *mockExpirations) SetExpiration(ctx context.Context, id uuid.UUID, at *time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *mockExpirations) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockExpirations) DeleteAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// mockDeleter — mock удаления файлов кейсов.
type mockDeleter struct {
	mock.Mock
}

func (m *mockDeleter) Delete(id uuid.UUID) error {
	return m.Called(id).Error(0)
}

// recordingPublisher запоминает опубликованные события.
type recordingPublisher struct {
	mu     sync.Mutex
	events []notification.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e notification.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Events() []notification.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notification.Event(nil), p.events...)
}
