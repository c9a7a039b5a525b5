package mocks

import (
	"context"
	"sync"
	"time"

	sharedDomain "github.com/davicafu/shoplab/internal/shared/domain"
	sharedBus "github.com/davicafu/shoplab/internal/shared/infra/platform/bus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockOutboxRepository simula el puerto del publisher sobre la tabla outbox.
type MockOutboxRepository struct {
	mock.Mock
}

var _ sharedDomain.OutboxRepository = (*MockOutboxRepository)(nil)

func (m *MockOutboxRepository) ClaimPending(ctx context.Context, claimant uuid.UUID, limit int) ([]sharedDomain.OutboxMessage, error) {
	args := m.Called(ctx, claimant, limit)
	return args.Get(0).([]sharedDomain.OutboxMessage), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID, claimant uuid.UUID, attempts int) error {
	args := m.Called(ctx, id, claimant, attempts)
	return args.Error(0)
}

func (m *MockOutboxRepository) Release(ctx context.Context, id uuid.UUID, claimant uuid.UUID, attempts int, lastError string, availableAt time.Time) error {
	args := m.Called(ctx, id, claimant, attempts, lastError, availableAt)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, claimant uuid.UUID, attempts int, lastError string) error {
	args := m.Called(ctx, id, claimant, attempts, lastError)
	return args.Error(0)
}

func (m *MockOutboxRepository) FetchFailed(ctx context.Context, limit int) ([]sharedDomain.OutboxMessage, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]sharedDomain.OutboxMessage), args.Error(1)
}

// ------------------- EventBus -------------------

// PublishedEvent guarda la evidencia de un dispatch sobre el StubBus.
type PublishedEvent struct {
	EventType string
	Event     interface{}
}

// StubBus es un bus en memoria para tests: registra lo publicado y
// devuelve por cada dispatch los resultados configurados en Results
// (keyed por event type). Sin entrada en Results responde "un handler ok".
type StubBus struct {
	Results map[string][]sharedBus.HandlerResult

	mu        sync.Mutex
	Published []PublishedEvent
}

var _ sharedBus.EventBus = (*StubBus)(nil)

func NewStubBus() *StubBus {
	return &StubBus{Results: make(map[string][]sharedBus.HandlerResult)}
}

func (b *StubBus) Register(eventType, handlerName string, h sharedBus.HandlerFunc) {}

func (b *StubBus) Publish(ctx context.Context, eventType string, event interface{}) []sharedBus.HandlerResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Published = append(b.Published, PublishedEvent{EventType: eventType, Event: event})
	if res, ok := b.Results[eventType]; ok {
		return res
	}
	return []sharedBus.HandlerResult{{Handler: "stub"}}
}
