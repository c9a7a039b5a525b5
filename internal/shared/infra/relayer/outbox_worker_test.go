package relayer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	infraEvents "github.com/davicafu/shoplab/internal/infra/events"
	orderDomain "github.com/davicafu/shoplab/internal/order/domain"
	sharedDomain "github.com/davicafu/shoplab/internal/shared/domain"
	sharedBus "github.com/davicafu/shoplab/internal/shared/infra/platform/bus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davicafu/shoplab/tests/mocks"
)

func testConfig() Config {
	return Config{
		Interval:        time.Second,
		BatchSize:       10,
		MaxAttempts:     3,
		DispatchTimeout: time.Second,
		RetryBase:       time.Second,
		RetryMax:        time.Minute,
	}
}

func pendingMessage(t *testing.T, attemptCount int) sharedDomain.OutboxMessage {
	t.Helper()

	orderID := uuid.New()
	payload, err := json.Marshal(orderDomain.OrderCreated{
		OrderID:       orderID,
		CustomerEmail: "cliente@example.com",
		TotalCents:    1299,
		Occurred:      time.Now().UTC(),
	})
	require.NoError(t, err)

	return sharedDomain.OutboxMessage{
		Seq:          1,
		ID:           uuid.New(),
		EventType:    orderDomain.EventOrderCreated,
		Payload:      payload,
		AggregateID:  orderID.String(),
		Status:       sharedDomain.OutboxProcessing,
		AttemptCount: attemptCount,
	}
}

func TestProcessBatch_Success(t *testing.T) {
	// ARRANGE
	repo := new(mocks.MockOutboxRepository)
	bus := mocks.NewStubBus()
	msg := pendingMessage(t, 0)

	repo.On("ClaimPending", mock.Anything, mock.AnythingOfType("uuid.UUID"), 10).
		Return([]sharedDomain.OutboxMessage{msg}, nil).Once()
	repo.On("MarkProcessed", mock.Anything, msg.ID, mock.AnythingOfType("uuid.UUID"), 1).Return(nil).Once()

	worker := NewOutboxWorker(repo, bus, orderDomain.NewEventRegistry(), testConfig(), zap.NewNop())

	// ACT
	worker.ProcessBatch(context.Background())

	// ASSERT
	repo.AssertExpectations(t)
	require.Len(t, bus.Published, 1)
	assert.Equal(t, orderDomain.EventOrderCreated, bus.Published[0].EventType)

	// El evento llega deserializado al struct concreto, no como bytes.
	created, ok := bus.Published[0].Event.(*orderDomain.OrderCreated)
	require.True(t, ok)
	assert.Equal(t, "cliente@example.com", created.CustomerEmail)
}

func TestProcessBatch_HandlerFails_ReleasesWithBackoff(t *testing.T) {
	// ARRANGE
	repo := new(mocks.MockOutboxRepository)
	bus := mocks.NewStubBus()
	bus.Results[orderDomain.EventOrderCreated] = []sharedBus.HandlerResult{
		{Handler: "kafka-forwarder", Err: errors.New("broker unavailable")},
	}
	msg := pendingMessage(t, 0)

	before := time.Now().UTC()

	repo.On("ClaimPending", mock.Anything, mock.AnythingOfType("uuid.UUID"), 10).
		Return([]sharedDomain.OutboxMessage{msg}, nil).Once()
	repo.On("Release", mock.Anything, msg.ID, mock.AnythingOfType("uuid.UUID"), 1,
		mock.MatchedBy(func(lastError string) bool { return lastError != "" }),
		mock.MatchedBy(func(availableAt time.Time) bool {
			// Primer intento: backoff == RetryBase.
			return !availableAt.Before(before.Add(time.Second))
		}),
	).Return(nil).Once()

	worker := NewOutboxWorker(repo, bus, orderDomain.NewEventRegistry(), testConfig(), zap.NewNop())

	// ACT
	worker.ProcessBatch(context.Background())

	// ASSERT
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessBatch_ExhaustedAttempts_DeadLetters(t *testing.T) {
	// ARRANGE
	repo := new(mocks.MockOutboxRepository)
	bus := mocks.NewStubBus()
	bus.Results[orderDomain.EventOrderCreated] = []sharedBus.HandlerResult{
		{Handler: "kafka-forwarder", Err: errors.New("broker unavailable")},
	}

	// Dos intentos fallidos previos y MaxAttempts=3: este es el último.
	msg := pendingMessage(t, 2)

	repo.On("ClaimPending", mock.Anything, mock.AnythingOfType("uuid.UUID"), 10).
		Return([]sharedDomain.OutboxMessage{msg}, nil).Once()
	repo.On("MarkFailed", mock.Anything, msg.ID, mock.AnythingOfType("uuid.UUID"), 3, mock.AnythingOfType("string")).
		Return(nil).Once()

	worker := NewOutboxWorker(repo, bus, orderDomain.NewEventRegistry(), testConfig(), zap.NewNop())

	// ACT
	worker.ProcessBatch(context.Background())

	// ASSERT
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessBatch_UnknownEventType_DeadLettersFirstAttempt(t *testing.T) {
	// ARRANGE
	repo := new(mocks.MockOutboxRepository)
	bus := mocks.NewStubBus()

	msg := pendingMessage(t, 0)
	msg.EventType = "order.exploded"

	repo.On("ClaimPending", mock.Anything, mock.AnythingOfType("uuid.UUID"), 10).
		Return([]sharedDomain.OutboxMessage{msg}, nil).Once()
	repo.On("MarkFailed", mock.Anything, msg.ID, mock.AnythingOfType("uuid.UUID"), 1, mock.AnythingOfType("string")).
		Return(nil).Once()

	worker := NewOutboxWorker(repo, bus, orderDomain.NewEventRegistry(), testConfig(), zap.NewNop())

	// ACT
	worker.ProcessBatch(context.Background())

	// ASSERT: sin reintentos para errores permanentes, y sin dispatch.
	repo.AssertExpectations(t)
	assert.Empty(t, bus.Published)
}

func TestProcessBatch_CorruptPayload_DeadLettersFirstAttempt(t *testing.T) {
	// ARRANGE
	repo := new(mocks.MockOutboxRepository)
	bus := mocks.NewStubBus()

	msg := pendingMessage(t, 0)
	msg.Payload = json.RawMessage(`{"order_id": not-json`)

	repo.On("ClaimPending", mock.Anything, mock.AnythingOfType("uuid.UUID"), 10).
		Return([]sharedDomain.OutboxMessage{msg}, nil).Once()
	repo.On("MarkFailed", mock.Anything, msg.ID, mock.AnythingOfType("uuid.UUID"), 1, mock.AnythingOfType("string")).
		Return(nil).Once()

	worker := NewOutboxWorker(repo, bus, orderDomain.NewEventRegistry(), testConfig(), zap.NewNop())

	// ACT
	worker.ProcessBatch(context.Background())

	// ASSERT
	repo.AssertExpectations(t)
	assert.Empty(t, bus.Published)
}

func TestProcessBatch_ClaimError_NoDispatch(t *testing.T) {
	// ARRANGE
	repo := new(mocks.MockOutboxRepository)
	bus := mocks.NewStubBus()

	repo.On("ClaimPending", mock.Anything, mock.AnythingOfType("uuid.UUID"), 10).
		Return([]sharedDomain.OutboxMessage{}, errors.New("db unavailable")).Once()

	worker := NewOutboxWorker(repo, bus, orderDomain.NewEventRegistry(), testConfig(), zap.NewNop())

	// ACT
	worker.ProcessBatch(context.Background())

	// ASSERT
	repo.AssertExpectations(t)
	assert.Empty(t, bus.Published)
}

func TestBackoff(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 5, want: 16 * time.Second},
		{attempt: 6, want: 30 * time.Second}, // acotado por max
		{attempt: 20, want: 30 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(base, max, tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestConfigNormalize_Defaults(t *testing.T) {
	var cfg Config
	cfg.normalize()

	assert.Equal(t, 2*time.Second, cfg.Interval)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.DispatchTimeout)
	assert.Equal(t, time.Second, cfg.RetryBase)
	assert.Equal(t, 5*time.Minute, cfg.RetryMax)
}

func TestProcessBatch_SlowHandlerBoundedByDispatchTimeout(t *testing.T) {
	// ARRANGE: un handler real que duerme ignorando el contexto.
	repo := new(mocks.MockOutboxRepository)
	bus := infraEvents.NewInMemoryEventBus()
	bus.Register(orderDomain.EventOrderCreated, "sleeper", func(ctx context.Context, event interface{}) error {
		time.Sleep(2 * time.Second)
		return nil
	})

	msg := pendingMessage(t, 0)

	cfg := testConfig()
	cfg.DispatchTimeout = 50 * time.Millisecond

	repo.On("ClaimPending", mock.Anything, mock.AnythingOfType("uuid.UUID"), 10).
		Return([]sharedDomain.OutboxMessage{msg}, nil).Once()
	repo.On("Release", mock.Anything, msg.ID, mock.AnythingOfType("uuid.UUID"), 1,
		mock.MatchedBy(func(lastError string) bool {
			return strings.Contains(lastError, context.DeadlineExceeded.Error())
		}),
		mock.AnythingOfType("time.Time"),
	).Return(nil).Once()

	worker := NewOutboxWorker(repo, bus, orderDomain.NewEventRegistry(), cfg, zap.NewNop())

	// ACT
	start := time.Now()
	worker.ProcessBatch(context.Background())
	elapsed := time.Since(start)

	// ASSERT: el lote no queda retenido por el handler dormido, y el
	// timeout cuenta como intento fallido con reintento programado.
	assert.Less(t, elapsed, time.Second, "el lote quedó retenido por un handler lento")
	repo.AssertExpectations(t)
}
