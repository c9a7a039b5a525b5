package application

import (
	"context"
	"testing"
	"time"

	"github.com/davicafu/shoplab/internal/order/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davicafu/shoplab/tests/mocks"
)

func sampleOrder(t *testing.T) *domain.Order {
	t.Helper()
	o, err := domain.NewOrder("cliente@example.com", []domain.OrderLine{
		{SKU: "SKU-1", Quantity: 1, UnitPriceCents: 999},
	})
	require.NoError(t, err)
	o.ClearEvents()
	return o
}

func TestGetOrder_CacheHit_SkipsRepo(t *testing.T) {
	// ARRANGE
	repo := new(mocks.MockOrderRepository)
	cache := mocks.NewDummyCache()
	order := sampleOrder(t)
	require.NoError(t, cache.Set(context.Background(), domain.CacheKeyByID(order.ID), order, 60))

	svc := NewOrderService(nil, repo, cache, zap.NewNop())

	// ACT
	got, err := svc.GetOrder(context.Background(), order.ID)

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Equal(t, order.CustomerEmail, got.CustomerEmail)
	repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestGetOrder_CacheMiss_FallsBackToRepo(t *testing.T) {
	// ARRANGE
	repo := new(mocks.MockOrderRepository)
	cache := mocks.NewDummyCache()
	order := sampleOrder(t)

	repo.On("GetByID", mock.Anything, order.ID).Return(order, nil).Once()

	svc := NewOrderService(nil, repo, cache, zap.NewNop())

	// ACT
	got, err := svc.GetOrder(context.Background(), order.ID)

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	repo.AssertExpectations(t)

	// El cache se rellena en background tras el miss.
	assert.Eventually(t, func() bool {
		var cached domain.Order
		ok, _ := cache.Get(context.Background(), domain.CacheKeyByID(order.ID), &cached)
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestGetOrder_NotFound_RetriesThenFails(t *testing.T) {
	// ARRANGE
	repo := new(mocks.MockOrderRepository)
	id := uuid.New()

	repo.On("GetByID", mock.Anything, id).Return(nil, domain.ErrOrderNotFound).Times(3)

	svc := NewOrderService(nil, repo, mocks.NewDummyCache(), zap.NewNop())

	// ACT
	_, err := svc.GetOrder(context.Background(), id)

	// ASSERT
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	repo.AssertExpectations(t)
}

func TestListOrders_DelegatesToRepo(t *testing.T) {
	// ARRANGE
	repo := new(mocks.MockOrderRepository)
	orders := []*domain.Order{sampleOrder(t), sampleOrder(t)}
	status := domain.OrderPaid
	filter := domain.OrderFilter{
		Status:     &status,
		Pagination: domain.Pagination{Limit: 20},
	}

	repo.On("List", mock.Anything, filter).Return(orders, nil).Once()

	svc := NewOrderService(nil, repo, nil, zap.NewNop())

	// ACT
	got, err := svc.ListOrders(context.Background(), filter)

	// ASSERT
	require.NoError(t, err)
	assert.Len(t, got, 2)
	repo.AssertExpectations(t)
}

func TestPayOrder_DomainRuleRejected_NoUnitOfWork(t *testing.T) {
	// ARRANGE: un pedido ya pagado no puede volver a pagarse; el caso de
	// uso debe fallar antes de abrir transacción alguna (uow nil no se toca).
	repo := new(mocks.MockOrderRepository)
	order := sampleOrder(t)
	require.NoError(t, order.Pay("card"))
	order.ClearEvents()

	repo.On("GetByID", mock.Anything, order.ID).Return(order, nil).Once()

	svc := NewOrderService(nil, repo, nil, zap.NewNop())

	// ACT
	_, err := svc.PayOrder(context.Background(), order.ID, "card")

	// ASSERT
	assert.ErrorIs(t, err, domain.ErrOrderNotPayable)
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "UpdateTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelOrder_PaidOrder_Rejected(t *testing.T) {
	// ARRANGE
	repo := new(mocks.MockOrderRepository)
	order := sampleOrder(t)
	require.NoError(t, order.Pay("card"))
	order.ClearEvents()

	repo.On("GetByID", mock.Anything, order.ID).Return(order, nil).Once()

	svc := NewOrderService(nil, repo, nil, zap.NewNop())

	// ACT
	_, err := svc.CancelOrder(context.Background(), order.ID, "changed my mind")

	// ASSERT
	assert.ErrorIs(t, err, domain.ErrOrderNotCancellable)
	repo.AssertNotCalled(t, "UpdateTx", mock.Anything, mock.Anything, mock.Anything)
}
