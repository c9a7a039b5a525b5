package mocks

import (
	"context"
	"database/sql"

	orderDomain "github.com/davicafu/shoplab/internal/order/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockOrderRepository simula el repo de pedidos.
type MockOrderRepository struct {
	mock.Mock
}

var _ orderDomain.OrderRepository = (*MockOrderRepository)(nil)

func (m *MockOrderRepository) InsertTx(ctx context.Context, tx *sql.Tx, o *orderDomain.Order) (int64, error) {
	args := m.Called(ctx, tx, o)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOrderRepository) UpdateTx(ctx context.Context, tx *sql.Tx, o *orderDomain.Order) (int64, error) {
	args := m.Called(ctx, tx, o)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*orderDomain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orderDomain.Order), args.Error(1)
}

func (m *MockOrderRepository) List(ctx context.Context, f orderDomain.OrderFilter) ([]*orderDomain.Order, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*orderDomain.Order), args.Error(1)
}
