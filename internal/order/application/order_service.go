package application

import (
	"context"
	"database/sql"
	"time"

	"github.com/davicafu/shoplab/internal/order/domain"
	platformDB "github.com/davicafu/shoplab/internal/shared/infra/platform/db"
	sharedUtils "github.com/davicafu/shoplab/internal/shared/infra/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService define los casos de uso relacionados con Order. Cada caso de
// uso abre su propia unit of work: mutar agregado, adjuntarlo y SaveChanges.
// Los eventos de dominio viajan solos a partir de ahí (outbox + relayer).
type OrderService struct {
	uow   platformDB.Factory
	repo  domain.OrderRepository
	cache domain.OrderCache
	log   *zap.Logger
}

func NewOrderService(uow platformDB.Factory, repo domain.OrderRepository, cache domain.OrderCache, log *zap.Logger) *OrderService {
	return &OrderService{
		uow:   uow,
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

func (s *OrderService) CreateOrder(ctx context.Context, customerEmail string, lines []domain.OrderLine) (*domain.Order, error) {
	order, err := domain.NewOrder(customerEmail, lines)
	if err != nil {
		return nil, err
	}

	u := s.uow()
	u.Attach(order, func(ctx context.Context, tx *sql.Tx) (int64, error) {
		return s.repo.InsertTx(ctx, tx, order)
	})

	if _, err := u.SaveChanges(ctx); err != nil {
		return nil, err
	}

	s.cacheSet(order)
	return order, nil
}

func (s *OrderService) PayOrder(ctx context.Context, id uuid.UUID, method string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := order.Pay(method); err != nil {
		return nil, err
	}

	u := s.uow()
	u.Attach(order, func(ctx context.Context, tx *sql.Tx) (int64, error) {
		return s.repo.UpdateTx(ctx, tx, order)
	})

	if _, err := u.SaveChanges(ctx); err != nil {
		return nil, err
	}

	s.cacheSet(order)
	return order, nil
}

func (s *OrderService) CancelOrder(ctx context.Context, id uuid.UUID, reason string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := order.Cancel(reason); err != nil {
		return nil, err
	}

	u := s.uow()
	u.Attach(order, func(ctx context.Context, tx *sql.Tx) (int64, error) {
		return s.repo.UpdateTx(ctx, tx, order)
	})

	if _, err := u.SaveChanges(ctx); err != nil {
		return nil, err
	}

	s.cacheSet(order)
	return order, nil
}

// GetOrder obtiene un pedido (primero intenta desde cache).
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	if s.cache != nil {
		var o domain.Order
		if ok, _ := s.cache.Get(ctx, domain.CacheKeyByID(id), &o); ok {
			return &o, nil
		}
	}

	var order *domain.Order
	err := sharedUtils.Retry(ctx, 3, 100*time.Millisecond, func() error {
		var err error
		order, err = s.repo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cacheSet(order)
	return order, nil
}

// ListOrders devuelve pedidos aplicando filtros.
func (s *OrderService) ListOrders(ctx context.Context, f domain.OrderFilter) ([]*domain.Order, error) {
	return s.repo.List(ctx, f)
}

// cacheSet actualiza el cache en background sin bloquear la respuesta.
func (s *OrderService) cacheSet(o *domain.Order) {
	if s.cache == nil {
		return
	}
	go func(o *domain.Order) {
		ctxCache, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		if err := s.cache.Set(ctxCache, domain.CacheKeyByID(o.ID), o, 60); err != nil {
			s.log.Warn("⚠️ Cache update failed", zap.String("order_id", o.ID.String()), zap.Error(err))
		}
	}(o)
}
