package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	infraEvents "github.com/davicafu/shoplab/internal/infra/events"
	orderApp "github.com/davicafu/shoplab/internal/order/application"
	orderDomain "github.com/davicafu/shoplab/internal/order/domain"
	orderCache "github.com/davicafu/shoplab/internal/order/infra/outbound/cache"
	orderSqlite "github.com/davicafu/shoplab/internal/order/infra/outbound/db/sqlite"
	outboxSqlite "github.com/davicafu/shoplab/internal/shared/infra/platform/db/sqlite"
	"github.com/davicafu/shoplab/internal/shared/infra/relayer"
)

func newOrderService(t *testing.T, db *sql.DB) (*orderApp.OrderService, *outboxSqlite.OutboxRepoSQLite, *orderCache.InMemoryOrderCache) {
	t.Helper()

	outboxRepo := outboxSqlite.NewOutboxRepoSQLite(db, time.Minute)
	orderRepo := orderSqlite.NewOrderRepoSQLite(db)
	cache := orderCache.NewInMemoryOrderCache(time.Minute, time.Minute)
	t.Cleanup(cache.Stop)

	svc := orderApp.NewOrderService(newUowFactory(db, outboxRepo), orderRepo, cache, zap.NewNop())
	return svc, outboxRepo, cache
}

func TestOrderLifecycle_EndToEnd(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc, outboxRepo, cache := newOrderService(t, db)

	// Crear: pedido persistido + order.created en outbox.
	order, err := svc.CreateOrder(ctx, "cliente@example.com", []orderDomain.OrderLine{
		{SKU: "SKU-1", Quantity: 2, UnitPriceCents: 750},
	})
	require.NoError(t, err)
	assert.Equal(t, orderDomain.OrderPendingPayment, order.Status)
	assert.Empty(t, order.PendingEvents())

	// Pagar: transición de estado + order.paid en outbox.
	paid, err := svc.PayOrder(ctx, order.ID, "card")
	require.NoError(t, err)
	assert.Equal(t, orderDomain.OrderPaid, paid.Status)

	var n int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM outbox WHERE aggregate_id=?`, order.ID.String(),
	).Scan(&n))
	assert.Equal(t, 2, n)

	// Deja aterrizar la actualización de cache en background de PayOrder
	// antes de medir la invalidación.
	time.Sleep(50 * time.Millisecond)

	// El publisher entrega ambos al bus, que invalida el cache al pagar.
	bus := infraEvents.NewInMemoryEventBus()
	invalidator := orderCache.NewInvalidator(cache)
	bus.Register(orderDomain.EventOrderPaid, "cache-invalidation", invalidator.Handle)

	worker := relayer.NewOutboxWorker(outboxRepo, bus, orderDomain.NewEventRegistry(), workerConfig(), zap.NewNop())
	worker.ProcessBatch(ctx) // entrega order.created
	worker.ProcessBatch(ctx) // entrega order.paid (desbloqueado)

	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM outbox WHERE aggregate_id=? AND status='processed'`, order.ID.String(),
	).Scan(&n))
	assert.Equal(t, 2, n)

	var cached orderDomain.Order
	ok, _ := cache.Get(ctx, orderDomain.CacheKeyByID(order.ID), &cached)
	assert.False(t, ok, "cache entry should be invalidated after order.paid")

	// La siguiente lectura vuelve a la base y ve el estado pagado.
	got, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderDomain.OrderPaid, got.Status)
}

func TestCancelOrder_EndToEnd(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc, _, _ := newOrderService(t, db)

	order, err := svc.CreateOrder(ctx, "cliente@example.com", []orderDomain.OrderLine{
		{SKU: "SKU-9", Quantity: 1, UnitPriceCents: 2000},
	})
	require.NoError(t, err)

	cancelled, err := svc.CancelOrder(ctx, order.ID, "out of stock")
	require.NoError(t, err)
	assert.Equal(t, orderDomain.OrderCancelled, cancelled.Status)

	// Un pedido cancelado ya no se puede pagar.
	_, err = svc.PayOrder(ctx, order.ID, "card")
	assert.ErrorIs(t, err, orderDomain.ErrOrderNotPayable)

	var n int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM outbox WHERE aggregate_id=? AND event_type=?`,
		order.ID.String(), orderDomain.EventOrderCancelled,
	).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestListOrders_Filtering(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc, _, _ := newOrderService(t, db)

	lines := []orderDomain.OrderLine{{SKU: "SKU-1", Quantity: 1, UnitPriceCents: 100}}

	a, err := svc.CreateOrder(ctx, "a@example.com", lines)
	require.NoError(t, err)
	_, err = svc.CreateOrder(ctx, "b@example.com", lines)
	require.NoError(t, err)
	_, err = svc.PayOrder(ctx, a.ID, "card")
	require.NoError(t, err)

	status := orderDomain.OrderPaid
	paid, err := svc.ListOrders(ctx, orderDomain.OrderFilter{
		Status:     &status,
		Pagination: orderDomain.Pagination{Limit: 10},
	})
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, a.ID, paid[0].ID)

	email := "b@example.com"
	byEmail, err := svc.ListOrders(ctx, orderDomain.OrderFilter{
		CustomerEmail: &email,
		Pagination:    orderDomain.Pagination{Limit: 10},
	})
	require.NoError(t, err)
	require.Len(t, byEmail, 1)
	assert.Equal(t, orderDomain.OrderPendingPayment, byEmail[0].Status)
}
