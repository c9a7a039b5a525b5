package domain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ---------- Errores de dominio ----------
var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderAlreadyExists  = errors.New("order already exists")
	ErrInvalidOrder        = errors.New("invalid order")
	ErrEmptyOrder          = errors.New("order has no lines")
	ErrOrderNotPayable     = errors.New("order is not payable")
	ErrOrderNotCancellable = errors.New("order is not cancellable")
)

// ---------- Interfaces (Ports) ----------

// OrderRepository define las operaciones persistentes para Order. Las
// escrituras van siempre dentro del tx de la unit of work, que es quien
// inserta las filas outbox en la misma transacción.
type OrderRepository interface {
	// InsertTx debe devolver ErrOrderAlreadyExists si el ID ya existe.
	InsertTx(ctx context.Context, tx *sql.Tx, o *Order) (int64, error)

	// UpdateTx debe devolver ErrOrderNotFound si el pedido no existe.
	UpdateTx(ctx context.Context, tx *sql.Tx, o *Order) (int64, error)

	// GetByID debe devolver ErrOrderNotFound si no existe.
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// List devuelve pedidos según filtro (paginación, estado, email).
	List(ctx context.Context, f OrderFilter) ([]*Order, error)
}

// OrderCache es el cache-aside de pedidos.
type OrderCache interface {
	// Get intenta poblar dest (puntero) con el valor asociado a la key.
	// Devuelve (true, nil) si hay hit y dest fue rellenado.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)

	// Set serializa y guarda el valor con TTL en segundos.
	Set(ctx context.Context, key string, val interface{}, ttlSecs int) error

	// Delete elimina la key del cache.
	Delete(ctx context.Context, key string) error
}

// DTO para transportar los resultados de la consulta de tendencia.
type DailyOrderTrend struct {
	Day       time.Time
	Created   uint64
	Paid      uint64
	PaidCents int64
}

// OrderAnalyticsRepository es el lado de consulta del log analítico de
// eventos de pedido. La ingesta entra por el bus de eventos, no por aquí.
type OrderAnalyticsRepository interface {
	InitSchema() error
	GetDailyTrend(ctx context.Context, start, end time.Time) ([]DailyOrderTrend, error)
}

// ---------- Tipos de filtrado / paginación ----------

type Pagination struct {
	Limit  int
	Offset int
}

type OrderFilter struct {
	CustomerEmail *string
	Status        *OrderStatus

	Pagination Pagination
}

// ---------- Helpers comunes (cache keys, etc.) ----------

// CacheKeyByID forma una key consistente para cache usando ID.
func CacheKeyByID(id uuid.UUID) string {
	return fmt.Sprintf("order:id:%s", id.String())
}
