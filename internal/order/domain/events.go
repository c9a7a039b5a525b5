package domain

import (
	"reflect"
	"time"

	sharedEvents "github.com/davicafu/shoplab/internal/shared/domain/events"
	sharedBus "github.com/davicafu/shoplab/internal/shared/infra/platform/bus"
	"github.com/google/uuid"
)

// Las constantes de los tipos de evento se definen aquí, como valores string.
const (
	EventOrderCreated   = "order.created"
	EventOrderPaid      = "order.paid"
	EventOrderCancelled = "order.cancelled"
)

const OrderTopic = "order-events"

// Estos son contratos de integración planos, NO la entidad Order: lo que
// viaja por la tabla outbox y por el broker.

type OrderCreated struct {
	OrderID       uuid.UUID `json:"order_id"`
	CustomerEmail string    `json:"customer_email"`
	TotalCents    int64     `json:"total_cents"`
	Occurred      time.Time `json:"occurred_at"`
}

func (e OrderCreated) EventType() string     { return EventOrderCreated }
func (e OrderCreated) OccurredAt() time.Time { return e.Occurred }
func (e OrderCreated) AggregateID() string   { return e.OrderID.String() }
func (e OrderCreated) PartitionKey() string  { return e.OrderID.String() }

type OrderPaidEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	CustomerEmail string    `json:"customer_email"`
	TotalCents    int64     `json:"total_cents"`
	Method        string    `json:"method"`
	Occurred      time.Time `json:"occurred_at"`
}

func (e OrderPaidEvent) EventType() string     { return EventOrderPaid }
func (e OrderPaidEvent) OccurredAt() time.Time { return e.Occurred }
func (e OrderPaidEvent) AggregateID() string   { return e.OrderID.String() }
func (e OrderPaidEvent) PartitionKey() string  { return e.OrderID.String() }

type OrderCancelledEvent struct {
	OrderID  uuid.UUID `json:"order_id"`
	Reason   string    `json:"reason"`
	Occurred time.Time `json:"occurred_at"`
}

func (e OrderCancelledEvent) EventType() string     { return EventOrderCancelled }
func (e OrderCancelledEvent) OccurredAt() time.Time { return e.Occurred }
func (e OrderCancelledEvent) AggregateID() string   { return e.OrderID.String() }
func (e OrderCancelledEvent) PartitionKey() string  { return e.OrderID.String() }

// NewEventRegistry expone los eventos del contexto para el relayer.
func NewEventRegistry() sharedEvents.Registry {
	return sharedEvents.Registry{
		EventOrderCreated: {
			Type:  reflect.TypeOf(OrderCreated{}),
			Topic: OrderTopic,
		},
		EventOrderPaid: {
			Type:  reflect.TypeOf(OrderPaidEvent{}),
			Topic: OrderTopic,
		},
		EventOrderCancelled: {
			Type:  reflect.TypeOf(OrderCancelledEvent{}),
			Topic: OrderTopic,
		},
	}
}

// Verificación estática
var (
	_ sharedEvents.DomainEvent = OrderCreated{}
	_ sharedEvents.DomainEvent = OrderPaidEvent{}
	_ sharedEvents.DomainEvent = OrderCancelledEvent{}
	_ sharedBus.Keyer          = OrderCreated{}
)
