package domain

import (
	"time"

	sharedDomain "github.com/davicafu/shoplab/internal/shared/domain"
	"github.com/google/uuid"
)

// OrderStatus es el ciclo de vida de un pedido.
type OrderStatus string

const (
	OrderPendingPayment OrderStatus = "pending_payment"
	OrderPaid           OrderStatus = "paid"
	OrderCancelled      OrderStatus = "cancelled"
)

// OrderLine es una línea de pedido. El precio va en céntimos para no
// arrastrar floats por el dominio.
type OrderLine struct {
	SKU            string `json:"sku"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// Order es el agregado pedido: la unidad de consistencia del contexto.
// Cada mutación de negocio registra su evento en el buffer heredado de
// AggregateRoot; la unit of work los recolecta al hacer commit.
type Order struct {
	sharedDomain.AggregateRoot `json:"-"`

	ID            uuid.UUID   `json:"id"`
	CustomerEmail string      `json:"customer_email"`
	Lines         []OrderLine `json:"lines"`
	Status        OrderStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// NewOrder crea un pedido válido y registra order.created.
func NewOrder(customerEmail string, lines []OrderLine) (*Order, error) {
	if customerEmail == "" {
		return nil, ErrInvalidOrder
	}
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, l := range lines {
		if l.SKU == "" || l.Quantity <= 0 || l.UnitPriceCents < 0 {
			return nil, ErrInvalidOrder
		}
	}

	now := time.Now().UTC()
	o := &Order{
		ID:            uuid.New(),
		CustomerEmail: customerEmail,
		Lines:         lines,
		Status:        OrderPendingPayment,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	o.RecordEvent(OrderCreated{
		OrderID:       o.ID,
		CustomerEmail: o.CustomerEmail,
		TotalCents:    o.TotalCents(),
		Occurred:      now,
	})

	return o, nil
}

// TotalCents es el importe total del pedido.
func (o *Order) TotalCents() int64 {
	var total int64
	for _, l := range o.Lines {
		total += int64(l.Quantity) * l.UnitPriceCents
	}
	return total
}

// Pay marca el pedido como pagado y registra order.paid. Un pedido
// cancelado o ya pagado no es pagable.
func (o *Order) Pay(method string) error {
	if o.Status != OrderPendingPayment {
		return ErrOrderNotPayable
	}

	now := time.Now().UTC()
	o.Status = OrderPaid
	o.UpdatedAt = now

	o.RecordEvent(OrderPaidEvent{
		OrderID:       o.ID,
		CustomerEmail: o.CustomerEmail,
		TotalCents:    o.TotalCents(),
		Method:        method,
		Occurred:      now,
	})

	return nil
}

// Cancel anula el pedido y registra order.cancelled. Un pedido pagado ya
// no puede cancelarse por esta vía.
func (o *Order) Cancel(reason string) error {
	if o.Status == OrderPaid {
		return ErrOrderNotCancellable
	}
	if o.Status == OrderCancelled {
		return nil // idempotente
	}

	now := time.Now().UTC()
	o.Status = OrderCancelled
	o.UpdatedAt = now

	o.RecordEvent(OrderCancelledEvent{
		OrderID:  o.ID,
		Reason:   reason,
		Occurred: now,
	})

	return nil
}
