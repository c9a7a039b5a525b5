package events

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davicafu/shoplab/internal/order/domain"
	sharedUtils "github.com/davicafu/shoplab/internal/shared/infra/utils"
)

// PaymentConfirmed es el mensaje que publica la pasarela de pagos cuando un
// cobro se confirma. Contrato externo: no tocar los nombres de campo.
type PaymentConfirmed struct {
	OrderID uuid.UUID `json:"order_id"`
	Method  string    `json:"method"`
}

// OrderService es lo que el consumidor necesita del caso de uso.
type OrderService interface {
	PayOrder(ctx context.Context, id uuid.UUID, method string) (*domain.Order, error)
}

// PaymentConsumer procesa confirmaciones de pago llegadas por Kafka y las
// traduce a PayOrder. La pasarela entrega at-least-once, así que un
// duplicado (pedido ya pagado) se descarta sin ruido.
type PaymentConsumer struct {
	service OrderService
	log     *zap.Logger
}

func NewPaymentConsumer(service OrderService, log *zap.Logger) *PaymentConsumer {
	return &PaymentConsumer{
		service: service,
		log:     log,
	}
}

func (c *PaymentConsumer) HandleMessage(ctx context.Context, key string, payload []byte) {
	sharedUtils.UnmarshalAndHandle(c.log, payload, func(msg PaymentConfirmed) {
		if msg.OrderID == uuid.Nil {
			c.log.Warn("Confirmación de pago sin order_id", zap.String("key", key))
			return
		}

		if _, err := c.service.PayOrder(ctx, msg.OrderID, msg.Method); err != nil {
			switch {
			case errors.Is(err, domain.ErrOrderNotPayable):
				// Re-entrega de la pasarela sobre un pedido ya pagado.
				c.log.Debug("Confirmación de pago duplicada ignorada",
					zap.String("order_id", msg.OrderID.String()))
			case errors.Is(err, domain.ErrOrderNotFound):
				c.log.Warn("Confirmación de pago de un pedido desconocido",
					zap.String("order_id", msg.OrderID.String()))
			default:
				c.log.Error("Error al aplicar confirmación de pago",
					zap.String("order_id", msg.OrderID.String()), zap.Error(err))
			}
		}
	})
}
