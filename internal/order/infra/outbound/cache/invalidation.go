package cache

import (
	"context"
	"fmt"

	"github.com/davicafu/shoplab/internal/order/domain"
)

// Invalidator es el handler de bus que tira la entrada de cache de un
// pedido cuando su estado cambia. Borrar es idempotente, así que tolera
// la entrega at-least-once sin más.
type Invalidator struct {
	cache domain.OrderCache
}

func NewInvalidator(cache domain.OrderCache) *Invalidator {
	return &Invalidator{cache: cache}
}

// Handle cumple bus.HandlerFunc para order.paid y order.cancelled.
func (i *Invalidator) Handle(ctx context.Context, event interface{}) error {
	switch e := event.(type) {
	case *domain.OrderPaidEvent:
		return i.cache.Delete(ctx, domain.CacheKeyByID(e.OrderID))
	case *domain.OrderCancelledEvent:
		return i.cache.Delete(ctx, domain.CacheKeyByID(e.OrderID))
	default:
		return fmt.Errorf("unexpected event %T", event)
	}
}
