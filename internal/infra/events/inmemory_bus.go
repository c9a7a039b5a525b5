package events

import (
	"context"
	"fmt"
	"sync"

	sharedBus "github.com/davicafu/shoplab/internal/shared/infra/platform/bus"
)

type namedHandler struct {
	name string
	fn   sharedBus.HandlerFunc
}

// InMemoryEventBus es el registro en proceso event_type -> handlers.
// Los módulos de features (notificaciones, cache, analítica...) se
// registran una vez en el arranque; el relayer hace el dispatch.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
}

// Verifica en tiempo de compilación que cumple la interfaz
var _ sharedBus.EventBus = (*InMemoryEventBus)(nil)

func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{
		handlers: make(map[string][]namedHandler),
	}
}

// Register añade un handler para un tipo de evento. El nombre identifica
// al handler en los resultados y en los logs de fallo.
func (b *InMemoryEventBus) Register(eventType, handlerName string, h sharedBus.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], namedHandler{name: handlerName, fn: h})
}

// Publish invoca de forma síncrona todos los handlers registrados para el
// tipo y devuelve el resultado de cada uno. Cero handlers registrados es un
// dispatch válido con cero resultados. Un panic en un handler se convierte
// en error para no tumbar al relayer, y un handler que no respeta el
// deadline del contexto se abandona devolviendo ctx.Err() como resultado.
func (b *InMemoryEventBus) Publish(ctx context.Context, eventType string, event interface{}) []sharedBus.HandlerResult {
	b.mu.RLock()
	hs := b.handlers[eventType]
	b.mu.RUnlock()

	results := make([]sharedBus.HandlerResult, 0, len(hs))
	for _, h := range hs {
		results = append(results, sharedBus.HandlerResult{
			Handler: h.name,
			Err:     invoke(ctx, h.fn, event),
		})
	}
	return results
}

// invoke ejecuta el handler en una goroutine y vigila ctx: un handler que
// ignora la cancelación no puede retener el lote más allá del deadline. La
// goroutine huérfana termina por su cuenta; el canal con buffer evita que
// se quede bloqueada al enviar su resultado tardío.
func invoke(ctx context.Context, fn sharedBus.HandlerFunc, event interface{}) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("handler panic: %v", r)
			}
		}()
		done <- fn(ctx, event)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
