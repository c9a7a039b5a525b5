package bus

import "context"

// Keyer lo implementan los eventos que saben particionarse en el broker.
type Keyer interface {
	PartitionKey() string
}

// HandlerFunc es el contrato de un consumidor de eventos en proceso.
// Debe ser idempotente: la entrega es at-least-once y el mismo evento
// puede llegar más de una vez.
type HandlerFunc func(ctx context.Context, event interface{}) error

// HandlerResult es el resultado individual de un handler tras un dispatch.
type HandlerResult struct {
	Handler string
	Err     error
}

// EventBus es el registro tipado publish/subscribe en proceso. Publish es
// síncrono y devuelve el resultado de cada handler, de modo que el relayer
// pueda distinguir "todos ok" de "falló el handler X". Los handlers son
// colaboradores externos registrados una vez en el arranque.
type EventBus interface {
	Register(eventType, handlerName string, h HandlerFunc)
	Publish(ctx context.Context, eventType string, event interface{}) []HandlerResult
}
