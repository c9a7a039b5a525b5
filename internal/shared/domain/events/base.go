package events

import (
	"reflect"
	"time"
)

// DomainEvent es un hecho inmutable ocurrido sobre un agregado.
// Los tipos concretos se definen en el dominio de cada contexto
// (ej. order.OrderCreated) y deben ser serializables a JSON.
type DomainEvent interface {
	// EventType devuelve el discriminador del evento (ej. "order.created").
	EventType() string
	// OccurredAt devuelve el instante en que ocurrió el hecho.
	OccurredAt() time.Time
	// AggregateID identifica al agregado origen; se usa para ordenación
	// por agregado y para particionar en el broker.
	AggregateID() string
}

// EventMetadata asocia un tipo de evento con su struct concreto y su topic.
// El publisher lo usa para deserializar payloads de la tabla outbox.
type EventMetadata struct {
	Type  reflect.Type
	Topic string
}

// Registry mapea event_type -> metadata. Cada contexto expone su propio
// NewEventRegistry() y en el arranque se hace merge de todos.
type Registry = map[string]EventMetadata

// MergeRegistries combina varios registros de dominio en uno solo.
func MergeRegistries(registries ...Registry) Registry {
	merged := make(Registry)
	for _, r := range registries {
		for k, v := range r {
			merged[k] = v
		}
	}
	return merged
}
