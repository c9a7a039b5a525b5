package domain

import (
	"github.com/davicafu/shoplab/internal/shared/domain/events"
)

// EventSource es la capacidad mínima que la Unit of Work necesita de un
// agregado: leer su buffer de eventos pendientes y vaciarlo tras un commit.
type EventSource interface {
	PendingEvents() []events.DomainEvent
	ClearEvents()
}

// AggregateRoot se embebe en las entidades de dominio que emiten eventos.
// El buffer es transitorio: vive en memoria durante una unit of work y
// nunca se persiste. El agregado solo registra; la publicación es cosa
// de la unit of work y del relayer.
type AggregateRoot struct {
	pending []events.DomainEvent
}

// RecordEvent añade un evento al buffer interno del agregado.
func (a *AggregateRoot) RecordEvent(e events.DomainEvent) {
	a.pending = append(a.pending, e)
}

// PendingEvents devuelve los eventos acumulados, en orden de registro.
func (a *AggregateRoot) PendingEvents() []events.DomainEvent {
	return a.pending
}

// ClearEvents vacía el buffer. Solo debe llamarse tras un commit exitoso;
// si la transacción falla el buffer se conserva para poder reintentar.
func (a *AggregateRoot) ClearEvents() {
	a.pending = nil
}

// Verificación estática
var _ EventSource = (*AggregateRoot)(nil)
