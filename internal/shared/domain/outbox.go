package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus es el estado de un mensaje en la tabla outbox.
// Transiciones: pending -> processing -> {processed | pending (retry) | failed}.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxProcessed  OutboxStatus = "processed"
	OutboxFailed     OutboxStatus = "failed"
)

func (s OutboxStatus) String() string { return string(s) }

// OutboxMessage es el registro durable de un evento de dominio pendiente de
// (o ya) entregado. Se inserta en la misma transacción que el cambio de
// estado que lo originó; nunca se borra desde este subsistema.
type OutboxMessage struct {
	// Seq es la posición de inserción (autoincremental en el store) y define
	// el orden de entrega dentro de un mismo AggregateID.
	Seq          int64           `json:"seq"`
	ID           uuid.UUID       `json:"id"`
	EventType    string          `json:"event_type"`
	Payload      json.RawMessage `json:"payload"`
	AggregateID  string          `json:"aggregate_id"`
	Status       OutboxStatus    `json:"status"`
	AttemptCount int             `json:"attempt_count"`
	LastError    string          `json:"last_error"`
	CreatedAt    time.Time       `json:"created_at"`
	// AvailableAt pospone reintentos (backoff): el mensaje no es reclamable
	// antes de este instante.
	AvailableAt time.Time  `json:"available_at"`
	ClaimedBy   *uuid.UUID `json:"claimed_by,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// ---------- Errores ----------

var (
	ErrOutboxMessageNotFound = errors.New("outbox message not found")
	ErrOutboxSerialization   = errors.New("outbox payload serialization failed")
)

// OutboxRepository es el contrato del lado del publisher sobre la tabla
// outbox. El lado de escritura es específico de cada driver (InsertTx) y
// solo lo consume la unit of work; el worker únicamente necesita esto.
type OutboxRepository interface {
	// ClaimPending reclama de forma atómica hasta limit mensajes elegibles,
	// estampando claimant y pasándolos a processing. Elegible significa:
	// pending con available_at vencido, o processing con un claim caducado
	// (reclaim de un worker caído). Nunca reclama un mensaje si su agregado
	// tiene otro anterior sin terminar, para preservar el orden por agregado.
	ClaimPending(ctx context.Context, claimant uuid.UUID, limit int) ([]OutboxMessage, error)

	// Las tres transiciones de desenlace exigen que el claim siga
	// perteneciendo a claimant: si otro worker recuperó el mensaje por
	// claim caducado, la actualización no matchea y se devuelve
	// ErrOutboxMessageNotFound sin pisar el estado del nuevo dueño.

	// MarkProcessed marca entrega exitosa y fija processed_at.
	MarkProcessed(ctx context.Context, id uuid.UUID, claimant uuid.UUID, attempts int) error

	// Release devuelve el mensaje a pending para un reintento futuro,
	// registrando el intento fallido y el instante de re-elegibilidad.
	Release(ctx context.Context, id uuid.UUID, claimant uuid.UUID, attempts int, lastError string, availableAt time.Time) error

	// MarkFailed mueve el mensaje a la dead-letter (failed): no se
	// reintenta automáticamente nunca más.
	MarkFailed(ctx context.Context, id uuid.UUID, claimant uuid.UUID, attempts int, lastError string) error

	// FetchFailed lista mensajes en dead-letter para inspección operativa.
	FetchFailed(ctx context.Context, limit int) ([]OutboxMessage, error)
}
