package db

import (
	"encoding/json"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/shoplab/internal/shared/domain"
	"github.com/google/uuid"
)

// CollectMessages es el event collector: función pura de "agregados tocados
// en esta unit of work" -> "filas outbox a insertar". Serializa cada evento
// pendiente; un fallo de serialización aborta la recolección entera (y con
// ella la unit of work), porque un evento de dominio sin fila outbox
// rompería la atomicidad del patrón.
func CollectMessages(now time.Time, sources ...sharedDomain.EventSource) ([]sharedDomain.OutboxMessage, error) {
	var msgs []sharedDomain.OutboxMessage

	for _, src := range sources {
		for _, evt := range src.PendingEvents() {
			payload, err := json.Marshal(evt)
			if err != nil {
				return nil, fmt.Errorf("%w: event %q: %v", sharedDomain.ErrOutboxSerialization, evt.EventType(), err)
			}

			msgs = append(msgs, sharedDomain.OutboxMessage{
				ID:          uuid.New(),
				EventType:   evt.EventType(),
				Payload:     payload,
				AggregateID: evt.AggregateID(),
				Status:      sharedDomain.OutboxPending,
				CreatedAt:   now,
				AvailableAt: now,
			})
		}
	}

	return msgs, nil
}
