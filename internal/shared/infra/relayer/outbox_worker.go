package relayer

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	sharedDomain "github.com/davicafu/shoplab/internal/shared/domain"
	sharedEvents "github.com/davicafu/shoplab/internal/shared/domain/events"
	sharedBus "github.com/davicafu/shoplab/internal/shared/infra/platform/bus"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config son los parámetros operativos del worker. Los valores fuera de
// rango se corrigen a un mínimo razonable en lugar de fallar.
type Config struct {
	Interval        time.Duration // periodo de polling
	BatchSize       int           // máximo de mensajes por ciclo
	MaxAttempts     int           // intentos antes de dead-letter
	DispatchTimeout time.Duration // tope por dispatch (un handler lento no bloquea el lote)
	RetryBase       time.Duration // base del backoff exponencial
	RetryMax        time.Duration // tope del backoff
}

func (c *Config) normalize() {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = 5 * time.Second
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.RetryMax < c.RetryBase {
		c.RetryMax = 5 * time.Minute
	}
}

// Worker es el outbox publisher: un bucle en background que reclama lotes
// de mensajes pendientes, los deserializa vía el registro de eventos y los
// despacha por el bus en proceso, anotando el resultado en cada fila.
// Varias instancias pueden convivir: solo coordinan a través del claim del
// store, sin estado compartido en memoria.
type Worker struct {
	repo     sharedDomain.OutboxRepository
	bus      sharedBus.EventBus
	registry sharedEvents.Registry
	cfg      Config
	log      *zap.Logger
}

func NewOutboxWorker(
	repo sharedDomain.OutboxRepository,
	bus sharedBus.EventBus,
	registry sharedEvents.Registry,
	cfg Config,
	log *zap.Logger,
) *Worker {
	cfg.normalize()
	return &Worker{
		repo:     repo,
		bus:      bus,
		registry: registry,
		cfg:      cfg,
		log:      log,
	}
}

// Start inicia el bucle de polling y bloquea hasta que ctx se cancele.
// A la señal de parada se termina el lote en curso, incluidas sus
// actualizaciones de estado; lo que aún así quede colgado en processing lo
// recupera otro ciclo vía el timeout de claims caducados.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.log.Info("🚀 Outbox publisher iniciado",
		zap.Duration("interval", w.cfg.Interval),
		zap.Int("batch_size", w.cfg.BatchSize),
	)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("🛑 Outbox publisher detenido")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch ejecuta un ciclo completo: claim, dispatch y registro del
// resultado mensaje a mensaje.
func (w *Worker) ProcessBatch(ctx context.Context) {
	claimant := uuid.New()

	msgs, err := w.repo.ClaimPending(ctx, claimant, w.cfg.BatchSize)
	if err != nil {
		w.log.Warn("⚠️ Error al reclamar lote de outbox", zap.Error(err))
		return
	}
	if len(msgs) == 0 {
		return
	}

	w.log.Info(fmt.Sprintf("📬 %d mensajes reclamados", len(msgs)),
		zap.String("claimant", claimant.String()))

	for _, msg := range msgs {
		w.dispatch(ctx, claimant, msg)
	}
}

// dispatch entrega un mensaje y registra el desenlace. Las actualizaciones
// de estado usan un contexto desacoplado de la cancelación para no dejar el
// mensaje colgado en processing durante un shutdown.
func (w *Worker) dispatch(ctx context.Context, claimant uuid.UUID, msg sharedDomain.OutboxMessage) {
	attempt := msg.AttemptCount + 1

	event, err := w.decode(msg)
	if err != nil {
		// Error permanente: ningún reintento arregla un payload corrupto o
		// un tipo sin registrar. Directo a dead-letter.
		w.log.Error("Mensaje outbox no deserializable, a dead-letter",
			zap.String("message_id", msg.ID.String()),
			zap.String("event_type", msg.EventType),
			zap.Error(err),
		)
		w.recordOutcome(ctx, msg, func(recordCtx context.Context) error {
			return w.repo.MarkFailed(recordCtx, msg.ID, claimant, attempt, err.Error())
		})
		return
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, w.cfg.DispatchTimeout)
	results := w.bus.Publish(dispatchCtx, msg.EventType, event)
	cancel()

	if err := firstFailure(results); err != nil {
		w.handleFailure(ctx, claimant, msg, attempt, err)
		return
	}

	w.recordOutcome(ctx, msg, func(recordCtx context.Context) error {
		return w.repo.MarkProcessed(recordCtx, msg.ID, claimant, attempt)
	})
	w.log.Info("✅ Mensaje entregado",
		zap.String("message_id", msg.ID.String()),
		zap.String("event_type", msg.EventType),
		zap.Int("attempt", attempt),
	)
}

func (w *Worker) handleFailure(ctx context.Context, claimant uuid.UUID, msg sharedDomain.OutboxMessage, attempt int, cause error) {
	if attempt >= w.cfg.MaxAttempts {
		w.log.Error("💀 Mensaje agotó sus intentos, a dead-letter",
			zap.String("message_id", msg.ID.String()),
			zap.Int("attempts", attempt),
			zap.Error(cause),
		)
		w.recordOutcome(ctx, msg, func(recordCtx context.Context) error {
			return w.repo.MarkFailed(recordCtx, msg.ID, claimant, attempt, cause.Error())
		})
		return
	}

	next := time.Now().UTC().Add(Backoff(w.cfg.RetryBase, w.cfg.RetryMax, attempt))
	w.log.Warn("⚠️ Entrega fallida, reintento programado",
		zap.String("message_id", msg.ID.String()),
		zap.Int("attempt", attempt),
		zap.Time("next_attempt_at", next),
		zap.Error(cause),
	)
	w.recordOutcome(ctx, msg, func(recordCtx context.Context) error {
		return w.repo.Release(recordCtx, msg.ID, claimant, attempt, cause.Error(), next)
	})
}

// recordOutcome ejecuta la actualización de estado con un contexto que
// sobrevive a la cancelación del worker.
func (w *Worker) recordOutcome(ctx context.Context, msg sharedDomain.OutboxMessage, record func(context.Context) error) {
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.DispatchTimeout)
	defer cancel()

	if err := record(recordCtx); err != nil {
		// No se pierde nada: el claim caducado devolverá el mensaje a un
		// ciclo futuro (entrega at-least-once).
		w.log.Warn("⚠️ No se pudo registrar el resultado del mensaje",
			zap.String("message_id", msg.ID.String()),
			zap.Error(err),
		)
	}
}

// decode resuelve el struct concreto del evento vía el registro y
// deserializa el payload sobre una instancia nueva.
func (w *Worker) decode(msg sharedDomain.OutboxMessage) (interface{}, error) {
	meta, ok := w.registry[msg.EventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", msg.EventType)
	}

	event := reflect.New(meta.Type).Interface()
	if err := json.Unmarshal(msg.Payload, event); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return event, nil
}

// Backoff calcula el retardo exponencial del intento dado: base*2^(n-1),
// acotado por max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

func firstFailure(results []sharedBus.HandlerResult) error {
	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", r.Handler, r.Err))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("handler failure: %s", strings.Join(failed, "; "))
}
