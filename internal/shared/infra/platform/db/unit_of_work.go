package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/shoplab/internal/shared/domain"
	"go.uber.org/zap"
)

// TxOutboxWriter es el lado de escritura de la tabla outbox: insertar filas
// dentro de una transacción ajena. Lo implementa cada adapter SQL.
type TxOutboxWriter interface {
	InsertOutboxTx(ctx context.Context, tx *sql.Tx, msgs []sharedDomain.OutboxMessage) error
}

// PersistFunc persiste los cambios de estado de UN agregado dentro de la
// transacción de la unit of work y devuelve las filas afectadas.
type PersistFunc func(ctx context.Context, tx *sql.Tx) (int64, error)

type trackedAggregate struct {
	source  sharedDomain.EventSource
	persist PersistFunc
}

// UnitOfWork es la frontera transaccional: en SaveChanges persiste los
// cambios de entidad Y las filas outbox de los eventos recolectados en una
// única transacción. Solo considera agregados adjuntados explícitamente con
// Attach durante el scope actual; nunca escanea tablas. Una instancia cubre
// una unit of work; los servicios crean una por caso de uso vía factory.
type UnitOfWork struct {
	db      *sql.DB
	outbox  TxOutboxWriter
	tracked []trackedAggregate
	log     *zap.Logger
}

func NewUnitOfWork(db *sql.DB, outbox TxOutboxWriter, log *zap.Logger) *UnitOfWork {
	return &UnitOfWork{db: db, outbox: outbox, log: log}
}

// Factory crea unidades de trabajo independientes; los servicios de
// aplicación reciben esto en lugar de una instancia compartida.
type Factory func() *UnitOfWork

// Attach registra un agregado tocado en este scope junto con su función de
// persistencia. El orden de Attach define el orden de escritura.
func (u *UnitOfWork) Attach(src sharedDomain.EventSource, persist PersistFunc) {
	u.tracked = append(u.tracked, trackedAggregate{source: src, persist: persist})
}

// SaveChanges es el camino de commit principal:
//  1. ejecuta la persistencia de cada agregado adjunto,
//  2. recolecta y serializa sus eventos pendientes,
//  3. inserta las filas outbox en la misma transacción,
//  4. hace commit y solo entonces vacía los buffers de eventos.
//
// Cualquier fallo aborta la transacción completa y se propaga sin tocar los
// buffers, de modo que el caller pueda reintentar el caso de uso.
func (u *UnitOfWork) SaveChanges(ctx context.Context) (int64, error) {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}

	affected, err := u.saveChangesTx(ctx, tx)
	if err != nil {
		tx.Rollback()
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	u.finishCommitted()
	return affected, nil
}

// Begin expone control explícito de transacción para casos de uso
// multi-paso. El caller es dueño del tx y debe terminar con Commit o
// Rollback de esta misma unit of work.
func (u *UnitOfWork) Begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	return tx, nil
}

// Commit persiste agregados y outbox dentro del tx del caller y confirma.
func (u *UnitOfWork) Commit(ctx context.Context, tx *sql.Tx) (int64, error) {
	affected, err := u.saveChangesTx(ctx, tx)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	u.finishCommitted()
	return affected, nil
}

// Rollback descarta la transacción. Los buffers de eventos se conservan.
func (u *UnitOfWork) Rollback(tx *sql.Tx) error {
	return tx.Rollback()
}

func (u *UnitOfWork) saveChangesTx(ctx context.Context, tx *sql.Tx) (int64, error) {
	var affected int64

	for _, t := range u.tracked {
		n, err := t.persist(ctx, tx)
		if err != nil {
			return 0, err
		}
		affected += n
	}

	sources := make([]sharedDomain.EventSource, 0, len(u.tracked))
	for _, t := range u.tracked {
		sources = append(sources, t.source)
	}

	msgs, err := CollectMessages(time.Now().UTC(), sources...)
	if err != nil {
		return 0, err
	}

	if len(msgs) > 0 {
		if err := u.outbox.InsertOutboxTx(ctx, tx, msgs); err != nil {
			return 0, fmt.Errorf("failed to insert outbox messages: %w", err)
		}
		affected += int64(len(msgs))
	}

	return affected, nil
}

func (u *UnitOfWork) finishCommitted() {
	for _, t := range u.tracked {
		t.source.ClearEvents()
	}
	u.log.Debug("unit of work committed", zap.Int("aggregates", len(u.tracked)))
	u.tracked = nil
}
