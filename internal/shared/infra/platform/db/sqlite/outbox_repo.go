package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/shoplab/internal/shared/domain"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// OutboxRepoSQLite implementa ambos lados de la tabla outbox para SQLite:
// la escritura transaccional (unit of work) y el claim/ack del publisher.
// Los instantes se guardan como unix nanos (INTEGER) para que las
// comparaciones del claim sean exactas, sin depender del formato de texto
// del driver.
type OutboxRepoSQLite struct {
	db           *sql.DB
	staleTimeout time.Duration
}

func NewOutboxRepoSQLite(db *sql.DB, staleTimeout time.Duration) *OutboxRepoSQLite {
	return &OutboxRepoSQLite{db: db, staleTimeout: staleTimeout}
}

// InitSchema crea la tabla outbox si no existe. Pensado para el despliegue
// local y los tests; en producción la migración vive fuera del binario.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS outbox (
			seq           INTEGER PRIMARY KEY AUTOINCREMENT,
			id            TEXT NOT NULL UNIQUE,
			event_type    TEXT NOT NULL,
			payload       TEXT NOT NULL,
			aggregate_id  TEXT,
			status        TEXT NOT NULL DEFAULT 'pending',
			attempt_count INTEGER NOT NULL DEFAULT 0,
			last_error    TEXT,
			created_at    INTEGER NOT NULL,
			available_at  INTEGER NOT NULL,
			claimed_by    TEXT,
			claimed_at    INTEGER,
			processed_at  INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_outbox_claim ON outbox(status, available_at);
		CREATE INDEX IF NOT EXISTS idx_outbox_aggregate ON outbox(aggregate_id, seq);
	`)
	return err
}

// InsertOutboxTx inserta las filas dentro de la transacción del caller.
// Solo lo invoca la unit of work: los mensajes nacen siempre en pending.
func (r *OutboxRepoSQLite) InsertOutboxTx(ctx context.Context, tx *sql.Tx, msgs []sharedDomain.OutboxMessage) error {
	for _, m := range msgs {
		var aggregateID interface{}
		if m.AggregateID != "" {
			aggregateID = m.AggregateID
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO outbox (id, event_type, payload, aggregate_id, status, attempt_count, created_at, available_at)
			 VALUES (?,?,?,?,?,0,?,?)`,
			m.ID.String(), m.EventType, string(m.Payload), aggregateID,
			sharedDomain.OutboxPending.String(), m.CreatedAt.UnixNano(), m.AvailableAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert outbox message %s: %w", m.ID, err)
		}
	}
	return nil
}

// ClaimPending reclama el lote con un único UPDATE condicional: ningún otro
// worker puede quedarse con la misma fila porque la condición de estado se
// evalúa y estampa atómicamente. Un mensaje con un hermano anterior sin
// terminar (mismo aggregate_id) queda bloqueado para preservar el orden.
func (r *OutboxRepoSQLite) ClaimPending(ctx context.Context, claimant uuid.UUID, limit int) ([]sharedDomain.OutboxMessage, error) {
	now := time.Now().UTC()
	staleBefore := now.Add(-r.staleTimeout)

	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET status=?, claimed_by=?, claimed_at=?
		WHERE seq IN (
			SELECT o.seq FROM outbox o
			WHERE ((o.status=? AND o.available_at<=?)
			    OR (o.status=? AND o.claimed_at IS NOT NULL AND o.claimed_at<=?))
			  AND NOT EXISTS (
			      SELECT 1 FROM outbox p
			      WHERE p.aggregate_id IS NOT NULL
			        AND p.aggregate_id=o.aggregate_id
			        AND p.seq<o.seq
			        AND p.status IN (?,?)
			  )
			ORDER BY o.seq
			LIMIT ?
		)`,
		sharedDomain.OutboxProcessing.String(), claimant.String(), now.UnixNano(),
		sharedDomain.OutboxPending.String(), now.UnixNano(),
		sharedDomain.OutboxProcessing.String(), staleBefore.UnixNano(),
		sharedDomain.OutboxPending.String(), sharedDomain.OutboxProcessing.String(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, id, event_type, payload, aggregate_id, status, attempt_count, last_error,
		        created_at, available_at, claimed_by, claimed_at, processed_at
		 FROM outbox WHERE claimed_by=? AND status=? ORDER BY seq`,
		claimant.String(), sharedDomain.OutboxProcessing.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read claimed batch: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// MarkProcessed registra entrega exitosa: estado terminal processed. El
// filtro por claimed_by impide que un worker cuyo claim fue recuperado por
// otro pise el estado del nuevo dueño.
func (r *OutboxRepoSQLite) MarkProcessed(ctx context.Context, id uuid.UUID, claimant uuid.UUID, attempts int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status=?, attempt_count=?, processed_at=?, claimed_by=NULL, claimed_at=NULL
		 WHERE id=? AND claimed_by=?`,
		sharedDomain.OutboxProcessed.String(), attempts, time.Now().UTC().UnixNano(), id.String(), claimant.String(),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return ensureAffected(res, id)
}

// Release devuelve el mensaje a pending con el intento fallido anotado y su
// instante de re-elegibilidad (backoff).
func (r *OutboxRepoSQLite) Release(ctx context.Context, id uuid.UUID, claimant uuid.UUID, attempts int, lastError string, availableAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status=?, attempt_count=?, last_error=?, available_at=?, claimed_by=NULL, claimed_at=NULL
		 WHERE id=? AND claimed_by=?`,
		sharedDomain.OutboxPending.String(), attempts, lastError, availableAt.UnixNano(), id.String(), claimant.String(),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return ensureAffected(res, id)
}

// MarkFailed mueve el mensaje a dead-letter; nunca vuelve a reclamarse.
func (r *OutboxRepoSQLite) MarkFailed(ctx context.Context, id uuid.UUID, claimant uuid.UUID, attempts int, lastError string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status=?, attempt_count=?, last_error=?, claimed_by=NULL, claimed_at=NULL
		 WHERE id=? AND claimed_by=?`,
		sharedDomain.OutboxFailed.String(), attempts, lastError, id.String(), claimant.String(),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return ensureAffected(res, id)
}

// FetchFailed lista la dead-letter, lo más reciente primero.
func (r *OutboxRepoSQLite) FetchFailed(ctx context.Context, limit int) ([]sharedDomain.OutboxMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, id, event_type, payload, aggregate_id, status, attempt_count, last_error,
		        created_at, available_at, claimed_by, claimed_at, processed_at
		 FROM outbox WHERE status=? ORDER BY seq DESC LIMIT ?`,
		sharedDomain.OutboxFailed.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func ensureAffected(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", sharedDomain.ErrOutboxMessageNotFound, id)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]sharedDomain.OutboxMessage, error) {
	var msgs []sharedDomain.OutboxMessage

	for rows.Next() {
		var (
			m           sharedDomain.OutboxMessage
			idStr       string
			payload     string
			aggregateID sql.NullString
			status      string
			lastError   sql.NullString
			createdAt   int64
			availableAt int64
			claimedBy   sql.NullString
			claimedAt   sql.NullInt64
			processedAt sql.NullInt64
		)

		if err := rows.Scan(&m.Seq, &idStr, &m.EventType, &payload, &aggregateID, &status,
			&m.AttemptCount, &lastError, &createdAt, &availableAt, &claimedBy, &claimedAt, &processedAt); err != nil {
			return nil, err
		}

		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID in outbox row: %w", err)
		}
		m.ID = id
		m.Payload = []byte(payload)
		m.AggregateID = aggregateID.String
		m.Status = sharedDomain.OutboxStatus(status)
		m.LastError = lastError.String
		m.CreatedAt = time.Unix(0, createdAt).UTC()
		m.AvailableAt = time.Unix(0, availableAt).UTC()
		if claimedBy.Valid {
			cid, err := uuid.Parse(claimedBy.String)
			if err != nil {
				return nil, fmt.Errorf("invalid claimant UUID in outbox row %s: %w", m.ID, err)
			}
			m.ClaimedBy = &cid
		}
		if claimedAt.Valid {
			t := time.Unix(0, claimedAt.Int64).UTC()
			m.ClaimedAt = &t
		}
		if processedAt.Valid {
			t := time.Unix(0, processedAt.Int64).UTC()
			m.ProcessedAt = &t
		}

		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoSQLite)(nil)
