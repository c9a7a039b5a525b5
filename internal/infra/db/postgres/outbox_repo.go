package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/shoplab/internal/shared/domain"
	"github.com/google/uuid"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OutboxRepoPostgres implementa ambos lados de la tabla outbox para
// Postgres (driver pgx vía database/sql). Mismo contrato y misma mecánica
// de claim que el adapter SQLite, con tipos nativos TIMESTAMPTZ/JSONB.
type OutboxRepoPostgres struct {
	db           *sql.DB
	staleTimeout time.Duration
}

func NewOutboxRepoPostgres(db *sql.DB, staleTimeout time.Duration) *OutboxRepoPostgres {
	return &OutboxRepoPostgres{db: db, staleTimeout: staleTimeout}
}

// InitSchema crea la tabla outbox si no existe.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS outbox (
			seq           BIGSERIAL PRIMARY KEY,
			id            UUID NOT NULL UNIQUE,
			event_type    TEXT NOT NULL,
			payload       JSONB NOT NULL,
			aggregate_id  TEXT,
			status        TEXT NOT NULL DEFAULT 'pending',
			attempt_count INTEGER NOT NULL DEFAULT 0,
			last_error    TEXT,
			created_at    TIMESTAMPTZ NOT NULL,
			available_at  TIMESTAMPTZ NOT NULL,
			claimed_by    UUID,
			claimed_at    TIMESTAMPTZ,
			processed_at  TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_outbox_claim ON outbox(status, available_at);
		CREATE INDEX IF NOT EXISTS idx_outbox_aggregate ON outbox(aggregate_id, seq);
	`)
	return err
}

// InsertOutboxTx inserta las filas dentro de la transacción del caller.
func (r *OutboxRepoPostgres) InsertOutboxTx(ctx context.Context, tx *sql.Tx, msgs []sharedDomain.OutboxMessage) error {
	for _, m := range msgs {
		var aggregateID interface{}
		if m.AggregateID != "" {
			aggregateID = m.AggregateID
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO outbox (id, event_type, payload, aggregate_id, status, attempt_count, created_at, available_at)
			 VALUES ($1,$2,$3,$4,$5,0,$6,$7)`,
			m.ID, m.EventType, []byte(m.Payload), aggregateID,
			sharedDomain.OutboxPending.String(), m.CreatedAt, m.AvailableAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert outbox message %s: %w", m.ID, err)
		}
	}
	return nil
}

// ClaimPending reclama el lote con un UPDATE condicional atómico, igual que
// el adapter SQLite. Con varias réplicas del publisher, Postgres serializa
// los UPDATE sobre las mismas filas, así que dos workers nunca se quedan
// con el mismo mensaje.
func (r *OutboxRepoPostgres) ClaimPending(ctx context.Context, claimant uuid.UUID, limit int) ([]sharedDomain.OutboxMessage, error) {
	now := time.Now().UTC()
	staleBefore := now.Add(-r.staleTimeout)

	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET status=$1, claimed_by=$2, claimed_at=$3
		WHERE seq IN (
			SELECT o.seq FROM outbox o
			WHERE ((o.status=$4 AND o.available_at<=$3)
			    OR (o.status=$1 AND o.claimed_at IS NOT NULL AND o.claimed_at<=$5))
			  AND NOT EXISTS (
			      SELECT 1 FROM outbox p
			      WHERE p.aggregate_id IS NOT NULL
			        AND p.aggregate_id=o.aggregate_id
			        AND p.seq<o.seq
			        AND p.status IN ($4,$1)
			  )
			ORDER BY o.seq
			LIMIT $6
			FOR UPDATE SKIP LOCKED
		)`,
		sharedDomain.OutboxProcessing.String(), claimant, now,
		sharedDomain.OutboxPending.String(), staleBefore,
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
		 FROM outbox WHERE claimed_by=$1 AND status=$2 ORDER BY seq`,
		claimant, sharedDomain.OutboxProcessing.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read claimed batch: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// MarkProcessed registra entrega exitosa. El filtro por claimed_by impide
// que un worker con un claim ya recuperado pise el estado del nuevo dueño.
func (r *OutboxRepoPostgres) MarkProcessed(ctx context.Context, id uuid.UUID, claimant uuid.UUID, attempts int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status=$1, attempt_count=$2, processed_at=$3, claimed_by=NULL, claimed_at=NULL
		 WHERE id=$4 AND claimed_by=$5`,
		sharedDomain.OutboxProcessed.String(), attempts, time.Now().UTC(), id, claimant,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return ensureAffected(res, id)
}

func (r *OutboxRepoPostgres) Release(ctx context.Context, id uuid.UUID, claimant uuid.UUID, attempts int, lastError string, availableAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status=$1, attempt_count=$2, last_error=$3, available_at=$4, claimed_by=NULL, claimed_at=NULL
		 WHERE id=$5 AND claimed_by=$6`,
		sharedDomain.OutboxPending.String(), attempts, lastError, availableAt, id, claimant,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return ensureAffected(res, id)
}

func (r *OutboxRepoPostgres) MarkFailed(ctx context.Context, id uuid.UUID, claimant uuid.UUID, attempts int, lastError string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status=$1, attempt_count=$2, last_error=$3, claimed_by=NULL, claimed_at=NULL
		 WHERE id=$4 AND claimed_by=$5`,
		sharedDomain.OutboxFailed.String(), attempts, lastError, id, claimant,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return ensureAffected(res, id)
}

func (r *OutboxRepoPostgres) FetchFailed(ctx context.Context, limit int) ([]sharedDomain.OutboxMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, id, event_type, payload, aggregate_id, status, attempt_count, last_error,
		        created_at, available_at, claimed_by, claimed_at, processed_at
		 FROM outbox WHERE status=$1 ORDER BY seq DESC LIMIT $2`,
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
			payload     []byte
			aggregateID sql.NullString
			status      string
			lastError   sql.NullString
			claimedBy   sql.NullString
			claimedAt   sql.NullTime
			processedAt sql.NullTime
		)

		if err := rows.Scan(&m.Seq, &m.ID, &m.EventType, &payload, &aggregateID, &status,
			&m.AttemptCount, &lastError, &m.CreatedAt, &m.AvailableAt, &claimedBy, &claimedAt, &processedAt); err != nil {
			return nil, err
		}

		m.Payload = payload
		m.AggregateID = aggregateID.String
		m.Status = sharedDomain.OutboxStatus(status)
		m.LastError = lastError.String
		if claimedBy.Valid {
			cid, err := uuid.Parse(claimedBy.String)
			if err != nil {
				return nil, fmt.Errorf("invalid claimant UUID in outbox row %s: %w", m.ID, err)
			}
			m.ClaimedBy = &cid
		}
		if claimedAt.Valid {
			t := claimedAt.Time.UTC()
			m.ClaimedAt = &t
		}
		if processedAt.Valid {
			t := processedAt.Time.UTC()
			m.ProcessedAt = &t
		}

		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoPostgres)(nil)
