package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/davicafu/shoplab/internal/order/domain"
)

// OrderRepoPostgres persiste pedidos en Postgres (pgx vía database/sql).
type OrderRepoPostgres struct {
	db *sql.DB
}

func NewOrderRepoPostgres(db *sql.DB) *OrderRepoPostgres {
	return &OrderRepoPostgres{db: db}
}

// InitSchema crea la tabla orders si no existe.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id             UUID PRIMARY KEY,
			customer_email TEXT NOT NULL,
			lines          JSONB NOT NULL,
			status         TEXT NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

func (r *OrderRepoPostgres) InsertTx(ctx context.Context, tx *sql.Tx, o *domain.Order) (int64, error) {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal order lines: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders (id, customer_email, lines, status, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		o.ID, o.CustomerEmail, lines, string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return 0, domain.ErrOrderAlreadyExists
		}
		return 0, fmt.Errorf("db error: %w", err)
	}

	return res.RowsAffected()
}

func (r *OrderRepoPostgres) UpdateTx(ctx context.Context, tx *sql.Tx, o *domain.Order) (int64, error) {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal order lines: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET customer_email=$1, lines=$2, status=$3, updated_at=$4 WHERE id=$5`,
		o.CustomerEmail, lines, string(o.Status), o.UpdatedAt, o.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	if rows == 0 {
		return 0, domain.ErrOrderNotFound
	}
	return rows, nil
}

func (r *OrderRepoPostgres) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, customer_email, lines, status, created_at, updated_at FROM orders WHERE id=$1`,
		id,
	)
	return scanOrder(row)
}

func (r *OrderRepoPostgres) List(ctx context.Context, f domain.OrderFilter) ([]*domain.Order, error) {
	query := `SELECT id, customer_email, lines, status, created_at, updated_at FROM orders`
	var conds []string
	var args []interface{}

	if f.CustomerEmail != nil {
		args = append(args, *f.CustomerEmail)
		conds = append(conds, fmt.Sprintf("customer_email = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	query += " ORDER BY created_at DESC"

	limit := f.Pagination.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, f.Pagination.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o      domain.Order
		lines  []byte
		status string
	)

	err := row.Scan(&o.ID, &o.CustomerEmail, &lines, &status, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return nil, fmt.Errorf("invalid JSON lines in orders row %s: %w", o.ID, err)
	}
	o.Status = domain.OrderStatus(status)

	return &o, nil
}

// Verificación en tiempo de compilación.
var _ domain.OrderRepository = (*OrderRepoPostgres)(nil)
