package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/davicafu/shoplab/internal/order/domain"
)

// OrderRepoSQLite persiste pedidos en SQLite. Las líneas se guardan como
// JSON dentro de la fila: el pedido es el agregado y se lee/escribe entero.
type OrderRepoSQLite struct {
	db *sql.DB
}

func NewOrderRepoSQLite(db *sql.DB) *OrderRepoSQLite {
	return &OrderRepoSQLite{db: db}
}

// InitSchema crea la tabla orders si no existe.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id             TEXT PRIMARY KEY,
			customer_email TEXT NOT NULL,
			lines          TEXT NOT NULL,
			status         TEXT NOT NULL,
			created_at     INTEGER NOT NULL,
			updated_at     INTEGER NOT NULL
		);
	`)
	return err
}

// InsertTx inserta el pedido dentro de la transacción de la unit of work.
func (r *OrderRepoSQLite) InsertTx(ctx context.Context, tx *sql.Tx, o *domain.Order) (int64, error) {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal order lines: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders (id, customer_email, lines, status, created_at, updated_at)
		 VALUES (?,?,?,?,?,?)`,
		o.ID.String(), o.CustomerEmail, string(lines), string(o.Status),
		o.CreatedAt.UnixNano(), o.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, domain.ErrOrderAlreadyExists
		}
		return 0, fmt.Errorf("db error: %w", err)
	}

	return res.RowsAffected()
}

// UpdateTx actualiza el pedido dentro de la transacción de la unit of work.
func (r *OrderRepoSQLite) UpdateTx(ctx context.Context, tx *sql.Tx, o *domain.Order) (int64, error) {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal order lines: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET customer_email=?, lines=?, status=?, updated_at=? WHERE id=?`,
		o.CustomerEmail, string(lines), string(o.Status), o.UpdatedAt.UnixNano(), o.ID.String(),
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

func (r *OrderRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, customer_email, lines, status, created_at, updated_at FROM orders WHERE id=?`,
		id.String(),
	)
	return scanOrder(row)
}

func (r *OrderRepoSQLite) List(ctx context.Context, f domain.OrderFilter) ([]*domain.Order, error) {
	query := `SELECT id, customer_email, lines, status, created_at, updated_at FROM orders`
	var conds []string
	var args []interface{}

	if f.CustomerEmail != nil {
		conds = append(conds, "customer_email = ?")
		args = append(args, *f.CustomerEmail)
	}
	if f.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*f.Status))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	query += " ORDER BY created_at DESC"

	limit := f.Pagination.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, f.Pagination.Offset)

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
		o         domain.Order
		idStr     string
		linesStr  string
		status    string
		createdAt int64
		updatedAt int64
	)

	err := row.Scan(&idStr, &o.CustomerEmail, &linesStr, &status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID in orders row: %w", err)
	}
	o.ID = id

	if err := json.Unmarshal([]byte(linesStr), &o.Lines); err != nil {
		return nil, fmt.Errorf("invalid JSON lines in orders row %s: %w", o.ID, err)
	}
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = time.Unix(0, createdAt).UTC()
	o.UpdatedAt = time.Unix(0, updatedAt).UTC()

	return &o, nil
}

// Verificación en tiempo de compilación.
var _ domain.OrderRepository = (*OrderRepoSQLite)(nil)
