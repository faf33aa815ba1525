package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dantezy/p2p-quoter/internal/orders"
	"github.com/dantezy/p2p-quoter/internal/p2p"
)

const entryColumns = `order_id, side, status, price, amount, quantity, nickname, real_name,
	msg_status_10_sent, msg_status_20_sent, marked_paid, msg_status_10_count, msg_status_20_count,
	created_at, updated_at`

// countColumns maps a message flag to the column counting delivered messages.
var countColumns = map[orders.Flag]string{
	orders.FlagNotified10: "msg_status_10_count",
	orders.FlagNotified20: "msg_status_20_count",
}

// SQLLog is an orders.OrderLog backed by an SQL table, so sent messages and
// paid marks survive restarts.
type SQLLog struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLLog wraps a database opened with Open. Queries use $N placeholders,
// which both supported drivers bind by ordinal.
func NewSQLLog(db *sql.DB) *SQLLog {
	return &SQLLog{db: db, now: time.Now}
}

// GetOrCreate returns the stored entry for the order, inserting it on first sight.
func (l *SQLLog) GetOrCreate(ctx context.Context, order p2p.Order) (orders.Entry, error) {
	e := orders.NewEntry(order, l.now())

	insert := `
		INSERT INTO orders_log (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, FALSE, FALSE, 0, 0, $9, $10)
		ON CONFLICT (order_id) DO NOTHING`

	_, err := l.db.ExecContext(ctx, insert,
		e.OrderID,
		int(e.Side),
		e.Status,
		e.Price.String(),
		e.Amount.String(),
		e.Quantity.String(),
		e.NickName,
		e.RealName,
		e.CreatedAt.UnixMilli(),
		e.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return orders.Entry{}, fmt.Errorf("insert order %s: %w", order.ID, err)
	}

	return l.get(ctx, order.ID)
}

func (l *SQLLog) get(ctx context.Context, orderID string) (orders.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM orders_log WHERE order_id = $1`

	e, err := scanEntry(l.db.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return orders.Entry{}, orders.ErrOrderNotFound
		}
		return orders.Entry{}, fmt.Errorf("select order %s: %w", orderID, err)
	}
	return e, nil
}

// MarkFlag sets a sticky flag on a stored order.
func (l *SQLLog) MarkFlag(ctx context.Context, orderID string, flag orders.Flag) error {
	if !flag.Valid() {
		return orders.ErrUnknownFlag
	}

	// flag is validated above, so it is safe to use as a column name
	query := `UPDATE orders_log SET ` + string(flag) + ` = TRUE, updated_at = $1 WHERE order_id = $2`

	res, err := l.db.ExecContext(ctx, query, l.now().UnixMilli(), orderID)
	if err != nil {
		return fmt.Errorf("update order %s: %w", orderID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order %s: %w", orderID, err)
	}
	if n == 0 {
		return orders.ErrOrderNotFound
	}
	return nil
}

// MarkSent records how many messages of the set behind flag were delivered.
func (l *SQLLog) MarkSent(ctx context.Context, orderID string, flag orders.Flag, sent int) error {
	column, ok := countColumns[flag]
	if !ok {
		return orders.ErrUnknownFlag
	}

	query := `UPDATE orders_log SET ` + column + ` = $1, updated_at = $2 WHERE order_id = $3`

	res, err := l.db.ExecContext(ctx, query, sent, l.now().UnixMilli(), orderID)
	if err != nil {
		return fmt.Errorf("update order %s: %w", orderID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order %s: %w", orderID, err)
	}
	if n == 0 {
		return orders.ErrOrderNotFound
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *SQLLog) Recent(ctx context.Context, limit int) ([]orders.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + entryColumns + ` FROM orders_log ORDER BY created_at DESC, order_id DESC LIMIT $1`

	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []orders.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (orders.Entry, error) {
	var (
		e         orders.Entry
		side      int
		createdAt int64
		updatedAt int64
	)
	err := s.Scan(
		&e.OrderID,
		&side,
		&e.Status,
		&e.Price,
		&e.Amount,
		&e.Quantity,
		&e.NickName,
		&e.RealName,
		&e.Notified10,
		&e.Notified20,
		&e.MarkedPaid,
		&e.Sent10,
		&e.Sent20,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return orders.Entry{}, err
	}

	e.Side = p2p.Side(side)
	e.CreatedAt = time.UnixMilli(createdAt)
	e.UpdatedAt = time.UnixMilli(updatedAt)
	return e, nil
}
