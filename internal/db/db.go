package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/errs"
	"github.com/xtrntr/papertrade/internal/models"
)

//go:embed migrations/001_init.sql
var initSQL string

// ErrConflict is returned when a portfolio changed between read and write
var ErrConflict = errors.New("portfolio modified concurrently")

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// Migrate applies the schema. It is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, initSQL); err != nil {
		return fmt.Errorf("failed to apply migration: %w", err)
	}
	return nil
}

const portfolioColumns = "user_id, balance, positions, total_pnl, version, created_at, updated_at"

func scanPortfolio(row pgx.Row) (*models.Portfolio, error) {
	p := &models.Portfolio{}
	var positions []byte
	if err := row.Scan(&p.UserID, &p.Balance, &positions, &p.TotalPnL, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(positions, &p.Positions); err != nil {
		return nil, fmt.Errorf("failed to decode positions: %w", err)
	}
	if p.Positions == nil {
		p.Positions = []models.Position{}
	}
	return p, nil
}

func ensurePortfolio(ctx context.Context, tx pgx.Tx, userID string, startingBalance decimal.Decimal) error {
	_, err := tx.Exec(ctx,
		"INSERT INTO portfolios (user_id, balance, positions, total_pnl) VALUES ($1, $2, '[]'::jsonb, 0) ON CONFLICT (user_id) DO NOTHING",
		userID, startingBalance)
	if err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	return nil
}

// GetOrCreatePortfolio returns the user's portfolio, creating it if missing.
// Concurrent first calls collapse into one row through the primary key.
func (db *DB) GetOrCreatePortfolio(ctx context.Context, userID string, startingBalance decimal.Decimal) (*models.Portfolio, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := ensurePortfolio(ctx, tx, userID, startingBalance); err != nil {
		return nil, err
	}
	p, err := scanPortfolio(tx.QueryRow(ctx, "SELECT "+portfolioColumns+" FROM portfolios WHERE user_id = $1", userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return p, nil
}

// GetPortfolio returns the user's portfolio or errs.ErrNotFound
func (db *DB) GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, error) {
	p, err := scanPortfolio(db.Pool.QueryRow(ctx, "SELECT "+portfolioColumns+" FROM portfolios WHERE user_id = $1", userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("portfolio for user %s: %w", userID, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return p, nil
}

// UpdatePortfolio locks the user's portfolio row, lets fn mutate it and
// writes the portfolio and the order fn returned in the same transaction.
func (db *DB) UpdatePortfolio(ctx context.Context, userID string, startingBalance decimal.Decimal, fn func(p *models.Portfolio) (*models.Order, error)) (*models.Portfolio, error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := ensurePortfolio(ctx, tx, userID, startingBalance); err != nil {
		return nil, outOfRange(err)
	}

	// Lock the row so a second request for the same user waits here
	p, err := scanPortfolio(tx.QueryRow(ctx,
		"SELECT "+portfolioColumns+" FROM portfolios WHERE user_id = $1 FOR UPDATE", userID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock portfolio: %w", err)
	}

	order, err := fn(p)
	if err != nil {
		return nil, err
	}

	positions, err := json.Marshal(p.Positions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode positions: %w", err)
	}
	tag, err := tx.Exec(ctx,
		"UPDATE portfolios SET balance = $1, positions = $2, total_pnl = $3, version = version + 1, updated_at = $4 WHERE user_id = $5 AND version = $6",
		p.Balance, positions, p.TotalPnL, p.UpdatedAt, userID, p.Version)
	if err != nil {
		return nil, outOfRange(fmt.Errorf("failed to save portfolio: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrConflict
	}

	if order != nil {
		if err := insertOrder(ctx, tx, order); err != nil {
			return nil, outOfRange(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	p.Version++
	return p, nil
}

func insertOrder(ctx context.Context, tx pgx.Tx, o *models.Order) error {
	_, err := tx.Exec(ctx,
		"INSERT INTO stock_orders (id, user_id, symbol, stock_name, order_type, side, quantity, price, total_amount, status, market, executed_at, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)",
		o.ID, o.UserID, o.Symbol, o.StockName, string(o.OrderType), string(o.Side), o.Quantity, o.Price,
		o.TotalAmount, string(o.Status), string(o.Market), o.ExecutedAt, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// ListOrders retrieves a page of a user's orders, newest first, and the total count
func (db *DB) ListOrders(ctx context.Context, userID string, limit, offset int) ([]models.Order, int, error) {
	if limit <= 0 || offset < 0 {
		return nil, 0, fmt.Errorf("invalid page: limit %d, offset %d", limit, offset)
	}

	var total int
	if err := db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM stock_orders WHERE user_id = $1", userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id, user_id, symbol, stock_name, order_type, side, quantity, price, total_amount, status, market, executed_at, created_at
		FROM stock_orders
		WHERE user_id = $1
		ORDER BY executed_at DESC, created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get user orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var o models.Order
		var orderType, side, status, market string
		if err := rows.Scan(&o.ID, &o.UserID, &o.Symbol, &o.StockName, &orderType, &side, &o.Quantity, &o.Price,
			&o.TotalAmount, &status, &market, &o.ExecutedAt, &o.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		o.OrderType = models.OrderType(orderType)
		o.Side = models.Side(side)
		o.Status = models.OrderStatus(status)
		o.Market = models.Market(market)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// DeletePendingBefore purges pending signups created before cutoff
func (db *DB) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, "DELETE FROM pending_users WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge pending users: %w", err)
	}
	return tag.RowsAffected(), nil
}

// outOfRange reports a numeric overflow (an amount the money columns cannot
// hold) as a validation error
func outOfRange(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "22003" {
		return errs.Invalid("amount", "Amount is out of range")
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
