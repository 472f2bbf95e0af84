// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"tradeledger/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Order log: append-only, one row per order event
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		portfolio_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		order_date TEXT NOT NULL,
		trade_date TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		asset_type TEXT NOT NULL DEFAULT 'Stock',
		batch_key TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE(portfolio_id, seq)
	);

	-- Daily price bars cached from providers
	CREATE TABLE IF NOT EXISTS price_bars (
		symbol TEXT NOT NULL,
		date TEXT NOT NULL,
		open TEXT NOT NULL,
		close TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY(symbol, date)
	);

	-- Fetched range per symbol
	CREATE TABLE IF NOT EXISTS price_coverage (
		symbol TEXT PRIMARY KEY,
		from_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		fetched_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_portfolio ON orders(portfolio_id, trade_date, seq);
	CREATE INDEX IF NOT EXISTS idx_orders_batch ON orders(portfolio_id, batch_key);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ============================================================================
// Order Log Methods
// ============================================================================

// LoadOrders returns the order log of a portfolio sorted by (trade date, seq).
func (s *SQLiteStore) LoadOrders(ctx context.Context, portfolioID string) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, portfolio_id, seq, order_date, trade_date, symbol, side, quantity, asset_type, batch_key, created_at
		FROM orders
		WHERE portfolio_id = ?
		ORDER BY trade_date ASC, seq ASC
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var (
			o                    models.Order
			orderDate, tradeDate string
			created, side        string
		)
		if err := rows.Scan(&o.ID, &o.PortfolioID, &o.Seq, &orderDate, &tradeDate, &o.Symbol, &side,
			&o.Quantity, &o.AssetType, &o.BatchKey, &created); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.Side = models.OrderSide(side)
		if o.OrderDate, err = models.ParseDay(orderDate); err != nil {
			return nil, fmt.Errorf("order %s: %w", o.ID, err)
		}
		if o.TradeDate, err = models.ParseDay(tradeDate); err != nil {
			return nil, fmt.Errorf("order %s: %w", o.ID, err)
		}
		if o.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("order %s: invalid created_at: %w", o.ID, err)
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}

// SaveOrders persists the full order log of a portfolio in one transaction.
// Orders already stored are left untouched; the table is never rewritten.
func (s *SQLiteStore) SaveOrders(ctx context.Context, portfolioID string, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO orders (id, portfolio_id, seq, order_date, trade_date, symbol, side, quantity, asset_type, batch_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, o := range orders {
		if o.PortfolioID != "" && o.PortfolioID != portfolioID {
			return fmt.Errorf("order %s belongs to portfolio %q, not %q", o.ID, o.PortfolioID, portfolioID)
		}
		_, err := stmt.ExecContext(ctx, o.ID, portfolioID, o.Seq,
			models.FormatDay(o.OrderDate), models.FormatDay(o.TradeDate),
			o.Symbol, string(o.Side), o.Quantity, o.AssetType, o.BatchKey,
			o.CreatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to insert order %s: %w", o.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListPortfolios returns every portfolio with at least one order.
func (s *SQLiteStore) ListPortfolios(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT portfolio_id FROM orders ORDER BY portfolio_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// DeletePortfolio removes every order of a portfolio in one transaction.
func (s *SQLiteStore) DeletePortfolio(ctx context.Context, portfolioID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE portfolio_id = ?`, portfolioID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orders: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted orders: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return n, nil
}

// ============================================================================
// Price Bar Methods
// ============================================================================

// SavePriceBars upserts daily bars for symbol.
func (s *SQLiteStore) SavePriceBars(ctx context.Context, symbol string, bars []models.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO price_bars (symbol, date, open, close, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	symbol = models.NormalizeSymbol(symbol)
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, models.FormatDay(models.Day(b.Date)), b.Open.String(), b.Close.String()); err != nil {
			return fmt.Errorf("failed to insert price bar: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetPriceBars returns stored bars for symbol within [from, to], ascending.
func (s *SQLiteStore) GetPriceBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, open, close
		FROM price_bars
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, models.NormalizeSymbol(symbol), models.FormatDay(models.Day(from)), models.FormatDay(models.Day(to)))
	if err != nil {
		return nil, fmt.Errorf("failed to query price bars: %w", err)
	}
	defer rows.Close()

	var bars []models.PriceBar
	for rows.Next() {
		var date, open, closing string
		if err := rows.Scan(&date, &open, &closing); err != nil {
			return nil, fmt.Errorf("failed to scan price bar: %w", err)
		}
		var b models.PriceBar
		if b.Date, err = models.ParseDay(date); err != nil {
			return nil, err
		}
		if b.Open, err = decimal.NewFromString(open); err != nil {
			return nil, fmt.Errorf("invalid open %q for %s: %w", open, date, err)
		}
		if b.Close, err = decimal.NewFromString(closing); err != nil {
			return nil, fmt.Errorf("invalid close %q for %s: %w", closing, date, err)
		}
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price bars: %w", err)
	}

	return bars, nil
}

// ============================================================================
// Coverage Methods
// ============================================================================

// GetCoverage returns the fetched range of symbol, zero when never fetched.
func (s *SQLiteStore) GetCoverage(ctx context.Context, symbol string) (Coverage, error) {
	symbol = models.NormalizeSymbol(symbol)
	var from, to, fetched string
	err := s.db.QueryRowContext(ctx, `
		SELECT from_date, to_date, fetched_at FROM price_coverage WHERE symbol = ?
	`, symbol).Scan(&from, &to, &fetched)
	if err == sql.ErrNoRows {
		return Coverage{Symbol: symbol}, nil
	}
	if err != nil {
		return Coverage{}, fmt.Errorf("failed to get coverage: %w", err)
	}

	c := Coverage{Symbol: symbol}
	if c.From, err = models.ParseDay(from); err != nil {
		return Coverage{}, err
	}
	if c.To, err = models.ParseDay(to); err != nil {
		return Coverage{}, err
	}
	if c.FetchedAt, err = time.Parse(time.RFC3339Nano, fetched); err != nil {
		return Coverage{}, fmt.Errorf("invalid fetched_at: %w", err)
	}
	return c, nil
}

// SetCoverage records a fetched range.
func (s *SQLiteStore) SetCoverage(ctx context.Context, c Coverage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO price_coverage (symbol, from_date, to_date, fetched_at)
		VALUES (?, ?, ?, ?)
	`, models.NormalizeSymbol(c.Symbol), models.FormatDay(models.Day(c.From)), models.FormatDay(models.Day(c.To)),
		c.FetchedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to set coverage: %w", err)
	}
	return nil
}
