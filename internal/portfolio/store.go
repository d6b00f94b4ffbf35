// Package portfolio tracks stock positions with average-cost
// bookkeeping and live valuation.
package portfolio

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // database/sql driver
)

// Position is one held security.
type Position struct {
	Symbol    string
	Shares    int
	AvgCost   float64
	UpdatedAt time.Time
}

// Cost returns the total cost basis of the position.
func (p Position) Cost() float64 {
	return float64(p.Shares) * p.AvgCost
}

// Store persists positions in a local SQLite database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS positions (
	symbol     TEXT PRIMARY KEY,
	shares     INTEGER NOT NULL,
	avg_cost   REAL NOT NULL,
	updated_at TEXT NOT NULL
);`

// Open creates or opens the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open portfolio db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create positions table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Buy adds shares at the given price, merging into any existing
// position with average-cost accounting.
func (s *Store) Buy(ctx context.Context, symbol string, shares int, price float64) error {
	if shares <= 0 {
		return fmt.Errorf("buy %s: shares must be positive, got %d", symbol, shares)
	}
	if price <= 0 {
		return fmt.Errorf("buy %s: price must be positive, got %v", symbol, price)
	}

	pos, ok, err := s.Get(ctx, symbol)
	if err != nil {
		return err
	}

	newShares := shares
	newCost := price
	if ok {
		newShares = pos.Shares + shares
		newCost = (pos.Cost() + float64(shares)*price) / float64(newShares)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO positions (symbol, shares, avg_cost, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			shares = excluded.shares,
			avg_cost = excluded.avg_cost,
			updated_at = excluded.updated_at`,
		symbol, newShares, newCost, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("buy %s: %w", symbol, err)
	}
	return nil
}

// Sell removes shares from a position. Selling more than held is an
// error; selling the full position deletes it.
func (s *Store) Sell(ctx context.Context, symbol string, shares int) error {
	if shares <= 0 {
		return fmt.Errorf("sell %s: shares must be positive, got %d", symbol, shares)
	}

	pos, ok, err := s.Get(ctx, symbol)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("sell %s: no position held", symbol)
	}
	if shares > pos.Shares {
		return fmt.Errorf("sell %s: holding %d shares, cannot sell %d", symbol, pos.Shares, shares)
	}

	if shares == pos.Shares {
		_, err = s.db.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, symbol)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE positions SET shares = ?, updated_at = ? WHERE symbol = ?`,
			pos.Shares-shares, time.Now().UTC().Format(time.RFC3339), symbol)
	}
	if err != nil {
		return fmt.Errorf("sell %s: %w", symbol, err)
	}
	return nil
}

// Get returns the position for a symbol, reporting whether it exists.
func (s *Store) Get(ctx context.Context, symbol string) (Position, bool, error) {
	var pos Position
	var updated string
	err := s.db.QueryRowContext(ctx, `
		SELECT symbol, shares, avg_cost, updated_at FROM positions WHERE symbol = ?`,
		symbol).Scan(&pos.Symbol, &pos.Shares, &pos.AvgCost, &updated)
	if err == sql.ErrNoRows {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, fmt.Errorf("get position %s: %w", symbol, err)
	}
	pos.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return pos, true, nil
}

// Positions returns all held positions ordered by symbol.
func (s *Store) Positions(ctx context.Context) ([]Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, shares, avg_cost, updated_at FROM positions ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var pos Position
		var updated string
		if err := rows.Scan(&pos.Symbol, &pos.Shares, &pos.AvgCost, &updated); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		pos.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		out = append(out, pos)
	}
	return out, rows.Err()
}
