package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/peergramhq/peergram/pkg/state"
)

// Cache persists the last successfully loaded catalog per network in a
// local sqlite database, so a later startup whose catalog load fails can
// still show the previous ranking instead of an empty view.
type Cache struct {
	db     *sql.DB
	logger *zap.Logger
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS catalog_entries (
	network      TEXT    NOT NULL,
	position     INTEGER NOT NULL,
	entry_id     INTEGER NOT NULL,
	content_hash TEXT    NOT NULL,
	description  TEXT    NOT NULL,
	owner        TEXT    NOT NULL,
	tip_amount   TEXT    NOT NULL,
	PRIMARY KEY (network, position)
);
`

// OpenCache opens (and if needed initializes) the cache database at path
func OpenCache(path string, logger *zap.Logger) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &Cache{db: db, logger: logger}, nil
}

// Save replaces the cached catalog for a network with the given ranked
// sequence. Positions preserve the ranking order.
func (c *Cache) Save(ctx context.Context, network string, entries []state.Entry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM catalog_entries WHERE network = ?", network); err != nil {
		return fmt.Errorf("failed to clear cached catalog: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO catalog_entries (network, position, entry_id, content_hash, description, owner, tip_amount) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare cache insert: %w", err)
	}
	defer stmt.Close()

	for pos, entry := range entries {
		tip := "0"
		if entry.TipAmount != nil {
			tip = entry.TipAmount.String()
		}
		if _, err := stmt.ExecContext(ctx, network, pos, entry.ID, entry.ContentHash, entry.Description, entry.Owner, tip); err != nil {
			return fmt.Errorf("failed to cache entry %d: %w", entry.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache transaction: %w", err)
	}

	c.logger.Debug("catalog cached",
		zap.String("network", network),
		zap.Int("entries", len(entries)),
	)
	return nil
}

// Load returns the cached catalog for a network in its saved ranking order.
// A network with no cached catalog yields an empty slice, not an error.
func (c *Cache) Load(ctx context.Context, network string) ([]state.Entry, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT entry_id, content_hash, description, owner, tip_amount FROM catalog_entries WHERE network = ? ORDER BY position",
		network)
	if err != nil {
		return nil, fmt.Errorf("failed to query cached catalog: %w", err)
	}
	defer rows.Close()

	var entries []state.Entry
	for rows.Next() {
		var entry state.Entry
		var tip string
		if err := rows.Scan(&entry.ID, &entry.ContentHash, &entry.Description, &entry.Owner, &tip); err != nil {
			return nil, fmt.Errorf("failed to scan cached entry: %w", err)
		}
		amount, ok := new(big.Int).SetString(tip, 10)
		if !ok {
			return nil, fmt.Errorf("corrupt tip amount %q in cache", tip)
		}
		entry.TipAmount = amount
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cached catalog: %w", err)
	}

	return entries, nil
}

// Close releases the cache database
func (c *Cache) Close() error {
	return c.db.Close()
}
