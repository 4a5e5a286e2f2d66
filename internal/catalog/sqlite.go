package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	errs "github.com/restocker/invsearch/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	unit        TEXT NOT NULL DEFAULT '',
	on_hand_qty REAL NOT NULL DEFAULT 0,
	last_cost   REAL NOT NULL DEFAULT 0,
	vendor      TEXT NOT NULL DEFAULT '',
	sku         TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	embed_hash  TEXT NOT NULL DEFAULT '',
	updated_at  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_items_category ON items(category);
CREATE INDEX IF NOT EXISTS idx_items_vendor ON items(vendor);
`

// SQLiteStore persists the catalog in a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if necessary) the catalog database at path.
// Pass ":memory:" for an ephemeral store in tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		// WAL keeps readers unblocked during ingest writes.
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrCodeStoreUnavailable, "open catalog database").
			WithDetail("path", path)
	}

	if path == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errs.Wrap(err, errs.ErrCodeStoreUnavailable, "apply catalog schema").
			WithDetail("path", path)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, unit, on_hand_qty, last_cost, vendor, sku, description, updated_at
		FROM items WHERE id = ?`, id)

	var it Item
	var updatedAt int64
	err := row.Scan(&it.ID, &it.Name, &it.Category, &it.Unit, &it.OnHandQty,
		&it.LastCost, &it.Vendor, &it.SKU, &it.Description, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrCodeStoreUnavailable, "read item").WithDetail("id", id)
	}
	if updatedAt > 0 {
		it.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	}
	return &it, nil
}

func (s *SQLiteStore) PutItem(ctx context.Context, item *Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	updatedAt := item.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, name, category, unit, on_hand_qty, last_cost, vendor, sku, description, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			unit = excluded.unit,
			on_hand_qty = excluded.on_hand_qty,
			last_cost = excluded.last_cost,
			vendor = excluded.vendor,
			sku = excluded.sku,
			description = excluded.description,
			updated_at = excluded.updated_at`,
		item.ID, item.Name, item.Category, item.Unit, item.OnHandQty,
		item.LastCost, item.Vendor, item.SKU, item.Description, updatedAt.Unix())
	if err != nil {
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "write item").WithDetail("id", item.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteItem(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "delete item").WithDetail("id", id)
	}
	return nil
}

func (s *SQLiteStore) ListItems(ctx context.Context) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, unit, on_hand_qty, last_cost, vendor, sku, description, updated_at
		FROM items ORDER BY id`)
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrCodeStoreUnavailable, "list items")
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		var it Item
		var updatedAt int64
		if err := rows.Scan(&it.ID, &it.Name, &it.Category, &it.Unit, &it.OnHandQty,
			&it.LastCost, &it.Vendor, &it.SKU, &it.Description, &updatedAt); err != nil {
			return nil, errs.Wrap(err, errs.ErrCodeStoreUnavailable, "scan item row")
		}
		if updatedAt > 0 {
			it.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		}
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(err, errs.ErrCodeStoreUnavailable, "iterate item rows")
	}
	return items, nil
}

func (s *SQLiteStore) GetEmbedHash(ctx context.Context, id string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT embed_hash FROM items WHERE id = ?`, id).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errs.Wrap(err, errs.ErrCodeStoreUnavailable, "read embed hash").WithDetail("id", id)
	}
	return hash, nil
}

func (s *SQLiteStore) SetEmbedHash(ctx context.Context, id, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE items SET embed_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return errs.Wrap(err, errs.ErrCodeStoreUnavailable, "write embed hash").WithDetail("id", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.New(errs.ErrCodeItemNotFound, "item not found", nil).WithDetail("id", id)
	}
	return nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Categories: make(map[string]int)}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT NULLIF(vendor, '')),
		       COALESCE(SUM(on_hand_qty * last_cost), 0)
		FROM items`)
	if err := row.Scan(&stats.ItemCount, &stats.VendorCount, &stats.TotalValue); err != nil {
		return nil, errs.Wrap(err, errs.ErrCodeStoreUnavailable, "aggregate catalog stats")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*) FROM items GROUP BY category`)
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrCodeStoreUnavailable, "aggregate category counts")
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, errs.Wrap(err, errs.ErrCodeStoreUnavailable, "scan category row")
		}
		if cat == "" {
			cat = "(uncategorized)"
		}
		stats.Categories[cat] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(err, errs.ErrCodeStoreUnavailable, "iterate category rows")
	}
	return stats, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
