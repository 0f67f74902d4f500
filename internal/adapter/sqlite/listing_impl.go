package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/user/brandwatch/internal/entity"
	"github.com/user/brandwatch/internal/repository"
)

// ListingRepoImpl stores listings in a single-file SQLite database. The table
// layout stays readable by earlier releases that wrote the same items table.
type ListingRepoImpl struct {
	db *sql.DB
}

var _ repository.ListingRepository = (*ListingRepoImpl)(nil)

// columns added after the first release, with their definitions.
var additiveColumns = []struct{ name, def string }{
	{"brand_main", "TEXT"},
	{"last_checked", "TIMESTAMP"},
	{"last_seen", "TIMESTAMP"},
	{"is_active", "INTEGER NOT NULL DEFAULT 1"},
}

// NewListingRepo opens the database at path and brings its schema up to date.
func NewListingRepo(path string) (*ListingRepoImpl, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; go-sqlite3 serializes through a single connection.
	db.SetMaxOpenConns(1)

	r := &ListingRepoImpl{db: db}
	if err := r.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *ListingRepoImpl) initSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS items (
			id       TEXT PRIMARY KEY,
			title    TEXT,
			price    TEXT,
			url      TEXT,
			img_url  TEXT,
			source   TEXT,
			found_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("failed to create items table: %w", err)
	}

	existing, err := r.columns(ctx)
	if err != nil {
		return err
	}
	for _, col := range additiveColumns {
		if existing[col.name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE items ADD COLUMN %s %s", col.name, col.def)
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to add column %s: %w", col.name, err)
		}
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_items_source_active ON items (source, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_items_last_seen ON items (last_seen)`,
	} {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func (r *ListingRepoImpl) columns(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `PRAGMA table_info(items)`)
	if err != nil {
		return nil, fmt.Errorf("failed to read table info: %w", err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols[strings.ToLower(name)] = true
	}
	return cols, rows.Err()
}

func (r *ListingRepoImpl) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM items WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *ListingRepoImpl) Upsert(ctx context.Context, l *entity.Listing) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var (
		foundAt sql.NullTime
		brand   sql.NullString
	)
	err = tx.QueryRowContext(ctx, `SELECT found_at, brand_main FROM items WHERE id = ?`, l.ID).Scan(&foundAt, &brand)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO items (id, title, price, url, img_url, source, brand_main, found_at, last_checked, last_seen, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			l.ID, l.Title, l.PriceText, l.URL, l.ImageURL, string(l.Platform), l.Brand,
			l.FirstSeenAt.UTC(), l.LastSeenAt.UTC(), l.LastSeenAt.UTC(),
		)
		if err != nil {
			return false, fmt.Errorf("failed to insert listing: %w", err)
		}
		l.IsActive = true
		return true, tx.Commit()
	case err != nil:
		return false, err
	}

	if foundAt.Valid {
		l.FirstSeenAt = foundAt.Time
	}
	if brand.Valid && brand.String != "" {
		l.Brand = brand.String
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE items SET
			title = ?, price = ?, url = ?,
			img_url = CASE WHEN ? <> '' THEN ? ELSE img_url END,
			brand_main = ?, last_checked = ?, last_seen = ?, is_active = 1
		WHERE id = ?`,
		l.Title, l.PriceText, l.URL,
		l.ImageURL, l.ImageURL,
		l.Brand, l.LastSeenAt.UTC(), l.LastSeenAt.UTC(),
		l.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update listing: %w", err)
	}
	l.IsActive = true
	return false, tx.Commit()
}

func (r *ListingRepoImpl) MarkAllInactiveExcept(ctx context.Context, platform entity.PlatformID, seenIDs []string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	// The keep set goes through a temp table; it can exceed SQLite's bound-parameter limit.
	if _, err := tx.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS keep_ids (id TEXT PRIMARY KEY)`); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM keep_ids`); err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO keep_ids (id) VALUES (?)`)
	if err != nil {
		return 0, err
	}
	for _, id := range seenIDs {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			stmt.Close()
			return 0, err
		}
	}
	stmt.Close()

	res, err := tx.ExecContext(ctx, `
		UPDATE items SET is_active = 0, last_checked = ?
		WHERE source = ? AND is_active = 1 AND id NOT IN (SELECT id FROM keep_ids)`,
		time.Now().UTC(), string(platform),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark listings inactive: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func (r *ListingRepoImpl) StatsByBrand(ctx context.Context) ([]entity.BrandStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT brand_main, COUNT(*), SUM(CASE WHEN is_active = 1 THEN 1 ELSE 0 END)
		FROM items
		WHERE brand_main IS NOT NULL AND brand_main <> ''
		GROUP BY brand_main
		ORDER BY 2 DESC, 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []entity.BrandStat
	for rows.Next() {
		var s entity.BrandStat
		if err := rows.Scan(&s.Brand, &s.Total, &s.Active); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// DeleteOlderThan removes listings last seen before cutoff. Rows written
// before last_seen existed fall back to found_at.
func (r *ListingRepoImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM items WHERE COALESCE(last_seen, found_at) < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *ListingRepoImpl) Close() error {
	return r.db.Close()
}
