package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/brandwatch/internal/entity"
	"github.com/user/brandwatch/internal/repository"
)

// ListingRepoImpl provides a concrete implementation for the ListingRepository interface using PostgreSQL.
type ListingRepoImpl struct {
	db *pgxpool.Pool
}

var _ repository.ListingRepository = (*ListingRepoImpl)(nil)

// NewListingRepo creates a new instance of ListingRepoImpl.
func NewListingRepo(db *pgxpool.Pool) *ListingRepoImpl {
	return &ListingRepoImpl{db: db}
}

// Connect opens a pool and verifies the connection.
func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	db, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return db, nil
}

// Migrate creates the listings table. Later columns are only ever added, so
// older readers of the same table keep working.
func (r *ListingRepoImpl) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS listings (
			id       TEXT PRIMARY KEY,
			title    TEXT NOT NULL DEFAULT '',
			price    TEXT NOT NULL DEFAULT '',
			url      TEXT NOT NULL DEFAULT '',
			img_url  TEXT NOT NULL DEFAULT '',
			source   TEXT NOT NULL DEFAULT '',
			found_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`ALTER TABLE listings ADD COLUMN IF NOT EXISTS brand TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE listings ADD COLUMN IF NOT EXISTS last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW()`,
		`ALTER TABLE listings ADD COLUMN IF NOT EXISTS is_active BOOLEAN NOT NULL DEFAULT TRUE`,
		`CREATE INDEX IF NOT EXISTS idx_listings_source_active ON listings (source, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_last_seen ON listings (last_seen)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_brand ON listings (brand)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate listings: %w", err)
		}
	}
	return nil
}

func (r *ListingRepoImpl) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// Upsert inserts or refreshes a listing. xmax is zero only for a freshly inserted row.
func (r *ListingRepoImpl) Upsert(ctx context.Context, l *entity.Listing) (bool, error) {
	query := `
		INSERT INTO listings (id, title, price, url, img_url, source, brand, found_at, last_seen, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			title     = EXCLUDED.title,
			price     = EXCLUDED.price,
			url       = EXCLUDED.url,
			img_url   = COALESCE(NULLIF(EXCLUDED.img_url, ''), listings.img_url),
			brand     = COALESCE(NULLIF(listings.brand, ''), EXCLUDED.brand),
			last_seen = EXCLUDED.last_seen,
			is_active = TRUE
		RETURNING found_at, brand, (xmax = 0) AS inserted;
	`

	var inserted bool
	err := r.db.QueryRow(ctx, query,
		l.ID,
		l.Title,
		l.PriceText,
		l.URL,
		l.ImageURL,
		string(l.Platform),
		l.Brand,
		l.FirstSeenAt,
		l.LastSeenAt,
	).Scan(&l.FirstSeenAt, &l.Brand, &inserted)
	if err != nil {
		return false, err
	}
	l.IsActive = true
	return inserted, nil
}

func (r *ListingRepoImpl) MarkAllInactiveExcept(ctx context.Context, platform entity.PlatformID, seenIDs []string) (int64, error) {
	if seenIDs == nil {
		// A NULL array would match nothing.
		seenIDs = []string{}
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE listings SET is_active = FALSE
		 WHERE source = $1 AND is_active AND NOT (id = ANY($2))`,
		string(platform), seenIDs,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *ListingRepoImpl) StatsByBrand(ctx context.Context) ([]entity.BrandStat, error) {
	rows, err := r.db.Query(ctx, `
		SELECT brand, COUNT(*), COUNT(*) FILTER (WHERE is_active)
		FROM listings
		WHERE brand <> ''
		GROUP BY brand
		ORDER BY 2 DESC, 1
	`)
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

func (r *ListingRepoImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM listings WHERE last_seen < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *ListingRepoImpl) Close() error {
	r.db.Close()
	return nil
}
