package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/brandwatch/internal/entity"
)

func newTestRepo(t *testing.T) *ListingRepoImpl {
	t.Helper()
	repo, err := NewListingRepo(filepath.Join(t.TempDir(), "items.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func listing(url, title, brand string, platform entity.PlatformID, at time.Time) entity.Listing {
	return entity.FromRaw(entity.RawListing{
		Title:     title,
		PriceText: "¥12,000",
		URL:       url,
		ImageURL:  "https://img.example/" + title + ".jpg",
		Platform:  platform,
	}, brand, at)
}

func TestUpsert_NewThenExisting(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	l := listing("https://jp.mercari.com/item/m1", "kmrii jacket", "kmrii", "mercari", t0)
	isNew, err := repo.Upsert(ctx, &l)
	require.NoError(t, err)
	assert.True(t, isNew)

	exists, err := repo.Exists(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	again := listing("https://jp.mercari.com/item/m1?ref=top", "kmrii jacket", "", "mercari", t0.Add(time.Hour))
	again.ImageURL = ""
	isNew, err = repo.Upsert(ctx, &again)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, l.ID, again.ID)
	assert.Equal(t, "kmrii", again.Brand, "stored brand kept")
	assert.True(t, again.FirstSeenAt.Equal(t0))

	var img string
	require.NoError(t, repo.db.QueryRow(`SELECT img_url FROM items WHERE id = ?`, l.ID).Scan(&img))
	assert.Equal(t, l.ImageURL, img, "empty image does not overwrite")
}

func TestExists_Unknown(t *testing.T) {
	repo := newTestRepo(t)
	exists, err := repo.Exists(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMarkAllInactiveExcept(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	t0 := time.Now().UTC()

	a := listing("https://a.example/1", "a", "kmrii", "mercari", t0)
	b := listing("https://a.example/2", "b", "kmrii", "mercari", t0)
	c := listing("https://b.example/1", "c", "kmrii", "rakuma", t0)
	for _, l := range []*entity.Listing{&a, &b, &c} {
		_, err := repo.Upsert(ctx, l)
		require.NoError(t, err)
	}

	n, err := repo.MarkAllInactiveExcept(ctx, "mercari", []string{a.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stats, err := repo.StatsByBrand(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, entity.BrandStat{Brand: "kmrii", Total: 3, Active: 2}, stats[0])

	// Seeing b again revives it.
	b2 := listing("https://a.example/2", "b", "kmrii", "mercari", t0.Add(time.Minute))
	_, err = repo.Upsert(ctx, &b2)
	require.NoError(t, err)
	stats, err = repo.StatsByBrand(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats[0].Active)
}

func TestDeleteOlderThan(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	old := listing("https://a.example/old", "old", "kmrii", "mercari", now.Add(-40*24*time.Hour))
	fresh := listing("https://a.example/new", "new", "kmrii", "mercari", now)
	_, err := repo.Upsert(ctx, &old)
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, &fresh)
	require.NoError(t, err)

	n, err := repo.DeleteOlderThan(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	exists, err := repo.Exists(ctx, old.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNewListingRepo_MigratesLegacyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	legacy, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = legacy.Exec(`CREATE TABLE items (
		id TEXT PRIMARY KEY, title TEXT, price TEXT, url TEXT, img_url TEXT, source TEXT,
		found_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP)`)
	require.NoError(t, err)
	_, err = legacy.Exec(`INSERT INTO items (id, title, price, url, img_url, source) VALUES ('legacy', 't', 'p', 'u', '', 'mercari')`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	repo, err := NewListingRepo(path)
	require.NoError(t, err)
	defer repo.Close()

	cols, err := repo.columns(context.Background())
	require.NoError(t, err)
	for _, c := range []string{"brand_main", "last_checked", "last_seen", "is_active"} {
		assert.True(t, cols[c], c)
	}

	exists, err := repo.Exists(context.Background(), "legacy")
	require.NoError(t, err)
	assert.True(t, exists, "legacy rows survive")

	// Opening twice is a no-op.
	again, err := NewListingRepo(path)
	require.NoError(t, err)
	again.Close()
}
