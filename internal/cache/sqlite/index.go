// Package sqlite persists Artifact Cache eviction metadata so a restarted
// process can warm-start its LRU accounting without re-fetching blobs it
// already has on disk. It indexes immutable content-addressed cache
// entries only — no ReviewSession state is persisted here, only which
// blobs were already fetched.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rlmlabs/rlmreview/internal/domain"
)

// Index implements cache.Index using an embedded SQLite database. Only
// metadata (key, size, created_at) is stored — not the cached bytes
// themselves, since this cache is a process-local byte cache, not a
// content store of record.
type Index struct {
	db *sql.DB
}

// Open creates or opens the SQLite index at path. Use ":memory:" for a
// throwaway index (e.g. in tests).
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open cache index: %w", err)
	}
	idx := &Index{db: db}
	if err := idx.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (i *Index) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		cache_key  TEXT PRIMARY KEY,
		size_bytes INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	_, err := i.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("create cache index schema: %w", err)
	}
	return nil
}

// Remember records that key was written with the given size.
func (i *Index) Remember(key string, size int, createdAt time.Time) error {
	_, err := i.db.Exec(
		`INSERT INTO cache_entries (cache_key, size_bytes, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET size_bytes=excluded.size_bytes, created_at=excluded.created_at`,
		key, size, createdAt.UnixNano(),
	)
	return err
}

// Forget removes key from the index after eviction.
func (i *Index) Forget(key string) error {
	_, err := i.db.Exec(`DELETE FROM cache_entries WHERE cache_key = ?`, key)
	return err
}

// Load returns placeholder CacheEntry metadata (no Bytes — those are not
// persisted) keyed by cache key, used only to seed eviction accounting at
// startup; callers must still refetch bytes on the next Get miss.
func (i *Index) Load() (map[string]domain.CacheEntry, error) {
	rows, err := i.db.Query(`SELECT cache_key, size_bytes, created_at FROM cache_entries`)
	if err != nil {
		return nil, fmt.Errorf("load cache index: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.CacheEntry)
	for rows.Next() {
		var key string
		var size int
		var createdAtNano int64
		if err := rows.Scan(&key, &size, &createdAtNano); err != nil {
			return nil, fmt.Errorf("scan cache index row: %w", err)
		}
		out[key] = domain.CacheEntry{
			Key:       key,
			Size:      size,
			CreatedAt: time.Unix(0, createdAtNano),
		}
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (i *Index) Close() error { return i.db.Close() }
