// Package cache stores compiled script images in SQLite, keyed by a hash of
// the script source, so unchanged scripts skip compilation.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	"github.com/zeebo/xxh3"
	_ "modernc.org/sqlite"

	"github.com/chazu/coxy/vm/dist"
)

var log = commonlog.GetLogger("coxy.cache")

// Cache handles SQLite storage for compiled images.
type Cache struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Key returns the cache key for source. The image format version is part of
// the key, so a format change never serves stale images.
func Key(source string) string {
	return fmt.Sprintf("v%d-%x", dist.ImageVersion, xxh3.HashString128(source).Bytes())
}

// Open opens or creates the cache database at dbPath.
func Open(dbPath string) (*Cache, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS scripts (
		key TEXT PRIMARY KEY,
		image BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Cache{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.dbPath
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Get returns the image stored under key. The boolean is false on a miss.
func (c *Cache) Get(key string) ([]byte, bool, error) {
	var image []byte
	err := c.db.QueryRow("SELECT image FROM scripts WHERE key = ?", key).Scan(&image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("miss %s", key)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("querying image: %w", err)
	}
	log.Debugf("hit %s (%d bytes)", key, len(image))
	return image, true, nil
}

// Put stores image under key, replacing any previous entry.
func (c *Cache) Put(key string, image []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO scripts (key, image, created_at) VALUES (?, ?, ?)",
		key, image, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving image: %w", err)
	}
	return nil
}

// Delete removes the entry stored under key, if any.
func (c *Cache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("DELETE FROM scripts WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}
	return nil
}

// Len returns the number of cached images.
func (c *Cache) Len() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM scripts").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting images: %w", err)
	}
	return n, nil
}
