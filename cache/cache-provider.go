package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/glebarez/go-sqlite"
	lru "github.com/hashicorp/golang-lru/v2"
)

var ErrCapacity = errors.New("cache capacity must be positive")

// Provider is an interface for a cache provider.
// It stores the results of origin fetches, keyed by remote URL.
// It holds at most a fixed number of entries and evicts the least recently used
// entry when a new one would exceed that bound.
//
// Implementations must be thread-safe!
type Provider interface {
	// Get returns the entry for the given key, if it exists.
	// It also returns a boolean indicating whether retrieval was successful.
	// A successful Get marks the entry as most recently used.
	Get(key string) (Entry, bool, error)
	// Put stores the given entry under the given key, evicting the least
	// recently used entry if the cache is full.
	Put(key string, entry Entry) error
	// Purge removes the cache entry for the given key.
	Purge(key string) error
	// Len returns the number of stored entries.
	Len() int
	// Close releases the resources held by the provider.
	Close() error
}

type Entry struct {
	// Classification of the fetch result, chosen by the caller.
	// Providers store it verbatim.
	Outcome int
	// Status code reported by the origin, zero if no response was received.
	StatusCode int
	Body       []byte
}

type MemCache struct {
	entries *lru.Cache[string, Entry]
}

// NewMemCache creates an in-memory cache holding at most capacity entries.
func NewMemCache(capacity int) (*MemCache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrCapacity, capacity)
	}
	entries, err := lru.New[string, Entry](capacity)
	if err != nil {
		return nil, err
	}
	return &MemCache{entries: entries}, nil
}

func (m *MemCache) Get(key string) (Entry, bool, error) {
	entry, ok := m.entries.Get(key)
	return entry, ok, nil
}

func (m *MemCache) Put(key string, entry Entry) error {
	m.entries.Add(key, entry)
	return nil
}

func (m *MemCache) Purge(key string) error {
	m.entries.Remove(key)
	return nil
}

func (m *MemCache) Len() int {
	return m.entries.Len()
}

func (m *MemCache) Close() error {
	m.entries.Purge()
	return nil
}

// SQLiteCache keeps entries in an SQLite table.
// Recency is tracked with a counter stored in the `used` column,
// the rows with the lowest values are deleted when the table grows past capacity.
type SQLiteCache struct {
	db         *sql.DB
	capacity   int
	writeMutex *sync.Mutex
	clock      int64
}

// NewSQLiteCache creates a new cache with the given filename as the db.
// If file name is empty, a private in-memory db is opened.
func NewSQLiteCache(filename string, capacity int) (*SQLiteCache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrCapacity, capacity)
	}
	if filename == "" {
		filename = ":memory:"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// a single connection keeps in-memory dbs alive and serializes writes
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		outcome INTEGER,
		status INTEGER,
		body BLOB,
		used INTEGER
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache table: %w", err)
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS used_idx ON cache (used)")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache index: %w", err)
	}

	s := &SQLiteCache{
		db:         db,
		capacity:   capacity,
		writeMutex: &sync.Mutex{},
	}
	// continue counting from an existing db file
	if err := db.QueryRow("SELECT COALESCE(MAX(used), 0) FROM cache").Scan(&s.clock); err != nil {
		db.Close()
		return nil, fmt.Errorf("read cache clock: %w", err)
	}
	// the capacity may have shrunk since the file was written
	if err := s.evict(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteCache) Get(key string) (Entry, bool, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	var entry Entry
	err := s.db.QueryRow("SELECT outcome, status, body FROM cache WHERE key = ?", key).
		Scan(&entry.Outcome, &entry.StatusCode, &entry.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	s.clock++
	if _, err := s.db.Exec("UPDATE cache SET used = ? WHERE key = ?", s.clock, key); err != nil {
		return entry, true, err
	}
	return entry, true, nil
}

func (s *SQLiteCache) Put(key string, entry Entry) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	s.clock++
	_, err := s.db.Exec(`INSERT INTO cache (key, outcome, status, body, used) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			outcome = excluded.outcome,
			status = excluded.status,
			body = excluded.body,
			used = excluded.used`,
		key, entry.Outcome, entry.StatusCode, entry.Body, s.clock)
	if err != nil {
		return err
	}
	return s.evict()
}

// evict deletes everything but the capacity most recently used rows.
func (s *SQLiteCache) evict() error {
	_, err := s.db.Exec(`DELETE FROM cache WHERE key IN (
		SELECT key FROM cache ORDER BY used DESC LIMIT -1 OFFSET ?
	)`, s.capacity)
	if err != nil {
		return fmt.Errorf("evict cache entries: %w", err)
	}
	return nil
}

func (s *SQLiteCache) Purge(key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM cache WHERE key = ?", key)
	return err
}

func (s *SQLiteCache) Len() int {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM cache").Scan(&n); err != nil {
		return 0
	}
	return n
}

func (s *SQLiteCache) Close() error {
	return s.db.Close()
}
