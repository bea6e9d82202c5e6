package vm

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chazu/vmgen/pkg/bytecode"
	"github.com/chazu/vmgen/pkg/il"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrRoutineNotFound indicates the cache has no entry for a key.
var ErrRoutineNotFound = errors.New("routine not found")

// RoutineCache persists the Go listings of compiled routines in SQLite,
// keyed by the content of the program they were generated from.
type RoutineCache struct {
	db *sql.DB
	mu sync.Mutex
}

// RoutineEntry is one cached listing.
type RoutineEntry struct {
	Key     string
	ID      uuid.UUID
	Name    string
	Source  string
	Created time.Time
}

// OpenRoutineCache opens or creates the cache database at path. Use
// ":memory:" for a throwaway cache.
func OpenRoutineCache(path string) (*RoutineCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening routine cache: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS routines (
		key     TEXT PRIMARY KEY,
		id      TEXT NOT NULL,
		name    TEXT NOT NULL,
		source  TEXT NOT NULL,
		created INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	return &RoutineCache{db: db}, nil
}

// Close closes the database.
func (c *RoutineCache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// RoutineKey is the content hash of a program's canonical encoding.
func RoutineKey(p *bytecode.Program) (string, error) {
	data, err := bytecode.MarshalProgram(p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Store renders cr as Go source and saves it.
func (c *RoutineCache) Store(cr *CompiledRoutine) error {
	key, err := RoutineKey(cr.Func.Program)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", cr.Func.Name(), err)
	}
	src, err := il.GoSource(cr.Routine, "routines")
	if err != nil {
		return fmt.Errorf("rendering %s: %w", cr.Func.Name(), err)
	}
	return c.Put(RoutineEntry{Key: key, ID: cr.ID, Name: cr.Func.Name(), Source: src, Created: time.Now()})
}

// Put saves e, replacing any entry with the same key.
func (c *RoutineCache) Put(e RoutineEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO routines (key, id, name, source, created) VALUES (?, ?, ?, ?, ?)",
		e.Key, e.ID.String(), e.Name, e.Source, e.Created.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving routine: %w", err)
	}
	return nil
}

// Get loads the entry for key.
func (c *RoutineCache) Get(key string) (RoutineEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row := c.db.QueryRow("SELECT key, id, name, source, created FROM routines WHERE key = ?", key)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RoutineEntry{}, ErrRoutineNotFound
	}
	return e, err
}

// List returns every entry ordered by name.
func (c *RoutineCache) List() ([]RoutineEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, err := c.db.Query("SELECT key, id, name, source, created FROM routines ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing routines: %w", err)
	}
	defer rows.Close()

	var out []RoutineEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (RoutineEntry, error) {
	var (
		e       RoutineEntry
		id      string
		created int64
	)
	if err := s.Scan(&e.Key, &id, &e.Name, &e.Source, &created); err != nil {
		return RoutineEntry{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return RoutineEntry{}, fmt.Errorf("routine %s: bad id: %w", e.Key, err)
	}
	e.ID = parsed
	e.Created = time.Unix(0, created)
	return e, nil
}
