// Package catalog persists recovered call-site keyword orders in SQLite.
//
// Rows are keyed by procedure and call offset and carry the frame digest
// (code plus constant pool, see inspect.FrameDigest) they were recovered
// from; a row whose digest no longer matches the procedure's frame is stale
// and is never returned.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"github.com/chazu/kworder/pkg/inspect"
)

// ErrSiteNotFound indicates no current row exists for the call site.
var ErrSiteNotFound = errors.New("call site not found")

// Entry is one recorded call site.
type Entry struct {
	Procedure  string
	Offset     int
	Digest     string
	Names      []string
	Error      string // extraction failure, empty on success
	RecordedAt time.Time
}

// Catalog handles SQLite storage for call sites.
type Catalog struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
	log  commonlog.Logger
}

// Open opens (creating if needed) the catalog database at path.
func Open(path string) (*Catalog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating catalog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS sites (
		procedure   TEXT    NOT NULL,
		call_offset INTEGER NOT NULL,
		digest      TEXT    NOT NULL,
		names       BLOB,
		error       TEXT    NOT NULL DEFAULT '',
		recorded_at INTEGER NOT NULL,
		PRIMARY KEY (procedure, call_offset)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Catalog{db: db, path: path, log: commonlog.GetLogger("kworder.catalog")}, nil
}

// Path returns the database file path.
func (c *Catalog) Path() string {
	return c.path
}

// Close closes the database connection
func (c *Catalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Record replaces every row of procedure with the results of one scan of
// the frame identified by digest.
func (c *Catalog) Record(procedure string, digest inspect.Digest, results []inspect.SiteResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM sites WHERE procedure = ?", procedure); err != nil {
		return fmt.Errorf("clearing %q: %w", procedure, err)
	}

	now := time.Now().Unix()
	for _, r := range results {
		var blob []byte
		var failure string
		if r.Err != nil {
			failure = r.Err.Error()
		} else {
			blob, err = msgpack.Marshal(r.Names)
			if err != nil {
				return fmt.Errorf("encoding names at %d: %w", r.Offset, err)
			}
		}
		_, err = tx.Exec(
			"INSERT INTO sites (procedure, call_offset, digest, names, error, recorded_at) VALUES (?, ?, ?, ?, ?, ?)",
			procedure, r.Offset, digest.String(), blob, failure, now,
		)
		if err != nil {
			return fmt.Errorf("saving site %d: %w", r.Offset, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %q: %w", procedure, err)
	}
	c.log.Debugf("recorded %d sites for %q", len(results), procedure)
	return nil
}

// Lookup returns the recorded names for a call site. A row recorded from a
// different frame, or one whose extraction failed, yields ErrSiteNotFound
// and the recorded failure respectively.
func (c *Catalog) Lookup(procedure string, offset int, digest inspect.Digest) ([]string, error) {
	var stored string
	var blob []byte
	var failure string
	err := c.db.QueryRow(
		"SELECT digest, names, error FROM sites WHERE procedure = ? AND call_offset = ?",
		procedure, offset,
	).Scan(&stored, &blob, &failure)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSiteNotFound
		}
		return nil, fmt.Errorf("querying site: %w", err)
	}
	if stored != digest.String() {
		c.log.Debugf("stale row for %q at %d", procedure, offset)
		return nil, ErrSiteNotFound
	}
	if failure != "" {
		return nil, fmt.Errorf("recorded extraction failure at %d: %s", offset, failure)
	}
	return decodeNames(blob)
}

// List returns every row, ordered by procedure then offset.
func (c *Catalog) List() ([]Entry, error) {
	rows, err := c.db.Query(
		"SELECT procedure, call_offset, digest, names, error, recorded_at FROM sites ORDER BY procedure, call_offset",
	)
	if err != nil {
		return nil, fmt.Errorf("listing sites: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var blob []byte
		var recorded int64
		if err := rows.Scan(&e.Procedure, &e.Offset, &e.Digest, &blob, &e.Error, &recorded); err != nil {
			return nil, fmt.Errorf("scanning site: %w", err)
		}
		if e.Error == "" {
			if e.Names, err = decodeNames(blob); err != nil {
				return nil, err
			}
		}
		e.RecordedAt = time.Unix(recorded, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sites: %w", err)
	}
	return entries, nil
}

// Forget deletes every row of procedure.
func (c *Catalog) Forget(procedure string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.db.Exec("DELETE FROM sites WHERE procedure = ?", procedure); err != nil {
		return fmt.Errorf("forgetting %q: %w", procedure, err)
	}
	return nil
}

func decodeNames(blob []byte) ([]string, error) {
	names := []string{}
	if len(blob) == 0 {
		return names, nil
	}
	if err := msgpack.Unmarshal(blob, &names); err != nil {
		return nil, fmt.Errorf("decoding names: %w", err)
	}
	return names, nil
}
