package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ameet2r/workout/internal/models"

	_ "modernc.org/sqlite"
)

const preferredAddressKey = "sensor:preferred_address"

// ExercisesKey and ReadingsKey name the two entries kept per session.
func ExercisesKey(sessionID string) string { return "session:" + sessionID + ":exercises" }
func ReadingsKey(sessionID string) string  { return "session:" + sessionID + ":heart_rate" }

// Cache is a durable key-value mirror of in-progress session state. Writes
// are best-effort: failures are logged and never reach the caller, so the
// in-memory session stays authoritative when the disk misbehaves.
type Cache struct {
	db     *sql.DB
	path   string
	logger *log.Logger
}

// Open opens (or creates) the SQLite cache file at path.
func Open(path string, logger *log.Logger) (*Cache, error) {
	if logger == nil {
		panic("logger is nil")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating kv table: %w", err)
	}

	// One row per reading, so a reading costs one insert however long the
	// session runs.
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS heart_rate (
		session_id TEXT    NOT NULL,
		seq        INTEGER NOT NULL,
		value      BLOB    NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (session_id, seq)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating heart_rate table: %w", err)
	}

	logger.Printf("Cache: opened %s", path)
	return &Cache{db: db, path: path, logger: logger}, nil
}

func (c *Cache) Path() string {
	return c.path
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Save mirrors the session's exercise list. Called after every set mutation.
func (c *Cache) Save(sessionID string, exercises []models.SessionExercise) {
	c.put(ExercisesKey(sessionID), exercises)
}

// Load returns the cached exercise list, or ok=false when the entry is
// missing or unreadable.
func (c *Cache) Load(sessionID string) ([]models.SessionExercise, bool) {
	var exercises []models.SessionExercise
	if !c.get(ExercisesKey(sessionID), &exercises) {
		return nil, false
	}
	return exercises, true
}

// SaveReadings replaces the session's cached heart-rate stream.
func (c *Cache) SaveReadings(sessionID string, readings []models.HeartRateReading) {
	err := c.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM heart_rate WHERE session_id = ?`, sessionID); err != nil {
			return err
		}
		for i, r := range readings {
			if err := insertReading(tx, sessionID, i, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Printf("Cache: write %s failed: %v", ReadingsKey(sessionID), err)
	}
}

// AppendReading stores reading number seq of the session's stream. Called
// after every accepted reading; rewriting the same seq is harmless.
func (c *Cache) AppendReading(sessionID string, seq int, reading models.HeartRateReading) {
	if err := insertReading(c.db, sessionID, seq, reading); err != nil {
		c.logger.Printf("Cache: write %s #%d failed: %v", ReadingsKey(sessionID), seq, err)
	}
}

// LoadReadings returns the cached stream in arrival order, or ok=false when
// nothing is cached. Unreadable rows are skipped and the stream renumbered,
// so the next AppendReading at len(readings) lands after the last one.
func (c *Cache) LoadReadings(sessionID string) ([]models.HeartRateReading, bool) {
	rows, err := c.db.Query(`SELECT seq, value FROM heart_rate WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		c.logger.Printf("Cache: read %s failed: %v", ReadingsKey(sessionID), err)
		return nil, false
	}
	defer rows.Close()

	var readings []models.HeartRateReading
	skipped := 0
	for rows.Next() {
		var seq int
		var raw []byte
		if err := rows.Scan(&seq, &raw); err != nil {
			c.logger.Printf("Cache: read %s failed: %v", ReadingsKey(sessionID), err)
			return nil, false
		}
		var r models.HeartRateReading
		if err := json.Unmarshal(raw, &r); err != nil {
			c.logger.Printf("Cache: %s #%d is unreadable, ignoring: %v", ReadingsKey(sessionID), seq, err)
			skipped++
			continue
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		c.logger.Printf("Cache: read %s failed: %v", ReadingsKey(sessionID), err)
		return nil, false
	}
	rows.Close()
	if skipped > 0 {
		c.SaveReadings(sessionID, readings)
	}
	return readings, len(readings) > 0
}

// Clear removes everything cached for the session.
func (c *Cache) Clear(sessionID string) {
	err := c.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM kv WHERE key IN (?, ?)`, ExercisesKey(sessionID), ReadingsKey(sessionID)); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM heart_rate WHERE session_id = ?`, sessionID)
		return err
	})
	if err != nil {
		c.logger.Printf("Cache: clear %s failed: %v", sessionID, err)
		return
	}
	c.logger.Printf("Cache: cleared session %s", sessionID)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertReading(db execer, sessionID string, seq int, r models.HeartRateReading) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = db.Exec(
		`INSERT OR REPLACE INTO heart_rate (session_id, seq, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		sessionID, seq, raw,
	)
	return err
}

func (c *Cache) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Entry describes one stored key for listing. A session's heart-rate rows
// are listed as a single entry under ReadingsKey.
type Entry struct {
	Key       string
	Size      int
	UpdatedAt string
}

// Keys lists stored entries whose key starts with prefix.
func (c *Cache) Keys(prefix string) ([]Entry, error) {
	rows, err := c.db.Query(
		`SELECT key, length(value), updated_at FROM kv WHERE substr(key, 1, ?) = ?
		UNION ALL
		SELECT 'session:' || session_id || ':heart_rate', SUM(length(value)), MAX(updated_at)
		FROM heart_rate GROUP BY session_id
		HAVING substr('session:' || session_id || ':heart_rate', 1, ?) = ?
		ORDER BY 1`,
		len(prefix), prefix, len(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("listing cache keys: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var updated sql.NullString
		if err := rows.Scan(&e.Key, &e.Size, &updated); err != nil {
			return nil, fmt.Errorf("scanning cache key: %w", err)
		}
		e.UpdatedAt = updated.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SessionIDs returns the ids of sessions that have any cached entry.
func (c *Cache) SessionIDs() ([]string, error) {
	entries, err := c.Keys("session:")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var ids []string
	for _, e := range entries {
		parts := strings.Split(e.Key, ":")
		if len(parts) != 3 || seen[parts[1]] {
			continue
		}
		seen[parts[1]] = true
		ids = append(ids, parts[1])
	}
	return ids, nil
}

func (c *Cache) PreferredAddress() string {
	var addr string
	if !c.get(preferredAddressKey, &addr) {
		return ""
	}
	return addr
}

func (c *Cache) SetPreferredAddress(address string) {
	c.logger.Printf("Cache: preferred sensor -> %q", address)
	c.put(preferredAddressKey, address)
}

func (c *Cache) put(key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Printf("Cache: marshal %s failed: %v", key, err)
		return
	}
	_, err = c.db.Exec(
		`INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
		key, raw,
	)
	if err != nil {
		c.logger.Printf("Cache: write %s failed: %v", key, err)
	}
}

func (c *Cache) get(key string, v any) bool {
	var raw []byte
	err := c.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		c.logger.Printf("Cache: read %s failed: %v", key, err)
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		c.logger.Printf("Cache: %s is unreadable, ignoring: %v", key, err)
		return false
	}
	return true
}
