package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/keyshift/internal/apperr"
)

// ChartRow represents a row in the charts table.
type ChartRow struct {
	Path      string
	Title     string
	Artist    string
	Version   string
	Keys      int
	Notes     int
	Holds     int
	Checksum  string
	UpdatedAt time.Time
}

// ConversionRow represents a row in the conversions table.
type ConversionRow struct {
	ID        string
	Kind      string
	Source    string
	Target    string
	Seed      int64
	Options   string
	CreatedAt time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string
	Title   string
	Snippet string
}

var sortColumns = map[string]string{
	"":           "path ASC",
	"path":       "path ASC",
	"title":      "title COLLATE NOCASE ASC, path ASC",
	"keys":       "keys ASC, path ASC",
	"notes":      "notes DESC, path ASC",
	"updated_at": "updated_at DESC, path ASC",
}

// UpsertChart inserts or replaces a chart and its FTS entry within a transaction.
func (db *DB) UpsertChart(c ChartRow) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO charts (path, title, artist, version, keys, notes, holds, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			artist     = excluded.artist,
			version    = excluded.version,
			keys       = excluded.keys,
			notes      = excluded.notes,
			holds      = excluded.holds,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, c.Path, c.Title, c.Artist, c.Version, c.Keys, c.Notes, c.Holds, c.Checksum, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert chart: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, c); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteChart removes a chart and its FTS entry. Conversion history is kept.
func (db *DB) DeleteChart(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDelete(tx, path); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM charts WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete chart: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a chart, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM charts WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

const chartColumns = `path, title, artist, version, keys, notes, holds, checksum, updated_at`

func scanChart(s interface{ Scan(...any) error }) (ChartRow, error) {
	var r ChartRow
	err := s.Scan(&r.Path, &r.Title, &r.Artist, &r.Version, &r.Keys, &r.Notes, &r.Holds, &r.Checksum, &r.UpdatedAt)
	return r, err
}

// GetChart returns the indexed row for path, or apperr.ErrNotFound.
func (db *DB) GetChart(path string) (*ChartRow, error) {
	r, err := scanChart(db.conn.QueryRow(`SELECT `+chartColumns+` FROM charts WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: chart %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get chart: %w", err)
	}
	return &r, nil
}

// ListCharts returns a page of charts and the total match count. keys > 0
// filters by key mode; sort is one of path, title, keys, notes, updated_at.
func (db *DB) ListCharts(limit, offset, keys int, sort string) ([]ChartRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	order, ok := sortColumns[sort]
	if !ok {
		return nil, 0, fmt.Errorf("index: %w: unknown sort %q", apperr.ErrInvalidOptions, sort)
	}

	where, args := "", []any{}
	if keys > 0 {
		where = ` WHERE keys = ?`
		args = append(args, keys)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM charts`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count charts: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+chartColumns+` FROM charts`+where+` ORDER BY `+order+` LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list charts: %w", err)
	}
	defer rows.Close()

	var out []ChartRow
	for rows.Next() {
		r, err := scanChart(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// AllPaths returns every indexed chart path.
func (db *DB) AllPaths() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT path FROM charts`)
	if err != nil {
		return nil, fmt.Errorf("index: all paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}

// AllChecksums returns path → checksum for every indexed chart.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM charts`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// RecordConversion appends an entry to the conversion history.
func (db *DB) RecordConversion(c ConversionRow) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Options == "" {
		c.Options = "{}"
	}
	_, err := db.conn.Exec(`
		INSERT INTO conversions (id, kind, source, target, seed, options, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Kind, c.Source, c.Target, c.Seed, c.Options, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("index: record conversion: %w", err)
	}
	return nil
}

// ListConversions returns the newest conversions first, optionally limited
// to one source chart.
func (db *DB) ListConversions(source string, limit int) ([]ConversionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, kind, source, target, seed, options, created_at FROM conversions`
	args := []any{}
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: list conversions: %w", err)
	}
	defer rows.Close()

	var out []ConversionRow
	for rows.Next() {
		var r ConversionRow
		if err := rows.Scan(&r.ID, &r.Kind, &r.Source, &r.Target, &r.Seed, &r.Options, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
