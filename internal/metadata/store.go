// Package metadata is the sole owner of the durable file-metadata
// schema: which files have been indexed, when, from which source, and
// running indexing/search statistics. It is backed by a single SQLite
// database (modernc.org/sqlite, no cgo) opened in WAL mode with one
// writer connection, matching the concurrency model the rest of the
// system assumes.
package metadata

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	cerrors "github.com/cerplabs/hybridsearch/internal/errors"
)

// FileMetadata is one row of the file_metadata table.
type FileMetadata struct {
	Path         string
	SourceRef    string
	ContentHash  string
	SizeBytes    int64
	ModTimeUnix  int64
	IndexedKinds []string
	CreatedAt    int64
	UpdatedAt    int64
}

// SourceStats summarizes the most recent indexing run for one
// (source, kind) pair.
type SourceStats struct {
	SourceRef           string
	Kind                string
	LastIndexedAtUnix   int64
	LastDurationSeconds float64
	LastFileCount       int
	LastByteCount       int64
	TotalRuns           int
	LastRunWasInitial   bool
}

// Stats is the aggregate view returned by Stats().
type Stats struct {
	TotalFiles       int
	FilesBySource    map[string]int
	AvgSearchLatency float64
	SearchCount      int
}

// Store is the synchronous, single-writer metadata store.
type Store struct {
	mu sync.RWMutex
	db *sql.DB
}

// Open creates (if needed) and opens the SQLite database at path,
// running any pending schema migrations before returning.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create metadata directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open metadata database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, cerrors.New(cerrors.CodeMigrationFailed, "schema migration failed", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// GetLastIndexed returns the stored metadata for path, or
// CodeFileNotFound if no row exists.
func (s *Store) GetLastIndexed(path string) (FileMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT path, source_ref, content_hash, size_bytes, mtime_unix, indexed_kinds, created_at, updated_at
		FROM file_metadata WHERE path = ?`, path)

	fm, err := scanFileMetadata(row)
	if err == sql.ErrNoRows {
		return FileMetadata{}, cerrors.New(cerrors.CodeFileNotFound, fmt.Sprintf("no metadata for path: %s", path), nil)
	}
	if err != nil {
		return FileMetadata{}, fmt.Errorf("query file metadata: %w", err)
	}
	return fm, nil
}

// Upsert inserts or updates a single file's metadata.
func (s *Store) Upsert(fm FileMetadata) error {
	return s.UpsertBatch([]FileMetadata{fm})
}

// UpsertBatch inserts or updates many files' metadata in one
// transaction, preserving created_at on update and raising updated_at
// to created_at when it would otherwise be lower.
func (s *Store) UpsertBatch(files []FileMetadata) error {
	if len(files) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO file_metadata (path, source_ref, content_hash, size_bytes, mtime_unix, indexed_kinds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			source_ref = excluded.source_ref,
			content_hash = excluded.content_hash,
			size_bytes = excluded.size_bytes,
			mtime_unix = excluded.mtime_unix,
			indexed_kinds = excluded.indexed_kinds,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, fm := range files {
		if fm.UpdatedAt < fm.CreatedAt {
			fm.UpdatedAt = fm.CreatedAt
		}
		if _, err := stmt.Exec(fm.Path, fm.SourceRef, nullableString(fm.ContentHash), fm.SizeBytes, fm.ModTimeUnix, joinKinds(fm.IndexedKinds), fm.CreatedAt, fm.UpdatedAt); err != nil {
			return fmt.Errorf("upsert %s: %w", fm.Path, err)
		}
	}

	return tx.Commit()
}

// Remove deletes a single file's metadata row.
func (s *Store) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM file_metadata WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// RemoveBySource deletes every file metadata row for sourceRef and
// returns the number of rows removed.
func (s *Store) RemoveBySource(sourceRef string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM file_metadata WHERE source_ref = ?`, sourceRef)
	if err != nil {
		return 0, fmt.Errorf("remove by source %s: %w", sourceRef, err)
	}
	return result.RowsAffected()
}

// CountBySource returns the number of indexed files per source.
func (s *Store) CountBySource() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT source_ref, COUNT(*) FROM file_metadata GROUP BY source_ref`)
	if err != nil {
		return nil, fmt.Errorf("count by source: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var ref string
		var count int
		if err := rows.Scan(&ref, &count); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[ref] = count
	}
	return counts, rows.Err()
}

// ListIndexed returns every indexed file, optionally filtered to a
// single source.
func (s *Store) ListIndexed(sourceRef string) ([]FileMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT path, source_ref, content_hash, size_bytes, mtime_unix, indexed_kinds, created_at, updated_at FROM file_metadata`
	args := []any{}
	if sourceRef != "" {
		query += ` WHERE source_ref = ?`
		args = append(args, sourceRef)
	}
	query += ` ORDER BY path`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list indexed: %w", err)
	}
	defer rows.Close()

	var out []FileMetadata
	for rows.Next() {
		fm, err := scanFileMetadataRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file metadata: %w", err)
		}
		out = append(out, fm)
	}
	return out, rows.Err()
}

// Stats returns an aggregate view over the whole store.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM file_metadata`).Scan(&total); err != nil {
		return Stats{}, fmt.Errorf("count total files: %w", err)
	}

	bySource, err := s.countBySourceLocked()
	if err != nil {
		return Stats{}, err
	}

	var avgLatency sql.NullFloat64
	var searchCount int
	if err := s.db.QueryRow(`SELECT AVG(latency_ms), COUNT(*) FROM search_metrics`).Scan(&avgLatency, &searchCount); err != nil {
		return Stats{}, fmt.Errorf("aggregate search metrics: %w", err)
	}

	return Stats{
		TotalFiles:       total,
		FilesBySource:    bySource,
		AvgSearchLatency: avgLatency.Float64,
		SearchCount:      searchCount,
	}, nil
}

func (s *Store) countBySourceLocked() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT source_ref, COUNT(*) FROM file_metadata GROUP BY source_ref`)
	if err != nil {
		return nil, fmt.Errorf("count by source: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var ref string
		var count int
		if err := rows.Scan(&ref, &count); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[ref] = count
	}
	return counts, rows.Err()
}

// RecordSourceIndexing upserts the rolling indexing statistics for a
// (source, kind) pair after a run completes.
func (s *Store) RecordSourceIndexing(sourceRef, kind string, durationSeconds float64, fileCount int, byteCount int64, isInitial bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO source_stats (source_ref, kind, last_indexed_at, last_duration_seconds, last_file_count, last_byte_count, total_runs, last_run_was_initial)
		VALUES (?, ?, unixepoch(), ?, ?, ?, 1, ?)
		ON CONFLICT(source_ref, kind) DO UPDATE SET
			last_indexed_at = unixepoch(),
			last_duration_seconds = excluded.last_duration_seconds,
			last_file_count = excluded.last_file_count,
			last_byte_count = excluded.last_byte_count,
			total_runs = total_runs + 1,
			last_run_was_initial = excluded.last_run_was_initial
	`, sourceRef, kind, durationSeconds, fileCount, byteCount, boolToInt(isInitial))
	if err != nil {
		return fmt.Errorf("record source indexing: %w", err)
	}
	return nil
}

// GetSourceStats returns the recorded stats rows for a source,
// optionally filtered to one kind.
func (s *Store) GetSourceStats(sourceRef, kind string) ([]SourceStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT source_ref, kind, last_indexed_at, last_duration_seconds, last_file_count, last_byte_count, total_runs, last_run_was_initial
		FROM source_stats WHERE source_ref = ?`
	args := []any{sourceRef}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get source stats: %w", err)
	}
	defer rows.Close()

	var out []SourceStats
	for rows.Next() {
		var st SourceStats
		var lastIndexedAt sql.NullInt64
		var lastInitial int
		if err := rows.Scan(&st.SourceRef, &st.Kind, &lastIndexedAt, &st.LastDurationSeconds, &st.LastFileCount, &st.LastByteCount, &st.TotalRuns, &lastInitial); err != nil {
			return nil, fmt.Errorf("scan source stats: %w", err)
		}
		st.LastIndexedAtUnix = lastIndexedAt.Int64
		st.LastRunWasInitial = lastInitial != 0
		out = append(out, st)
	}
	return out, rows.Err()
}

// RecordSearch appends one search-latency sample.
func (s *Store) RecordSearch(ms float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO search_metrics (latency_ms, recorded_at) VALUES (?, unixepoch())`, ms)
	if err != nil {
		return fmt.Errorf("record search: %w", err)
	}
	return nil
}

// GetLastIndexTime returns the stored value of a system_metadata key
// holding a unix timestamp, or 0 if unset.
func (s *Store) GetLastIndexTime(key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM system_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get last index time: %w", err)
	}

	var ts int64
	_, err = fmt.Sscanf(value, "%d", &ts)
	if err != nil {
		return 0, fmt.Errorf("parse last index time: %w", err)
	}
	return ts, nil
}

// SetLastIndexTime stores a unix timestamp under a system_metadata key.
func (s *Store) SetLastIndexTime(key string, unixTime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO system_metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, fmt.Sprintf("%d", unixTime))
	if err != nil {
		return fmt.Errorf("set last index time: %w", err)
	}
	return nil
}

// GetMetadataValue returns the raw string stored under a
// system_metadata key, or "" if unset.
func (s *Store) GetMetadataValue(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM system_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata value: %w", err)
	}
	return value, nil
}

// SetMetadataValue stores an arbitrary string under a system_metadata
// key, overwriting any existing value.
func (s *Store) SetMetadataValue(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO system_metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set metadata value: %w", err)
	}
	return nil
}

// ClearSystemMetadata deletes every row from system_metadata.
func (s *Store) ClearSystemMetadata() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM system_metadata`)
	if err != nil {
		return fmt.Errorf("clear system metadata: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileMetadata(row *sql.Row) (FileMetadata, error) {
	return scanFileMetadataRows(row)
}

func scanFileMetadataRows(row rowScanner) (FileMetadata, error) {
	var fm FileMetadata
	var contentHash sql.NullString
	var kinds string
	if err := row.Scan(&fm.Path, &fm.SourceRef, &contentHash, &fm.SizeBytes, &fm.ModTimeUnix, &kinds, &fm.CreatedAt, &fm.UpdatedAt); err != nil {
		return FileMetadata{}, err
	}
	fm.ContentHash = contentHash.String
	fm.IndexedKinds = splitKinds(kinds)
	return fm, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func joinKinds(kinds []string) string {
	out := ""
	for i, k := range kinds {
		if i > 0 {
			out += ","
		}
		out += k
	}
	return out
}

func splitKinds(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
