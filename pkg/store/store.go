/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: store.go
Description: SQLite persistence for scan results. Keeps a catalogue of scanned samples keyed
by SHA-256, a deduplicated table of readable strings with their scores, the addresses at
which each string occurs in each sample, and a record of every scan execution.
*/

package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kleascm/mala-strings/pkg/pipeline"
	"github.com/kleascm/mala-strings/pkg/sample"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store manages scan persistence backed by SQLite
type Store struct {
	db   *sql.DB
	path string
}

// Execution is one recorded scan
type Execution struct {
	ID         int64
	UUID       string
	Cmdline    string
	StartedAt  time.Time
	FinishedAt time.Time
	MinScore   int
	FileID     int64
	BytesRead  int64
	Candidates int64
	Emitted    int64
}

// Open creates or connects to the database at path and applies migrations
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Path returns the database file location
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) applyMigrations(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")

		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

// UpsertFile returns the id of the sample with fp's SHA-256, inserting it if
// unknown. known reports whether the sample was already catalogued.
func (s *Store) UpsertFile(ctx context.Context, fp sample.Fingerprint) (id int64, known bool, err error) {
	err = s.db.QueryRowContext(ctx, "SELECT id FROM files WHERE sha256 = ? LIMIT 1", fp.SHA256).Scan(&id)
	switch {
	case err == nil:
		return id, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, false, fmt.Errorf("lookup file by sha256: %w", err)
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO files (md5, sha1, sha256, basename, path, fsize) VALUES (?, ?, ?, ?, ?, ?)`,
		fp.MD5, fp.SHA1, fp.SHA256, fp.Basename, fp.Path, fp.Size,
	)
	if err != nil {
		return 0, false, fmt.Errorf("insert file: %w", err)
	}

	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("last insert id: %w", err)
	}
	return id, false, nil
}

// FileBySHA256 returns the fingerprint stored for sha256, or nil if unknown
func (s *Store) FileBySHA256(ctx context.Context, sha256 string) (*sample.Fingerprint, int64, error) {
	var (
		id int64
		fp sample.Fingerprint
	)
	err := s.db.QueryRowContext(
		ctx,
		"SELECT id, md5, sha1, sha256, basename, path, fsize FROM files WHERE sha256 = ?",
		sha256,
	).Scan(&id, &fp.MD5, &fp.SHA1, &fp.SHA256, &fp.Basename, &fp.Path, &fp.Size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("query file: %w", err)
	}
	return &fp, id, nil
}

// StartExecution records the start of a scan under a fresh UUID
func (s *Store) StartExecution(ctx context.Context, cmdline string, minScore int) (*Execution, error) {
	exec := &Execution{
		UUID:      uuid.NewString(),
		Cmdline:   cmdline,
		StartedAt: time.Now().UTC(),
		MinScore:  minScore,
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO executions (exec_uuid, cmdline, started_at, min_score) VALUES (?, ?, ?, ?)`,
		exec.UUID, exec.Cmdline, exec.StartedAt.Format(time.RFC3339Nano), exec.MinScore,
	)
	if err != nil {
		return nil, fmt.Errorf("insert execution: %w", err)
	}

	exec.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return exec, nil
}

// FinishExecution stores the outcome of a scan
func (s *Store) FinishExecution(ctx context.Context, exec *Execution, fileID int64, stats *pipeline.Stats) error {
	if exec == nil {
		return errors.New("finish execution: nil execution")
	}

	exec.FinishedAt = time.Now().UTC()
	exec.FileID = fileID
	if stats != nil {
		exec.BytesRead = stats.BytesRead
		exec.Candidates = stats.Candidates
		exec.Emitted = stats.Emitted
	}

	_, err := s.db.ExecContext(
		ctx,
		`UPDATE executions
            SET finished_at = ?, file_id = ?, bytes_read = ?, candidates = ?, emitted = ?
          WHERE id = ?`,
		exec.FinishedAt.Format(time.RFC3339Nano),
		nullableID(fileID),
		exec.BytesRead,
		exec.Candidates,
		exec.Emitted,
		exec.ID,
	)
	if err != nil {
		return fmt.Errorf("update execution %s: %w", exec.UUID, err)
	}
	return nil
}

// ExecutionByUUID loads an execution record
func (s *Store) ExecutionByUUID(ctx context.Context, id string) (*Execution, error) {
	var (
		exec       Execution
		startedAt  string
		finishedAt sql.NullString
		fileID     sql.NullInt64
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT id, exec_uuid, cmdline, started_at, finished_at, min_score, file_id, bytes_read, candidates, emitted
           FROM executions WHERE exec_uuid = ?`,
		id,
	).Scan(&exec.ID, &exec.UUID, &exec.Cmdline, &startedAt, &finishedAt, &exec.MinScore, &fileID,
		&exec.BytesRead, &exec.Candidates, &exec.Emitted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query execution: %w", err)
	}

	exec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if finishedAt.Valid {
		exec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt.String)
	}
	if fileID.Valid {
		exec.FileID = fileID.Int64
	}
	return &exec, nil
}

// StringsForFile returns the stored strings of a sample ordered by address
func (s *Store) StringsForFile(ctx context.Context, fileID int64) ([]pipeline.ScoredString, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT si.address, st.value, st.score
           FROM string_instances si
           JOIN strings st ON st.id = si.string_id
          WHERE si.file_id = ?
          ORDER BY si.address`,
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("query strings: %w", err)
	}
	defer rows.Close()

	var out []pipeline.ScoredString
	for rows.Next() {
		var record pipeline.ScoredString
		if err := rows.Scan(&record.Position, &record.String, &record.Score); err != nil {
			return nil, fmt.Errorf("scan string row: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strings: %w", err)
	}
	return out, nil
}

// CountStrings returns the number of distinct stored strings
func (s *Store) CountStrings(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM strings").Scan(&count); err != nil {
		return 0, fmt.Errorf("count strings: %w", err)
	}
	return count, nil
}

func nullableID(id int64) any {
	if id <= 0 {
		return nil
	}
	return id
}
