// Package store is the SQLite-backed persistence layer: tasks, watchers,
// app settings and the translated-files history the Skip Oracle consults.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mimelyc/subtrans/internal/task"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore implements task.Store plus the watcher, settings and
// translation-history tables the rest of the system needs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) the SQLite database at path
// and applies any pending migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename
// (e.g. "0001_init.sql" -> 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- task.Store ---

func (s *SQLiteStore) LoadTasks(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_path, file_name, status, progress, source_language, target_language,
		       llm_provider, subtitle_track, force_override, error_message,
		       created_at, updated_at, completed_at
		FROM tasks
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertTask(ctx context.Context, t *task.Task) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (
			file_path, file_name, status, progress, source_language, target_language,
			llm_provider, subtitle_track, force_override, error_message,
			created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.FilePath, t.FileName, string(t.Status), t.Progress, nullString(t.SourceLanguage), t.TargetLanguage,
		t.LLMProvider, nullIntPtr(t.SubtitleTrack), boolToInt(t.ForceOverride), nullString(t.ErrorMessage),
		t.CreatedAt, t.UpdatedAt, nullTimePtr(t.CompletedAt),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, t *task.Task) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			file_path=?, file_name=?, status=?, progress=?, source_language=?, target_language=?,
			llm_provider=?, subtitle_track=?, force_override=?, error_message=?,
			updated_at=?, completed_at=?
		WHERE id=?`,
		t.FilePath, t.FileName, string(t.Status), t.Progress, nullString(t.SourceLanguage), t.TargetLanguage,
		t.LLMProvider, nullIntPtr(t.SubtitleTrack), boolToInt(t.ForceOverride), nullString(t.ErrorMessage),
		t.UpdatedAt, nullTimePtr(t.CompletedAt), t.ID,
	)
	return err
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(rs rowScanner) (*task.Task, error) {
	var t task.Task
	var status string
	var sourceLanguage sql.NullString
	var subtitleTrack sql.NullInt64
	var errorMessage sql.NullString
	var completedAt sql.NullTime

	if err := rs.Scan(
		&t.ID, &t.FilePath, &t.FileName, &status, &t.Progress, &sourceLanguage, &t.TargetLanguage,
		&t.LLMProvider, &subtitleTrack, &t.ForceOverride, &errorMessage,
		&t.CreatedAt, &t.UpdatedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	t.Status = task.Status(status)
	if sourceLanguage.Valid {
		t.SourceLanguage = sourceLanguage.String
	}
	if subtitleTrack.Valid {
		v := int(subtitleTrack.Int64)
		t.SubtitleTrack = &v
	}
	if errorMessage.Valid {
		t.ErrorMessage = errorMessage.String
	}
	if completedAt.Valid {
		v := completedAt.Time
		t.CompletedAt = &v
	}
	return &t, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIntPtr(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
