package store

import (
	"context"
	"database/sql"
	"time"
)

// WatcherRecord is the persisted shape of a directory watcher. The
// internal/watcher package owns the live Watcher type and converts to
// and from this record; keeping the conversion at that boundary avoids
// a dependency cycle between the two packages.
type WatcherRecord struct {
	ID               int64
	Path             string
	Enabled          bool
	TargetLanguage   string
	LLMProvider      string
	ScanIntervalCron string
	CreatedAt        time.Time
}

func (s *SQLiteStore) LoadWatchers(ctx context.Context) ([]*WatcherRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, enabled, target_language, llm_provider, scan_interval_cron, created_at
		FROM watchers
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*WatcherRecord
	for rows.Next() {
		var w WatcherRecord
		var cron sql.NullString
		if err := rows.Scan(&w.ID, &w.Path, &w.Enabled, &w.TargetLanguage, &w.LLMProvider, &cron, &w.CreatedAt); err != nil {
			return nil, err
		}
		if cron.Valid {
			w.ScanIntervalCron = cron.String
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertWatcher(ctx context.Context, w *WatcherRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO watchers (path, enabled, target_language, llm_provider, scan_interval_cron, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.Path, boolToInt(w.Enabled), w.TargetLanguage, w.LLMProvider, nullString(w.ScanIntervalCron), w.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) UpdateWatcher(ctx context.Context, w *WatcherRecord) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE watchers SET path=?, enabled=?, target_language=?, llm_provider=?, scan_interval_cron=?
		WHERE id=?`,
		w.Path, boolToInt(w.Enabled), w.TargetLanguage, w.LLMProvider, nullString(w.ScanIntervalCron), w.ID,
	)
	return err
}

func (s *SQLiteStore) DeleteWatcher(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM watchers WHERE id = ?`, id)
	return err
}

// GetSetting/SetSetting back the app_settings key/value table: small
// out-of-band flags that don't belong in the versioned runtime Settings
// (internal/config.RuntimeSettingsStore, which keeps them in its own
// JSON file rather than in this table), e.g. onboarding state.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

// RecordTranslation marks (filePath, targetLanguage) as translated, for
// the Skip Oracle's history check and for S5/S6-style re-run idempotency.
func (s *SQLiteStore) RecordTranslation(ctx context.Context, filePath, targetLanguage, outputPath string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO translated_files (file_path, target_language, output_path, translated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(file_path, target_language) DO UPDATE SET
			output_path=excluded.output_path,
			translated_at=excluded.translated_at`,
		filePath, targetLanguage, outputPath, time.Now(),
	)
	return err
}

// HasTranslation reports whether filePath was already translated into
// targetLanguage, and the output path recorded for it.
func (s *SQLiteStore) HasTranslation(ctx context.Context, filePath, targetLanguage string) (string, bool, error) {
	var outputPath sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT output_path FROM translated_files WHERE file_path = ? AND target_language = ?`,
		filePath, targetLanguage,
	).Scan(&outputPath)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return outputPath.String, true, nil
}
