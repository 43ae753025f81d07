// Package store persists the transcript tail and session metadata in
// SQLite, so an engine restart inside a running meeting resumes with the
// recent conversation instead of an empty transcript.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"caption-ingress-engine/internal/config"
	"caption-ingress-engine/internal/models"
)

const opTimeout = 5 * time.Second

// Store manages transcript persistence backed by SQLite.
type Store struct {
	db        *sql.DB
	path      string
	tailLimit int
}

// Open initializes or connects to the database and applies migrations.
func Open(cfg config.StoreConfig) (*Store, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: cfg.Path, tailLimit: cfg.TailLimit}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveTail replaces the persisted tail for the session. Only the most
// recent blocks up to the configured limit are kept.
func (s *Store) SaveTail(sessionID string, blocks []models.CommittedBlock) error {
	if s.tailLimit > 0 && len(blocks) > s.tailLimit {
		blocks = blocks[len(blocks)-s.tailLimit:]
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tail tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_blocks WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear tail: %w", err)
	}
	for i, block := range blocks {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO transcript_blocks (session_id, position, speaker, text, committed_at)
             VALUES (?, ?, ?, ?, ?)`,
			sessionID,
			i,
			block.Speaker,
			block.Text,
			block.CommittedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert tail block %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tail: %w", err)
	}
	return nil
}

// LoadTail returns the persisted tail for the session in commit order.
func (s *Store) LoadTail(sessionID string) ([]models.CommittedBlock, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT speaker, text, committed_at FROM transcript_blocks
         WHERE session_id = ? ORDER BY position`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tail: %w", err)
	}
	defer rows.Close()

	var blocks []models.CommittedBlock
	for rows.Next() {
		var speaker sql.NullString
		var text, committedRaw string
		if err := rows.Scan(&speaker, &text, &committedRaw); err != nil {
			return nil, fmt.Errorf("scan tail block: %w", err)
		}
		block := models.CommittedBlock{Speaker: speaker.String, Text: text}
		if committed, err := time.Parse(time.RFC3339Nano, committedRaw); err == nil {
			block.CommittedAt = committed
		}
		blocks = append(blocks, block)
	}
	return blocks, rows.Err()
}

// SaveSession upserts the session metadata and prunes everything belonging
// to other sessions. Only one session is ever live.
func (s *Store) SaveSession(meta models.SessionMeta) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO sessions (id, activated_at, source_hint, updated_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET source_hint = excluded.source_hint, updated_at = excluded.updated_at`,
		meta.ID,
		meta.ActivatedAt.UTC().Format(time.RFC3339Nano),
		meta.SourceHint,
		meta.UpdatedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id != ?`, meta.ID); err != nil {
		return fmt.Errorf("prune sessions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_blocks WHERE session_id != ?`, meta.ID); err != nil {
		return fmt.Errorf("prune stale tails: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

// LoadSession returns the persisted session, or nil when none exists.
func (s *Store) LoadSession() (*models.SessionMeta, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, activated_at, source_hint, updated_at FROM sessions
         ORDER BY updated_at DESC LIMIT 1`,
	)

	var meta models.SessionMeta
	var activatedRaw, updatedRaw string
	var hint sql.NullString
	err := row.Scan(&meta.ID, &activatedRaw, &hint, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	meta.SourceHint = hint.String
	if activated, err := time.Parse(time.RFC3339Nano, activatedRaw); err == nil {
		meta.ActivatedAt = activated
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		meta.UpdatedAt = updated
	}
	return &meta, nil
}
