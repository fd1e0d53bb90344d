// Package store is the SQLite persistence layer: it fetches the next
// pending image asset, tracks its status through the job lifecycle, and
// writes back captions, tags, segments, embeddings, and the denormalized
// search index row.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Job is a single pending-or-stuck-processing image asset pulled off the queue.
type Job struct {
	AssetID      string
	ProjectID    string
	OriginalName string
	MimeType     string
	StoragePath  string
	StorageURL   string
	SHA256       string
}

// execQueryer is satisfied by both *sql.DB and *sql.Tx, letting the
// mutation helpers below run either standalone or inside a transaction.
type execQueryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store wraps a single SQLite connection. Callers open a fresh Store per
// poll iteration so a wedged connection never blocks the whole worker.
type Store struct {
	db *sql.DB
}

// Open connects to the SQLite database at path, enables foreign keys and
// a busy timeout, and ensures the worker-owned tables exist so the
// worker can run even before migrations from the rest of the system
// have created them.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS asset_embeddings (
			asset_id TEXT PRIMARY KEY REFERENCES assets(id) ON DELETE CASCADE,
			model TEXT NOT NULL,
			dim INTEGER NOT NULL,
			embedding BLOB,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS asset_segments (
			asset_id TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
			tag TEXT NOT NULL,
			svg TEXT,
			bbox_json TEXT,
			updated_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (asset_id, tag)
		)`,
		`CREATE INDEX IF NOT EXISTS asset_segments_tag_idx ON asset_segments(tag)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: ensure schema: %w", err)
		}
	}
	return nil
}

// FetchNextJob returns the oldest pending-or-processing image asset, or
// (nil, nil) when the queue is empty.
func (s *Store) FetchNextJob() (*Job, error) {
	row := s.db.QueryRow(`
		SELECT a.id, a.project_id, COALESCE(a.original_name, ''), a.mime_type, a.storage_path,
			COALESCE(a.storage_url, ''), COALESCE(a.sha256, '')
		FROM assets a
		JOIN asset_ai ai ON ai.asset_id = a.id
		WHERE ai.status IN ('pending', 'processing') AND a.mime_type LIKE 'image/%'
		ORDER BY ai.updated_at ASC
		LIMIT 1
	`)

	var j Job
	err := row.Scan(&j.AssetID, &j.ProjectID, &j.OriginalName, &j.MimeType, &j.StoragePath, &j.StorageURL, &j.SHA256)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: fetch next job: %w", err)
	}
	return &j, nil
}

// SetStatus transitions an asset's asset_ai.status field.
func (s *Store) SetStatus(assetID, status string) error {
	_, err := s.db.Exec(
		"UPDATE asset_ai SET status = ?, updated_at = datetime('now') WHERE asset_id = ?",
		status, assetID,
	)
	if err != nil {
		return fmt.Errorf("store: set status: %w", err)
	}
	return nil
}

// Tx is a single atomic commit: every call against it runs on the same
// underlying *sql.Tx, so either all of them land or none do.
type Tx struct {
	tx *sql.Tx
}

// Begin starts the single transaction that a job's final commit (done,
// pending, or failed) writes all of its rows through.
func (s *Store) Begin() (*Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("store: rollback: %w", err)
	}
	return nil
}

// WriteResults persists the final caption/tags/status/model_version for a job.
func (t *Tx) WriteResults(assetID, caption string, tags []string, status, modelVersion string) error {
	return writeResults(t.tx, assetID, caption, tags, status, modelVersion)
}

// UpdateSearchIndex rebuilds (delete + insert) the denormalized search
// row for an asset from its current caption/tags.
func (t *Tx) UpdateSearchIndex(assetID string) error {
	return updateSearchIndex(t.tx, assetID)
}

// UpsertSegmentRow stores the outline/bbox for a single detect-confirmed tag.
func (t *Tx) UpsertSegmentRow(assetID, tag string, svg, bboxJSON *string) error {
	return upsertSegmentRow(t.tx, assetID, tag, svg, bboxJSON)
}

// DeleteSegmentsNotIn removes any segment row for assetID whose tag is
// not in keepTags, clearing all of them when keepTags is empty.
func (t *Tx) DeleteSegmentsNotIn(assetID string, keepTags []string) error {
	return deleteSegmentsNotIn(t.tx, assetID, keepTags)
}

// UpsertEmbeddingRow stores the embedding vector for an asset's caption.
func (t *Tx) UpsertEmbeddingRow(assetID, model string, dim int, embeddingBlob []byte) error {
	return upsertEmbeddingRow(t.tx, assetID, model, dim, embeddingBlob)
}

// UpdateOriginalName persists the filename alias's derived display name
// onto assets.original_name, inside the same commit as the rest of the
// job's result write.
func (t *Tx) UpdateOriginalName(assetID, displayName string) error {
	return updateOriginalName(t.tx, assetID, displayName)
}

// The *Store convenience wrappers below run outside any transaction;
// they exist for callers (and tests) that only need a single write.

func (s *Store) WriteResults(assetID, caption string, tags []string, status, modelVersion string) error {
	return writeResults(s.db, assetID, caption, tags, status, modelVersion)
}

func (s *Store) UpdateSearchIndex(assetID string) error {
	return updateSearchIndex(s.db, assetID)
}

func (s *Store) UpsertSegmentRow(assetID, tag string, svg, bboxJSON *string) error {
	return upsertSegmentRow(s.db, assetID, tag, svg, bboxJSON)
}

func (s *Store) DeleteSegmentsNotIn(assetID string, keepTags []string) error {
	return deleteSegmentsNotIn(s.db, assetID, keepTags)
}

func (s *Store) UpsertEmbeddingRow(assetID, model string, dim int, embeddingBlob []byte) error {
	return upsertEmbeddingRow(s.db, assetID, model, dim, embeddingBlob)
}

func (s *Store) UpdateOriginalName(assetID, displayName string) error {
	return updateOriginalName(s.db, assetID, displayName)
}

func writeResults(q execQueryer, assetID, caption string, tags []string, status, modelVersion string) error {
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("store: marshal tags: %w", err)
	}
	_, err = q.Exec(`
		UPDATE asset_ai
		SET caption = ?, tags_json = ?, status = ?, model_version = ?, updated_at = datetime('now')
		WHERE asset_id = ?
	`, caption, string(tagsJSON), status, modelVersion, assetID)
	if err != nil {
		return fmt.Errorf("store: write results: %w", err)
	}
	return nil
}

func updateSearchIndex(q execQueryer, assetID string) error {
	row := q.QueryRow(`
		SELECT a.id, a.project_id, a.original_name, ai.caption, ai.tags_json
		FROM assets a
		LEFT JOIN asset_ai ai ON ai.asset_id = a.id
		WHERE a.id = ?
	`, assetID)

	var id, projectID, originalName string
	var caption, tagsJSON sql.NullString
	if err := row.Scan(&id, &projectID, &originalName, &caption, &tagsJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return fmt.Errorf("store: update search index: %w", err)
	}

	tagsText := ""
	if tagsJSON.Valid && tagsJSON.String != "" {
		var tags []string
		if err := json.Unmarshal([]byte(tagsJSON.String), &tags); err == nil {
			tagsText = strings.Join(tags, " ")
		}
	}

	if _, err := q.Exec("DELETE FROM asset_search WHERE asset_id = ?", assetID); err != nil {
		return fmt.Errorf("store: update search index: %w", err)
	}
	if _, err := q.Exec(
		"INSERT INTO asset_search (asset_id, project_id, original_name, caption, tags) VALUES (?, ?, ?, ?, ?)",
		id, projectID, originalName, caption.String, tagsText,
	); err != nil {
		return fmt.Errorf("store: update search index: %w", err)
	}
	return nil
}

func upsertSegmentRow(q execQueryer, assetID, tag string, svg, bboxJSON *string) error {
	_, err := q.Exec(`
		INSERT INTO asset_segments (asset_id, tag, svg, bbox_json, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(asset_id, tag) DO UPDATE SET
			svg=excluded.svg,
			bbox_json=excluded.bbox_json,
			updated_at=excluded.updated_at
	`, assetID, tag, svg, bboxJSON)
	if err != nil {
		return fmt.Errorf("store: upsert segment row: %w", err)
	}
	return nil
}

func deleteSegmentsNotIn(q execQueryer, assetID string, keepTags []string) error {
	if len(keepTags) == 0 {
		_, err := q.Exec("DELETE FROM asset_segments WHERE asset_id = ?", assetID)
		if err != nil {
			return fmt.Errorf("store: delete segments: %w", err)
		}
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keepTags)), ",")
	args := make([]any, 0, len(keepTags)+1)
	args = append(args, assetID)
	for _, t := range keepTags {
		args = append(args, t)
	}
	query := fmt.Sprintf("DELETE FROM asset_segments WHERE asset_id = ? AND tag NOT IN (%s)", placeholders)
	if _, err := q.Exec(query, args...); err != nil {
		return fmt.Errorf("store: delete segments: %w", err)
	}
	return nil
}

func updateOriginalName(q execQueryer, assetID, displayName string) error {
	_, err := q.Exec("UPDATE assets SET original_name = ? WHERE id = ?", displayName, assetID)
	if err != nil {
		return fmt.Errorf("store: update original name: %w", err)
	}
	return nil
}

func upsertEmbeddingRow(q execQueryer, assetID, model string, dim int, embeddingBlob []byte) error {
	_, err := q.Exec(`
		INSERT INTO asset_embeddings (asset_id, model, dim, embedding, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(asset_id) DO UPDATE SET
			model=excluded.model,
			dim=excluded.dim,
			embedding=excluded.embedding,
			updated_at=excluded.updated_at
	`, assetID, model, dim, embeddingBlob)
	if err != nil {
		return fmt.Errorf("store: upsert embedding row: %w", err)
	}
	return nil
}
