// Package storage persists hunt runs and their movers in SQLite so past
// results survive the process and can be served later.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"asterhunt/internal/tracker"
)

// Store wraps SQLite-backed persistence for runs and movers.
type Store struct {
	DB *sql.DB
}

// New opens (or creates) the database at path and ensures schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
            id TEXT PRIMARY KEY,
            started_at TIMESTAMP NOT NULL,
            finished_at TIMESTAMP,
            input_path TEXT,
            frame_count INTEGER,
            mover_count INTEGER,
            config_json TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS movers (
            run_id TEXT NOT NULL,
            seq INTEGER NOT NULL,
            motion REAL,
            pa_rad REAL,
            err_mid REAL,
            score REAL,
            status BOOLEAN,
            objects_json TEXT,
            PRIMARY KEY (run_id, seq)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_movers_run ON movers(run_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// RunRecord captures one hunt.
type RunRecord struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	InputPath  string     `json:"input_path"`
	FrameCount int        `json:"frame_count"`
	MoverCount int        `json:"mover_count"`
}

// BeginRun records the start of a hunt and returns its run ID.
func (s *Store) BeginRun(inputPath string, frameCount int, cfg any) (string, error) {
	id := uuid.NewString()
	cfgJSON, _ := json.Marshal(cfg)
	_, err := s.DB.Exec(
		`INSERT INTO runs (id, started_at, input_path, frame_count, mover_count, config_json)
         VALUES (?, ?, ?, ?, 0, ?)`,
		id, time.Now().UTC(), inputPath, frameCount, string(cfgJSON))
	if err != nil {
		return "", fmt.Errorf("record run start: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run complete and stores its movers.
func (s *Store) FinishRun(runID string, movers []*tracker.Mover) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for seq, m := range movers {
		objs, _ := json.Marshal(m.Objects)
		if _, err := tx.Exec(
			`INSERT INTO movers (run_id, seq, motion, pa_rad, err_mid, score, status, objects_json)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, seq, m.Motion, m.PA, m.ErrMid, m.Score, m.Status, string(objs)); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(
		`UPDATE runs SET finished_at = ?, mover_count = ? WHERE id = ?`,
		time.Now().UTC(), len(movers), runID); err != nil {
		return err
	}
	return tx.Commit()
}

// Runs lists recorded runs, newest first.
func (s *Store) Runs(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.Query(
		`SELECT id, started_at, finished_at, input_path, frame_count, mover_count
         FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.InputPath, &r.FrameCount, &r.MoverCount); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MoverRecord is a persisted mover row.
type MoverRecord struct {
	RunID   string           `json:"run_id"`
	Seq     int              `json:"seq"`
	Motion  float32          `json:"motion"`
	PARad   float32          `json:"pa_rad"`
	ErrMid  float32          `json:"err_mid"`
	Score   float32          `json:"score"`
	Status  bool             `json:"status"`
	Objects []tracker.Object `json:"objects"`
}

// Movers returns the movers of a run in stored (score) order.
func (s *Store) Movers(runID string) ([]MoverRecord, error) {
	rows, err := s.DB.Query(
		`SELECT run_id, seq, motion, pa_rad, err_mid, score, status, objects_json
         FROM movers WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MoverRecord
	for rows.Next() {
		var m MoverRecord
		var objs string
		if err := rows.Scan(&m.RunID, &m.Seq, &m.Motion, &m.PARad, &m.ErrMid, &m.Score, &m.Status, &objs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(objs), &m.Objects); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
