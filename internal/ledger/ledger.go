// Package ledger records pipeline runs in SQLite: which inputs each run
// touched and what state they reached, and the per-epoch history of
// training runs. The schema is managed by embedded golang-migrate
// migrations.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/landcover/internal/timeutil"
)

// Run kinds.
const (
	KindPreprocess = "preprocess"
	KindTrain      = "train"
	KindPredict    = "predict"
)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Run is one invocation of a pipeline stage.
type Run struct {
	RunID      string `json:"run_id"`
	Kind       string `json:"kind"`
	Experiment string `json:"experiment"`
	Status     string `json:"status"`
	ConfigJSON string `json:"config_json,omitempty"`
	StartedNs  int64  `json:"started_ns"`
	FinishedNs *int64 `json:"finished_ns,omitempty"`
}

// Transition is one state change of one input within a run.
type Transition struct {
	RunID      string `json:"run_id"`
	InputPath  string `json:"input_path"`
	State      string `json:"state"`
	Detail     string `json:"detail,omitempty"`
	Tiles      int    `json:"tiles"`
	RecordedNs int64  `json:"recorded_ns"`
}

// Epoch is one row of training history.
type Epoch struct {
	RunID          string  `json:"run_id"`
	Epoch          int     `json:"epoch"`
	TrainLoss      float64 `json:"train_loss"`
	TrainAcc       float64 `json:"train_acc"`
	ValLoss        float64 `json:"val_loss"`
	ValAcc         float64 `json:"val_acc"`
	LearningRate   float64 `json:"learning_rate"`
	Improved       bool    `json:"improved"`
	CheckpointPath string  `json:"checkpoint_path,omitempty"`
	RecordedNs     int64   `json:"recorded_ns"`
}

// Store persists runs, transitions and epochs.
type Store struct {
	db    *sql.DB
	clock timeutil.Clock
}

// Open opens (creating if needed) the SQLite database at path and migrates
// it to the latest schema.
func Open(path string) (*Store, error) {
	return OpenWithClock(path, timeutil.RealClock{})
}

// OpenWithClock is Open with an explicit clock for timestamps.
func OpenWithClock(path string, clock timeutil.Clock) (*Store, error) {
	s, err := OpenUnmigrated(path, clock)
	if err != nil {
		return nil, err
	}
	if err := s.MigrateUp(); err != nil {
		s.Close()
		return nil, err
	}
	diagf("opened ledger %s", path)
	return s, nil
}

// OpenUnmigrated opens the ledger database without touching its schema, for
// migration maintenance.
func OpenUnmigrated(path string, clock timeutil.Clock) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure ledger %s: %s: %w", path, pragma, err)
		}
	}
	return NewStore(db, clock), nil
}

// NewStore wraps an open database. The schema is not migrated.
func NewStore(db *sql.DB, clock timeutil.Clock) *Store {
	return &Store{db: db, clock: clock}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// StartRun inserts a running run and returns its id. cfg, when non-nil, is
// stored as JSON.
func (s *Store) StartRun(kind, experiment string, cfg any) (string, error) {
	var cfgJSON sql.NullString
	if cfg != nil {
		data, err := json.Marshal(cfg)
		if err != nil {
			return "", fmt.Errorf("encode run config: %w", err)
		}
		cfgJSON = sql.NullString{String: string(data), Valid: true}
	}
	runID := uuid.New().String()
	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, kind, experiment, status, config_json, started_ns)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, kind, experiment, StatusRunning, cfgJSON, s.clock.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	tracef("started %s run %s", kind, runID)
	return runID, nil
}

// FinishRun sets the final status of a run.
func (s *Store) FinishRun(runID, status string) error {
	res, err := s.db.Exec(`UPDATE runs SET status = ?, finished_ns = ? WHERE run_id = ?`,
		status, s.clock.Now().UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// GetRun returns one run.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, kind, experiment, status, config_json, started_ns, finished_ns
		FROM runs WHERE run_id = ?
	`, runID)
	return scanRun(row)
}

// ListRuns returns runs of kind, newest first. An empty kind lists all.
func (s *Store) ListRuns(kind string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT run_id, kind, experiment, status, config_json, started_ns, finished_ns
		FROM runs
		WHERE ? = '' OR kind = ?
		ORDER BY started_ns DESC
		LIMIT ?
	`, kind, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	r := &Run{}
	var cfg sql.NullString
	var finished sql.NullInt64
	if err := row.Scan(&r.RunID, &r.Kind, &r.Experiment, &r.Status, &cfg, &r.StartedNs, &finished); err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if cfg.Valid {
		r.ConfigJSON = cfg.String
	}
	if finished.Valid {
		r.FinishedNs = &finished.Int64
	}
	return r, nil
}

// RecordTransition appends a state change for input.
func (s *Store) RecordTransition(runID, input, state, detail string, tiles int) error {
	_, err := s.db.Exec(`
		INSERT INTO file_transitions (run_id, input_path, state, detail, tiles, recorded_ns)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, input, state, nullString(detail), tiles, s.clock.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	tracef("run %s: %s -> %s", runID, input, state)
	return nil
}

// Transitions returns every transition of a run in recording order.
func (s *Store) Transitions(runID string) ([]Transition, error) {
	rows, err := s.db.Query(`
		SELECT run_id, input_path, state, detail, tiles, recorded_ns
		FROM file_transitions
		WHERE run_id = ?
		ORDER BY transition_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		var detail sql.NullString
		if err := rows.Scan(&t.RunID, &t.InputPath, &t.State, &detail, &t.Tiles, &t.RecordedNs); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.Detail = detail.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// FinalStates returns the last recorded state of every input in a run.
func (s *Store) FinalStates(runID string) (map[string]string, error) {
	rows, err := s.db.Query(`
		SELECT t.input_path, t.state
		FROM file_transitions t
		JOIN (
			SELECT input_path, MAX(transition_id) AS last_id
			FROM file_transitions
			WHERE run_id = ?
			GROUP BY input_path
		) last ON t.transition_id = last.last_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("final states: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var path, state string
		if err := rows.Scan(&path, &state); err != nil {
			return nil, fmt.Errorf("scan final state: %w", err)
		}
		out[path] = state
	}
	return out, rows.Err()
}

// RecordEpoch stores one epoch of training history.
func (s *Store) RecordEpoch(e Epoch) error {
	if e.RecordedNs == 0 {
		e.RecordedNs = s.clock.Now().UnixNano()
	}
	_, err := s.db.Exec(`
		INSERT INTO epochs (
			run_id, epoch, train_loss, train_acc, val_loss, val_acc,
			learning_rate, improved, checkpoint_path, recorded_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.RunID, e.Epoch, e.TrainLoss, e.TrainAcc, e.ValLoss, e.ValAcc,
		e.LearningRate, e.Improved, nullString(e.CheckpointPath), e.RecordedNs)
	if err != nil {
		return fmt.Errorf("insert epoch: %w", err)
	}
	return nil
}

// Epochs returns a run's training history in epoch order.
func (s *Store) Epochs(runID string) ([]Epoch, error) {
	rows, err := s.db.Query(`
		SELECT run_id, epoch, train_loss, train_acc, val_loss, val_acc,
		       learning_rate, improved, checkpoint_path, recorded_ns
		FROM epochs
		WHERE run_id = ?
		ORDER BY epoch
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list epochs: %w", err)
	}
	defer rows.Close()

	var out []Epoch
	for rows.Next() {
		var e Epoch
		var ckpt sql.NullString
		if err := rows.Scan(&e.RunID, &e.Epoch, &e.TrainLoss, &e.TrainAcc, &e.ValLoss, &e.ValAcc,
			&e.LearningRate, &e.Improved, &ckpt, &e.RecordedNs); err != nil {
			return nil, fmt.Errorf("scan epoch: %w", err)
		}
		e.CheckpointPath = ckpt.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Checkpoints returns the checkpoint paths written by a run, oldest first.
func (s *Store) Checkpoints(runID string) ([]string, error) {
	epochs, err := s.Epochs(runID)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range epochs {
		if e.CheckpointPath != "" {
			out = append(out, e.CheckpointPath)
		}
	}
	return out, nil
}

// Elapsed returns how long a run took, or how long it has been running.
func (s *Store) Elapsed(r *Run) time.Duration {
	if r.FinishedNs != nil {
		return time.Duration(*r.FinishedNs - r.StartedNs)
	}
	return s.clock.Since(time.Unix(0, r.StartedNs))
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
