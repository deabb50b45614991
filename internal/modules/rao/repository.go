package rao

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/rao/internal/utils"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// Run lifecycle states as stored.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is a stored optimisation run. Request and Result are only loaded by Get.
type Run struct {
	ID           string          `json:"id"`
	BatchID      string          `json:"batch_id,omitempty"`
	Status       string          `json:"status"`
	SolverStatus string          `json:"solver_status,omitempty"`
	MainState    string          `json:"main_state"`
	Iterations   int             `json:"iterations"`
	WorstMargin  *float64        `json:"worst_margin,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	ArchiveKey   string          `json:"archive_key,omitempty"`
	Request      *ProblemRequest `json:"request,omitempty"`
	Result       *RunResult      `json:"result,omitempty"`
}

// Repository stores runs in the runs database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a run repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "runs").Logger(),
	}
}

// encodeBlob packs v with msgpack, reusing the json field names.
func encodeBlob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeBlob(data []byte, v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

// Create stores a new running run and returns its id.
func (r *Repository) Create(ctx context.Context, batchID, mainState string, req *ProblemRequest) (string, error) {
	blob, err := encodeBlob(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode run request: %w", err)
	}
	id := uuid.New().String()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO runs (id, batch_id, status, main_state, created_at, request)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, batchID, StatusRunning, mainState, time.Now().Unix(), blob)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	r.log.Debug().Str("run_id", id).Msg("Run created")
	return id, nil
}

// Finish records the outcome of a run. A non-nil runErr marks it failed.
func (r *Repository) Finish(ctx context.Context, id string, result *RunResult, runErr error) error {
	status := StatusCompleted
	var (
		blob         []byte
		solverStatus string
		iterations   int
		worstMargin  sql.NullFloat64
		errMsg       string
	)
	if runErr != nil {
		status = StatusFailed
		errMsg = runErr.Error()
	}
	if result != nil {
		var err error
		if blob, err = encodeBlob(result); err != nil {
			return fmt.Errorf("failed to encode run result: %w", err)
		}
		solverStatus = result.SolverStatus
		iterations = result.Iterations
		worstMargin = sql.NullFloat64{Float64: result.WorstMargin, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, solver_status = ?, iterations = ?, worst_margin = ?,
			error = ?, finished_at = ?, result = ?
		WHERE id = ?
	`, status, solverStatus, iterations, worstMargin, errMsg, time.Now().Unix(), blob, id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return expectOneRow(res, id)
}

// SetArchiveKey records where a run was archived.
func (r *Repository) SetArchiveKey(ctx context.Context, id, key string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE runs SET archive_key = ? WHERE id = ?`, key, id)
	if err != nil {
		return fmt.Errorf("failed to set archive key: %w", err)
	}
	return expectOneRow(res, id)
}

const runColumns = `id, batch_id, status, solver_status, main_state, iterations,
	worst_margin, error, created_at, finished_at, archive_key`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner, extra ...interface{}) (*Run, error) {
	var (
		run         Run
		worstMargin sql.NullFloat64
		createdAt   int64
		finishedAt  sql.NullInt64
	)
	dest := []interface{}{
		&run.ID, &run.BatchID, &run.Status, &run.SolverStatus, &run.MainState, &run.Iterations,
		&worstMargin, &run.Error, &createdAt, &finishedAt, &run.ArchiveKey,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	run.CreatedAt = time.Unix(createdAt, 0).UTC()
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0).UTC()
		run.FinishedAt = &t
	}
	if worstMargin.Valid {
		v := worstMargin.Float64
		run.WorstMargin = &v
	}
	return &run, nil
}

// Get loads a run with its request and result.
func (r *Repository) Get(ctx context.Context, id string) (*Run, error) {
	var request, result []byte
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+`, request, result FROM runs WHERE id = ?`, id)
	run, err := scanRun(row, &request, &result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	run.Request = &ProblemRequest{}
	if err := decodeBlob(request, run.Request); err != nil {
		return nil, fmt.Errorf("failed to decode run request: %w", err)
	}
	if len(result) > 0 {
		run.Result = &RunResult{}
		if err := decodeBlob(result, run.Result); err != nil {
			return nil, fmt.Errorf("failed to decode run result: %w", err)
		}
	}
	return run, nil
}

// List returns run summaries, newest first. An empty batchID lists every run.
func (r *Repository) List(ctx context.Context, batchID string, limit, offset int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []interface{}{}
	if batchID != "" {
		query += ` WHERE batch_id = ?`
		args = append(args, batchID)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// Delete removes one run.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return expectOneRow(res, id)
}

// DeleteOlderThan removes finished runs created before the cutoff and
// returns how many were deleted. Running runs are kept.
func (r *Repository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	purged := utils.PurgeTimer(before, r.log)
	res, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ? AND status != ?`, before.Unix(), StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted runs: %w", err)
	}
	purged(n)
	if n > 0 {
		r.log.Info().Int64("deleted", n).Time("before", before).Msg("Deleted old runs")
	}
	return n, nil
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}
