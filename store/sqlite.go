// Package store persists PipelineRun records in SQLite. Report artifacts
// themselves live in the artifact store; this package only records the run
// metadata and storage paths the UI resolves later.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/telcowatch/telcowatch/core"
)

var (
	// ErrNotFound is returned when no run exists for the given report id.
	ErrNotFound = errors.New("pipeline run not found")
	// ErrInvalidTransition is returned for any status change other than
	// draft -> published or (draft|published) -> archived.
	ErrInvalidTransition = errors.New("invalid status transition")
)

const schema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	report_id      TEXT PRIMARY KEY,
	user_ref       TEXT NOT NULL,
	stream_domains TEXT NOT NULL,
	status         TEXT NOT NULL,
	tip_count      INTEGER NOT NULL DEFAULT 0,
	alert_count    INTEGER NOT NULL DEFAULT 0,
	storage_paths  TEXT NOT NULL,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_user ON pipeline_runs (user_ref, created_at);
`

// SQLiteStore implements core.ReportStore on a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ core.ReportStore = (*SQLiteStore)(nil)

// Open opens (creating if necessary) the database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// CreateReport inserts a new run record. The caller provides the report id;
// runs are fully independent so the same report content stored twice under
// different ids yields two records.
func (s *SQLiteStore) CreateReport(ctx context.Context, run core.PipelineRun) error {
	domains, err := json.Marshal(run.StreamDomains)
	if err != nil {
		return fmt.Errorf("marshal stream domains: %w", err)
	}
	paths, err := json.Marshal(run.StoragePaths)
	if err != nil {
		return fmt.Errorf("marshal storage paths: %w", err)
	}

	query, args, err := sq.Insert("pipeline_runs").
		Columns("report_id", "user_ref", "stream_domains", "status",
			"tip_count", "alert_count", "storage_paths", "created_at", "updated_at").
		Values(run.ReportID, run.UserRef, string(domains), string(run.Status),
			run.TipCount, run.AlertCount, string(paths), run.CreatedAt, run.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return core.NewStageError(core.KindPersistenceFailure, "store", "",
			fmt.Errorf("insert pipeline run: %w", err))
	}
	return nil
}

// GetReport loads a run record by report id.
func (s *SQLiteStore) GetReport(ctx context.Context, reportID string) (core.PipelineRun, error) {
	query, args, err := sq.Select("report_id", "user_ref", "stream_domains", "status",
		"tip_count", "alert_count", "storage_paths", "created_at", "updated_at").
		From("pipeline_runs").
		Where(sq.Eq{"report_id": reportID}).
		ToSql()
	if err != nil {
		return core.PipelineRun{}, fmt.Errorf("build select: %w", err)
	}
	return s.scanRun(s.db.QueryRowContext(ctx, query, args...))
}

// ListReports returns runs matching the filter, newest first.
func (s *SQLiteStore) ListReports(ctx context.Context, filter core.ReportFilter) ([]core.PipelineRun, error) {
	builder := sq.Select("report_id", "user_ref", "stream_domains", "status",
		"tip_count", "alert_count", "storage_paths", "created_at", "updated_at").
		From("pipeline_runs").
		OrderBy("created_at DESC")
	if filter.UserRef != "" {
		builder = builder.Where(sq.Eq{"user_ref": filter.UserRef})
	}
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []core.PipelineRun
	for rows.Next() {
		run, err := s.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipeline runs: %w", err)
	}
	return runs, nil
}

// PublishReport transitions a draft run to published.
func (s *SQLiteStore) PublishReport(ctx context.Context, reportID string) error {
	return s.transition(ctx, reportID, core.RunStatusPublished, []core.RunStatus{core.RunStatusDraft})
}

// ArchiveReport moves a run to the terminal archived status. Archived runs
// never leave it.
func (s *SQLiteStore) ArchiveReport(ctx context.Context, reportID string) error {
	return s.transition(ctx, reportID, core.RunStatusArchived,
		[]core.RunStatus{core.RunStatusDraft, core.RunStatusPublished})
}

func (s *SQLiteStore) transition(ctx context.Context, reportID string, to core.RunStatus, from []core.RunStatus) error {
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}
	query, args, err := sq.Update("pipeline_runs").
		Set("status", string(to)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"report_id": reportID, "status": allowed}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update pipeline run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetReport(ctx, reportID); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrInvalidTransition
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanRun(row rowScanner) (core.PipelineRun, error) {
	var (
		run             core.PipelineRun
		status          string
		domainsJSON     string
		storagePathJSON string
	)
	err := row.Scan(&run.ReportID, &run.UserRef, &domainsJSON, &status,
		&run.TipCount, &run.AlertCount, &storagePathJSON, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.PipelineRun{}, ErrNotFound
	}
	if err != nil {
		return core.PipelineRun{}, fmt.Errorf("scan pipeline run: %w", err)
	}
	run.Status = core.RunStatus(status)
	if err := json.Unmarshal([]byte(domainsJSON), &run.StreamDomains); err != nil {
		return core.PipelineRun{}, fmt.Errorf("unmarshal stream domains: %w", err)
	}
	if err := json.Unmarshal([]byte(storagePathJSON), &run.StoragePaths); err != nil {
		return core.PipelineRun{}, fmt.Errorf("unmarshal storage paths: %w", err)
	}
	return run, nil
}
