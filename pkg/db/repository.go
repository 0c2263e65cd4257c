package db

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lorawan-fota/fragvec/pkg/errors"
	_ "modernc.org/sqlite"
)

const runColumns = `id, mode, target_path, source_path, output_path, status,
	bundle_length, fragment_count, padding, checksum,
	input_fingerprint, artifact_fingerprint, error_message, created_at, updated_at`

// Repository provides database operations for runs
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	slog.Debug("database_create_schema", "db_path", dbPath)
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Debug("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new run record
func (r *Repository) Create(run *Run) error {
	slog.Info("database_create_run", "mode", run.Mode, "target", run.TargetPath, "status", run.Status)

	query := `
		INSERT INTO runs (mode, target_path, source_path, output_path, status, input_fingerprint, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		run.Mode, run.TargetPath, run.SourcePath, run.OutputPath,
		run.Status, run.InputFingerprint, run.ErrorMessage)
	if err != nil {
		slog.Error("database_insert_failed", "target", run.TargetPath, "error", err)
		return errors.Wrap(err, "failed to insert run")
	}

	id, err := result.LastInsertId()
	if err != nil {
		slog.Error("database_last_insert_id_failed", "target", run.TargetPath, "error", err)
		return errors.Wrap(err, "failed to get last insert id")
	}
	run.ID = id

	slog.Info("database_run_created", "run_id", run.ID, "mode", run.Mode)
	return nil
}

// Get retrieves a run by ID. It returns nil if the run does not exist.
func (r *Repository) Get(id int64) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	run, err := scanRun(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		slog.Info("database_run_not_found", "run_id", id)
		return nil, nil // Not found
	}
	if err != nil {
		slog.Error("database_query_failed", "run_id", id, "error", err)
		return nil, errors.Wrap(err, "failed to query run")
	}
	return run, nil
}

// Update writes the results of a run. The stored encoder report is kept
// when run.EncoderReport is empty.
func (r *Repository) Update(run *Run) error {
	slog.Info("database_update_run", "run_id", run.ID, "status", run.Status)

	query := `
		UPDATE runs
		SET status = ?, source_path = ?, bundle_length = ?, fragment_count = ?, padding = ?, checksum = ?,
		    input_fingerprint = ?, artifact_fingerprint = ?,
		    encoder_report = COALESCE(?, encoder_report),
		    error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	var report any
	if run.EncoderReport != "" {
		report = compressReport(run.EncoderReport)
	}
	result, err := r.db.Exec(query,
		run.Status, run.SourcePath, run.BundleLength, run.FragmentCount, run.Padding, run.Checksum,
		run.InputFingerprint, run.ArtifactFingerprint, report,
		run.ErrorMessage, run.ID)
	if err != nil {
		slog.Error("database_update_failed", "run_id", run.ID, "error", err)
		return errors.Wrap(err, "failed to update run")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		slog.Error("database_rows_affected_failed", "run_id", run.ID, "error", err)
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		slog.Error("database_run_not_found_for_update", "run_id", run.ID)
		return fmt.Errorf("run not found: id=%d", run.ID)
	}

	return nil
}

// UpdateStatus updates only the status field
func (r *Repository) UpdateStatus(id int64, status, errorMessage string) error {
	slog.Info("database_update_status", "run_id", id, "status", status)

	query := `UPDATE runs SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := r.db.Exec(query, status, errorMessage, id)
	if err != nil {
		slog.Error("database_status_update_failed", "run_id", id, "status", status, "error", err)
		return errors.Wrap(err, "failed to update status")
	}
	return nil
}

// List retrieves all runs, newest first
func (r *Repository) List() ([]*Run, error) {
	return r.list(`SELECT `+runColumns+` FROM runs ORDER BY id DESC`)
}

// ListByStatus retrieves the runs in the given status, newest first
func (r *Repository) ListByStatus(status string) ([]*Run, error) {
	return r.list(`SELECT `+runColumns+` FROM runs WHERE status = ? ORDER BY id DESC`, status)
}

func (r *Repository) list(query string, args ...any) ([]*Run, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Debug("database_list_complete", "run_count", len(runs))
	return runs, nil
}

// Delete deletes a run by ID
func (r *Repository) Delete(id int64) error {
	slog.Info("database_delete_run", "run_id", id)

	_, err := r.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		slog.Error("database_delete_failed", "run_id", id, "error", err)
		return errors.Wrap(err, "failed to delete run")
	}
	return nil
}

// LatestComplete returns the newest complete run with the given input
// fingerprint, ignoring the run excludeID. It returns nil if there is none.
func (r *Repository) LatestComplete(fingerprint string, excludeID int64) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs
		WHERE input_fingerprint = ? AND status = ? AND id != ?
		ORDER BY id DESC LIMIT 1`

	run, err := scanRun(r.db.QueryRow(query, fingerprint, StatusComplete, excludeID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("database_query_failed", "input_fingerprint", fingerprint, "error", err)
		return nil, errors.Wrap(err, "failed to query latest run")
	}
	return run, nil
}

// Report returns the run with its decompressed encoder report. It returns
// nil if the run does not exist.
func (r *Repository) Report(id int64) (*Run, error) {
	run, err := r.Get(id)
	if err != nil || run == nil {
		return run, err
	}

	var blob []byte
	if err := r.db.QueryRow(`SELECT encoder_report FROM runs WHERE id = ?`, id).Scan(&blob); err != nil {
		return nil, errors.Wrap(err, "failed to query encoder report")
	}
	run.EncoderReport, err = decompressReport(blob)
	if err != nil {
		return nil, err
	}
	return run, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var sourcePath, checksum, inputFP, artifactFP, errorMessage sql.NullString
	var bundleLength, fragmentCount, padding sql.NullInt64

	err := row.Scan(
		&run.ID, &run.Mode, &run.TargetPath, &sourcePath, &run.OutputPath, &run.Status,
		&bundleLength, &fragmentCount, &padding, &checksum,
		&inputFP, &artifactFP, &errorMessage, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}

	// Handle nullable fields
	run.SourcePath = sourcePath.String
	run.BundleLength = int(bundleLength.Int64)
	run.FragmentCount = int(fragmentCount.Int64)
	run.Padding = int(padding.Int64)
	run.Checksum = checksum.String
	run.InputFingerprint = inputFP.String
	run.ArtifactFingerprint = artifactFP.String
	run.ErrorMessage = errorMessage.String
	return &run, nil
}
