package pipeline

import (
	"log/slog"

	"github.com/lorawan-fota/fragvec/pkg/checksum"
	"github.com/lorawan-fota/fragvec/pkg/db"
)

// NewRun returns the pending history record for job.
func NewRun(job Job) *db.Run {
	return &db.Run{
		Mode:       string(job.Mode),
		TargetPath: job.Target,
		SourcePath: job.Source,
		OutputPath: job.Output,
		Status:     db.StatusPending,
	}
}

// Complete fills run from res and marks it complete. When an earlier
// complete run had the same inputs but a different artifact, it logs a
// nondeterministic_output warning and reports false.
func Complete(repo *db.Repository, run *db.Run, res *Result) (deterministic bool, err error) {
	run.Status = db.StatusComplete
	run.BundleLength = len(res.Bundle)
	run.FragmentCount = len(res.Corrected.Fragments)
	run.Padding = res.Corrected.Padding
	run.Checksum = checksum.Format(res.Checksum)
	run.InputFingerprint = res.InputFingerprint
	run.ArtifactFingerprint = res.ArtifactFingerprint
	run.EncoderReport = res.Report.Text
	run.ErrorMessage = ""

	deterministic = true
	prev, err := repo.LatestComplete(res.InputFingerprint, run.ID)
	if err != nil {
		return false, err
	}
	if prev != nil && prev.ArtifactFingerprint != res.ArtifactFingerprint {
		deterministic = false
		slog.Warn("nondeterministic_output",
			"run_id", run.ID,
			"previous_run_id", prev.ID,
			"input_fingerprint", res.InputFingerprint,
			"artifact_fingerprint", res.ArtifactFingerprint,
			"previous_artifact_fingerprint", prev.ArtifactFingerprint)
	}

	if err := repo.Update(run); err != nil {
		return deterministic, err
	}
	slog.Info("run_complete", "run_id", run.ID, "mode", run.Mode, "fragments", run.FragmentCount, "crc64", run.Checksum)
	return deterministic, nil
}

// Fail marks run failed with err's message.
func Fail(repo *db.Repository, run *db.Run, err error) {
	if uerr := repo.UpdateStatus(run.ID, db.StatusFailed, err.Error()); uerr != nil {
		slog.Error("run_status_update_failed", "run_id", run.ID, "error", uerr)
	}
}
