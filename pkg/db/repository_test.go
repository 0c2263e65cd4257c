package db

import (
	"path/filepath"
	"strings"
	"testing"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)

	run := &Run{
		Mode:       "signed_diff",
		TargetPath: "fw/v2.bin",
		SourcePath: "fw/v1.bin",
		OutputPath: "packets_diff.h",
		Status:     StatusPending,
	}
	if err := repo.Create(run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	if run.ID == 0 {
		t.Fatal("expected ID to be assigned")
	}

	got, err := repo.Get(run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Mode != run.Mode || got.TargetPath != run.TargetPath || got.SourcePath != run.SourcePath {
		t.Errorf("retrieved run mismatch: got %+v, want %+v", got, run)
	}

	missing, err := repo.Get(run.ID + 100)
	if err != nil || missing != nil {
		t.Errorf("expected nil for missing run, got %+v, %v", missing, err)
	}
}

func TestRepository_InvalidMode(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.Create(&Run{Mode: "delta", TargetPath: "a", OutputPath: "b", Status: StatusPending})
	if err == nil {
		t.Error("expected constraint violation for unknown mode")
	}
}

func TestRepository_UpdateAndReport(t *testing.T) {
	repo := newTestRepo(t)

	run := &Run{Mode: "no_diff", TargetPath: "fw.bin", OutputPath: "packets.h", Status: StatusRunning}
	if err := repo.Create(run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	report := "Fragmentation header likely: 0x02 0x01\n" + strings.Repeat("[8, 1, 0, 0, 0, 0]\n", 100)
	run.Status = StatusComplete
	run.BundleLength = 317
	run.FragmentCount = 2
	run.Padding = 91
	run.Checksum = "0xe9c6d914c4b8d9ca"
	run.ArtifactFingerprint = "abc"
	run.EncoderReport = report
	if err := repo.Update(run); err != nil {
		t.Fatalf("failed to update run: %v", err)
	}

	got, err := repo.Report(run.ID)
	if err != nil {
		t.Fatalf("failed to load report: %v", err)
	}
	if got.EncoderReport != report {
		t.Errorf("report mismatch: got %d bytes, want %d", len(got.EncoderReport), len(report))
	}
	if got.Padding != 91 || got.BundleLength != 317 || got.Checksum != run.Checksum {
		t.Errorf("results not stored: %+v", got)
	}

	// An update without a report keeps the stored one.
	run.EncoderReport = ""
	run.ErrorMessage = "note"
	if err := repo.Update(run); err != nil {
		t.Fatalf("failed to update run: %v", err)
	}
	got, _ = repo.Report(run.ID)
	if got.EncoderReport != report {
		t.Error("encoder report was cleared by an update without one")
	}

	if err := repo.Update(&Run{ID: 999, Status: StatusFailed}); err == nil {
		t.Error("expected error updating missing run")
	}
}

func TestRepository_UpdateStatus(t *testing.T) {
	repo := newTestRepo(t)

	run := &Run{Mode: "no_diff", TargetPath: "fw.bin", OutputPath: "packets.h", Status: StatusPending}
	repo.Create(run)

	if err := repo.UpdateStatus(run.ID, StatusFailed, "encoder exited 1"); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}

	updated, _ := repo.Get(run.ID)
	if updated.Status != StatusFailed || updated.ErrorMessage != "encoder exited 1" {
		t.Errorf("status not updated: got %s (%s)", updated.Status, updated.ErrorMessage)
	}
}

func TestRepository_ListAndDelete(t *testing.T) {
	repo := newTestRepo(t)

	repo.Create(&Run{Mode: "no_diff", TargetPath: "a.bin", OutputPath: "a.h", Status: StatusComplete})
	repo.Create(&Run{Mode: "no_diff", TargetPath: "b.bin", OutputPath: "b.h", Status: StatusFailed})
	repo.Create(&Run{Mode: "external_manifest", TargetPath: "c.bin", OutputPath: "c.h", Status: StatusFailed})

	runs, err := repo.List()
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].TargetPath != "c.bin" {
		t.Errorf("expected newest first, got %s", runs[0].TargetPath)
	}

	failed, err := repo.ListByStatus(StatusFailed)
	if err != nil {
		t.Fatalf("failed to list failed runs: %v", err)
	}
	if len(failed) != 2 {
		t.Fatalf("expected 2 failed runs, got %d", len(failed))
	}

	if err := repo.Delete(failed[0].ID); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}
	runs, _ = repo.List()
	if len(runs) != 2 {
		t.Errorf("expected 2 runs after delete, got %d", len(runs))
	}
}

func TestRepository_LatestComplete(t *testing.T) {
	repo := newTestRepo(t)

	first := &Run{Mode: "no_diff", TargetPath: "a.bin", OutputPath: "a.h", Status: StatusComplete, InputFingerprint: "fp1"}
	repo.Create(first)
	second := &Run{Mode: "no_diff", TargetPath: "a.bin", OutputPath: "a.h", Status: StatusComplete, InputFingerprint: "fp1"}
	repo.Create(second)
	repo.Create(&Run{Mode: "no_diff", TargetPath: "a.bin", OutputPath: "a.h", Status: StatusFailed, InputFingerprint: "fp1"})
	current := &Run{Mode: "no_diff", TargetPath: "a.bin", OutputPath: "a.h", Status: StatusRunning, InputFingerprint: "fp1"}
	repo.Create(current)

	got, err := repo.LatestComplete("fp1", current.ID)
	if err != nil {
		t.Fatalf("LatestComplete: %v", err)
	}
	if got == nil || got.ID != second.ID {
		t.Errorf("expected run %d, got %+v", second.ID, got)
	}

	got, err = repo.LatestComplete("fp1", second.ID)
	if err != nil || got == nil || got.ID != first.ID {
		t.Errorf("expected run %d when excluding %d, got %+v (%v)", first.ID, second.ID, got, err)
	}

	got, err = repo.LatestComplete("other", 0)
	if err != nil || got != nil {
		t.Errorf("expected nil for unknown fingerprint, got %+v, %v", got, err)
	}
}
