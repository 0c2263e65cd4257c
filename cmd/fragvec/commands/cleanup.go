package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lorawan-fota/fragvec/pkg/bundle"
	"github.com/lorawan-fota/fragvec/pkg/db"
	"github.com/lorawan-fota/fragvec/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	cleanupStaleBundles bool
	cleanupFailed       bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stale temporary bundles and failed runs",
	Long: `Clean up resources left behind by earlier runs:
  --stale-bundles    Remove bundle files left in the work dir by killed processes
  --failed           Delete failed runs from the history`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupStaleBundles, "stale-bundles", false, "Remove stale temporary bundles")
	cleanupCmd.Flags().BoolVar(&cleanupFailed, "failed", false, "Delete failed runs")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if !cleanupStaleBundles && !cleanupFailed {
		return fmt.Errorf("must specify --stale-bundles or --failed")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if cleanupStaleBundles {
		n, err := removeStaleBundles(out, cfg.WorkDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %d stale bundles\n", n)
	}

	if cleanupFailed {
		repo, err := db.NewRepository(cfg.SQLitePath)
		if err != nil {
			return errors.Wrap(err, "db init failed")
		}
		defer repo.Close()

		n, err := deleteFailedRuns(out, repo)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d failed runs\n", n)
	}

	return nil
}

// removeStaleBundles deletes temporary bundle files in workDir. A missing
// work dir has nothing to clean.
func removeStaleBundles(out io.Writer, workDir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(workDir, bundle.FilePattern))
	if err != nil {
		return 0, errors.Wrap(err, "failed to scan work dir")
	}

	removed := 0
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			fmt.Fprintf(out, "Failed to remove %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(out, "Removed: %s\n", path)
		removed++
	}
	return removed, nil
}

func deleteFailedRuns(out io.Writer, repo *db.Repository) (int, error) {
	runs, err := repo.ListByStatus(db.StatusFailed)
	if err != nil {
		return 0, errors.Wrap(err, "list failed")
	}

	deleted := 0
	for _, run := range runs {
		if err := repo.Delete(run.ID); err != nil {
			fmt.Fprintf(out, "Failed to delete run %d: %v\n", run.ID, err)
			continue
		}
		deleted++
	}
	return deleted, nil
}
