package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/lorawan-fota/fragvec/pkg/db"
	"github.com/lorawan-fota/fragvec/pkg/errors"
	"github.com/spf13/cobra"
)

var listStatus string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List generation runs and their status",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listStatus, "status", "", "Only show runs in this status")
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Ensure database directory exists
	if err := ensureDirectories(cfg.SQLitePath, "", ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	var runs []*db.Run
	if listStatus != "" {
		runs, err = repo.ListByStatus(listStatus)
	} else {
		runs, err = repo.List()
	}
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	printRuns(os.Stdout, runs)
	return nil
}

func printRuns(w io.Writer, runs []*db.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found")
		return
	}

	fmt.Fprintf(w, "%-6s %-18s %-10s %-30s %-10s %-20s\n", "ID", "MODE", "STATUS", "OUTPUT", "FRAGMENTS", "CRC64")
	fmt.Fprintln(w, "------------------------------------------------------------------------------------------------")

	for _, run := range runs {
		sum := run.Checksum
		if sum == "" {
			sum = "-"
		}
		fragments := "-"
		if run.Status == db.StatusComplete {
			fragments = fmt.Sprintf("%d", run.FragmentCount)
		}

		fmt.Fprintf(w, "%-6d %-18s %-10s %-30s %-10s %-20s\n",
			run.ID, run.Mode, run.Status, run.OutputPath, fragments, sum)
	}
}
