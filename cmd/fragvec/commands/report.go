package commands

import (
	"fmt"
	"strconv"

	"github.com/lorawan-fota/fragvec/pkg/db"
	"github.com/lorawan-fota/fragvec/pkg/errors"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Print the stored encoder report of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid run id %q", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	run, err := repo.Report(id)
	if err != nil {
		return errors.Wrap(err, "report failed")
	}
	if run == nil {
		return fmt.Errorf("run %d not found", id)
	}
	if run.EncoderReport == "" {
		return fmt.Errorf("run %d has no encoder report (status %s)", id, run.Status)
	}

	fmt.Fprint(cmd.OutOrStdout(), run.EncoderReport)
	return nil
}
