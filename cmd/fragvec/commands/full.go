package commands

import (
	"github.com/lorawan-fota/fragvec/pkg/bundle"
	"github.com/lorawan-fota/fragvec/pkg/pipeline"
	"github.com/spf13/cobra"
)

var fullCmd = &cobra.Command{
	Use:   "full <image> <output>",
	Short: "Generate vectors for a full image with no metadata (legacy)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd.Context(), pipeline.Job{
			Mode:   bundle.KindNoDiff,
			Target: args[0],
			Output: args[1],
		})
	},
}

func init() {
	rootCmd.AddCommand(fullCmd)
}
