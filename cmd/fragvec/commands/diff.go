package commands

import (
	"github.com/lorawan-fota/fragvec/pkg/bundle"
	"github.com/lorawan-fota/fragvec/pkg/pipeline"
	"github.com/spf13/cobra"
)

var diffCmd = &cobra.Command{
	Use:   "diff <source> <target> <output> [diff-file]",
	Short: "Generate vectors for a signed delta update",
	Long: `Signs the target image and prefixes the payload with the signed diff
manifest. When diff-file is given its bytes replace the target as payload.
The SLOT2 array holds the source image for on-device patching.`,
	Args: cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		job := pipeline.Job{
			Mode:   bundle.KindSignedDiff,
			Source: args[0],
			Target: args[1],
			Output: args[2],
		}
		if len(args) == 4 {
			job.Payload = args[3]
		}
		return runJob(cmd.Context(), job)
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)
}
