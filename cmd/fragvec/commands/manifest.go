package commands

import (
	"github.com/lorawan-fota/fragvec/pkg/bundle"
	"github.com/lorawan-fota/fragvec/pkg/pipeline"
	"github.com/spf13/cobra"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest <image> <output>",
	Short: "Generate vectors for an image wrapped in an external manifest",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd.Context(), pipeline.Job{
			Mode:   bundle.KindExternalManifest,
			Target: args[0],
			Output: args[1],
		})
	},
}

func init() {
	rootCmd.AddCommand(manifestCmd)
}
