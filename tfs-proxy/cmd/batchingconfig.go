package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/edgelesssys/sagemaker-tfs/internal/constants"
	"github.com/edgelesssys/sagemaker-tfs/internal/logging"
	"github.com/edgelesssys/sagemaker-tfs/tfs-proxy/internal/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newBatchingConfigCmd(f *flags, batching config.Batching, fs afero.Fs) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "batching-config",
		Short: "Print the TensorFlow Serving batching parameters file configured by the environment.",
		Long: fmt.Sprintf("Print the TensorFlow Serving batching parameters file configured by the environment.\n"+
			"Nothing is written unless $%s is set to a value other than 0 or false.", constants.EnvEnableBatching),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New(f.logLevel, cmd.ErrOrStderr(), f.logFile)

			if !batching.Enabled {
				log.Info("Batching disabled", "env", constants.EnvEnableBatching)
				return nil
			}
			if err := batching.Validate(); err != nil {
				return err
			}
			batchingConfig := batching.Render(runtime.NumCPU())

			if output == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), batchingConfig)
				return err
			}
			if err := afero.WriteFile(fs, output, []byte(batchingConfig), 0o644); err != nil {
				return fmt.Errorf("writing batching config: %w", err)
			}
			log.Info("Created batching config", "file", output, "tfsArgs", strings.Join(config.BatchingArgs(output), " "))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the batching parameters to this file instead of stdout.")
	return cmd
}
