package cmd

import (
	"fmt"

	"github.com/edgelesssys/sagemaker-tfs/internal/logging"
	"github.com/edgelesssys/sagemaker-tfs/tfs-proxy/internal/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newModelConfigCmd(f *flags, fs afero.Fs) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "model-config",
		Short: "Print a TensorFlow Serving model config serving all models found in --model-dir.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New(f.logLevel, cmd.ErrOrStderr(), f.logFile)

			models, err := config.FindModels(fs, f.modelDir)
			if err != nil {
				return err
			}
			modelConfig := config.RenderModelConfig(models)
			log.Info("Created model config", "models", len(models), "defaultModel", config.ModelName(models[0]))

			if output == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), modelConfig)
				return err
			}
			if err := afero.WriteFile(fs, output, []byte(modelConfig), 0o644); err != nil {
				return fmt.Errorf("writing model config: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the model config to this file instead of stdout.")
	return cmd
}
