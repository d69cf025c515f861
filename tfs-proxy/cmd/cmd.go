// package cmd defines the tfs-proxy's root command.
package cmd

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/edgelesssys/sagemaker-tfs/internal/constants"
	"github.com/edgelesssys/sagemaker-tfs/internal/forwarder"
	"github.com/edgelesssys/sagemaker-tfs/internal/health"
	"github.com/edgelesssys/sagemaker-tfs/internal/logging"
	"github.com/edgelesssys/sagemaker-tfs/internal/metrics"
	"github.com/edgelesssys/sagemaker-tfs/internal/tfs"
	"github.com/edgelesssys/sagemaker-tfs/tfs-proxy/internal/adapter"
	"github.com/edgelesssys/sagemaker-tfs/tfs-proxy/internal/config"
	"github.com/edgelesssys/sagemaker-tfs/tfs-proxy/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

type flags struct {
	logLevel       string
	logFile        string
	port           string
	backendAddress string
	backendVersion string
	backendTimeout time.Duration
	waitForBackend time.Duration
	defaultModel   string
	modelDir       string
	dumpDir        string
	adapterType    string
}

// New returns the root command of the tfs-proxy.
// Flag defaults are taken from the SageMaker container environment.
func New() *cobra.Command {
	return newRootCmd(os.Getenv, afero.NewOsFs())
}

func newRootCmd(getenv func(string) string, fs afero.Fs) *cobra.Command {
	f := &flags{}
	env, envErr := config.EnvDefaults(getenv)

	cmd := &cobra.Command{
		Use:     "tfs-proxy",
		Short:   "The proxy serves the SageMaker inference API and translates invocations into TensorFlow Serving REST requests.",
		Args:    cobra.NoArgs,
		Version: constants.Version(),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if envErr != nil {
				return envErr
			}
			return runProxy(cmd, f, env, fs)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&f.logLevel, logging.Flag, logging.FlagShorthand, env.LogLevel,
		fmt.Sprintf("%s. Defaults to $%s.", logging.FlagInfo, constants.EnvLogLevel))
	cmd.PersistentFlags().StringVar(&f.logFile, "log-file", "", "If set, logs are additionally written to this file, which is rotated at 100 MB.")
	cmd.PersistentFlags().StringVar(&f.modelDir, "model-dir", constants.DefaultModelDir, "The directory SavedModel bundles are discovered in.")

	cmd.Flags().StringVar(&f.port, "port", env.Port, fmt.Sprintf("The port on which the proxy listens for invocations and pings. Defaults to $%s.", constants.EnvBindToPort))
	cmd.Flags().StringVar(&f.backendAddress, "backend-address", env.BackendAddress,
		fmt.Sprintf("The host:port of the TensorFlow Serving REST API. The default port is derived from $%s.", constants.EnvSafePortRange))
	cmd.Flags().StringVar(&f.backendVersion, "tfs-version", env.BackendVersion,
		fmt.Sprintf("The version of TensorFlow Serving. Version %s is health checked with a prediction request. Defaults to $%s.", constants.TFSLegacyPingVersion, constants.EnvTFSVersion))
	cmd.Flags().DurationVar(&f.backendTimeout, "backend-timeout", 60*time.Second, "Timeout for requests to TensorFlow Serving. 0 disables the timeout.")
	cmd.Flags().DurationVar(&f.waitForBackend, "wait-for-backend", 0, "If set, wait up to this long for the default model to become available before serving requests.")
	cmd.Flags().StringVar(&f.defaultModel, "default-model", env.DefaultModel,
		fmt.Sprintf("The model used for requests not selecting one. Defaults to $%s or the first model found in --model-dir.", constants.EnvDefaultModelName))
	cmd.Flags().StringVar(&f.dumpDir, "dump-dir", "", "If set, all requests and responses are written to this directory. Only intended for debugging.")
	must(cmd.Flags().MarkHidden("dump-dir"))
	cmd.Flags().StringVar(&f.adapterType, "adapter", config.AdapterSageMaker,
		fmt.Sprintf("The inference API served by the proxy (%s, %s).", config.AdapterSageMaker, config.AdapterPassthrough))

	cmd.AddCommand(newModelConfigCmd(f, fs))
	cmd.AddCommand(newBatchingConfigCmd(f, config.BatchingFromEnv(getenv), fs))
	return cmd
}

func runProxy(cmd *cobra.Command, f *flags, env config.Env, fs afero.Fs) error {
	log := logging.New(f.logLevel, cmd.ErrOrStderr(), f.logFile)
	log.Info("TFS proxy", "version", constants.Version())

	// Preliminary check if the adapter type is supported
	if !adapter.IsSupportedInferenceAPI(f.adapterType) {
		return fmt.Errorf("unsupported adapter type %q", f.adapterType)
	}

	cfg, err := f.config(fs, log)
	if err != nil {
		return err
	}
	log.Info("Starting TFS proxy",
		"port", cfg.Port, "backendAddress", cfg.BackendAddress, "backendGRPCPort", env.GRPCPort, "backendVersion", cfg.BackendVersion,
		"defaultModel", cfg.DefaultModel, "adapter", cfg.Adapter)

	fwd := forwarder.New("tcp", cfg.BackendAddress, cfg.BackendTimeout, log)
	prober := health.New(fwd.Client(), fwd.URL(""), health.ModeForVersion(cfg.BackendVersion), log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(registry)

	if cfg.WaitForBackend > 0 && cfg.DefaultModel != "" {
		target := tfs.NewTarget(tfs.Attributes{}, cfg.DefaultModel)
		if err := waitForBackend(cmd.Context(), prober, target, cfg.WaitForBackend, log); err != nil {
			return fmt.Errorf("waiting for backend: %w", err)
		}
	}

	inferenceAdapter, err := adapter.New(cfg.Adapter, cfg.DefaultModel, fwd, prober, collector, log)
	if err != nil {
		return fmt.Errorf("creating adapter: %w", err)
	}
	srv := server.New(inferenceAdapter, collector, fs, cfg.DumpDir, log)

	lis, err := net.Listen("tcp", net.JoinHostPort("", cfg.Port))
	if err != nil {
		return fmt.Errorf("listening on port %q: %w", cfg.Port, err)
	}
	if err := srv.Serve(cmd.Context(), lis); err != nil {
		log.Error("Server exited", "error", err)
		return err
	}
	log.Info("Server stopped")
	return nil
}

// config builds the proxy configuration from the flags.
// The default model is discovered in the model directory if it was not set.
func (f *flags) config(fs afero.Fs, log *slog.Logger) (config.Config, error) {
	cfg := config.Config{
		Port:           f.port,
		BackendAddress: f.backendAddress,
		BackendVersion: f.backendVersion,
		BackendTimeout: f.backendTimeout,
		WaitForBackend: f.waitForBackend,
		DefaultModel:   f.defaultModel,
		ModelDir:       f.modelDir,
		DumpDir:        f.dumpDir,
		Adapter:        strings.ToLower(f.adapterType),
	}

	if cfg.DefaultModel == "" && cfg.Adapter == config.AdapterSageMaker {
		model, err := config.DefaultModel(fs, cfg.ModelDir)
		if err != nil {
			return config.Config{}, fmt.Errorf("discovering default model: %w", err)
		}
		log.Info("Using default model name", "model", model)
		cfg.DefaultModel = model
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
