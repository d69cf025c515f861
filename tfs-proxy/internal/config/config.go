// Package config holds the configuration of the TFS proxy and discovers the models it serves.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/edgelesssys/sagemaker-tfs/internal/constants"
	"github.com/edgelesssys/sagemaker-tfs/internal/logging"
	"github.com/go-playground/validator/v10"
)

const (
	// AdapterSageMaker transcodes SageMaker invocations into TensorFlow Serving requests.
	AdapterSageMaker = "sagemaker"
	// AdapterPassthrough forwards every request to the backend as it is.
	AdapterPassthrough = "passthrough"
)

// Config is the configuration of the proxy. It is built once at start-up and not modified afterwards.
type Config struct {
	// Port the proxy listens on.
	Port string `validate:"required,numeric"`
	// BackendAddress is the host:port of the TensorFlow Serving REST API.
	BackendAddress string `validate:"required,hostname_port"`
	// BackendVersion of TensorFlow Serving. Decides how health checks are performed.
	BackendVersion string `validate:"required"`
	// BackendTimeout limits requests to the backend. Zero disables the limit.
	BackendTimeout time.Duration `validate:"gte=0"`
	// WaitForBackend is how long to wait for the backend to become healthy before serving. Zero disables waiting.
	WaitForBackend time.Duration `validate:"gte=0"`
	// DefaultModel is used if a request does not select a model. Only required by the SageMaker adapter.
	DefaultModel string `validate:"required_if=Adapter sagemaker"`
	// ModelDir is searched for SavedModel bundles if no default model is configured.
	ModelDir string
	// DumpDir enables dumping of requests and responses if set.
	DumpDir string
	// Adapter selects the inference API served by the proxy.
	Adapter string `validate:"oneof=sagemaker passthrough"`
}

// Validate checks that all fields hold usable values.
func (c Config) Validate() error {
	return validateStruct("config", c, nil)
}

// validateStruct validates v and joins all failed checks into one error.
// names maps struct fields to the names reported to the user, e.g. environment variables.
func validateStruct(what string, v any, names map[string]string) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(v); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			msgs := make([]string, 0, len(validationErrs))
			for _, fieldErr := range validationErrs {
				field := fieldErr.Field()
				if name, ok := names[field]; ok {
					field = name
				}
				msgs = append(msgs, fmt.Sprintf("%s: failed %q check on value %q", field, fieldErr.Tag(), fmt.Sprint(fieldErr.Value())))
			}
			return fmt.Errorf("invalid %s: %s", what, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("validating %s: %w", what, err)
	}
	return nil
}

// Env holds the defaults taken from the container environment.
type Env struct {
	Port           string
	BackendAddress string
	GRPCPort       string
	BackendVersion string
	DefaultModel   string
	LogLevel       string
}

// EnvDefaults reads the container environment through getenv, e.g. [os.Getenv].
// Unset variables fall back to the defaults of TensorFlow Serving and the proxy.
func EnvDefaults(getenv func(string) string) (Env, error) {
	env := Env{
		Port:           constants.ProxyDefaultPort,
		GRPCPort:       constants.TFSDefaultGRPCPort,
		BackendVersion: constants.TFSDefaultVersion,
		DefaultModel:   getenv(constants.EnvDefaultModelName),
		LogLevel:       logging.DefaultFlagValue,
	}
	restPort := constants.TFSDefaultRESTPort

	if port := getenv(constants.EnvBindToPort); port != "" {
		env.Port = port
	}
	if level := getenv(constants.EnvLogLevel); level != "" {
		env.LogLevel = level
	}
	if version := getenv(constants.EnvTFSVersion); version != "" {
		env.BackendVersion = version
	}
	if portRange := getenv(constants.EnvSafePortRange); portRange != "" {
		grpcPort, rest, err := PortsFromSafeRange(portRange)
		if err != nil {
			return Env{}, err
		}
		env.GRPCPort = grpcPort
		restPort = rest
	}

	env.BackendAddress = net.JoinHostPort("localhost", restPort)
	return env, nil
}

// PortsFromSafeRange assigns the backend ports from a "<low>-<high>" port range.
// The gRPC port is low and the REST port is low+1.
func PortsFromSafeRange(portRange string) (grpcPort, restPort string, err error) {
	lowStr, hiStr, ok := strings.Cut(portRange, "-")
	if !ok {
		return "", "", fmt.Errorf("parsing %s %q: expected <low>-<high>", constants.EnvSafePortRange, portRange)
	}
	low, err := strconv.Atoi(strings.TrimSpace(lowStr))
	if err != nil {
		return "", "", fmt.Errorf("parsing lower bound of %s: %w", constants.EnvSafePortRange, err)
	}
	hi, err := strconv.Atoi(strings.TrimSpace(hiStr))
	if err != nil {
		return "", "", fmt.Errorf("parsing upper bound of %s: %w", constants.EnvSafePortRange, err)
	}
	if low+2 > hi {
		return "", "", fmt.Errorf("not enough ports available in %s (%s)", constants.EnvSafePortRange, portRange)
	}
	return strconv.Itoa(low), strconv.Itoa(low + 1), nil
}
