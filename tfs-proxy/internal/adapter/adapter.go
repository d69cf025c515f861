// Package adapter sets up an inference adapter for the given API type.
package adapter

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/edgelesssys/sagemaker-tfs/internal/forwarder"
	"github.com/edgelesssys/sagemaker-tfs/tfs-proxy/internal/adapter/passthrough"
	"github.com/edgelesssys/sagemaker-tfs/tfs-proxy/internal/adapter/sagemaker"
	"github.com/edgelesssys/sagemaker-tfs/tfs-proxy/internal/config"
)

// IsSupportedInferenceAPI returns whether the given API type can be served by the proxy.
func IsSupportedInferenceAPI(apiType string) bool {
	switch strings.ToLower(apiType) {
	case config.AdapterSageMaker, config.AdapterPassthrough:
		return true
	default:
		return false
	}
}

// New creates a new InferenceAdapter for the given API type.
func New(
	apiType string, defaultModel string, forwarder mutatingForwarder, prober sagemaker.Prober, metrics sagemaker.Observer, log *slog.Logger,
) (InferenceAdapter, error) {
	switch strings.ToLower(apiType) {
	case config.AdapterSageMaker:
		return sagemaker.New(defaultModel, forwarder, prober, metrics, log), nil
	case config.AdapterPassthrough:
		return passthrough.New(forwarder, log), nil
	default:
		return nil, fmt.Errorf("unknown API type %q", apiType)
	}
}

// InferenceAdapter translates requests of an inference API to requests to TensorFlow Serving.
type InferenceAdapter interface {
	ServeMux() http.Handler
}

type mutatingForwarder interface {
	Forward(http.ResponseWriter, *http.Request, forwarder.RequestMutator, forwarder.ResponseMutator, forwarder.HeaderMutator)
}
