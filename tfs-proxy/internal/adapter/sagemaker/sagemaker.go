/*
package sagemaker implements the SageMaker inference API on top of TensorFlow Serving.

Invocations are classified by content type and body, transcoded into a TensorFlow Serving
request envelope and sent to the model selected by the X-Amzn-SageMaker-Custom-Attributes header.
Pings check that the selected model is loaded.
*/
package sagemaker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/edgelesssys/sagemaker-tfs/internal/constants"
	"github.com/edgelesssys/sagemaker-tfs/internal/forwarder"
	"github.com/edgelesssys/sagemaker-tfs/internal/health"
	"github.com/edgelesssys/sagemaker-tfs/internal/middleware"
	"github.com/edgelesssys/sagemaker-tfs/internal/payload"
	"github.com/edgelesssys/sagemaker-tfs/internal/tfs"
)

const (
	// InvocationsPath is the endpoint prediction requests are sent to.
	InvocationsPath = "/invocations"
	// PingPath is the endpoint used by the platform to check liveness of the container.
	PingPath = "/ping"
)

type mutatingForwarder interface {
	Forward(http.ResponseWriter, *http.Request, forwarder.RequestMutator, forwarder.ResponseMutator, forwarder.HeaderMutator)
}

// Prober checks whether the backend serves a target.
type Prober interface {
	Probe(context.Context, tfs.Target) error
	Mode() health.Mode
}

// Observer records metrics of invocations and pings.
type Observer interface {
	ObservePayload(format string)
	ObserveBackendResponse(status int)
	ObserveBackendDuration(duration time.Duration)
	ObservePing(mode string, healthy bool)
}

// Adapter implements an InferenceAdapter for the SageMaker inference API.
type Adapter struct {
	defaultModel string
	forwarder    mutatingForwarder
	prober       Prober
	metrics      Observer

	log *slog.Logger
}

// New creates a new SageMaker adapter.
// defaultModel is used for requests not selecting a model through the custom attributes header.
func New(defaultModel string, forwarder mutatingForwarder, prober Prober, metrics Observer, log *slog.Logger) *Adapter {
	return &Adapter{
		defaultModel: defaultModel,
		forwarder:    forwarder,
		prober:       prober,
		metrics:      metrics,
		log:          log,
	}
}

// ServeMux returns a multiplexer serving the SageMaker endpoints.
func (a *Adapter) ServeMux() http.Handler {
	srv := http.NewServeMux()
	srv.HandleFunc("POST "+InvocationsPath, a.invocationsHandler)
	srv.HandleFunc("GET "+PingPath, a.pingHandler)
	return srv
}

func (a *Adapter) invocationsHandler(w http.ResponseWriter, r *http.Request) {
	log := middleware.Logger(r.Context(), a.log)

	contentType := r.Header.Get("Content-Type")
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("Failed reading request body", "error", err)
		forwarder.HTTPError(w, http.StatusBadRequest, "reading request body: %s", err)
		return
	}

	body, err := payload.Classify(contentType, raw)
	if errors.Is(err, payload.ErrUnsupportedMediaType) {
		if contentType == "" {
			contentType = "Unknown"
		}
		log.Warn("Rejecting invocation", "error", err)
		forwarder.HTTPError(w, http.StatusUnsupportedMediaType, "Unsupported Media Type: %s", contentType)
		return
	} else if err != nil {
		log.Error("Failed classifying payload", "error", err)
		forwarder.HTTPError(w, http.StatusInternalServerError, "classifying payload: %s", err)
		return
	}
	a.metrics.ObservePayload(body.Format.String())

	envelope, err := body.Envelope()
	if err != nil {
		log.Error("Failed creating request envelope", "error", err)
		forwarder.HTTPError(w, http.StatusInternalServerError, "creating request envelope: %s", err)
		return
	}

	target := a.target(r)
	log.Debug("Invoking model", "format", body.Format, "target", target.Path(true))

	start := time.Now()
	a.forwarder.Forward(
		w, r,
		forwarder.WithJSONBody(http.MethodPost, target.Path(true), envelope),
		forwarder.ChainResponseMutators(a.observeBackendResponse, forwarder.FixEscapedInstances),
		forwarder.NoHeaderMutation,
	)
	a.metrics.ObserveBackendDuration(time.Since(start))
}

func (a *Adapter) pingHandler(w http.ResponseWriter, r *http.Request) {
	target := a.target(r)
	err := a.prober.Probe(r.Context(), target)
	a.metrics.ObservePing(string(a.prober.Mode()), err == nil)
	if err != nil {
		if !errors.Is(err, health.ErrProbeFailed) {
			middleware.Logger(r.Context(), a.log).Error("Failed ping", "target", target.Path(false), "error", err)
		}
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// target resolves the backend target from the custom attributes of the request.
func (a *Adapter) target(r *http.Request) tfs.Target {
	attrs := tfs.ParseAttributes(r.Header.Get(constants.CustomAttributesHeader))
	return tfs.NewTarget(attrs, a.defaultModel)
}

func (a *Adapter) observeBackendResponse(status int, body []byte) ([]byte, error) {
	a.metrics.ObserveBackendResponse(status)
	return body, nil
}
