/*
package passthrough implements an API adapter for debugging. It forwards all requests to TensorFlow Serving as they are.

The SageMaker endpoints are not available with this adapter.
*/
package passthrough

import (
	"log/slog"
	"net/http"

	"github.com/edgelesssys/sagemaker-tfs/internal/forwarder"
	"github.com/edgelesssys/sagemaker-tfs/internal/middleware"
)

type mutatingForwarder interface {
	Forward(http.ResponseWriter, *http.Request, forwarder.RequestMutator, forwarder.ResponseMutator, forwarder.HeaderMutator)
}

// Adapter forwards requests without translation.
type Adapter struct {
	forwarder mutatingForwarder
	log       *slog.Logger
}

// New creates a new passthrough Adapter.
func New(forwarder mutatingForwarder, log *slog.Logger) *Adapter {
	return &Adapter{
		forwarder: forwarder,
		log:       log,
	}
}

// ServeMux returns a handler forwarding every request to the backend.
func (a *Adapter) ServeMux() http.Handler {
	srv := http.NewServeMux()
	srv.HandleFunc("/", a.forwardRequest)
	return srv
}

func (a *Adapter) forwardRequest(w http.ResponseWriter, r *http.Request) {
	middleware.Logger(r.Context(), a.log).Debug("Passing request through", "path", r.URL.Path)
	a.forwarder.Forward(w, r, forwarder.NoRequestMutation, forwarder.NoResponseMutation, forwarder.NoHeaderMutation)
}
