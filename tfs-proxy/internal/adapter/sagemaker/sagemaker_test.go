package sagemaker

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edgelesssys/sagemaker-tfs/internal/constants"
	"github.com/edgelesssys/sagemaker-tfs/internal/forwarder"
	"github.com/edgelesssys/sagemaker-tfs/internal/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backendRequest struct {
	method      string
	path        string
	contentType string
	body        string
}

type stubObserver struct {
	mu       sync.Mutex
	payloads []string
	statuses []int
	pings    []bool
}

func (o *stubObserver) ObservePayload(format string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.payloads = append(o.payloads, format)
}

func (o *stubObserver) ObserveBackendResponse(status int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func (o *stubObserver) ObserveBackendDuration(time.Duration) {}

func (o *stubObserver) ObservePing(_ string, healthy bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pings = append(o.pings, healthy)
}

// newTestAdapter returns an adapter talking to a backend which answers every request with the given status and body.
func newTestAdapter(t *testing.T, mode health.Mode, status int, body string) (*Adapter, <-chan backendRequest, *stubObserver) {
	t.Helper()
	requests := make(chan backendRequest, 10)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqBody, _ := io.ReadAll(r.Body)
		requests <- backendRequest{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        string(reqBody),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(backend.Close)

	fwd := forwarder.NewWithClient(backend.Client(), strings.TrimPrefix(backend.URL, "http://"), forwarder.SchemeHTTP, slog.Default())
	prober := health.New(backend.Client(), backend.URL, mode, slog.Default())
	observer := &stubObserver{}
	return New("half_plus_three", fwd, prober, observer, slog.Default()), requests, observer
}

func TestInvocations(t *testing.T) {
	testCases := map[string]struct {
		contentType   string
		attributes    string
		body          string
		backendStatus int
		backendBody   string
		wantPath      string
		wantBody      string
		wantFormat    string
		wantStatus    int
		wantResponse  string
	}{
		"json object": {
			contentType:   "application/json",
			body:          `{"x": 1.0}`,
			backendStatus: http.StatusOK,
			backendBody:   `{"predictions": [3.5]}`,
			wantPath:      "/v1/models/half_plus_three:predict",
			wantBody:      `{"instances":[{"x": 1.0}]}`,
			wantFormat:    "json",
			wantStatus:    http.StatusOK,
			wantResponse:  `{"predictions": [3.5]}`,
		},
		"native request with attributes": {
			contentType:   "application/json",
			attributes:    "tfs-model-name=cifar,tfs-model-version=7,tfs-method=classify",
			body:          `{"instances": [1.0, 2.0]}`,
			backendStatus: http.StatusOK,
			backendBody:   `{"results": []}`,
			wantPath:      "/v1/models/cifar/versions/7:classify",
			wantBody:      `{"instances": [1.0, 2.0]}`,
			wantFormat:    "tfs",
			wantStatus:    http.StatusOK,
			wantResponse:  `{"results": []}`,
		},
		"json lines": {
			contentType:   "application/jsonlines",
			body:          "[1.0, 2.0]\n[3.0, 4.0]\n",
			backendStatus: http.StatusOK,
			backendBody:   `{"predictions": [1, 2]}`,
			wantPath:      "/v1/models/half_plus_three:predict",
			wantBody:      `{"instances":[[1.0, 2.0],[3.0, 4.0]]}`,
			wantFormat:    "jsonlines",
			wantStatus:    http.StatusOK,
			wantResponse:  `{"predictions": [1, 2]}`,
		},
		"csv with content type parameters": {
			contentType:   "text/csv; charset=utf-8",
			body:          "1.0,2.0\n3.0,4.0",
			backendStatus: http.StatusOK,
			backendBody:   `{"predictions": [1, 2]}`,
			wantPath:      "/v1/models/half_plus_three:predict",
			wantBody:      `{"instances":[[1.0,2.0],[3.0,4.0]]}`,
			wantFormat:    "csv",
			wantStatus:    http.StatusOK,
			wantResponse:  `{"predictions": [1, 2]}`,
		},
		"backend error is relayed": {
			contentType:   "application/json",
			body:          `[1.0]`,
			backendStatus: http.StatusInternalServerError,
			backendBody:   `{"error": "internal"}`,
			wantPath:      "/v1/models/half_plus_three:predict",
			wantBody:      `{"instances":[[1.0]]}`,
			wantFormat:    "json",
			wantStatus:    http.StatusInternalServerError,
			wantResponse:  `{"error": "internal"}`,
		},
		"escaped instances are fixed on bad request": {
			contentType:   "application/json",
			body:          `[1.0]`,
			backendStatus: http.StatusBadRequest,
			backendBody:   `{"error": "Missing \'instances\' key"}`,
			wantPath:      "/v1/models/half_plus_three:predict",
			wantBody:      `{"instances":[[1.0]]}`,
			wantFormat:    "json",
			wantStatus:    http.StatusBadRequest,
			wantResponse:  `{"error": "Missing 'instances' key"}`,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			adapter, requests, observer := newTestAdapter(t, health.ModeStandard, tc.backendStatus, tc.backendBody)

			req := httptest.NewRequest(http.MethodPost, InvocationsPath, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", tc.contentType)
			if tc.attributes != "" {
				req.Header.Set(constants.CustomAttributesHeader, tc.attributes)
			}
			rr := httptest.NewRecorder()
			adapter.ServeMux().ServeHTTP(rr, req)

			assert.Equal(tc.wantStatus, rr.Code)
			assert.Equal(tc.wantResponse, rr.Body.String())

			require.Len(requests, 1)
			got := <-requests
			assert.Equal(http.MethodPost, got.method)
			assert.Equal(tc.wantPath, got.path)
			assert.Equal("application/json", got.contentType)
			assert.Equal(tc.wantBody, got.body)

			assert.Equal([]string{tc.wantFormat}, observer.payloads)
			assert.Equal([]int{tc.backendStatus}, observer.statuses)
		})
	}
}

func TestInvocationsUnsupportedMediaType(t *testing.T) {
	testCases := map[string]struct {
		contentType string
		wantError   string
	}{
		"plain text": {
			contentType: "text/plain",
			wantError:   `{"error":"Unsupported Media Type: text/plain"}`,
		},
		"missing content type": {
			wantError: `{"error":"Unsupported Media Type: Unknown"}`,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			adapter, requests, observer := newTestAdapter(t, health.ModeStandard, http.StatusOK, "")

			req := httptest.NewRequest(http.MethodPost, InvocationsPath, strings.NewReader("1.0"))
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}
			rr := httptest.NewRecorder()
			adapter.ServeMux().ServeHTTP(rr, req)

			assert.Equal(http.StatusUnsupportedMediaType, rr.Code)
			assert.JSONEq(tc.wantError, rr.Body.String())
			assert.Empty(requests)
			assert.Empty(observer.payloads)
		})
	}
}

func TestInvocationsUnreachableBackend(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	address := strings.TrimPrefix(backend.URL, "http://")
	backend.Close()

	fwd := forwarder.NewWithClient(http.DefaultClient, address, forwarder.SchemeHTTP, slog.Default())
	adapter := New("m", fwd, health.New(http.DefaultClient, "http://"+address, health.ModeStandard, slog.Default()), &stubObserver{}, slog.Default())

	req := httptest.NewRequest(http.MethodPost, InvocationsPath, strings.NewReader("[1]"))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	adapter.ServeMux().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestPing(t *testing.T) {
	testCases := map[string]struct {
		mode          health.Mode
		attributes    string
		backendStatus int
		backendBody   string
		wantMethod    string
		wantPath      string
		wantStatus    int
	}{
		"model available": {
			mode:          health.ModeStandard,
			backendStatus: http.StatusOK,
			backendBody:   `{"model_version_status": [{"version": "1", "state": "AVAILABLE"}]}`,
			wantMethod:    http.MethodGet,
			wantPath:      "/v1/models/half_plus_three",
			wantStatus:    http.StatusOK,
		},
		"model loading": {
			mode:          health.ModeStandard,
			backendStatus: http.StatusOK,
			backendBody:   `{"model_version_status": [{"version": "1", "state": "LOADING"}]}`,
			wantMethod:    http.MethodGet,
			wantPath:      "/v1/models/half_plus_three",
			wantStatus:    http.StatusBadGateway,
		},
		"model selected by attributes": {
			mode:          health.ModeStandard,
			attributes:    "tfs-model-name=cifar,tfs-model-version=2",
			backendStatus: http.StatusOK,
			backendBody:   `{"model_version_status": [{"version": "2", "state": "AVAILABLE"}]}`,
			wantMethod:    http.MethodGet,
			wantPath:      "/v1/models/cifar/versions/2",
			wantStatus:    http.StatusOK,
		},
		"legacy bad request is healthy": {
			mode:          health.ModeLegacy,
			backendStatus: http.StatusBadRequest,
			backendBody:   `{"error": "invalid"}`,
			wantMethod:    http.MethodPost,
			wantPath:      "/v1/models/half_plus_three:predict",
			wantStatus:    http.StatusOK,
		},
		"legacy server error": {
			mode:          health.ModeLegacy,
			backendStatus: http.StatusInternalServerError,
			wantMethod:    http.MethodPost,
			wantPath:      "/v1/models/half_plus_three:predict",
			wantStatus:    http.StatusBadGateway,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			adapter, requests, observer := newTestAdapter(t, tc.mode, tc.backendStatus, tc.backendBody)

			req := httptest.NewRequest(http.MethodGet, PingPath, nil)
			if tc.attributes != "" {
				req.Header.Set(constants.CustomAttributesHeader, tc.attributes)
			}
			rr := httptest.NewRecorder()
			adapter.ServeMux().ServeHTTP(rr, req)

			assert.Equal(tc.wantStatus, rr.Code)
			assert.Empty(rr.Body.String())

			got := <-requests
			assert.Equal(tc.wantMethod, got.method)
			assert.Equal(tc.wantPath, got.path)
			assert.Equal([]bool{tc.wantStatus == http.StatusOK}, observer.pings)
		})
	}
}

func TestServeMuxRouting(t *testing.T) {
	testCases := map[string]struct {
		method     string
		path       string
		wantStatus int
	}{
		"get invocations": {method: http.MethodGet, path: InvocationsPath, wantStatus: http.StatusMethodNotAllowed},
		"post ping":       {method: http.MethodPost, path: PingPath, wantStatus: http.StatusMethodNotAllowed},
		"unknown path":    {method: http.MethodGet, path: "/v1/models/half_plus_three", wantStatus: http.StatusNotFound},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			adapter, requests, _ := newTestAdapter(t, health.ModeStandard, http.StatusOK, "")

			rr := httptest.NewRecorder()
			adapter.ServeMux().ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))

			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Empty(t, requests)
		})
	}
}
