// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: GPL-3.0-only

package health

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edgelesssys/sagemaker-tfs/internal/tfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const availableStatus = `{
 "model_version_status": [
  {
   "version": "123",
   "state": "AVAILABLE",
   "status": {
    "error_code": "OK",
    "error_message": ""
   }
  }
 ]
}`

func TestProbe(t *testing.T) {
	testCases := map[string]struct {
		mode          Mode
		backendStatus int
		backendBody   string
		wantMethod    string
		wantPath      string
		wantErr       bool
	}{
		"standard available": {
			mode:          ModeStandard,
			backendStatus: http.StatusOK,
			backendBody:   availableStatus,
			wantMethod:    http.MethodGet,
			wantPath:      "/v1/models/half_plus_three",
		},
		"standard loading": {
			mode:          ModeStandard,
			backendStatus: http.StatusOK,
			backendBody:   `{"model_version_status":[{"version":"123","state":"LOADING"}]}`,
			wantMethod:    http.MethodGet,
			wantPath:      "/v1/models/half_plus_three",
			wantErr:       true,
		},
		"standard not found": {
			mode:          ModeStandard,
			backendStatus: http.StatusNotFound,
			backendBody:   `{"error": "Could not find any versions of model half_plus_three"}`,
			wantMethod:    http.MethodGet,
			wantPath:      "/v1/models/half_plus_three",
			wantErr:       true,
		},
		"standard error with AVAILABLE in body": {
			mode:          ModeStandard,
			backendStatus: http.StatusInternalServerError,
			backendBody:   `"AVAILABLE"`,
			wantMethod:    http.MethodGet,
			wantPath:      "/v1/models/half_plus_three",
			wantErr:       true,
		},
		"legacy bad request is healthy": {
			mode:          ModeLegacy,
			backendStatus: http.StatusBadRequest,
			backendBody:   `{"error": "JSON Value: \"invalid\" Is not an array"}`,
			wantMethod:    http.MethodPost,
			wantPath:      "/v1/models/half_plus_three:predict",
		},
		"legacy ok is healthy": {
			mode:          ModeLegacy,
			backendStatus: http.StatusOK,
			backendBody:   `{"predictions": []}`,
			wantMethod:    http.MethodPost,
			wantPath:      "/v1/models/half_plus_three:predict",
		},
		"legacy server error": {
			mode:          ModeLegacy,
			backendStatus: http.StatusInternalServerError,
			wantMethod:    http.MethodPost,
			wantPath:      "/v1/models/half_plus_three:predict",
			wantErr:       true,
		},
		"legacy not found": {
			mode:          ModeLegacy,
			backendStatus: http.StatusNotFound,
			wantMethod:    http.MethodPost,
			wantPath:      "/v1/models/half_plus_three:predict",
			wantErr:       true,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			type captured struct{ method, path, body string }
			requests := make(chan captured, 1)
			backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				requests <- captured{method: r.Method, path: r.URL.Path, body: string(body)}
				w.WriteHeader(tc.backendStatus)
				_, _ = w.Write([]byte(tc.backendBody))
			}))
			defer backend.Close()

			prober := New(backend.Client(), backend.URL+"/", tc.mode, slog.Default())
			target := tfs.NewTarget(tfs.Attributes{}, "half_plus_three")

			err := prober.Probe(t.Context(), target)
			if tc.wantErr {
				assert.ErrorIs(err, ErrProbeFailed)
			} else {
				assert.NoError(err)
			}

			got := <-requests
			assert.Equal(tc.wantMethod, got.method)
			assert.Equal(tc.wantPath, got.path)
			if tc.mode == ModeLegacy {
				assert.Equal(legacyProbeBody, got.body)
			} else {
				assert.Empty(got.body)
			}
		})
	}
}

func TestProbeVersionedTarget(t *testing.T) {
	paths := make(chan string, 1)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		_, _ = w.Write([]byte(availableStatus))
	}))
	defer backend.Close()

	prober := New(backend.Client(), backend.URL, ModeStandard, slog.Default())
	target := tfs.NewTarget(tfs.ParseAttributes("tfs-model-name=foo,tfs-model-version=7,tfs-method=classify"), "default")

	require.NoError(t, prober.Probe(t.Context(), target))
	assert.Equal(t, "/v1/models/foo/versions/7", <-paths)
}

func TestHealthCheckEscapesModelName(t *testing.T) {
	testCases := map[string]struct {
		mode     Mode
		wantPath string
	}{
		"standard": {mode: ModeStandard, wantPath: "/v1/models/a%b"},
		"legacy":   {mode: ModeLegacy, wantPath: "/v1/models/a%b:predict"},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			paths := make(chan string, 1)
			backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				paths <- r.URL.Path
				_, _ = w.Write([]byte(availableStatus))
			}))
			defer backend.Close()

			prober := New(backend.Client(), backend.URL, tc.mode, slog.Default())
			target := tfs.NewTarget(tfs.ParseAttributes("tfs-model-name=a%b"), "default")

			require.NoError(t, prober.Probe(t.Context(), target))
			assert.Equal(t, tc.wantPath, <-paths)
		})
	}
}

func TestProbeUnreachableBackend(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	url := backend.URL
	backend.Close()

	prober := New(http.DefaultClient, url, ModeStandard, slog.Default())
	err := prober.Probe(t.Context(), tfs.NewTarget(tfs.Attributes{}, "m"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrProbeFailed)
}

func TestModeForVersion(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(ModeLegacy, ModeForVersion("1.11"))
	assert.Equal(ModeStandard, ModeForVersion("1.12"))
	assert.Equal(ModeStandard, ModeForVersion("2.16"))
	assert.Equal(ModeStandard, ModeForVersion(""))
}

func TestModelStates(t *testing.T) {
	assert := assert.New(t)
	assert.Equal([]string{"AVAILABLE"}, modelStates([]byte(availableStatus)))
	assert.Nil(modelStates([]byte(`not json`)))
}
