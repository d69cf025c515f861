// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: GPL-3.0-only

// Package health checks whether the TensorFlow Serving backend is able to serve a model.
package health

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/edgelesssys/sagemaker-tfs/internal/constants"
	"github.com/edgelesssys/sagemaker-tfs/internal/tfs"
	"github.com/tidwall/gjson"
)

// ErrProbeFailed is returned if the backend did not answer a probe the way a healthy backend does.
var ErrProbeFailed = errors.New("backend probe failed")

// legacyProbeBody is a request the backend is expected to reject.
const legacyProbeBody = `{"instances": "invalid"}`

// Mode selects how liveness of the backend is determined.
type Mode string

const (
	// ModeStandard queries the model status and expects the model to be AVAILABLE.
	ModeStandard Mode = "standard"
	// ModeLegacy sends an invalid prediction request.
	// TensorFlow Serving 1.11 does not report model status reliably,
	// but parsing and rejecting the request shows the model is loaded.
	ModeLegacy Mode = "legacy"
)

// ModeForVersion returns the probe mode for the given backend version.
func ModeForVersion(version string) Mode {
	if version == constants.TFSLegacyPingVersion {
		return ModeLegacy
	}
	return ModeStandard
}

// Prober checks liveness of the backend.
type Prober struct {
	client  httpClient
	baseURL string
	mode    Mode
	log     *slog.Logger
}

type httpClient interface {
	Do(*http.Request) (*http.Response, error)
}

// New returns a new Prober sending requests to baseURL, e.g. "http://localhost:8501".
func New(client httpClient, baseURL string, mode Mode, log *slog.Logger) *Prober {
	return &Prober{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		mode:    mode,
		log:     log,
	}
}

// Mode returns the mode of the prober.
func (p *Prober) Mode() Mode {
	return p.mode
}

// Probe checks whether the backend serves the given target.
// It returns an error wrapping [ErrProbeFailed] if the backend answered, but not like a healthy backend.
// Other errors are returned if the backend could not be reached.
func (p *Prober) Probe(ctx context.Context, target tfs.Target) error {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return fmt.Errorf("parsing backend URL: %w", err)
	}

	var req *http.Request
	switch p.mode {
	case ModeLegacy:
		u.Path = target.Path(true)
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewBufferString(legacyProbeBody))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	default:
		u.Path = target.Path(false)
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	}
	if err != nil {
		return fmt.Errorf("creating probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending probe request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading probe response: %w", err)
	}

	if p.healthy(resp.StatusCode, body) {
		return nil
	}
	p.log.Error("Failed ping", "mode", p.mode, "path", req.URL.Path, "status", resp.StatusCode,
		"states", modelStates(body), "body", string(body))
	return fmt.Errorf("%w: status %d: %s", ErrProbeFailed, resp.StatusCode, body)
}

func (p *Prober) healthy(status int, body []byte) bool {
	switch p.mode {
	case ModeLegacy:
		// 400: model is up, but the input was invalid; 200: the invalid input was accepted anyway
		return status == http.StatusOK || status == http.StatusBadRequest
	default:
		return status == http.StatusOK && bytes.Contains(body, []byte(`"AVAILABLE"`))
	}
}

// modelStates extracts the version states reported by the model status API for logging.
func modelStates(body []byte) []string {
	var states []string
	for _, state := range gjson.GetBytes(body, "model_version_status.#.state").Array() {
		states = append(states, state.String())
	}
	return states
}
