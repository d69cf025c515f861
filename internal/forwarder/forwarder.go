// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: GPL-3.0-only

// package forwarder is used to forward http requests to the TensorFlow Serving REST API.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/sjson"
)

// SchemeHTTP is the protocol scheme of the TensorFlow Serving REST API.
const SchemeHTTP ProtocolScheme = "http"

// ProtocolScheme is the protocol scheme used for the forwarding.
type ProtocolScheme string

// RequestMutator mutates an [*http.Request] before it is sent to the backend.
type RequestMutator func(request *http.Request) error

// ResponseMutator mutates the body of a backend response before it is relayed to the client.
// status is the status code returned by the backend.
type ResponseMutator func(status int, body []byte) ([]byte, error)

// HeaderMutator mutates a [http.Header].
// response is the header object of the response. Writes should usually go here.
// request is the header object of the request.
type HeaderMutator func(response http.Header, request http.Header) error

// NoRequestMutation skips any mutation on the [*http.Request].
func NoRequestMutation(*http.Request) error { return nil }

// NoResponseMutation returns the given body without any mutation.
func NoResponseMutation(_ int, body []byte) ([]byte, error) { return body, nil }

// NoHeaderMutation skips any mutation on the [*http.Header].
func NoHeaderMutation(http.Header, http.Header) error { return nil }

// Forwarder implements a simple http proxy to forward http requests to a single backend.
type Forwarder struct {
	client         *http.Client
	log            *slog.Logger
	host           string
	protocolScheme ProtocolScheme
}

// New sets up a new http forwarding proxy.
// Requests to the backend are aborted after the given timeout. A zero timeout disables the limit.
func New(network, address string, timeout time.Duration, log *slog.Logger) *Forwarder {
	host := address
	if network == "unix" {
		host = "unix"
	}

	dialer := &net.Dialer{}
	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, address)
			},
		},
		Timeout: timeout,
	}
	return NewWithClient(client, host, SchemeHTTP, log)
}

// NewWithClient sets up a new forwarding proxy with a custom http client.
func NewWithClient(client *http.Client, address string, scheme ProtocolScheme, log *slog.Logger) *Forwarder {
	return &Forwarder{
		client:         client,
		log:            log,
		host:           address,
		protocolScheme: scheme,
	}
}

// Client returns the http client used to reach the backend.
func (f *Forwarder) Client() *http.Client {
	return f.client
}

// URL returns the absolute backend URL for the given path.
func (f *Forwarder) URL(path string) string {
	return string(f.protocolScheme) + "://" + f.host + path
}

// Forward a request to the backend.
// The request is sent with the context of req, so canceling the client request aborts the backend call.
// Backend status codes and bodies are relayed as they are, after passing them through responseMutator.
// If the backend cannot be reached, the client receives [http.StatusBadGateway].
func (f *Forwarder) Forward(
	w http.ResponseWriter, req *http.Request,
	requestMutator RequestMutator, responseMutator ResponseMutator, headerMutator HeaderMutator,
) {
	log := f.log.With("remoteAddress", req.RemoteAddr, "method", req.Method, "url", req.URL.String())
	log.Debug("Forwarding request")

	// Prepare request for forwarding to server
	req.RequestURI = ""
	delHopHeaders(req.Header)
	updateForwardedHeader(req.Header, req.RemoteAddr)

	// Not setting the host here leads to "no Host in request URL" errors.
	req.URL.Host = f.host
	req.URL.Scheme = string(f.protocolScheme)

	if err := requestMutator(req); err != nil {
		log.Error("Failed to mutate request", "error", err)
		HTTPError(w, http.StatusInternalServerError, "mutating request: %s", err)
		return
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Connection closed by client before forwarding finished", "error", err)
		} else {
			log.Error("Failed to forward request", "error", err)
		}
		HTTPError(w, http.StatusBadGateway, "forwarding request: %s", err)
		return
	}
	defer resp.Body.Close()

	delHopHeaders(resp.Header)
	if err := headerMutator(resp.Header, req.Header); err != nil {
		log.Error("Failed to mutate header", "error", err)
		HTTPError(w, http.StatusInternalServerError, "mutating header: %s", err)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("Failed reading response body", "error", err)
		HTTPError(w, http.StatusBadGateway, "reading response body: %s", err)
		return
	}
	responseBody, err := responseMutator(resp.StatusCode, body)
	if err != nil {
		log.Error("Failed mutating response body", "error", err)
		HTTPError(w, http.StatusInternalServerError, "mutating response body: %s", err)
		return
	}

	for headerName, headerValues := range resp.Header {
		// the mutation may have changed the length of the body
		if headerName == "Content-Length" {
			continue
		}
		for _, headerValue := range headerValues {
			w.Header().Add(headerName, headerValue)
		}
	}

	// No further calls to WriteHeader, e.g. through [HTTPError], may be made after this.
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(responseBody); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Connection closed by client before forwarding finished", "error", err)
		} else {
			log.Error("Failed writing response to client", "error", err)
		}
		return
	}

	log.Debug("Forwarding finished successfully", "status", resp.StatusCode)
}

// delHopHeaders deletes hop-by-hop headers which should not be forwarded.
// See the HTTP RFC for more details: https://datatracker.ietf.org/doc/html/rfc9110#name-message-forwarding
func delHopHeaders(header http.Header) {
	hopHeaders := []string{
		"Connection",
		"Keep-Alive",
		"Proxy-Authenticate",
		"Proxy-Authorization",
		"Te",
		"Trailers",
		"Transfer-Encoding",
		"Upgrade",
	}
	for _, h := range hopHeaders {
		header.Del(h)
	}
}

// updateForwardedHeader updates the X-Forwarded-For header with the client's IP address.
func updateForwardedHeader(header http.Header, remoteAddr string) {
	if clientIP, _, err := net.SplitHostPort(remoteAddr); err == nil {
		if prior, ok := header["X-Forwarded-For"]; ok {
			clientIP = strings.Join(prior, ", ") + ", " + clientIP
		}
		header.Set("X-Forwarded-For", clientIP)
	}
}

// HTTPError writes a JSON error response of the form {"error": "<message>"} to the client.
func HTTPError(w http.ResponseWriter, code int, msg string, args ...any) {
	message := fmt.Sprintf(msg, args...)
	body, err := sjson.SetBytes([]byte(`{}`), "error", message)
	if err != nil {
		// Only fall back to non-JSON error when we cannot even marshal the error (which is pretty bad)
		body = []byte(message)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
