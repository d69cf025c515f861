// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: GPL-3.0-only

package forwarder

import (
	"bytes"
	"io"
	"net/http"
)

var (
	escapedInstances = []byte(`\'instances\'`)
	fixedInstances   = []byte(`'instances'`)
)

// WithJSONBody returns a [RequestMutator] which replaces method, path and body of the request.
// The request is sent as JSON.
func WithJSONBody(method, path string, body []byte) RequestMutator {
	return func(r *http.Request) error {
		r.Method = method
		r.URL.Path = path
		r.URL.RawPath = ""
		r.URL.RawQuery = ""
		r.Header.Set("Content-Type", "application/json")
		r.ContentLength = int64(len(body))
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		return nil
	}
}

// FixEscapedInstances repairs the invalid escaping of \'instances\' in error messages of TensorFlow Serving.
// Only bodies of 400 responses are touched.
func FixEscapedInstances(status int, body []byte) ([]byte, error) {
	if status != http.StatusBadRequest {
		return body, nil
	}
	return bytes.Replace(body, escapedInstances, fixedInstances, 1), nil
}

// ChainResponseMutators returns a [ResponseMutator] applying the given mutators in order.
func ChainResponseMutators(mutators ...ResponseMutator) ResponseMutator {
	return func(status int, body []byte) ([]byte, error) {
		var err error
		for _, mutate := range mutators {
			if body, err = mutate(status, body); err != nil {
				return nil, err
			}
		}
		return body, nil
	}
}
