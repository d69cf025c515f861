// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: GPL-3.0-only

/*
Package payload converts invocation request bodies into the JSON envelope accepted by TensorFlow Serving.

Classification matches a few patterns against the raw text and never parses it.
Invalid input is passed on and rejected by the backend.
*/
package payload

import (
	"errors"
	"fmt"
	"mime"
	"regexp"
)

// Content types accepted for invocations.
const (
	ContentTypeJSON      = "application/json"
	ContentTypeJSONLines = "application/jsonlines"
	ContentTypeJSONs     = "application/jsons"
	ContentTypeCSV       = "text/csv"
)

// ErrUnsupportedMediaType is returned for content types that cannot be converted.
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// Format is the wire format of a request body.
type Format int

const (
	// FormatJSON is a single JSON value, wrapped into a batch before sending.
	FormatJSON Format = iota
	// FormatJSONLines are multiple JSON values juxtaposed without array syntax.
	FormatJSONLines
	// FormatTFS is a body already using the TensorFlow Serving envelope.
	FormatTFS
	// FormatCSV are comma separated rows.
	FormatCSV
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatJSONLines:
		return "jsonlines"
	case FormatTFS:
		return "tfs"
	case FormatCSV:
		return "csv"
	default:
		return "unknown"
	}
}

var (
	// a closing brace or bracket followed by an opening one means several values separated only by whitespace
	jsonLinesPattern = regexp.MustCompile(`[}\]]\s*[\[{]`)
	tfsJSONPattern   = regexp.MustCompile(`"(instances|inputs|examples)"\s*:`)
)

// Body is a request body together with its detected format.
type Body struct {
	Format Format
	Raw    []byte
}

// Classify determines the format of the given body.
// contentType may carry parameters such as a charset, which are ignored.
// An empty or unsupported content type returns an error wrapping [ErrUnsupportedMediaType].
func Classify(contentType string, body []byte) (Body, error) {
	switch mediaType(contentType) {
	case ContentTypeJSON, ContentTypeJSONLines, ContentTypeJSONs:
		return Body{Format: classifyJSON(body), Raw: body}, nil
	case ContentTypeCSV:
		return Body{Format: FormatCSV, Raw: body}, nil
	}
	return Body{}, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, contentType)
}

// classifyJSON checks for JSON lines before the native envelope.
// A batch of native envelopes sent as JSON lines must still be joined.
func classifyJSON(body []byte) Format {
	switch {
	case jsonLinesPattern.Match(body):
		return FormatJSONLines
	case tfsJSONPattern.Match(body):
		return FormatTFS
	default:
		return FormatJSON
	}
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mt
}
