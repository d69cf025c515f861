// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: GPL-3.0-only

package payload

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/tidwall/sjson"
)

var (
	batchPattern = regexp.MustCompile(`^\s*\[\s*\[`)
	// csvLiteralPattern matches bodies starting with a quoted field or a number followed by a comma.
	// Fields of such bodies are inserted as-is, all other bodies get their fields quoted.
	csvLiteralPattern = regexp.MustCompile(`^\s*("|[\d.Ee+\-]+\s*,)`)
)

// Envelope converts the body into a request body for TensorFlow Serving.
// Invalid input results in an invalid envelope, which is rejected by the backend.
func (b Body) Envelope() ([]byte, error) {
	var batch []byte
	switch b.Format {
	case FormatTFS:
		return b.Raw, nil
	case FormatJSONLines:
		batch = batchFromJSONLines(b.Raw)
	case FormatCSV:
		batch = batchFromCSV(b.Raw)
	default:
		batch = batchFromJSON(b.Raw)
	}

	envelope, err := sjson.SetRawBytes([]byte(`{}`), "instances", batch)
	if err != nil {
		return nil, fmt.Errorf("setting instances: %w", err)
	}
	return envelope, nil
}

// batchFromJSON wraps a single instance into a batch of one.
// Bodies that already are a list of lists are used as the batch directly.
func batchFromJSON(data []byte) []byte {
	if batchPattern.Match(data) {
		return data
	}
	batch := make([]byte, 0, len(data)+2)
	batch = append(batch, '[')
	batch = append(batch, data...)
	return append(batch, ']')
}

// batchFromJSONLines joins one instance per line into a batch.
// A single line is sent as the instances value itself, without wrapping it into a list.
func batchFromJSONLines(data []byte) []byte {
	lines := nonBlankLines(data)
	if len(lines) == 1 {
		return lines[0]
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	buf.Write(bytes.Join(lines, []byte(",")))
	buf.WriteByte(']')
	return buf.Bytes()
}

// batchFromCSV converts every row into a list instance.
// Embedded commas and quotes are not supported.
func batchFromCSV(data []byte) []byte {
	needsQuotes := !csvLiteralPattern.Match(data)
	lines := nonBlankLines(data)

	var buf bytes.Buffer
	buf.Grow(2*len(data) + 4*len(lines) + 2)
	buf.WriteByte('[')
	for i, line := range lines {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		if needsQuotes {
			buf.WriteByte('"')
			buf.Write(bytes.ReplaceAll(line, []byte(","), []byte(`","`)))
			buf.WriteByte('"')
		} else {
			buf.Write(line)
		}
		buf.WriteByte(']')
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

// nonBlankLines splits data on LF or CRLF and returns all trimmed, non-empty lines in order.
func nonBlankLines(data []byte) [][]byte {
	var lines [][]byte
	for line := range bytes.SplitSeq(data, []byte("\n")) {
		if line = bytes.TrimSpace(line); len(line) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}
