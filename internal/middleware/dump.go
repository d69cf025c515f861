// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

package middleware

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// DumpRequestAndResponse writes every request and the response sent for it to dumpDir.
// Dumps are grouped by day: {dumpDir}/YYYY-MM-DD/{timestamp}_{id}_req.txt and _resp.txt.
// Failing to write a dump is logged and does not affect the request.
func DumpRequestAndResponse(next http.Handler, fs afero.Fs, log *slog.Logger, dumpDir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts := time.Now().UTC()
		prefix := fmt.Sprintf("%s_%s", ts.Format("20060102_150405.000000000"), uuid.NewString()[:8])
		dir := filepath.Join(dumpDir, ts.Format("2006-01-02"))

		// httputil.DumpRequest replaces r.Body with a reader yielding the same bytes.
		if err := dumpRequest(fs, r, dir, prefix); err != nil {
			Logger(r.Context(), log).Warn("Failed to dump request", "error", err)
		}

		rec := NewResponseRecorder(w, true)
		next.ServeHTTP(rec, r)

		if err := dumpResponse(fs, rec, dir, prefix); err != nil {
			Logger(r.Context(), log).Warn("Failed to dump response", "error", err)
		}
	})
}

func dumpRequest(fs afero.Fs, req *http.Request, dir, prefix string) error {
	data, err := httputil.DumpRequest(req, true)
	if err != nil {
		return fmt.Errorf("dumping request: %w", err)
	}
	return writeDump(fs, filepath.Join(dir, prefix+"_req.txt"), data)
}

func dumpResponse(fs afero.Fs, rec *ResponseRecorder, dir, prefix string) error {
	resp := &http.Response{
		ProtoMajor: 1,
		ProtoMinor: 1,
		StatusCode: rec.StatusCode(),
		Header:     rec.Header(),
		Body:       io.NopCloser(bytes.NewReader(rec.Body.Bytes())),
	}
	data, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return fmt.Errorf("dumping response: %w", err)
	}
	return writeDump(fs, filepath.Join(dir, prefix+"_resp.txt"), data)
}

func writeDump(fs afero.Fs, file string, data []byte) error {
	if err := fs.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("creating dump directory: %w", err)
	}
	if err := afero.WriteFile(fs, file, data, 0o644); err != nil {
		return fmt.Errorf("writing dump file: %w", err)
	}
	return nil
}
