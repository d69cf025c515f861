// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: GPL-3.0-only

package logging

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	testCases := map[string]struct {
		in   string
		want slog.Level
	}{
		"debug":          {in: "debug", want: slog.LevelDebug},
		"empty":          {in: "", want: slog.LevelInfo},
		"notice":         {in: "notice", want: slog.LevelInfo},
		"upper case":     {in: "WARN", want: slog.LevelWarn},
		"error":          {in: "error", want: slog.LevelError},
		"crit":           {in: "crit", want: LevelCrit},
		"alert":          {in: "alert", want: LevelAlert},
		"emerg":          {in: "emerg", want: LevelEmerg},
		"numeric":        {in: "-8", want: slog.Level(-8)},
		"invalid string": {in: "verbose", want: slog.LevelError},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, LevelFromString(tc.in, slog.LevelError))
		})
	}
}

func TestNew(t *testing.T) {
	testCases := map[string]struct {
		level   string
		log     func(*slog.Logger)
		want    string
		wantNot string
	}{
		"info hides debug": {
			level:   "info",
			log:     func(l *slog.Logger) { l.Debug("hidden"); l.Info("visible") },
			want:    `"msg":"visible"`,
			wantNot: "hidden",
		},
		"crit hides error": {
			level:   "crit",
			log:     func(l *slog.Logger) { l.Error("hidden"); l.Log(t.Context(), LevelCrit, "visible") },
			want:    `"level":"CRIT"`,
			wantNot: "hidden",
		},
		"emerg level name": {
			level: "debug",
			log:   func(l *slog.Logger) { l.Log(t.Context(), LevelEmerg, "down") },
			want:  `"level":"EMERG"`,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			tc.log(New(tc.level, &buf, ""))

			assert.Contains(t, buf.String(), tc.want)
			if tc.wantNot != "" {
				assert.NotContains(t, buf.String(), tc.wantNot)
			}
		})
	}
}

func TestNewWithFile(t *testing.T) {
	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "proxy.log")

	New("info", &buf, file).Info("visible")

	assert.Contains(t, buf.String(), `"msg":"visible"`)
	require.FileExists(t, file)
}

func TestErrorLog(t *testing.T) {
	var buf bytes.Buffer
	logger := ErrorLog(slog.New(slog.NewTextHandler(&buf, nil)))
	logger.Println("http: TLS handshake error")

	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), `error="http: TLS handshake error"`)
}
