// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: GPL-3.0-only

// package logging contains utility functions to set up logging for the TFS proxy.
package logging

import (
	"io"
	"log"
	"log/slog"
	"strconv"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// Flag is the flag name for setting the logging level.
	Flag = "log-level"
	// FlagShorthand is the shorthand flag name for setting the logging level.
	FlagShorthand = "l"
	// DefaultFlagValue is the default value for the log level flag.
	DefaultFlagValue = "info"
	// FlagInfo is the info string for the log level flag.
	FlagInfo = "set logging level (debug, info, notice, warn, error, crit, alert, emerg, or a number)"
)

// Levels above [slog.LevelError], named after their nginx counterparts.
const (
	LevelCrit  = slog.LevelError + 4
	LevelAlert = slog.LevelError + 8
	LevelEmerg = slog.LevelError + 12
)

// New returns a [*slog.Logger] writing JSON to output at the given level.
// If filename is set, the log is also written to that file, which is rotated at 100 MB.
func New(level string, output io.Writer, filename string) *slog.Logger {
	if filename != "" {
		output = io.MultiWriter(output, &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    100, // megabytes
			MaxBackups: 2,
			MaxAge:     14, // days
		})
	}
	return slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level:       LevelFromString(level, slog.LevelInfo),
		ReplaceAttr: levelNames,
	}))
}

// LevelFromString converts an nginx or slog level name, or a number, to a [slog.Level].
// nginx "notice" maps to info. Unknown names return fallback.
func LevelFromString(s string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "", "info", "notice":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "crit":
		return LevelCrit
	case "alert":
		return LevelAlert
	case "emerg":
		return LevelEmerg
	}
	if n, err := strconv.Atoi(s); err == nil {
		return slog.Level(n)
	}
	return fallback
}

// levelNames prints the nginx names of levels above error instead of "ERROR+4" and so on.
func levelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	switch {
	case level >= LevelEmerg:
		a.Value = slog.StringValue("EMERG")
	case level >= LevelAlert:
		a.Value = slog.StringValue("ALERT")
	case level >= LevelCrit:
		a.Value = slog.StringValue("CRIT")
	}
	return a
}

// ErrorLog returns a [*log.Logger] for [http.Server.ErrorLog] that writes every line to logger at error level.
func ErrorLog(logger *slog.Logger) *log.Logger {
	return log.New(errorWriter{logger}, "", 0)
}

type errorWriter struct {
	log *slog.Logger
}

func (w errorWriter) Write(p []byte) (int, error) {
	w.log.Error("HTTP server error", "error", strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
