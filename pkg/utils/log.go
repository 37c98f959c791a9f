package utils

import (
	"flag"
	"io"
	"log/slog"
	"os"
	"strings"
)

var (
	handlerTypeFlag = flag.String("log_handler_type", "json", "Log handler type: json/text")
	logLevelFlag    = flag.String("log_level", "info", "Log level: debug/info/warn/error")
	logOutputFlag   = flag.String("log_output", "stdout",
		"Where log records go: stdout/stderr. Timer actions log on the ticker goroutine, so a "+
			"slow sink stalls expiration; keep the sink local.")
)

var logInvariants = NewInvariants("log")

// parseLogLevel maps a -log_level value onto its slog level; unknown values report false.
func parseLogLevel(raw string) (slog.Level, bool) {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// newLogHandler builds the handler selected by -log_handler_type; unknown values report false
// and fall back to JSON.
func newLogHandler(raw string, sink io.Writer, level slog.Level) (slog.Handler, bool) {
	options := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(raw) {
	case "json":
		return slog.NewJSONHandler(sink, options), true
	case "text":
		return slog.NewTextHandler(sink, options), true
	default:
		return slog.NewJSONHandler(sink, options), false
	}
}

// InitLogging configures the default slog logger from the logging flags. Note that this method
// must be called after flag.Parse().
func InitLogging() {
	level, knownLevel := parseLogLevel(*logLevelFlag)
	if !knownLevel {
		logInvariants.Raise("unsupported_log_level", "Got an unsupported log level.",
			"logLevel", *logLevelFlag)
	}

	var sink io.Writer
	switch strings.ToLower(*logOutputFlag) {
	case "stderr":
		sink = os.Stderr
	case "stdout":
		sink = os.Stdout
	default:
		logInvariants.Raise("unsupported_log_output", "Got an unsupported log output.",
			"logOutput", *logOutputFlag)
		sink = os.Stdout
	}

	handler, knownHandler := newLogHandler(*handlerTypeFlag, sink, level)
	if !knownHandler {
		logInvariants.Raise("unsupported_handler_type", "Got an unsupported handler type.",
			"handlerType", *handlerTypeFlag)
	}

	// `SetDefault` happens atomically and doesn't panic when called in multiple goroutines.
	slog.SetDefault(slog.New(handler))
	slog.Debug("Log handler configured successfully.",
		"type", *handlerTypeFlag, "logLevel", *logLevelFlag, "output", *logOutputFlag)
}
