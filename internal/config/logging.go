package config

import (
	"io"
	log "log/slog"
	"strings"

	"github.com/lmittmann/tint"
)

var LogLevels = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

// SetupLogger installs a tint handler on w as the default logger.
func SetupLogger(w io.Writer, level string) {
	log.SetDefault(log.New(tint.NewHandler(w, &tint.Options{
		Level:      LogLevels[strings.ToLower(level)],
		TimeFormat: "15:04:05.000",
	})))
}
