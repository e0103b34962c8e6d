package observability

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

func NewLogger(level string) *zerolog.Logger {
	return NewLoggerTo(level, "", 0)
}

// NewLoggerTo builds the process logger. When file is non-empty, output is
// duplicated to a size-rotated log file.
func NewLoggerTo(level string, file string, maxSizeMB int) *zerolog.Logger {
	lvl := zerolog.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "warn":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	}
	var out io.Writer = os.Stdout
	if file != "" {
		if maxSizeMB <= 0 {
			maxSizeMB = 50
		}
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    maxSizeMB,
			MaxBackups: 3,
		})
	}
	logger := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return &logger
}
