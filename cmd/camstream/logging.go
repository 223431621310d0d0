package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/banshee-data/camstream/internal/camera/sample"
	"github.com/banshee-data/camstream/internal/monitoring"
)

// levelWriter forwards each written line to a zerolog logger at a fixed
// level.
type levelWriter struct {
	log   zerolog.Logger
	level zerolog.Level
}

func (w levelWriter) Write(p []byte) (int, error) {
	w.log.WithLevel(w.level).Msg(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// setupLogging builds the console logger and routes the package loggers
// into it.
func setupLogging(out io.Writer, levelName string) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(levelName))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", levelName, err)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}).
		Level(level).
		With().
		Timestamp().
		Logger()

	monitoring.SetLogger(func(format string, v ...interface{}) {
		log.Info().Msgf(format, v...)
	})
	sample.SetLogSinks(
		levelWriter{log: log, level: zerolog.WarnLevel},
		levelWriter{log: log, level: zerolog.DebugLevel},
	)
	return log, nil
}
