package logs

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds the process logger. Entries are appended to logFilePath as JSON
// lines; withConsole additionally mirrors them to stdout in human form. An
// empty path logs JSON to stdout only. The global zerolog logger is replaced.
func New(logFilePath string, withConsole bool, level zerolog.Level) (zerolog.Logger, io.Closer, error) {
	zerolog.TimeFieldFormat = time.RFC3339

	var (
		writer io.Writer = os.Stdout
		closer io.Closer = io.NopCloser(nil)
	)

	if logFilePath != "" {
		logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			return zerolog.Nop(), closer, err
		}
		closer = logFile
		writer = logFile

		if withConsole {
			consoleWriter := zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: time.RFC3339,
			}
			writer = zerolog.MultiLevelWriter(logFile, consoleWriter)
		}
	} else if withConsole {
		writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(writer).Level(level).With().
		Timestamp().
		Caller().
		Logger()

	log.Logger = logger
	return logger, closer, nil
}

// ParseLevel maps LOG_LEVEL values to zerolog levels, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
