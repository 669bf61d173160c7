package logging

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrInvalidLevel is returned by ParseLevel for names outside the vocabulary.
var ErrInvalidLevel = errors.New("invalid log level")

// Level is a diagnostics severity.
type Level int8

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[string]Level{
	"trace":   LevelTrace,
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// ParseLevel maps a level name to a Level. Names are case-sensitive.
func ParseLevel(name string) (Level, error) {
	l, ok := levelNames[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrInvalidLevel, name)
	}
	return l, nil
}

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return fmt.Sprintf("Level(%d)", int8(l))
}

// Zerolog returns the equivalent zerolog level.
func (l Level) Zerolog() zerolog.Level {
	switch l {
	case LevelTrace:
		return zerolog.TraceLevel
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
