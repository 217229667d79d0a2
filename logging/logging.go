package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Layout of the bracketed timestamp at the start of every record. Existing
// log consumers depend on it, so don't change it.
const timestampLayout = "[2006-01-02 15:04:05]"

// Level is the severity of a record. Values follow the numbering used by the
// log files this package replaces.
type Level int

const (
	DebugLevel Level = 10
	InfoLevel  Level = 20
	ErrorLevel Level = 40
)

// String returns the upper-case name that appears in log files
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case ErrorLevel:
		return "ERROR"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel reads a level name ("debug", "info" or "error"), ignoring case.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return 0, fmt.Errorf("unknown log level %q: use debug, info, or error", s)
	}
}

// Config contains the user-provided options for a Logger.
type Config struct {
	Path  string `yaml:"path"`
	Level Level  `yaml:"-"`
	Echo  bool   `yaml:"echo"`
}

// UnmarshalYAML implements yaml.Unmarshaler so the level can be written as a
// name rather than a number.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var v struct {
		Path  string `yaml:"path"`
		Level string `yaml:"level"`
		Echo  bool   `yaml:"echo"`
	}
	if err := unmarshal(&v); err != nil {
		return fmt.Errorf("can't parse the log config: %v", err)
	}

	c.Path = v.Path
	c.Echo = v.Echo
	if v.Level == "" {
		c.Level = 0
		return nil
	}

	l, err := ParseLevel(v.Level)
	if err != nil {
		return err
	}
	c.Level = l
	return nil
}

// CheckAndSetDefaults validates c and either returns a copy of c with default
// settings applied or returns an error due to an invalid configuration
func (c *Config) CheckAndSetDefaults() (Config, error) {
	if c.Path == "" {
		return Config{}, errors.New("the log config must include a file path")
	}

	n := *c
	switch n.Level {
	case 0:
		n.Level = InfoLevel
	case DebugLevel, InfoLevel, ErrorLevel:
	default:
		return Config{}, fmt.Errorf("unsupported log level %v", int(n.Level))
	}
	return n, nil
}

// Logger appends records to a log file and, when asked to, echoes messages
// to the console. Create one with New and release it with Close.
type Logger struct {
	file    *os.File
	zl      zerolog.Logger
	echo    bool
	console io.Writer
	// now is swapped out in tests to pin the timestamp
	now func() time.Time
}

// New opens (or creates) the log file named in c and returns a Logger that
// writes to it. The caller must Close the Logger.
func New(c Config) (*Logger, error) {
	cc, err := c.CheckAndSetDefaults()
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(cc.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("can't open the log file: %w", err)
	}

	return &Logger{
		file:    f,
		zl:      zerolog.New(newFileWriter(f)).Level(cc.Level.zerolog()),
		echo:    cc.Echo,
		console: os.Stdout,
		now:     time.Now,
	}, nil
}

// newFileWriter renders zerolog's JSON events as plain
// "[timestamp] - LEVEL - message" lines. The level label is part of the
// message (see write) because ConsoleWriter drops empty parts along with
// their separator.
func newFileWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:     out,
		NoColor: true,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.MessageFieldName,
		},
		FormatTimestamp: func(i interface{}) string {
			return fmt.Sprint(i)
		},
		FormatMessage: func(i interface{}) string {
			if i == nil {
				return ""
			}
			return fmt.Sprint(i)
		},
	}
}

// SetConsole changes where echoed messages go. Defaults to os.Stdout.
func (l *Logger) SetConsole(w io.Writer) {
	l.console = w
}

// Close releases the log file.
func (l *Logger) Close() error {
	return l.file.Close()
}

// Debug logs msg at DEBUG level
func (l *Logger) Debug(msg string, echo bool) {
	l.write(l.zl.Debug(), DebugLevel, msg, echo)
}

// Info logs msg at INFO level
func (l *Logger) Info(msg string, echo bool) {
	l.write(l.zl.Info(), InfoLevel, msg, echo)
}

// Error logs msg at ERROR level
func (l *Logger) Error(msg string, echo bool) {
	l.write(l.zl.Error(), ErrorLevel, msg, echo)
}

// Debugf formats and logs a message at DEBUG level
func (l *Logger) Debugf(echo bool, format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...), echo)
}

// Infof formats and logs a message at INFO level
func (l *Logger) Infof(echo bool, format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...), echo)
}

// Errorf formats and logs a message at ERROR level
func (l *Logger) Errorf(echo bool, format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...), echo)
}

// write sends the record to the file (a nil event means the level is
// filtered out) and echoes msg if either the Logger or the call asks for it.
// Echoing does not depend on the level filter.
func (l *Logger) write(e *zerolog.Event, lvl Level, msg string, echo bool) {
	if e != nil {
		e.Str(zerolog.TimestampFieldName, l.now().Local().Format(timestampLayout)).
			Msgf("- %s - %s", lvl, msg)
	}

	if (l.echo || echo) && l.console != nil {
		fmt.Fprintln(l.console, msg)
	}
}
