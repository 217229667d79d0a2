package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

// newTestLogger returns a Logger writing to a temp file with a pinned clock,
// plus the path of the file and the buffer receiving echoed messages.
func newTestLogger(t *testing.T, level Level, echo bool) (*Logger, string, *bytes.Buffer) {
	t.Helper()
	p := filepath.Join(t.TempDir(), "test.log")
	l, err := New(Config{Path: p, Level: level, Echo: echo})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	l.now = func() time.Time {
		return time.Date(2020, time.July, 10, 8, 5, 9, 0, time.Local)
	}
	var buf bytes.Buffer
	l.SetConsole(&buf)
	return l, p, &buf
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	s := strings.TrimSuffix(string(b), "\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}

func TestRecordFormat(t *testing.T) {
	testCases := []struct {
		description string
		log         func(l *Logger)
		expected    string
	}{
		{
			description: "debug",
			log:         func(l *Logger) { l.Debug("starting up", false) },
			expected:    "[2020-07-10 08:05:09] - DEBUG - starting up",
		},
		{
			description: "info",
			log:         func(l *Logger) { l.Info("device online", false) },
			expected:    "[2020-07-10 08:05:09] - INFO - device online",
		},
		{
			description: "error",
			log:         func(l *Logger) { l.Error("disk full", false) },
			expected:    "[2020-07-10 08:05:09] - ERROR - disk full",
		},
		{
			description: "formatted",
			log:         func(l *Logger) { l.Infof(false, "cpu at %v%%", 42.5) },
			expected:    "[2020-07-10 08:05:09] - INFO - cpu at 42.5%",
		},
		{
			description: "empty message",
			log:         func(l *Logger) { l.Info("", false) },
			expected:    "[2020-07-10 08:05:09] - INFO - ",
		},
		{
			description: "message with a format verb",
			log:         func(l *Logger) { l.Error("100% full", false) },
			expected:    "[2020-07-10 08:05:09] - ERROR - 100% full",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			l, p, _ := newTestLogger(t, DebugLevel, false)
			tc.log(l)
			lines := readLines(t, p)
			require.Len(t, lines, 1)
			assert.Equal(t, tc.expected, lines[0])
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	l, p, _ := newTestLogger(t, InfoLevel, false)
	l.Debug("hidden", false)
	l.Info("shown", false)
	l.Error("also shown", false)

	lines := readLines(t, p)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "- INFO - shown")
	assert.Contains(t, lines[1], "- ERROR - also shown")
}

func TestAppendsToExistingFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "existing.log")
	require.NoError(t, os.WriteFile(p, []byte("old line\n"), 0o644))

	l, err := New(Config{Path: p})
	require.NoError(t, err)
	l.Info("new line", false)
	require.NoError(t, l.Close())

	lines := readLines(t, p)
	require.Len(t, lines, 2)
	assert.Equal(t, "old line", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "- INFO - new line"))
}

func TestEcho(t *testing.T) {
	testCases := []struct {
		description  string
		instanceEcho bool
		callEcho     bool
		shouldEcho   bool
	}{
		{description: "neither", instanceEcho: false, callEcho: false, shouldEcho: false},
		{description: "instance only", instanceEcho: true, callEcho: false, shouldEcho: true},
		{description: "call only", instanceEcho: false, callEcho: true, shouldEcho: true},
		{description: "both", instanceEcho: true, callEcho: true, shouldEcho: true},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			l, p, buf := newTestLogger(t, DebugLevel, tc.instanceEcho)
			l.Info("hello", tc.callEcho)

			if tc.shouldEcho {
				assert.Equal(t, "hello\n", buf.String())
			} else {
				assert.Empty(t, buf.String())
			}
			// The file always gets the record
			assert.Len(t, readLines(t, p), 1)
		})
	}
}

func TestEchoIgnoresLevelFilter(t *testing.T) {
	l, p, buf := newTestLogger(t, ErrorLevel, false)
	l.Debug("debugging", true)
	assert.Equal(t, "debugging\n", buf.String())
	assert.Empty(t, readLines(t, p))
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input         string
		expected      Level
		shouldBeError bool
	}{
		{input: "debug", expected: DebugLevel},
		{input: "INFO", expected: InfoLevel},
		{input: " Error ", expected: ErrorLevel},
		{input: "warn", shouldBeError: true},
		{input: "", shouldBeError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			l, err := ParseLevel(tc.input)
			if (err != nil) != tc.shouldBeError {
				t.Fatalf(
					"unexpected error status: wanted %v but got %v with error %v",
					tc.shouldBeError,
					err != nil,
					err,
				)
			}
			if !tc.shouldBeError {
				assert.Equal(t, tc.expected, l)
			}
		})
	}
}

func TestConfigUnmarshalYAML(t *testing.T) {
	testCases := []struct {
		description   string
		input         string
		expected      Config
		shouldBeError bool
	}{
		{
			description: "valid case",
			input: `path: /var/log/etoolkit.log
level: debug
echo: true`,
			expected: Config{Path: "/var/log/etoolkit.log", Level: DebugLevel, Echo: true},
		},
		{
			description: "default level",
			input:       `path: app.log`,
			expected:    Config{Path: "app.log", Level: InfoLevel},
		},
		{
			description:   "bad level",
			input:         "path: app.log\nlevel: critical",
			shouldBeError: true,
		},
		{
			description:   "no path",
			input:         `level: info`,
			shouldBeError: true,
		},
		{
			description:   "not an object",
			input:         `[]`,
			shouldBeError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			var c Config
			err := yaml.NewDecoder(bytes.NewBufferString(tc.input)).Decode(&c)
			var cc Config
			if err == nil {
				cc, err = c.CheckAndSetDefaults()
			}
			if (err != nil) != tc.shouldBeError {
				t.Fatalf(
					"%v: unexpected error status--wanted %v but got %v with error %v",
					tc.description,
					tc.shouldBeError,
					err != nil,
					err,
				)
			}
			if !tc.shouldBeError {
				assert.Equal(t, tc.expected, cc)
			}
		})
	}
}

func TestNewUnwritablePath(t *testing.T) {
	_, err := New(Config{Path: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.Error(t, err)
}
