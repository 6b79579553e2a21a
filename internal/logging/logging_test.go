package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, level)

	level, err = ParseLevel(" DEBUG ")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestAutoFormatIsJSONWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(Options{Level: "info"}, &buf)
	require.NoError(t, err)
	defer closeFn()

	logger.Info().Str("path", "/data").Msg("scan finished")
	logger.Debug().Msg("dropped")

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "scan finished", event["message"])
	assert.Equal(t, "/data", event["path"])
	assert.Contains(t, event, "time")
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Options{Level: "info", Format: FormatConsole}, &buf)
	require.NoError(t, err)
	logger.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestLogFileReceivesCopy(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "sizescope.log")
	logger, closeFn, err := New(Options{Level: "warn", Format: FormatJSON, File: path}, &buf)
	require.NoError(t, err)

	logger.Warn().Msg("cache unavailable")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cache unavailable")
	assert.Contains(t, buf.String(), "cache unavailable")
}

func TestRejectsBadOptions(t *testing.T) {
	_, _, err := New(Options{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
	_, _, err = New(Options{Level: "chatty"}, &bytes.Buffer{})
	assert.Error(t, err)
}
