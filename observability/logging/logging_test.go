package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("escrowd", "test", Options{Writer: &buf, Level: "debug"})
	logger.Debug("escrow created", slog.Uint64("escrowId", 7), MaskField("contact", "+1 555 0100"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "escrow created", line["message"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "escrowd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, RedactedValue, line["contact"])
	require.Contains(t, line, "timestamp")
}

func TestSetupHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("escrowd", "", Options{Writer: &buf, Level: "warn"})
	logger.Info("quiet")
	require.Zero(t, buf.Len())
	logger.Warn("loud")
	require.Contains(t, buf.String(), "loud")
	require.NotContains(t, buf.String(), `"env"`)
}

func TestSetupWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrowd.log")
	logger := Setup("escrowd", "test", Options{File: path, MaxSizeMB: 1})
	logger.Info("persisted")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "persisted")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel(" warning "))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("contactInfo", "jane@example.com").Value.String())
	require.Equal(t, "42", MaskField("escrowId", "42").Value.String())
	require.Equal(t, "", MaskField("agreement", "").Value.String())
	require.Equal(t, "  ", MaskField("contactInfo", "  ").Value.String())
	require.Equal(t, "escrow_create", MaskField(" Method ", "escrow_create").Value.String())
}
