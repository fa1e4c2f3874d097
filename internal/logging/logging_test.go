package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	config "github.com/hanpama/graphcms/internal/config"
)

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	log := Component(New(config.LoggingConfig{Level: "warn", Format: "json"}, &buf), "item")
	log.Info().Msg("dropped")
	log.Warn().Str("id", "x").Msg("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "warn", line["level"])
	require.Equal(t, "kept", line["message"])
	require.Equal(t, "item", line["component"])
	require.Equal(t, "x", line["id"])
	require.Contains(t, line, "time")
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.LoggingConfig{Format: "console"}, &buf)
	log.Info().Msg("hello")
	require.Contains(t, buf.String(), "INF")
	require.Contains(t, buf.String(), "hello")
}

func TestBadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.LoggingConfig{Level: "loud", Format: "json"}, &buf)
	log.Debug().Msg("hidden")
	require.Zero(t, buf.Len())
	log.Info().Msg("shown")
	require.NotZero(t, buf.Len())
}
