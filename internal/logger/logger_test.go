package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestSetup_json(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := setup(buf, false)

	logger.Debug().Msg("hidden")
	log.Info().Str("file", "index.html").Msg("Rendered page")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "Rendered page", entry["message"])
	require.Equal(t, "index.html", entry["file"])
}

func TestSetup_debugConsole(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := setup(buf, true)

	logger.Debug().Msg("Expanding include")

	require.Contains(t, buf.String(), "Expanding include")
	require.Contains(t, buf.String(), "DBG")
}
