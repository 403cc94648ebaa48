package logging_test

import (
	"bytes"
	"testing"

	"github.com/lipvoice/voice-client/internal/logging"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, "warn", false)

	logger.Info().Msg("hidden")
	require.Empty(t, buf.String())

	logger.Warn().Str("component", "gateway").Msg("shown")
	require.Contains(t, buf.String(), `"component":"gateway"`)
	require.Contains(t, buf.String(), `"level":"warn"`)
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, "loud", false)
	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}
