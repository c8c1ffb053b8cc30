package logutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToTerminalInfo(t *testing.T) {
	logger, err := New(Config{})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewJSONFormat(t *testing.T) {
	logger, err := New(Config{Level: "debug", Format: FormatJSON})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "not-a-level"})
	require.Error(t, err)
}
