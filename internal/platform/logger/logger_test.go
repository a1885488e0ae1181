package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, slog.LevelInfo)

	log.Debug("dropped")
	log.Info("consent status changed", "consent_id", "c-1")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "consent status changed", record["msg"])
	assert.Equal(t, "cms", record["service"])
	assert.Equal(t, "c-1", record["consent_id"])
}
