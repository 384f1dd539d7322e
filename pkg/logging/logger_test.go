package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/run-bigpig/llmatscale/pkg/session"
)

func TestLoggerAddsSessionFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(WithLevel("debug"), WithOutput(&buf))

	ctx := session.WithUseCase(session.WithID(context.Background(), "s-1"), "judge")
	logger.Info(ctx, "answered", map[string]interface{}{"model": "llama"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "answered", entry["message"])
	assert.Equal(t, "s-1", entry["session_id"])
	assert.Equal(t, "judge", entry["use_case"])
	assert.Equal(t, "llama", entry["model"])
	assert.Equal(t, "info", entry["level"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(WithLevel("warn"), WithOutput(&buf))

	logger.Debug(context.Background(), "hidden", nil)
	logger.Info(context.Background(), "hidden", nil)
	assert.Empty(t, buf.String())

	logger.Error(context.Background(), "shown", nil)
	assert.Contains(t, buf.String(), "shown")
}
