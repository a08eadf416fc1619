package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("info", &buf)

	ctx := WithActor(WithRequestID(context.Background(), "req-42"), "ops")
	log.WithContext(ctx).Info("hello")

	entry := lastLine(t, &buf)
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "ops", entry["actor"])
	assert.NotContains(t, entry, "trace_id")
	assert.Equal(t, "req-42", RequestID(ctx))
}

func TestLedgerTransaction(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("info", &buf)

	log.LedgerTransaction(context.Background(), "roles", "GrantRole", []string{"rec-1", "bob", "viewer"}, false, "tx1", 12, map[string]interface{}{"error": "ROLE_FORBIDDEN: no"})

	entry := lastLine(t, &buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "roles", entry["contract"])
	assert.Equal(t, "GrantRole", entry["function"])
	assert.Equal(t, float64(12), entry["duration_ms"])
	assert.Equal(t, false, entry["success"])
}

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("warn", &buf)

	log.HTTPRequest(context.Background(), "GET", "/health", "127.0.0.1", 200, 1)
	assert.Zero(t, buf.Len())

	log.HTTPRequest(context.Background(), "GET", "/health", "127.0.0.1", 503, 1)
	assert.Equal(t, "warning", lastLine(t, &buf)["level"])

	assert.Equal(t, "info", NewWithOutput("nonsense", &buf).GetLevel().String())
}
