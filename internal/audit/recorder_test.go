package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologRecorderWritesStructuredEvent(t *testing.T) {
	var buf bytes.Buffer
	recorder := NewZerologRecorder(zerolog.New(&buf))

	recorder.Record(context.Background(), Event{
		Type:    EventFederatedLogin,
		Subject: "g-123456789",
		Email:   "alice@example.com",
		Success: true,
	})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, string(EventFederatedLogin), line["event"])
	assert.Equal(t, "g-123456789", line["subject"])
	assert.Equal(t, "alice@example.com", line["email"])
	assert.Equal(t, true, line["success"])
	assert.NotEmpty(t, line["audit_id"], "a missing id is filled in")
}

func TestZerologRecorderOmitsEmptyFields(t *testing.T) {
	var buf bytes.Buffer
	recorder := NewZerologRecorder(zerolog.New(&buf))

	recorder.Record(context.Background(), Event{Type: EventSessionRefreshed, Success: false, Error: "invalid_or_expired_refresh_token"})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.NotContains(t, line, "subject")
	assert.NotContains(t, line, "email")
	assert.Equal(t, "invalid_or_expired_refresh_token", line["error"])
}

func TestMultiRecorderFansOut(t *testing.T) {
	first := NewMemoryRecorder()
	second := NewMemoryRecorder()
	multi := MultiRecorder{first, second}

	multi.Record(context.Background(), Event{Type: EventTokenVerified, Success: true})

	assert.Len(t, first.Events(), 1)
	assert.Len(t, second.Events(), 1)
}
