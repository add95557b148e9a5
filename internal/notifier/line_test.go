package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wisefido-bridge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFormatMessage(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 5, 9, 0, time.Local)

	assert.Equal(t,
		"🚨 Wi-Care fall alert\nTime: 2026/03/01 08:05:09\nScore: 85.0\nDevice: ESP32-001",
		FormatMessage(at, 85, "ESP32-001", ""))

	assert.Equal(t,
		"🚨 Wi-Care fall alert\nTime: 2026/03/01 08:05:09\nScore: 91.3\nDevice: ESP32-001\nAI analysis: Risk: high",
		FormatMessage(at, 91.26, "ESP32-001", "Risk: high"))
}

func TestLineNotifier_Notify(t *testing.T) {
	var req linePushRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/bot/message/push", r.URL.Path)
		assert.Equal(t, "Bearer channel-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	n := NewLineNotifier(server.URL, "channel-token", "U1234", zap.NewNop())
	require.True(t, n.Enabled())

	result := n.Notify(context.Background(), testEvent("Risk: high"), 85)

	assert.True(t, result.Delivered)
	assert.NoError(t, result.Err)
	assert.Equal(t, "U1234", req.To)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "text", req.Messages[0].Type)
	assert.Contains(t, req.Messages[0].Text, "Score: 85.0")
	assert.Contains(t, req.Messages[0].Text, "Device: ESP32-001")
	assert.Contains(t, req.Messages[0].Text, "AI analysis: Risk: high")
}

func TestLineNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Authentication failed"}`))
	}))
	defer server.Close()

	result := NewLineNotifier(server.URL, "bad", "U1234", zap.NewNop()).
		Notify(context.Background(), testEvent(""), 85)

	assert.False(t, result.Delivered)
	assert.Equal(t, http.StatusUnauthorized, result.StatusCode)
	assert.Error(t, result.Err)
}

func TestLineNotifier_Unconfigured(t *testing.T) {
	for _, n := range []*LineNotifier{
		NewLineNotifier("http://unused", "", "U1234", zap.NewNop()),
		NewLineNotifier("http://unused", "token", "", zap.NewNop()),
	} {
		assert.False(t, n.Enabled())
		result := n.Notify(context.Background(), testEvent(""), 85)
		assert.True(t, result.Skipped)
		assert.False(t, result.Delivered)
	}
}

func testEvent(ai string) *models.AlertEvent {
	event := &models.AlertEvent{
		EventID:   "evt-1",
		DeviceID:  "ESP32-001",
		Type:      models.AlertTypeFall,
		Severity:  models.SeverityCritical,
		CreatedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	if ai != "" {
		event.AIAnalysis = &ai
	}
	return event
}
