package enrichment

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

func TestBuildPrompt(t *testing.T) {
	readings := makeReadings(25)
	readings[24].MotionDetected = true
	readings[23].MotionDetected = true

	prompt := BuildPrompt(readings, models.Float64Ptr(70))

	// 只用最近 20 条 (scores 5..24)，逐条列出最近 10 条
	assert.Contains(t, prompt, "last 20 movement_score values: [15, 16, 17, 18, 19, 20, 21, 22, 23, 24]")
	assert.Contains(t, prompt, "average: 14.50")
	assert.Contains(t, prompt, "max: 24.00")
	assert.Contains(t, prompt, "motion detected count: 2")
	assert.Contains(t, prompt, "fall threshold: 70.0")
	assert.Contains(t, prompt, "low/medium/high/critical")
}

func TestBuildPrompt_NoThreshold(t *testing.T) {
	prompt := BuildPrompt(makeReadings(3), nil)

	assert.Contains(t, prompt, "last 3 movement_score values: [0, 1, 2]")
	assert.Contains(t, prompt, "fall threshold: off")
	assert.Equal(t, "", BuildPrompt(nil, nil))
}

func TestGeminiAnalyzer_Analyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Contains(t, req.Contents[0].Parts[0].Text, "movement_score")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"  Sudden spike after calm period. Risk: high\n"}]}}]}`))
	}))
	defer server.Close()

	a := New(server.URL, "test-key", "gemini-2.0-flash", time.Second, models.Float64Ptr(70), zap.NewNop())
	analysis := a.Analyze(context.Background(), makeReadings(12))

	require.NoError(t, analysis.Err)
	assert.True(t, analysis.Available())
	assert.Equal(t, "Sudden spike after calm period. Risk: high", analysis.Text)
}

func TestGeminiAnalyzer_TooFewReadings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Fail(t, "should not call the API")
	}))
	defer server.Close()

	a := New(server.URL, "test-key", "gemini-2.0-flash", time.Second, nil, zap.NewNop())
	analysis := a.Analyze(context.Background(), makeReadings(9))

	assert.True(t, analysis.Skipped)
	assert.False(t, analysis.Available())
}

func TestGeminiAnalyzer_ErrorsAreUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom"}}`},
		{"empty candidates", http.StatusOK, `{"candidates":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.payload))
			}))
			defer server.Close()

			a := New(server.URL, "test-key", "gemini-2.0-flash", time.Second, nil, zap.NewNop())
			analysis := a.Analyze(context.Background(), makeReadings(10))

			assert.Error(t, analysis.Err)
			assert.False(t, analysis.Available())
		})
	}
}

func TestNew_WithoutKeyIsNoop(t *testing.T) {
	a := New("http://unused", "", "gemini-2.0-flash", time.Second, nil, zap.NewNop())

	assert.IsType(t, NoopAnalyzer{}, a)
	assert.True(t, a.Analyze(context.Background(), makeReadings(20)).Skipped)
}

func makeReadings(n int) []models.Reading {
	readings := make([]models.Reading, n)
	for i := range readings {
		readings[i] = models.Reading{DeviceID: "ESP32-001", MovementScore: float64(i)}
	}
	return readings
}
