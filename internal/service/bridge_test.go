package service

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"wisefido-bridge/internal/config"
	"wisefido-bridge/internal/models"
	"wisefido-bridge/internal/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type harness struct {
	svc       *BridgeService
	rec       *recorder
	src       *fakeSource
	store     *fakeStore
	forwarder *fakeForwarder
	analyzer  *fakeAnalyzer
	notifier  *fakeNotifier
	publisher *fakePublisher
	status    *bytes.Buffer
	now       time.Time
}

func newHarness(t *testing.T, readings ...*models.Reading) *harness {
	t.Helper()

	rec := &recorder{}
	h := &harness{
		rec:       rec,
		src:       &fakeSource{readings: readings, rec: rec},
		store:     &fakeStore{rec: rec},
		forwarder: &fakeForwarder{rec: rec},
		analyzer:  &fakeAnalyzer{text: "Risk: high", rec: rec},
		notifier:  &fakeNotifier{rec: rec},
		publisher: &fakePublisher{},
		status:    &bytes.Buffer{},
		now:       t0,
	}
	h.svc = newBridgeService(testConfig(), zap.NewNop(), Dependencies{
		Source:    h.src,
		Readings:  h.store,
		Alerts:    h.store,
		Forwarder: h.forwarder,
		Analyzer:  h.analyzer,
		Notifier:  h.notifier,
		Publisher: h.publisher,
		Status:    h.status,
		Now:       func() time.Time { return h.now },
	})
	return h
}

func (h *harness) cycleAt(offset time.Duration) bool {
	h.now = t0.Add(offset)
	return h.svc.RunCycle(context.Background())
}

func TestRunCycle_FallAlertCooldownScenario(t *testing.T) {
	h := newHarness(t, fallReading(), fallReading(), fallReading())

	require.True(t, h.cycleAt(0))
	require.Len(t, h.store.alerts, 1)
	assert.Equal(t, models.SeverityCritical, h.store.alerts[0].Severity)
	assert.Equal(t, models.AlertTypeFall, h.store.alerts[0].Type)
	assert.Contains(t, h.store.alerts[0].Message, "85.0")

	require.True(t, h.cycleAt(10*time.Second))
	assert.Len(t, h.store.alerts, 1)

	require.True(t, h.cycleAt(31*time.Second))
	require.Len(t, h.store.alerts, 2)
	assert.NotEqual(t, h.store.alerts[0].EventID, h.store.alerts[1].EventID)

	// 冷却期内的读数照常持久化和推送
	assert.Equal(t, 3, h.store.readingCount())
	assert.Len(t, h.forwarder.aiTexts, 3)
	assert.Len(t, h.notifier.events, 2)
	assert.Equal(t, 2, h.publisher.alerts)
}

func TestRunCycle_PersistBeforeForward(t *testing.T) {
	h := newHarness(t, safeReading(10))

	h.cycleAt(0)

	assert.Equal(t, []string{"acquire", "persist", "forward"}, h.rec.list())
}

func TestRunCycle_ForwardFailureDoesNotBlockPersistence(t *testing.T) {
	h := newHarness(t, safeReading(10), safeReading(20), fallReading())
	h.forwarder.fail = true

	for i := 0; i < 3; i++ {
		require.True(t, h.cycleAt(time.Duration(i)*2*time.Second))
	}

	assert.Equal(t, 3, h.store.readingCount())
	assert.Len(t, h.store.alerts, 1)
}

func TestRunCycle_StorageFailureContinues(t *testing.T) {
	h := newHarness(t, safeReading(10), safeReading(20), safeReading(30))
	h.store.failNext = 2

	h.cycleAt(0)
	assert.Equal(t, 1, h.svc.StorageFailureStreak())

	h.cycleAt(2 * time.Second)
	assert.Equal(t, 2, h.svc.StorageFailureStreak())
	assert.Len(t, h.forwarder.aiTexts, 2)

	h.cycleAt(4 * time.Second)
	assert.Equal(t, 0, h.svc.StorageFailureStreak())
	assert.Equal(t, 1, h.store.readingCount())
}

func TestRunCycle_AlertEvaluatedWhenReadingNotPersisted(t *testing.T) {
	h := newHarness(t, fallReading())
	h.store.failNext = 1

	h.cycleAt(0)

	assert.Equal(t, 0, h.store.readingCount())
	assert.Len(t, h.forwarder.aiTexts, 1)
	assert.Len(t, h.store.alerts, 1)
}

func TestRunCycle_MissIncrementsStreak(t *testing.T) {
	h := newHarness(t, nil, nil, safeReading(5), nil)

	assert.False(t, h.cycleAt(0))
	assert.False(t, h.cycleAt(2*time.Second))
	assert.Equal(t, 2, h.svc.MissStreak())

	assert.True(t, h.cycleAt(4*time.Second))
	assert.Equal(t, 0, h.svc.MissStreak())

	assert.False(t, h.cycleAt(6*time.Second))
	assert.Equal(t, 1, h.svc.MissStreak())

	assert.Equal(t, 1, h.store.readingCount())
	assert.Len(t, h.forwarder.aiTexts, 1)
}

func TestRunCycle_NetworkPollNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	h := newHarness(t)
	h.svc.deps.Source = source.NewHTTPSource(server.URL+"/status", "ESP32-001", time.Second, zap.NewNop())

	assert.False(t, h.cycleAt(0))
	assert.Equal(t, 1, h.svc.MissStreak())
	assert.Equal(t, 0, h.store.readingCount())
	assert.Empty(t, h.forwarder.aiTexts)
}

func TestRunCycle_PersistedCountMatchesAcquisitions(t *testing.T) {
	readings := []*models.Reading{safeReading(1), nil, safeReading(2), nil, nil, fallReading(), safeReading(3)}
	h := newHarness(t, readings...)
	h.forwarder.fail = true
	h.notifier.fail = true

	acquired := 0
	for i := range readings {
		if h.cycleAt(time.Duration(i) * 2 * time.Second) {
			acquired++
		}
	}

	assert.Equal(t, 4, acquired)
	assert.Equal(t, acquired, h.store.readingCount())
	assert.Equal(t, acquired, h.publisher.readings)
}

func TestRunCycle_EnrichmentNeedsWarmWindow(t *testing.T) {
	var readings []*models.Reading
	for i := 0; i < 12; i++ {
		readings = append(readings, safeReading(float64(i)))
	}
	h := newHarness(t, readings...)

	for i := range readings {
		h.cycleAt(time.Duration(i) * 2 * time.Second)
	}

	require.Len(t, h.forwarder.aiTexts, 12)
	for i := 0; i < 9; i++ {
		assert.Empty(t, h.forwarder.aiTexts[i])
	}
	for i := 9; i < 12; i++ {
		assert.Equal(t, "Risk: high", h.forwarder.aiTexts[i])
	}
	assert.Equal(t, 3, h.analyzer.calls)
	assert.Equal(t, []int{10, 11, 12}, h.analyzer.sizes)
}

func TestRunCycle_SlowAnalysisBoundedByForwardTimeout(t *testing.T) {
	var readings []*models.Reading
	for i := 0; i < 10; i++ {
		readings = append(readings, safeReading(10))
	}
	h := newHarness(t, readings...)
	h.svc.config.Backend.Timeout = 50 * time.Millisecond
	h.analyzer.delay = 10 * time.Second

	for i := 0; i < 9; i++ {
		h.cycleAt(time.Duration(i) * 2 * time.Second)
	}

	start := time.Now()
	require.True(t, h.cycleAt(18*time.Second))
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, h.forwarder.aiTexts, 10)
	assert.Empty(t, h.forwarder.aiTexts[9])
	assert.Equal(t, 1, h.analyzer.calls)
	assert.Equal(t, 10, h.store.readingCount())
}

func TestRunCycle_EnrichmentDisabledForForwarding(t *testing.T) {
	h := newHarness(t, fallReading())
	h.svc.config.Backend.EnrichWithAI = false

	h.cycleAt(0)

	// 缓冲区不足 10 条，警报没有分析文本
	assert.Equal(t, []string{""}, h.forwarder.aiTexts)
	assert.Equal(t, 1, h.analyzer.calls)
	require.Len(t, h.store.alerts, 1)
	assert.Nil(t, h.store.alerts[0].AIAnalysis)
}

func TestRunCycle_AlertOrderAndAnalysisReuse(t *testing.T) {
	var readings []*models.Reading
	for i := 0; i < 10; i++ {
		readings = append(readings, safeReading(10))
	}
	readings = append(readings, fallReading())
	h := newHarness(t, readings...)

	for i := range readings {
		h.cycleAt(time.Duration(i) * 2 * time.Second)
	}

	calls := h.rec.list()
	tail := calls[len(calls)-6:]
	assert.Equal(t, []string{"acquire", "persist", "analyze", "forward", "notify", "save_alert"}, tail)

	require.Len(t, h.store.alerts, 1)
	require.NotNil(t, h.store.alerts[0].AIAnalysis)
	assert.Equal(t, "Risk: high", *h.store.alerts[0].AIAnalysis)
	require.Len(t, h.notifier.events, 1)
	assert.Equal(t, h.store.alerts[0].EventID, h.notifier.events[0].EventID)
}

func TestRunCycle_ScoreAboveThresholdWithoutMotion(t *testing.T) {
	r := safeReading(75)
	h := newHarness(t, r)

	h.cycleAt(0)

	require.Len(t, h.store.alerts, 1)
	assert.Contains(t, h.status.String(), "🟢 SAFE")
	assert.Contains(t, h.status.String(), "fall alert!")
}

func TestRunCycle_FillsMissingDeviceID(t *testing.T) {
	r := safeReading(5)
	r.DeviceID = ""
	h := newHarness(t, r)

	h.cycleAt(0)

	require.Equal(t, 1, h.store.readingCount())
	assert.Equal(t, "ESP32-001", h.store.readings[0].DeviceID)
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, safeReading(1), safeReading(2), safeReading(3))
	h.svc.deps.Now = time.Now

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, h.svc.Start(ctx))
	}()

	require.Eventually(t, func() bool {
		return h.store.readingCount() == 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()

	require.NoError(t, h.svc.Stop(context.Background()))
	require.NoError(t, h.svc.Stop(context.Background()))
	assert.Equal(t, 1, h.src.closeCount())
}

func TestStart_ReturnsPromptlyOnCancel(t *testing.T) {
	h := newHarness(t)
	h.svc.config.Bridge.PollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.svc.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestFormatStatusLine(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 5, 9, 0, time.UTC)

	line := formatStatusLine(at, models.Reading{MovementScore: 85, MotionDetected: true}, true)
	assert.Equal(t, "[08:05:09] 🔴 FALL score= 85.00 ["+strings.Repeat("█", 17)+strings.Repeat("░", 3)+"] ⚠️  fall alert!", line)

	line = formatStatusLine(at, models.Reading{MovementScore: 3.5}, false)
	assert.Equal(t, "[08:05:09] 🟢 SAFE score=  3.50 ["+strings.Repeat("░", 20)+"]", line)
}

func TestGauge_Bounds(t *testing.T) {
	assert.Equal(t, strings.Repeat("█", 20), gauge(100))
	assert.Equal(t, strings.Repeat("█", 20), gauge(140))
	assert.Equal(t, strings.Repeat("░", 20), gauge(-3))
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Bridge.Mode = config.ModeHTTP
	cfg.Bridge.DeviceID = "ESP32-001"
	cfg.Bridge.PollInterval = 5 * time.Millisecond
	cfg.Bridge.FallThreshold = models.Float64Ptr(70)
	cfg.Bridge.FallCooldown = 30 * time.Second
	cfg.Bridge.BufferSize = 30
	cfg.Bridge.WarnAfterMiss = 10
	cfg.Backend.EnrichWithAI = true
	cfg.Backend.Timeout = time.Second
	return cfg
}

func fallReading() *models.Reading {
	return &models.Reading{
		DeviceID:       "ESP32-001",
		MovementScore:  85,
		MotionDetected: true,
		Threshold:      models.Float64Ptr(70),
	}
}

func safeReading(score float64) *models.Reading {
	return &models.Reading{DeviceID: "ESP32-001", MovementScore: score}
}
