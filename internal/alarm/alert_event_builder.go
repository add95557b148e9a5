package alarm

import (
	"encoding/json"
	"fmt"
	"time"

	"wisefido-bridge/internal/models"

	"github.com/google/uuid"
)

// AlertEventBuilder 跌倒警报事件构建器
type AlertEventBuilder struct {
	deviceID      string
	source        string
	fallThreshold *float64
}

// NewAlertEventBuilder 创建警报事件构建器
func NewAlertEventBuilder(deviceID, source string, fallThreshold *float64) *AlertEventBuilder {
	return &AlertEventBuilder{
		deviceID:      deviceID,
		source:        source,
		fallThreshold: fallThreshold,
	}
}

// Build 构建 fall_alert 事件；aiAnalysis 为空字符串时不写入
func (b *AlertEventBuilder) Build(r models.Reading, aiAnalysis string, now time.Time) (*models.AlertEvent, error) {
	triggerData := &models.TriggerData{
		MovementScore:  r.MovementScore,
		MotionDetected: r.MotionDetected,
		Threshold:      r.Threshold,
		FallThreshold:  b.fallThreshold,
		Source:         b.source,
	}

	data, err := json.Marshal(triggerData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	deviceID := r.DeviceID
	if deviceID == "" {
		deviceID = b.deviceID
	}

	event := &models.AlertEvent{
		EventID:   uuid.New().String(),
		DeviceID:  deviceID,
		Type:      models.AlertTypeFall,
		Severity:  models.SeverityCritical,
		Message:   FallMessage(r.MovementScore),
		Data:      data,
		CreatedAt: now,
	}
	if aiAnalysis != "" {
		event.AIAnalysis = &aiAnalysis
	}

	return event, nil
}

// FallMessage 警报摘要（分数保留一位小数）
func FallMessage(score float64) string {
	return fmt.Sprintf("fall detected score=%.1f", score)
}
