package models

import (
	"encoding/json"
	"time"
)

const (
	// AlertTypeFall 跌倒警报类型
	AlertTypeFall = "fall_alert"
	// SeverityCritical 跌倒路径固定为 critical
	SeverityCritical = "critical"
)

// AlertEvent 跌倒警报事件（对应 events 表，插入后本服务不再修改）
type AlertEvent struct {
	EventID      string          `json:"event_id" db:"event_id"`
	DeviceID     string          `json:"device_id" db:"device_id"`
	Type         string          `json:"type" db:"type"`
	Severity     string          `json:"severity" db:"severity"`
	Message      string          `json:"message" db:"message"`
	AIAnalysis   *string         `json:"ai_analysis,omitempty" db:"ai_analysis"`
	Data         json.RawMessage `json:"data" db:"data"` // JSONB 触发快照
	IsFalseAlarm bool            `json:"is_false_alarm" db:"is_false_alarm"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// TriggerData 触发数据快照
type TriggerData struct {
	MovementScore  float64  `json:"movement_score"`
	MotionDetected bool     `json:"motion_detected"`
	Threshold      *float64 `json:"threshold,omitempty"`      // 设备上报阈值
	FallThreshold  *float64 `json:"fall_threshold,omitempty"` // 本地配置阈值
	Source         string   `json:"source"`                   // http / serial / sim / mqtt
}
