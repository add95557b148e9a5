package models

import (
	"math"
	"time"
)

// Reading 标准化后的传感器读数（对应 sensor_data 表）
type Reading struct {
	DeviceID       string    `json:"device_id"`
	MovementScore  float64   `json:"movement_score"`
	MotionDetected bool      `json:"motion_detected"`
	Threshold      *float64  `json:"threshold"`             // 设备上报的阈值，可能缺失
	Status         string    `json:"status,omitempty"`      // "fall" / "safe"，仅供诊断
	Raw            string    `json:"raw,omitempty"`         // 原始报文
	CapturedAt     time.Time `json:"captured_at,omitempty"` // 为零值时在持久化时补齐
}

// Valid 读数是否可用（分数必须是有限值）
func (r *Reading) Valid() bool {
	return r != nil && r.DeviceID != "" && !math.IsNaN(r.MovementScore) && !math.IsInf(r.MovementScore, 0)
}

// Float64Ptr 辅助函数
func Float64Ptr(v float64) *float64 {
	return &v
}
