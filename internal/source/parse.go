package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"wisefido-bridge/internal/models"
)

var (
	movementPattern  = regexp.MustCompile(`Movement:\s*([\d.]+)`)
	thresholdPattern = regexp.MustCompile(`Threshold:\s*([\d.]+)`)

	errMissingScore = errors.New("movement_score missing or not finite")
)

// statusPayload ESP32 上报的 JSON 结构
type statusPayload struct {
	DeviceID       string   `json:"device_id"`
	MovementScore  *float64 `json:"movement_score"`
	MotionDetected bool     `json:"motion_detected"`
	Threshold      *float64 `json:"threshold"`
	Status         string   `json:"status"`
}

// ParseJSON 解析 JSON 状态报文
// 配置的 deviceID 优先，为空时才使用报文里的 device_id
func ParseJSON(payload []byte, deviceID string) (*models.Reading, error) {
	var p statusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status payload: %w", err)
	}
	if p.MovementScore == nil || !finite(*p.MovementScore) {
		return nil, errMissingScore
	}
	if p.Threshold != nil && !finite(*p.Threshold) {
		p.Threshold = nil
	}

	if deviceID == "" {
		deviceID = p.DeviceID
	}

	r := &models.Reading{
		DeviceID:       deviceID,
		MovementScore:  *p.MovementScore,
		MotionDetected: p.MotionDetected,
		Threshold:      p.Threshold,
		Status:         p.Status,
		Raw:            cleanRaw(string(payload)),
	}
	if !r.Valid() {
		return nil, errMissingScore
	}
	return r, nil
}

// ParseLine 解析串口的一行输出
// 先尝试 "Movement: 0.234 | Motion: ON | Threshold: 1.40" 文本格式，再尝试 JSON
func ParseLine(line, deviceID string) *models.Reading {
	line = strings.TrimSpace(cleanRaw(line))
	if line == "" {
		return nil
	}

	if m := movementPattern.FindStringSubmatch(line); m != nil {
		score, err := strconv.ParseFloat(m[1], 64)
		if err == nil && finite(score) {
			r := &models.Reading{
				DeviceID:       deviceID,
				MovementScore:  score,
				MotionDetected: strings.Contains(line, "Motion: ON") || strings.Contains(line, "Motion: YES"),
				Raw:            line,
			}
			if t := thresholdPattern.FindStringSubmatch(line); t != nil {
				if v, err := strconv.ParseFloat(t[1], 64); err == nil && finite(v) {
					r.Threshold = &v
				}
			}
			return r
		}
	}

	if strings.HasPrefix(line, "{") {
		r, err := ParseJSON([]byte(line), deviceID)
		if err != nil {
			return nil
		}
		return r
	}

	return nil
}

// cleanRaw 去掉 NUL 与非法 UTF-8，设备重启时串口常带这类噪声，TEXT 列无法存储
func cleanRaw(s string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(s, ""), "\x00", "")
}

// looksLikeJSON 首个非空白字节是 '{'
func looksLikeJSON(payload []byte) bool {
	trimmed := bytes.TrimSpace(payload)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
