package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wisefido-bridge/internal/config"
	"wisefido-bridge/internal/models"

	"go.uber.org/zap"
)

// ErrUnsupportedMode 未知的数据来源模式
var ErrUnsupportedMode = errors.New("unsupported source mode")

// Source 读数来源
// Acquire 每次最多产生一条读数；返回 nil 表示本轮没有数据（不是错误）
type Source interface {
	Acquire(ctx context.Context) *models.Reading
	Close() error
}

// New 按配置的模式创建读数来源
func New(cfg *config.Config, logger *zap.Logger) (Source, error) {
	switch cfg.Bridge.Mode {
	case config.ModeHTTP:
		return NewHTTPSource(cfg.DeviceURL(), cfg.Bridge.DeviceID, cfg.Device.Timeout, logger), nil
	case config.ModeSerial:
		return NewSerialSource(cfg.Serial.Port, cfg.Serial.Baud, cfg.Serial.Settle, cfg.Bridge.DeviceID, logger), nil
	case config.ModeSim:
		return NewSimSource(SimOptions{
			DeviceID:        cfg.Bridge.DeviceID,
			Period:          cfg.Sim.Period,
			FallProbability: cfg.Sim.FallProbability,
			FallThreshold:   cfg.Bridge.FallThreshold,
			Seed:            uint64(time.Now().UnixNano()),
		}), nil
	case config.ModeMQTT:
		src, err := NewMQTTSource(&cfg.MQTT, cfg.MQTTSource.StatusTopic, cfg.Bridge.DeviceID, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to start MQTT source: %w", err)
		}
		return src, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, cfg.Bridge.Mode)
	}
}
