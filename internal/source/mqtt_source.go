package source

import (
	"context"
	"fmt"
	"sync"

	"wisefido-bridge/common/config"
	mqttcommon "wisefido-bridge/common/mqtt"
	"wisefido-bridge/internal/models"

	"go.uber.org/zap"
)

// MQTTSource 订阅 ESP32 状态主题，只保留最新一条读数
// paho 回调在自己的 goroutine 中执行，信箱需要加锁
type MQTTSource struct {
	client   *mqttcommon.Client
	topic    string
	deviceID string
	logger   *zap.Logger

	mu     sync.Mutex
	latest *models.Reading
}

// NewMQTTSource 连接 broker 并订阅状态主题
func NewMQTTSource(cfg *config.MQTTConfig, topic, deviceID string, logger *zap.Logger) (*MQTTSource, error) {
	client, err := mqttcommon.NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := newMQTTSource(topic, deviceID, logger)
	s.client = client

	if err := client.Subscribe(topic, cfg.QoS, s.handleMessage); err != nil {
		client.Disconnect()
		return nil, err
	}

	logger.Info("MQTT source subscribed", zap.String("topic", topic))
	return s, nil
}

func newMQTTSource(topic, deviceID string, logger *zap.Logger) *MQTTSource {
	return &MQTTSource{
		topic:    topic,
		deviceID: deviceID,
		logger:   logger,
	}
}

// handleMessage 解析报文并覆盖信箱中的旧读数
func (s *MQTTSource) handleMessage(topic string, payload []byte) error {
	if !looksLikeJSON(payload) {
		return fmt.Errorf("non-JSON payload on %s", topic)
	}
	r, err := ParseJSON(payload, s.deviceID)
	if err != nil {
		return fmt.Errorf("invalid status on %s: %w", topic, err)
	}

	s.mu.Lock()
	s.latest = r
	s.mu.Unlock()
	return nil
}

// Acquire 取出上一轮之后收到的最新读数
func (s *MQTTSource) Acquire(_ context.Context) *models.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.latest
	s.latest = nil
	return r
}

// Close 取消订阅并断开
func (s *MQTTSource) Close() error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Unsubscribe(s.topic); err != nil {
		s.logger.Warn("Failed to unsubscribe", zap.String("topic", s.topic), zap.Error(err))
	}
	s.client.Disconnect()
	s.client = nil
	return nil
}
