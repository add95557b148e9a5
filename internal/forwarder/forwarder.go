package forwarder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wisefido-bridge/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// pushPayload 下游 /api/sensor-data/push 请求体
type pushPayload struct {
	DeviceID       string   `json:"device_id"`
	MovementScore  float64  `json:"movement_score"`
	MotionDetected bool     `json:"motion_detected"`
	Threshold      *float64 `json:"threshold"`
	AIAnalysis     string   `json:"ai_analysis,omitempty"`
}

// Forwarder 把读数推送到下游后端，所有错误都在内部吞掉
// 后端持续失败时熔断，避免每轮都等满超时
type Forwarder struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker[*resty.Response]
	path    string
	logger  *zap.Logger
}

// Option Forwarder 选项
type Option func(*gobreaker.Settings)

// WithBreakerSettings 覆盖熔断参数（测试用）
func WithBreakerSettings(maxFailures uint32, openTimeout time.Duration) Option {
	return func(st *gobreaker.Settings) {
		st.Timeout = openTimeout
		st.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > maxFailures
		}
	}
}

// New 创建 Forwarder
func New(baseURL, path string, timeout time.Duration, logger *zap.Logger, opts ...Option) *Forwarder {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	settings := gobreaker.Settings{
		Name:        "backend-push",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("Backend circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	for _, opt := range opts {
		opt(&settings)
	}

	return &Forwarder{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[*resty.Response](settings),
		path:    path,
		logger:  logger,
	}
}

// Forward 推送一条读数；aiText 为空时不带 ai_analysis 字段
func (f *Forwarder) Forward(ctx context.Context, r models.Reading, aiText string) models.DeliveryResult {
	payload := pushPayload{
		DeviceID:       r.DeviceID,
		MovementScore:  r.MovementScore,
		MotionDetected: r.MotionDetected,
		Threshold:      r.Threshold,
		AIAnalysis:     aiText,
	}

	resp, err := f.breaker.Execute(func() (*resty.Response, error) {
		resp, err := f.client.R().
			SetContext(ctx).
			SetBody(payload).
			Post(f.path)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return resp, fmt.Errorf("backend returned status %d", resp.StatusCode())
		}
		return resp, nil
	})

	result := models.DeliveryResult{Err: err}
	if resp != nil {
		result.StatusCode = resp.StatusCode()
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		result.Skipped = true
	}
	result.Delivered = err == nil

	if err != nil {
		f.logger.Debug("Forward failed",
			zap.String("device_id", r.DeviceID),
			zap.Int("status", result.StatusCode),
			zap.Error(err),
		)
	}
	return result
}
