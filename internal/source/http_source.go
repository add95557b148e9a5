package source

import (
	"context"
	"net/http"
	"time"

	"wisefido-bridge/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// HTTPSource 轮询 ESP32 的 /status 端点
type HTTPSource struct {
	client   *resty.Client
	url      string
	deviceID string
	logger   *zap.Logger
}

// NewHTTPSource 创建 HTTP 轮询来源；timeout 必须小于轮询间隔
func NewHTTPSource(url, deviceID string, timeout time.Duration, logger *zap.Logger) *HTTPSource {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &HTTPSource{
		client:   client,
		url:      url,
		deviceID: deviceID,
		logger:   logger,
	}
}

// Acquire 请求一次状态；传输错误、非 200 或报文无效都返回 nil
func (s *HTTPSource) Acquire(ctx context.Context) *models.Reading {
	resp, err := s.client.R().SetContext(ctx).Get(s.url)
	if err != nil {
		s.logger.Debug("Device request failed", zap.String("url", s.url), zap.Error(err))
		return nil
	}
	if resp.StatusCode() != http.StatusOK {
		s.logger.Debug("Device returned non-200 status",
			zap.String("url", s.url),
			zap.Int("status", resp.StatusCode()),
		)
		return nil
	}

	body := resp.Body()
	if !looksLikeJSON(body) {
		s.logger.Debug("Device returned non-JSON body", zap.Int("size", len(body)))
		return nil
	}

	r, err := ParseJSON(body, s.deviceID)
	if err != nil {
		s.logger.Debug("Failed to parse device status", zap.Error(err))
		return nil
	}
	return r
}

// Close 无需释放资源
func (s *HTTPSource) Close() error {
	return nil
}
