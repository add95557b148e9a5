package publisher

import (
	"context"
	"fmt"
	"time"

	rediscommon "wisefido-bridge/common/redis"
	"wisefido-bridge/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

// Publisher 读数与警报的流式分发（尽力而为）
type Publisher interface {
	PublishReading(ctx context.Context, r models.Reading) models.DeliveryResult
	PublishAlert(ctx context.Context, event *models.AlertEvent) models.DeliveryResult
}

// NoopPublisher 未启用 Redis 时使用
type NoopPublisher struct{}

// PublishReading 跳过
func (NoopPublisher) PublishReading(context.Context, models.Reading) models.DeliveryResult {
	return models.DeliveryResult{Skipped: true}
}

// PublishAlert 跳过
func (NoopPublisher) PublishAlert(context.Context, *models.AlertEvent) models.DeliveryResult {
	return models.DeliveryResult{Skipped: true}
}

// StreamPublisher 写入 Redis Streams，供下游服务消费
type StreamPublisher struct {
	client        *redis.Client
	readingStream string
	alertStream   string
	logger        *zap.Logger
}

// NewStreamPublisher 创建 Redis Streams 发布器
func NewStreamPublisher(client *redis.Client, readingStream, alertStream string, logger *zap.Logger) *StreamPublisher {
	return &StreamPublisher{
		client:        client,
		readingStream: readingStream,
		alertStream:   alertStream,
		logger:        logger,
	}
}

// PublishReading 发布读数
func (p *StreamPublisher) PublishReading(ctx context.Context, r models.Reading) models.DeliveryResult {
	return p.publish(ctx, p.readingStream, r)
}

// PublishAlert 发布警报事件
func (p *StreamPublisher) PublishAlert(ctx context.Context, event *models.AlertEvent) models.DeliveryResult {
	return p.publish(ctx, p.alertStream, event)
}

func (p *StreamPublisher) publish(ctx context.Context, stream string, data interface{}) models.DeliveryResult {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	id, err := rediscommon.PublishJSONToStream(ctx, p.client, stream, data)
	if err != nil {
		return models.DeliveryResult{Err: fmt.Errorf("failed to publish to stream %s: %w", stream, err)}
	}

	p.logger.Debug("Published to stream",
		zap.String("stream", stream),
		zap.String("message_id", id),
	)
	return models.DeliveryResult{Delivered: true}
}
