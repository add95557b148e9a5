package notifier

import (
	"context"
	"fmt"
	"time"

	"wisefido-bridge/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	linePushPath = "/v2/bot/message/push"
	lineTimeout  = 5 * time.Second
)

// Notifier 跌倒警报推播
type Notifier interface {
	Notify(ctx context.Context, event *models.AlertEvent, score float64) models.DeliveryResult
}

type lineMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type linePushRequest struct {
	To       string        `json:"to"`
	Messages []lineMessage `json:"messages"`
}

// LineNotifier LINE Messaging API push；失败只记录，不重试
type LineNotifier struct {
	client *resty.Client
	userID string
	logger *zap.Logger
}

// NewLineNotifier 创建 LINE 推播；token 或 userID 为空时 Notify 直接跳过
func NewLineNotifier(baseURL, token, userID string, logger *zap.Logger) *LineNotifier {
	n := &LineNotifier{userID: userID, logger: logger}
	if token == "" || userID == "" {
		return n
	}

	n.client = resty.New().
		SetBaseURL(baseURL).
		SetTimeout(lineTimeout).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json")
	return n
}

// Enabled 是否已配置
func (n *LineNotifier) Enabled() bool {
	return n.client != nil
}

// Notify 推送跌倒警报
func (n *LineNotifier) Notify(ctx context.Context, event *models.AlertEvent, score float64) models.DeliveryResult {
	if !n.Enabled() {
		return models.DeliveryResult{Skipped: true}
	}

	aiText := ""
	if event.AIAnalysis != nil {
		aiText = *event.AIAnalysis
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(linePushRequest{
			To:       n.userID,
			Messages: []lineMessage{{Type: "text", Text: FormatMessage(event.CreatedAt, score, event.DeviceID, aiText)}},
		}).
		Post(linePushPath)
	if err != nil {
		return models.DeliveryResult{Err: fmt.Errorf("line push failed: %w", err)}
	}
	if resp.IsError() {
		return models.DeliveryResult{
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("line push returned status %d: %s", resp.StatusCode(), resp.String()),
		}
	}

	return models.DeliveryResult{Delivered: true, StatusCode: resp.StatusCode()}
}

// FormatMessage 警报推播文本
func FormatMessage(at time.Time, score float64, deviceID, aiText string) string {
	text := fmt.Sprintf("🚨 Wi-Care fall alert\nTime: %s\nScore: %.1f\nDevice: %s",
		at.Local().Format("2006/01/02 15:04:05"), score, deviceID)
	if aiText != "" {
		text += "\nAI analysis: " + aiText
	}
	return text
}
