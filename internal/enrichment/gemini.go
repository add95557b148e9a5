package enrichment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wisefido-bridge/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// GeminiAnalyzer 调用 Gemini generateContent REST 接口
type GeminiAnalyzer struct {
	client        *resty.Client
	model         string
	fallThreshold *float64
	logger        *zap.Logger
}

// NewGeminiAnalyzer 创建 Gemini 分析器
func NewGeminiAnalyzer(baseURL, apiKey, model string, timeout time.Duration, fallThreshold *float64, logger *zap.Logger) *GeminiAnalyzer {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-goog-api-key", apiKey)

	return &GeminiAnalyzer{
		client:        client,
		model:         model,
		fallThreshold: fallThreshold,
		logger:        logger,
	}
}

// New 没有 API key 时返回 NoopAnalyzer
func New(baseURL, apiKey, model string, timeout time.Duration, fallThreshold *float64, logger *zap.Logger) Analyzer {
	if apiKey == "" {
		return NoopAnalyzer{}
	}
	return NewGeminiAnalyzer(baseURL, apiKey, model, timeout, fallThreshold, logger)
}

// Analyze 读数不足 MinReadings 条时直接跳过；任何错误都只体现在返回值里
func (g *GeminiAnalyzer) Analyze(ctx context.Context, readings []models.Reading) Analysis {
	if len(readings) < MinReadings {
		return Analysis{Skipped: true}
	}

	req := generateRequest{
		Contents: []content{{Parts: []part{{Text: BuildPrompt(readings, g.fallThreshold)}}}},
	}
	var out generateResponse

	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("model", g.model).
		SetBody(req).
		SetResult(&out).
		Post("/v1beta/models/{model}:generateContent")
	if err != nil {
		g.logger.Warn("AI analysis request failed", zap.Error(err))
		return Analysis{Err: fmt.Errorf("gemini request failed: %w", err)}
	}
	if resp.IsError() {
		g.logger.Warn("AI analysis returned error status", zap.Int("status", resp.StatusCode()))
		return Analysis{Err: fmt.Errorf("gemini returned status %d", resp.StatusCode())}
	}

	for _, c := range out.Candidates {
		for _, p := range c.Content.Parts {
			if text := strings.TrimSpace(p.Text); text != "" {
				return Analysis{Text: text}
			}
		}
	}
	return Analysis{Err: fmt.Errorf("gemini returned no text")}
}
