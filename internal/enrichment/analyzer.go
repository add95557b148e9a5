package enrichment

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"wisefido-bridge/internal/models"
)

const (
	// MinReadings 缓冲区少于这么多条时不做分析
	MinReadings = 10
	// PromptWindow 提示词使用的最近读数条数
	PromptWindow = 20
	// promptShown 提示词中逐条列出的分数条数
	promptShown = 10
)

// Analysis 分析结果；Text 为空表示不可用
type Analysis struct {
	Text    string
	Skipped bool
	Err     error
}

// Available 是否有可用的分析文本
func (a Analysis) Available() bool {
	return a.Text != ""
}

// Analyzer 根据最近的读数生成一段简短的风险评估
type Analyzer interface {
	Analyze(ctx context.Context, readings []models.Reading) Analysis
}

// NoopAnalyzer 未配置 AI 时使用
type NoopAnalyzer struct{}

// Analyze 总是返回不可用
func (NoopAnalyzer) Analyze(context.Context, []models.Reading) Analysis {
	return Analysis{Skipped: true}
}

// BuildPrompt 用最近 ≤20 条读数构建提示词
func BuildPrompt(readings []models.Reading, fallThreshold *float64) string {
	if len(readings) > PromptWindow {
		readings = readings[len(readings)-PromptWindow:]
	}
	if len(readings) == 0 {
		return ""
	}

	scores := make([]string, 0, len(readings))
	sum, peak, motions := 0.0, math.Inf(-1), 0
	for _, r := range readings {
		scores = append(scores, strconv.FormatFloat(r.MovementScore, 'f', -1, 64))
		sum += r.MovementScore
		peak = math.Max(peak, r.MovementScore)
		if r.MotionDetected {
			motions++
		}
	}
	shown := scores
	if len(shown) > promptShown {
		shown = shown[len(shown)-promptShown:]
	}

	threshold := "off (motion flag only)"
	if fallThreshold != nil {
		threshold = fmt.Sprintf("%.1f", *fallThreshold)
	}

	var b strings.Builder
	b.WriteString("You are a fall-detection assistant for WiFi CSI motion sensing. ")
	b.WriteString("Analyze the movement_score sequence below and judge the fall risk.\n")
	b.WriteString("Reply with one short conclusion line plus a risk level (low/medium/high/critical).\n\n")
	b.WriteString("Summary:\n")
	fmt.Fprintf(&b, "- last %d movement_score values: [%s]\n", len(readings), strings.Join(shown, ", "))
	fmt.Fprintf(&b, "- average: %.2f\n", sum/float64(len(readings)))
	fmt.Fprintf(&b, "- max: %.2f\n", peak)
	fmt.Fprintf(&b, "- motion detected count: %d\n", motions)
	fmt.Fprintf(&b, "- fall threshold: %s\n\n", threshold)
	b.WriteString("Analysis:")
	return b.String()
}
