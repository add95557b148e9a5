package service

import (
	"fmt"
	"io"
	"strings"
	"time"

	"wisefido-bridge/internal/models"
)

const gaugeCells = 20

// gauge 20 格分数条，每格 5 分
func gauge(score float64) string {
	filled := int(score / 5)
	if filled < 0 {
		filled = 0
	}
	if filled > gaugeCells {
		filled = gaugeCells
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", gaugeCells-filled)
}

// formatStatusLine 每轮的操作员状态行
func formatStatusLine(at time.Time, r models.Reading, fired bool) string {
	indicator := "🟢 SAFE"
	if r.MotionDetected {
		indicator = "🔴 FALL"
	}
	line := fmt.Sprintf("[%s] %s score=%6.2f [%s]", at.Format("15:04:05"), indicator, r.MovementScore, gauge(r.MovementScore))
	if fired {
		line += " ⚠️  fall alert!"
	}
	return line
}

func writeStatus(w io.Writer, line string) {
	if w == nil {
		return
	}
	fmt.Fprintln(w, line)
}
