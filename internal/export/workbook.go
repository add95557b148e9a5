package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"wisefido-bridge/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	readingsSheet = "Readings"
	alertsSheet   = "Alerts"
	timeLayout    = "2006-01-02 15:04:05"
)

var (
	readingHeaders = []string{"Captured At", "Device ID", "Movement Score", "Motion Detected", "Threshold", "Raw Payload"}
	alertHeaders   = []string{"Created At", "Event ID", "Device ID", "Type", "Severity", "Message", "AI Analysis", "False Alarm"}
)

// ReadingLister 读数查询
type ReadingLister interface {
	ListReadings(ctx context.Context, deviceID string, since time.Time, limit int) ([]models.Reading, error)
}

// AlertLister 警报查询
type AlertLister interface {
	ListAlertEvents(ctx context.Context, deviceID string, since time.Time, limit int) ([]models.AlertEvent, error)
}

// Exporter 把设备的读数与警报导出为 xlsx
type Exporter struct {
	readings ReadingLister
	alerts   AlertLister
}

// NewExporter 创建导出器
func NewExporter(readings ReadingLister, alerts AlertLister) *Exporter {
	return &Exporter{readings: readings, alerts: alerts}
}

// Summary 导出结果；Truncated 表示某个工作表达到 limit，只保留了最新的数据
type Summary struct {
	Readings  int
	Alerts    int
	Truncated bool
}

// Export 查询 since 之后最新的数据并写出工作簿
func (e *Exporter) Export(ctx context.Context, w io.Writer, deviceID string, since time.Time, limit int) (Summary, error) {
	readings, err := e.readings.ListReadings(ctx, deviceID, since, limit)
	if err != nil {
		return Summary{}, err
	}
	alerts, err := e.alerts.ListAlertEvents(ctx, deviceID, since, limit)
	if err != nil {
		return Summary{}, err
	}

	data, err := BuildWorkbook(readings, alerts)
	if err != nil {
		return Summary{}, err
	}
	if _, err := w.Write(data); err != nil {
		return Summary{}, fmt.Errorf("failed to write workbook: %w", err)
	}
	return Summary{
		Readings:  len(readings),
		Alerts:    len(alerts),
		Truncated: limit > 0 && (len(readings) >= limit || len(alerts) >= limit),
	}, nil
}

// BuildWorkbook 生成包含 Readings / Alerts 两个工作表的 xlsx
func BuildWorkbook(readings []models.Reading, alerts []models.AlertEvent) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	index, err := f.NewSheet(readingsSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if _, err := f.NewSheet(alertsSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	// 删除默认的 Sheet1
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := writeHeader(f, readingsSheet, readingHeaders, headerStyle); err != nil {
		return nil, err
	}
	for i, r := range readings {
		row := []interface{}{
			r.CapturedAt.Format(timeLayout),
			r.DeviceID,
			r.MovementScore,
			yesNo(r.MotionDetected),
			nil,
			r.Raw,
		}
		if r.Threshold != nil {
			row[4] = *r.Threshold
		}
		if err := writeRow(f, readingsSheet, i+2, row); err != nil {
			return nil, err
		}
	}

	if err := writeHeader(f, alertsSheet, alertHeaders, headerStyle); err != nil {
		return nil, err
	}
	for i, a := range alerts {
		ai := ""
		if a.AIAnalysis != nil {
			ai = *a.AIAnalysis
		}
		row := []interface{}{
			a.CreatedAt.Format(timeLayout),
			a.EventID,
			a.DeviceID,
			a.Type,
			a.Severity,
			a.Message,
			ai,
			yesNo(a.IsFalseAlarm),
		}
		if err := writeRow(f, alertsSheet, i+2, row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}

	// 冻结表头
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for col, value := range values {
		if value == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", cell, err)
		}
	}
	return nil
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
