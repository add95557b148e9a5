package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"wisefido-bridge/internal/models"

	"go.uber.org/zap"
)

// EventsRepository events 表；本服务只插入，不更新
type EventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEventsRepository 创建警报事件仓库
func NewEventsRepository(db *sql.DB, logger *zap.Logger) *EventsRepository {
	return &EventsRepository{
		db:     db,
		logger: logger,
	}
}

// SaveAlert 写入一条警报事件
func (r *EventsRepository) SaveAlert(ctx context.Context, event *models.AlertEvent) error {
	if event.EventID == "" {
		return fmt.Errorf("event_id is required")
	}

	data := event.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO events (
			event_id, device_id, type, severity, message, ai_analysis, data, is_false_alarm, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	var aiAnalysis sql.NullString
	if event.AIAnalysis != nil {
		aiAnalysis = sql.NullString{String: *event.AIAnalysis, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		event.EventID,
		event.DeviceID,
		event.Type,
		event.Severity,
		event.Message,
		aiAnalysis,
		string(data),
		event.IsFalseAlarm,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert event: %w", err)
	}

	r.logger.Debug("Alert event saved",
		zap.String("event_id", event.EventID),
		zap.String("device_id", event.DeviceID),
	)
	return nil
}

// ListAlertEvents 查询设备在 since 之后最新的 limit 条警报，结果按时间升序
func (r *EventsRepository) ListAlertEvents(ctx context.Context, deviceID string, since time.Time, limit int) ([]models.AlertEvent, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT event_id, device_id, type, severity, message, ai_analysis, data, is_false_alarm, created_at
		FROM events
		WHERE device_id = $1 AND created_at >= $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert events: %w", err)
	}
	defer rows.Close()

	var events []models.AlertEvent
	for rows.Next() {
		var (
			event      models.AlertEvent
			deviceID   sql.NullString
			message    sql.NullString
			aiAnalysis sql.NullString
			data       []byte
		)
		if err := rows.Scan(
			&event.EventID,
			&deviceID,
			&event.Type,
			&event.Severity,
			&message,
			&aiAnalysis,
			&data,
			&event.IsFalseAlarm,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert event: %w", err)
		}
		event.DeviceID = deviceID.String
		event.Message = message.String
		if aiAnalysis.Valid {
			event.AIAnalysis = &aiAnalysis.String
		}
		event.Data = json.RawMessage(data)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert events: %w", err)
	}

	slices.Reverse(events)
	return events, nil
}
