package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"wisefido-bridge/internal/models"

	"go.uber.org/zap"
)

// ErrInvalidReading 读数缺少设备或分数不是有限值
var ErrInvalidReading = errors.New("invalid reading")

// SensorDataRepository sensor_data 表（只追加）
type SensorDataRepository struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewSensorDataRepository 创建读数仓库
func NewSensorDataRepository(db *sql.DB, logger *zap.Logger) *SensorDataRepository {
	return &SensorDataRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// SaveReading 写入一条读数，返回前已提交
// captured_at 为零值时使用当前时间
func (r *SensorDataRepository) SaveReading(ctx context.Context, reading *models.Reading) error {
	if !reading.Valid() {
		return ErrInvalidReading
	}
	if reading.CapturedAt.IsZero() {
		reading.CapturedAt = r.now()
	}

	query := `
		INSERT INTO sensor_data (
			device_id, movement_score, motion_detected, threshold, raw_payload, captured_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		reading.DeviceID,
		reading.MovementScore,
		reading.MotionDetected,
		nullFloat(reading.Threshold),
		nullString(reading.Raw),
		reading.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sensor data: %w", err)
	}

	return nil
}

// ListReadings 查询设备在 since 之后最新的 limit 条读数，结果按时间升序
func (r *SensorDataRepository) ListReadings(ctx context.Context, deviceID string, since time.Time, limit int) ([]models.Reading, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT device_id, movement_score, motion_detected, threshold, raw_payload, captured_at
		FROM sensor_data
		WHERE device_id = $1 AND captured_at >= $2
		ORDER BY captured_at DESC, id DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor data: %w", err)
	}
	defer rows.Close()

	var readings []models.Reading
	for rows.Next() {
		var (
			reading   models.Reading
			threshold sql.NullFloat64
			raw       sql.NullString
		)
		if err := rows.Scan(
			&reading.DeviceID,
			&reading.MovementScore,
			&reading.MotionDetected,
			&threshold,
			&raw,
			&reading.CapturedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sensor data: %w", err)
		}
		if threshold.Valid {
			reading.Threshold = models.Float64Ptr(threshold.Float64)
		}
		reading.Raw = raw.String
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sensor data: %w", err)
	}

	slices.Reverse(readings)
	return readings, nil
}

// CountReadings 设备的读数总数
func (r *SensorDataRepository) CountReadings(ctx context.Context, deviceID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sensor_data WHERE device_id = $1`, deviceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sensor data: %w", err)
	}
	return count, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
