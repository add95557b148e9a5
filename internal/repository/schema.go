package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// schemaStatements 建表语句，全部 IF NOT EXISTS，可重复执行
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sensor_data (
		id              BIGSERIAL PRIMARY KEY,
		device_id       TEXT NOT NULL,
		movement_score  DOUBLE PRECISION NOT NULL,
		motion_detected BOOLEAN NOT NULL DEFAULT FALSE,
		threshold       DOUBLE PRECISION,
		raw_payload     TEXT,
		captured_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sensor_data_device_captured
		ON sensor_data (device_id, captured_at)`,
	`CREATE TABLE IF NOT EXISTS events (
		id             BIGSERIAL PRIMARY KEY,
		event_id       TEXT UNIQUE NOT NULL,
		elderly_id     BIGINT,
		device_id      TEXT,
		type           TEXT NOT NULL,
		severity       TEXT NOT NULL DEFAULT 'info',
		message        TEXT,
		ai_analysis    TEXT,
		data           JSONB NOT NULL DEFAULT '{}',
		is_false_alarm BOOLEAN NOT NULL DEFAULT FALSE,
		resolved_at    TIMESTAMPTZ,
		resolved_by    BIGINT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_device_created
		ON events (device_id, created_at)`,
}

// InitSchema 启动时建表（不做破坏性迁移）
func InitSchema(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	logger.Info("Database schema ready")
	return nil
}
