package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"wisefido-bridge/common/database"
	"wisefido-bridge/common/logger"
	"wisefido-bridge/internal/config"
	"wisefido-bridge/internal/export"
	"wisefido-bridge/internal/repository"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	deviceID := flag.String("device-id", cfg.Bridge.DeviceID, "device id")
	since := flag.Duration("since", 24*time.Hour, "export data newer than this")
	limit := flag.Int("limit", 10000, "max rows per sheet")
	output := flag.String("out", "wicare-report.xlsx", "output .xlsx path")
	flag.Parse()

	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-bridge-export")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	f, err := os.Create(*output)
	if err != nil {
		zapLogger.Fatal("Failed to create output file", zap.String("path", *output), zap.Error(err))
	}

	exporter := export.NewExporter(
		repository.NewSensorDataRepository(db, zapLogger),
		repository.NewEventsRepository(db, zapLogger),
	)
	summary, err := exporter.Export(ctx, f, *deviceID, time.Now().Add(-*since), *limit)
	if err != nil {
		f.Close()
		zapLogger.Fatal("Export failed", zap.Error(err))
	}
	if err := f.Close(); err != nil {
		zapLogger.Fatal("Failed to close output file", zap.Error(err))
	}

	if summary.Truncated {
		zapLogger.Warn("Export hit the row limit, older rows were left out",
			zap.Int("limit", *limit),
		)
	}
	zapLogger.Info("Report exported",
		zap.String("device_id", *deviceID),
		zap.String("path", *output),
		zap.Int("readings", summary.Readings),
		zap.Int("alerts", summary.Alerts),
	)
}
