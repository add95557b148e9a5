package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"wisefido-bridge/common/database"
	"wisefido-bridge/internal/config"
	"wisefido-bridge/internal/repository"

	"go.uber.org/zap"
)

// 现场排查用：检查某台设备最近写入的读数和警报
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	deviceID := flag.String("device-id", cfg.Bridge.DeviceID, "device id")
	since := flag.Duration("since", time.Hour, "look back window")
	limit := flag.Int("limit", 20, "rows to print")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 连接数据库
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	logger := zap.NewNop()
	readings := repository.NewSensorDataRepository(db, logger)
	events := repository.NewEventsRepository(db, logger)
	from := time.Now().Add(-*since)

	// 1. 读数总数
	printSection("1. sensor_data total for " + *deviceID)
	count, err := readings.CountReadings(ctx, *deviceID)
	if err != nil {
		log.Fatalf("Failed to count readings: %v", err)
	}
	fmt.Printf("%d readings\n", count)

	// 2. 最近读数
	printSection(fmt.Sprintf("2. sensor_data since %s", from.Format(time.RFC3339)))
	rows, err := readings.ListReadings(ctx, *deviceID, from, *limit)
	if err != nil {
		log.Fatalf("Failed to query readings: %v", err)
	}
	fmt.Printf("%-20s %-10s %-8s %-10s\n", "captured_at", "score", "motion", "threshold")
	for _, r := range rows {
		threshold := "NULL"
		if r.Threshold != nil {
			threshold = fmt.Sprintf("%.2f", *r.Threshold)
		}
		fmt.Printf("%-20s %-10.2f %-8v %-10s\n", r.CapturedAt.Local().Format("2006-01-02 15:04:05"), r.MovementScore, r.MotionDetected, threshold)
	}
	if len(rows) == 0 {
		fmt.Println("⚠️  no readings in window, is the bridge running?")
	}

	// 3. 最近警报
	printSection("3. fall alerts")
	alerts, err := events.ListAlertEvents(ctx, *deviceID, from, *limit)
	if err != nil {
		log.Fatalf("Failed to query events: %v", err)
	}
	fmt.Printf("%-20s %-38s %-30s %-6s\n", "created_at", "event_id", "message", "false")
	for _, a := range alerts {
		fmt.Printf("%-20s %-38s %-30s %-6v\n", a.CreatedAt.Local().Format("2006-01-02 15:04:05"), a.EventID, a.Message, a.IsFalseAlarm)
	}
	fmt.Printf("\n%d alerts in window\n", len(alerts))
}

func printSection(title string) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", 80))
}
