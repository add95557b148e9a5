package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"wisefido-bridge/common/logger"
	"wisefido-bridge/internal/config"
	"wisefido-bridge/internal/service"
	"wisefido-bridge/internal/source"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	listPorts, err := cfg.ApplyFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}
	if listPorts {
		printSerialPorts()
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-bridge")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting wisefido-bridge service",
		zap.String("mode", cfg.Bridge.Mode),
		zap.String("device_id", cfg.Bridge.DeviceID),
		zap.String("backend", cfg.Backend.URL),
		zap.Bool("ai_enabled", cfg.Gemini.APIKey != ""),
		zap.Bool("line_enabled", cfg.Line.Token != "" && cfg.Line.UserID != ""),
		zap.Bool("streams_enabled", cfg.Streams.Enabled),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 创建服务
	bridgeService, err := service.NewBridgeService(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create bridge service", zap.Error(err))
	}

	done := make(chan error, 1)
	go func() {
		done <- bridgeService.Start(ctx)
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-done:
		if err != nil {
			zapLogger.Error("Bridge loop exited", zap.Error(err))
		}
	}

	// 优雅关闭
	cancel()
	<-done
	if err := bridgeService.Stop(context.Background()); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}

func printSerialPorts() {
	ports, err := source.ListSerialPorts()
	if err != nil {
		log.Fatalf("Failed to list serial ports: %v", err)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return
	}

	fmt.Println("Available serial ports:")
	for _, p := range ports {
		if p.IsUSB {
			fmt.Printf("  %s - %s [USB VID:PID=%s:%s SER=%s]\n", p.Name, p.Product, p.VID, p.PID, p.SerialNumber)
		} else {
			fmt.Printf("  %s\n", p.Name)
		}
	}
}
