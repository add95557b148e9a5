package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"wisefido-bridge/common/database"
	rediscommon "wisefido-bridge/common/redis"
	"wisefido-bridge/internal/alarm"
	"wisefido-bridge/internal/config"
	"wisefido-bridge/internal/enrichment"
	"wisefido-bridge/internal/forwarder"
	"wisefido-bridge/internal/models"
	"wisefido-bridge/internal/notifier"
	"wisefido-bridge/internal/publisher"
	"wisefido-bridge/internal/repository"
	"wisefido-bridge/internal/source"
	"wisefido-bridge/internal/window"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// storageFailureAlarm 连续写库失败达到该次数后每轮报 error
const storageFailureAlarm = 5

// ReadingStore 读数持久化
type ReadingStore interface {
	SaveReading(ctx context.Context, r *models.Reading) error
}

// AlertStore 警报持久化
type AlertStore interface {
	SaveAlert(ctx context.Context, event *models.AlertEvent) error
}

// Forwarder 下游推送
type Forwarder interface {
	Forward(ctx context.Context, r models.Reading, aiText string) models.DeliveryResult
}

// Dependencies 服务依赖（测试时注入假实现）
type Dependencies struct {
	Source    source.Source
	Readings  ReadingStore
	Alerts    AlertStore
	Forwarder Forwarder
	Analyzer  enrichment.Analyzer
	Notifier  notifier.Notifier
	Publisher publisher.Publisher
	Status    io.Writer
	Now       func() time.Time
}

// BridgeService 采集-标准化-警报主循环
// 缓冲区、警报状态和存储句柄只由循环所在的 goroutine 使用
type BridgeService struct {
	config *config.Config
	logger *zap.Logger
	db     *sql.DB
	redis  *redis.Client
	deps   Dependencies

	window     *window.Window
	controller *alarm.Controller
	builder    *alarm.AlertEventBuilder

	missStreak      int
	storeFailStreak int

	stopOnce sync.Once
}

// NewBridgeService 创建桥接服务；数据库、Redis（启用时）和数据源任何一个不可用都直接返回错误
func NewBridgeService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*BridgeService, error) {
	// 初始化数据库
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repository.InitSchema(ctx, db, logger); err != nil {
		database.Close(db)
		return nil, err
	}

	// 初始化Redis（可选）
	var (
		redisClient *redis.Client
		pub         publisher.Publisher = publisher.NoopPublisher{}
	)
	if cfg.Streams.Enabled {
		redisClient, err = rediscommon.Connect(ctx, &cfg.Redis)
		if err != nil {
			database.Close(db)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		pub = publisher.NewStreamPublisher(redisClient, cfg.Streams.ReadingStream, cfg.Streams.AlertStream, logger)
	}

	src, err := source.New(cfg, logger)
	if err != nil {
		rediscommon.Close(redisClient)
		database.Close(db)
		return nil, err
	}

	deps := Dependencies{
		Source:    src,
		Readings:  repository.NewSensorDataRepository(db, logger),
		Alerts:    repository.NewEventsRepository(db, logger),
		Forwarder: forwarder.New(cfg.Backend.URL, cfg.Backend.PushPath, cfg.Backend.Timeout, logger),
		Analyzer: enrichment.New(cfg.Gemini.BaseURL, cfg.Gemini.APIKey, cfg.Gemini.Model,
			cfg.Gemini.Timeout, cfg.Bridge.FallThreshold, logger),
		Notifier:  notifier.NewLineNotifier(cfg.Line.BaseURL, cfg.Line.Token, cfg.Line.UserID, logger),
		Publisher: pub,
		Status:    os.Stdout,
	}

	s := newBridgeService(cfg, logger, deps)
	s.db = db
	s.redis = redisClient
	return s, nil
}

func newBridgeService(cfg *config.Config, logger *zap.Logger, deps Dependencies) *BridgeService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Analyzer == nil {
		deps.Analyzer = enrichment.NoopAnalyzer{}
	}
	if deps.Publisher == nil {
		deps.Publisher = publisher.NoopPublisher{}
	}

	return &BridgeService{
		config:     cfg,
		logger:     logger,
		deps:       deps,
		window:     window.New(cfg.Bridge.BufferSize),
		controller: alarm.NewController(cfg.Bridge.FallThreshold, cfg.Bridge.FallCooldown),
		builder:    alarm.NewAlertEventBuilder(cfg.Bridge.DeviceID, cfg.Bridge.Mode, cfg.Bridge.FallThreshold),
	}
}

// Start 运行主循环直到 ctx 取消
func (s *BridgeService) Start(ctx context.Context) error {
	s.logger.Info("Bridge loop started",
		zap.String("mode", s.config.Bridge.Mode),
		zap.String("device_id", s.config.Bridge.DeviceID),
		zap.Duration("interval", s.config.Bridge.PollInterval),
		zap.Any("fall_threshold", s.config.Bridge.FallThreshold),
		zap.Duration("cooldown", s.controller.Cooldown()),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Bridge loop stopped")
			return nil
		case <-timer.C:
		}

		s.RunCycle(ctx)
		timer.Reset(s.config.Bridge.PollInterval)
	}
}

// RunCycle 执行一轮：采集 → 缓冲 → 持久化 → 推送 → 警报判断
// 返回本轮是否取得读数
func (s *BridgeService) RunCycle(ctx context.Context) bool {
	r := s.deps.Source.Acquire(ctx)
	if r == nil {
		s.missStreak++
		if s.missStreak > s.config.Bridge.WarnAfterMiss && s.config.Bridge.Mode != config.ModeSim {
			s.logger.Warn("Consecutive acquisition failures",
				zap.Int("count", s.missStreak),
				zap.String("mode", s.config.Bridge.Mode),
			)
		}
		return false
	}
	s.missStreak = 0
	if r.DeviceID == "" {
		r.DeviceID = s.config.Bridge.DeviceID
	}

	s.window.Append(*r)
	s.persistReading(ctx, r)

	aiText := ""
	if s.config.Backend.EnrichWithAI && s.window.Len() >= enrichment.MinReadings {
		aiText = s.analyzeForForward(ctx)
	}

	if res := s.deps.Forwarder.Forward(ctx, *r, aiText); res.Err != nil {
		s.logger.Debug("Reading not forwarded",
			zap.Int("status", res.StatusCode),
			zap.Bool("breaker_open", res.Skipped),
			zap.Error(res.Err),
		)
	}
	if res := s.deps.Publisher.PublishReading(ctx, *r); res.Err != nil {
		s.logger.Debug("Reading not published", zap.Error(res.Err))
	}

	now := s.deps.Now()
	decision := s.controller.Evaluate(*r, now)
	writeStatus(s.deps.Status, formatStatusLine(now, *r, decision.Fire))

	if decision.Fire {
		s.raiseAlert(ctx, *r, aiText, now)
	} else if decision.Qualifying {
		s.logger.Debug("Fall condition during cooldown",
			zap.Float64("score", r.MovementScore),
			zap.Duration("remaining", decision.Remaining),
		)
	}
	return true
}

// raiseAlert 分析 → 推播 → 写入事件；同一轮已有分析结果时直接复用
func (s *BridgeService) raiseAlert(ctx context.Context, r models.Reading, aiText string, now time.Time) {
	if aiText == "" {
		aiText = s.analyze(ctx)
	}
	if aiText != "" {
		writeStatus(s.deps.Status, "  AI: "+aiText)
	}

	event, err := s.builder.Build(r, aiText, now)
	if err != nil {
		s.logger.Error("Failed to build alert event", zap.Error(err))
		return
	}

	s.logger.Warn("Fall alert",
		zap.String("event_id", event.EventID),
		zap.String("device_id", event.DeviceID),
		zap.Float64("score", r.MovementScore),
		zap.Bool("motion_detected", r.MotionDetected),
	)

	switch res := s.deps.Notifier.Notify(ctx, event, r.MovementScore); {
	case res.Delivered:
		s.logger.Info("Fall alert notification sent", zap.String("event_id", event.EventID))
	case res.Err != nil:
		s.logger.Error("Fall alert notification failed",
			zap.String("event_id", event.EventID),
			zap.Int("status", res.StatusCode),
			zap.Error(res.Err),
		)
	}

	if err := s.deps.Alerts.SaveAlert(ctx, event); err != nil {
		s.storageFailed(err)
	} else {
		s.storeFailStreak = 0
	}

	if res := s.deps.Publisher.PublishAlert(ctx, event); res.Err != nil {
		s.logger.Debug("Alert not published", zap.Error(res.Err))
	}
}

// analyzeForForward 转发路径上的分析受转发超时约束，模型慢时直接不带分析转发
func (s *BridgeService) analyzeForForward(ctx context.Context) string {
	if s.config.Backend.Timeout <= 0 {
		return s.analyze(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, s.config.Backend.Timeout)
	defer cancel()
	return s.analyze(actx)
}

func (s *BridgeService) analyze(ctx context.Context) string {
	analysis := s.deps.Analyzer.Analyze(ctx, s.window.Snapshot(enrichment.PromptWindow))
	if analysis.Err != nil {
		s.logger.Debug("AI analysis unavailable", zap.Error(analysis.Err))
	}
	return analysis.Text
}

func (s *BridgeService) persistReading(ctx context.Context, r *models.Reading) {
	if err := s.deps.Readings.SaveReading(ctx, r); err != nil {
		s.storageFailed(err)
		return
	}
	s.storeFailStreak = 0
}

func (s *BridgeService) storageFailed(err error) {
	s.storeFailStreak++
	if s.storeFailStreak >= storageFailureAlarm {
		s.logger.Error("Storage failing repeatedly",
			zap.Int("count", s.storeFailStreak),
			zap.Error(err),
		)
		return
	}
	s.logger.Warn("Failed to persist", zap.Error(err))
}

// MissStreak 连续未取得读数的轮数
func (s *BridgeService) MissStreak() int {
	return s.missStreak
}

// StorageFailureStreak 连续写库失败次数
func (s *BridgeService) StorageFailureStreak() int {
	return s.storeFailStreak
}

// Stop 释放数据源、Redis 和数据库，只执行一次
func (s *BridgeService) Stop(ctx context.Context) error {
	var firstErr error
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping bridge service")

		if s.deps.Source != nil {
			if err := s.deps.Source.Close(); err != nil {
				s.logger.Error("Error closing source", zap.Error(err))
				firstErr = err
			}
		}

		// 关闭Redis
		if err := rediscommon.Close(s.redis); err != nil {
			s.logger.Error("Error closing redis", zap.Error(err))
		}

		// 关闭数据库
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Error closing database", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}

		s.logger.Info("Bridge service stopped")
	})
	return firstErr
}
