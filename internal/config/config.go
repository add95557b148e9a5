package config

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"wisefido-bridge/common/config"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// 数据来源模式
const (
	ModeHTTP   = "http"
	ModeSerial = "serial"
	ModeSim    = "sim"
	ModeMQTT   = "mqtt"
)

// Config 桥接服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 桥接主循环配置
	Bridge struct {
		Mode          string        `validate:"oneof=http serial sim mqtt"`
		DeviceID      string        `validate:"required"`
		PollInterval  time.Duration `validate:"gt=0"`
		FallThreshold *float64      // nil 表示只有 motion_detected 能触发
		FallCooldown  time.Duration `validate:"gt=0"`
		BufferSize    int           `validate:"gt=0"`
		WarnAfterMiss int           `validate:"gt=0"` // 连续读取失败多少次后告警
	}

	// ESP32 HTTP 轮询
	Device struct {
		Host       string
		Port       int
		StatusPath string
		Timeout    time.Duration `validate:"gt=0"`
	}

	// 串口
	Serial struct {
		Port   string // 为空时自动侦测
		Baud   int    `validate:"gt=0"`
		Settle time.Duration
	}

	// 模拟模式
	Sim struct {
		Period          time.Duration `validate:"gt=0"`
		FallProbability float64       `validate:"gte=0,lte=1"`
	}

	// MQTT 数据源
	MQTTSource struct {
		StatusTopic string
	}

	// 下游后端推送
	Backend struct {
		URL          string        `validate:"required,url"`
		PushPath     string        `validate:"required"`
		Timeout      time.Duration `validate:"gt=0"`
		EnrichWithAI bool
	}

	// Gemini AI 分析（可选）
	Gemini struct {
		APIKey  string
		Model   string
		BaseURL string `validate:"omitempty,url"`
		Timeout time.Duration
	}

	// LINE 推播（可选）
	Line struct {
		Token   string
		UserID  string
		BaseURL string `validate:"omitempty,url"`
	}

	// Redis Streams 转发（可选）
	Streams struct {
		Enabled       bool
		ReadingStream string
		AlertStream   string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（.env 文件 + 环境变量 + 默认值）
func Load() (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "wicare"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 2
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "wisefido-bridge"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Bridge.Mode = getEnv("BRIDGE_MODE", ModeHTTP)
	cfg.Bridge.DeviceID = getEnv("DEVICE_ID", "ESP32-001")
	cfg.Bridge.BufferSize = 30
	cfg.Bridge.WarnAfterMiss = 10

	var err error
	if cfg.Bridge.PollInterval, err = parseSeconds(getEnv("POLL_INTERVAL", "2.0")); err != nil {
		return nil, fmt.Errorf("invalid POLL_INTERVAL: %w", err)
	}
	if cfg.Bridge.FallCooldown, err = parseSeconds(getEnv("FALL_COOLDOWN", "30")); err != nil {
		return nil, fmt.Errorf("invalid FALL_COOLDOWN: %w", err)
	}
	if cfg.Bridge.FallThreshold, err = parseThreshold(getEnv("FALL_THRESHOLD", "70.0")); err != nil {
		return nil, fmt.Errorf("invalid FALL_THRESHOLD: %w", err)
	}

	cfg.Device.Host = getEnv("ESP32_IP", "172.20.10.9")
	cfg.Device.Port = getEnvInt("ESP32_PORT", 8080)
	cfg.Device.StatusPath = getEnv("ESP32_STATUS_PATH", "/status")
	cfg.Device.Timeout = 3 * time.Second

	cfg.Serial.Port = getEnv("SERIAL_PORT", "")
	cfg.Serial.Baud = getEnvInt("SERIAL_BAUD", 115200)
	cfg.Serial.Settle = 2 * time.Second // 等待 ESP32 开机

	if cfg.Sim.Period, err = parseSeconds(getEnv("SIM_PERIOD", "12.566")); err != nil {
		return nil, fmt.Errorf("invalid SIM_PERIOD: %w", err)
	}
	if cfg.Sim.FallProbability, err = strconv.ParseFloat(getEnv("SIM_FALL_PROBABILITY", "0.008"), 64); err != nil {
		return nil, fmt.Errorf("invalid SIM_FALL_PROBABILITY: %w", err)
	}

	cfg.MQTTSource.StatusTopic = getEnv("MQTT_STATUS_TOPIC", "wicare/+/status")

	cfg.Backend.URL = getEnv("BACKEND_URL", "http://localhost:3001")
	cfg.Backend.PushPath = getEnv("BACKEND_PUSH_PATH", "/api/sensor-data/push")
	cfg.Backend.Timeout = 3 * time.Second
	cfg.Backend.EnrichWithAI = getEnv("FORWARD_AI_ENRICH", "true") == "true"

	cfg.Gemini.APIKey = getEnv("GEMINI_API_KEY", "")
	cfg.Gemini.Model = getEnv("GEMINI_MODEL", "gemini-2.0-flash")
	cfg.Gemini.BaseURL = getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")
	cfg.Gemini.Timeout = 10 * time.Second

	cfg.Line.Token = getEnv("LINE_CHANNEL_TOKEN", "")
	cfg.Line.UserID = getEnv("LINE_USER_ID", "")
	cfg.Line.BaseURL = getEnv("LINE_API_URL", "https://api.line.me")

	cfg.Streams.Enabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Streams.ReadingStream = getEnv("REDIS_READING_STREAM", "wicare:readings:stream")
	cfg.Streams.AlertStream = getEnv("REDIS_ALERT_STREAM", "wicare:alerts:stream")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// ApplyFlags 用命令行参数覆盖配置，返回是否只列出串口
func (c *Config) ApplyFlags(args []string) (bool, error) {
	fs := flag.NewFlagSet("wisefido-bridge", flag.ContinueOnError)
	mode := fs.String("mode", c.Bridge.Mode, "data source mode (http/serial/sim/mqtt)")
	host := fs.String("esp32-ip", c.Device.Host, "ESP32 IP address")
	port := fs.Int("esp32-port", c.Device.Port, "ESP32 HTTP port")
	serialPort := fs.String("serial-port", c.Serial.Port, "serial port, e.g. /dev/ttyUSB0 (empty = autodetect)")
	deviceID := fs.String("device-id", c.Bridge.DeviceID, "device id")
	interval := fs.Float64("interval", c.Bridge.PollInterval.Seconds(), "poll interval in seconds")
	threshold := fs.String("threshold", "", "fall threshold (\"off\" = motion flag only)")
	backend := fs.String("backend", c.Backend.URL, "downstream backend URL")
	listPorts := fs.Bool("list-ports", false, "list serial ports and exit")

	if err := fs.Parse(args); err != nil {
		return false, err
	}

	c.Bridge.Mode = *mode
	c.Device.Host = *host
	c.Device.Port = *port
	c.Serial.Port = *serialPort
	c.Bridge.DeviceID = *deviceID
	c.Backend.URL = *backend
	if *interval > 0 {
		c.Bridge.PollInterval = time.Duration(*interval * float64(time.Second))
	}
	if *threshold != "" {
		t, err := parseThreshold(*threshold)
		if err != nil {
			return false, fmt.Errorf("invalid -threshold: %w", err)
		}
		c.Bridge.FallThreshold = t
	}

	return *listPorts, nil
}

// Validate 校验配置，模式相关的必填项单独检查
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.Bridge.Mode {
	case ModeHTTP:
		if c.Device.Host == "" || c.Device.Port <= 0 || c.Device.Port > 65535 {
			return fmt.Errorf("invalid config: http mode requires ESP32_IP and a valid ESP32_PORT")
		}
	case ModeMQTT:
		if c.MQTT.Broker == "" || c.MQTTSource.StatusTopic == "" {
			return fmt.Errorf("invalid config: mqtt mode requires MQTT_BROKER and MQTT_STATUS_TOPIC")
		}
	}

	if c.Streams.Enabled && (c.Redis.Addr == "" || c.Streams.ReadingStream == "" || c.Streams.AlertStream == "") {
		return fmt.Errorf("invalid config: REDIS_ENABLED requires REDIS_ADDR and stream names")
	}

	return nil
}

// DeviceURL ESP32 状态端点
func (c *Config) DeviceURL() string {
	return fmt.Sprintf("http://%s:%d%s", c.Device.Host, c.Device.Port, c.Device.StatusPath)
}

// parseSeconds 接受 "2s" 这类 duration，也接受 "2.0" 这类秒数
func parseSeconds(value string) (time.Duration, error) {
	if d, err := time.ParseDuration(value); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	if secs <= 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("must be a positive number of seconds, got %q", value)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// parseThreshold "off"/"none" 关闭分数触发
func parseThreshold(value string) (*float64, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "off", "none", "disabled":
		return nil, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("threshold must be finite, got %q", value)
	}
	return &v, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}
