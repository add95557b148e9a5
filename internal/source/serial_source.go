package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"wisefido-bridge/internal/models"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

const (
	// serialReadTimeout 读取一行的最长等待
	serialReadTimeout = 2 * time.Second
	maxPendingBytes   = 4096
)

// knownDeviceMarkers 自动侦测时匹配的 USB 转串口芯片描述
var knownDeviceMarkers = []string{"CP210", "CH340", "USB"}

// PortInfo 串口设备信息
type PortInfo struct {
	Name         string
	Product      string
	VID          string
	PID          string
	SerialNumber string
	IsUSB        bool
}

// linePort 串口的最小接口（serial.Port 满足）
type linePort interface {
	io.ReadCloser
	SetReadTimeout(t time.Duration) error
}

type (
	portOpener func(name string, baud int) (linePort, error)
	portLister func() ([]PortInfo, error)
)

// SerialSource 从 USB 串口逐行读取 ESP32 输出
type SerialSource struct {
	portName string
	baud     int
	settle   time.Duration
	deviceID string
	logger   *zap.Logger

	open portOpener
	list portLister

	port         linePort
	pending      []byte
	detectFailed bool
	openFailing  bool
}

// NewSerialSource 创建串口来源；portName 为空时首次读取前自动侦测
func NewSerialSource(portName string, baud int, settle time.Duration, deviceID string, logger *zap.Logger) *SerialSource {
	return &SerialSource{
		portName: portName,
		baud:     baud,
		settle:   settle,
		deviceID: deviceID,
		logger:   logger,
		open:     openSerialPort,
		list:     ListSerialPorts,
	}
}

// Acquire 读取一行并解析；串口错误时关闭连接，下一轮重连
func (s *SerialSource) Acquire(ctx context.Context) *models.Reading {
	if err := s.ensureOpen(ctx); err != nil {
		// 每段连续失败只报一次 warn
		if s.openFailing {
			s.logger.Debug("Serial port unavailable", zap.Error(err))
		} else {
			s.openFailing = true
			s.logger.Warn("Serial port unavailable",
				zap.String("port", s.portName),
				zap.Error(err),
			)
		}
		return nil
	}
	s.openFailing = false

	line, err := s.readLine(ctx)
	if err != nil {
		s.logger.Warn("Serial read failed, will reconnect",
			zap.String("port", s.portName),
			zap.Error(err),
		)
		s.closePort()
		return nil
	}
	if line == "" {
		return nil
	}

	r := ParseLine(line, s.deviceID)
	if r == nil {
		s.logger.Debug("Unparseable serial line", zap.String("line", line))
	}
	return r
}

// Close 关闭串口
func (s *SerialSource) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.pending = nil
	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

func (s *SerialSource) ensureOpen(ctx context.Context) error {
	if s.port != nil {
		return nil
	}
	if s.detectFailed {
		return fmt.Errorf("no serial device detected")
	}

	if s.portName == "" {
		name, err := s.detect()
		if err != nil {
			s.detectFailed = true
			s.logger.Error("Serial autodetection failed, set SERIAL_PORT explicitly", zap.Error(err))
			return err
		}
		s.portName = name
		s.logger.Info("Serial device detected", zap.String("port", name))
	}

	port, err := s.open(s.portName, s.baud)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.portName, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}
	s.port = port
	s.logger.Info("Serial port opened", zap.String("port", s.portName), zap.Int("baud", s.baud))

	// 打开串口会重启 ESP32，等待启动输出结束
	if s.settle > 0 {
		select {
		case <-time.After(s.settle):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// detect 选择第一个描述匹配的串口；有多个匹配时不保证选对
func (s *SerialSource) detect() (string, error) {
	ports, err := s.list()
	if err != nil {
		return "", fmt.Errorf("failed to list serial ports: %w", err)
	}
	for _, p := range ports {
		for _, marker := range knownDeviceMarkers {
			if strings.Contains(p.Product, marker) || strings.Contains(p.Name, marker) {
				return p.Name, nil
			}
		}
	}
	return "", fmt.Errorf("no matching serial device among %d ports", len(ports))
}

// readLine 读到换行或超时；超时返回空串，未完成的部分留到下一轮
func (s *SerialSource) readLine(ctx context.Context) (string, error) {
	deadline := time.Now().Add(serialReadTimeout)
	buf := make([]byte, 256)

	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			line := string(s.pending[:i])
			s.pending = append(s.pending[:0], s.pending[i+1:]...)
			return strings.TrimSpace(line), nil
		}
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			return "", nil
		}

		n, err := s.port.Read(buf)
		if err != nil {
			return "", err
		}
		if n == 0 {
			// 读超时
			return "", nil
		}
		s.pending = append(s.pending, buf[:n]...)
		if len(s.pending) > maxPendingBytes {
			s.pending = s.pending[:0]
		}
	}
}

func (s *SerialSource) closePort() {
	if s.port != nil {
		s.port.Close()
		s.port = nil
	}
	s.pending = nil
}

func openSerialPort(name string, baud int) (linePort, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	return port, nil
}

// ListSerialPorts 列出本机串口
func ListSerialPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			Product:      d.Product,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			IsUSB:        d.IsUSB,
		})
	}
	return ports, nil
}
