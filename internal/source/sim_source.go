package source

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"wisefido-bridge/internal/models"
)

// DefaultSimPeriod 约 4π 秒，对应 sin(t*0.5)
const DefaultSimPeriod = 12566 * time.Millisecond

const (
	simBaseline  = 30.0
	simAmplitude = 20.0
	simNoise     = 5.0
	simFallMin   = 75.0
	simFallMax   = 98.0
)

// SimOptions 模拟来源参数
type SimOptions struct {
	DeviceID        string
	Period          time.Duration // 基线正弦周期
	FallProbability float64       // 每轮产生跌倒样本的概率
	FallThreshold   *float64
	Seed            uint64
	Now             func() time.Time
}

// SimSource 合成读数：正弦基线 + 高斯噪声，偶尔插入跌倒样本
type SimSource struct {
	opts  SimOptions
	rng   *rand.Rand
	start time.Time
}

// NewSimSource 创建模拟来源
func NewSimSource(opts SimOptions) *SimSource {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Period <= 0 {
		opts.Period = DefaultSimPeriod
	}
	return &SimSource{
		opts:  opts,
		rng:   rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		start: opts.Now(),
	}
}

// Acquire 总是返回读数
func (s *SimSource) Acquire(_ context.Context) *models.Reading {
	r := &models.Reading{
		DeviceID:  s.opts.DeviceID,
		Threshold: s.opts.FallThreshold,
		Status:    "safe",
	}

	if s.rng.Float64() < s.opts.FallProbability {
		r.MovementScore = simFallMin + s.rng.Float64()*(simFallMax-simFallMin)
		r.MotionDetected = true
		r.Status = "fall"
	} else {
		elapsed := s.opts.Now().Sub(s.start).Seconds()
		phase := 2 * math.Pi * elapsed / s.opts.Period.Seconds()
		score := math.Sin(phase)*simAmplitude + simBaseline + s.rng.NormFloat64()*simNoise
		r.MovementScore = math.Max(0, math.Min(100, score))
	}
	r.MovementScore = math.Round(r.MovementScore*100) / 100

	return r
}

// Close 无需释放资源
func (s *SimSource) Close() error {
	return nil
}
