package alarm

import (
	"time"

	"wisefido-bridge/internal/models"
)

// DefaultCooldown 两次跌倒警报之间的最短间隔
const DefaultCooldown = 30 * time.Second

// State 警报控制器状态
type State int

const (
	// StateArmed 可以触发
	StateArmed State = iota
	// StateCoolingDown 冷却中，合格读数只记录不触发
	StateCoolingDown
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateCoolingDown:
		return "cooling_down"
	default:
		return "unknown"
	}
}

// Decision 单条读数的评估结果
type Decision struct {
	Qualifying bool          // 读数满足跌倒条件
	Fire       bool          // 本次触发警报
	State      State         // 评估之后的状态
	Remaining  time.Duration // 冷却剩余时间（Armed 时为 0）
}

// Controller 跌倒警报状态机（Armed / CoolingDown）
// 状态由 lastFallAt 与当前时间推算，没有独立定时器
type Controller struct {
	fallThreshold *float64
	cooldown      time.Duration
	lastFallAt    time.Time
	fired         bool
}

// NewController 创建控制器；fallThreshold 为 nil 时只有 motion_detected 能触发
func NewController(fallThreshold *float64, cooldown time.Duration) *Controller {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Controller{
		fallThreshold: fallThreshold,
		cooldown:      cooldown,
	}
}

// Qualifies 读数是否满足跌倒条件：motion_detected 或分数超过阈值
// 与设备是否上报 threshold 无关
func (c *Controller) Qualifies(r models.Reading) bool {
	if r.MotionDetected {
		return true
	}
	return c.fallThreshold != nil && r.MovementScore > *c.fallThreshold
}

// State 指定时刻的状态；距上次触发严格超过 cooldown 才重新 Armed
func (c *Controller) State(now time.Time) State {
	if c.fired && now.Sub(c.lastFallAt) <= c.cooldown {
		return StateCoolingDown
	}
	return StateArmed
}

// Remaining 冷却剩余时间
func (c *Controller) Remaining(now time.Time) time.Duration {
	if c.State(now) == StateArmed {
		return 0
	}
	return c.cooldown - now.Sub(c.lastFallAt)
}

// Evaluate 评估读数，Armed 且合格时转入 CoolingDown 并记录触发时间
func (c *Controller) Evaluate(r models.Reading, now time.Time) Decision {
	d := Decision{Qualifying: c.Qualifies(r)}

	if d.Qualifying && c.State(now) == StateArmed {
		c.lastFallAt = now
		c.fired = true
		d.Fire = true
	}

	d.State = c.State(now)
	d.Remaining = c.Remaining(now)
	return d
}

// LastFallAt 最近一次触发时间，从未触发时 ok=false
func (c *Controller) LastFallAt() (time.Time, bool) {
	return c.lastFallAt, c.fired
}

// Cooldown 冷却时长
func (c *Controller) Cooldown() time.Duration {
	return c.cooldown
}
