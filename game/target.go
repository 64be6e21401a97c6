package game

import (
	"time"

	"github.com/google/uuid"
)

// TargetID 判定目标标识
type TargetID string

// NewTargetID 生成随机目标标识
func NewTargetID() TargetID {
	return TargetID(uuid.NewString())
}

// Vec2 二维坐标
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Curve 进度值曲线：随 elapsed/lifetime 从 Start 线性插值到 End
type Curve struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// DefaultCurve 默认曲线在寿命一半处经过参考值 1.0
func DefaultCurve() Curve {
	return Curve{Start: 2.0, End: 0.0}
}

// At 计算比例 t（裁剪到 [0,1]）处的进度值
func (c Curve) At(t float64) float64 {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return c.Start + (c.End-c.Start)*t
}

// Target 限时判定目标：归属玩家创建时确定，之后不再变更
type Target struct {
	ID       TargetID
	Owner    *Player
	Position Vec2
	Lifetime time.Duration
	Curve    Curve

	elapsed  time.Duration
	resolved bool
}

// NewTarget 创建处于 Armed 状态的目标
func NewTarget(owner *Player, pos Vec2, lifetime time.Duration, curve Curve) *Target {
	return &Target{
		ID:       NewTargetID(),
		Owner:    owner,
		Position: pos,
		Lifetime: lifetime,
		Curve:    curve,
	}
}

// Elapsed 已经过的时间
func (t *Target) Elapsed() time.Duration { return t.elapsed }

// Resolved 是否已结算
func (t *Target) Resolved() bool { return t.resolved }

// Progress 当前进度值
func (t *Target) Progress() float64 {
	if t.Lifetime <= 0 {
		return t.Curve.End
	}
	return t.Curve.At(float64(t.elapsed) / float64(t.Lifetime))
}

// Expired 是否已到寿命
func (t *Target) Expired() bool {
	return t.elapsed >= t.Lifetime
}

// OwnerID 归属玩家标识
func (t *Target) OwnerID() PlayerID {
	if t.Owner == nil {
		return ""
	}
	return t.Owner.ID
}
