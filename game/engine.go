package game

import (
	"time"

	"go.uber.org/zap"
)

// Outcome 一次结算结果
type Outcome struct {
	Target   TargetID
	Player   PlayerID
	Tier     Tier
	Progress float64
	Diff     float64
	Timeout  bool // 超时自动 Miss
	Hits     int64
}

// Engine 限时判定引擎：独占目标的计时与结算
// 非并发安全，只能在模拟循环所在的 goroutine 中调用
type Engine struct {
	thresholds Thresholds
	live       []*Target
	index      map[TargetID]*Target
	log        *zap.SugaredLogger
}

// EngineOption 引擎可选项
type EngineOption func(*Engine)

// WithEngineLogger 注入日志
func WithEngineLogger(l *zap.SugaredLogger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine 创建判定引擎，阈值非法时返回错误
func NewEngine(th Thresholds, opts ...EngineOption) (*Engine, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		thresholds: th,
		index:      make(map[TargetID]*Target),
		log:        zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Thresholds 当前阈值
func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// SetThresholds 热更新阈值，仅影响之后的结算
func (e *Engine) SetThresholds(th Thresholds) error {
	if err := th.Validate(); err != nil {
		return err
	}
	e.thresholds = th
	return nil
}

// Add 接管新目标的计时
func (e *Engine) Add(t *Target) {
	if t == nil || t.resolved {
		return
	}
	if _, ok := e.index[t.ID]; ok {
		return
	}
	e.live = append(e.live, t)
	e.index[t.ID] = t
}

// Live 存活目标数
func (e *Engine) Live() int { return len(e.index) }

// Get 查询存活目标
func (e *Engine) Get(id TargetID) (*Target, bool) {
	t, ok := e.index[id]
	return t, ok
}

// Input 处理来自 origin 的输入事件
// 目标不存在或已结算：静默忽略；非归属玩家：拒绝且不改变状态
func (e *Engine) Input(origin PlayerID, id TargetID) (Outcome, bool) {
	t, ok := e.index[id]
	if !ok || t.resolved {
		return Outcome{}, false
	}
	if origin == "" || origin != t.OwnerID() {
		e.log.Infow("not your target, input ignored", "target", id, "origin", origin, "owner", t.OwnerID())
		return Outcome{}, false
	}
	progress := t.Progress()
	tier, diff := e.thresholds.Classify(progress)
	out := e.resolve(t, tier)
	out.Progress = progress
	out.Diff = diff
	e.log.Debugw("target hit", "target", id, "player", out.Player, "progress", progress, "diff", diff, "tier", tier)
	return out, true
}

// Tick 推进所有存活目标的计时，返回本步超时结算的结果
func (e *Engine) Tick(dt time.Duration) []Outcome {
	if dt < 0 {
		dt = 0
	}
	var outs []Outcome
	for _, t := range e.live {
		if t.resolved {
			continue
		}
		t.elapsed += dt
		if t.Expired() {
			out := e.resolve(t, TierMiss)
			out.Progress = t.Progress()
			out.Diff = out.Progress - ReferenceValue
			out.Timeout = true
			e.log.Debugw("target expired", "target", t.ID, "player", out.Player)
			outs = append(outs, out)
		}
	}
	e.compact()
	return outs
}

// resolve 终态转换，只会发生一次；非 Miss 时给归属玩家加命中
func (e *Engine) resolve(t *Target, tier Tier) Outcome {
	t.resolved = true
	delete(e.index, t.ID)
	out := Outcome{Target: t.ID, Player: t.OwnerID(), Tier: tier}
	if tier.Scored() && t.Owner != nil {
		out.Hits = t.Owner.RegisterHit()
	} else if t.Owner != nil {
		out.Hits = t.Owner.Hits()
	}
	return out
}

// compact 移除已结算目标
func (e *Engine) compact() {
	kept := e.live[:0]
	for _, t := range e.live {
		if !t.resolved {
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(e.live); i++ {
		e.live[i] = nil
	}
	e.live = kept
}
