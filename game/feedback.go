package game

import (
	"sync"
	"time"
)

// LocalIdentity 本地身份查询：尚未确定时 ok=false，视为“永不匹配”
type LocalIdentity interface {
	LocalPlayer() (PlayerID, bool)
}

// Self 可设置的本地身份
type Self struct {
	mu sync.RWMutex
	id PlayerID
}

// NewSelf 创建本地身份，id 为空表示尚未确定
func NewSelf(id PlayerID) *Self {
	return &Self{id: id}
}

// Set 确定本地身份
func (s *Self) Set(id PlayerID) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

func (s *Self) LocalPlayer() (PlayerID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id, s.id != ""
}

// isLocal 本地身份未知时一律返回 false
func isLocal(li LocalIdentity, id PlayerID) bool {
	if li == nil || id == "" {
		return false
	}
	local, ok := li.LocalPlayer()
	return ok && local == id
}

// Palette 等级到颜色的映射
type Palette struct {
	Tiers   map[Tier]string
	Default string
}

// DefaultPalette 黄/绿/青/红，未知等级用白色
func DefaultPalette() Palette {
	return Palette{
		Tiers: map[Tier]string{
			TierPerfect: "#FFEB04",
			TierGreat:   "#00FF00",
			TierGood:    "#00FFFF",
			TierMiss:    "#FF0000",
		},
		Default: "#FFFFFF",
	}
}

// Color 查询颜色，未识别的等级回落到默认色
func (p Palette) Color(t Tier) string {
	if c, ok := p.Tiers[t]; ok {
		return c
	}
	return p.Default
}

// Display 单一的瞬时显示槽
type Display struct {
	Tier    Tier   `json:"tier"`
	Color   string `json:"color"`
	Visible bool   `json:"visible"`
}

// Router 反馈路由：只为本地玩家拥有的目标显示结果
// 非并发安全，与模拟循环同线程调用
type Router struct {
	self      LocalIdentity
	duration  time.Duration
	palette   Palette
	current   Display
	remaining time.Duration
	onChange  func(Display)
}

// RouterOption 可选项
type RouterOption func(*Router)

// WithPalette 自定义配色
func WithPalette(p Palette) RouterOption {
	return func(r *Router) { r.palette = p }
}

// WithDisplayHook 显示槽变化时回调（显示或消失）
func WithDisplayHook(fn func(Display)) RouterOption {
	return func(r *Router) { r.onChange = fn }
}

// NewRouter 创建反馈路由，duration 为可见时长
func NewRouter(self LocalIdentity, duration time.Duration, opts ...RouterOption) *Router {
	r := &Router{
		self:     self,
		duration: duration,
		palette:  DefaultPalette(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Show 非本地玩家：无操作；否则替换当前显示并重新计时
func (r *Router) Show(player PlayerID, tier Tier) bool {
	if !isLocal(r.self, player) {
		return false
	}
	r.current = Display{Tier: tier, Color: r.palette.Color(tier), Visible: true}
	r.remaining = r.duration
	if r.onChange != nil {
		r.onChange(r.current)
	}
	return true
}

// Tick 推进显示计时，到期后清空
func (r *Router) Tick(dt time.Duration) {
	if !r.current.Visible {
		return
	}
	r.remaining -= dt
	if r.remaining <= 0 {
		r.current.Visible = false
		r.remaining = 0
		if r.onChange != nil {
			r.onChange(r.current)
		}
	}
}

// Current 当前显示内容；不可见时 ok=false
func (r *Router) Current() (Display, bool) {
	return r.current, r.current.Visible
}

// SetDuration 热更新可见时长（下一次 Show 生效）
func (r *Router) SetDuration(d time.Duration) {
	r.duration = d
}
