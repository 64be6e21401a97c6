package game

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

var ErrNotEnoughPlayers = errors.New("spawner needs exactly two known players")

// Range 闭区间
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// SpawnConfig 出生节奏与目标参数
type SpawnConfig struct {
	Interval time.Duration
	RangeX   Range
	RangeY   Range
	Lifetime time.Duration
	Curve    Curve
}

// DefaultSpawnConfig 默认：每秒一个，x∈[-8,8] y∈[-4,4]，寿命 2 秒
func DefaultSpawnConfig() SpawnConfig {
	return SpawnConfig{
		Interval: time.Second,
		RangeX:   Range{Min: -8, Max: 8},
		RangeY:   Range{Min: -4, Max: 4},
		Lifetime: 2 * time.Second,
		Curve:    DefaultCurve(),
	}
}

// Validate 检查配置
func (c SpawnConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("spawn interval must be positive, got %s", c.Interval)
	}
	if c.Lifetime <= 0 {
		return fmt.Errorf("target lifetime must be positive, got %s", c.Lifetime)
	}
	if c.RangeX.Min > c.RangeX.Max || c.RangeY.Min > c.RangeY.Max {
		return fmt.Errorf("spawn range inverted: x=%v y=%v", c.RangeX, c.RangeY)
	}
	for _, v := range []float64{c.Curve.Start, c.Curve.End, c.RangeX.Min, c.RangeX.Max, c.RangeY.Min, c.RangeY.Max} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("spawn config values must be finite: curve=%v x=%v y=%v", c.Curve, c.RangeX, c.RangeY)
		}
	}
	return nil
}

// Spawner 目标生命周期控制器：固定间隔生成目标并随机分配给两名玩家之一
type Spawner struct {
	cfg     SpawnConfig
	engine  *Engine
	rng     *rand.Rand
	players [2]*Player
	running bool
	timer   time.Duration
	onSpawn func(*Target)
	log     *zap.SugaredLogger
}

// SpawnerOption 可选项
type SpawnerOption func(*Spawner)

// WithRand 指定随机源（测试用固定种子）
func WithRand(r *rand.Rand) SpawnerOption {
	return func(s *Spawner) {
		if r != nil {
			s.rng = r
		}
	}
}

// WithSpawnHook 目标生成后回调（渲染层按归属着色）
func WithSpawnHook(fn func(*Target)) SpawnerOption {
	return func(s *Spawner) { s.onSpawn = fn }
}

// WithSpawnerLogger 注入日志
func WithSpawnerLogger(l *zap.SugaredLogger) SpawnerOption {
	return func(s *Spawner) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSpawner 创建控制器，生成的目标交给 engine 计时
func NewSpawner(cfg SpawnConfig, engine *Engine, opts ...SpawnerOption) (*Spawner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, errors.New("spawner requires an engine")
	}
	s := &Spawner{
		cfg:    cfg,
		engine: engine,
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		log:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start 两名玩家都已知时才允许启动；否则拒绝并记录错误
func (s *Spawner) Start(p1, p2 *Player) error {
	if p1 == nil || p2 == nil || p1.ID == "" || p2.ID == "" || p1.ID == p2.ID {
		s.log.Errorw("spawner refused to start", "error", ErrNotEnoughPlayers)
		return ErrNotEnoughPlayers
	}
	s.players = [2]*Player{p1, p2}
	s.running = true
	s.timer = 0
	s.log.Infow("spawner started", "p1", p1.ID, "p2", p2.ID, "interval", s.cfg.Interval)
	return nil
}

// Stop 停止生成（已存在的目标继续倒计时）
func (s *Spawner) Stop() {
	if s.running {
		s.log.Infow("spawner stopped")
	}
	s.running = false
	s.timer = 0
}

// Running 是否在运行
func (s *Spawner) Running() bool { return s.running }

// Config 当前配置
func (s *Spawner) Config() SpawnConfig { return s.cfg }

// SetConfig 热更新配置
func (s *Spawner) SetConfig(cfg SpawnConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

// Tick 推进计时，每到一个间隔生成一个目标，返回本步生成的目标
func (s *Spawner) Tick(dt time.Duration) []*Target {
	if !s.running {
		return nil
	}
	s.timer += dt
	var spawned []*Target
	for s.timer >= s.cfg.Interval {
		s.timer -= s.cfg.Interval
		spawned = append(spawned, s.spawn())
	}
	return spawned
}

func (s *Spawner) spawn() *Target {
	owner := s.players[s.rng.IntN(2)]
	t := NewTarget(owner, s.randomPosition(), s.cfg.Lifetime, s.cfg.Curve)
	s.engine.Add(t)
	s.log.Debugw("target spawned", "target", t.ID, "owner", owner.ID, "x", t.Position.X, "y", t.Position.Y)
	if s.onSpawn != nil {
		s.onSpawn(t)
	}
	return t
}

func (s *Spawner) randomPosition() Vec2 {
	return Vec2{
		X: s.cfg.RangeX.Min + s.rng.Float64()*(s.cfg.RangeX.Max-s.cfg.RangeX.Min),
		Y: s.cfg.RangeY.Min + s.rng.Float64()*(s.cfg.RangeY.Max-s.cfg.RangeY.Min),
	}
}
