// Package config 定义服务配置：默认值 → YAML 文件 → 环境变量 → 命令行参数
package config

import (
	"fmt"
	"strings"
	"time"

	"hitduel/game"
)

// Config 进程配置
type Config struct {
	Addr     string `koanf:"addr"`
	LogFile  string `koanf:"log_file"`  // 为空时输出到 stderr
	LogLevel string `koanf:"log_level"` // debug, info, warn, error

	TickRate   int `koanf:"tick_rate"`   // 每秒 Tick 次数
	MaxPlayers int `koanf:"max_players"` // 固定为 2

	SpawnInterval  time.Duration `koanf:"spawn_interval"`
	SpawnMinX      float64       `koanf:"spawn_min_x"`
	SpawnMaxX      float64       `koanf:"spawn_max_x"`
	SpawnMinY      float64       `koanf:"spawn_min_y"`
	SpawnMaxY      float64       `koanf:"spawn_max_y"`
	TargetLifetime time.Duration `koanf:"target_lifetime"`
	ProgressStart  float64       `koanf:"progress_start"`
	ProgressEnd    float64       `koanf:"progress_end"`

	PerfectThreshold float64 `koanf:"perfect_threshold"`
	GreatThreshold   float64 `koanf:"great_threshold"`
	GoodThreshold    float64 `koanf:"good_threshold"`

	FeedbackDuration time.Duration     `koanf:"feedback_duration"`
	PlayerColors     []string          `koanf:"player_colors"` // 按 1P/2P 顺序
	TierColors       map[string]string `koanf:"tier_colors"`   // perfect/great/good/miss
	DefaultColor     string            `koanf:"default_color"`
}

// New 返回带默认值的配置
func New() *Config {
	return &Config{
		Addr:             ":8080",
		LogLevel:         "info",
		TickRate:         20,
		MaxPlayers:       2,
		SpawnInterval:    time.Second,
		SpawnMinX:        -8,
		SpawnMaxX:        8,
		SpawnMinY:        -4,
		SpawnMaxY:        4,
		TargetLifetime:   2 * time.Second,
		ProgressStart:    2.0,
		ProgressEnd:      0.0,
		PerfectThreshold: 0.05,
		GreatThreshold:   0.15,
		GoodThreshold:    0.30,
		FeedbackDuration: time.Second,
		PlayerColors:     []string{"#00FFFF", "#FF00FF"},
		TierColors: map[string]string{
			"perfect": "#FFEB04",
			"great":   "#00FF00",
			"good":    "#00FFFF",
			"miss":    "#FF0000",
		},
		DefaultColor: "#FFFFFF",
	}
}

// Validate 基本校验，错误包裹 ErrInvalidConfig
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.TickRate <= 0:
		return fmt.Errorf("%w: tick_rate must be positive", ErrInvalidConfig)
	case c.MaxPlayers != 2:
		return fmt.Errorf("%w: max_players must be 2", ErrInvalidConfig)
	case c.FeedbackDuration <= 0:
		return fmt.Errorf("%w: feedback_duration must be positive", ErrInvalidConfig)
	case len(c.PlayerColors) < 2:
		return fmt.Errorf("%w: player_colors needs two entries", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	if err := c.Spawn().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.Palette(); err != nil {
		return err
	}
	return nil
}

// TickInterval 每个 Tick 的时长
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// Spawn 转换为出生配置
func (c *Config) Spawn() game.SpawnConfig {
	return game.SpawnConfig{
		Interval: c.SpawnInterval,
		RangeX:   game.Range{Min: c.SpawnMinX, Max: c.SpawnMaxX},
		RangeY:   game.Range{Min: c.SpawnMinY, Max: c.SpawnMaxY},
		Lifetime: c.TargetLifetime,
		Curve:    game.Curve{Start: c.ProgressStart, End: c.ProgressEnd},
	}
}

// Thresholds 转换为判定阈值
func (c *Config) Thresholds() game.Thresholds {
	return game.Thresholds{Perfect: c.PerfectThreshold, Great: c.GreatThreshold, Good: c.GoodThreshold}
}

// Palette 转换为反馈配色，未知等级名返回错误
func (c *Config) Palette() (game.Palette, error) {
	p := game.DefaultPalette()
	if c.DefaultColor != "" {
		p.Default = c.DefaultColor
	}
	for name, color := range c.TierColors {
		tier, ok := game.ParseTier(name)
		if !ok {
			return p, fmt.Errorf("%w: unknown tier %q in tier_colors", ErrInvalidConfig, name)
		}
		p.Tiers[tier] = color
	}
	return p, nil
}
