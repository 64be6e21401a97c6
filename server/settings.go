package server

import (
	"fmt"
	"time"

	"hitduel/config"
	"hitduel/game"
)

// Settings 房间运行参数
type Settings struct {
	TickInterval     time.Duration
	Spawn            game.SpawnConfig
	Thresholds       game.Thresholds
	FeedbackDuration time.Duration
	Palette          game.Palette
	PlayerColors     [2]string
}

// DefaultSettings 与 config.New() 一致的默认值
func DefaultSettings() Settings {
	s, err := SettingsFromConfig(config.New())
	if err != nil {
		panic(err)
	}
	return s
}

// SettingsFromConfig 从进程配置构造房间参数
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	palette, err := cfg.Palette()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		TickInterval:     cfg.TickInterval(),
		Spawn:            cfg.Spawn(),
		Thresholds:       cfg.Thresholds(),
		FeedbackDuration: cfg.FeedbackDuration,
		Palette:          palette,
		PlayerColors:     [2]string{cfg.PlayerColors[0], cfg.PlayerColors[1]},
	}, nil
}

// SettingsPatch 管理接口的部分更新，nil 字段保持不变
type SettingsPatch struct {
	SpawnIntervalMs    *int64   `json:"spawnIntervalMs,omitempty"`
	TargetLifetimeMs   *int64   `json:"targetLifetimeMs,omitempty"`
	PerfectThreshold   *float64 `json:"perfectThreshold,omitempty"`
	GreatThreshold     *float64 `json:"greatThreshold,omitempty"`
	GoodThreshold      *float64 `json:"goodThreshold,omitempty"`
	FeedbackDurationMs *int64   `json:"feedbackDurationMs,omitempty"`
}

// SettingsView 管理接口返回的当前值
type SettingsView struct {
	SpawnIntervalMs    int64   `json:"spawnIntervalMs"`
	TargetLifetimeMs   int64   `json:"targetLifetimeMs"`
	PerfectThreshold   float64 `json:"perfectThreshold"`
	GreatThreshold     float64 `json:"greatThreshold"`
	GoodThreshold      float64 `json:"goodThreshold"`
	FeedbackDurationMs int64   `json:"feedbackDurationMs"`
}

func (s Settings) view() SettingsView {
	return SettingsView{
		SpawnIntervalMs:    s.Spawn.Interval.Milliseconds(),
		TargetLifetimeMs:   s.Spawn.Lifetime.Milliseconds(),
		PerfectThreshold:   s.Thresholds.Perfect,
		GreatThreshold:     s.Thresholds.Great,
		GoodThreshold:      s.Thresholds.Good,
		FeedbackDurationMs: s.FeedbackDuration.Milliseconds(),
	}
}

// apply 返回更新后的副本；整体校验通过才生效
func (s Settings) apply(p SettingsPatch) (Settings, error) {
	next := s
	if p.SpawnIntervalMs != nil {
		next.Spawn.Interval = time.Duration(*p.SpawnIntervalMs) * time.Millisecond
	}
	if p.TargetLifetimeMs != nil {
		next.Spawn.Lifetime = time.Duration(*p.TargetLifetimeMs) * time.Millisecond
	}
	if p.PerfectThreshold != nil {
		next.Thresholds.Perfect = *p.PerfectThreshold
	}
	if p.GreatThreshold != nil {
		next.Thresholds.Great = *p.GreatThreshold
	}
	if p.GoodThreshold != nil {
		next.Thresholds.Good = *p.GoodThreshold
	}
	if p.FeedbackDurationMs != nil {
		next.FeedbackDuration = time.Duration(*p.FeedbackDurationMs) * time.Millisecond
	}
	if err := next.Spawn.Validate(); err != nil {
		return s, err
	}
	if err := next.Thresholds.Validate(); err != nil {
		return s, err
	}
	if next.FeedbackDuration <= 0 {
		return s, fmt.Errorf("feedback duration must be positive, got %s", next.FeedbackDuration)
	}
	return next, nil
}
