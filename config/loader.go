package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix  = "HITDUEL_"
	EnvConfig  = "HITDUEL_CONFIG"
	keyDivider = "."
)

// Load 按优先级（低 → 高）叠加：
//  1. 默认值 New()
//  2. YAML 文件：path 非空时使用，否则读 HITDUEL_CONFIG
//  3. 环境变量（前缀 HITDUEL_）
//
// 不做校验：调用方叠加命令行参数后再调用 Validate
func Load(_ context.Context, path string) (*Config, error) {
	base := New()
	k := koanf.New(keyDivider)

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// HITDUEL_SPAWN_INTERVAL -> spawn_interval，保留下划线以匹配 koanf 标签
	envProvider := env.Provider(EnvPrefix, keyDivider, func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}
	// 配置文件路径本身不是配置项
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	return &cfg, nil
}
