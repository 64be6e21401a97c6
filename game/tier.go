package game

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Tier 判定等级，数值越小越精准
type Tier int

const (
	TierPerfect Tier = iota
	TierGreat
	TierGood
	TierMiss
)

// ReferenceValue 进度值与之比较的参考值
const ReferenceValue = 1.0

var ErrInvalidThresholds = errors.New("thresholds must be positive and strictly ascending")

func (t Tier) String() string {
	switch t {
	case TierPerfect:
		return "PERFECT"
	case TierGreat:
		return "GREAT"
	case TierGood:
		return "GOOD"
	case TierMiss:
		return "MISS"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// Scored 是否计为有效命中（Miss 不计）
func (t Tier) Scored() bool {
	return t >= TierPerfect && t < TierMiss
}

// ParseTier 解析等级名（大小写不敏感，容忍末尾的 "!"）
func ParseTier(s string) (Tier, bool) {
	switch strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(s)), "!") {
	case "PERFECT":
		return TierPerfect, true
	case "GREAT":
		return TierGreat, true
	case "GOOD":
		return TierGood, true
	case "MISS":
		return TierMiss, true
	}
	return TierMiss, false
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	v, ok := ParseTier(string(b))
	if !ok {
		return fmt.Errorf("unknown tier %q", string(b))
	}
	*t = v
	return nil
}

// Thresholds 升序阈值：|diff| <= Perfect → Perfect，依次类推
type Thresholds struct {
	Perfect float64 `json:"perfect"`
	Great   float64 `json:"great"`
	Good    float64 `json:"good"`
}

// DefaultThresholds 默认阈值
func DefaultThresholds() Thresholds {
	return Thresholds{Perfect: 0.05, Great: 0.15, Good: 0.30}
}

// Validate 阈值必须为正且严格递增
func (th Thresholds) Validate() error {
	if th.Perfect <= 0 || th.Perfect >= th.Great || th.Great >= th.Good {
		return fmt.Errorf("%w: %.3f/%.3f/%.3f", ErrInvalidThresholds, th.Perfect, th.Great, th.Good)
	}
	return nil
}

// classifyEpsilon 阈值比较的浮点容差，恰好落在阈值上算作较好的等级
const classifyEpsilon = 1e-9

// Classify 根据进度值与参考值的绝对差给出等级
func (th Thresholds) Classify(progress float64) (Tier, float64) {
	diff := progress - ReferenceValue
	abs := math.Abs(diff)
	switch {
	case abs <= th.Perfect+classifyEpsilon:
		return TierPerfect, diff
	case abs <= th.Great+classifyEpsilon:
		return TierGreat, diff
	case abs <= th.Good+classifyEpsilon:
		return TierGood, diff
	default:
		return TierMiss, diff
	}
}
