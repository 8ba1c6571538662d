// Package tier 把连续的相关度分数映射到离散的置信档位。
package tier

import (
	"fmt"
	"math"
)

// Tier 信号置信档位，数值越大置信度越高，零值为 NOISE
type Tier int

const (
	Noise Tier = iota
	Adjacent
	Related
	Strong
	Core
)

// All 按置信度从高到低列出全部档位
var All = []Tier{Core, Strong, Related, Adjacent, Noise}

func (t Tier) String() string {
	switch t {
	case Core:
		return "CORE"
	case Strong:
		return "STRONG"
	case Related:
		return "RELATED"
	case Adjacent:
		return "ADJACENT"
	case Noise:
		return "NOISE"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// MarshalText 让档位以名称形式出现在 JSON / YAML 中
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText 解析档位名称
func (t *Tier) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = p
	return nil
}

// Parse 解析档位名称
func Parse(s string) (Tier, error) {
	for _, t := range All {
		if t.String() == s {
			return t, nil
		}
	}
	return Noise, fmt.Errorf("unknown tier %q", s)
}

// AtLeast 判断 t 的置信度是否不低于 other
func (t Tier) AtLeast(other Tier) bool {
	return t >= other
}

// FeedsAnalysis CORE 与 STRONG 进入痛点分析
func (t Tier) FeedsAnalysis() bool {
	return t.AtLeast(Strong)
}

// Thresholds 各档位的最低分数，必须严格递减
type Thresholds struct {
	Core     float64 `yaml:"core"`
	Strong   float64 `yaml:"strong"`
	Related  float64 `yaml:"related"`
	Adjacent float64 `yaml:"adjacent"`
}

// DefaultThresholds 经验值，换 embedding 模型时需要重新标定
func DefaultThresholds() Thresholds {
	return Thresholds{Core: 0.45, Strong: 0.35, Related: 0.25, Adjacent: 0.15}
}

// Validate 检查阈值落在 (0,1] 且严格递减
func (th Thresholds) Validate() error {
	vals := []float64{th.Core, th.Strong, th.Related, th.Adjacent}
	for i, v := range vals {
		if math.IsNaN(v) || v <= 0 || v > 1 {
			return fmt.Errorf("tier threshold %s=%v out of (0,1]", All[i], v)
		}
		if i > 0 && v >= vals[i-1] {
			return fmt.Errorf("tier thresholds must be strictly decreasing: %s=%v >= %s=%v", All[i], v, All[i-1], vals[i-1])
		}
	}
	return nil
}

// Classify 返回分数越过的最高档位。分数先截断到 [0,1]，NaN 视为 0。
func (th Thresholds) Classify(score float64) Tier {
	s := Clamp(score)
	switch {
	case s >= th.Core:
		return Core
	case s >= th.Strong:
		return Strong
	case s >= th.Related:
		return Related
	case s >= th.Adjacent:
		return Adjacent
	default:
		return Noise
	}
}

// Floor 返回档位的最低分数，NOISE 为 0
func (th Thresholds) Floor(t Tier) float64 {
	switch t {
	case Core:
		return th.Core
	case Strong:
		return th.Strong
	case Related:
		return th.Related
	case Adjacent:
		return th.Adjacent
	default:
		return 0
	}
}

// Clamp 把相关度分数限制在 [0,1]
func Clamp(score float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Counts 各档位计数
type Counts map[Tier]int

// Total 所有档位之和
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// Add 合并另一份计数
func (c Counts) Add(other Counts) {
	for t, v := range other {
		c[t] += v
	}
}
