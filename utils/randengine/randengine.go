// 随机数引擎，包装了golang.org/x/exp/rand
// 引擎按实体ID播种，仿真结果只取决于输入与种子偏移量
package randengine

import (
	"github.com/samber/lo"
	"golang.org/x/exp/rand"
)

// Engine 随机数引擎（非线程安全，每个实体独占一个）
type Engine struct {
	*rand.Rand
}

// New 创建随机数引擎
// 参数：seed-随机数种子，通常为实体ID；offset-种子偏移量，来自control.seed_offset
// 说明：种子偏移量允许在不修改输入的情况下调整随机数序列
func New(seed, offset uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + offset))}
}

// ClampedNorm 采样N(mean, std)并限制在[min, max]内
func (e *Engine) ClampedNorm(mean, std, min, max float64) float64 {
	return lo.Clamp(mean+std*e.NormFloat64(), min, max)
}
