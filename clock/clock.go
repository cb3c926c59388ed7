package clock

import (
	"fmt"

	"github.com/tsinghua-fib-lab/microsim/utils/config"
)

// Clock 仿真时钟
// 功能：以固定步长推进仿真时间，是仿真中唯一的时间来源
// 说明：第k步结束时的时间为 k*DT，模拟区间为[START_STEP, END_STEP)
type Clock struct {
	DT         float64 // 每步时间间隔（秒）
	START_STEP int32   // 起始步
	END_STEP   int32   // 结束步

	T            float64 // 当前时间（秒）
	InternalStep int32   // 当前步数
}

// New 根据配置创建新的时钟实例
// 参数：stepConfig-控制步配置，包含起始步、总步数与时间间隔
// 返回：初始化完成的时钟实例
func New(stepConfig config.ControlStep) *Clock {
	c := &Clock{
		DT:         stepConfig.Interval,
		START_STEP: stepConfig.Start,
		END_STEP:   stepConfig.Start + stepConfig.Total,
	}
	c.Init()
	return c
}

// Init 重置时钟状态到起始步
func (c *Clock) Init() {
	c.Set(c.START_STEP)
}

// Set 将时钟设置到指定步，用于从快照恢复
func (c *Clock) Set(step int32) {
	c.InternalStep = step
	c.T = float64(c.InternalStep) * c.DT
}

// Tick 推进一步
func (c *Clock) Tick() {
	c.Set(c.InternalStep + 1)
}

// Done 是否已经到达结束步
func (c *Clock) Done() bool {
	return c.InternalStep >= c.END_STEP
}

// Seconds 将秒数换算为步数，向上取整，至少为1
func (c *Clock) Seconds(seconds float64) int32 {
	steps := int32(seconds / c.DT)
	if float64(steps)*c.DT < seconds-1e-9 {
		steps++
	}
	return max(steps, 1)
}

// String 获取时钟的字符串表示（HH:MM:SS）
func (c *Clock) String() string {
	t := c.T
	h := int(t / 3600)
	t -= float64(h * 3600)
	m := int(t / 60)
	t -= float64(m * 60)
	s := int(t)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// GetHourMinuteSecond 获取当前时间的小时、分钟、秒
// 返回：小时、分钟、秒（秒为浮点数，支持亚秒级精度）
func (c *Clock) GetHourMinuteSecond() (int, int, float64) {
	hour := int(c.T) / 3600
	minute := int(c.T) % 3600 / 60
	second := c.T - float64(hour*3600+minute*60)
	return hour, minute, second
}
