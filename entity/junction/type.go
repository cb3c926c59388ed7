package junction

import (
	"github.com/tsinghua-fib-lab/microsim/entity"
)

// 依赖倒置，表达junction对信号灯实现的接口需求

// 给路口仲裁提供的信控读取接口
type ITrafficLightGetter interface {
	Step() int32                          // 当前相位
	RemainingTime() float64               // 当前相位剩余时长
	State(turnID int32) entity.LightState // 转向在当前相位的灯色
}

// 信号灯接口
type ITrafficLight interface {
	ITrafficLightGetter
	Update(dt float64)                           // 更新阶段，推进相位并将灯色写入车道
	SetPhase(index int32, remainingTime float64) // 修改相位到指定值，用于快照恢复
}
