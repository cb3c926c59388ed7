package trafficlight

import (
	"fmt"
	"math"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/schema"
)

// localTlRuntime 信号灯运行时数据
type localTlRuntime struct {
	tlStep       int32   // 当前相位下标
	tlRemainingT float64 // 当前相位剩余时间
}

// localTrafficLight 固定相位信号灯控制器
// 功能：按照预设的相位顺序和时长循环切换，并把每个转向的灯色写入对应的转向车道
// 说明：没有出现在任何相位中的转向视为不受信号控制，始终为绿灯
type localTrafficLight struct {
	JunctionID int32          // 所属junction ID
	lanes      []entity.ILane // 路口内的转向车道，按ID升序
	phases     []schema.Phase // 相位程序

	states  [][]entity.LightState // [相位][车道]灯色
	laneIdx map[int32]int         // 转向ID -> lanes下标

	runtime localTlRuntime
}

// NewLocalTrafficLight 创建固定相位信号灯控制器
// 功能：检查相位程序，预计算每个相位下每个转向的灯色，并根据当前时间与偏移量确定初始相位
// 参数：junctionID-路口ID，lanes-转向车道列表，phases-相位程序，offset-相位偏移（秒），t-当前时间（秒）
// 返回：信号灯控制器实例或错误
func NewLocalTrafficLight(
	junctionID int32, lanes []entity.ILane, phases []schema.Phase, offset, t float64,
) (*localTrafficLight, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("junction %d: signal without phases", junctionID)
	}
	cycle := 0.0
	for i, p := range phases {
		if p.Duration <= 0 {
			return nil, fmt.Errorf("junction %d: phase %d has non-positive duration %v", junctionID, i, p.Duration)
		}
		cycle += p.Duration
	}
	l := &localTrafficLight{
		JunctionID: junctionID,
		lanes:      lanes,
		phases:     phases,
		laneIdx:    make(map[int32]int, len(lanes)),
	}
	for i, lane := range lanes {
		l.laneIdx[lane.ID()] = i
	}
	controlled := make([]bool, len(lanes))
	for _, p := range phases {
		for _, id := range lo.Flatten([][]int32{p.Protected, p.Yield}) {
			i, ok := l.laneIdx[id]
			if !ok {
				return nil, fmt.Errorf("junction %d: phase references turn %d outside the junction", junctionID, id)
			}
			controlled[i] = true
		}
	}
	l.states = lo.Map(phases, func(p schema.Phase, _ int) []entity.LightState {
		states := make([]entity.LightState, len(lanes))
		for i := range lanes {
			if controlled[i] {
				states[i] = entity.LightRed
			} else {
				states[i] = entity.LightGreen
			}
		}
		for _, id := range p.Yield {
			states[l.laneIdx[id]] = entity.LightYield
		}
		for _, id := range p.Protected {
			states[l.laneIdx[id]] = entity.LightGreen
		}
		return states
	})

	// 初始相位：(t + offset) 对周期取模后落在的相位
	pos := math.Mod(t+offset, cycle)
	if pos < 0 {
		pos += cycle
	}
	for i, p := range phases {
		if pos < p.Duration || i == len(phases)-1 {
			l.runtime = localTlRuntime{tlStep: int32(i), tlRemainingT: p.Duration - pos}
			break
		}
		pos -= p.Duration
	}
	l.write()
	return l, nil
}

// write 将当前相位的灯色写入车道
func (l *localTrafficLight) write() {
	states := l.states[l.runtime.tlStep]
	for i, lane := range l.lanes {
		lane.SetLight(states[i])
	}
}

// Update 更新阶段，推进相位
// 参数：dt-时间步长
// 说明：相位切换在步开始时原子生效，切换后立即写入车道
func (l *localTrafficLight) Update(dt float64) {
	l.runtime.tlRemainingT -= dt
	if l.runtime.tlRemainingT <= 1e-9 {
		for {
			l.runtime.tlStep = (l.runtime.tlStep + 1) % int32(len(l.phases))
			l.runtime.tlRemainingT += l.phases[l.runtime.tlStep].Duration
			if l.runtime.tlRemainingT > 1e-9 {
				break
			}
		}
	}
	l.write()
}

// SetPhase 设置相位索引和剩余时间
func (l *localTrafficLight) SetPhase(index int32, remainingT float64) {
	if index < 0 || int(index) >= len(l.phases) {
		log.Panicf("junction %d: bad phase index %d", l.JunctionID, index)
	}
	l.runtime = localTlRuntime{tlStep: index, tlRemainingT: remainingT}
	l.write()
}

// Step 获取当前相位索引
func (l *localTrafficLight) Step() int32 {
	return l.runtime.tlStep
}

// RemainingTime 获取当前相位剩余时间
func (l *localTrafficLight) RemainingTime() float64 {
	return l.runtime.tlRemainingT
}

// State 获取转向在当前相位的灯色，不属于本路口的转向视为红灯
func (l *localTrafficLight) State(turnID int32) entity.LightState {
	i, ok := l.laneIdx[turnID]
	if !ok {
		return entity.LightRed
	}
	return l.states[l.runtime.tlStep][i]
}
