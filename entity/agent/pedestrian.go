package agent

import (
	"math"

	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/schema"
)

// walk 行人一步的运动
// 功能：以固定步行速度沿步行段路径前进，到达人行横道前申请通过，步行段结束后等车或到达
// 算法说明：
// 1. 行人之间可以超越，只截断到车道端点与步行段终点
// 2. 逆向通行的车道从终点一端进入，向起点移动
// 3. 进入路口内转向前必须持有预约，被拒绝时停在车道端点等待
func (a *Agent) walk(dt float64) error {
	remaining := a.rt.WalkSpeed * dt
	moved := 0.0
	for {
		l := a.lane()
		rev := a.contraflow(a.rt.PathIndex)
		exit := l.Length()
		if a.isLastLane() {
			exit = a.leg().To.S
		} else if rev {
			exit = 0
		}
		room := math.Abs(exit - a.node.S)
		if a.isLastLane() || remaining <= room+entity.EPS {
			moved += a.stride(l, rev, math.Min(remaining, room))
			break
		}
		next := a.pathLane(a.rt.PathIndex + 1)
		if next.IsTurn() && next.ID() != a.rt.ReservedTurn {
			moved += a.stride(l, rev, room)
			if err := a.applyRequest(next); err != nil {
				return err
			}
			if a.rt.ReservedTurn != next.ID() {
				break
			}
			remaining -= room
			room = 0
		}
		overflow := remaining - room
		d := math.Min(overflow, next.Length())
		s := d
		if a.contraflow(a.rt.PathIndex + 1) {
			s = next.Length() - d
		}
		ok, err := a.transfer(l, next, s)
		if err != nil {
			return err
		}
		if !ok {
			moved += a.stride(l, rev, room)
			break
		}
		moved += room + d
		remaining = overflow - d
	}
	a.rt.S = a.node.S
	a.rt.V = moved / dt
	a.rt.Distance += moved
	if a.isLastLane() && math.Abs(a.node.S-a.leg().To.S) <= entity.EPS {
		a.endWalk()
	}
	return nil
}

// contraflow 路径中第i个车道是否逆向通行
func (a *Agent) contraflow(i int32) bool {
	c := a.leg().Contraflow
	return int(i) < len(c) && c[i]
}

// stride 在车道l上按通行方向移动d
// 返回：实际移动距离
func (a *Agent) stride(l entity.ILane, rev bool, d float64) float64 {
	old := a.node.S
	if rev {
		return old - l.Retreat(a.node, d)
	}
	return l.Advance(a.node, d) - old
}

// endWalk 步行段结束：到达终点或开始在公交站等车
func (a *Agent) endWalk() {
	a.leave()
	a.rt.V = 0
	if int(a.rt.LegIndex) == len(a.rt.Legs)-1 {
		a.m.finish(a)
		return
	}
	a.startLeg(a.rt.LegIndex + 1)
	leg := a.leg()
	if leg.Kind != schema.LegWait {
		log.Panicf("%v: walk leg followed by %v", a, leg.Kind)
	}
	a.rt.State = schema.StateWaitingForTransit
	a.ctx.TransitManager().Wait(leg.BoardStop, a)
}
