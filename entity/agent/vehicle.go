package agent

import (
	"errors"
	"math"

	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/schema"
)

// junctionOf 转向车道所属的路口
func (a *Agent) junctionOf(turn entity.ILane) entity.IJunction {
	return a.ctx.JunctionManager().Get(turn.Intersection())
}

// distanceAlong 从当前位置沿路径到路径第idx个车道s处的距离
func (a *Agent) distanceAlong(idx int32, s float64) float64 {
	d := s - a.node.S
	for i := a.rt.PathIndex; i < idx; i++ {
		d += a.pathLane(i).Length()
	}
	return d
}

// requestTurn 车辆接近路口时申请转向
// 功能：只有车道上的领头车辆在距停止线requestDistance以内时申请，停车让行路口要求已到达停止线，结果决定是否进入等待状态
func (a *Agent) requestTurn(dt float64) error {
	if a.rt.ReservedTurn != schema.NoID || a.isLastLane() || a.node.Next() != nil {
		return nil
	}
	l := a.lane()
	next := a.pathLane(a.rt.PathIndex + 1)
	if l.IsTurn() || !next.IsTurn() {
		return nil
	}
	if a.rt.Kind == schema.KindTransit && a.nextStopOnLane() {
		// 先停靠本车道上的站点
		return nil
	}
	if l.Length()-a.node.S > a.model.requestDistance(a.rt.V, dt) {
		return nil
	}
	if a.junctionOf(next).Control() == schema.ControlStopSign && l.Length()-a.node.S > entity.EPS {
		// 停车让行：到达停止线后才申请
		return nil
	}
	return a.applyRequest(next)
}

// applyRequest 向路口申请转向并根据结果更新状态
func (a *Agent) applyRequest(turn entity.ILane) error {
	err := a.junctionOf(turn).RequestTurn(a, turn)
	switch {
	case err == nil:
		a.rt.ReservedTurn = turn.ID()
		a.rt.State = schema.StateTraveling
		a.rt.BlockedSince = schema.NoID
		return nil
	case errors.Is(err, entity.ErrTurnDenied):
		a.rt.State = schema.StateAtIntersection
		if a.rt.BlockedSince == schema.NoID {
			a.rt.BlockedSince = a.ctx.Clock().InternalStep
		}
		return nil
	default:
		return a.violation("request turn %d: %v", turn.ID(), err)
	}
}

// scan 观察前方
// 返回：前车（可为nil）与到最近停车目标的距离
// 算法说明：
// 1. 前车为同车道前方车辆，否则沿路径在观察距离内寻找后续车道最后方的车辆
// 2. 停车目标取以下最小值：未预约转向的停止线、终点、公交车的下一站
func (a *Agent) scan() (*Leader, float64) {
	view := viewDistance(a.rt.V)
	var leader *Leader
	if ahead := a.node.Next(); ahead != nil {
		leader = &Leader{Distance: ahead.Back() - a.node.S, V: ahead.V()}
	}
	target := math.Inf(1)
	acc := a.lane().Length() - a.node.S
	for i := a.rt.PathIndex + 1; int(i) < len(a.rt.Path) && acc < view; i++ {
		l := a.pathLane(i)
		if l.IsTurn() && l.ID() != a.rt.ReservedTurn && math.IsInf(target, 1) {
			target = acc
		}
		if leader == nil {
			if first := l.Vehicles().First(); first != nil {
				leader = &Leader{Distance: acc + first.Back(), V: first.V()}
			}
		}
		acc += l.Length()
	}
	if a.rt.Kind == schema.KindTransit {
		if d, ok := a.nextStopDistance(); ok {
			target = math.Min(target, d)
		}
	} else {
		target = math.Min(target, a.distanceAlong(int32(len(a.rt.Path)-1), a.leg().To.S))
	}
	return leader, target
}

// drive 车辆（含公交车）一步的运动
func (a *Agent) drive(dt float64) error {
	if err := a.requestTurn(dt); err != nil {
		return err
	}
	leader, target := a.scan()
	maxV := math.Min(a.maxV, a.lane().MaxSpeed()*a.rt.SpeedRatio)
	p, err := a.model.Propose(a.rt.V, maxV, dt, leader, target)
	if err != nil {
		return a.violation("kinematics: %v", err)
	}
	a.rt.A, a.rt.V = p.A, p.V
	moved, err := a.moveAlongPath(p.DS)
	if err != nil {
		return err
	}
	a.addDistance(moved)
	if a.rt.Kind == schema.KindTransit {
		return a.checkStop()
	}
	if a.isLastLane() && a.node.S >= a.leg().To.S-entity.EPS && a.rt.V == 0 {
		a.arrive()
	}
	return nil
}

// moveAlongPath 沿路径移动ds
// 功能：跨越车道终点时检查下一车道能否进入，不能进入时停在车道终点
// 返回：实际移动距离
func (a *Agent) moveAlongPath(ds float64) (float64, error) {
	moved := 0.0
	remaining := ds
	for {
		l := a.lane()
		old := a.node.S
		room := l.Length() - old
		if remaining <= room+entity.EPS || a.isLastLane() {
			moved += l.Advance(a.node, remaining) - old
			break
		}
		next := a.pathLane(a.rt.PathIndex + 1)
		if next.IsTurn() && next.ID() != a.rt.ReservedTurn {
			// 没有预约，停在停止线
			moved += l.Advance(a.node, room) - old
			a.rt.V = 0
			break
		}
		overflow := remaining - room
		s := math.Min(overflow, next.Length())
		ok, err := a.transfer(l, next, s)
		if err != nil {
			return moved, err
		}
		if !ok {
			moved += l.Advance(a.node, room) - old
			a.rt.V = 0
			break
		}
		moved += room + s
		remaining = overflow - s
	}
	a.rt.S = a.node.S
	return moved, nil
}

// transfer 从车道from移动到路径中的下一车道to的s处
// 返回：能否进入；非容量原因的失败为不变量错误
func (a *Agent) transfer(from, to entity.ILane, s float64) (bool, error) {
	reserved := from.IsTurn() || to.IsTurn()
	candidate := &entity.AgentNode{Value: a}
	if err := to.CanAdmit(candidate, s, reserved); err != nil {
		if errors.Is(err, entity.ErrLaneFull) {
			return false, nil
		}
		return false, a.violation("enter lane %d: %v", to.ID(), err)
	}
	from.Remove(a.node)
	if err := a.admit(to, s, reserved); err != nil {
		return false, a.violation("enter lane %d after check: %v", to.ID(), err)
	}
	if to.IsTurn() {
		a.junctionOf(to).Enter(a.rt.ID)
	}
	if from.IsTurn() {
		a.junctionOf(from).Release(a.rt.ID)
		a.rt.ReservedTurn = schema.NoID
	}
	a.rt.PathIndex++
	a.m.emit(a.event(schema.EventEnterLane))
	return true, nil
}

// addDistance 累计行驶距离，公交车上的乘客同步累计
func (a *Agent) addDistance(d float64) {
	a.rt.Distance += d
	for _, id := range a.rt.Manifest {
		p := a.m.get(id)
		p.rt.Distance += d
		p.rt.V = a.rt.V
	}
}

// arrive 私家车到达终点，离开车道后停车或消失
func (a *Agent) arrive() {
	a.leave()
	if d := a.ctx.RuntimeConfig().All.Vehicle.ParkingDuration; d > 0 {
		a.rt.State = schema.StateParking
		a.rt.ParkingLeft = a.ctx.Clock().Seconds(d)
		a.rt.V, a.rt.A = 0, 0
		return
	}
	a.m.finish(a)
}
