package agent

import (
	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/schema"
)

// line 公交车所属线路
func (a *Agent) line() entity.ITransitLine {
	line, err := a.ctx.TransitManager().Line(a.rt.Route)
	if err != nil {
		log.Panic(err)
	}
	return line
}

// nextStop 下一站在线路中的下标，已过末站时返回false
func (a *Agent) nextStop() (int, bool) {
	i := int(a.rt.StopIndex) + 1
	return i, i < len(a.line().Stops())
}

// nextStopOnLane 下一站是否在当前车道上
func (a *Agent) nextStopOnLane() bool {
	i, ok := a.nextStop()
	return ok && a.line().StopPathIndex(i) == a.rt.PathIndex
}

// nextStopDistance 到下一站停车位置的距离
func (a *Agent) nextStopDistance() (float64, bool) {
	i, ok := a.nextStop()
	if !ok {
		return 0, false
	}
	line := a.line()
	return a.distanceAlong(line.StopPathIndex(i), line.Stops()[i].S), true
}

// checkStop 行驶后检查是否停在下一站
func (a *Agent) checkStop() error {
	if !a.nextStopOnLane() || a.rt.V != 0 {
		return nil
	}
	i, _ := a.nextStop()
	if a.node.S < a.line().Stops()[i].S-entity.EPS {
		return nil
	}
	return a.arriveStop(i)
}

// ride 乘客上下车事件
func (a *Agent) ride(kind schema.EventKind, stop, vehicle int32) schema.Event {
	e := a.event(kind)
	e.Stop, e.Vehicle = stop, vehicle
	return e
}

// arriveStop 公交车到达第i站
// 算法说明：
// 1. 下车站为本站的乘客下车，放置到站点人行道一侧
// 2. 非末站时按到站顺序上车，至多到满载
// 3. 停站 ceil((dwell_base + dwell_per_passenger*(上车+下车人数))/dt) 步
func (a *Agent) arriveStop(i int) error {
	line := a.line()
	stop := line.Stops()[i]
	a.rt.StopIndex = int32(i)
	arrived := a.event(schema.EventArriveStop)
	arrived.Stop = stop.ID
	a.m.emit(arrived)
	kept := make([]int32, 0, len(a.rt.Manifest))
	alighted := 0
	for _, id := range a.rt.Manifest {
		p := a.m.get(id)
		if p.AlightStop() != stop.ID {
			kept = append(kept, id)
			continue
		}
		if err := p.Alight(stop); err != nil {
			return a.violation("alight at stop %d: %v", stop.ID, err)
		}
		a.m.emit(p.ride(schema.EventAlight, stop.ID, a.rt.ID))
		alighted++
	}
	a.rt.Manifest = kept
	boarded := 0
	if i < len(line.Stops())-1 {
		n := int(a.rt.Capacity) - len(a.rt.Manifest)
		for _, id := range a.ctx.TransitManager().Board(stop.ID, a.rt.Route, n) {
			p := a.m.get(id)
			p.Board(a)
			a.m.emit(p.ride(schema.EventBoard, stop.ID, a.rt.ID))
			a.rt.Manifest = append(a.rt.Manifest, id)
			boarded++
		}
	}
	c := a.ctx.RuntimeConfig().All.Transit
	a.rt.State = schema.StateDwelling
	a.rt.V, a.rt.A = 0, 0
	a.rt.DwellLeft = a.ctx.Clock().Seconds(c.DwellBase + c.DwellPerPassenger*float64(boarded+alighted))
	log.Debugf("transit %d at stop %d: %d boarded, %d alighted, dwell %d steps",
		a.rt.ID, stop.ID, boarded, alighted, a.rt.DwellLeft)
	return nil
}

// dwell 停站计时，结束时检查上下车一致性后出发或在末站消失
func (a *Agent) dwell() error {
	if a.rt.DwellLeft--; a.rt.DwellLeft > 0 {
		return nil
	}
	stops := a.line().Stops()
	stop := stops[a.rt.StopIndex]
	for _, id := range a.rt.Manifest {
		if a.m.get(id).AlightStop() == stop.ID {
			return a.violation("passenger %d still on board at its alight stop %d", id, stop.ID)
		}
	}
	if int(a.rt.StopIndex) == len(stops)-1 {
		if len(a.rt.Manifest) > 0 {
			return a.violation("passengers %v still on board at the last stop %d", a.rt.Manifest, stop.ID)
		}
		a.leave()
		a.m.finish(a)
		return nil
	}
	a.rt.State = schema.StateTraveling
	return nil
}
