package transit

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/schema"
)

// TransitManager 公交管理器
// 功能：管理公交站候车队列与公交线路，按时刻表发车
type TransitManager struct {
	ctx entity.ITaskContext

	stops    map[int32]*Stop
	stopList []*Stop // 按ID升序
	lines    map[int32]*Line
	lineList []*Line // 按ID升序
}

// NewManager 创建公交管理器
func NewManager(ctx entity.ITaskContext) *TransitManager {
	return &TransitManager{
		ctx:      ctx,
		stops:    make(map[int32]*Stop),
		stopList: make([]*Stop, 0),
		lines:    make(map[int32]*Line),
		lineList: make([]*Line, 0),
	}
}

// Init 初始化公交站与线路
// 功能：计算每条线路的行驶路径，站间不连通时作为场景错误报告
// 参数：stops-路网中的公交站，routes-场景中的公交线路，router-路径规划
// 返回：包含全部问题的ScenarioLoadError
func (m *TransitManager) Init(stops []schema.Stop, routes []schema.TransitRoute, router entity.IRouter) error {
	m.stopList = lo.Map(stops, func(s schema.Stop, _ int) *Stop { return newStop(s) })
	sort.Slice(m.stopList, func(i, j int) bool { return m.stopList[i].base.ID < m.stopList[j].base.ID })
	m.stops = lo.SliceToMap(m.stopList, func(s *Stop) (int32, *Stop) { return s.base.ID, s })

	problems := &entity.ScenarioLoadError{}
	m.lineList = make([]*Line, 0, len(routes))
	defaultCapacity := m.ctx.RuntimeConfig().All.Transit.Capacity
	for _, r := range routes {
		lineStops := make([]schema.Stop, 0, len(r.Stops))
		for _, id := range r.Stops {
			if s, ok := m.stops[id]; ok {
				lineStops = append(lineStops, s.base)
			} else {
				problems.Addf("route %d: unknown stop %d", r.ID, id)
			}
		}
		if len(lineStops) != len(r.Stops) || len(lineStops) < 2 {
			continue
		}
		capacity := r.Capacity
		if capacity <= 0 {
			capacity = defaultCapacity
		}
		line, err := newLine(r, lineStops, capacity, router)
		if err != nil {
			problems.Addf("%v", err)
			continue
		}
		m.lineList = append(m.lineList, line)
	}
	sort.Slice(m.lineList, func(i, j int) bool { return m.lineList[i].id < m.lineList[j].id })
	m.lines = lo.SliceToMap(m.lineList, func(l *Line) (int32, *Line) { return l.id, l })
	return problems.OrNil()
}

// Line 获取公交线路
func (m *TransitManager) Line(route int32) (entity.ITransitLine, error) {
	if l, ok := m.lines[route]; ok {
		return l, nil
	}
	return nil, fmt.Errorf("no id %d in transit route data", route)
}

// Stop 获取公交站
func (m *TransitManager) Stop(id int32) (schema.Stop, error) {
	if s, ok := m.stops[id]; ok {
		return s.base, nil
	}
	return schema.Stop{}, fmt.Errorf("no id %d in stop data", id)
}

func (m *TransitManager) getStop(id int32) *Stop {
	s, ok := m.stops[id]
	if !ok {
		log.Panicf("no id %d in stop data", id)
	}
	return s
}

// Wait 乘客开始在站点等车
func (m *TransitManager) Wait(stopID int32, passenger entity.IAgent) {
	s := m.getStop(stopID)
	if l, ok := m.lines[passenger.Route()]; !ok || !l.hasStop(stopID) {
		log.Panicf("%v waits at stop %d for route %d which does not stop there", passenger, stopID, passenger.Route())
	}
	s.add(passenger.ID())
}

// Leave 乘客离开站点队列
func (m *TransitManager) Leave(stopID int32, passengerID int32) {
	if !m.getStop(stopID).remove(passengerID) {
		log.Warnf("passenger %d is not waiting at stop %d", passengerID, stopID)
	}
}

// Board 按到站顺序取出等待该线路的乘客，至多n个
func (m *TransitManager) Board(stopID int32, route int32, n int) []int32 {
	if n <= 0 {
		return nil
	}
	am := m.ctx.AgentManager()
	return m.getStop(stopID).take(n, func(id int32) bool {
		return am.Get(id).Route() == route
	})
}

// Prepare 准备阶段：按线路ID顺序发出到点的班次
func (m *TransitManager) Prepare() {
	t := m.ctx.Clock().T
	am := m.ctx.AgentManager()
	for _, l := range m.lineList {
		for int(l.next) < len(l.departures) && l.departures[l.next] <= t+1e-9 {
			am.SpawnTransit(l.id, l.next)
			l.next++
		}
	}
}

// Records 各线路的发车进度，按线路ID升序
func (m *TransitManager) Records() []schema.TransitRecord {
	return lo.Map(m.lineList, func(l *Line, _ int) schema.TransitRecord {
		return schema.TransitRecord{Route: l.id, NextDeparture: l.next}
	})
}

// StopRecords 各站点的候车队列，按站点ID升序
func (m *TransitManager) StopRecords() []schema.StopRecord {
	return lo.Map(m.stopList, func(s *Stop, _ int) schema.StopRecord { return s.record() })
}

// Restore 从快照恢复发车进度与候车队列
func (m *TransitManager) Restore(routes []schema.TransitRecord, stops []schema.StopRecord) error {
	for _, r := range routes {
		l, ok := m.lines[r.Route]
		if !ok {
			return fmt.Errorf("no id %d in transit route data", r.Route)
		}
		if r.NextDeparture < 0 || int(r.NextDeparture) > len(l.departures) {
			return fmt.Errorf("route %d: next departure %d out of range", r.Route, r.NextDeparture)
		}
		l.next = r.NextDeparture
	}
	for _, r := range stops {
		s, ok := m.stops[r.ID]
		if !ok {
			return fmt.Errorf("no id %d in stop data", r.ID)
		}
		s.waiting = append(make([]int32, 0, len(r.Waiting)), r.Waiting...)
	}
	return nil
}
