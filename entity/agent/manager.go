package agent

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/jinzhu/copier"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/iter"
	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/entity/agent/schedule"
	"github.com/tsinghua-fib-lab/microsim/schema"
	"github.com/tsinghua-fib-lab/microsim/utils/container"
)

// 取消出行时记录的原因
const cancelReason = "cancelled"

// AgentManager 智能体管理器
// 功能：按时刻表生成智能体，按确定性工作列表更新智能体，处理到达、取消与快照恢复
type AgentManager struct {
	ctx entity.ITaskContext

	data map[int32]*Agent
	// 在场的智能体，增删在Prepare时生效
	agents *container.IncrementalArray[*Agent]
	// 已消失、等待从data中删除的智能体
	removed []int32

	schedule      *schedule.Schedule
	nextTransitID int32

	// 上一帧之后发生的事件
	events []schema.Event
}

// NewManager 创建智能体管理器
func NewManager(ctx entity.ITaskContext) *AgentManager {
	return &AgentManager{
		ctx:           ctx,
		data:          make(map[int32]*Agent),
		agents:        container.NewIncrementalArray[*Agent](),
		removed:       make([]int32, 0),
		schedule:      schedule.New(nil),
		nextTransitID: schema.TransitIDStart,
	}
}

// Init 根据场景出行初始化时刻表
func (m *AgentManager) Init(trips []schema.Trip) {
	m.data = make(map[int32]*Agent)
	m.agents = container.NewIncrementalArray[*Agent]()
	m.removed = m.removed[:0]
	m.schedule = schedule.New(trips)
	m.nextTransitID = schema.TransitIDStart
	m.events = nil
}

// emit 按发生顺序记录事件
func (m *AgentManager) emit(e schema.Event) {
	m.events = append(m.events, e)
}

// DrainEvents 取出上一帧之后发生的事件
func (m *AgentManager) DrainEvents() []schema.Event {
	events := m.events
	m.events = nil
	return events
}

// Get 输入Agent ID，查找Agent，如果不存在则panic
func (m *AgentManager) Get(id int32) entity.IAgent {
	return m.get(id)
}

func (m *AgentManager) get(id int32) *Agent {
	if a, ok := m.data[id]; !ok {
		log.Panicf("no id %d in agent data", id)
		return nil
	} else {
		return a
	}
}

// GetOrError 输入Agent ID，查找Agent，如果不存在则返回error
func (m *AgentManager) GetOrError(id int32) (entity.IAgent, error) {
	if a, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in agent data", id)
	} else {
		return a, nil
	}
}

func (m *AgentManager) add(a *Agent) {
	if _, ok := m.data[a.ID()]; ok {
		log.Panicf("agent ID %d already exists", a.ID())
	}
	m.data[a.ID()] = a
	m.agents.Add(a)
}

type plan struct {
	legs []schema.Leg
	err  error
}

// SpawnDue 生成出发时间已到的出行
// 功能：并行规划路径后按(出发时间, ID)顺序创建智能体，不可达的出行记录为unreachable
// 参数：t-当前仿真时间
func (m *AgentManager) SpawnDue(t float64) {
	trips := m.schedule.PopDue(t)
	if len(trips) == 0 {
		return
	}
	planner := m.ctx.Planner()
	plans := iter.Map(trips, func(trip *schema.Trip) plan {
		legs, err := planner.Plan(*trip)
		return plan{legs: legs, err: err}
	})
	step := m.ctx.Clock().InternalStep
	for i, trip := range trips {
		if err := plans[i].err; err != nil {
			if !errors.Is(err, entity.ErrNoPathFound) {
				err = fmt.Errorf("%w: %v", entity.ErrNoPathFound, err)
			}
			m.schedule.Unreachable(trip.ID, step, err.Error())
			m.emit(schema.Event{
				Kind: schema.EventUnreachable, Agent: schema.NoID, Trip: trip.ID,
				Lane: schema.NoID, Stop: schema.NoID, Vehicle: schema.NoID,
			})
			log.Warnf("trip %d is unreachable: %v", trip.ID, err)
			continue
		}
		kind := schema.KindPedestrian
		if trip.Mode == schema.ModeDrive {
			kind = schema.KindVehicle
		}
		a := newAgent(m.ctx, m, trip, kind, plans[i].legs)
		m.add(a)
		m.schedule.Start(trip.ID, a.ID(), step)
	}
}

// SpawnTransit 生成一辆公交车
// 参数：route-线路ID，departure-发车序号
// 返回：公交车ID
func (m *AgentManager) SpawnTransit(route int32, departure int32) int32 {
	line, err := m.ctx.TransitManager().Line(route)
	if err != nil {
		log.Panic(err)
	}
	id := m.nextTransitID
	m.nextTransitID++
	a := newTransitAgent(m.ctx, m, id, line)
	m.add(a)
	log.Debugf("spawn transit %d for route %d departure %d", id, route, departure)
	return id
}

// NextTransitID 下一辆公交车的ID
func (m *AgentManager) NextTransitID() int32 {
	return m.nextTransitID
}

// Prepare 准备阶段：应用智能体集合的增删
func (m *AgentManager) Prepare() {
	m.agents.Prepare()
	for _, id := range m.removed {
		delete(m.data, id)
	}
	m.removed = m.removed[:0]
}

// workList 本步的更新顺序
// 算法说明：
// 1. 按车道更新顺序（先路口内转向，后道路车道，各自按ID升序）
// 2. 每条车道上先车辆后行人，各自从领头者到跟随者
// 3. 最后是不在车道上的智能体，按ID升序
func (m *AgentManager) workList() []*Agent {
	list := make([]*Agent, 0, m.agents.Len())
	for _, l := range m.ctx.LaneManager().Ordered() {
		for _, agents := range []*entity.AgentList{l.Vehicles(), l.Pedestrians()} {
			if agents == nil {
				continue
			}
			for _, node := range agents.LeaderFirst() {
				list = append(list, node.Value.(*Agent))
			}
		}
	}
	off := lo.Filter(m.agents.Data(), func(a *Agent, _ int) bool {
		return a.node.Parent() == nil && a.rt.State != schema.StateDespawned
	})
	sort.Slice(off, func(i, j int) bool { return off[i].rt.ID < off[j].rt.ID })
	return append(list, off...)
}

// Update 更新阶段，按工作列表依次更新智能体
// 返回：第一个不变量错误，出现时本步中止
func (m *AgentManager) Update(dt float64) error {
	for _, a := range m.workList() {
		if a.rt.State == schema.StateDespawned {
			continue
		}
		if err := a.update(dt); err != nil {
			return err
		}
	}
	return nil
}

// finish 智能体完成出行后消失，释放所有资源并记录统计
func (m *AgentManager) finish(a *Agent) {
	step := m.ctx.Clock().InternalStep
	m.release(a)
	if a.rt.Trip != schema.NoID {
		travelTime := float64(step-a.rt.SpawnStep) * m.ctx.Clock().DT
		m.schedule.Finish(a.rt.Trip, step, travelTime, a.rt.Distance)
	}
	m.emit(a.event(schema.EventFinish))
	m.despawn(a)
	log.Debugf("agent %d finished at step %d", a.rt.ID, step)
}

func (m *AgentManager) despawn(a *Agent) {
	a.rt.State = schema.StateDespawned
	a.rt.V, a.rt.A = 0, 0
	m.agents.Remove(a)
	m.removed = append(m.removed, a.rt.ID)
}

// release 释放智能体持有的资源
// 功能：取消路口预约与排队中的申请，离开车道，离开公交站队列或公交车
func (m *AgentManager) release(a *Agent) {
	if a.rt.ReservedTurn != schema.NoID {
		a.junctionOf(m.ctx.LaneManager().Get(a.rt.ReservedTurn)).Cancel(a.rt.ID)
		a.rt.ReservedTurn = schema.NoID
	}
	if a.rt.State == schema.StateAtIntersection && int(a.rt.PathIndex)+1 < len(a.rt.Path) {
		if turn := a.pathLane(a.rt.PathIndex + 1); turn.IsTurn() {
			a.junctionOf(turn).Cancel(a.rt.ID)
		}
	}
	a.rt.BlockedSince = schema.NoID
	a.leave()
	switch a.rt.State {
	case schema.StateWaitingForTransit:
		m.ctx.TransitManager().Leave(a.leg().BoardStop, a.rt.ID)
	case schema.StateOnBoard:
		if bus, ok := m.data[a.rt.Vehicle]; ok {
			bus.rt.Manifest = slices.DeleteFunc(bus.rt.Manifest, func(id int32) bool { return id == a.rt.ID })
		}
		a.rt.Vehicle = schema.NoID
	}
}

// CancelTrip 取消出行
// 功能：未出发的出行直接标记为cancelled，进行中的出行取消其智能体
// 说明：只能在两步之间调用
func (m *AgentManager) CancelTrip(id int32) error {
	r, err := m.schedule.Status(id)
	if err != nil {
		return err
	}
	switch r.Status {
	case schema.TripPending:
		if _, err := m.schedule.Cancel(id, m.ctx.Clock().InternalStep, cancelReason); err != nil {
			return err
		}
		m.emit(schema.Event{
			Kind: schema.EventCancel, Agent: schema.NoID, Trip: id,
			Lane: schema.NoID, Stop: schema.NoID, Vehicle: schema.NoID,
		})
		return nil
	case schema.TripActive:
		return m.CancelAgent(r.Agent)
	default:
		return fmt.Errorf("trip %d is already %s", id, r.Status)
	}
}

// CancelAgent 取消智能体
// 功能：释放资源后立即消失，对应的出行标记为cancelled；取消公交车时车上乘客一并取消
func (m *AgentManager) CancelAgent(id int32) error {
	a, ok := m.data[id]
	if !ok || a.rt.State == schema.StateDespawned {
		return fmt.Errorf("no active agent %d", id)
	}
	step := m.ctx.Clock().InternalStep
	for _, pid := range slices.Clone(a.rt.Manifest) {
		if err := m.CancelAgent(pid); err != nil {
			return err
		}
	}
	m.release(a)
	if a.rt.Trip != schema.NoID {
		if _, err := m.schedule.Cancel(a.rt.Trip, step, cancelReason); err != nil {
			return err
		}
	}
	m.emit(a.event(schema.EventCancel))
	m.despawn(a)
	log.Infof("agent %d cancelled at step %d", id, step)
	return nil
}

// active 在场的智能体，按ID升序
func (m *AgentManager) active() []*Agent {
	agents := lo.Filter(lo.Values(m.data), func(a *Agent, _ int) bool {
		return a.rt.State != schema.StateDespawned
	})
	sort.Slice(agents, func(i, j int) bool { return agents[i].rt.ID < agents[j].rt.ID })
	return agents
}

// Records 在场智能体的运行时数据，按ID升序
func (m *AgentManager) Records() []schema.AgentRecord {
	return lo.Map(m.active(), func(a *Agent, _ int) schema.AgentRecord { return a.Record() })
}

// Views 在场智能体的摘要，按ID升序
func (m *AgentManager) Views() []schema.AgentView {
	return lo.Map(m.active(), func(a *Agent, _ int) schema.AgentView { return a.view() })
}

// Detail 单个智能体的完整状态（深拷贝）
func (m *AgentManager) Detail(id int32) (schema.AgentDetail, error) {
	a, ok := m.data[id]
	if !ok {
		return schema.AgentDetail{}, fmt.Errorf("no id %d in agent data", id)
	}
	var d schema.AgentDetail
	r := a.Record()
	if err := copier.CopyWithOption(&d.AgentRecord, &r, copier.Option{DeepCopy: true}); err != nil {
		return schema.AgentDetail{}, err
	}
	if a.rt.Trip != schema.NoID {
		if t, err := m.schedule.Status(a.rt.Trip); err == nil {
			d.TripStatus = t.Status
		}
	}
	c := m.ctx.Clock()
	d.TripTime = float64(c.InternalStep-a.rt.SpawnStep) * c.DT
	d.PercentCrossed = a.percentCrossed()
	return d, nil
}

// percentCrossed 当前路径已完成的比例
// 说明：逆向通行的车道从终点一端进入
func (a *Agent) percentCrossed() float64 {
	if len(a.rt.Path) == 0 || a.rt.Lane == schema.NoID {
		return 0
	}
	var from, to float64
	transit := a.rt.Kind == schema.KindTransit
	if transit {
		stops := a.line().Stops()
		from, to = stops[0].S, stops[len(stops)-1].S
	} else {
		from, to = a.leg().From.S, a.leg().To.S
	}
	var total, done float64
	for i, id := range a.rt.Path {
		l := a.ctx.LaneManager().Get(id)
		enter, exit := 0.0, l.Length()
		if !transit && a.contraflow(int32(i)) {
			enter, exit = exit, enter
		}
		if i == 0 {
			enter = from
		}
		if i == len(a.rt.Path)-1 {
			exit = to
		}
		total += math.Abs(exit - enter)
		switch {
		case int32(i) < a.rt.PathIndex:
			done += math.Abs(exit - enter)
		case int32(i) == a.rt.PathIndex:
			done += math.Abs(a.rt.S - enter)
		}
	}
	if total <= 0 {
		return 1
	}
	return lo.Clamp(done/total, 0, 1)
}

// TripStatus 出行状态
func (m *AgentManager) TripStatus(id int32) (schema.TripRecord, error) {
	return m.schedule.Status(id)
}

// TripRecords 全部出行状态，按ID升序
func (m *AgentManager) TripRecords() []schema.TripRecord {
	return m.schedule.Records()
}

// Statistics 全局统计
func (m *AgentManager) Statistics() schema.Statistics {
	return m.schedule.Statistics()
}

// NodeOf 智能体的车道链表节点，用于恢复车道占用
func (m *AgentManager) NodeOf(id int32) (*entity.AgentNode, error) {
	a, ok := m.data[id]
	if !ok {
		return nil, fmt.Errorf("no id %d in agent data", id)
	}
	return a.node, nil
}

// Restore 从快照恢复智能体、出行状态与统计
func (m *AgentManager) Restore(
	records []schema.AgentRecord, trips []schema.TripRecord, stats schema.Statistics, nextTransitID int32,
) error {
	if err := m.schedule.Restore(trips, stats); err != nil {
		return err
	}
	m.data = make(map[int32]*Agent, len(records))
	m.agents.Reset()
	m.removed = m.removed[:0]
	m.events = nil
	for _, r := range records {
		if _, ok := m.data[r.ID]; ok {
			return fmt.Errorf("duplicated agent %d in snapshot", r.ID)
		}
		m.add(restoreAgent(m.ctx, m, r))
	}
	m.agents.Prepare()
	m.nextTransitID = nextTransitID
	return nil
}
