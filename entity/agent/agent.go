package agent

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/schema"
	"github.com/tsinghua-fib-lab/microsim/utils/container"
	"github.com/tsinghua-fib-lab/microsim/utils/randengine"
)

const (
	minWalkSpeed  = 0.5 // 最小步行速度
	walkSpeedStd  = 0.1 // 步行速度的相对标准差
	maxSpeedRatio = 1.2 // 车道限速认知偏差上限
	minSpeedRatio = 0.8 // 车道限速认知偏差下限
)

// Agent 智能体实体
// 功能：表示私家车、行人（含公交乘客）与公交车，按类型与状态机状态分派更新逻辑
// 说明：只通过ID引用车道、路口与其他智能体，运行时数据rt可以被直接复制
type Agent struct {
	container.IncrementalItemBase
	ctx entity.ITaskContext
	m   *AgentManager

	rt    schema.AgentRecord // 运行时数据
	node  *entity.AgentNode  // 车道链表节点，不在车道上时Parent为nil
	model Model              // 运动学模型
	maxV  float64            // 最大速度
}

// newAgent 创建智能体
// 功能：个体参数以智能体ID为种子一次性抽取，保证可复现
// 参数：ctx-任务上下文，m-管理器，trip-出行，kind-类型，legs-出行段
func newAgent(ctx entity.ITaskContext, m *AgentManager, trip schema.Trip, kind schema.AgentKind, legs []schema.Leg) *Agent {
	c := ctx.RuntimeConfig().All
	a := &Agent{
		ctx: ctx,
		m:   m,
		rt: schema.AgentRecord{
			ID:           trip.ID,
			Kind:         kind,
			Trip:         trip.ID,
			State:        schema.StateSpawning,
			Lane:         schema.NoID,
			S:            trip.Origin.S,
			Legs:         legs,
			ReservedTurn: schema.NoID,
			SpawnStep:    ctx.Clock().InternalStep,
			BlockedSince: schema.NoID,
			Route:        schema.NoID,
			StopIndex:    schema.NoID,
			Vehicle:      schema.NoID,
		},
	}
	generator := randengine.New(uint64(trip.ID), c.Control.SeedOffset)
	a.rt.SpeedRatio = generator.ClampedNorm(1, c.Vehicle.SpeedRatioStd, minSpeedRatio, maxSpeedRatio)
	a.rt.WalkSpeed = math.Max(minWalkSpeed, generator.ClampedNorm(c.Pedestrian.Speed, walkSpeedStd*c.Pedestrian.Speed, 0, 2*c.Pedestrian.Speed))
	switch kind {
	case schema.KindVehicle:
		a.rt.Length = c.Vehicle.Length
	case schema.KindPedestrian:
		a.rt.Length = c.Pedestrian.Length
	default:
		log.Panicf("newAgent: bad kind %v", kind)
	}
	a.init()
	a.startLeg(0)
	return a
}

// newTransitAgent 创建公交车，从首站的行车道位置出发
func newTransitAgent(ctx entity.ITaskContext, m *AgentManager, id int32, line entity.ITransitLine) *Agent {
	c := ctx.RuntimeConfig().All
	first := line.Stops()[0]
	a := &Agent{
		ctx: ctx,
		m:   m,
		rt: schema.AgentRecord{
			ID:           id,
			Kind:         schema.KindTransit,
			Trip:         schema.NoID,
			State:        schema.StateSpawning,
			Lane:         schema.NoID,
			S:            first.S,
			Length:       c.Transit.VehicleLength,
			Path:         line.Path(),
			SpeedRatio:   1,
			ReservedTurn: schema.NoID,
			SpawnStep:    ctx.Clock().InternalStep,
			BlockedSince: schema.NoID,
			Route:        line.ID(),
			StopIndex:    0,
			Manifest:     []int32{},
			Capacity:     line.Capacity(),
			Vehicle:      schema.NoID,
		},
	}
	a.init()
	return a
}

// restoreAgent 从运行时记录恢复智能体
func restoreAgent(ctx entity.ITaskContext, m *AgentManager, r schema.AgentRecord) *Agent {
	a := &Agent{ctx: ctx, m: m, rt: r}
	a.rt.Path = slices.Clone(r.Path)
	a.rt.Legs = slices.Clone(r.Legs)
	a.rt.Manifest = slices.Clone(r.Manifest)
	a.init()
	a.node.S = r.S
	return a
}

// init 建立链表节点与运动学参数
func (a *Agent) init() {
	c := a.ctx.RuntimeConfig().All
	a.node = &entity.AgentNode{S: a.rt.S, Value: a}
	a.model = newModel(c.Vehicle)
	a.maxV = c.Vehicle.MaxSpeed
	if a.rt.Kind == schema.KindTransit {
		a.maxV = c.Transit.MaxSpeed
	}
}

// startLeg 开始第i个出行段
func (a *Agent) startLeg(i int32) {
	a.rt.LegIndex = i
	leg := a.rt.Legs[i]
	a.rt.Path = leg.Path
	a.rt.PathIndex = 0
	switch leg.Kind {
	case schema.LegWalk, schema.LegDrive:
		a.rt.S = leg.From.S
		a.rt.Route = schema.NoID
	case schema.LegWait, schema.LegRide:
		a.rt.Route = leg.Route
	}
}

func (a *Agent) leg() schema.Leg {
	return a.rt.Legs[a.rt.LegIndex]
}

func (a *Agent) ID() int32 {
	return a.rt.ID
}

func (a *Agent) V() float64 {
	return a.rt.V
}

func (a *Agent) Length() float64 {
	return a.rt.Length
}

func (a *Agent) Kind() schema.AgentKind {
	return a.rt.Kind
}

func (a *Agent) State() schema.AgentState {
	return a.rt.State
}

func (a *Agent) Lane() int32 {
	return a.rt.Lane
}

func (a *Agent) S() float64 {
	return a.rt.S
}

func (a *Agent) Route() int32 {
	return a.rt.Route
}

// AlightStop 乘客的下车站点
func (a *Agent) AlightStop() int32 {
	if a.rt.State != schema.StateOnBoard {
		return schema.NoID
	}
	return a.leg().AlightStop
}

// Record 运行时数据的副本
func (a *Agent) Record() schema.AgentRecord {
	r := a.rt
	r.Path = slices.Clone(a.rt.Path)
	r.Legs = slices.Clone(a.rt.Legs)
	r.Manifest = slices.Clone(a.rt.Manifest)
	return r
}

// view 查询接口使用的摘要
func (a *Agent) view() schema.AgentView {
	return schema.AgentView{
		ID:    a.rt.ID,
		Kind:  a.rt.Kind,
		State: a.rt.State,
		Lane:  a.rt.Lane,
		S:     a.rt.S,
		V:     a.rt.V,
	}
}

func (a *Agent) String() string {
	return fmt.Sprintf("Agent{id=%d, kind=%s, state=%s, lane=%d, s=%.3f, v=%.3f}",
		a.rt.ID, a.rt.Kind, a.rt.State, a.rt.Lane, a.rt.S, a.rt.V)
}

// event 以本智能体为主体的事件，引用取当前车道
func (a *Agent) event(kind schema.EventKind) schema.Event {
	return schema.Event{
		Kind:    kind,
		Agent:   a.rt.ID,
		Trip:    a.rt.Trip,
		Lane:    a.rt.Lane,
		Stop:    schema.NoID,
		Vehicle: schema.NoID,
	}
}

// lane 当前所在车道
func (a *Agent) lane() entity.ILane {
	return a.ctx.LaneManager().Get(a.rt.Lane)
}

// pathLane 路径中第i个车道
func (a *Agent) pathLane(i int32) entity.ILane {
	return a.ctx.LaneManager().Get(a.rt.Path[i])
}

// isLastLane 是否在路径的最后一个车道上
func (a *Agent) isLastLane() bool {
	return int(a.rt.PathIndex) == len(a.rt.Path)-1
}

// admit 进入车道
func (a *Agent) admit(l entity.ILane, s float64, reserved bool) error {
	if err := l.Admit(a.node, s, reserved); err != nil {
		return err
	}
	a.rt.Lane = l.ID()
	a.rt.S = a.node.S
	return nil
}

// leave 离开当前车道
func (a *Agent) leave() {
	if a.node.Parent() != nil {
		a.lane().Remove(a.node)
	}
	a.rt.Lane = schema.NoID
}

// violation 以本智能体为主体的不变量错误
func (a *Agent) violation(format string, args ...any) *entity.ViolationError {
	junction := schema.NoID
	if a.rt.Lane != schema.NoID {
		junction = a.lane().Intersection()
	}
	return entity.NewViolation(a.ctx.Clock().InternalStep, a.rt.ID, a.rt.Lane, junction, format, args...).
		WithRecord(a.Record())
}

// Board 乘客登上公交车
func (a *Agent) Board(vehicle entity.IAgent) {
	if a.rt.State != schema.StateWaitingForTransit {
		log.Panicf("%v boards %v while not waiting", a, vehicle)
	}
	a.startLeg(a.rt.LegIndex + 1)
	a.rt.State = schema.StateOnBoard
	a.rt.Vehicle = vehicle.ID()
	a.rt.V = vehicle.V()
}

// Alight 乘客下车，下一步在站点人行道一侧开始步行
func (a *Agent) Alight(stop schema.Stop) error {
	if a.rt.State != schema.StateOnBoard {
		return fmt.Errorf("%v alights at stop %d while not on board", a, stop.ID)
	}
	if a.leg().AlightStop != stop.ID {
		return fmt.Errorf("%v alights at stop %d, expects %d", a, stop.ID, a.leg().AlightStop)
	}
	a.startLeg(a.rt.LegIndex + 1)
	a.rt.State = schema.StateAlighting
	a.rt.Vehicle = schema.NoID
	a.rt.V = 0
	a.rt.S = stop.WalkS
	return nil
}

// update 更新阶段，按状态分派
// 返回：不变量错误
func (a *Agent) update(dt float64) error {
	switch a.rt.State {
	case schema.StateSpawning:
		return a.spawn()
	case schema.StateTraveling, schema.StateAtIntersection:
		if a.rt.Kind == schema.KindPedestrian {
			return a.walk(dt)
		}
		return a.drive(dt)
	case schema.StateParking:
		if a.rt.ParkingLeft--; a.rt.ParkingLeft <= 0 {
			a.m.finish(a)
		}
	case schema.StateDwelling:
		return a.dwell()
	case schema.StateWaitingForTransit, schema.StateOnBoard:
		// 由公交车驱动
	case schema.StateAlighting:
		a.startWalk()
	case schema.StateDespawned:
	default:
		log.Panicf("unknown agent %d state %v when update", a.rt.ID, a.rt.State)
	}
	return nil
}

// spawn 在起点尝试进入车道，失败时下一步重试
func (a *Agent) spawn() error {
	var l entity.ILane
	var s float64
	if a.rt.Kind == schema.KindTransit {
		line, err := a.ctx.TransitManager().Line(a.rt.Route)
		if err != nil {
			log.Panic(err)
		}
		first := line.Stops()[0]
		l, s = a.ctx.LaneManager().Get(first.Lane), first.S
	} else {
		l, s = a.pathLane(0), a.leg().From.S
	}
	if err := a.admit(l, s, false); err != nil {
		if errors.Is(err, entity.ErrLaneFull) {
			log.Debugf("%v spawn at lane %d s=%.2f: %v", a, l.ID(), s, err)
			return nil
		}
		return a.violation("spawn at lane %d: %v", l.ID(), err)
	}
	a.rt.V = 0
	a.rt.PathIndex = 0
	a.m.emit(a.event(schema.EventSpawn))
	if a.rt.Kind == schema.KindTransit {
		return a.arriveStop(0)
	}
	a.rt.State = schema.StateTraveling
	return nil
}

// startWalk 下车后在站点人行道位置开始下一段步行
func (a *Agent) startWalk() {
	leg := a.leg()
	if err := a.admit(a.pathLane(0), leg.From.S, false); err != nil {
		log.Panicf("%v start walking: %v", a, err)
	}
	a.rt.State = schema.StateTraveling
}
