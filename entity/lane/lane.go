package lane

import (
	"fmt"
	"math"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/schema"
)

// 人行道与人行横道不限容量
const unlimited = math.MaxInt32

// Lane 车道实体
// 功能：表示路网中的车道或路口内的转向，维护车道上车辆/行人的有序占用记录并执行容量与间距约束
type Lane struct {
	ctx entity.ITaskContext

	id       int32
	typ      schema.LaneType
	length   float64
	maxV     float64
	capacity int32

	turn           *schema.Turn   // 路口内转向，道路车道为nil
	initSuccessors []int32        // 初始化临时变量
	successors     []entity.ILane // 后继车道（按ID升序）

	vehicles    *entity.AgentList // 车辆链表，S升序
	pedestrians laneList          // 行人链表
	reserved    int32             // 已被路口预约、尚未进入的容量

	light entity.LightState // 车道信号灯状态
}

// newLane 根据道路车道数据创建Lane
// 说明：容量为0时按 长度/(车长+最小车距) 计算，至少为1
func newLane(ctx entity.ITaskContext, base schema.Lane) *Lane {
	l := &Lane{
		ctx:      ctx,
		id:       base.ID,
		typ:      base.Type,
		length:   base.Length,
		maxV:     base.MaxSpeed,
		capacity: base.Capacity,
		light:    entity.LightGreen,
	}
	l.initLists()
	return l
}

// newTurnLane 根据路口转向数据创建Lane
func newTurnLane(ctx entity.ITaskContext, base schema.Turn) *Lane {
	typ := schema.LaneTypeDriving
	if base.Type.IsWalking() {
		typ = schema.LaneTypeWalking
	}
	turn := base
	l := &Lane{
		ctx:            ctx,
		id:             base.ID,
		typ:            typ,
		length:         base.Length,
		maxV:           base.MaxSpeed,
		turn:           &turn,
		initSuccessors: []int32{base.To},
		light:          entity.LightGreen,
	}
	l.initLists()
	return l
}

func (l *Lane) initLists() {
	switch l.typ {
	case schema.LaneTypeDriving:
		l.vehicles = &entity.AgentList{ID: fmt.Sprintf("lane %d vehicles", l.id)}
		if l.capacity <= 0 {
			c := l.ctx.RuntimeConfig().All.Vehicle
			l.capacity = max(1, int32(math.Floor(l.length/(c.Length+c.MinGap))))
		}
	case schema.LaneTypeWalking:
		l.pedestrians = newLaneList(fmt.Sprintf("lane %d pedestrians", l.id))
		l.capacity = unlimited
	default:
		log.Panicf("bad type %v for lane %d", l.typ, l.id)
	}
}

// initWithManager 在所有Lane创建完成后建立连接关系
// 说明：转向的后继为其去向车道，转向限速缺省时取来源与去向车道限速的较小值
func (l *Lane) initWithManager(m *LaneManager) {
	l.successors = lo.Map(l.initSuccessors, func(id int32, _ int) entity.ILane {
		return m.Get(id)
	})
	if l.turn != nil && l.maxV <= 0 {
		l.maxV = math.Min(m.Get(l.turn.From).MaxSpeed(), m.Get(l.turn.To).MaxSpeed())
	}
}

// prepare 准备阶段，重排行人链表
func (l *Lane) prepare() {
	if l.typ == schema.LaneTypeWalking {
		l.pedestrians.prepare()
	}
}

func (l *Lane) String() string {
	if l.turn != nil {
		return fmt.Sprintf("Lane{id=%d, turn %d->%d @%d}", l.id, l.turn.From, l.turn.To, l.turn.Intersection)
	}
	return fmt.Sprintf("Lane{id=%d}", l.id)
}

func (l *Lane) ID() int32 {
	return l.id
}

func (l *Lane) Type() schema.LaneType {
	return l.typ
}

func (l *Lane) Length() float64 {
	return l.length
}

func (l *Lane) MaxSpeed() float64 {
	return l.maxV
}

func (l *Lane) Capacity() int32 {
	return l.capacity
}

func (l *Lane) IsTurn() bool {
	return l.turn != nil
}

func (l *Lane) Intersection() int32 {
	if l.turn == nil {
		return schema.NoID
	}
	return l.turn.Intersection
}

func (l *Lane) TurnType() schema.TurnType {
	if l.turn == nil {
		return ""
	}
	return l.turn.Type
}

func (l *Lane) Successors() []entity.ILane {
	return l.successors
}

func (l *Lane) Light() entity.LightState {
	return l.light
}

func (l *Lane) SetLight(s entity.LightState) {
	l.light = s
}

func (l *Lane) Vehicles() *entity.AgentList {
	return l.vehicles
}

func (l *Lane) Pedestrians() *entity.AgentList {
	return l.pedestrians.list
}

// occupancy 占用数：车辆数与预留数之和
func (l *Lane) occupancy() int32 {
	if l.vehicles == nil {
		return 0
	}
	return int32(l.vehicles.Len()) + l.reserved
}

// HasCapacity 是否还能容纳一辆车
func (l *Lane) HasCapacity() bool {
	return l.typ == schema.LaneTypeWalking || l.occupancy() < l.capacity
}

// Reserve 预留一个容量，由路口在批准转向时调用
// 说明：步行车道不限容量，不记录预留，行人可以从转向的任意一端进出
func (l *Lane) Reserve() {
	if l.typ == schema.LaneTypeWalking {
		return
	}
	l.reserved++
}

// Unreserve 归还一个尚未消耗的预留容量
func (l *Lane) Unreserve() {
	if l.typ == schema.LaneTypeWalking {
		return
	}
	if l.reserved <= 0 {
		log.Panicf("unreserve lane %d with no reservation", l.id)
	}
	l.reserved--
}

func (l *Lane) Reserved() int32 {
	return l.reserved
}

// CanAdmit 检查智能体能否在s处进入车道
// 功能：检查车道类型、容量以及与前后车辆的间距，不修改任何状态
// 参数：node-智能体节点（不能在任何链表中），s-进入位置，reserved-是否使用自己已预留的容量
// 返回：容量或间距不足时返回ErrLaneFull
// 算法说明：
// 1. 与前车：前车车尾与s之间至少保持最小车距；s前方没有车辆时，后继车道最后方车辆的车尾可能仍在本车道上
// 2. 与后车：本车车尾与后车车头之间至少保持 最小车距+后车以最大减速度的刹车距离
func (l *Lane) CanAdmit(node *entity.AgentNode, s float64, reserved bool) error {
	if node.Parent() != nil {
		return fmt.Errorf("admit %v to lane %d: node is still in %v", node.Value, l.id, node.Parent())
	}
	if s < -entity.EPS || s > l.length+entity.EPS {
		return fmt.Errorf("admit %v to lane %d: position %v out of [0, %v]", node.Value, l.id, s, l.length)
	}
	isPedestrian := node.Value.Kind() == schema.KindPedestrian
	if isPedestrian != (l.typ == schema.LaneTypeWalking) {
		return fmt.Errorf("admit %v to %v lane %d", node.Value.Kind(), l.typ, l.id)
	}
	if isPedestrian {
		return nil
	}
	occupied := l.occupancy()
	if reserved {
		occupied--
	}
	if occupied >= l.capacity {
		return entity.ErrLaneFull
	}
	c := l.ctx.RuntimeConfig().All.Vehicle
	behind, ahead := l.vehicles.FindPosition(s)
	if ahead != nil {
		if ahead.Back()-s < c.MinGap-entity.EPS {
			return entity.ErrLaneFull
		}
	} else {
		for _, next := range l.successors {
			if next.Type() != schema.LaneTypeDriving {
				continue
			}
			if first := next.Vehicles().First(); first != nil && l.length+first.Back()-s < c.MinGap-entity.EPS {
				return entity.ErrLaneFull
			}
		}
	}
	if behind != nil {
		brake := behind.V() * behind.V() / (2 * -c.MaxBrakingA)
		if s-node.L()-behind.S < c.MinGap+brake-entity.EPS {
			return entity.ErrLaneFull
		}
	}
	return nil
}

// Admit 智能体在s处进入车道
// 参数：reserved-为true时消耗一个预留容量（由路口预约产生）
func (l *Lane) Admit(node *entity.AgentNode, s float64, reserved bool) error {
	if err := l.CanAdmit(node, s, reserved); err != nil {
		return err
	}
	node.S = math.Max(0, math.Min(s, l.length))
	if reserved {
		l.Unreserve()
	}
	if l.typ == schema.LaneTypeWalking {
		l.pedestrians.add(node)
	} else {
		l.vehicles.InsertSorted(node)
	}
	return nil
}

// Advance 沿车道向前移动
// 功能：将移动距离截断到车道终点以及 前车车尾-最小车距，不会后退
// 返回：新的位置
// 说明：行人之间允许超越，只截断到车道终点
func (l *Lane) Advance(node *entity.AgentNode, proposed float64) float64 {
	if node.Parent() == nil || (node.Parent() != l.vehicles && node.Parent() != l.pedestrians.list) {
		log.Panicf("advance node %v on wrong lane %d", node, l.id)
	}
	newS := math.Min(node.S+math.Max(proposed, 0), l.length)
	if node.Parent() == l.vehicles {
		if ahead := node.Next(); ahead != nil {
			newS = math.Min(newS, ahead.Back()-l.ctx.RuntimeConfig().All.Vehicle.MinGap)
		}
	}
	node.S = math.Max(newS, node.S)
	return node.S
}

// Retreat 行人逆着车道方向移动，截断到车道起点
func (l *Lane) Retreat(node *entity.AgentNode, proposed float64) float64 {
	if l.typ != schema.LaneTypeWalking || node.Parent() != l.pedestrians.list {
		log.Panicf("retreat node %v on lane %d", node, l.id)
	}
	node.S = math.Max(node.S-math.Max(proposed, 0), 0)
	return node.S
}

// Remove 智能体离开车道，其余智能体的顺序保持不变
func (l *Lane) Remove(node *entity.AgentNode) {
	if l.typ == schema.LaneTypeWalking {
		l.pedestrians.remove(node)
	} else {
		if node.Parent() != l.vehicles {
			log.Panicf("remove node %v (parent=%v) from wrong lane %d", node, node.Parent(), l.id)
		}
		l.vehicles.Remove(node)
	}
}

// check 检查车道不变量
// 功能：车辆按S严格递增、占用区间不重叠、车辆数不超过容量
func (l *Lane) check(step int32) error {
	if l.vehicles == nil {
		return nil
	}
	if n := int32(l.vehicles.Len()); n > l.capacity {
		return entity.NewViolation(step, schema.NoID, l.id, l.Intersection(),
			"capacity exceeded: %d vehicles > capacity %d", n, l.capacity,
		).WithRecord(l.vehicles.Keys())
	}
	for node := l.vehicles.First(); node != nil; node = node.Next() {
		if math.IsNaN(node.S) || node.S < -entity.EPS || node.S > l.length+entity.EPS {
			return entity.NewViolation(step, node.Value.ID(), l.id, l.Intersection(),
				"position %v out of lane [0, %v]", node.S, l.length,
			).WithRecord(node.Value.Record())
		}
		prev := node.Prev()
		if prev == nil {
			continue
		}
		if node.S <= prev.S {
			return entity.NewViolation(step, node.Value.ID(), l.id, l.Intersection(),
				"order broken: %v at %v is not ahead of %v at %v", node.Value.ID(), node.S, prev.Value.ID(), prev.S,
			).WithRecord(node.Value.Record())
		}
		if node.Back() < prev.S-entity.EPS {
			return entity.NewViolation(step, node.Value.ID(), l.id, l.Intersection(),
				"overlap: [%v, %v] and %v at %v", node.Back(), node.S, prev.Value.ID(), prev.S,
			).WithRecord(node.Value.Record())
		}
	}
	return nil
}

// record 产生车道占用记录
func (l *Lane) record() schema.LaneRecord {
	r := schema.LaneRecord{ID: l.id, Reserved: l.reserved}
	if l.vehicles != nil {
		r.Vehicles = lo.Map(l.vehicles.Values(), func(a entity.IAgent, _ int) int32 { return a.ID() })
	}
	if l.pedestrians.list != nil {
		r.Pedestrians = lo.Map(l.pedestrians.list.Values(), func(a entity.IAgent, _ int) int32 { return a.ID() })
	}
	return r
}

// restore 从占用记录恢复链表与预留数，原有占用被丢弃
// 参数：nodeOf-根据智能体ID获取节点，节点的S已经从智能体记录恢复
func (l *Lane) restore(r schema.LaneRecord, nodeOf func(id int32) (*entity.AgentNode, error)) error {
	l.initLists()
	l.reserved = r.Reserved
	push := func(list *entity.AgentList, ids []int32) error {
		if list == nil {
			if len(ids) > 0 {
				return fmt.Errorf("lane %d: unexpected occupants %v", l.id, ids)
			}
			return nil
		}
		for _, id := range ids {
			node, err := nodeOf(id)
			if err != nil {
				return fmt.Errorf("lane %d: %w", l.id, err)
			}
			list.PushBack(node)
		}
		return nil
	}
	if err := push(l.vehicles, r.Vehicles); err != nil {
		return err
	}
	return push(l.pedestrians.list, r.Pedestrians)
}
