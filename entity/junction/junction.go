package junction

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/microsim/schema"
)

// request 等待中的转向申请
type request = schema.RequestRecord

// reservation 已批准的转向预约
type reservation = schema.ReservationRecord

// Junction 路口实体
// 功能：按控制方式（无控制/停车让行/信号灯）仲裁路口内转向的通行权，保证冲突转向的预约互斥
type Junction struct {
	ctx entity.ITaskContext

	id           int32
	control      schema.ControlType
	turns        map[int32]entity.ILane // 转向ID -> 转向车道
	turnList     []entity.ILane         // 转向车道，按ID升序
	conflicts    map[[2]int32]bool      // 冲突转向对（对称）
	trafficLight ITrafficLight          // 信号灯模块，仅信号控制路口有

	reservations []*reservation // 按批准顺序
	waiting      []*request     // 按首次申请顺序
	seq          int64          // 申请序号
}

// newJunction 创建并初始化一个新的Junction实例
// 参数：ctx-任务上下文，base-路口数据，turns-路口内的转向车道（按ID升序），conflicts-冲突转向对
// 返回：初始化完成的Junction实例或错误（信号灯相位不合法）
func newJunction(
	ctx entity.ITaskContext,
	base schema.Intersection,
	turns []entity.ILane,
	conflicts map[[2]int32]bool,
) (*Junction, error) {
	j := &Junction{
		ctx:          ctx,
		id:           base.ID,
		control:      base.Control,
		turns:        lo.SliceToMap(turns, func(l entity.ILane) (int32, entity.ILane) { return l.ID(), l }),
		turnList:     turns,
		conflicts:    conflicts,
		reservations: make([]*reservation, 0),
		waiting:      make([]*request, 0),
	}
	if j.control == schema.ControlSignal {
		tl, err := trafficlight.NewLocalTrafficLight(j.id, turns, base.Phases, base.Offset, ctx.Clock().T)
		if err != nil {
			return nil, err
		}
		j.trafficLight = tl
	} else {
		for _, l := range turns {
			l.SetLight(entity.LightGreen)
		}
	}
	return j, nil
}

// update 更新阶段，推进信号灯相位
// 参数：dt-时间步长
func (j *Junction) update(dt float64) {
	if j.trafficLight != nil {
		j.trafficLight.Update(dt)
	}
}

// ID 获取Junction的唯一标识符，如果Junction为nil则返回-1
func (j *Junction) ID() int32 {
	if j == nil {
		return -1
	}
	return j.id
}

func (j *Junction) Control() schema.ControlType {
	return j.control
}

func (j *Junction) conflict(a, b int32) bool {
	return j.conflicts[[2]int32{a, b}]
}

func (j *Junction) aged(r *request) bool {
	return j.ctx.Clock().InternalStep-r.ArrivalStep >= j.ctx.RuntimeConfig().C.StarvationTicks
}

// light 转向当前的灯色，非信号控制路口始终为绿灯
func (j *Junction) light(turnID int32) entity.LightState {
	if j.trafficLight == nil {
		return entity.LightGreen
	}
	return j.trafficLight.State(turnID)
}

func (j *Junction) permitted(turnID int32) bool {
	return j.light(turnID) != entity.LightRed
}

// outranks 等待中的申请a是否优先于b
// 算法说明：
// 1. 信号控制时，当前相位不允许通行的申请不参与排序
// 2. 信号控制时，让行转向的申请让于保护转向申请，除非其已等待足够久
// 3. 等待超过starvation_ticks的申请优先（老化优先）
// 4. 最后按首次申请顺序
func (j *Junction) outranks(a, b *request) bool {
	if j.control == schema.ControlSignal {
		if !j.permitted(a.Turn) {
			return false
		}
		la, lb := j.light(a.Turn), j.light(b.Turn)
		if lb == entity.LightYield && la == entity.LightGreen && !j.aged(b) {
			return true
		}
		if la == entity.LightYield && lb == entity.LightGreen && !j.aged(a) {
			return false
		}
	}
	if agedA, agedB := j.aged(a), j.aged(b); agedA != agedB {
		return agedA
	}
	return a.Seq < b.Seq
}

func (j *Junction) findReservation(agentID int32) (int, *reservation) {
	for i, r := range j.reservations {
		if r.Agent == agentID {
			return i, r
		}
	}
	return -1, nil
}

func (j *Junction) findRequest(agentID int32) (int, *request) {
	for i, r := range j.waiting {
		if r.Agent == agentID {
			return i, r
		}
	}
	return -1, nil
}

// RequestTurn 申请通过转向
// 功能：满足以下全部条件时批准预约并预留转向车道与去向车道各一个容量，否则保持排队
// 1. 转向被允许：信号灯非红灯；停车让行路口的车辆必须已完全停止
// 2. 与所有已批准的预约不冲突
// 3. 没有更优先且冲突的等待申请
// 4. 转向车道与去向车道都有容量
// 参数：agent-申请者，turn-转向车道
// 返回：批准返回nil，拒绝返回ErrTurnDenied
func (j *Junction) RequestTurn(agent entity.IAgent, turn entity.ILane) error {
	if _, ok := j.turns[turn.ID()]; !ok {
		return fmt.Errorf("turn %d is not in junction %d", turn.ID(), j.id)
	}
	if _, r := j.findReservation(agent.ID()); r != nil {
		if r.Turn == turn.ID() {
			return nil
		}
		return fmt.Errorf("agent %d already holds turn %d in junction %d", agent.ID(), r.Turn, j.id)
	}
	if j.control == schema.ControlStopSign && !turn.TurnType().IsWalking() && agent.V() > entity.EPS {
		// 未停稳，不进入排队
		return entity.ErrTurnDenied
	}
	step := j.ctx.Clock().InternalStep
	idx, req := j.findRequest(agent.ID())
	if req == nil {
		req = &request{Agent: agent.ID(), Turn: turn.ID(), ArrivalStep: step, Seq: j.seq}
		j.seq++
		j.waiting = append(j.waiting, req)
		idx = len(j.waiting) - 1
	} else {
		req.Turn = turn.ID()
	}
	if !j.permitted(req.Turn) {
		return entity.ErrTurnDenied
	}
	for _, r := range j.reservations {
		if j.conflict(r.Turn, req.Turn) {
			return entity.ErrTurnDenied
		}
	}
	for _, other := range j.waiting {
		if other != req && j.conflict(other.Turn, req.Turn) && j.outranks(other, req) {
			return entity.ErrTurnDenied
		}
	}
	dest := turn.Successors()[0]
	if !turn.HasCapacity() || !dest.HasCapacity() {
		return entity.ErrTurnDenied
	}
	// 批准
	turn.Reserve()
	dest.Reserve()
	j.reservations = append(j.reservations, &reservation{
		Agent:       agent.ID(),
		Turn:        turn.ID(),
		GrantedStep: step,
		TurnSlot:    true,
		DestSlot:    true,
	})
	j.waiting = append(j.waiting[:idx], j.waiting[idx+1:]...)
	log.Debugf("junction %d: grant turn %d to agent %d at step %d", j.id, turn.ID(), agent.ID(), step)
	return nil
}

// HasReservation 智能体是否持有本路口的预约
func (j *Junction) HasReservation(agentID int32) bool {
	_, r := j.findReservation(agentID)
	return r != nil
}

// Enter 智能体进入转向车道，转向车道的预留已被消耗
func (j *Junction) Enter(agentID int32) {
	_, r := j.findReservation(agentID)
	if r == nil {
		log.Panicf("junction %d: agent %d enters without reservation", j.id, agentID)
	}
	r.TurnSlot = false
}

// Release 智能体离开转向车道进入去向车道，去向车道的预留已被消耗，预约结束
func (j *Junction) Release(agentID int32) {
	i, r := j.findReservation(agentID)
	if r == nil {
		log.Panicf("junction %d: agent %d releases without reservation", j.id, agentID)
	}
	j.reservations = append(j.reservations[:i], j.reservations[i+1:]...)
}

// Cancel 取消智能体的申请与预约，归还未消耗的预留容量
func (j *Junction) Cancel(agentID int32) {
	if i, req := j.findRequest(agentID); req != nil {
		j.waiting = append(j.waiting[:i], j.waiting[i+1:]...)
	}
	i, r := j.findReservation(agentID)
	if r == nil {
		return
	}
	turn := j.turns[r.Turn]
	if r.TurnSlot {
		turn.Unreserve()
	}
	if r.DestSlot {
		turn.Successors()[0].Unreserve()
	}
	j.reservations = append(j.reservations[:i], j.reservations[i+1:]...)
}

// check 检查冲突转向的预约互斥
func (j *Junction) check(step int32) error {
	for x, a := range j.reservations {
		for _, b := range j.reservations[x+1:] {
			if j.conflict(a.Turn, b.Turn) {
				return entity.NewViolation(step, b.Agent, b.Turn, j.id,
					"conflicting reservations: agent %d on turn %d and agent %d on turn %d",
					a.Agent, a.Turn, b.Agent, b.Turn,
				).WithRecord(j.record())
			}
		}
	}
	return nil
}

// record 产生路口运行时记录（深拷贝）
func (j *Junction) record() schema.IntersectionRecord {
	r := schema.IntersectionRecord{
		ID:           j.id,
		Control:      j.control,
		Reservations: lo.Map(j.reservations, func(r *reservation, _ int) schema.ReservationRecord { return *r }),
		Waiting:      lo.Map(j.waiting, func(r *request, _ int) schema.RequestRecord { return *r }),
		Seq:          j.seq,
	}
	if j.trafficLight != nil {
		r.PhaseIndex = j.trafficLight.Step()
		r.PhaseRemaining = j.trafficLight.RemainingTime()
	}
	return r
}

// restore 从记录恢复路口运行时状态
func (j *Junction) restore(r schema.IntersectionRecord) {
	j.reservations = lo.Map(r.Reservations, func(x schema.ReservationRecord, _ int) *reservation { return &x })
	j.waiting = lo.Map(r.Waiting, func(x schema.RequestRecord, _ int) *request { return &x })
	j.seq = r.Seq
	if j.trafficLight != nil {
		j.trafficLight.SetPhase(r.PhaseIndex, r.PhaseRemaining)
	}
}
