package task

import (
	"fmt"
	"sort"

	"github.com/jinzhu/copier"
	"github.com/tsinghua-fib-lab/microsim/schema"
)

// snapshot 产生当前的完整状态，调用方持有锁
func (ctx *Context) snapshot() *schema.Snapshot {
	return &schema.Snapshot{
		Step:          ctx.clock.InternalStep,
		T:             ctx.clock.T,
		Trips:         ctx.agentManager.TripRecords(),
		Agents:        ctx.agentManager.Records(),
		Lanes:         ctx.laneManager.Records(),
		Intersections: ctx.junctionManager.Records(),
		TransitRoutes: ctx.transitManager.Records(),
		Stops:         ctx.transitManager.StopRecords(),
		NextTransitID: ctx.agentManager.NextTransitID(),
		Statistics:    ctx.agentManager.Statistics(),
	}
}

// Save 保存当前的完整状态
func (ctx *Context) Save() (*schema.Snapshot, error) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	if !ctx.loaded {
		return nil, ErrNotLoaded
	}
	return ctx.snapshot(), nil
}

// Restore 从快照恢复
// 功能：把快照应用到已经用相同路网与场景加载的引擎上，之后继续推进与不中断的运行结果一致
// 说明：恢复失败时引擎进入失败状态，需要重新Load或Restore
// 算法说明：
// 1. 时钟回到快照步数
// 2. 恢复智能体与出行状态，再由智能体节点恢复车道占用
// 3. 恢复路口预约、排队与相位，恢复公交发车进度与候车队列
func (ctx *Context) Restore(snap *schema.Snapshot) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if !ctx.loaded {
		return ErrNotLoaded
	}
	if err := ctx.restore(snap); err != nil {
		ctx.failed = fmt.Errorf("restore from step %d: %w", snap.Step, err)
		return ctx.failed
	}
	ctx.failed = nil
	ctx.history = ctx.history[:0]
	ctx.record()
	log.Infof("restored from step %d", snap.Step)
	return nil
}

func (ctx *Context) restore(snap *schema.Snapshot) error {
	ctx.clock.Set(snap.Step)
	if err := ctx.agentManager.Restore(snap.Agents, snap.Trips, snap.Statistics, snap.NextTransitID); err != nil {
		return err
	}
	if err := ctx.laneManager.Restore(snap.Lanes, ctx.agentManager.NodeOf); err != nil {
		return err
	}
	if err := ctx.junctionManager.Restore(snap.Intersections); err != nil {
		return err
	}
	return ctx.transitManager.Restore(snap.TransitRoutes, snap.Stops)
}

// CancelTrip 取消出行：未出发的出行不再生成，进行中的出行立即结束并释放资源
func (ctx *Context) CancelTrip(id int32) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if !ctx.loaded {
		return ErrNotLoaded
	}
	return ctx.agentManager.CancelTrip(id)
}

// CancelAgent 移除在场的智能体，公交车上的乘客一并取消
func (ctx *Context) CancelAgent(id int32) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if !ctx.loaded {
		return ErrNotLoaded
	}
	return ctx.agentManager.CancelAgent(id)
}

// AgentsAt 获取指定步的全体智能体摘要
// 说明：历史帧保留control.history_ticks步，更早的步数返回ErrStepEvicted
func (ctx *Context) AgentsAt(step int32) ([]schema.AgentView, error) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	if !ctx.loaded {
		return nil, ErrNotLoaded
	}
	if step > ctx.clock.InternalStep {
		return nil, fmt.Errorf("step %d (now %d): %w", step, ctx.clock.InternalStep, ErrFutureStep)
	}
	i := sort.Search(len(ctx.history), func(i int) bool { return ctx.history[i].Step >= step })
	if i == len(ctx.history) || ctx.history[i].Step != step {
		return nil, fmt.Errorf("step %d: %w", step, ErrStepEvicted)
	}
	var views []schema.AgentView
	if err := copier.CopyWithOption(&views, ctx.history[i].Agents, copier.Option{DeepCopy: true}); err != nil {
		return nil, err
	}
	return views, nil
}

// AgentDetail 获取智能体的完整状态
func (ctx *Context) AgentDetail(id int32) (schema.AgentDetail, error) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	if !ctx.loaded {
		return schema.AgentDetail{}, ErrNotLoaded
	}
	return ctx.agentManager.Detail(id)
}

// TripStatus 获取出行状态
func (ctx *Context) TripStatus(id int32) (schema.TripRecord, error) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	if !ctx.loaded {
		return schema.TripRecord{}, ErrNotLoaded
	}
	return ctx.agentManager.TripStatus(id)
}

// IntersectionDetail 获取路口的相位、预约与排队
func (ctx *Context) IntersectionDetail(id int32) (schema.IntersectionRecord, error) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	if !ctx.loaded {
		return schema.IntersectionRecord{}, ErrNotLoaded
	}
	return ctx.junctionManager.Record(id)
}

// Statistics 全局统计
func (ctx *Context) Statistics() schema.Statistics {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ctx.agentManager.Statistics()
}

// Now 当前步数
func (ctx *Context) Now() int32 {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ctx.clock.InternalStep
}
