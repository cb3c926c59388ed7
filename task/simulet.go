package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/schema"
)

// prepare 准备阶段，每步执行一次
// 功能：在每个仿真步骤开始时进行准备工作
// 算法说明：
// 1. 更新时钟：增加内部步数并计算当前时间
// 2. 心跳日志：定期输出仿真时间
// 3. 车道：行人链表按位置重排
// 4. 智能体：应用上一步的增删，生成到点的出行与公交车，再应用本步的新增
func (ctx *Context) prepare() {
	ctx.clock.Tick()

	if ctx.clock.InternalStep%ctx.runtimeConfig.C.HeartbeatInterval == 0 {
		hour, minute, second := ctx.clock.GetHourMinuteSecond()
		log.Infof(
			"STEP: %d(%d:%d:%.2f)",
			ctx.clock.InternalStep,
			hour, minute, second,
		)
	}

	ctx.laneManager.Prepare()
	ctx.agentManager.Prepare()
	ctx.agentManager.SpawnDue(ctx.clock.T)
	ctx.transitManager.Prepare()
	ctx.agentManager.Prepare()
}

// update 更新阶段，每步执行一次
// 功能：推进信号灯相位，再按工作列表更新所有智能体
func (ctx *Context) update() error {
	ctx.junctionManager.Update()
	return ctx.agentManager.Update(ctx.clock.DT)
}

// check 检查阶段：车道有序不重叠不超容量，路口冲突预约互斥
func (ctx *Context) check() error {
	if err := ctx.laneManager.Check(); err != nil {
		return err
	}
	return ctx.junctionManager.Check()
}

// record 记录当前步的智能体状态，超出保留范围的旧帧被丢弃
func (ctx *Context) record() schema.Frame {
	frame := schema.Frame{
		Step:   ctx.clock.InternalStep,
		T:      ctx.clock.T,
		Agents: ctx.agentManager.Views(),
		Events: ctx.agentManager.DrainEvents(),
	}
	ctx.history = append(ctx.history, frame)
	if n := len(ctx.history) - ctx.maxHistory; n > 0 {
		ctx.history = append(ctx.history[:0], ctx.history[n:]...)
	}
	return frame
}

// step 推进一步
// 说明：不变量错误使引擎进入失败状态，此后的推进都返回同一个错误
func (ctx *Context) step() error {
	if !ctx.loaded {
		return ErrNotLoaded
	}
	if ctx.failed != nil {
		return ctx.failed
	}
	ctx.prepare()
	err := ctx.update()
	if err == nil {
		err = ctx.check()
	}
	if err != nil {
		ctx.failed = err
		var v *entity.ViolationError
		if errors.As(err, &v) {
			log.Errorf("engine failed: %s", v.Detail())
		} else {
			log.Errorf("engine failed: %v", err)
		}
		return err
	}
	frame := ctx.record()
	if ctx.trace != nil {
		if err := ctx.trace.Encode(frame); err != nil {
			return fmt.Errorf("write trace at step %d: %w", frame.Step, err)
		}
	}
	if every := ctx.runtimeConfig.All.Output.SaveEvery; ctx.store != nil && every > 0 && frame.Step%every == 0 {
		if err := ctx.store.Save(context.Background(), ctx.snapshot()); err != nil {
			return fmt.Errorf("save snapshot at step %d: %w", frame.Step, err)
		}
		log.Debugf("snapshot saved at step %d", frame.Step)
	}
	return nil
}

// Step 推进n步
// 返回：遇到的第一个错误，此时剩余的步数不再推进
func (ctx *Context) Step(n int) error {
	if n <= 0 {
		return fmt.Errorf("step count must be positive, got %d", n)
	}
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	for range n {
		if err := ctx.step(); err != nil {
			return err
		}
	}
	return nil
}

// Run 运行到control.step.total指定的结束步
// 说明：每步之间检查ctx，取消时返回ctx.Err()
func (ctx *Context) Run(c context.Context) error {
	log.Infof("engine start at step %d, end at step %d", ctx.clock.InternalStep, ctx.clock.END_STEP)
	for {
		ctx.mu.Lock()
		done := ctx.clock.Done()
		var err error
		if !done {
			err = ctx.step()
		}
		ctx.mu.Unlock()
		if err != nil {
			return err
		}
		if done {
			break
		}
		select {
		case <-c.Done():
			return c.Err()
		default:
		}
	}
	stats := ctx.Statistics()
	log.Infof("engine complete: %d completed, %d unreachable, %d cancelled trips",
		stats.CompletedTrips, stats.UnreachableTrips, stats.CancelledTrips)
	return nil
}
