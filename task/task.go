package task

import (
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/tsinghua-fib-lab/microsim/clock"
	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/entity/agent"
	"github.com/tsinghua-fib-lab/microsim/entity/agent/route"
	"github.com/tsinghua-fib-lab/microsim/entity/junction"
	"github.com/tsinghua-fib-lab/microsim/entity/lane"
	"github.com/tsinghua-fib-lab/microsim/entity/transit"
	"github.com/tsinghua-fib-lab/microsim/schema"
	"github.com/tsinghua-fib-lab/microsim/utils/config"
	"github.com/tsinghua-fib-lab/microsim/utils/input"
	"github.com/tsinghua-fib-lab/microsim/utils/store"
)

var (
	// 尚未加载路网与场景
	ErrNotLoaded = errors.New("network and scenario not loaded")
	// 查询的步数晚于当前步数
	ErrFutureStep = errors.New("step is in the future")
	// 查询的步数已超出历史保留范围
	ErrStepEvicted = errors.New("step is no longer in history")
)

// Context 仿真任务上下文
// 功能：包含一次仿真任务的所有变量和状态，实现entity.ITaskContext
// 说明：管理器在创建上下文时构造一次，Load与Restore在原对象上重新初始化，
// 因此注册到RPC服务的处理器始终有效；mu串行化控制接口与推进过程
type Context struct {
	mu sync.RWMutex

	// 时钟
	clock *clock.Clock
	// 运行时配置
	runtimeConfig *config.RuntimeConfig

	// Lane管理器
	laneManager *lane.LaneManager
	// Junction管理器
	junctionManager *junction.JunctionManager
	// Agent管理器
	agentManager *agent.AgentManager
	// 公交管理器
	transitManager *transit.TransitManager
	// 出行规划
	planner *route.Planner

	loaded bool
	// 不变量被破坏后的错误，此后所有推进都返回该错误
	failed error

	// 最近若干步的智能体状态，按步数升序
	history    []schema.Frame
	maxHistory int

	// 逐步轨迹输出（NDJSON）
	trace *json.Encoder
	// 快照存储
	store store.Store
}

// NewContext 创建新的仿真任务上下文
// 功能：根据配置创建时钟与各类管理器，此时尚未加载路网与场景
// 参数：c-配置对象，缺省值在此填充
// 返回：仿真任务上下文
func NewContext(c config.Config) *Context {
	ctx := &Context{
		runtimeConfig: config.NewRuntimeConfig(c),
	}
	ctx.clock = clock.New(ctx.runtimeConfig.C.Step)
	ctx.maxHistory = int(max(ctx.runtimeConfig.C.HistoryTicks, 0)) + 1

	// 新建各类模拟对象
	ctx.laneManager = lane.NewManager(ctx)
	ctx.junctionManager = junction.NewManager(ctx)
	ctx.agentManager = agent.NewManager(ctx)
	ctx.transitManager = transit.NewManager(ctx)
	return ctx
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) LaneManager() entity.ILaneManager {
	return ctx.laneManager
}

func (ctx *Context) JunctionManager() entity.IJunctionManager {
	return ctx.junctionManager
}

func (ctx *Context) AgentManager() entity.IAgentManager {
	return ctx.agentManager
}

func (ctx *Context) TransitManager() entity.ITransitManager {
	return ctx.transitManager
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

func (ctx *Context) Planner() entity.IPlanner {
	return ctx.planner
}

// SetTrace 设置逐步轨迹输出，每步写入一行JSON，w为nil时关闭输出
func (ctx *Context) SetTrace(w io.Writer) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if w == nil {
		ctx.trace = nil
		return
	}
	ctx.trace = json.NewEncoder(w)
}

// SetStore 设置周期性快照的存储，保存间隔由output.save_every指定
func (ctx *Context) SetStore(s store.Store) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.store = s
}

// Load 加载路网与场景
// 功能：校验输入后按依赖顺序初始化所有管理器，时钟回到起始步
// 参数：network-路网，scenario-场景
// 返回：输入不合法时返回*entity.ScenarioLoadError
// 算法说明：
// 1. 校验路网与场景，报告全部问题
// 2. 初始化车道，再初始化依赖车道的路口
// 3. 构造导航服务，计算公交线路路径，再构造出行规划器
// 4. 按出行构造时刻表
func (ctx *Context) Load(network schema.Network, scenario schema.Scenario) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	ctx.loaded = false
	if err := input.Validate(network, scenario); err != nil {
		return err
	}
	ctx.clock.Init()

	ctx.laneManager.Init(network) // 先完成lane的所有初始化
	ctx.junctionManager.Init(network, ctx.laneManager)

	router := route.NewRouter(network, ctx.runtimeConfig)
	if err := ctx.transitManager.Init(network.Stops, scenario.TransitRoutes, router); err != nil {
		return err
	}
	planner, err := route.NewPlanner(router, network.Stops, scenario.TransitRoutes, ctx.runtimeConfig)
	if err != nil {
		return err
	}
	ctx.planner = planner
	ctx.agentManager.Init(scenario.Trips)

	ctx.failed = nil
	ctx.history = ctx.history[:0]
	ctx.loaded = true
	ctx.record()
	log.Infof("loaded %d lanes, %d turns, %d intersections, %d trips, %d transit routes",
		len(network.Lanes), len(network.Turns), len(network.Intersections),
		len(scenario.Trips), len(scenario.TransitRoutes))
	return nil
}
