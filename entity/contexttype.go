package entity

import (
	"github.com/tsinghua-fib-lab/microsim/clock"
	"github.com/tsinghua-fib-lab/microsim/schema"
	"github.com/tsinghua-fib-lab/microsim/utils/config"
)

// 导航模块接口
type IRouter interface {
	// 单一方式的最短路径，返回车道ID序列与代价
	// 不可达时返回包装了ErrNoPathFound的错误
	Route(mode schema.TravelMode, from, to schema.Position) ([]int32, float64, error)
}

// 出行规划接口
type IPlanner interface {
	// 将出行拆分为若干出行段
	Plan(trip schema.Trip) ([]schema.Leg, error)
}

type ITaskContext interface {
	Clock() *clock.Clock
	LaneManager() ILaneManager
	JunctionManager() IJunctionManager
	AgentManager() IAgentManager
	TransitManager() ITransitManager
	RuntimeConfig() *config.RuntimeConfig
	Planner() IPlanner
}
