package entity

import (
	"github.com/tsinghua-fib-lab/microsim/schema"
)

// Manager依赖倒置

// entity/lane/manager.go的依赖倒置
type ILaneManager interface {
	Init(network schema.Network) // 初始化

	// 输入Lane ID，查找Lane，如果不存在则panic
	Get(id int32) ILane
	// 输入Lane ID，查找Lane，如果不存在则返回error
	GetOrError(id int32) (ILane, error)
	// 按更新顺序排列的全部车道：先路口内转向，后道路车道，各自按ID升序
	Ordered() []ILane

	Prepare()     // 准备阶段：行人链表重排
	Check() error // 检查阶段：有序、不重叠、不超容量
	Records() []schema.LaneRecord
}

// entity/junction/manager.go的依赖倒置
type IJunctionManager interface {
	Init(network schema.Network, laneManager ILaneManager) // 初始化

	// 输入Junction ID，查找Junction，如果不存在则panic
	Get(id int32) IJunction
	// 输入Junction ID，查找Junction，如果不存在则返回error
	GetOrError(id int32) (IJunction, error)

	Update()      // 更新阶段：推进信号灯相位
	Check() error // 检查阶段：冲突预约互斥
	Records() []schema.IntersectionRecord
}

// entity/agent/manager.go的依赖倒置
type IAgentManager interface {
	// 输入Agent ID，查找Agent，如果不存在则panic
	Get(id int32) IAgent
	// 输入Agent ID，查找Agent，如果不存在则返回error
	GetOrError(id int32) (IAgent, error)

	// 生成公交车，返回公交车ID
	SpawnTransit(route int32, departure int32) int32
}

// entity/transit/manager.go的依赖倒置
type ITransitManager interface {
	// 获取公交线路
	Line(route int32) (ITransitLine, error)
	// 获取公交站
	Stop(id int32) (schema.Stop, error)

	// 乘客开始在站点等车
	Wait(stopID int32, passenger IAgent)
	// 乘客离开站点队列（取消）
	Leave(stopID int32, passengerID int32)
	// 按到站顺序取出等待该线路的乘客，至多n个
	Board(stopID int32, route int32, n int) []int32
}

// 公交线路
type ITransitLine interface {
	ID() int32
	Capacity() int32
	Path() []int32             // 公交车行驶路径
	Stops() []schema.Stop      // 有序站点
	StopPathIndex(i int) int32 // 第i个站点所在车道在路径中的下标
}
