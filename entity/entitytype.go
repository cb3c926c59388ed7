package entity

import (
	"github.com/tsinghua-fib-lab/microsim/schema"
	"github.com/tsinghua-fib-lab/microsim/utils/container"
)

// 距离比较的容差
const EPS = 1e-6

// LightState 车道信号灯状态
type LightState int32

const (
	LightGreen LightState = iota // 通行
	LightYield                   // 让行通行
	LightRed                     // 禁止
)

func (s LightState) String() string {
	switch s {
	case LightGreen:
		return "green"
	case LightYield:
		return "yield"
	case LightRed:
		return "red"
	}
	return "unknown"
}

// entity/agent/agent.go的依赖倒置
type IAgent interface {
	ID() int32                // 获取智能体ID
	V() float64               // 获取速度
	Length() float64          // 获取占用长度
	Kind() schema.AgentKind   // 获取智能体类型
	State() schema.AgentState // 获取状态机状态
	Lane() int32              // 获取所在车道ID，不在车道上时为NoID
	S() float64               // 获取车道上的位置

	Record() schema.AgentRecord // 产生运行时数据的副本
	String() string

	// 公交相关，由公交车与公交站调用

	Board(vehicle IAgent)          // 乘客登车
	Alight(stop schema.Stop) error // 乘客下车，放置于站点人行道一侧
	AlightStop() int32             // 乘客的下车站点，不在乘车时为NoID
	Route() int32                  // 公交车线路或乘客等待的线路
}

// 车道上的智能体节点
type AgentNode = container.ListNode[IAgent]

// 车道上按S排序的智能体链表
type AgentList = container.List[IAgent]

// entity/lane/lane.go的依赖倒置
// 路口内的转向同样被实例化为车道
type ILane interface {
	String() string

	ID() int32                 // 获取车道ID
	Type() schema.LaneType     // 获取车道类型
	Length() float64           // 获取车道长度
	MaxSpeed() float64         // 获取车道限速
	Capacity() int32           // 获取车辆容量
	IsTurn() bool              // 是否为路口内的转向车道
	Intersection() int32       // 转向所属路口，道路车道为NoID
	TurnType() schema.TurnType // 转向类型，道路车道为空
	Successors() []ILane       // 后继车道，按ID升序
	Light() LightState         // 信号灯状态
	SetLight(s LightState)     // 设置信号灯状态

	Vehicles() *AgentList    // 车道上的车辆
	Pedestrians() *AgentList // 车道上的行人

	// 占用管理

	HasCapacity() bool                                        // 是否还能容纳一辆车（已预约的计入占用）
	CanAdmit(node *AgentNode, s float64, reserved bool) error // 检查能否在s处加入
	Admit(node *AgentNode, s float64, reserved bool) error    // 在s处加入，reserved表示消耗一个预约容量
	Advance(node *AgentNode, proposed float64) float64        // 向前移动，返回截断后的位置
	Retreat(node *AgentNode, proposed float64) float64        // 行人逆向移动，返回截断后的位置
	Remove(node *AgentNode)                                   // 离开车道
	Reserve()                                                 // 预留一个容量
	Unreserve()                                               // 归还一个预留容量
	Reserved() int32                                          // 当前预留数
}

// entity/junction/junction.go的依赖倒置
type IJunction interface {
	ID() int32                   // 获取路口ID
	Control() schema.ControlType // 获取控制方式

	// 申请通过转向，成功时返回nil，否则返回ErrTurnDenied并保持排队
	RequestTurn(agent IAgent, turn ILane) error
	HasReservation(agentID int32) bool // 智能体是否持有预约
	Enter(agentID int32)               // 智能体进入转向车道，消耗转向车道的预留
	Release(agentID int32)             // 智能体离开转向车道，预约结束
	Cancel(agentID int32)              // 取消智能体的申请与预约，归还未消耗的预留
}

// IsFinished 出行是否已经结束
func IsFinished(status schema.TripStatus) bool {
	return status == schema.TripCompleted || status == schema.TripUnreachable || status == schema.TripCancelled
}
