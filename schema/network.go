// Package schema 仿真引擎的输入与输出数据结构
// 路网、场景、查询视图与快照均为纯数据，可以直接复制，可被yaml/bson/json编解码
package schema

// LaneType 车道类型
type LaneType string

const (
	LaneTypeDriving LaneType = "driving" // 行车道
	LaneTypeWalking LaneType = "walking" // 人行道
)

// ControlType 路口控制方式
type ControlType string

const (
	ControlUncontrolled ControlType = "uncontrolled" // 无控制，先到先得
	ControlStopSign     ControlType = "stop_sign"    // 停车让行，必须完全停止后申请
	ControlSignal       ControlType = "signal"       // 定周期信号灯
)

// TurnType 路口内转向类型
type TurnType string

const (
	TurnStraight     TurnType = "straight"
	TurnLeft         TurnType = "left"
	TurnRight        TurnType = "right"
	TurnUTurn        TurnType = "u_turn"
	TurnCrosswalk    TurnType = "crosswalk"
	TurnSharedCorner TurnType = "shared_corner"
)

// IsWalking 判断转向是否属于步行网络
func (t TurnType) IsWalking() bool {
	return t == TurnCrosswalk || t == TurnSharedCorner
}

// Lane 道路上的车道（不含路口内部转向）
type Lane struct {
	ID       int32    `yaml:"id" bson:"id" json:"id"`
	Type     LaneType `yaml:"type" bson:"type" json:"type"`
	Length   float64  `yaml:"length" bson:"length" json:"length"`
	MaxSpeed float64  `yaml:"max_speed" bson:"max_speed" json:"max_speed"`
	// 容量，为0时按 长度/(车长+最小车距) 计算
	Capacity int32 `yaml:"capacity,omitempty" bson:"capacity,omitempty" json:"capacity,omitempty"`
}

// Turn 路口内从一条车道到另一条车道的转向
// 运行时转向被实例化为属于路口的车道，路径因此是车道ID的序列
type Turn struct {
	ID           int32    `yaml:"id" bson:"id" json:"id"`
	Intersection int32    `yaml:"intersection" bson:"intersection" json:"intersection"`
	Type         TurnType `yaml:"type" bson:"type" json:"type"`
	From         int32    `yaml:"from" bson:"from" json:"from"`
	To           int32    `yaml:"to" bson:"to" json:"to"`
	Length       float64  `yaml:"length" bson:"length" json:"length"`
	// 限速，为0时取来源与去向车道限速的较小值
	MaxSpeed  float64 `yaml:"max_speed,omitempty" bson:"max_speed,omitempty" json:"max_speed,omitempty"`
	Conflicts []int32 `yaml:"conflicts,omitempty" bson:"conflicts,omitempty" json:"conflicts,omitempty"`
}

// Phase 信号灯相位
type Phase struct {
	Protected []int32 `yaml:"protected,omitempty" bson:"protected,omitempty" json:"protected,omitempty"`
	Yield     []int32 `yaml:"yield,omitempty" bson:"yield,omitempty" json:"yield,omitempty"`
	Duration  float64 `yaml:"duration" bson:"duration" json:"duration"`
}

// Intersection 路口
type Intersection struct {
	ID      int32       `yaml:"id" bson:"id" json:"id"`
	Control ControlType `yaml:"control" bson:"control" json:"control"`
	Phases  []Phase     `yaml:"phases,omitempty" bson:"phases,omitempty" json:"phases,omitempty"`
	Offset  float64     `yaml:"offset,omitempty" bson:"offset,omitempty" json:"offset,omitempty"`
}

// Stop 公交站，同时连接行车道与人行道
type Stop struct {
	ID       int32   `yaml:"id" bson:"id" json:"id"`
	Lane     int32   `yaml:"lane" bson:"lane" json:"lane"`
	S        float64 `yaml:"s" bson:"s" json:"s"`
	WalkLane int32   `yaml:"walk_lane" bson:"walk_lane" json:"walk_lane"`
	WalkS    float64 `yaml:"walk_s" bson:"walk_s" json:"walk_s"`
}

// Network 只读路网
type Network struct {
	Lanes         []Lane         `yaml:"lanes" bson:"lanes" json:"lanes"`
	Turns         []Turn         `yaml:"turns,omitempty" bson:"turns,omitempty" json:"turns,omitempty"`
	Intersections []Intersection `yaml:"intersections,omitempty" bson:"intersections,omitempty" json:"intersections,omitempty"`
	Stops         []Stop         `yaml:"stops,omitempty" bson:"stops,omitempty" json:"stops,omitempty"`
}
