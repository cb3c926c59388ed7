package schema

// NoID 表示空引用
const NoID int32 = -1

// TransitIDStart 公交车ID的起始值，出行ID必须小于该值
const TransitIDStart int32 = 100000000

// AgentKind 智能体类型
type AgentKind string

const (
	KindVehicle    AgentKind = "vehicle"
	KindPedestrian AgentKind = "pedestrian"
	KindTransit    AgentKind = "transit"
)

// AgentState 智能体状态机状态
type AgentState string

const (
	StateSpawning          AgentState = "spawning"
	StateTraveling         AgentState = "traveling"
	StateAtIntersection    AgentState = "at_intersection"
	StateParking           AgentState = "parking"
	StateWaitingForTransit AgentState = "waiting_for_transit"
	StateOnBoard           AgentState = "on_board"
	StateAlighting         AgentState = "alighting"
	StateDwelling          AgentState = "dwelling"
	StateDespawned         AgentState = "despawned"
)

// AgentRecord 智能体运行时数据
// 只通过ID引用车道、路口与其他智能体，可以被直接复制和序列化
type AgentRecord struct {
	ID     int32      `bson:"id" json:"id"`
	Kind   AgentKind  `bson:"kind" json:"kind"`
	Trip   int32      `bson:"trip" json:"trip"`
	State  AgentState `bson:"state" json:"state"`
	Lane   int32      `bson:"lane" json:"lane"`
	S      float64    `bson:"s" json:"s"`
	V      float64    `bson:"v" json:"v"`
	A      float64    `bson:"a" json:"a"`
	Length float64    `bson:"length" json:"length"`

	Path      []int32 `bson:"path,omitempty" json:"path,omitempty"`
	PathIndex int32   `bson:"path_index" json:"path_index"`
	Legs      []Leg   `bson:"legs,omitempty" json:"legs,omitempty"`
	LegIndex  int32   `bson:"leg_index" json:"leg_index"`

	SpeedRatio float64 `bson:"speed_ratio" json:"speed_ratio"` // 对车道限速的认知偏差
	WalkSpeed  float64 `bson:"walk_speed,omitempty" json:"walk_speed,omitempty"`

	ReservedTurn int32   `bson:"reserved_turn" json:"reserved_turn"` // 持有预约的转向，NoID表示没有
	SpawnStep    int32   `bson:"spawn_step" json:"spawn_step"`
	BlockedSince int32   `bson:"blocked_since" json:"blocked_since"` // 开始在路口等待的步数，NoID表示没有等待
	Distance     float64 `bson:"distance" json:"distance"`
	ParkingLeft  int32   `bson:"parking_left,omitempty" json:"parking_left,omitempty"`

	// 公交车
	Route     int32   `bson:"route" json:"route"`
	StopIndex int32   `bson:"stop_index" json:"stop_index"`
	DwellLeft int32   `bson:"dwell_left,omitempty" json:"dwell_left,omitempty"`
	Manifest  []int32 `bson:"manifest,omitempty" json:"manifest,omitempty"`
	Capacity  int32   `bson:"capacity,omitempty" json:"capacity,omitempty"`

	// 乘客
	Vehicle int32 `bson:"vehicle" json:"vehicle"`
}

// AgentView 查询接口返回的智能体摘要
type AgentView struct {
	ID    int32      `bson:"id" json:"id"`
	Kind  AgentKind  `bson:"kind" json:"kind"`
	State AgentState `bson:"state" json:"state"`
	Lane  int32      `bson:"lane" json:"lane"`
	S     float64    `bson:"s" json:"s"`
	V     float64    `bson:"v" json:"v"`
}

// AgentDetail 单个智能体的完整状态
type AgentDetail struct {
	AgentRecord `bson:",inline"`
	TripStatus  TripStatus `bson:"trip_status,omitempty" json:"trip_status,omitempty"`
	// 出行耗时（秒）
	TripTime float64 `bson:"trip_time" json:"trip_time"`
	// 当前路径完成的比例
	PercentCrossed float64 `bson:"percent_crossed" json:"percent_crossed"`
}

// ReservationRecord 路口预约
type ReservationRecord struct {
	Agent       int32 `bson:"agent" json:"agent"`
	Turn        int32 `bson:"turn" json:"turn"`
	GrantedStep int32 `bson:"granted_step" json:"granted_step"`
	TurnSlot    bool  `bson:"turn_slot" json:"turn_slot"` // 转向车道的容量仍被预留
	DestSlot    bool  `bson:"dest_slot" json:"dest_slot"` // 目标车道的容量仍被预留
}

// RequestRecord 路口等待中的转向申请
type RequestRecord struct {
	Agent       int32 `bson:"agent" json:"agent"`
	Turn        int32 `bson:"turn" json:"turn"`
	ArrivalStep int32 `bson:"arrival_step" json:"arrival_step"`
	Seq         int64 `bson:"seq" json:"seq"`
}

// IntersectionRecord 路口运行时状态
type IntersectionRecord struct {
	ID             int32               `bson:"id" json:"id"`
	Control        ControlType         `bson:"control" json:"control"`
	PhaseIndex     int32               `bson:"phase_index" json:"phase_index"`
	PhaseRemaining float64             `bson:"phase_remaining" json:"phase_remaining"`
	Reservations   []ReservationRecord `bson:"reservations,omitempty" json:"reservations,omitempty"`
	Waiting        []RequestRecord     `bson:"waiting,omitempty" json:"waiting,omitempty"`
	Seq            int64               `bson:"seq" json:"seq"`
}

// LaneRecord 车道占用记录，按行进方向排序
type LaneRecord struct {
	ID          int32   `bson:"id" json:"id"`
	Vehicles    []int32 `bson:"vehicles,omitempty" json:"vehicles,omitempty"`
	Pedestrians []int32 `bson:"pedestrians,omitempty" json:"pedestrians,omitempty"`
	Reserved    int32   `bson:"reserved" json:"reserved"`
}

// TransitRecord 公交线路发车进度
type TransitRecord struct {
	Route         int32 `bson:"route" json:"route"`
	NextDeparture int32 `bson:"next_departure" json:"next_departure"`
}

// StopRecord 公交站候车队列
type StopRecord struct {
	ID      int32   `bson:"id" json:"id"`
	Waiting []int32 `bson:"waiting,omitempty" json:"waiting,omitempty"`
}

// TripRecord 出行状态记录
type TripRecord struct {
	ID        int32      `bson:"id" json:"id"`
	Status    TripStatus `bson:"status" json:"status"`
	Agent     int32      `bson:"agent" json:"agent"`
	SpawnStep int32      `bson:"spawn_step" json:"spawn_step"`
	EndStep   int32      `bson:"end_step" json:"end_step"`
	Reason    string     `bson:"reason,omitempty" json:"reason,omitempty"`
}

// Statistics 全局统计
type Statistics struct {
	CompletedTrips   int32   `bson:"completed_trips" json:"completed_trips"`
	TravelTime       float64 `bson:"travel_time" json:"travel_time"`
	TravelDistance   float64 `bson:"travel_distance" json:"travel_distance"`
	UnreachableTrips int32   `bson:"unreachable_trips" json:"unreachable_trips"`
	CancelledTrips   int32   `bson:"cancelled_trips" json:"cancelled_trips"`
}

// EventKind 离散事件类型
type EventKind string

const (
	EventSpawn       EventKind = "spawn"       // 进入路网
	EventEnterLane   EventKind = "enter_lane"  // 进入下一车道或转向
	EventArriveStop  EventKind = "arrive_stop" // 公交车到站
	EventBoard       EventKind = "board"       // 乘客上车
	EventAlight      EventKind = "alight"      // 乘客下车
	EventFinish      EventKind = "finish"      // 完成出行或公交车到达末站
	EventUnreachable EventKind = "unreachable" // 出行无法规划
	EventCancel      EventKind = "cancel"      // 出行或智能体被取消
)

// Event 离散事件，不适用的引用为NoID
type Event struct {
	Kind    EventKind `bson:"kind" json:"kind"`
	Agent   int32     `bson:"agent" json:"agent"`
	Trip    int32     `bson:"trip" json:"trip"`
	Lane    int32     `bson:"lane" json:"lane"`
	Stop    int32     `bson:"stop" json:"stop"`
	Vehicle int32     `bson:"vehicle" json:"vehicle"`
}

// Frame 单步的全体智能体状态，用于轨迹输出与历史查询
// Events为上一帧之后按发生顺序记录的事件，两步之间的取消计入下一帧
type Frame struct {
	Step   int32       `bson:"step" json:"step"`
	T      float64     `bson:"t" json:"t"`
	Agents []AgentView `bson:"agents" json:"agents"`
	Events []Event     `bson:"events,omitempty" json:"events,omitempty"`
}

// Snapshot 完整的仿真状态，足以从中断处继续推进
type Snapshot struct {
	Step          int32                `bson:"step" json:"step"`
	T             float64              `bson:"t" json:"t"`
	Trips         []TripRecord         `bson:"trips" json:"trips"`
	Agents        []AgentRecord        `bson:"agents" json:"agents"`
	Lanes         []LaneRecord         `bson:"lanes" json:"lanes"`
	Intersections []IntersectionRecord `bson:"intersections" json:"intersections"`
	TransitRoutes []TransitRecord      `bson:"transit_routes" json:"transit_routes"`
	Stops         []StopRecord         `bson:"stops" json:"stops"`
	NextTransitID int32                `bson:"next_transit_id" json:"next_transit_id"`
	Statistics    Statistics           `bson:"statistics" json:"statistics"`
}
