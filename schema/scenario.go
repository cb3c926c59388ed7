package schema

// Position 路网位置：车道 + 沿车道距离
type Position struct {
	Lane int32   `yaml:"lane" bson:"lane" json:"lane"`
	S    float64 `yaml:"s" bson:"s" json:"s"`
}

// TravelMode 出行方式
type TravelMode string

const (
	ModeDrive   TravelMode = "drive"
	ModeWalk    TravelMode = "walk"
	ModeTransit TravelMode = "transit" // 步行-公交-步行，无更优公交方案时退化为步行
)

// Trip 出行
type Trip struct {
	ID          int32      `yaml:"id" bson:"id" json:"id"`
	Depart      float64    `yaml:"depart" bson:"depart" json:"depart"` // 出发时间（秒）
	Origin      Position   `yaml:"origin" bson:"origin" json:"origin"`
	Destination Position   `yaml:"destination" bson:"destination" json:"destination"`
	Mode        TravelMode `yaml:"mode" bson:"mode" json:"mode"`
}

// TransitRoute 公交线路与时刻表
type TransitRoute struct {
	ID         int32     `yaml:"id" bson:"id" json:"id"`
	Name       string    `yaml:"name,omitempty" bson:"name,omitempty" json:"name,omitempty"`
	Stops      []int32   `yaml:"stops" bson:"stops" json:"stops"`
	Departures []float64 `yaml:"departures" bson:"departures" json:"departures"`
	// 载客量，为0时使用配置默认值
	Capacity int32 `yaml:"capacity,omitempty" bson:"capacity,omitempty" json:"capacity,omitempty"`
}

// Scenario 场景输入
type Scenario struct {
	Trips         []Trip         `yaml:"trips" bson:"trips" json:"trips"`
	TransitRoutes []TransitRoute `yaml:"transit_routes,omitempty" bson:"transit_routes,omitempty" json:"transit_routes,omitempty"`
}

// TripStatus 出行状态
type TripStatus string

const (
	TripPending     TripStatus = "pending"
	TripActive      TripStatus = "active"
	TripCompleted   TripStatus = "completed"
	TripUnreachable TripStatus = "unreachable"
	TripCancelled   TripStatus = "cancelled"
)

// LegKind 出行段类型
type LegKind string

const (
	LegWalk  LegKind = "walk"
	LegDrive LegKind = "drive"
	LegWait  LegKind = "wait" // 在站点等车
	LegRide  LegKind = "ride" // 乘车
)

// Leg 单一方式的出行段
// walk/drive 使用 Path/From/To；wait/ride 使用 Route/BoardStop/AlightStop
// Contraflow与Path等长，标记步行时逆着车道方向通行的车道
type Leg struct {
	Kind       LegKind  `bson:"kind" json:"kind"`
	Path       []int32  `bson:"path,omitempty" json:"path,omitempty"`
	Contraflow []bool   `bson:"contraflow,omitempty" json:"contraflow,omitempty"`
	From       Position `bson:"from" json:"from"`
	To         Position `bson:"to" json:"to"`
	Route      int32    `bson:"route,omitempty" json:"route,omitempty"`
	BoardStop  int32    `bson:"board_stop,omitempty" json:"board_stop,omitempty"`
	AlightStop int32    `bson:"alight_stop,omitempty" json:"alight_stop,omitempty"`
}
