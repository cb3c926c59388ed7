package config

// InputPath 指定输入数据来源的配置（MongoDB、文件系统）
// 功能：定义数据输入路径的配置结构，支持多种数据源
// 说明：文件优先于MongoDB，MongoDB数据可以缓存到本地文件
type InputPath struct {
	DB        string `yaml:"db,omitempty"`         // 数据库名
	Col       string `yaml:"col,omitempty"`        // 集合名
	Cache     string `yaml:"cache,omitempty"`      // 缓存文件名，为空则采用默认路径{db}.{col}.bson
	OnlyCache bool   `yaml:"only_cache,omitempty"` // 只从缓存中获取
	File      string `yaml:"file,omitempty"`       // 文件路径（.yaml/.yml/.bson，优先级高于MongoDB）
}

// GetCachePath 获取缓存文件路径
// 功能：返回缓存文件的完整路径
// 返回：缓存文件路径字符串
// 说明：如果指定了缓存路径则直接返回，否则使用默认命名规则：{数据库名}.{集合名}.bson
func (p InputPath) GetCachePath() string {
	if p.Cache != "" {
		return p.Cache
	}
	return p.DB + "." + p.Col + ".bson"
}

// Input 指定模拟器所有输入数据的配置项
type Input struct {
	URI      string    `yaml:"uri,omitempty"` // MongoDB连接字符串
	Network  InputPath `yaml:"network"`       // 路网
	Scenario InputPath `yaml:"scenario"`      // 场景（出行与公交时刻表）
}

// ControlStep 指定模拟器模拟时间范围和间隔的配置项
type ControlStep struct {
	Start    int32   `yaml:"start"`    // 开始步数
	Total    int32   `yaml:"total"`    // 总步数
	Interval float64 `yaml:"interval"` // 每步的时间间隔（秒）
}

// Control 模拟器控制配置
// 功能：定义仿真系统的核心控制参数
// 说明：包含时间控制、并行开关、日志心跳、随机种子偏移与路口公平性参数
type Control struct {
	Step              ControlStep `yaml:"step"`
	Parallel          bool        `yaml:"parallel,omitempty"`           // 独立路口与车道检查是否并行执行
	HeartbeatInterval int32       `yaml:"heartbeat_interval,omitempty"` // 心跳日志间隔步数
	SeedOffset        uint64      `yaml:"seed_offset,omitempty"`        // 随机种子偏移量
	StarvationTicks   int32       `yaml:"starvation_ticks,omitempty"`   // 路口申请等待超过该步数后提升优先级
	HistoryTicks      int32       `yaml:"history_ticks,omitempty"`      // 查询接口保留的历史帧数
}

// Vehicle 车辆参数
type Vehicle struct {
	Length            float64 `yaml:"length,omitempty"`              // 车长（米）
	MaxSpeed          float64 `yaml:"max_speed,omitempty"`           // 最大速度（米/秒）
	MaxA              float64 `yaml:"max_a,omitempty"`               // 最大加速度
	UsualBrakingA     float64 `yaml:"usual_braking_a,omitempty"`     // 常用制动加速度（负数）
	MaxBrakingA       float64 `yaml:"max_braking_a,omitempty"`       // 最大制动加速度（负数）
	EmergencyBrakingA float64 `yaml:"emergency_braking_a,omitempty"` // 物理极限制动加速度，超出即为运动学违例
	MinGap            float64 `yaml:"min_gap,omitempty"`             // 最小车距
	Headway           float64 `yaml:"headway,omitempty"`             // 安全车头时距
	SpeedRatioStd     float64 `yaml:"speed_ratio_std,omitempty"`     // 车道限速认知偏差的标准差
	ParkingDuration   float64 `yaml:"parking_duration,omitempty"`    // 到达后停车时长（秒），0表示直接消失
}

// Pedestrian 行人参数
type Pedestrian struct {
	Speed  float64 `yaml:"speed,omitempty"`  // 步行速度（米/秒）
	Length float64 `yaml:"length,omitempty"` // 占用长度（米）
}

// Transit 公交参数
type Transit struct {
	VehicleLength     float64 `yaml:"vehicle_length,omitempty"`      // 公交车长（米）
	MaxSpeed          float64 `yaml:"max_speed,omitempty"`           // 最大速度（米/秒）
	Capacity          int32   `yaml:"capacity,omitempty"`            // 默认载客量
	DwellBase         float64 `yaml:"dwell_base,omitempty"`          // 停站基础时长（秒）
	DwellPerPassenger float64 `yaml:"dwell_per_passenger,omitempty"` // 每位上下车乘客增加的停站时长（秒）
	WaitPenalty       float64 `yaml:"wait_penalty,omitempty"`        // 规划时的候车时间估计（秒）
}

// Router 路径规划代价权重
type Router struct {
	DistanceWeight float64 `yaml:"distance_weight,omitempty"`
	TimeWeight     float64 `yaml:"time_weight,omitempty"`
}

// Store 快照存储
type Store struct {
	Type       string `yaml:"type,omitempty"` // file | redis | mongo
	Path       string `yaml:"path,omitempty"` // file：目录
	Addr       string `yaml:"addr,omitempty"` // redis：地址
	Password   string `yaml:"password,omitempty"`
	DB         int    `yaml:"db,omitempty"`
	URI        string `yaml:"uri,omitempty"` // mongo：连接字符串
	Database   string `yaml:"database,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	Prefix     string `yaml:"prefix,omitempty"` // 快照键前缀
}

// Output 输出配置
type Output struct {
	Trace     string `yaml:"trace,omitempty"`      // 逐步轨迹输出文件（NDJSON）
	SaveEvery int32  `yaml:"save_every,omitempty"` // 每隔多少步保存快照，0表示不保存
	Store     Store  `yaml:"store,omitempty"`
}

// Config YAML配置文件的根结构
type Config struct {
	Input      Input      `yaml:"input"`                // 输入
	Control    Control    `yaml:"control"`              // 模拟过程控制
	Vehicle    Vehicle    `yaml:"vehicle,omitempty"`    // 车辆参数
	Pedestrian Pedestrian `yaml:"pedestrian,omitempty"` // 行人参数
	Transit    Transit    `yaml:"transit,omitempty"`    // 公交参数
	Router     Router     `yaml:"router,omitempty"`     // 路径规划
	Output     Output     `yaml:"output,omitempty"`     // 输出
}
