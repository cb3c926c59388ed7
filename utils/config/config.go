package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

const (
	defaultInterval          = 0.1
	defaultHeartbeatInterval = 100
	defaultStarvationTicks   = 600

	defaultVehicleLength     = 5
	defaultVehicleMaxSpeed   = 41.67
	defaultMaxA              = 2
	defaultUsualBrakingA     = -4.5
	defaultMaxBrakingA       = -10
	defaultEmergencyBrakingA = -20
	defaultMinGap            = 2
	defaultHeadway           = 1.5
	defaultSpeedRatioStd     = 0.1

	defaultWalkSpeed        = 1.34
	defaultPedestrianLength = 0.5

	defaultBusLength         = 12
	defaultBusMaxSpeed       = 16.67
	defaultBusCapacity       = 40
	defaultDwellBase         = 5
	defaultDwellPerPassenger = 2
	defaultWaitPenalty       = 30
)

// RuntimeConfig 运行时配置
// 功能：存储仿真运行时的配置信息
// 说明：将YAML配置转换为运行时可用的配置对象，缺省值已填充
type RuntimeConfig struct {
	All Config  // 全部配置
	C   Control // 全局控制配置
}

// NewRuntimeConfig 根据配置初始化运行时配置
// 功能：创建运行时配置对象，填充缺省值
// 参数：config-原始配置对象
// 返回：初始化的运行时配置指针
func NewRuntimeConfig(config Config) *RuntimeConfig {
	config.ApplyDefaults()
	return &RuntimeConfig{
		All: config,
		C:   config.Control,
	}
}

// Load 读取并严格解析YAML配置文件
func Load(path string) (Config, error) {
	var c Config
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

func orDefault[T int32 | float64 | int](v *T, d T) {
	if *v == 0 {
		*v = d
	}
}

// ApplyDefaults 为未填写的配置项设置缺省值
func (c *Config) ApplyDefaults() {
	orDefault(&c.Control.Step.Interval, defaultInterval)
	orDefault(&c.Control.HeartbeatInterval, defaultHeartbeatInterval)
	orDefault(&c.Control.StarvationTicks, defaultStarvationTicks)

	v := &c.Vehicle
	orDefault(&v.Length, defaultVehicleLength)
	orDefault(&v.MaxSpeed, defaultVehicleMaxSpeed)
	orDefault(&v.MaxA, defaultMaxA)
	orDefault(&v.UsualBrakingA, defaultUsualBrakingA)
	orDefault(&v.MaxBrakingA, defaultMaxBrakingA)
	orDefault(&v.EmergencyBrakingA, defaultEmergencyBrakingA)
	orDefault(&v.MinGap, defaultMinGap)
	orDefault(&v.Headway, defaultHeadway)
	orDefault(&v.SpeedRatioStd, defaultSpeedRatioStd)

	orDefault(&c.Pedestrian.Speed, defaultWalkSpeed)
	orDefault(&c.Pedestrian.Length, defaultPedestrianLength)

	t := &c.Transit
	orDefault(&t.VehicleLength, defaultBusLength)
	orDefault(&t.MaxSpeed, defaultBusMaxSpeed)
	orDefault(&t.Capacity, defaultBusCapacity)
	orDefault(&t.DwellBase, defaultDwellBase)
	orDefault(&t.DwellPerPassenger, defaultDwellPerPassenger)
	orDefault(&t.WaitPenalty, defaultWaitPenalty)

	if c.Router.DistanceWeight == 0 && c.Router.TimeWeight == 0 {
		c.Router.DistanceWeight = 1
		c.Router.TimeWeight = 1
	}
	if c.Output.Store.Type == "" {
		c.Output.Store.Type = "file"
	}
	if c.Output.Store.Prefix == "" {
		c.Output.Store.Prefix = "microsim"
	}
}

// Validate 检查配置的一致性
func (c *Config) Validate() error {
	if c.Control.Step.Interval <= 0 {
		return fmt.Errorf("control.step.interval must be positive, got %v", c.Control.Step.Interval)
	}
	if c.Control.Step.Total < 0 {
		return fmt.Errorf("control.step.total must not be negative, got %d", c.Control.Step.Total)
	}
	if c.Vehicle.UsualBrakingA >= 0 || c.Vehicle.MaxBrakingA >= 0 || c.Vehicle.EmergencyBrakingA >= 0 {
		return fmt.Errorf("vehicle braking accelerations must be negative")
	}
	if c.Vehicle.EmergencyBrakingA > c.Vehicle.MaxBrakingA {
		return fmt.Errorf("vehicle.emergency_braking_a (%v) must not be weaker than max_braking_a (%v)",
			c.Vehicle.EmergencyBrakingA, c.Vehicle.MaxBrakingA)
	}
	switch c.Output.Store.Type {
	case "file", "redis", "mongo":
	default:
		return fmt.Errorf("unknown output.store.type %q", c.Output.Store.Type)
	}
	return nil
}
