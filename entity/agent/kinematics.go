package agent

import (
	"fmt"
	"math"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/microsim/utils/config"
)

const (
	idmTheta = 4 // IDM模型参数

	// https://jtgl.beijing.gov.cn/jgj/94220/aqcs/139634/index.html
	viewDistanceFactor = 12 // 观察距离等于12秒内通过的路程
	minViewDistance    = 50 // 最小观察距离（米）
	minRequestDistance = 10 // 距停止线多远开始申请转向（米）
)

// Leader 前车信息
type Leader struct {
	Distance float64 // 本车车头到前车车尾的距离
	V        float64 // 前车速度
}

// Proposal 一步的运动学结果
type Proposal struct {
	A  float64 // 加速度
	V  float64 // 步末速度
	DS float64 // 本步移动距离
}

// Model 车辆运动学模型
// 功能：由IDM跟车模型与停车目标共同决定加速度，并对移动距离做安全截断
type Model struct {
	MaxA              float64 // 最大加速度
	UsualBrakingA     float64 // 常用制动加速度（负数）
	MaxBrakingA       float64 // 最大制动加速度（负数）
	EmergencyBrakingA float64 // 物理极限制动加速度（负数）
	MinGap            float64 // 最小车距
	Headway           float64 // 安全车头时距
}

// newModel 根据车辆配置创建运动学模型
func newModel(c config.Vehicle) Model {
	return Model{
		MaxA:              c.MaxA,
		UsualBrakingA:     c.UsualBrakingA,
		MaxBrakingA:       c.MaxBrakingA,
		EmergencyBrakingA: c.EmergencyBrakingA,
		MinGap:            c.MinGap,
		Headway:           c.Headway,
	}
}

// follow IDM跟车模型
// 参数：v-本车速度，maxV-期望速度，aheadV-前车速度，distance-车距
// 返回：加速度（未截断）
// 算法说明：
// 1. 期望车距 s* = minGap + max(0, v*headway + v*(v-vAhead)/(2*sqrt(-usualBrakingA*maxA)))
// 2. a = maxA * (1 - (v/maxV)^4 - (s*/d)^2)
// 3. 车距不大于0时视为需要无穷大的制动
func (m Model) follow(v, maxV, aheadV, distance float64) float64 {
	if distance <= 0 {
		return math.Inf(-1)
	}
	// https://en.wikipedia.org/wiki/Intelligent_driver_model
	sStar := m.MinGap + math.Max(0, v*m.Headway+v*(v-aheadV)/2/math.Sqrt(-m.UsualBrakingA*m.MaxA))
	return m.MaxA * (1 - math.Pow(v/maxV, idmTheta) - math.Pow(sStar/distance, 2))
}

// computeVAndDistance 计算本步的速度与移动距离
// v(t)=v(t-1)+a*dt, ds=v(t-1)*dt+a*dt*dt/2，速度减到0时在步内停止
func computeVAndDistance(v, a, dt float64) (float64, float64) {
	dv := a * dt
	if v+dv < 0 {
		// 刹车到停止
		return 0, v * v / 2 / -a
	}
	return v + dv, (v + dv/2) * dt
}

// Propose 计算一步的加速度、速度与移动距离
// 参数：v-当前速度，maxV-期望速度，dt-时间步长，leader-前车（可为nil），target-到停车目标的距离（无目标时为+Inf）
// 返回：运动学结果；截断后的结果不合法时返回错误
// 算法说明：
// 1. 无前车时按自由流IDM加速，有前车时取IDM跟车加速度
// 2. 有停车目标时速度不超过 sqrt(2*|usualBrakingA|*d)
// 3. 加速度截断到[maxBrakingA, maxA]后积分一步
// 4. 移动距离截断到 前车车距-最小车距，所需减速度超过emergencyBrakingA时报错
// 5. 移动距离截断到停车目标，到达目标时速度置0
func (m Model) Propose(v, maxV, dt float64, leader *Leader, target float64) (Proposal, error) {
	a := m.MaxA * (1 - math.Pow(v/maxV, idmTheta))
	if leader != nil {
		a = math.Min(a, m.follow(v, maxV, leader.V, leader.Distance))
	}
	if !math.IsInf(target, 1) {
		limit := math.Sqrt(2 * -m.UsualBrakingA * math.Max(target, 0))
		a = math.Min(a, (limit-v)/dt)
	}
	a = lo.Clamp(a, m.MaxBrakingA, m.MaxA)
	newV, ds := computeVAndDistance(v, a, dt)
	if leader != nil {
		limit := leader.Distance - m.MinGap
		if limit < -1e-6 {
			return Proposal{}, fmt.Errorf("gap %.3f to leader is below min gap %.3f", leader.Distance, m.MinGap)
		}
		limit = math.Max(limit, 0)
		if ds > limit {
			// 以恒定减速度在dt内恰好走完limit所需的加速度
			need := 2 * (limit - v*dt) / dt / dt
			if need < m.EmergencyBrakingA-1e-6 {
				return Proposal{}, fmt.Errorf(
					"leader cap %.3f at v=%.3f needs a=%.3f beyond emergency braking %.3f",
					limit, v, need, m.EmergencyBrakingA,
				)
			}
			ds = limit
			newV = math.Max(0, math.Min(newV, 2*limit/dt-v))
		}
	}
	if ds >= target {
		ds = math.Max(target, 0)
		newV = 0
	}
	if math.IsNaN(ds) || math.IsNaN(newV) || ds < 0 || newV < 0 {
		return Proposal{}, fmt.Errorf("bad proposal ds=%v v=%v a=%v", ds, newV, a)
	}
	return Proposal{A: a, V: newV, DS: ds}, nil
}

// viewDistance 前方观察距离
func viewDistance(v float64) float64 {
	return math.Max(minViewDistance, viewDistanceFactor*v)
}

// requestDistance 开始申请转向的距离：常用制动距离加一步的行程，至少minRequestDistance
func (m Model) requestDistance(v, dt float64) float64 {
	return math.Max(minRequestDistance, v*v/2/-m.UsualBrakingA+v*dt)
}
