package route

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/schema"
	"github.com/tsinghua-fib-lab/microsim/utils/config"
)

// transitLine 规划用的公交线路
type transitLine struct {
	id    int32
	stops []schema.Stop
	ride  []float64 // ride[i] 从首站乘车到第i站的累计代价
}

// Planner 多方式出行规划
// 功能：把出行拆分为出行段，公交出行在所有线路与上下车站组合中选择代价最小的方案
// 说明：只读，可以被并发调用
type Planner struct {
	router      *Router
	lines       []transitLine // 按线路ID升序
	waitPenalty float64
}

// NewPlanner 创建出行规划器
// 功能：预计算每条公交线路站间的累计乘车代价
// 参数：router-导航服务，stops-公交站，routes-公交线路，rc-运行时配置
// 返回：规划器实例；站点不存在或站间不连通时返回错误
func NewPlanner(router *Router, stops []schema.Stop, routes []schema.TransitRoute, rc *config.RuntimeConfig) (*Planner, error) {
	stopMap := make(map[int32]schema.Stop, len(stops))
	for _, s := range stops {
		stopMap[s.ID] = s
	}
	p := &Planner{
		router:      router,
		lines:       make([]transitLine, 0, len(routes)),
		waitPenalty: rc.All.Router.TimeWeight * rc.All.Transit.WaitPenalty,
	}
	for _, r := range routes {
		line := transitLine{id: r.ID, ride: make([]float64, len(r.Stops))}
		for i, id := range r.Stops {
			s, ok := stopMap[id]
			if !ok {
				return nil, fmt.Errorf("transit route %d: no stop %d", r.ID, id)
			}
			line.stops = append(line.stops, s)
			if i == 0 {
				continue
			}
			prev := line.stops[i-1]
			_, c, err := router.Route(schema.ModeDrive,
				schema.Position{Lane: prev.Lane, S: prev.S}, schema.Position{Lane: s.Lane, S: s.S})
			if err != nil {
				return nil, fmt.Errorf("transit route %d: stop %d -> %d: %w", r.ID, prev.ID, s.ID, err)
			}
			line.ride[i] = line.ride[i-1] + c
		}
		p.lines = append(p.lines, line)
	}
	sort.Slice(p.lines, func(i, j int) bool { return p.lines[i].id < p.lines[j].id })
	return p, nil
}

// Plan 将出行拆分为出行段
// 参数：trip-出行
// 返回：出行段列表；不可达时返回包装了ErrNoPathFound的错误
func (p *Planner) Plan(trip schema.Trip) ([]schema.Leg, error) {
	switch trip.Mode {
	case schema.ModeDrive:
		path, _, err := p.router.Route(schema.ModeDrive, trip.Origin, trip.Destination)
		if err != nil {
			return nil, err
		}
		return []schema.Leg{{Kind: schema.LegDrive, Path: path, From: trip.Origin, To: trip.Destination}}, nil
	case schema.ModeWalk:
		leg, _, err := p.router.Walk(trip.Origin, trip.Destination)
		if err != nil {
			return nil, err
		}
		return []schema.Leg{leg}, nil
	case schema.ModeTransit:
		return p.planTransit(trip)
	default:
		return nil, fmt.Errorf("trip %d: unknown mode %q", trip.ID, trip.Mode)
	}
}

// walkResult 一段步行的规划结果
type walkResult struct {
	leg  schema.Leg
	cost float64
	err  error
}

// planTransit 公交出行规划
// 算法说明：
// 1. 对每条线路（按ID升序）的每一对上下车站i<j，代价为
// 步行(起点->i) + 候车惩罚 + 乘车(i->j) + 步行(j->终点)
// 2. 代价相同时保留先枚举到的方案，即按线路ID、上车站序号、下车站序号
// 3. 最优方案不优于直接步行时退化为步行；两者都不存在时返回ErrNoPathFound
func (p *Planner) planTransit(trip schema.Trip) ([]schema.Leg, error) {
	access := make(map[int32]walkResult)
	egress := make(map[int32]walkResult)
	walkTo := func(s schema.Stop) walkResult {
		if r, ok := access[s.ID]; ok {
			return r
		}
		leg, c, err := p.router.Walk(trip.Origin, schema.Position{Lane: s.WalkLane, S: s.WalkS})
		access[s.ID] = walkResult{leg, c, err}
		return access[s.ID]
	}
	walkFrom := func(s schema.Stop) walkResult {
		if r, ok := egress[s.ID]; ok {
			return r
		}
		leg, c, err := p.router.Walk(schema.Position{Lane: s.WalkLane, S: s.WalkS}, trip.Destination)
		egress[s.ID] = walkResult{leg, c, err}
		return egress[s.ID]
	}

	var (
		bestCost               float64
		found                  bool
		boardLine              transitLine
		boardIndex, offIndex   int
		bestAccess, bestEgress walkResult
	)
	for _, line := range p.lines {
		for i := 0; i < len(line.stops); i++ {
			a := walkTo(line.stops[i])
			if a.err != nil {
				continue
			}
			for j := i + 1; j < len(line.stops); j++ {
				e := walkFrom(line.stops[j])
				if e.err != nil {
					continue
				}
				c := a.cost + p.waitPenalty + line.ride[j] - line.ride[i] + e.cost
				if !found || c < bestCost {
					found, bestCost = true, c
					boardLine, boardIndex, offIndex = line, i, j
					bestAccess, bestEgress = a, e
				}
			}
		}
	}

	walk, walkCost, walkErr := p.router.Walk(trip.Origin, trip.Destination)
	if walkErr != nil && !errors.Is(walkErr, entity.ErrNoPathFound) {
		return nil, walkErr
	}
	if !found || (walkErr == nil && walkCost <= bestCost) {
		if walkErr != nil {
			return nil, fmt.Errorf("trip %d: no transit option and %w", trip.ID, walkErr)
		}
		return []schema.Leg{walk}, nil
	}

	board, off := boardLine.stops[boardIndex], boardLine.stops[offIndex]
	best := []schema.Leg{
		bestAccess.leg,
		{Kind: schema.LegWait, Route: boardLine.id, BoardStop: board.ID, AlightStop: off.ID},
		{Kind: schema.LegRide, Route: boardLine.id, BoardStop: board.ID, AlightStop: off.ID},
		bestEgress.leg,
	}
	log.Debugf("trip %d: ride route %d from stop %d to stop %d, cost %.1f (walk %.1f)",
		trip.ID, boardLine.id, board.ID, off.ID, bestCost, walkCost)
	return best, nil
}
