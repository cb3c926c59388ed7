package route

import (
	"fmt"
	"math"
	"sort"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/schema"
	"github.com/tsinghua-fib-lab/microsim/utils/config"
	"github.com/tsinghua-fib-lab/microsim/utils/container"
)

// node 车道图中的一个结点（道路车道或路口内转向）
type node struct {
	id         int32
	typ        schema.LaneType
	length     float64
	speed      float64 // 驾驶时的通行速度
	successors []int32 // 按ID升序

	startJoint, endJoint int64 // 步行车道两端所在的连接点
}

// walkEnd 连接点上的一个车道端点
type walkEnd struct {
	id    int32
	start bool
}

// endKey 车道端点的编号
func endKey(id int32, start bool) int64 {
	if start {
		return int64(id) * 2
	}
	return int64(id)*2 + 1
}

// Router 本地导航服务
// 功能：在有向车道图上做确定性的Dijkstra最短路搜索
// 说明：道路车道连接到以其为来源的转向，转向连接到其去向车道；路网只读，Route与Walk可以被并发调用
type Router struct {
	nodes     map[int32]*node
	joints    map[int64][]walkEnd // 步行网络的连接点，端点按车道ID升序、起点在前
	walkSpeed float64
	weights   config.Router
}

// NewRouter 根据路网构造车道图
// 参数：network-路网，rc-运行时配置（代价权重与步行速度）
// 返回：导航服务实例
func NewRouter(network schema.Network, rc *config.RuntimeConfig) *Router {
	r := &Router{
		nodes:     make(map[int32]*node, len(network.Lanes)+len(network.Turns)),
		walkSpeed: rc.All.Pedestrian.Speed,
		weights:   rc.All.Router,
	}
	for _, l := range network.Lanes {
		r.nodes[l.ID] = &node{id: l.ID, typ: l.Type, length: l.Length, speed: l.MaxSpeed}
	}
	for _, t := range network.Turns {
		typ := schema.LaneTypeDriving
		if t.Type.IsWalking() {
			typ = schema.LaneTypeWalking
		}
		r.nodes[t.ID] = &node{id: t.ID, typ: typ, length: t.Length, speed: t.MaxSpeed, successors: []int32{t.To}}
	}
	for _, t := range network.Turns {
		if from, ok := r.nodes[t.From]; ok {
			from.successors = append(from.successors, t.ID)
		}
		if t.MaxSpeed <= 0 {
			from, okFrom := r.nodes[t.From]
			to, okTo := r.nodes[t.To]
			if okFrom && okTo {
				r.nodes[t.ID].speed = math.Min(from.speed, to.speed)
			}
		}
	}
	for _, n := range r.nodes {
		sort.Slice(n.successors, func(i, j int) bool { return n.successors[i] < n.successors[j] })
	}
	r.buildJoints(network.Turns)
	return r
}

// buildJoints 合并步行网络中重合的车道端点
// 说明：步行转向的起点与来源车道终点重合，终点与去向车道起点重合；连接点以集合中最小的端点编号表示
func (r *Router) buildJoints(turns []schema.Turn) {
	parent := make(map[int64]int64)
	var find func(int64) int64
	find = func(x int64) int64 {
		p, ok := parent[x]
		if !ok || p == x {
			return x
		}
		root := find(p)
		parent[x] = root
		return root
	}
	union := func(a, b int64) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if ra > rb {
			ra, rb = rb, ra
		}
		parent[rb] = ra
	}
	walking := func(id int32) bool {
		n, ok := r.nodes[id]
		return ok && n.typ == schema.LaneTypeWalking
	}
	for _, t := range turns {
		if !t.Type.IsWalking() {
			continue
		}
		if walking(t.From) {
			union(endKey(t.From, false), endKey(t.ID, true))
		}
		if walking(t.To) {
			union(endKey(t.ID, false), endKey(t.To, true))
		}
	}
	r.joints = make(map[int64][]walkEnd)
	for _, n := range r.nodes {
		if n.typ != schema.LaneTypeWalking {
			continue
		}
		n.startJoint, n.endJoint = find(endKey(n.id, true)), find(endKey(n.id, false))
		r.joints[n.startJoint] = append(r.joints[n.startJoint], walkEnd{id: n.id, start: true})
		r.joints[n.endJoint] = append(r.joints[n.endJoint], walkEnd{id: n.id, start: false})
	}
	for _, ends := range r.joints {
		sort.Slice(ends, func(i, j int) bool {
			return endKey(ends[i].id, ends[i].start) < endKey(ends[j].id, ends[j].start)
		})
	}
}

// laneType 出行方式对应的车道类型
func laneType(mode schema.TravelMode) (schema.LaneType, error) {
	switch mode {
	case schema.ModeDrive:
		return schema.LaneTypeDriving, nil
	default:
		return "", fmt.Errorf("router does not search mode %q with Route", mode)
	}
}

// cost 在车道n上行进distance米的代价
func (r *Router) cost(n *node, mode schema.TravelMode, distance float64) float64 {
	speed := n.speed
	if mode == schema.ModeWalk {
		speed = r.walkSpeed
	}
	c := r.weights.DistanceWeight * distance
	if speed > 0 {
		c += r.weights.TimeWeight * distance / speed
	}
	return c
}

// Route 驾驶最短路径
// 功能：返回从起点到终点依次经过的车道ID序列（含起点与终点车道）以及代价
// 参数：mode-出行方式（只支持drive，步行使用Walk），from-起点，to-终点
// 返回：路径、代价；不连通时返回包装了ErrNoPathFound的错误
// 算法说明：
// 1. 终点在同一车道前方时，路径只有该车道
// 2. 否则以"离开起点车道"为虚拟源点做Dijkstra，结点距离为到达该车道起点的代价
// 3. 代价相同的结点按车道ID升序出队，松弛只接受严格更优的结果，保证结果唯一
// 4. 终点在同一车道后方时，需要绕行一圈回到起点车道
func (r *Router) Route(mode schema.TravelMode, from, to schema.Position) ([]int32, float64, error) {
	typ, err := laneType(mode)
	if err != nil {
		return nil, 0, err
	}
	start, ok := r.nodes[from.Lane]
	if !ok || start.typ != typ {
		return nil, 0, fmt.Errorf("origin lane %d is not a %s lane: %w", from.Lane, typ, entity.ErrNoPathFound)
	}
	end, ok := r.nodes[to.Lane]
	if !ok || end.typ != typ {
		return nil, 0, fmt.Errorf("destination lane %d is not a %s lane: %w", to.Lane, typ, entity.ErrNoPathFound)
	}
	if from.Lane == to.Lane && to.S >= from.S {
		return []int32{from.Lane}, r.cost(start, mode, to.S-from.S), nil
	}

	// via 前驱车道，source表示由虚拟源点（离开起点车道）直接到达
	type via struct {
		id     int32
		source bool
	}
	dist := make(map[int32]float64)
	prev := make(map[int32]via)
	visited := make(map[int32]bool)
	pq := container.NewPriorityQueue[int32]()
	relax := func(id int32, p via, d float64) {
		n, ok := r.nodes[id]
		if !ok || n.typ != typ || visited[id] {
			return
		}
		if old, ok := dist[id]; ok && old <= d {
			return
		}
		dist[id] = d
		prev[id] = p
		pq.HeapPush(id, d, int64(id))
	}
	leave := r.cost(start, mode, start.length-from.S)
	for _, succ := range start.successors {
		relax(succ, via{source: true}, leave)
	}
	for pq.Len() > 0 {
		id, d := pq.HeapPop()
		if visited[id] || d > dist[id] {
			continue
		}
		visited[id] = true
		n := r.nodes[id]
		if id == to.Lane {
			path := []int32{id}
			for cur := id; !prev[cur].source; cur = prev[cur].id {
				path = append(path, prev[cur].id)
			}
			path = append(path, from.Lane)
			return lo.Reverse(path), d + r.cost(n, mode, to.S), nil
		}
		through := d + r.cost(n, mode, n.length)
		for _, succ := range n.successors {
			relax(succ, via{id: id}, through)
		}
	}
	return nil, 0, fmt.Errorf("%s from %v to %v: %w", mode, from, to, entity.ErrNoPathFound)
}

// walkState 步行搜索的状态：所在车道与是否逆向通行
type walkState struct {
	id  int32
	rev bool
}

// Walk 步行最短路径
// 功能：人行道与人行横道都可以双向通行
// 参数：from-起点，to-终点
// 返回：步行段（Path与逐车道的逆向标记）与代价；不连通时返回包装了ErrNoPathFound的错误
// 算法说明：
// 1. 终点在同一车道上时直接顺向或逆向走过去
// 2. 离开车道的一端所在的连接点上，可以顺向进入以该点为起点的车道，或逆向进入以该点为终点的车道
// 3. Dijkstra的结点为（车道，方向），出队代价相同时按端点编号升序
// 4. 终点车道出队时加上车道内走到终点的代价作为候选，出队代价不小于最优候选时结束
func (r *Router) Walk(from, to schema.Position) (schema.Leg, float64, error) {
	leg := schema.Leg{Kind: schema.LegWalk, From: from, To: to}
	start, ok := r.nodes[from.Lane]
	if !ok || start.typ != schema.LaneTypeWalking {
		return leg, 0, fmt.Errorf("origin lane %d is not a walking lane: %w", from.Lane, entity.ErrNoPathFound)
	}
	end, ok := r.nodes[to.Lane]
	if !ok || end.typ != schema.LaneTypeWalking {
		return leg, 0, fmt.Errorf("destination lane %d is not a walking lane: %w", to.Lane, entity.ErrNoPathFound)
	}
	if from.Lane == to.Lane {
		leg.Path = []int32{from.Lane}
		leg.Contraflow = []bool{to.S < from.S}
		return leg, r.cost(start, schema.ModeWalk, math.Abs(to.S-from.S)), nil
	}

	// via 前驱状态，source表示prev是起点车道上的出发方向
	type via struct {
		prev   walkState
		source bool
	}
	dist := make(map[walkState]float64)
	prev := make(map[walkState]via)
	visited := make(map[walkState]bool)
	pq := container.NewPriorityQueue[walkState]()
	relax := func(s walkState, p via, d float64) {
		if visited[s] {
			return
		}
		if old, ok := dist[s]; ok && old <= d {
			return
		}
		dist[s] = d
		prev[s] = p
		pq.HeapPush(s, d, endKey(s.id, !s.rev))
	}
	leave := func(n *node, rev bool, p via, d float64) {
		joint := n.endJoint
		if rev {
			joint = n.startJoint
		}
		for _, e := range r.joints[joint] {
			if e.id != n.id {
				relax(walkState{id: e.id, rev: !e.start}, p, d)
			}
		}
	}
	leave(start, false, via{prev: walkState{id: start.id}, source: true}, r.cost(start, schema.ModeWalk, start.length-from.S))
	leave(start, true, via{prev: walkState{id: start.id, rev: true}, source: true}, r.cost(start, schema.ModeWalk, from.S))

	var (
		best  float64
		last  walkState
		found bool
	)
	for pq.Len() > 0 {
		s, d := pq.HeapPop()
		if visited[s] || d > dist[s] {
			continue
		}
		if found && d >= best {
			break
		}
		visited[s] = true
		n := r.nodes[s.id]
		if s.id == to.Lane {
			rest := to.S
			if s.rev {
				rest = n.length - to.S
			}
			if c := d + r.cost(n, schema.ModeWalk, rest); !found || c < best {
				best, last, found = c, s, true
			}
		}
		leave(n, s.rev, via{prev: s}, d+r.cost(n, schema.ModeWalk, n.length))
	}
	if !found {
		return leg, 0, fmt.Errorf("walk from %v to %v: %w", from, to, entity.ErrNoPathFound)
	}
	states := []walkState{last}
	cur := last
	for !prev[cur].source {
		cur = prev[cur].prev
		states = append(states, cur)
	}
	states = append(states, prev[cur].prev)
	lo.Reverse(states)
	leg.Path = lo.Map(states, func(s walkState, _ int) int32 { return s.id })
	leg.Contraflow = lo.Map(states, func(s walkState, _ int) bool { return s.rev })
	return leg, best, nil
}
