package junction

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/sourcegraph/conc/iter"
	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/schema"
)

// JunctionManager Junction管理器
// 功能：管理所有路口实体，提供创建、查找、相位推进、互斥检查、快照等功能
type JunctionManager struct {
	ctx entity.ITaskContext

	data      map[int32]*Junction
	junctions []*Junction // 按ID升序
}

// NewManager 创建Junction管理器实例
func NewManager(ctx entity.ITaskContext) *JunctionManager {
	return &JunctionManager{
		ctx:       ctx,
		data:      make(map[int32]*Junction),
		junctions: make([]*Junction, 0),
	}
}

// BuildConflicts 由转向数据构造对称的冲突关系
// 算法说明：
// 1. 路网给出的冲突关系补全为对称关系
// 2. 去向车道相同的两个转向总是冲突（合流）
// 3. 两个步行转向（人行横道、转角）之间不冲突，转向与自身不冲突
func BuildConflicts(turns []schema.Turn) map[[2]int32]bool {
	walking := lo.SliceToMap(turns, func(t schema.Turn) (int32, bool) {
		return t.ID, t.Type.IsWalking()
	})
	conflicts := make(map[[2]int32]bool)
	add := func(a, b int32) {
		if a == b || (walking[a] && walking[b]) {
			return
		}
		conflicts[[2]int32{a, b}] = true
		conflicts[[2]int32{b, a}] = true
	}
	byDest := make(map[int32][]int32)
	for _, t := range turns {
		for _, c := range t.Conflicts {
			add(t.ID, c)
		}
		byDest[t.To] = append(byDest[t.To], t.ID)
	}
	for _, ids := range byDest {
		for x, a := range ids {
			for _, b := range ids[x+1:] {
				add(a, b)
			}
		}
	}
	return conflicts
}

// Init 初始化所有Junction
// 功能：按路口分组转向车道，构造冲突关系与信号灯
// 说明：信号灯相位不合法时panic，输入应已通过校验
func (m *JunctionManager) Init(network schema.Network, laneManager entity.ILaneManager) {
	conflicts := BuildConflicts(network.Turns)
	turns := make(map[int32][]entity.ILane)
	for _, t := range network.Turns {
		turns[t.Intersection] = append(turns[t.Intersection], laneManager.Get(t.ID))
	}
	m.junctions = make([]*Junction, 0, len(network.Intersections))
	for _, base := range network.Intersections {
		ts := turns[base.ID]
		sort.Slice(ts, func(i, j int) bool { return ts[i].ID() < ts[j].ID() })
		j, err := newJunction(m.ctx, base, ts, conflicts)
		if err != nil {
			log.Panicf("init junction %d error: %v", base.ID, err)
		}
		m.junctions = append(m.junctions, j)
	}
	sort.Slice(m.junctions, func(a, b int) bool { return m.junctions[a].id < m.junctions[b].id })
	m.data = lo.SliceToMap(m.junctions, func(j *Junction) (int32, *Junction) {
		return j.id, j
	})
	log.Infof("junction: %d", len(m.junctions))
}

// Get 根据ID获取Junction实例，如果不存在则panic
func (m *JunctionManager) Get(id int32) entity.IJunction {
	if j, ok := m.data[id]; !ok {
		log.Panicf("no id %d in junction data", id)
		return nil
	} else {
		return j
	}
}

// GetOrError 根据ID获取Junction实例，如果不存在则返回错误
func (m *JunctionManager) GetOrError(id int32) (entity.IJunction, error) {
	if j, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in junction data", id)
	} else {
		return j, nil
	}
}

// Update 更新阶段，推进所有信号灯相位
// 说明：各路口相互独立，开启control.parallel时并行执行
func (m *JunctionManager) Update() {
	dt := m.ctx.Clock().DT
	if m.ctx.RuntimeConfig().C.Parallel {
		iter.ForEach(m.junctions, func(j **Junction) { (*j).update(dt) })
		return
	}
	for _, j := range m.junctions {
		j.update(dt)
	}
}

// Check 检查阶段，检查所有路口的预约互斥
func (m *JunctionManager) Check() error {
	step := m.ctx.Clock().InternalStep
	for _, j := range m.junctions {
		if err := j.check(step); err != nil {
			return err
		}
	}
	return nil
}

// Records 产生所有路口的运行时记录，按ID升序
func (m *JunctionManager) Records() []schema.IntersectionRecord {
	return lo.Map(m.junctions, func(j *Junction, _ int) schema.IntersectionRecord {
		return j.record()
	})
}

// Record 产生单个路口的运行时记录
func (m *JunctionManager) Record(id int32) (schema.IntersectionRecord, error) {
	j, ok := m.data[id]
	if !ok {
		return schema.IntersectionRecord{}, fmt.Errorf("no id %d in junction data", id)
	}
	return j.record(), nil
}

// Restore 从记录恢复所有路口
func (m *JunctionManager) Restore(records []schema.IntersectionRecord) error {
	for _, r := range records {
		j, ok := m.data[r.ID]
		if !ok {
			return fmt.Errorf("no id %d in junction data", r.ID)
		}
		j.restore(r)
	}
	return nil
}
