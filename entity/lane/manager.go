package lane

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/sourcegraph/conc/iter"
	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/schema"
)

// LaneManager Lane管理器
// 功能：管理所有道路车道与路口转向车道，提供创建、查找、检查、快照等功能
type LaneManager struct {
	ctx entity.ITaskContext

	data    map[int32]*Lane
	lanes   []*Lane        // 更新顺序：先转向车道，后道路车道，各自按ID升序
	ordered []entity.ILane // lanes的接口视图
}

// NewManager 创建Lane管理器实例
// 参数：ctx-任务上下文
// 返回：新创建的Lane管理器实例
func NewManager(ctx entity.ITaskContext) *LaneManager {
	return &LaneManager{
		ctx:   ctx,
		data:  make(map[int32]*Lane),
		lanes: make([]*Lane, 0),
	}
}

// Init 初始化所有Lane
// 功能：根据路网数据创建道路车道与转向车道，建立ID映射关系和连接关系
// 说明：分两阶段：创建对象和建立连接关系；道路车道的后继为以其为来源的转向（按ID升序）
func (m *LaneManager) Init(network schema.Network) {
	roads := iter.Map(network.Lanes, func(pb *schema.Lane) *Lane {
		return newLane(m.ctx, *pb)
	})
	turns := iter.Map(network.Turns, func(pb *schema.Turn) *Lane {
		return newTurnLane(m.ctx, *pb)
	})
	sort.Slice(roads, func(i, j int) bool { return roads[i].id < roads[j].id })
	sort.Slice(turns, func(i, j int) bool { return turns[i].id < turns[j].id })
	m.lanes = append(turns, roads...)
	m.data = lo.SliceToMap(m.lanes, func(l *Lane) (int32, *Lane) {
		return l.id, l
	})
	for _, t := range turns {
		from := m.data[t.turn.From]
		from.initSuccessors = append(from.initSuccessors, t.id)
	}
	iter.ForEach(m.lanes, func(l **Lane) { (*l).initWithManager(m) })
	m.ordered = lo.Map(m.lanes, func(l *Lane, _ int) entity.ILane { return l })
	log.Infof("lane: %d roads, %d turns", len(roads), len(turns))
}

// Get 根据ID获取Lane实例，如果不存在则panic
func (m *LaneManager) Get(id int32) entity.ILane {
	if lane, ok := m.data[id]; !ok {
		log.Panicf("no id %d in lane data", id)
		return nil
	} else {
		return lane
	}
}

// GetOrError 根据ID获取Lane实例，如果不存在则返回错误
func (m *LaneManager) GetOrError(id int32) (entity.ILane, error) {
	if lane, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in lane data", id)
	} else {
		return lane, nil
	}
}

// Ordered 按更新顺序获取全部车道
func (m *LaneManager) Ordered() []entity.ILane {
	return m.ordered
}

// Prepare 准备阶段，重排所有人行道上的行人链表
func (m *LaneManager) Prepare() {
	for _, l := range m.lanes {
		l.prepare()
	}
}

// Check 检查阶段，并行检查所有车道的不变量
// 说明：结果按车道更新顺序归约，返回第一个错误
func (m *LaneManager) Check() error {
	step := m.ctx.Clock().InternalStep
	errs := iter.Map(m.lanes, func(l **Lane) error {
		return (*l).check(step)
	})
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Records 产生所有车道的占用记录，按更新顺序
func (m *LaneManager) Records() []schema.LaneRecord {
	return lo.Map(m.lanes, func(l *Lane, _ int) schema.LaneRecord {
		return l.record()
	})
}

// Restore 从占用记录恢复所有车道
func (m *LaneManager) Restore(records []schema.LaneRecord, nodeOf func(id int32) (*entity.AgentNode, error)) error {
	for _, r := range records {
		l, ok := m.data[r.ID]
		if !ok {
			return fmt.Errorf("no id %d in lane data", r.ID)
		}
		if err := l.restore(r, nodeOf); err != nil {
			return err
		}
	}
	return nil
}
