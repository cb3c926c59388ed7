package lane

import (
	"github.com/tsinghua-fib-lab/microsim/entity"
)

// laneList 车道上的行人链表
// 功能：行人之间允许超越，移动期间链表可能暂时无序，在准备阶段统一重排
type laneList struct {
	list *entity.AgentList
}

// newLaneList 创建新的行人链表
// 参数：id-列表标识符，用于调试和日志
func newLaneList(id string) laneList {
	return laneList{
		list: &entity.AgentList{ID: id},
	}
}

// prepare 准备阶段，将逆序节点取出后重新有序插入
func (l *laneList) prepare() {
	if l.list == nil {
		return
	}
	unsorted := l.list.PopUnsorted()
	if len(unsorted) > 0 {
		l.list.Merge(unsorted)
	}
}

// add 按S插入节点，如果节点已有父节点则panic
func (l *laneList) add(node *entity.AgentNode) {
	if node.Parent() != nil {
		log.Panicf("add node %v who has parent", node)
	}
	l.list.InsertSorted(node)
}

// remove 移除节点，验证节点的父节点关系
func (l *laneList) remove(node *entity.AgentNode) {
	if node.Parent() != l.list {
		log.Panicf("remove node %v (parent=%v) from wrong parent %+v", node, node.Parent(), l.list)
	}
	l.list.Remove(node)
}
