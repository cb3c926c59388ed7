package container

import (
	"fmt"
	"log"
)

// IHasVAndLength 具有速度和长度属性的接口
// 功能：定义车辆和行人作为链表元素时需要的关键信息接口
type IHasVAndLength interface {
	ID() int32       // 获取ID
	V() float64      // 获取速度
	Length() float64 // 获取长度
}

// ListNode 有序双向链表中的节点
// 功能：表示链表中的一个智能体，S为车头沿车道的距离
type ListNode[T IHasVAndLength] struct {
	parent     *List[T]     // 所属链表
	prev, next *ListNode[T] // 前驱（后方）和后继（前方）节点
	S          float64      // 键值（车头位置）
	Value      T            // 主要值
}

// String 获取节点的字符串表示
func (n *ListNode[T]) String() string {
	return fmt.Sprintf("Node{S:%v, ID:%d}", n.S, n.Value.ID())
}

// Prev 获取后方的节点，如果是第一个节点则返回nil
func (n *ListNode[T]) Prev() *ListNode[T] {
	return n.prev
}

// Next 获取前方的节点，如果是最后一个节点则返回nil
func (n *ListNode[T]) Next() *ListNode[T] {
	return n.next
}

// Parent 获取节点所在的链表
func (n *ListNode[T]) Parent() *List[T] {
	return n.parent
}

// V 获取节点值的速度
func (n *ListNode[T]) V() float64 {
	return n.Value.V()
}

// L 获取节点值的长度
func (n *ListNode[T]) L() float64 {
	return n.Value.Length()
}

// Back 获取节点占用区间的后端位置
func (n *ListNode[T]) Back() float64 {
	return n.S - n.Value.Length()
}

// InsertBefore 在节点前插入新节点
// 功能：在当前节点之前插入一个新节点，如果新节点已经在链表中则panic
func (n *ListNode[T]) InsertBefore(add *ListNode[T]) {
	if add.parent != nil {
		log.Panic("insert node who already in list")
	}
	add.parent = n.parent
	add.next = n
	add.prev = n.prev
	n.prev = add
	if add.prev != nil {
		add.prev.next = add
	} else {
		add.parent.head = add
	}
	n.parent.length++
}

// InsertAfter 在节点后插入新节点
// 功能：在当前节点之后插入一个新节点，如果新节点已经在链表中则panic
func (n *ListNode[T]) InsertAfter(add *ListNode[T]) {
	if add.parent != nil {
		log.Panic("insert node who already in list")
	}
	add.parent = n.parent
	add.prev = n
	add.next = n.next
	n.next = add
	if add.next != nil {
		add.next.prev = add
	} else {
		add.parent.tail = add
	}
	n.parent.length++
}

// List 按S升序排列的双向链表
// 功能：车道上车辆或行人的有序占用记录，头部为车道入口一侧，尾部为领头者
type List[T IHasVAndLength] struct {
	ID         string       // 链表标识符
	head, tail *ListNode[T] // 头尾节点指针
	length     int          // 链表长度
}

// String 获取链表的字符串表示
func (l *List[T]) String() string {
	return fmt.Sprintf("List{ID:%v}", l.ID)
}

// Keys 获取双向链表中所有节点的键值（从头到尾）
func (l *List[T]) Keys() []float64 {
	keys := make([]float64, 0, l.length)
	for node := l.head; node != nil; node = node.next {
		keys = append(keys, node.S)
	}
	return keys
}

// Values 获取双向链表中所有节点的值（从头到尾）
func (l *List[T]) Values() []T {
	values := make([]T, 0, l.length)
	for node := l.head; node != nil; node = node.next {
		values = append(values, node.Value)
	}
	return values
}

// LeaderFirst 按领头者在前的顺序返回所有节点
// 说明：返回的切片在遍历期间不受链表修改影响
func (l *List[T]) LeaderFirst() []*ListNode[T] {
	nodes := make([]*ListNode[T], 0, l.length)
	for node := l.tail; node != nil; node = node.prev {
		nodes = append(nodes, node)
	}
	return nodes
}

// Len 获取双向链表长度
func (l *List[T]) Len() int {
	return l.length
}

// PushFront 向链表头部插入节点
func (l *List[T]) PushFront(add *ListNode[T]) {
	if add.parent != nil {
		log.Panic("push front node who already in list")
	}
	add.next = nil
	add.prev = nil
	if l.head == nil {
		add.parent = l
		l.head = add
		l.tail = add
		l.length++
	} else {
		// length++和add.parent在InsertBefore中处理
		l.head.InsertBefore(add)
	}
}

// PushBack 向链表尾部插入节点
func (l *List[T]) PushBack(add *ListNode[T]) {
	if add.parent != nil {
		log.Panic("push back node who already in list")
	}
	add.next = nil
	add.prev = nil
	if l.tail == nil {
		add.parent = l
		l.head = add
		l.tail = add
		l.length++
	} else {
		// length++和add.parent在InsertAfter中处理
		l.tail.InsertAfter(add)
	}
}

// InsertSorted 按S插入节点，S相同时插在已有节点之前
func (l *List[T]) InsertSorted(add *ListNode[T]) {
	node := l.head
	for node != nil && node.S < add.S {
		node = node.next
	}
	if node != nil {
		node.InsertBefore(add)
	} else {
		l.PushBack(add)
	}
}

// FindPosition 查找插入S时的前后相邻节点
// 返回：behind-S之后方最近的节点，ahead-S前方最近的节点
func (l *List[T]) FindPosition(s float64) (behind, ahead *ListNode[T]) {
	ahead = l.head
	for ahead != nil && ahead.S < s {
		behind = ahead
		ahead = ahead.next
	}
	return
}

// Remove 从链表中移除节点
// 功能：从链表中删除指定的节点，节点不属于当前链表时panic
func (l *List[T]) Remove(node *ListNode[T]) {
	if node.parent != l {
		log.Panic("remove node from wrong list")
	}
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}
	node.prev = nil
	node.next = nil
	node.parent = nil
	l.length--
}

// First 获取链表头部节点（最靠近车道入口）
func (l *List[T]) First() *ListNode[T] {
	return l.head
}

// Last 获取链表尾部节点（领头者）
func (l *List[T]) Last() *ListNode[T] {
	return l.tail
}

// PopUnsorted 移除逆序节点
// 功能：移除链表中键值逆序的节点（前驱节点的键值大于当前节点）
// 返回：被移除的逆序节点数组
func (l *List[T]) PopUnsorted() (unsorted []*ListNode[T]) {
	for node := l.head; node != nil; {
		next := node.next
		if node.prev != nil && node.prev.S > node.S {
			l.Remove(node)
			unsorted = append(unsorted, node)
		}
		node = next
	}
	return unsorted
}

// Merge 批量插入节点，S相同时按ID排序以保证确定性
func (l *List[T]) Merge(adds []*ListNode[T]) {
	// 1. insertion sort (数量通常很小)
	for i := 1; i < len(adds); i++ {
		for j := i; j > 0 && less(adds[j], adds[j-1]); j-- {
			adds[j], adds[j-1] = adds[j-1], adds[j]
		}
	}
	// 2. merge
	node := l.head
	for _, add := range adds {
		for node != nil && !less(add, node) {
			node = node.next
		}
		if node != nil {
			node.InsertBefore(add)
		} else {
			l.PushBack(add)
		}
	}
}

func less[T IHasVAndLength](a, b *ListNode[T]) bool {
	if a.S != b.S {
		return a.S < b.S
	}
	return a.Value.ID() < b.Value.ID()
}
