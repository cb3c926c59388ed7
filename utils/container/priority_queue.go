package container

import "container/heap"

// item 优先队列中单个元素
type item[T any] struct {
	Value    T       // 元素的值
	Priority float64 // 优先级（越小越优先）
	Tie      int64   // 优先级相同时的次序（越小越优先）
	index    int     // 项在堆中的索引，由 heap.Interface 方法维护
}

// priorityQueue 实现了 heap.Interface 的最小堆
type priorityQueue[T any] []*item[T]

func (pq priorityQueue[T]) Len() int { return len(pq) }

// Less 先比较优先级，再比较次序，保证出队顺序完全确定
func (pq priorityQueue[T]) Less(i, j int) bool {
	if pq[i].Priority != pq[j].Priority {
		return pq[i].Priority < pq[j].Priority
	}
	return pq[i].Tie < pq[j].Tie
}

func (pq priorityQueue[T]) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue[T]) Push(x any) {
	n := len(*pq)
	item := x.(*item[T])
	item.index = n
	*pq = append(*pq, item)
}

func (pq *priorityQueue[T]) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // 避免内存泄漏
	item.index = -1 // 为了安全起见
	*pq = old[0 : n-1]
	return item
}

// PriorityQueue 优先队列
// 功能：提供优先队列的公共接口，封装内部堆实现
// 说明：优先级相同的元素按Tie升序出队，用于实现确定性的最短路搜索
type PriorityQueue[T any] struct {
	queue priorityQueue[T] // 内部优先队列实现
}

// NewPriorityQueue 创建优先队列
func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{queue: make(priorityQueue[T], 0)}
}

// Len 获取当前队列长度
func (q *PriorityQueue[T]) Len() int {
	return len(q.queue)
}

// First 获取优先级最高的元素，不移除
func (q *PriorityQueue[T]) First() T {
	return q.queue[0].Value
}

// HeapPush 加入元素（堆操作）
// 参数：value-元素值，priority-优先级，tie-优先级相同时的次序
func (q *PriorityQueue[T]) HeapPush(value T, priority float64, tie int64) {
	heap.Push(&q.queue, &item[T]{
		Value:    value,
		Priority: priority,
		Tie:      tie,
	})
}

// HeapPop 弹出优先级最高的元素（堆操作）
func (q *PriorityQueue[T]) HeapPop() (value T, priority float64) {
	item := heap.Pop(&q.queue).(*item[T])
	return item.Value, item.Priority
}
