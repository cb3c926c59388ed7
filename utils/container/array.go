package container

// IIncrementalItem 支持增量更新的元素接口
// 功能：用于增量数组中元素的索引管理，确保元素能够正确跟踪自己在数组中的位置
type IIncrementalItem interface {
	Index() int         // 获取元素的索引
	SetIndex(index int) // 设置元素的索引
}

// IncrementalItemBase 增量元素基类
// 说明：可以作为其他结构体的嵌入字段，快速实现IIncrementalItem接口
type IncrementalItemBase struct {
	index int // 元素在数组中的索引
}

// Index 获取元素的索引
func (b *IncrementalItemBase) Index() int {
	return b.index
}

// SetIndex 设置元素的索引
func (b *IncrementalItemBase) SetIndex(index int) {
	b.index = index
}

// IncrementalArray 增量数组
// 功能：在一步之内保持元素集合不变，增删操作在Prepare时统一生效
// 说明：数组内元素的顺序不保证，需要确定性顺序的调用方应自行排序
type IncrementalArray[T IIncrementalItem] struct {
	data   []T // 主数据数组
	add    []T // 待添加的元素列表
	remove []T // 待删除的元素列表
}

// NewIncrementalArray 创建增量数组
func NewIncrementalArray[T IIncrementalItem]() *IncrementalArray[T] {
	return &IncrementalArray[T]{
		data:   make([]T, 0),
		add:    make([]T, 0),
		remove: make([]T, 0),
	}
}

// Len 获取当前数组长度
func (a *IncrementalArray[T]) Len() int {
	return len(a.data)
}

// Data 获取已生效的数据
func (a *IncrementalArray[T]) Data() []T {
	return a.data
}

// Add 增加元素（等到Prepare时才会真正增加）
func (a *IncrementalArray[T]) Add(value T) {
	a.add = append(a.add, value)
}

// Remove 删除元素（等到Prepare时才会真正删除）
func (a *IncrementalArray[T]) Remove(value T) {
	a.remove = append(a.remove, value)
}

// Reset 清空全部数据与待处理操作
func (a *IncrementalArray[T]) Reset() {
	a.data = a.data[:0]
	a.add = a.add[:0]
	a.remove = a.remove[:0]
}

// Prepare 执行增量操作
// 算法说明：
// 1. 被删除的位置优先由新增元素填充
// 2. 新增元素有剩余时追加到数组末尾
// 3. 删除位置有剩余时，从数组末尾依次搬移元素填补
func (a *IncrementalArray[T]) Prepare() {
	n := min(len(a.add), len(a.remove))
	for i := 0; i < n; i++ {
		ind := a.remove[i].Index()
		a.data[ind] = a.add[i]
		a.data[ind].SetIndex(ind)
	}
	for _, x := range a.add[n:] {
		x.SetIndex(len(a.data))
		a.data = append(a.data, x)
	}
	for _, x := range a.remove[n:] {
		ind := x.Index()
		last := len(a.data) - 1
		if ind != last {
			a.data[ind] = a.data[last]
			a.data[ind].SetIndex(ind)
		}
		a.data = a.data[:last]
	}
	a.add = a.add[:0]
	a.remove = a.remove[:0]
}
