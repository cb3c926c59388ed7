package transit

import (
	"slices"

	"github.com/tsinghua-fib-lab/microsim/schema"
)

// Stop 公交站运行时数据
type Stop struct {
	base    schema.Stop
	waiting []int32 // 候车乘客，按到站顺序
}

func newStop(base schema.Stop) *Stop {
	return &Stop{base: base, waiting: make([]int32, 0)}
}

// add 乘客到站，重复到站是程序错误
func (s *Stop) add(id int32) {
	if slices.Contains(s.waiting, id) {
		log.Panicf("passenger %d already waits at stop %d", id, s.base.ID)
	}
	s.waiting = append(s.waiting, id)
}

// remove 乘客离开候车队列，其余乘客顺序不变
func (s *Stop) remove(id int32) bool {
	n := len(s.waiting)
	s.waiting = slices.DeleteFunc(s.waiting, func(x int32) bool { return x == id })
	return len(s.waiting) != n
}

// take 按到站顺序取出至多n个满足条件的乘客
func (s *Stop) take(n int, match func(id int32) bool) []int32 {
	taken := make([]int32, 0)
	kept := s.waiting[:0]
	for _, id := range s.waiting {
		if len(taken) < n && match(id) {
			taken = append(taken, id)
		} else {
			kept = append(kept, id)
		}
	}
	s.waiting = kept
	return taken
}

func (s *Stop) record() schema.StopRecord {
	return schema.StopRecord{ID: s.base.ID, Waiting: slices.Clone(s.waiting)}
}
