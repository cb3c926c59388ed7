package container_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/microsim/utils/container"
)

func TestPriorityQueueOrder(t *testing.T) {
	q := container.NewPriorityQueue[string]()
	q.HeapPush("c", 3, 0)
	q.HeapPush("a", 1, 0)
	q.HeapPush("b", 2, 0)
	assert.Equal(t, "a", q.First())

	got := []string{}
	for q.Len() > 0 {
		v, _ := q.HeapPop()
		got = append(got, v)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestPriorityQueueTieBreak(t *testing.T) {
	q := container.NewPriorityQueue[int32]()
	q.HeapPush(9, 1, 9)
	q.HeapPush(4, 1, 4)
	q.HeapPush(7, 1, 7)
	q.HeapPush(1, 0.5, 100)

	got := []int32{}
	for q.Len() > 0 {
		v, _ := q.HeapPop()
		got = append(got, v)
	}
	assert.Equal(t, []int32{1, 4, 7, 9}, got)
}
