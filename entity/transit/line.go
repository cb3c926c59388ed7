package transit

import (
	"fmt"
	"slices"

	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/schema"
)

// Line 公交线路
// 功能：保存线路的有序站点、站间拼接而成的行驶路径与发车进度
type Line struct {
	id         int32
	name       string
	capacity   int32
	stops      []schema.Stop
	departures []float64

	path          []int32 // 从首站车道到末站车道的车道序列
	stopPathIndex []int32 // 第i站所在车道在path中的下标

	next int32 // 下一班次的下标
}

// newLine 创建线路并计算行驶路径
// 算法说明：对相邻两站求驾车最短路，各段首尾相接（后一段去掉与前一段重复的首个车道）
func newLine(base schema.TransitRoute, stops []schema.Stop, capacity int32, router entity.IRouter) (*Line, error) {
	l := &Line{
		id:            base.ID,
		name:          base.Name,
		capacity:      capacity,
		stops:         stops,
		departures:    slices.Clone(base.Departures),
		path:          []int32{stops[0].Lane},
		stopPathIndex: []int32{0},
	}
	slices.Sort(l.departures)
	for i := 1; i < len(stops); i++ {
		from := schema.Position{Lane: stops[i-1].Lane, S: stops[i-1].S}
		to := schema.Position{Lane: stops[i].Lane, S: stops[i].S}
		seg, _, err := router.Route(schema.ModeDrive, from, to)
		if err != nil {
			return nil, fmt.Errorf("route %d from stop %d to stop %d: %w", l.id, stops[i-1].ID, stops[i].ID, err)
		}
		l.path = append(l.path, seg[1:]...)
		l.stopPathIndex = append(l.stopPathIndex, int32(len(l.path)-1))
	}
	return l, nil
}

func (l *Line) ID() int32 {
	return l.id
}

func (l *Line) Capacity() int32 {
	return l.capacity
}

// Path 行驶路径的副本
func (l *Line) Path() []int32 {
	return slices.Clone(l.path)
}

func (l *Line) Stops() []schema.Stop {
	return l.stops
}

func (l *Line) StopPathIndex(i int) int32 {
	return l.stopPathIndex[i]
}

// hasStop 线路是否经过站点
func (l *Line) hasStop(stopID int32) bool {
	return slices.ContainsFunc(l.stops, func(s schema.Stop) bool { return s.ID == stopID })
}

func (l *Line) String() string {
	return fmt.Sprintf("Line{id=%d, name=%s, stops=%d, departures=%d}", l.id, l.name, len(l.stops), len(l.departures))
}
