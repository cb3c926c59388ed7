package schedule

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/schema"
)

// Schedule 出行时刻表
// 功能：按 (出发时间, ID) 的顺序发放到期的出行，记录每个出行的状态并汇总全局统计
// 说明：每个出行恰好被发放一次；已结束的出行（完成/不可达/取消）状态不再改变
type Schedule struct {
	trips   []schema.Trip       // 按 (Depart, ID) 升序
	records []schema.TripRecord // 与trips一一对应
	index   map[int32]int       // 出行ID -> 下标
	next    int                 // 下一个待发放的下标
	stats   schema.Statistics
}

// New 创建时刻表
// 参数：trips-场景中的全部出行（ID唯一，已经过校验）
func New(trips []schema.Trip) *Schedule {
	s := &Schedule{
		trips: append([]schema.Trip(nil), trips...),
		index: make(map[int32]int, len(trips)),
	}
	sort.SliceStable(s.trips, func(i, j int) bool {
		a, b := s.trips[i], s.trips[j]
		if a.Depart != b.Depart {
			return a.Depart < b.Depart
		}
		return a.ID < b.ID
	})
	s.records = lo.Map(s.trips, func(t schema.Trip, i int) schema.TripRecord {
		s.index[t.ID] = i
		return schema.TripRecord{
			ID:        t.ID,
			Status:    schema.TripPending,
			Agent:     schema.NoID,
			SpawnStep: schema.NoID,
			EndStep:   schema.NoID,
		}
	})
	return s
}

// PopDue 取出出发时间不晚于t的全部待发放出行，按 (Depart, ID) 顺序
// 说明：已被取消的出行被跳过
func (s *Schedule) PopDue(t float64) []schema.Trip {
	var due []schema.Trip
	for ; s.next < len(s.trips) && s.trips[s.next].Depart <= t+1e-9; s.next++ {
		if s.records[s.next].Status != schema.TripPending {
			continue
		}
		due = append(due, s.trips[s.next])
	}
	return due
}

func (s *Schedule) get(id int32) (*schema.TripRecord, error) {
	i, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("no id %d in trip data", id)
	}
	return &s.records[i], nil
}

// Trip 根据ID获取出行
func (s *Schedule) Trip(id int32) (schema.Trip, error) {
	i, ok := s.index[id]
	if !ok {
		return schema.Trip{}, fmt.Errorf("no id %d in trip data", id)
	}
	return s.trips[i], nil
}

// Status 获取出行状态记录
func (s *Schedule) Status(id int32) (schema.TripRecord, error) {
	r, err := s.get(id)
	if err != nil {
		return schema.TripRecord{}, err
	}
	return *r, nil
}

// Start 出行已生成智能体
func (s *Schedule) Start(id, agent, step int32) {
	r, err := s.get(id)
	if err != nil {
		log.Panic(err)
	}
	r.Status = schema.TripActive
	r.Agent = agent
	r.SpawnStep = step
}

// Finish 出行完成，计入统计
// 参数：travelTime-出行耗时（秒），distance-行驶距离（米）
func (s *Schedule) Finish(id, step int32, travelTime, distance float64) {
	r, err := s.get(id)
	if err != nil {
		log.Panic(err)
	}
	r.Status = schema.TripCompleted
	r.EndStep = step
	s.stats.CompletedTrips++
	s.stats.TravelTime += travelTime
	s.stats.TravelDistance += distance
}

// Unreachable 出行在生成时不可达，不生成智能体
func (s *Schedule) Unreachable(id, step int32, reason string) {
	r, err := s.get(id)
	if err != nil {
		log.Panic(err)
	}
	r.Status = schema.TripUnreachable
	r.EndStep = step
	r.Reason = reason
	s.stats.UnreachableTrips++
}

// Cancel 取消尚未结束的出行
// 返回：取消前的状态；出行不存在或已结束时返回错误
func (s *Schedule) Cancel(id, step int32, reason string) (schema.TripStatus, error) {
	r, err := s.get(id)
	if err != nil {
		return "", err
	}
	if entity.IsFinished(r.Status) {
		return r.Status, fmt.Errorf("trip %d is already %s", id, r.Status)
	}
	prev := r.Status
	r.Status = schema.TripCancelled
	r.EndStep = step
	r.Reason = reason
	s.stats.CancelledTrips++
	return prev, nil
}

// Statistics 全局统计
func (s *Schedule) Statistics() schema.Statistics {
	return s.stats
}

// Records 全部出行的状态记录（副本），按 (Depart, ID) 升序
func (s *Schedule) Records() []schema.TripRecord {
	return append([]schema.TripRecord(nil), s.records...)
}

// Restore 从记录恢复出行状态与统计
// 说明：发放游标恢复到第一个仍处于待发放状态的出行
func (s *Schedule) Restore(records []schema.TripRecord, stats schema.Statistics) error {
	if len(records) != len(s.records) {
		return fmt.Errorf("snapshot has %d trips, scenario has %d", len(records), len(s.records))
	}
	for _, r := range records {
		i, ok := s.index[r.ID]
		if !ok {
			return fmt.Errorf("no id %d in trip data", r.ID)
		}
		s.records[i] = r
	}
	s.stats = stats
	s.next = len(s.records)
	for i, r := range s.records {
		if r.Status == schema.TripPending {
			s.next = i
			break
		}
	}
	return nil
}
