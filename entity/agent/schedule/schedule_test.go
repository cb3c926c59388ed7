package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/microsim/schema"
)

func testTrips() []schema.Trip {
	return []schema.Trip{
		{ID: 3, Depart: 1},
		{ID: 1, Depart: 2},
		{ID: 2, Depart: 1},
		{ID: 4, Depart: 5},
	}
}

func ids(trips []schema.Trip) []int32 {
	out := make([]int32, len(trips))
	for i, t := range trips {
		out[i] = t.ID
	}
	return out
}

func TestPopDueOrder(t *testing.T) {
	s := New(testTrips())
	assert.Empty(t, s.PopDue(0.5))
	assert.Equal(t, []int32{2, 3, 1}, ids(s.PopDue(2)))
	// 每个出行只发放一次
	assert.Empty(t, s.PopDue(2))
	assert.Equal(t, []int32{4}, ids(s.PopDue(100)))
}

func TestLifecycleAndStatistics(t *testing.T) {
	s := New(testTrips())
	s.PopDue(1)
	s.Start(2, 2, 10)
	s.Unreachable(3, 10, "no path found")
	s.Finish(2, 30, 2.0, 15)

	r, err := s.Status(2)
	require.NoError(t, err)
	assert.Equal(t, schema.TripCompleted, r.Status)
	assert.Equal(t, int32(10), r.SpawnStep)
	assert.Equal(t, int32(30), r.EndStep)

	r, _ = s.Status(3)
	assert.Equal(t, schema.TripUnreachable, r.Status)
	assert.Equal(t, "no path found", r.Reason)

	st := s.Statistics()
	assert.Equal(t, int32(1), st.CompletedTrips)
	assert.Equal(t, int32(1), st.UnreachableTrips)
	assert.InDelta(t, 2.0, st.TravelTime, 1e-9)
	assert.InDelta(t, 15.0, st.TravelDistance, 1e-9)

	_, err = s.Status(99)
	assert.Error(t, err)
}

func TestCancel(t *testing.T) {
	s := New(testTrips())
	prev, err := s.Cancel(1, 0, "cancelled by user")
	require.NoError(t, err)
	assert.Equal(t, schema.TripPending, prev)
	// 已取消的出行不再发放
	assert.Equal(t, []int32{2, 3}, ids(s.PopDue(2)))
	_, err = s.Cancel(1, 0, "again")
	assert.Error(t, err)
	assert.Equal(t, int32(1), s.Statistics().CancelledTrips)
}

func TestRestore(t *testing.T) {
	s := New(testTrips())
	s.PopDue(1)
	s.Start(2, 2, 10)
	s.Start(3, 3, 10)
	records, stats := s.Records(), s.Statistics()

	s2 := New(testTrips())
	require.NoError(t, s2.Restore(records, stats))
	assert.Equal(t, records, s2.Records())
	assert.Equal(t, []int32{1}, ids(s2.PopDue(2)))

	assert.Error(t, s2.Restore(records[:1], stats))
}
