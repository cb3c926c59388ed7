package task

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/schema"
	"github.com/tsinghua-fib-lab/microsim/utils/config"
	"github.com/tsinghua-fib-lab/microsim/utils/store"
)

// testNetwork 两条相交的车流：车道1经转向101到车道2，车道3经转向102到车道4，
// 路口9为停车让行；车道5孤立；人行道11与12不连通，只能乘坐公交往来
func testNetwork() schema.Network {
	return schema.Network{
		Lanes: []schema.Lane{
			{ID: 1, Type: schema.LaneTypeDriving, Length: 200, MaxSpeed: 10},
			{ID: 2, Type: schema.LaneTypeDriving, Length: 200, MaxSpeed: 10},
			{ID: 3, Type: schema.LaneTypeDriving, Length: 100, MaxSpeed: 10},
			{ID: 4, Type: schema.LaneTypeDriving, Length: 100, MaxSpeed: 10},
			{ID: 5, Type: schema.LaneTypeDriving, Length: 50, MaxSpeed: 10},
			{ID: 11, Type: schema.LaneTypeWalking, Length: 200},
			{ID: 12, Type: schema.LaneTypeWalking, Length: 200},
		},
		Turns: []schema.Turn{
			{ID: 101, Intersection: 9, Type: schema.TurnStraight, From: 1, To: 2, Length: 20, Conflicts: []int32{102}},
			{ID: 102, Intersection: 9, Type: schema.TurnStraight, From: 3, To: 4, Length: 20},
		},
		Intersections: []schema.Intersection{
			{ID: 9, Control: schema.ControlStopSign},
		},
		Stops: []schema.Stop{
			{ID: 1, Lane: 1, S: 20, WalkLane: 11, WalkS: 20},
			{ID: 2, Lane: 2, S: 150, WalkLane: 12, WalkS: 150},
		},
	}
}

func drive(id int32, depart float64, from, to schema.Position) schema.Trip {
	return schema.Trip{ID: id, Depart: depart, Origin: from, Destination: to, Mode: schema.ModeDrive}
}

func pos(lane int32, s float64) schema.Position {
	return schema.Position{Lane: lane, S: s}
}

// streams 两个方向各3辆车穿过停车让行路口
func streams() []schema.Trip {
	trips := make([]schema.Trip, 0, 6)
	for i := range int32(3) {
		trips = append(trips,
			drive(i+1, float64(3*i), pos(1, 10), pos(2, 100)),
			drive(i+4, float64(3*i), pos(3, 10), pos(4, 50)),
		)
	}
	return trips
}

// transitScenario 行人从车道11乘7路公交到车道12
func transitScenario() schema.Scenario {
	return schema.Scenario{
		Trips: []schema.Trip{
			{ID: 1, Depart: 0, Origin: pos(11, 18), Destination: pos(12, 180), Mode: schema.ModeTransit},
		},
		TransitRoutes: []schema.TransitRoute{
			{ID: 7, Stops: []int32{1, 2}, Departures: []float64{20}},
		},
	}
}

func newTestContext(t *testing.T, scenario schema.Scenario) *Context {
	t.Helper()
	ctx := NewContext(config.Config{
		Control: config.Control{
			Step:         config.ControlStep{Total: 5000},
			HistoryTicks: 10,
		},
	})
	require.NoError(t, ctx.Load(testNetwork(), scenario))
	return ctx
}

// runUntil 逐步推进直到done返回true，每步之后调用check
func runUntil(t *testing.T, ctx *Context, maxSteps int, check func(views []schema.AgentView), done func() bool) {
	t.Helper()
	for range maxSteps {
		require.NoError(t, ctx.Step(1))
		if check != nil {
			views, err := ctx.AgentsAt(ctx.Now())
			require.NoError(t, err)
			check(views)
		}
		if done() {
			return
		}
	}
	t.Fatalf("not done after %d steps", maxSteps)
}

func tripsDone(ctx *Context, ids ...int32) func() bool {
	return func() bool {
		for _, id := range ids {
			r, err := ctx.TripStatus(id)
			if err != nil || r.Status == schema.TripPending || r.Status == schema.TripActive {
				return false
			}
		}
		return true
	}
}

func find(views []schema.AgentView, id int32) (schema.AgentView, bool) {
	for _, v := range views {
		if v.ID == id {
			return v, true
		}
	}
	return schema.AgentView{}, false
}

func TestTwoVehiclesOneLane(t *testing.T) {
	ctx := newTestContext(t, schema.Scenario{Trips: []schema.Trip{
		drive(1, 0, pos(3, 30), pos(3, 90)),
		drive(2, 0, pos(3, 10), pos(3, 80)),
	}})
	both := 0
	runUntil(t, ctx, 2000, func(views []schema.AgentView) {
		leader, ok1 := find(views, 1)
		follower, ok2 := find(views, 2)
		if ok1 && ok2 && leader.Lane == 3 && follower.Lane == 3 {
			both++
			assert.GreaterOrEqual(t, leader.S-5-follower.S, 2-entity.EPS, "gap at step %d", ctx.Now())
		}
	}, tripsDone(ctx, 1, 2))

	assert.Positive(t, both)
	for _, id := range []int32{1, 2} {
		r, err := ctx.TripStatus(id)
		require.NoError(t, err)
		assert.Equal(t, schema.TripCompleted, r.Status)
	}
	stats := ctx.Statistics()
	assert.Equal(t, int32(2), stats.CompletedTrips)
	assert.InDelta(t, 60+70, stats.TravelDistance, 1e-6)
	assert.Positive(t, stats.TravelTime)
}

func TestSameEntryArrivesInSpawnOrder(t *testing.T) {
	// 同一入口，间隔5步出发
	ctx := newTestContext(t, schema.Scenario{Trips: []schema.Trip{
		drive(1, 0, pos(1, 0), pos(1, 150)),
		drive(2, 0.5, pos(1, 0), pos(1, 150)),
	}})
	runUntil(t, ctx, 3000, func(views []schema.AgentView) {
		first, ok1 := find(views, 1)
		second, ok2 := find(views, 2)
		if ok1 && ok2 && first.Lane == 1 && second.Lane == 1 {
			assert.GreaterOrEqual(t, first.S-5-second.S, 2-entity.EPS, "gap at step %d", ctx.Now())
		}
	}, tripsDone(ctx, 1, 2))

	r1, err := ctx.TripStatus(1)
	require.NoError(t, err)
	r2, err := ctx.TripStatus(2)
	require.NoError(t, err)
	assert.Equal(t, schema.TripCompleted, r1.Status)
	assert.Equal(t, schema.TripCompleted, r2.Status)
	assert.Less(t, r1.SpawnStep, r2.SpawnStep)
	assert.Less(t, r1.EndStep, r2.EndStep)
}

// crosswalkNetwork 在testNetwork上增加人行道21、22与无控制路口8的人行横道121（21->22）
func crosswalkNetwork() schema.Network {
	n := testNetwork()
	n.Lanes = append(n.Lanes,
		schema.Lane{ID: 21, Type: schema.LaneTypeWalking, Length: 50},
		schema.Lane{ID: 22, Type: schema.LaneTypeWalking, Length: 50},
	)
	n.Turns = append(n.Turns,
		schema.Turn{ID: 121, Intersection: 8, Type: schema.TurnCrosswalk, From: 21, To: 22, Length: 10},
	)
	n.Intersections = append(n.Intersections, schema.Intersection{ID: 8, Control: schema.ControlUncontrolled})
	return n
}

func TestWalkAgainstLaneDirection(t *testing.T) {
	walk := func(id int32, from, to schema.Position) schema.Trip {
		return schema.Trip{ID: id, Origin: from, Destination: to, Mode: schema.ModeWalk}
	}
	ctx := NewContext(config.Config{Control: config.Control{Step: config.ControlStep{Total: 5000}}})
	require.NoError(t, ctx.Load(crosswalkNetwork(), schema.Scenario{Trips: []schema.Trip{
		walk(1, pos(11, 100), pos(11, 95)),
		walk(2, pos(22, 10), pos(21, 40)),
	}}))
	crossed := false
	runUntil(t, ctx, 3000, func(views []schema.AgentView) {
		if v, ok := find(views, 2); ok && v.Lane == 121 {
			crossed = true
		}
	}, tripsDone(ctx, 1, 2))

	assert.True(t, crossed)
	for _, id := range []int32{1, 2} {
		r, err := ctx.TripStatus(id)
		require.NoError(t, err)
		assert.Equal(t, schema.TripCompleted, r.Status, "trip %d", id)
	}
	assert.InDelta(t, 5+10+10+10, ctx.Statistics().TravelDistance, 1e-6)
	j, err := ctx.IntersectionDetail(8)
	require.NoError(t, err)
	assert.Empty(t, j.Reservations)
}

func TestStopSignCrossingStreams(t *testing.T) {
	ctx := newTestContext(t, schema.Scenario{Trips: streams()})
	runUntil(t, ctx, 4000, func(views []schema.AgentView) {
		on101, on102 := false, false
		for _, v := range views {
			on101 = on101 || v.Lane == 101
			on102 = on102 || v.Lane == 102
		}
		assert.False(t, on101 && on102, "conflicting turns occupied at step %d", ctx.Now())

		j, err := ctx.IntersectionDetail(9)
		require.NoError(t, err)
		turns := make(map[int32]bool)
		for _, r := range j.Reservations {
			turns[r.Turn] = true
		}
		assert.False(t, turns[101] && turns[102], "conflicting reservations at step %d", ctx.Now())
	}, tripsDone(ctx, 1, 2, 3, 4, 5, 6))

	assert.Equal(t, int32(6), ctx.Statistics().CompletedTrips)
	j, err := ctx.IntersectionDetail(9)
	require.NoError(t, err)
	assert.Empty(t, j.Reservations)
	assert.Empty(t, j.Waiting)
}

func TestStopSignFullStopAtLine(t *testing.T) {
	// 静止出生在停止线前9米
	ctx := newTestContext(t, schema.Scenario{Trips: []schema.Trip{drive(1, 0, pos(1, 191), pos(2, 50))}})
	stopped, entered := false, false
	runUntil(t, ctx, 2000, func(views []schema.AgentView) {
		v, ok := find(views, 1)
		if !ok {
			return
		}
		if v.Lane == 1 && v.S >= 200-entity.EPS && v.V == 0 {
			stopped = true
		}
		if v.Lane == 101 && !entered {
			entered = true
			assert.True(t, stopped, "entered the turn at step %d without stopping at the line", ctx.Now())
		}
	}, tripsDone(ctx, 1))
	assert.True(t, entered)
}

func TestUnreachableTrip(t *testing.T) {
	ctx := newTestContext(t, schema.Scenario{Trips: []schema.Trip{
		drive(1, 0, pos(1, 10), pos(5, 20)),
		drive(2, 0, pos(3, 10), pos(3, 50)),
	}})
	require.NoError(t, ctx.Step(1))

	r, err := ctx.TripStatus(1)
	require.NoError(t, err)
	assert.Equal(t, schema.TripUnreachable, r.Status)
	assert.Contains(t, r.Reason, entity.ErrNoPathFound.Error())
	_, err = ctx.AgentDetail(1)
	assert.Error(t, err)

	runUntil(t, ctx, 2000, nil, tripsDone(ctx, 2))
	stats := ctx.Statistics()
	assert.Equal(t, int32(1), stats.UnreachableTrips)
	assert.Equal(t, int32(1), stats.CompletedTrips)
}

func TestTransitRide(t *testing.T) {
	ctx := newTestContext(t, transitScenario())
	boarded := false
	runUntil(t, ctx, 4000, func(views []schema.AgentView) {
		v, ok := find(views, 1)
		if !ok || v.State != schema.StateOnBoard {
			return
		}
		boarded = true
		d, err := ctx.AgentDetail(1)
		require.NoError(t, err)
		assert.Equal(t, schema.TransitIDStart, d.Vehicle)
		bus, err := ctx.AgentDetail(schema.TransitIDStart)
		require.NoError(t, err)
		assert.Equal(t, []int32{1}, bus.Manifest)
	}, tripsDone(ctx, 1))

	assert.True(t, boarded)
	r, err := ctx.TripStatus(1)
	require.NoError(t, err)
	assert.Equal(t, schema.TripCompleted, r.Status)
	// 步行2米，乘车160+20+150米，步行30米
	assert.InDelta(t, 382, ctx.Statistics().TravelDistance, 1e-6)
}

func TestEventStream(t *testing.T) {
	ctx := newTestContext(t, transitScenario())
	var trace bytes.Buffer
	ctx.SetTrace(&trace)
	runUntil(t, ctx, 4000, nil, tripsDone(ctx, 1))

	var passenger, bus []schema.Event
	dec := json.NewDecoder(&trace)
	for dec.More() {
		var frame schema.Frame
		require.NoError(t, dec.Decode(&frame))
		for _, e := range frame.Events {
			switch e.Agent {
			case 1:
				passenger = append(passenger, e)
			case schema.TransitIDStart:
				bus = append(bus, e)
			}
		}
	}
	kinds := func(events []schema.Event) []schema.EventKind {
		out := make([]schema.EventKind, 0, len(events))
		for _, e := range events {
			out = append(out, e.Kind)
		}
		return out
	}
	require.Equal(t, []schema.EventKind{
		schema.EventSpawn, schema.EventBoard, schema.EventAlight, schema.EventFinish,
	}, kinds(passenger))
	assert.Equal(t, int32(11), passenger[0].Lane)
	assert.Equal(t, int32(1), passenger[1].Stop)
	assert.Equal(t, schema.TransitIDStart, passenger[1].Vehicle)
	assert.Equal(t, int32(2), passenger[2].Stop)
	assert.Equal(t, int32(1), passenger[3].Trip)

	require.NotEmpty(t, bus)
	assert.Equal(t, schema.EventSpawn, bus[0].Kind)
	stops := []int32{}
	for _, e := range bus {
		if e.Kind == schema.EventArriveStop {
			stops = append(stops, e.Stop)
		}
	}
	assert.Equal(t, []int32{1, 2}, stops)
	assert.Contains(t, kinds(bus), schema.EventEnterLane)
}

func TestDeterminism(t *testing.T) {
	scenario := schema.Scenario{Trips: streams()}
	a := newTestContext(t, scenario)
	b := newTestContext(t, scenario)
	for range 4 {
		require.NoError(t, a.Step(100))
		require.NoError(t, b.Step(100))
		sa, err := a.Save()
		require.NoError(t, err)
		sb, err := b.Save()
		require.NoError(t, err)
		assert.Equal(t, sa, sb)
	}
}

func TestSaveRestoreContinuesIdentically(t *testing.T) {
	scenario := transitScenario()
	scenario.Trips = append(scenario.Trips, streams()...)
	scenario.Trips[0].ID = 100 // 避开车辆出行的ID

	a := newTestContext(t, scenario)
	require.NoError(t, a.Step(150))
	snap, err := a.Save()
	require.NoError(t, err)

	s, err := store.NewFileStore(t.TempDir(), "test")
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), snap))
	loaded, err := s.Latest(context.Background())
	require.NoError(t, err)

	var traceA, traceB bytes.Buffer
	a.SetTrace(&traceA)
	require.NoError(t, a.Step(600))

	b := newTestContext(t, scenario)
	require.NoError(t, b.Restore(loaded))
	assert.Equal(t, int32(150), b.Now())
	b.SetTrace(&traceB)
	require.NoError(t, b.Step(600))

	assert.NotZero(t, traceA.Len())
	assert.Equal(t, traceA.String(), traceB.String())
	assert.Equal(t, a.Statistics(), b.Statistics())
}

func TestCancel(t *testing.T) {
	ctx := newTestContext(t, schema.Scenario{Trips: []schema.Trip{
		drive(1, 0, pos(3, 10), pos(3, 90)),
		drive(2, 100, pos(1, 10), pos(2, 100)),
	}})
	require.NoError(t, ctx.Step(20))

	require.NoError(t, ctx.CancelTrip(2))
	r, err := ctx.TripStatus(2)
	require.NoError(t, err)
	assert.Equal(t, schema.TripCancelled, r.Status)

	require.NoError(t, ctx.CancelTrip(1))
	r, err = ctx.TripStatus(1)
	require.NoError(t, err)
	assert.Equal(t, schema.TripCancelled, r.Status)
	assert.Error(t, ctx.CancelTrip(1))
	assert.Error(t, ctx.CancelAgent(1))

	snap, err := ctx.Save()
	require.NoError(t, err)
	assert.Empty(t, snap.Agents)
	for _, l := range snap.Lanes {
		assert.Empty(t, l.Vehicles, "lane %d", l.ID)
	}
	assert.Equal(t, int32(2), snap.Statistics.CancelledTrips)

	require.NoError(t, ctx.Step(1200))
	assert.Empty(t, ctx.agentManager.Views())
	assert.Equal(t, int32(0), ctx.Statistics().CompletedTrips)
}

func TestSeedOffsetPerContext(t *testing.T) {
	scenario := schema.Scenario{Trips: []schema.Trip{
		{ID: 1, Origin: pos(11, 10), Destination: pos(11, 100), Mode: schema.ModeWalk},
	}}
	newContext := func(offset uint64) *Context {
		return NewContext(config.Config{Control: config.Control{Step: config.ControlStep{Total: 5000}, SeedOffset: offset}})
	}
	walkSpeed := func(ctx *Context) float64 {
		require.NoError(t, ctx.Load(testNetwork(), scenario))
		require.NoError(t, ctx.Step(1))
		d, err := ctx.AgentDetail(1)
		require.NoError(t, err)
		return d.WalkSpeed
	}
	// 两个上下文同时存在，各自使用自己的偏移量
	a, b := newContext(0), newContext(3)
	speedA, speedB := walkSpeed(a), walkSpeed(b)
	assert.NotEqual(t, speedA, speedB)
	assert.Equal(t, speedA, walkSpeed(newContext(0)))
	assert.Equal(t, speedB, walkSpeed(newContext(3)))
}

func TestHistory(t *testing.T) {
	ctx := newTestContext(t, schema.Scenario{Trips: []schema.Trip{drive(1, 0, pos(3, 10), pos(3, 90))}})
	require.NoError(t, ctx.Step(30))

	views, err := ctx.AgentsAt(25)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, int32(1), views[0].ID)

	_, err = ctx.AgentsAt(19)
	assert.ErrorIs(t, err, ErrStepEvicted)
	_, err = ctx.AgentsAt(31)
	assert.ErrorIs(t, err, ErrFutureStep)
}

func TestLoadAndFailure(t *testing.T) {
	ctx := NewContext(config.Config{})
	assert.ErrorIs(t, ctx.Step(1), ErrNotLoaded)

	var loadErr *entity.ScenarioLoadError
	err := ctx.Load(testNetwork(), schema.Scenario{Trips: []schema.Trip{drive(1, 0, pos(42, 0), pos(1, 10))}})
	require.True(t, errors.As(err, &loadErr))
	assert.ErrorIs(t, ctx.Step(1), ErrNotLoaded)

	require.NoError(t, ctx.Load(testNetwork(), schema.Scenario{Trips: streams()}))
	require.NoError(t, ctx.Step(10))
	snap, err := ctx.Save()
	require.NoError(t, err)
	snap.Lanes = append(snap.Lanes, schema.LaneRecord{ID: 3, Vehicles: []int32{404}})
	failed := ctx.Restore(snap)
	require.Error(t, failed)
	assert.Equal(t, failed, ctx.Step(1))
	assert.Equal(t, failed, ctx.Step(1))
}
