package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/schema"
	"github.com/tsinghua-fib-lab/microsim/utils/config"
)

// 行车道1->2->3经101/102，103是1->3的捷径，104由3回到1，106与101并行；4号车道孤立
// 人行道10经人行横道110到11，12孤立
func testNetwork() schema.Network {
	return schema.Network{
		Lanes: []schema.Lane{
			{ID: 1, Type: schema.LaneTypeDriving, Length: 100, MaxSpeed: 10},
			{ID: 2, Type: schema.LaneTypeDriving, Length: 100, MaxSpeed: 10},
			{ID: 3, Type: schema.LaneTypeDriving, Length: 100, MaxSpeed: 10},
			{ID: 4, Type: schema.LaneTypeDriving, Length: 100, MaxSpeed: 10},
			{ID: 10, Type: schema.LaneTypeWalking, Length: 50, MaxSpeed: 2},
			{ID: 11, Type: schema.LaneTypeWalking, Length: 50, MaxSpeed: 2},
			{ID: 12, Type: schema.LaneTypeWalking, Length: 50, MaxSpeed: 2},
		},
		Turns: []schema.Turn{
			{ID: 101, Intersection: 1, Type: schema.TurnStraight, From: 1, To: 2, Length: 10},
			{ID: 102, Intersection: 2, Type: schema.TurnStraight, From: 2, To: 3, Length: 10},
			{ID: 103, Intersection: 1, Type: schema.TurnLeft, From: 1, To: 3, Length: 10},
			{ID: 104, Intersection: 2, Type: schema.TurnUTurn, From: 3, To: 1, Length: 10},
			{ID: 106, Intersection: 1, Type: schema.TurnRight, From: 1, To: 2, Length: 10},
			{ID: 110, Intersection: 1, Type: schema.TurnCrosswalk, From: 10, To: 11, Length: 500},
		},
		Intersections: []schema.Intersection{
			{ID: 1, Control: schema.ControlUncontrolled},
			{ID: 2, Control: schema.ControlUncontrolled},
		},
		Stops: []schema.Stop{
			{ID: 1, Lane: 1, S: 20, WalkLane: 10, WalkS: 5},
			{ID: 2, Lane: 3, S: 80, WalkLane: 11, WalkS: 45},
		},
	}
}

func newTestRouter() *Router {
	return NewRouter(testNetwork(), config.NewRuntimeConfig(config.Config{}))
}

func TestRouteSameLaneAhead(t *testing.T) {
	r := newTestRouter()
	path, cost, err := r.Route(schema.ModeDrive, schema.Position{Lane: 1, S: 10}, schema.Position{Lane: 1, S: 50})
	require.NoError(t, err)
	assert.Equal(t, []int32{1}, path)
	assert.InDelta(t, 40*1.1, cost, 1e-9)
}

func TestRouteShortest(t *testing.T) {
	r := newTestRouter()
	path, cost, err := r.Route(schema.ModeDrive, schema.Position{Lane: 1, S: 0}, schema.Position{Lane: 3, S: 50})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 103, 3}, path)
	assert.InDelta(t, (100+10+50)*1.1, cost, 1e-9)
}

func TestRouteTieBreakByLaneID(t *testing.T) {
	r := newTestRouter()
	path, _, err := r.Route(schema.ModeDrive, schema.Position{Lane: 1, S: 0}, schema.Position{Lane: 2, S: 50})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 101, 2}, path)
}

func TestRouteSameLaneBehindLoops(t *testing.T) {
	r := newTestRouter()
	path, _, err := r.Route(schema.ModeDrive, schema.Position{Lane: 1, S: 50}, schema.Position{Lane: 1, S: 10})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 103, 3, 104, 1}, path)
}

func TestRouteWalkAndUnreachable(t *testing.T) {
	r := newTestRouter()
	leg, _, err := r.Walk(schema.Position{Lane: 10, S: 0}, schema.Position{Lane: 11, S: 5})
	require.NoError(t, err)
	assert.Equal(t, schema.LegWalk, leg.Kind)
	assert.Equal(t, []int32{10, 110, 11}, leg.Path)
	assert.Equal(t, []bool{false, false, false}, leg.Contraflow)

	_, _, err = r.Route(schema.ModeDrive, schema.Position{Lane: 1, S: 0}, schema.Position{Lane: 4, S: 0})
	assert.ErrorIs(t, err, entity.ErrNoPathFound)
	// 方式与车道类型不符
	_, _, err = r.Route(schema.ModeDrive, schema.Position{Lane: 1, S: 0}, schema.Position{Lane: 11, S: 0})
	assert.ErrorIs(t, err, entity.ErrNoPathFound)
	_, _, err = r.Walk(schema.Position{Lane: 12, S: 0}, schema.Position{Lane: 11, S: 0})
	assert.ErrorIs(t, err, entity.ErrNoPathFound)
	_, _, err = r.Walk(schema.Position{Lane: 1, S: 0}, schema.Position{Lane: 11, S: 0})
	assert.ErrorIs(t, err, entity.ErrNoPathFound)
	_, _, err = r.Route(schema.ModeWalk, schema.Position{Lane: 10, S: 0}, schema.Position{Lane: 11, S: 5})
	assert.Error(t, err)
}

func TestWalkContraflow(t *testing.T) {
	r := newTestRouter()
	// 同一人行道上向后走
	back, backCost, err := r.Walk(schema.Position{Lane: 11, S: 40}, schema.Position{Lane: 11, S: 35})
	require.NoError(t, err)
	assert.Equal(t, []int32{11}, back.Path)
	assert.Equal(t, []bool{true}, back.Contraflow)
	_, aheadCost, err := r.Walk(schema.Position{Lane: 11, S: 35}, schema.Position{Lane: 11, S: 40})
	require.NoError(t, err)
	assert.InDelta(t, aheadCost, backCost, 1e-9)

	// 逆向经人行横道回到人行道10
	leg, cost, err := r.Walk(schema.Position{Lane: 11, S: 5}, schema.Position{Lane: 10, S: 20})
	require.NoError(t, err)
	assert.Equal(t, []int32{11, 110, 10}, leg.Path)
	assert.Equal(t, []bool{true, true, true}, leg.Contraflow)
	_, forwardCost, err := r.Walk(schema.Position{Lane: 10, S: 20}, schema.Position{Lane: 11, S: 5})
	require.NoError(t, err)
	assert.InDelta(t, forwardCost, cost, 1e-9)
}
