package junction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/microsim/clock"
	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/entity/lane"
	"github.com/tsinghua-fib-lab/microsim/schema"
	"github.com/tsinghua-fib-lab/microsim/utils/config"
)

type testContext struct {
	entity.ITaskContext
	clock *clock.Clock
	rc    *config.RuntimeConfig
}

func (c *testContext) Clock() *clock.Clock                  { return c.clock }
func (c *testContext) RuntimeConfig() *config.RuntimeConfig { return c.rc }

type testAgent struct {
	entity.IAgent
	id int32
	v  float64
}

func (a *testAgent) ID() int32  { return a.id }
func (a *testAgent) V() float64 { return a.v }

// 路口9：101(1->3)与102(2->4)交叉冲突，104(2->3)与101合流，103(1->5)去向容量为1
func testNetwork(control schema.ControlType, phases []schema.Phase) schema.Network {
	return schema.Network{
		Lanes: []schema.Lane{
			{ID: 1, Type: schema.LaneTypeDriving, Length: 100, MaxSpeed: 10},
			{ID: 2, Type: schema.LaneTypeDriving, Length: 100, MaxSpeed: 10},
			{ID: 3, Type: schema.LaneTypeDriving, Length: 100, MaxSpeed: 10},
			{ID: 4, Type: schema.LaneTypeDriving, Length: 100, MaxSpeed: 10},
			{ID: 5, Type: schema.LaneTypeDriving, Length: 7, MaxSpeed: 10},
			{ID: 6, Type: schema.LaneTypeWalking, Length: 20, MaxSpeed: 2},
			{ID: 7, Type: schema.LaneTypeWalking, Length: 20, MaxSpeed: 2},
		},
		Turns: []schema.Turn{
			{ID: 101, Intersection: 9, Type: schema.TurnStraight, From: 1, To: 3, Length: 20, Conflicts: []int32{102}},
			{ID: 102, Intersection: 9, Type: schema.TurnStraight, From: 2, To: 4, Length: 20},
			{ID: 103, Intersection: 9, Type: schema.TurnLeft, From: 1, To: 5, Length: 20},
			{ID: 104, Intersection: 9, Type: schema.TurnRight, From: 2, To: 3, Length: 20},
			{ID: 105, Intersection: 9, Type: schema.TurnCrosswalk, From: 6, To: 7, Length: 10, Conflicts: []int32{106, 102}},
			{ID: 106, Intersection: 9, Type: schema.TurnCrosswalk, From: 7, To: 6, Length: 10},
		},
		Intersections: []schema.Intersection{
			{ID: 9, Control: control, Phases: phases},
		},
	}
}

func setup(t *testing.T, control schema.ControlType, phases []schema.Phase) (*testContext, *lane.LaneManager, *JunctionManager) {
	t.Helper()
	rc := config.NewRuntimeConfig(config.Config{})
	ctx := &testContext{clock: clock.New(rc.C.Step), rc: rc}
	network := testNetwork(control, phases)
	lm := lane.NewManager(ctx)
	lm.Init(network)
	jm := NewManager(ctx)
	jm.Init(network, lm)
	return ctx, lm, jm
}

func TestBuildConflicts(t *testing.T) {
	c := BuildConflicts(testNetwork(schema.ControlUncontrolled, nil).Turns)
	assert.True(t, c[[2]int32{101, 102}])
	assert.True(t, c[[2]int32{102, 101}])
	assert.True(t, c[[2]int32{101, 104}]) // 合流
	assert.True(t, c[[2]int32{102, 105}])
	assert.False(t, c[[2]int32{101, 103}]) // 同一来源
	assert.False(t, c[[2]int32{105, 106}]) // 人行横道之间
	assert.False(t, c[[2]int32{101, 101}])
}

func TestUncontrolledArrivalOrder(t *testing.T) {
	_, lm, jm := setup(t, schema.ControlUncontrolled, nil)
	j := jm.Get(9)
	a, b := &testAgent{id: 1, v: 5}, &testAgent{id: 2, v: 5}

	require.NoError(t, j.RequestTurn(a, lm.Get(101)))
	assert.Equal(t, int32(1), lm.Get(101).Reserved())
	assert.Equal(t, int32(1), lm.Get(3).Reserved())
	// 与已批准的预约冲突
	assert.ErrorIs(t, j.RequestTurn(b, lm.Get(102)), entity.ErrTurnDenied)
	// 重复申请返回已有预约
	assert.NoError(t, j.RequestTurn(a, lm.Get(101)))
	assert.Error(t, j.RequestTurn(a, lm.Get(103)))

	r, err := jm.Record(9)
	require.NoError(t, err)
	require.Len(t, r.Reservations, 1)
	require.Len(t, r.Waiting, 1)
	assert.Equal(t, int32(2), r.Waiting[0].Agent)

	j.Enter(1)
	lm.Get(101).Unreserve() // 进入转向车道时由车道消耗
	j.Release(1)
	lm.Get(3).Unreserve()
	assert.False(t, j.HasReservation(1))
	require.NoError(t, j.RequestTurn(b, lm.Get(102)))
	assert.True(t, j.HasReservation(2))
	require.NoError(t, jm.Check())
}

func TestWaitingQueueOrder(t *testing.T) {
	_, lm, jm := setup(t, schema.ControlUncontrolled, nil)
	j := jm.Get(9)
	a, b, c := &testAgent{id: 1}, &testAgent{id: 2}, &testAgent{id: 3}

	// c占用104，与101冲突
	require.NoError(t, j.RequestTurn(c, lm.Get(104)))
	// a先到，申请101
	assert.ErrorIs(t, j.RequestTurn(a, lm.Get(101)), entity.ErrTurnDenied)
	// b后到，申请102：102与104不冲突，但与更早到达的a(101)冲突
	assert.ErrorIs(t, j.RequestTurn(b, lm.Get(102)), entity.ErrTurnDenied)

	j.Cancel(3)
	assert.Equal(t, int32(0), lm.Get(104).Reserved())
	assert.Equal(t, int32(0), lm.Get(3).Reserved())
	// b在本步先于a重新申请，仍要让行
	assert.ErrorIs(t, j.RequestTurn(b, lm.Get(102)), entity.ErrTurnDenied)
	require.NoError(t, j.RequestTurn(a, lm.Get(101)))
	assert.ErrorIs(t, j.RequestTurn(b, lm.Get(102)), entity.ErrTurnDenied)
}

func TestStopSign(t *testing.T) {
	_, lm, jm := setup(t, schema.ControlStopSign, nil)
	j := jm.Get(9)
	a := &testAgent{id: 1, v: 3}

	// 未停稳，不排队
	assert.ErrorIs(t, j.RequestTurn(a, lm.Get(101)), entity.ErrTurnDenied)
	r, _ := jm.Record(9)
	assert.Empty(t, r.Waiting)

	a.v = 0
	require.NoError(t, j.RequestTurn(a, lm.Get(101)))
	// 行人过街不要求停稳
	require.NoError(t, j.RequestTurn(&testAgent{id: 2, v: 1.3}, lm.Get(106)))
}

func TestCapacityDenied(t *testing.T) {
	_, lm, jm := setup(t, schema.ControlUncontrolled, nil)
	j := jm.Get(9)
	require.Equal(t, int32(1), lm.Get(5).Capacity())

	require.NoError(t, j.RequestTurn(&testAgent{id: 1}, lm.Get(103)))
	// 5号车道的唯一容量已预留
	assert.ErrorIs(t, j.RequestTurn(&testAgent{id: 2}, lm.Get(103)), entity.ErrTurnDenied)
	j.Cancel(1)
	assert.Equal(t, int32(0), lm.Get(5).Reserved())
	assert.Equal(t, int32(0), lm.Get(103).Reserved())
	require.NoError(t, j.RequestTurn(&testAgent{id: 2}, lm.Get(103)))
}

func TestSignalPhases(t *testing.T) {
	phases := []schema.Phase{
		{Protected: []int32{101, 103}, Yield: []int32{104}, Duration: 10},
		{Protected: []int32{102, 104}, Duration: 10},
	}
	ctx, lm, jm := setup(t, schema.ControlSignal, phases)
	j := jm.Get(9)

	assert.Equal(t, entity.LightGreen, lm.Get(101).Light())
	assert.Equal(t, entity.LightRed, lm.Get(102).Light())
	assert.Equal(t, entity.LightYield, lm.Get(104).Light())
	// 未出现在相位中的转向不受控制
	assert.Equal(t, entity.LightGreen, lm.Get(105).Light())

	b := &testAgent{id: 2}
	assert.ErrorIs(t, j.RequestTurn(b, lm.Get(102)), entity.ErrTurnDenied)

	y := &testAgent{id: 3}
	assert.NoError(t, j.RequestTurn(y, lm.Get(104)))
	j.Cancel(3)
	require.NoError(t, j.RequestTurn(&testAgent{id: 5}, lm.Get(103)))

	for range 100 {
		ctx.clock.Tick()
		jm.Update()
	}
	r, _ := jm.Record(9)
	assert.Equal(t, int32(1), r.PhaseIndex)
	assert.Equal(t, entity.LightGreen, lm.Get(102).Light())
	assert.Equal(t, entity.LightRed, lm.Get(101).Light())
	require.NoError(t, j.RequestTurn(b, lm.Get(102)))
}

// 9号占用105（与102冲突），8号占用104（与101合流），使101与102的申请都进入排队
func blockYieldTest(t *testing.T, lm *lane.LaneManager, j entity.IJunction) {
	t.Helper()
	require.NoError(t, j.RequestTurn(&testAgent{id: 9}, lm.Get(105)))
	require.NoError(t, j.RequestTurn(&testAgent{id: 8}, lm.Get(104)))
}

func TestSignalYieldBehindProtected(t *testing.T) {
	phases := []schema.Phase{
		{Protected: []int32{102}, Yield: []int32{101}, Duration: 1000},
	}
	_, lm, jm := setup(t, schema.ControlSignal, phases)
	j := jm.Get(9)
	blockYieldTest(t, lm, j)

	y, p := &testAgent{id: 1}, &testAgent{id: 2}
	assert.ErrorIs(t, j.RequestTurn(y, lm.Get(101)), entity.ErrTurnDenied) // 让行转向先到
	assert.ErrorIs(t, j.RequestTurn(p, lm.Get(102)), entity.ErrTurnDenied)
	j.Cancel(9)
	j.Cancel(8)
	// 仍需让行于等待中的保护转向
	assert.ErrorIs(t, j.RequestTurn(y, lm.Get(101)), entity.ErrTurnDenied)
	require.NoError(t, j.RequestTurn(p, lm.Get(102)))
}

func TestAgingPriority(t *testing.T) {
	phases := []schema.Phase{
		{Protected: []int32{102}, Yield: []int32{101}, Duration: 1000},
	}
	ctx, lm, jm := setup(t, schema.ControlSignal, phases)
	ctx.rc.C.StarvationTicks = 10
	j := jm.Get(9)
	blockYieldTest(t, lm, j)

	y, p := &testAgent{id: 1}, &testAgent{id: 2}
	assert.ErrorIs(t, j.RequestTurn(y, lm.Get(101)), entity.ErrTurnDenied)
	for range 10 {
		ctx.clock.Tick()
		jm.Update()
	}
	assert.ErrorIs(t, j.RequestTurn(p, lm.Get(102)), entity.ErrTurnDenied)
	j.Cancel(9)
	j.Cancel(8)
	// 让行申请已老化，不再让于后到的保护转向
	assert.ErrorIs(t, j.RequestTurn(p, lm.Get(102)), entity.ErrTurnDenied)
	require.NoError(t, j.RequestTurn(y, lm.Get(101)))
}

func TestRestoreAndCheck(t *testing.T) {
	_, lm, jm := setup(t, schema.ControlUncontrolled, nil)
	require.NoError(t, jm.Get(9).RequestTurn(&testAgent{id: 1}, lm.Get(101)))
	records := jm.Records()

	_, _, jm2 := setup(t, schema.ControlUncontrolled, nil)
	require.NoError(t, jm2.Restore(records))
	assert.Equal(t, records, jm2.Records())

	bad := records[0]
	bad.Reservations = append(bad.Reservations, schema.ReservationRecord{Agent: 2, Turn: 102})
	require.NoError(t, jm2.Restore([]schema.IntersectionRecord{bad}))
	var v *entity.ViolationError
	require.ErrorAs(t, jm2.Check(), &v)
	assert.Equal(t, int32(9), v.Intersection)
	assert.Equal(t, int32(2), v.Agent)
}
