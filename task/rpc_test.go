package task

import (
	"context"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/microsim/clock"
	"github.com/tsinghua-fib-lab/microsim/entity/agent"
	"github.com/tsinghua-fib-lab/microsim/entity/junction"
	"github.com/tsinghua-fib-lab/microsim/schema"
	"github.com/tsinghua-fib-lab/microsim/utils/service"
)

func TestRPCRoundTrip(t *testing.T) {
	ctx := newTestContext(t, schema.Scenario{Trips: []schema.Trip{
		drive(1, 0, pos(3, 10), pos(3, 90)),
		drive(2, 50, pos(1, 10), pos(2, 100)),
	}})
	server := service.New()
	ctx.Register(server)
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()
	c := context.Background()

	step := service.NewClient[StepRequest, StepResponse](srv.Client(), srv.URL, StepProcedure)
	res, err := step.CallUnary(c, connect.NewRequest(&StepRequest{N: 10}))
	require.NoError(t, err)
	assert.Equal(t, int32(10), res.Msg.Step)
	assert.InDelta(t, 1.0, res.Msg.T, 1e-9)

	_, err = step.CallUnary(c, connect.NewRequest(&StepRequest{N: 0}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	now := service.NewClient[clock.NowRequest, clock.NowResponse](srv.Client(), srv.URL, clock.NowProcedure)
	nowRes, err := now.CallUnary(c, connect.NewRequest(&clock.NowRequest{}))
	require.NoError(t, err)
	assert.Equal(t, int32(10), nowRes.Msg.Step)
	assert.Equal(t, "00:00:01", nowRes.Msg.Clock)

	getAgent := service.NewClient[agent.GetAgentRequest, agent.GetAgentResponse](srv.Client(), srv.URL, agent.GetAgentProcedure)
	agentRes, err := getAgent.CallUnary(c, connect.NewRequest(&agent.GetAgentRequest{ID: 1}))
	require.NoError(t, err)
	assert.Equal(t, schema.StateTraveling, agentRes.Msg.Agent.State)
	assert.Equal(t, []int32{3}, agentRes.Msg.Agent.Path)
	_, err = getAgent.CallUnary(c, connect.NewRequest(&agent.GetAgentRequest{ID: 404}))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	agentsAt := service.NewClient[AgentsAtRequest, AgentsAtResponse](srv.Client(), srv.URL, AgentsAtProcedure)
	atRes, err := agentsAt.CallUnary(c, connect.NewRequest(&AgentsAtRequest{Step: 10}))
	require.NoError(t, err)
	require.Len(t, atRes.Msg.Agents, 1)
	assert.Equal(t, int32(1), atRes.Msg.Agents[0].ID)
	_, err = agentsAt.CallUnary(c, connect.NewRequest(&AgentsAtRequest{Step: 11}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	getIntersection := service.NewClient[junction.GetIntersectionRequest, junction.GetIntersectionResponse](
		srv.Client(), srv.URL, junction.GetIntersectionProcedure)
	jRes, err := getIntersection.CallUnary(c, connect.NewRequest(&junction.GetIntersectionRequest{ID: 9}))
	require.NoError(t, err)
	assert.Equal(t, schema.ControlStopSign, jRes.Msg.Intersection.Control)
	assert.Len(t, jRes.Msg.Lights, 2)

	cancelTrip := service.NewClient[CancelRequest, CancelResponse](srv.Client(), srv.URL, CancelTripProcedure)
	_, err = cancelTrip.CallUnary(c, connect.NewRequest(&CancelRequest{ID: 2}))
	require.NoError(t, err)
	_, err = cancelTrip.CallUnary(c, connect.NewRequest(&CancelRequest{ID: 2}))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	save := service.NewClient[SaveRequest, SaveResponse](srv.Client(), srv.URL, SaveProcedure)
	saveRes, err := save.CallUnary(c, connect.NewRequest(&SaveRequest{}))
	require.NoError(t, err)
	assert.Equal(t, int32(10), saveRes.Msg.Snapshot.Step)

	_, err = step.CallUnary(c, connect.NewRequest(&StepRequest{N: 5}))
	require.NoError(t, err)
	restore := service.NewClient[RestoreRequest, RestoreResponse](srv.Client(), srv.URL, RestoreProcedure)
	_, err = restore.CallUnary(c, connect.NewRequest(&RestoreRequest{Snapshot: saveRes.Msg.Snapshot}))
	require.NoError(t, err)
	assert.Equal(t, int32(10), ctx.Now())

	stats := service.NewClient[GetStatisticsRequest, GetStatisticsResponse](srv.Client(), srv.URL, GetStatisticsProcedure)
	statsRes, err := stats.CallUnary(c, connect.NewRequest(&GetStatisticsRequest{}))
	require.NoError(t, err)
	assert.Equal(t, int32(1), statsRes.Msg.Statistics.CancelledTrips)
}
