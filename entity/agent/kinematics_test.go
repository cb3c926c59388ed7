package agent

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel() Model {
	return Model{
		MaxA:              2,
		UsualBrakingA:     -4.5,
		MaxBrakingA:       -6,
		EmergencyBrakingA: -10,
		MinGap:            2,
		Headway:           1.5,
	}
}

func TestProposeFreeFlow(t *testing.T) {
	p, err := testModel().Propose(0, 10, 1, nil, math.Inf(1))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, p.A, 1e-9)
	assert.InDelta(t, 2.0, p.V, 1e-9)
	assert.InDelta(t, 1.0, p.DS, 1e-9)
}

func TestProposeStopsAtTarget(t *testing.T) {
	p, err := testModel().Propose(1, 10, 1, nil, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p.DS, 1e-9)
	assert.Zero(t, p.V)

	// 从远处以最大速度接近停车目标，最终恰好停在目标处
	m := testModel()
	target, v := 100.0, 15.0
	for i := 0; i < 1000; i++ {
		p, err := m.Propose(v, 15, 0.1, nil, target)
		require.NoError(t, err)
		require.LessOrEqual(t, p.DS, target+1e-9)
		target -= p.DS
		v = p.V
	}
	assert.InDelta(t, 0, target, 1e-6)
	assert.Zero(t, v)
}

func TestProposeLeaderCap(t *testing.T) {
	p, err := testModel().Propose(1, 10, 1, &Leader{Distance: 2.05, V: 0}, math.Inf(1))
	require.NoError(t, err)
	assert.InDelta(t, 0.05, p.DS, 1e-9)
	assert.Zero(t, p.V)
}

func TestProposeNeverClosesBelowMinGap(t *testing.T) {
	m := testModel()
	d, v := 50.0, 10.0
	for i := 0; i < 600; i++ {
		p, err := m.Propose(v, 15, 0.1, &Leader{Distance: d, V: 0}, math.Inf(1))
		require.NoError(t, err)
		d -= p.DS
		v = p.V
		require.GreaterOrEqual(t, d, m.MinGap-1e-9)
	}
	assert.InDelta(t, 0, v, 1e-6)
}

func TestProposeViolations(t *testing.T) {
	m := testModel()
	_, err := m.Propose(0, 10, 0.1, &Leader{Distance: 1.5, V: 0}, math.Inf(1))
	assert.Error(t, err)
	// 以20m/s在0.1m的空间内停下需要的减速度超出物理极限
	_, err = m.Propose(20, 30, 0.1, &Leader{Distance: 2.1, V: 0}, math.Inf(1))
	assert.Error(t, err)
}

func TestRequestDistance(t *testing.T) {
	m := testModel()
	assert.InDelta(t, minRequestDistance, m.requestDistance(0, 0.1), 1e-9)
	assert.InDelta(t, 100.0/9+1, m.requestDistance(10, 0.1), 1e-9)
	assert.Equal(t, float64(minViewDistance), viewDistance(1))
	assert.Equal(t, 240.0, viewDistance(20))
}
