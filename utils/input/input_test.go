package input

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/microsim/entity"
	"github.com/tsinghua-fib-lab/microsim/schema"
	"github.com/tsinghua-fib-lab/microsim/utils/config"
	"gopkg.in/yaml.v2"
)

func testNetwork() schema.Network {
	return schema.Network{
		Lanes: []schema.Lane{
			{ID: 1, Type: schema.LaneTypeDriving, Length: 100, MaxSpeed: 10},
			{ID: 2, Type: schema.LaneTypeDriving, Length: 100, MaxSpeed: 10},
			{ID: 11, Type: schema.LaneTypeWalking, Length: 100},
			{ID: 12, Type: schema.LaneTypeWalking, Length: 100},
		},
		Turns: []schema.Turn{
			{ID: 101, Intersection: 9, Type: schema.TurnStraight, From: 1, To: 2, Length: 10},
			{ID: 102, Intersection: 9, Type: schema.TurnCrosswalk, From: 11, To: 12, Length: 10, Conflicts: []int32{101}},
		},
		Intersections: []schema.Intersection{
			{ID: 9, Control: schema.ControlSignal, Phases: []schema.Phase{
				{Protected: []int32{101}, Duration: 20},
				{Protected: []int32{102}, Duration: 10},
			}},
		},
		Stops: []schema.Stop{
			{ID: 1, Lane: 1, S: 10, WalkLane: 11, WalkS: 10},
			{ID: 2, Lane: 2, S: 50, WalkLane: 12, WalkS: 50},
		},
	}
}

func testScenario() schema.Scenario {
	return schema.Scenario{
		Trips: []schema.Trip{
			{ID: 1, Depart: 0, Origin: schema.Position{Lane: 1, S: 5}, Destination: schema.Position{Lane: 2, S: 90}, Mode: schema.ModeDrive},
			{ID: 2, Depart: 3, Origin: schema.Position{Lane: 11, S: 0}, Destination: schema.Position{Lane: 12, S: 90}, Mode: schema.ModeTransit},
		},
		TransitRoutes: []schema.TransitRoute{
			{ID: 7, Stops: []int32{1, 2}, Departures: []float64{0, 600}},
		},
	}
}

func problems(t *testing.T, err error) []string {
	t.Helper()
	var loadErr *entity.ScenarioLoadError
	require.True(t, errors.As(err, &loadErr), "want ScenarioLoadError, got %v", err)
	return loadErr.Problems
}

func TestValidateOK(t *testing.T) {
	assert.NoError(t, Validate(testNetwork(), testScenario()))
}

func TestValidateNetworkProblems(t *testing.T) {
	n := testNetwork()
	n.Lanes = append(n.Lanes, schema.Lane{ID: 1, Type: schema.LaneTypeDriving, Length: 10, MaxSpeed: 1})
	n.Lanes[1].Length = 0
	n.Turns[0].To = 12
	n.Turns[1].Conflicts = []int32{102, 404}
	n.Intersections[0].Phases[0].Protected = []int32{101, 102}
	n.Intersections[0].Phases[1].Duration = 0
	n.Stops[1].S = 150

	ps := problems(t, Validate(n, testScenario()))
	assert.Contains(t, ps, "lane 1: duplicate id")
	assert.Contains(t, ps, "lane 2: non-positive length 0")
	assert.Contains(t, ps, "turn 101: lane 12 is walking, want driving")
	assert.Contains(t, ps, "turn 102: conflicts with itself")
	assert.Contains(t, ps, "turn 102: conflicting turn 404 does not exist")
	assert.Contains(t, ps, "intersection 9 phase 0: protected turns 101 and 102 conflict")
	assert.Contains(t, ps, "intersection 9 phase 1: non-positive duration 0")
	assert.Contains(t, ps, "stop 2: s 150 out of lane 2 range [0, 0]")
}

func TestValidateScenarioProblems(t *testing.T) {
	s := testScenario()
	s.Trips = append(s.Trips,
		schema.Trip{ID: 1, Mode: schema.ModeWalk},
		schema.Trip{ID: schema.TransitIDStart, Depart: -1, Mode: schema.ModeWalk,
			Origin: schema.Position{Lane: 11}, Destination: schema.Position{Lane: 12}},
		schema.Trip{ID: 5, Mode: "fly"},
		schema.Trip{ID: 6, Mode: schema.ModeDrive,
			Origin: schema.Position{Lane: 11}, Destination: schema.Position{Lane: 99}},
	)
	s.TransitRoutes = append(s.TransitRoutes,
		schema.TransitRoute{ID: 8, Stops: []int32{1}},
		schema.TransitRoute{ID: 9, Stops: []int32{1, 3}, Departures: []float64{-5}},
	)

	ps := problems(t, Validate(testNetwork(), s))
	assert.Equal(t, []string{
		"trip 1: duplicate id",
		"trip 100000000: id out of range [0, 100000000)",
		"trip 100000000: invalid depart time -1",
		"trip 5: unknown mode \"fly\"",
		"trip 6 origin: lane 11 is walking, want driving",
		"trip 6 destination: lane 99 does not exist",
		"transit route 8: needs at least 2 stops, got 1",
		"transit route 9: stop 3 does not exist",
		"transit route 9: invalid departure -5",
	}, ps)
}

func writeYAML(t *testing.T, path string, v any) {
	t.Helper()
	data, err := yaml.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestInitFromFiles(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, filepath.Join(dir, "network.yaml"), testNetwork())
	writeYAML(t, filepath.Join(dir, "scenario.yml"), testScenario())

	in, err := Init(context.Background(), config.Input{
		Network:  config.InputPath{File: filepath.Join(dir, "network.yaml")},
		Scenario: config.InputPath{File: filepath.Join(dir, "scenario.yml")},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, testNetwork(), in.Network)
	assert.Equal(t, testScenario(), in.Scenario)
}

func TestInitRejectsInvalidScenario(t *testing.T) {
	dir := t.TempDir()
	s := testScenario()
	s.Trips[0].Origin.Lane = 42
	writeYAML(t, filepath.Join(dir, "network.yaml"), testNetwork())
	writeYAML(t, filepath.Join(dir, "scenario.yaml"), s)

	_, err := Init(context.Background(), config.Input{
		Network:  config.InputPath{File: filepath.Join(dir, "network.yaml")},
		Scenario: config.InputPath{File: filepath.Join(dir, "scenario.yaml")},
	}, "")
	assert.Equal(t, []string{"trip 1 origin: lane 42 does not exist"}, problems(t, err))
}

func TestInitFromCache(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeBSON(filepath.Join(dir, "sim.network.bson"), testNetwork()))
	writeYAML(t, filepath.Join(dir, "scenario.yaml"), testScenario())
	c := config.Input{
		Network:  config.InputPath{DB: "sim", Col: "network", OnlyCache: true},
		Scenario: config.InputPath{File: filepath.Join(dir, "scenario.yaml")},
	}

	in, err := Init(context.Background(), c, dir)
	require.NoError(t, err)
	assert.Len(t, in.Network.Lanes, 4)
	assert.Equal(t, testNetwork().Intersections, in.Network.Intersections)

	c.Network.Col = "missing"
	_, err = Init(context.Background(), c, dir)
	assert.ErrorContains(t, err, "no cache for sim.missing")
}

func TestReadFileUnsupported(t *testing.T) {
	var n schema.Network
	assert.ErrorContains(t, ReadFile("network.json", &n), "unsupported input file")
}
