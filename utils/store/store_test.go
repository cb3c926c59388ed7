package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/microsim/schema"
	"github.com/tsinghua-fib-lab/microsim/utils/config"
)

func testSnapshot(step int32) *schema.Snapshot {
	return &schema.Snapshot{
		Step: step,
		T:    float64(step) * 0.1,
		Trips: []schema.TripRecord{
			{ID: 1, Status: schema.TripActive, Agent: 1, SpawnStep: 1, EndStep: schema.NoID},
		},
		Agents: []schema.AgentRecord{{
			ID: 1, Kind: schema.KindVehicle, Trip: 1, State: schema.StateTraveling,
			Lane: 2, S: 12.5, V: 3, Length: 5, Path: []int32{2, 101, 3},
			ReservedTurn: schema.NoID, BlockedSince: schema.NoID, SpeedRatio: 1.05,
			Route: schema.NoID, Vehicle: schema.NoID,
		}},
		Lanes: []schema.LaneRecord{{ID: 2, Vehicles: []int32{1}}, {ID: 3, Reserved: 1}},
		Intersections: []schema.IntersectionRecord{{
			ID: 9, Control: schema.ControlStopSign,
			Reservations: []schema.ReservationRecord{{Agent: 4, Turn: 101, GrantedStep: 3, DestSlot: true}},
			Seq: 7,
		}},
		TransitRoutes: []schema.TransitRecord{{Route: 7, NextDeparture: 1}},
		Stops:         []schema.StopRecord{{ID: 1, Waiting: []int32{5, 6}}},
		NextTransitID: schema.TransitIDStart + 1,
		Statistics:    schema.Statistics{CompletedTrips: 2, TravelTime: 30, TravelDistance: 200},
	}
}

func roundTrip(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Latest(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, testSnapshot(10)))
	require.NoError(t, s.Save(ctx, testSnapshot(20)))

	snap, err := s.Load(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, testSnapshot(10), snap)

	snap, err = s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, testSnapshot(20), snap)

	_, err = s.Load(ctx, 15)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Close())
}

func TestFileStore(t *testing.T) {
	s, err := New(context.Background(), config.Store{Type: "file", Path: t.TempDir(), Prefix: "test"})
	require.NoError(t, err)
	roundTrip(t, s)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := New(context.Background(), config.Store{Type: "redis", Addr: mr.Addr(), Prefix: "test"})
	require.NoError(t, err)
	roundTrip(t, s)
	assert.True(t, mr.Exists("test:snapshot:10"))
	assert.Equal(t, "20", mustGet(t, mr, "test:latest"))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestUnknownStore(t *testing.T) {
	_, err := New(context.Background(), config.Store{Type: "s3"})
	assert.ErrorContains(t, err, "unknown store type")
}
