package drivers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/autodrive/internal/actuation"
	"github.com/banshee-data/autodrive/internal/arbiter"
	"github.com/banshee-data/autodrive/internal/lidar/l4perception"
)

func blobAt(x, y float64) l4perception.Blob {
	return l4perception.Blob{{X: x, Y: y - 0.5}, {X: x, Y: y + 0.5}}
}

func TestCruise_Step(t *testing.T) {
	tests := []struct {
		name  string
		speed float64
		blobs []l4perception.Blob
		want  actuation.Command
	}{
		{"open road below target", 10, nil, actuation.Command{Throttle: 1}},
		{"open road above target", 20, nil, actuation.Command{}},
		{"blob ahead at rest", 0, []l4perception.Blob{blobAt(12, 0)}, actuation.Command{Throttle: 1, Brake: 3}},
		{"blob ahead with stopping allowance", 10, []l4perception.Blob{blobAt(30, 0)}, actuation.Command{Brake: 10}},
		{"far blob ahead", 4, []l4perception.Blob{blobAt(60, 1)}, actuation.Command{Throttle: 1}},
		{"nearest of several", 0, []l4perception.Blob{blobAt(40, 0), blobAt(8, -2)}, actuation.Command{Brake: 7}},
		{"outside corridor", 10, []l4perception.Blob{blobAt(5, 4)}, actuation.Command{Throttle: 1}},
		{"behind", 10, []l4perception.Blob{blobAt(-5, 0)}, actuation.Command{Throttle: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			da := arbiter.NewDrivingArbiter(nil)
			c, err := NewCruise(DefaultCruiseConfig(), da)
			require.NoError(t, err)
			require.True(t, c.Engage())
			da.Batch().Steering().SetSteering(0.3)

			require.NoError(t, c.Step(context.Background(), tt.speed, tt.blobs))
			assert.Equal(t, tt.want, da.Batch().Command())
		})
	}
}

func TestCruise_WritesOnlyHeldChannels(t *testing.T) {
	da := arbiter.NewDrivingArbiter(nil)
	c, err := NewCruise(DefaultCruiseConfig(), da)
	require.NoError(t, err)
	require.True(t, c.Engage())

	other := &namedDriver{Cruise: &Cruise{cfg: DefaultCruiseConfig(), arbiter: da}, id: "lane"}
	require.True(t, da.RequestSteering(other, arbiter.Medium, true))
	da.Batch().Steering().SetSteering(0.2)

	require.NoError(t, c.Step(context.Background(), 10, nil))
	assert.Equal(t, 0.2, da.Batch().Command().Steering)
	speed, steering := c.Holds()
	assert.True(t, speed)
	assert.False(t, steering)

	da.GiveUpSteering(other)
	_, steering = c.Holds()
	assert.True(t, steering)
}

func TestCruise_EngageBehindHigherHolder(t *testing.T) {
	da := arbiter.NewDrivingArbiter(nil)
	first := &namedDriver{Cruise: &Cruise{cfg: DefaultCruiseConfig(), arbiter: da}, id: "first"}
	da.RequestSpeed(first, arbiter.Medium, false)

	c, err := NewCruise(DefaultCruiseConfig(), da)
	require.NoError(t, err)
	assert.False(t, c.Engage())
	assert.Equal(t, []arbiter.QueuedRequest{{ID: CruiseID, Priority: arbiter.Low}}, da.Speed().Queue())
}
