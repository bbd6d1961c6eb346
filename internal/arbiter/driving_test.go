package arbiter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/autodrive/internal/actuation"
)

type stubDriver struct {
	id       string
	steering *actuation.SteeringController
	speed    *actuation.SpeedController
	revokes  []bool
}

func (d *stubDriver) DriverID() string { return d.id }
func (d *stubDriver) OnSteeringGranted(c *actuation.SteeringController) {
	d.steering = c
}
func (d *stubDriver) OnSteeringRevoked(willReturn bool) {
	d.steering = nil
	d.revokes = append(d.revokes, willReturn)
}
func (d *stubDriver) OnSpeedGranted(c *actuation.SpeedController) { d.speed = c }
func (d *stubDriver) OnSpeedRevoked(willReturn bool) {
	d.speed = nil
	d.revokes = append(d.revokes, willReturn)
}

func TestDrivingArbiter_ControllersFollowGrants(t *testing.T) {
	da := NewDrivingArbiter(nil)
	cruise := &stubDriver{id: "cruise"}
	watchdog := &stubDriver{id: "watchdog"}

	require.True(t, da.RequestSpeed(cruise, Low, false))
	require.True(t, da.RequestSteering(cruise, Low, false))
	require.NotNil(t, cruise.speed)
	require.NotNil(t, cruise.steering)
	cruise.speed.Set(1, 0)

	require.True(t, da.RequestSpeed(watchdog, High, true))
	assert.Nil(t, cruise.speed)
	assert.NotNil(t, cruise.steering, "channels are arbitrated independently")
	assert.Equal(t, []bool{true}, cruise.revokes)

	watchdog.speed.Set(0, 100)
	var sent actuation.Command
	require.NoError(t, da.Flush(context.Background(), actuation.SinkFunc(func(_ context.Context, c actuation.Command) error {
		sent = c
		return nil
	})))
	assert.Equal(t, actuation.Command{Throttle: 0, Brake: 100}, sent)

	da.GiveUpSpeed(watchdog)
	assert.Nil(t, watchdog.speed)
	assert.NotNil(t, cruise.speed)
	id, _, _ := da.Speed().Holder()
	assert.Equal(t, "cruise", id)

	// Giving up a channel never held is a no-op.
	da.GiveUpSteering(watchdog)
	id, _, _ = da.Steering().Holder()
	assert.Equal(t, "cruise", id)
}

func TestDrivingArbiter_Withdraw(t *testing.T) {
	da := NewDrivingArbiter(actuation.NewBatch())
	a := &stubDriver{id: "a"}
	b := &stubDriver{id: "b"}
	da.RequestSteering(a, High, false)
	da.RequestSpeed(a, High, false)
	require.False(t, da.RequestSteering(b, Low, false))
	require.False(t, da.RequestSpeed(b, Low, false))

	da.Withdraw(b)
	assert.Empty(t, da.Steering().Queue())
	assert.Empty(t, da.Speed().Queue())
}
