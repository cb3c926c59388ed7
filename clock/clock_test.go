package clock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/microsim/clock"
	"github.com/tsinghua-fib-lab/microsim/utils/config"
)

func TestClockTick(t *testing.T) {
	c := clock.New(config.ControlStep{Start: 10, Total: 5, Interval: 0.5})
	assert.Equal(t, int32(10), c.InternalStep)
	assert.Equal(t, 5.0, c.T)
	assert.False(t, c.Done())
	for i := 0; i < 5; i++ {
		c.Tick()
	}
	assert.True(t, c.Done())
	assert.Equal(t, 7.5, c.T)
}

func TestClockString(t *testing.T) {
	c := clock.New(config.ControlStep{Interval: 1})
	c.Set(3723)
	assert.Equal(t, "01:02:03", c.String())
	h, m, s := c.GetHourMinuteSecond()
	assert.Equal(t, 1, h)
	assert.Equal(t, 2, m)
	assert.Equal(t, 3.0, s)
}

func TestClockSeconds(t *testing.T) {
	c := clock.New(config.ControlStep{Interval: 0.1})
	assert.Equal(t, int32(50), c.Seconds(5))
	assert.Equal(t, int32(1), c.Seconds(0))
	assert.Equal(t, int32(3), c.Seconds(0.25))
}
