package randengine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/microsim/utils/randengine"
)

func TestSameSeedSameSequence(t *testing.T) {
	a, b := randengine.New(42, 0), randengine.New(42, 0)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Float64(), b.Float64())
	}
}

func TestClampedNorm(t *testing.T) {
	e := randengine.New(7, 0)
	for i := 0; i < 1000; i++ {
		v := e.ClampedNorm(1, 0.5, 0.8, 1.2)
		assert.GreaterOrEqual(t, v, 0.8)
		assert.LessOrEqual(t, v, 1.2)
	}
}

func TestSeedOffset(t *testing.T) {
	base := randengine.New(42, 0).Float64()
	assert.Equal(t, base, randengine.New(41, 1).Float64())
	assert.NotEqual(t, base, randengine.New(42, 1).Float64())
	// 不同偏移量的引擎互不影响
	a, b := randengine.New(42, 0), randengine.New(42, 5)
	assert.Equal(t, base, a.Float64())
	assert.Equal(t, randengine.New(47, 0).Float64(), b.Float64())
}
