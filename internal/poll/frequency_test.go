package poll_test

import (
	"github.com/cirruslabs/resource-usage-monitor/internal/poll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math"
	"testing"
	"time"
)

func TestDelayBacksOff(t *testing.T) {
	frequency := poll.NewFrequency(time.Second)

	assert.Equal(t, time.Second, frequency.Delay(0))
	assert.Equal(t, time.Second, frequency.Delay(1))
	assert.Equal(t, 2*time.Second, frequency.Delay(2))
	assert.Equal(t, 4*time.Second, frequency.Delay(3))
	assert.Equal(t, 8*time.Second, frequency.Delay(4))
	assert.Equal(t, 10*time.Second, frequency.Delay(5))
	assert.Equal(t, 10*time.Second, frequency.Delay(1000))
}

func TestDelayIsMonotonicAndBounded(t *testing.T) {
	frequency := poll.Frequency{Interval: 3 * time.Millisecond, Backoff: true, Max: time.Second}

	previous := time.Duration(0)
	for failures := uint(0); failures < 200; failures++ {
		delay := frequency.Delay(failures)

		assert.GreaterOrEqual(t, delay, previous)
		assert.LessOrEqual(t, delay, time.Second)
		previous = delay
	}
	assert.Equal(t, time.Second, previous)
}

func TestDelayDoesNotOverflow(t *testing.T) {
	frequency := poll.Frequency{Interval: time.Second, Backoff: true, Max: math.MaxInt64}

	previous := time.Duration(0)
	for failures := uint(0); failures < 200; failures++ {
		delay := frequency.Delay(failures)

		assert.Positive(t, delay)
		assert.GreaterOrEqual(t, delay, previous)
		previous = delay
	}
	assert.Equal(t, time.Duration(math.MaxInt64), previous)
}

func TestDelayWithoutBackoff(t *testing.T) {
	frequency := poll.Frequency{Interval: time.Second, Max: time.Minute}

	for failures := uint(0); failures < 100; failures++ {
		assert.Equal(t, time.Second, frequency.Delay(failures))
	}
	assert.Equal(t, time.Second, frequency.Ceiling())
}

func TestCeilingNeverBelowInterval(t *testing.T) {
	frequency := poll.Frequency{Interval: time.Second, Backoff: true, Max: time.Millisecond}

	assert.Equal(t, time.Second, frequency.Ceiling())
	assert.Equal(t, time.Second, frequency.Delay(10))
}

func TestValidate(t *testing.T) {
	require.ErrorIs(t, poll.Frequency{}.Validate(), poll.ErrInvalidInterval)
	require.NoError(t, poll.NewFrequency(time.Millisecond).Validate())
}
