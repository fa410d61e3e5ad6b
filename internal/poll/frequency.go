package poll

import (
	"errors"
	"math"
	"time"
)

// DefaultMaxFactor bounds the backed off delay to this many intervals
// when Frequency.Max is not set.
const DefaultMaxFactor = 10

var ErrInvalidInterval = errors.New("poll interval must be positive")

// Frequency describes when a poller runs its next attempt.
type Frequency struct {
	// Interval is the delay after a successful attempt.
	Interval time.Duration

	// Backoff doubles the delay on every consecutive failure.
	Backoff bool

	// Max caps the backed off delay, defaults to DefaultMaxFactor * Interval.
	Max time.Duration
}

// NewFrequency returns a frequency with backoff enabled.
func NewFrequency(interval time.Duration) Frequency {
	return Frequency{
		Interval: interval,
		Backoff:  true,
	}
}

func (frequency Frequency) Validate() error {
	if frequency.Interval <= 0 {
		return ErrInvalidInterval
	}

	return nil
}

// Ceiling is the largest delay Delay can return.
func (frequency Frequency) Ceiling() time.Duration {
	if !frequency.Backoff {
		return frequency.Interval
	}

	if frequency.Max > 0 {
		if frequency.Max < frequency.Interval {
			return frequency.Interval
		}

		return frequency.Max
	}

	if frequency.Interval > math.MaxInt64/DefaultMaxFactor {
		return math.MaxInt64
	}

	return frequency.Interval * DefaultMaxFactor
}

// Delay returns the wait before the next attempt after the given number
// of consecutive failures. The first failure is retried after Interval,
// each following one doubles the delay up to Ceiling.
func (frequency Frequency) Delay(failures uint) time.Duration {
	if !frequency.Backoff || failures <= 1 {
		return frequency.Interval
	}

	ceiling := frequency.Ceiling()
	delay := frequency.Interval

	for i := uint(1); i < failures; i++ {
		if delay > ceiling/2 {
			return ceiling
		}

		delay *= 2
	}

	return delay
}
