package metricsapi

import (
	"github.com/pkg/errors"
)

var ErrMalformedPayload = errors.New("malformed metrics payload")

// Payload is the response of the metrics endpoint. Every field may be
// missing from any given response.
type Payload struct {
	RSS        *uint64  `json:"rss,omitempty"`
	CPUPercent *float64 `json:"cpu_percent,omitempty"`
	CPUCount   *int     `json:"cpu_count,omitempty"`
	Limits     Limits   `json:"limits"`
}

type Limits struct {
	Memory *MemoryLimit `json:"memory,omitempty"`
	CPU    *CPULimit    `json:"cpu,omitempty"`
}

type MemoryLimit struct {
	RSS  uint64 `json:"rss"`
	Warn bool   `json:"warn"`
}

type CPULimit struct {
	CPU  float64 `json:"cpu"`
	Warn bool    `json:"warn"`
}

// Validate rejects payloads that carry no usage figures at all or
// figures that cannot be right.
func (payload *Payload) Validate() error {
	if payload == nil {
		return errors.Wrap(ErrMalformedPayload, "empty response")
	}

	if payload.RSS == nil && payload.CPUPercent == nil {
		return errors.Wrap(ErrMalformedPayload, "neither rss nor cpu_percent is present")
	}

	if payload.CPUPercent != nil && *payload.CPUPercent < 0 {
		return errors.Wrapf(ErrMalformedPayload, "negative cpu_percent %f", *payload.CPUPercent)
	}

	if payload.CPUCount != nil && *payload.CPUCount < 0 {
		return errors.Wrapf(ErrMalformedPayload, "negative cpu_count %d", *payload.CPUCount)
	}

	return nil
}

func Ptr[T any](value T) *T {
	return &value
}
