package metrics

import (
	"context"
	"errors"
	"fmt"
	"github.com/cirruslabs/resource-usage-monitor/internal/metrics/source"
	"github.com/cirruslabs/resource-usage-monitor/internal/metricsapi"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"math"
	"time"
)

const (
	DefaultCPUWindow     = 250 * time.Millisecond
	DefaultWarnThreshold = 0.1
)

var (
	ErrFailedToQueryCPU    = errors.New("failed to query CPU usage")
	ErrFailedToQueryMemory = errors.New("failed to query memory usage")
	ErrFailedToQueryTotals = errors.New("failed to query host totals")
)

type SamplerOptions struct {
	// CPUWindow is how long CPU usage is measured for on every sample.
	CPUWindow time.Duration

	// WarnThreshold is the fraction of headroom below which a limit is
	// reported as close to being reached.
	WarnThreshold float64

	// MemoryLimit overrides the host memory as the memory limit.
	MemoryLimit uint64

	// CPULimit overrides the host CPU count as the CPU limit.
	CPULimit float64

	// TrackCPU enables CPU figures in the payload.
	TrackCPU bool

	Logger logrus.FieldLogger
}

// Sampler builds endpoint payloads from a CPU and a memory source.
type Sampler struct {
	cpuSource    source.CPU
	memorySource source.Memory
	totals       func(ctx context.Context) (Totals, error)
	options      SamplerOptions
}

func NewSampler(cpuSource source.CPU, memorySource source.Memory, options SamplerOptions) *Sampler {
	if options.CPUWindow <= 0 {
		options.CPUWindow = DefaultCPUWindow
	}
	if options.WarnThreshold <= 0 {
		options.WarnThreshold = DefaultWarnThreshold
	}

	return &Sampler{
		cpuSource:    cpuSource,
		memorySource: memorySource,
		totals:       QueryTotals,
		options:      options,
	}
}

// WithTotals replaces the host capacity lookup.
func (sampler *Sampler) WithTotals(totals func(ctx context.Context) (Totals, error)) *Sampler {
	sampler.totals = totals

	return sampler
}

func (sampler *Sampler) Sample(ctx context.Context) (*metricsapi.Payload, error) {
	totals, err := sampler.totals(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToQueryTotals, err)
	}

	amountMemoryUsed, err := sampler.memorySource.AmountMemoryUsed(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToQueryMemory, err)
	}

	rss := uint64(amountMemoryUsed)
	payload := &metricsapi.Payload{
		RSS: &rss,
	}

	memoryLimit := totals.Memory
	if sampler.options.MemoryLimit > 0 {
		memoryLimit = sampler.options.MemoryLimit
	}
	if memoryLimit > 0 {
		payload.Limits.Memory = &metricsapi.MemoryLimit{
			RSS:  memoryLimit,
			Warn: sampler.closeToLimit(float64(rss), float64(memoryLimit)),
		}
	}

	if sampler.options.TrackCPU {
		numCpusUsed, err := sampler.cpuSource.NumCpusUsed(ctx, sampler.options.CPUWindow)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFailedToQueryCPU, err)
		}

		cpuPercent := numCpusUsed * 100
		payload.CPUPercent = &cpuPercent

		cpuLimit := float64(totals.NumCpus)
		if sampler.options.CPULimit > 0 {
			cpuLimit = sampler.options.CPULimit
		}
		if cpuLimit > 0 {
			// cpu_count is what clients show as the limit, a fractional
			// override is rounded up to whole CPUs
			cpuCount := int(math.Ceil(cpuLimit))
			payload.CPUCount = &cpuCount
			payload.Limits.CPU = &metricsapi.CPULimit{
				CPU:  cpuLimit,
				Warn: sampler.closeToLimit(numCpusUsed, cpuLimit),
			}
		}

		if sampler.options.Logger != nil {
			sampler.options.Logger.Debugf("CPUs used: %.2f, CPU usage: %.2f%%, memory used: %s",
				numCpusUsed, cpuPercent, humanize.Bytes(rss))
		}
	} else if sampler.options.Logger != nil {
		sampler.options.Logger.Debugf("memory used: %s", humanize.Bytes(rss))
	}

	return payload, nil
}

func (sampler *Sampler) closeToLimit(used float64, limit float64) bool {
	return limit-used < limit*sampler.options.WarnThreshold
}
