package usage

import (
	"github.com/cirruslabs/resource-usage-monitor/internal/metricsapi"
	"github.com/cirruslabs/resource-usage-monitor/internal/poll"
)

const (
	CPUName    = "cpu"
	MemoryName = "memory"
)

// ResourceModel is a model fed by the metrics endpoint.
type ResourceModel = Model[*metricsapi.Payload]

// CPU maps cpu_percent to a fraction of a single CPU and uses cpu_count
// as the limit.
func CPU(payload *metricsapi.Payload) Snapshot {
	if payload == nil {
		return Snapshot{}
	}

	snapshot := Snapshot{Available: true}

	if payload.CPUPercent != nil {
		snapshot.Current = *payload.CPUPercent / 100
	}

	if payload.CPUCount != nil && *payload.CPUCount > 0 {
		snapshot.Limit = float64(*payload.CPUCount)
		snapshot.Limited = true
	}

	if payload.Limits.CPU != nil {
		snapshot.Warning = payload.Limits.CPU.Warn
	}

	return snapshot
}

// Memory reports the resident set size in bytes and uses the memory
// limit in bytes, if any.
func Memory(payload *metricsapi.Payload) Snapshot {
	if payload == nil {
		return Snapshot{}
	}

	snapshot := Snapshot{Available: true}

	if payload.RSS != nil {
		snapshot.Current = float64(*payload.RSS)
	}

	if limit := payload.Limits.Memory; limit != nil {
		if limit.RSS > 0 {
			snapshot.Limit = float64(limit.RSS)
			snapshot.Limited = true
		}
		snapshot.Warning = limit.Warn
	}

	return snapshot
}

func NewCPU(fetch poll.FetchFunc[*metricsapi.Payload], options Options) (*ResourceModel, error) {
	if options.Name == "" {
		options.Name = CPUName
	}

	return New(fetch, CPU, options)
}

func NewMemory(fetch poll.FetchFunc[*metricsapi.Payload], options Options) (*ResourceModel, error) {
	if options.Name == "" {
		options.Name = MemoryName
	}

	return New(fetch, Memory, options)
}
