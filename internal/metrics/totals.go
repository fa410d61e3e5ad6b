package metrics

import (
	"context"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

// Totals describes the capacity of the host.
type Totals struct {
	NumCpus uint64
	Memory  uint64
}

func QueryTotals(ctx context.Context) (Totals, error) {
	perCpuStat, err := cpu.TimesWithContext(ctx, true)
	if err != nil {
		return Totals{}, err
	}

	virtualMemoryStat, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Totals{}, err
	}

	return Totals{
		NumCpus: uint64(len(perCpuStat)),
		Memory:  virtualMemoryStat.Total,
	}, nil
}
