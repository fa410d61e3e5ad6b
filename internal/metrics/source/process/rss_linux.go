package process

import (
	"context"
	"github.com/prometheus/procfs"
)

func residentMemory(_ context.Context, pid int) (uint64, error) {
	proc, err := procfs.NewProc(pid)
	if err != nil {
		return 0, err
	}

	stat, err := proc.Stat()
	if err != nil {
		return 0, err
	}

	return uint64(stat.ResidentMemory()), nil
}
