//go:build !linux

package process

import (
	"context"
	gopsprocess "github.com/shirou/gopsutil/process"
)

func residentMemory(ctx context.Context, pid int) (uint64, error) {
	proc, err := gopsprocess.NewProcess(int32(pid))
	if err != nil {
		return 0, err
	}

	memoryInfo, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, err
	}

	return memoryInfo.RSS, nil
}
