// Package process reports the usage of a process and all of its
// descendants, the way a kernel's footprint is accounted for.
package process

import (
	"context"
	"errors"
	"fmt"
	"github.com/mitchellh/go-ps"
	gopsprocess "github.com/shirou/gopsutil/process"
	"time"
)

var ErrProcessNotFound = errors.New("process not found")

type Tree struct {
	pid int
}

func New(pid int) *Tree {
	return &Tree{pid: pid}
}

func (tree *Tree) Name() string {
	return fmt.Sprintf("process tree %d", tree.pid)
}

// PIDs returns the root PID followed by all of its descendants.
func (tree *Tree) PIDs() ([]int, error) {
	processes, err := ps.Processes()
	if err != nil {
		return nil, err
	}

	children := map[int][]int{}
	found := false

	for _, p := range processes {
		if p.Pid() == tree.pid {
			found = true
			continue
		}
		children[p.PPid()] = append(children[p.PPid()], p.Pid())
	}

	if !found {
		return nil, fmt.Errorf("%w: %d", ErrProcessNotFound, tree.pid)
	}

	result := []int{tree.pid}
	seen := map[int]bool{tree.pid: true}

	for i := 0; i < len(result); i++ {
		for _, child := range children[result[i]] {
			if seen[child] {
				continue
			}
			seen[child] = true
			result = append(result, child)
		}
	}

	return result, nil
}

// NumCpusUsed samples the CPU time of the tree twice, pollInterval apart.
func (tree *Tree) NumCpusUsed(ctx context.Context, pollInterval time.Duration) (float64, error) {
	pids, err := tree.PIDs()
	if err != nil {
		return 0, err
	}

	before := cpuSeconds(ctx, pids)
	start := time.Now()

	select {
	case <-time.After(pollInterval):
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	after := cpuSeconds(ctx, pids)
	elapsed := time.Since(start).Seconds()

	if elapsed <= 0 || after < before {
		return 0, nil
	}

	return (after - before) / elapsed, nil
}

func (tree *Tree) AmountMemoryUsed(ctx context.Context) (float64, error) {
	pids, err := tree.PIDs()
	if err != nil {
		return 0, err
	}

	var total uint64

	for _, pid := range pids {
		rss, err := residentMemory(ctx, pid)
		if err != nil {
			// Process might have exited in the meantime
			if pid == tree.pid {
				return 0, err
			}
			continue
		}
		total += rss
	}

	return float64(total), nil
}

func cpuSeconds(ctx context.Context, pids []int) float64 {
	var total float64

	for _, pid := range pids {
		proc, err := gopsprocess.NewProcess(int32(pid))
		if err != nil {
			continue
		}

		times, err := proc.TimesWithContext(ctx)
		if err != nil {
			continue
		}

		total += times.User + times.System
	}

	return total
}
