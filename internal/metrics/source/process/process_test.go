package process_test

import (
	"context"
	"github.com/cirruslabs/resource-usage-monitor/internal/metrics/source/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"os/exec"
	"testing"
	"time"
)

func TestCurrentProcess(t *testing.T) {
	ctx := context.Background()
	tree := process.New(os.Getpid())

	pids, err := tree.PIDs()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pids[0])

	memoryUsed, err := tree.AmountMemoryUsed(ctx)
	require.NoError(t, err)
	assert.Greater(t, memoryUsed, 0.0)

	numCpusUsed, err := tree.NumCpusUsed(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, numCpusUsed, 0.0)
}

func TestChildrenAreIncluded(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Skipf("failed to start a child process: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	pids, err := process.New(os.Getpid()).PIDs()
	require.NoError(t, err)
	assert.Contains(t, pids, cmd.Process.Pid)
}

func TestMissingProcess(t *testing.T) {
	_, err := process.New(-42).AmountMemoryUsed(context.Background())
	require.ErrorIs(t, err, process.ErrProcessNotFound)
}
