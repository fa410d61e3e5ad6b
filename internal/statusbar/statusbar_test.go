package statusbar_test

import (
	"bytes"
	"github.com/cirruslabs/resource-usage-monitor/internal/statusbar"
	"github.com/cirruslabs/resource-usage-monitor/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strings"
	"sync"
	"testing"
)

type fakeSource struct {
	mu          sync.Mutex
	snapshot    usage.Snapshot
	subscribers []func()
}

func (source *fakeSource) Snapshot() usage.Snapshot {
	source.mu.Lock()
	defer source.mu.Unlock()

	return source.snapshot
}

func (source *fakeSource) Subscribe(fn func()) func() {
	source.mu.Lock()
	defer source.mu.Unlock()

	source.subscribers = append(source.subscribers, fn)

	return func() {
		source.mu.Lock()
		defer source.mu.Unlock()

		source.subscribers = nil
	}
}

func (source *fakeSource) set(snapshot usage.Snapshot) {
	source.mu.Lock()
	source.snapshot = snapshot
	subscribers := append([]func(){}, source.subscribers...)
	source.mu.Unlock()

	for _, fn := range subscribers {
		fn()
	}
}

func TestFormatCPU(t *testing.T) {
	assert.Equal(t, "CPU: 0.450 / 4", statusbar.FormatCPU(usage.Snapshot{
		Available: true, Current: 0.45, Limit: 4, Limited: true,
	}))
	assert.Equal(t, "CPU: 0.920", statusbar.FormatCPU(usage.Snapshot{
		Available: true, Current: 0.92,
	}))
}

func TestFormatMemory(t *testing.T) {
	assert.Equal(t, "Mem: 1.5 GB / 4.0 GB", statusbar.FormatMemory(usage.Snapshot{
		Available: true, Current: 1.5e9, Limit: 4e9, Limited: true,
	}))
	assert.Equal(t, "Mem: 512 MB", statusbar.FormatMemory(usage.Snapshot{
		Available: true, Current: 512e6,
	}))
}

func TestItemHiddenWhenUnavailable(t *testing.T) {
	source := &fakeSource{}
	item := statusbar.NewItem(source, statusbar.FormatCPU)

	assert.False(t, item.Active())
	_, ok := item.Text()
	assert.False(t, ok)

	source.set(usage.Snapshot{Available: true, Current: 0.5, Warning: true})
	assert.True(t, item.Active())
	text, ok := item.Text()
	require.True(t, ok)
	assert.Equal(t, "CPU: 0.500 (!)", text)
}

func TestBarRendersOnChange(t *testing.T) {
	var out bytes.Buffer

	cpuSource := &fakeSource{}
	memorySource := &fakeSource{}

	bar := statusbar.New(&out)
	bar.Add(
		statusbar.NewItem(cpuSource, statusbar.FormatCPU),
		statusbar.NewItem(memorySource, statusbar.FormatMemory),
	)
	defer bar.Close()

	cpuSource.set(usage.Snapshot{Available: true, Current: 0.45, Limit: 4, Limited: true})
	memorySource.set(usage.Snapshot{Available: true, Current: 1e9})
	cpuSource.set(usage.Snapshot{})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{
		"CPU: 0.450 / 4",
		"CPU: 0.450 / 4 | Mem: 1.0 GB",
		"Mem: 1.0 GB",
	}, lines)
	assert.Equal(t, 3, bar.Renders())
}
