package metrics_test

import (
	"context"
	"errors"
	"github.com/cirruslabs/resource-usage-monitor/internal/metrics"
	"github.com/cirruslabs/resource-usage-monitor/internal/metrics/source/system"
	"github.com/cirruslabs/resource-usage-monitor/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

type fakeSource struct {
	cpus   float64
	memory float64
	err    error
}

func (source *fakeSource) Name() string {
	return "fake"
}

func (source *fakeSource) NumCpusUsed(ctx context.Context, pollInterval time.Duration) (float64, error) {
	return source.cpus, source.err
}

func (source *fakeSource) AmountMemoryUsed(ctx context.Context) (float64, error) {
	return source.memory, source.err
}

func fixedTotals(numCpus uint64, memory uint64) func(ctx context.Context) (metrics.Totals, error) {
	return func(ctx context.Context) (metrics.Totals, error) {
		return metrics.Totals{NumCpus: numCpus, Memory: memory}, nil
	}
}

func TestSample(t *testing.T) {
	fake := &fakeSource{cpus: 1.5, memory: 512}

	sampler := metrics.NewSampler(fake, fake, metrics.SamplerOptions{TrackCPU: true}).
		WithTotals(fixedTotals(4, 1024))

	payload, err := sampler.Sample(context.Background())
	require.NoError(t, err)
	require.NoError(t, payload.Validate())

	assert.EqualValues(t, 512, *payload.RSS)
	assert.InDelta(t, 150.0, *payload.CPUPercent, 0.0001)
	assert.Equal(t, 4, *payload.CPUCount)
	require.NotNil(t, payload.Limits.Memory)
	assert.EqualValues(t, 1024, payload.Limits.Memory.RSS)
	assert.False(t, payload.Limits.Memory.Warn)
	require.NotNil(t, payload.Limits.CPU)
	assert.EqualValues(t, 4, payload.Limits.CPU.CPU)
	assert.False(t, payload.Limits.CPU.Warn)
}

func TestSampleWarnsCloseToLimit(t *testing.T) {
	fake := &fakeSource{cpus: 3.9, memory: 950}

	sampler := metrics.NewSampler(fake, fake, metrics.SamplerOptions{TrackCPU: true}).
		WithTotals(fixedTotals(4, 1024))

	payload, err := sampler.Sample(context.Background())
	require.NoError(t, err)
	assert.True(t, payload.Limits.Memory.Warn)
	assert.True(t, payload.Limits.CPU.Warn)
}

func TestSampleCPULimitOverride(t *testing.T) {
	fake := &fakeSource{cpus: 1.9}

	sampler := metrics.NewSampler(fake, fake, metrics.SamplerOptions{TrackCPU: true, CPULimit: 2}).
		WithTotals(fixedTotals(8, 1024))

	payload, err := sampler.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, *payload.CPUCount)
	assert.EqualValues(t, 2, payload.Limits.CPU.CPU)
	assert.True(t, payload.Limits.CPU.Warn)

	snapshot := usage.CPU(payload)
	assert.True(t, snapshot.Limited)
	assert.EqualValues(t, 2, snapshot.Limit)
	assert.True(t, snapshot.Warning)
}

func TestSampleFractionalCPULimitOverride(t *testing.T) {
	fake := &fakeSource{cpus: 0.5}

	// The host reports no CPUs, the override alone makes the limit
	sampler := metrics.NewSampler(fake, fake, metrics.SamplerOptions{TrackCPU: true, CPULimit: 1.5}).
		WithTotals(fixedTotals(0, 1024))

	payload, err := sampler.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, *payload.CPUCount)
	assert.EqualValues(t, 1.5, payload.Limits.CPU.CPU)
	assert.False(t, payload.Limits.CPU.Warn)
	assert.True(t, usage.CPU(payload).Limited)
}

func TestSampleWithoutCPU(t *testing.T) {
	fake := &fakeSource{memory: 100}

	sampler := metrics.NewSampler(fake, fake, metrics.SamplerOptions{MemoryLimit: 200}).
		WithTotals(fixedTotals(4, 1024))

	payload, err := sampler.Sample(context.Background())
	require.NoError(t, err)
	assert.Nil(t, payload.CPUPercent)
	assert.Nil(t, payload.CPUCount)
	assert.Nil(t, payload.Limits.CPU)
	assert.EqualValues(t, 200, payload.Limits.Memory.RSS)
}

func TestSampleFailure(t *testing.T) {
	fake := &fakeSource{err: errors.New("boom")}

	sampler := metrics.NewSampler(fake, fake, metrics.SamplerOptions{TrackCPU: true}).
		WithTotals(fixedTotals(4, 1024))

	_, err := sampler.Sample(context.Background())
	require.ErrorIs(t, err, metrics.ErrFailedToQueryMemory)
}

func TestSampleSystem(t *testing.T) {
	systemSource := system.New()

	sampler := metrics.NewSampler(systemSource, systemSource, metrics.SamplerOptions{
		TrackCPU:  true,
		CPUWindow: 50 * time.Millisecond,
	})

	payload, err := sampler.Sample(context.Background())
	require.NoError(t, err)
	require.NoError(t, payload.Validate())
	assert.Greater(t, *payload.RSS, uint64(0))
}
