package main

import (
	"bytes"
	"context"
	"github.com/cirruslabs/resource-usage-monitor/internal/config"
	"github.com/cirruslabs/resource-usage-monitor/internal/metricsapi"
	"github.com/cirruslabs/resource-usage-monitor/internal/server"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type staticSampler struct{}

func (staticSampler) Sample(ctx context.Context) (*metricsapi.Payload, error) {
	return &metricsapi.Payload{
		RSS:        metricsapi.Ptr(uint64(1_000_000_000)),
		CPUPercent: metricsapi.Ptr(45.0),
		CPUCount:   metricsapi.Ptr(4),
		Limits: metricsapi.Limits{
			CPU:    &metricsapi.CPULimit{CPU: 4},
			Memory: &metricsapi.MemoryLimit{RSS: 4_000_000_000},
		},
	}, nil
}

func TestRun(t *testing.T) {
	httpServer := httptest.NewServer(server.New(staticSampler{}, server.Options{}).Handler())
	defer httpServer.Close()

	cfg := config.Default()
	cfg.Endpoint = httpServer.URL
	cfg.RefreshInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, run(ctx, cfg, logrus.New(), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Contains(t, lines, "CPU: 0.450 / 4 | Mem: 1.0 GB / 4.0 GB")
}

func TestRunUnavailableEndpoint(t *testing.T) {
	httpServer := httptest.NewServer(nil)
	httpServer.Close()

	cfg := config.Default()
	cfg.Endpoint = httpServer.URL
	cfg.RefreshInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, run(ctx, cfg, logrus.New(), &out))
	assert.Empty(t, out.String())
}
