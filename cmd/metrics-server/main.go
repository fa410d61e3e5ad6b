package main

import (
	"context"
	"errors"
	"flag"
	"github.com/cirruslabs/resource-usage-monitor/internal/metrics"
	"github.com/cirruslabs/resource-usage-monitor/internal/metrics/source"
	"github.com/cirruslabs/resource-usage-monitor/internal/metrics/source/process"
	"github.com/cirruslabs/resource-usage-monitor/internal/metrics/source/system"
	"github.com/cirruslabs/resource-usage-monitor/internal/server"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	address := flag.String("address", server.DefaultAddress, "address to listen on")
	pid := flag.Int("pid", 0, "report the process tree rooted at this PID instead of the whole host")
	trackCPU := flag.Bool("cpu", true, "report CPU usage")
	cpuWindow := flag.Duration("cpu-window", metrics.DefaultCPUWindow, "how long CPU usage is measured for")
	cpuLimit := flag.Float64("cpu-limit", 0, "CPU limit (default number of CPUs)")
	memoryLimit := flag.String("memory-limit", "", "memory limit, e.g. 4GB (default host memory)")
	warnThreshold := flag.Float64("warn-threshold", metrics.DefaultWarnThreshold, "fraction of headroom below which a limit warns")
	requestsPerSecond := flag.Float64("rate", 0, "maximum requests per second (default unlimited)")
	burst := flag.Int("burst", 1, "request burst size when -rate is set")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := logrus.New()
	if *debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	var memoryLimitBytes uint64
	if *memoryLimit != "" {
		parsed, err := humanize.ParseBytes(*memoryLimit)
		if err != nil {
			logger.Fatalf("invalid memory limit %q: %v", *memoryLimit, err)
		}
		memoryLimitBytes = parsed
	}

	var cpuSource source.CPU
	var memorySource source.Memory

	systemSource := system.New()
	cpuSource = systemSource
	memorySource = systemSource

	var tree *process.Tree
	if *pid != 0 {
		tree = process.New(*pid)
		if _, err := tree.PIDs(); err != nil {
			logger.Fatal(err)
		}
		cpuSource = tree
		memorySource = tree
	}

	logger.Infof("Reporting CPU usage of %s and memory usage of %s", cpuSource.Name(), memorySource.Name())

	sampler := metrics.NewSampler(cpuSource, memorySource, metrics.SamplerOptions{
		CPUWindow:     *cpuWindow,
		WarnThreshold: *warnThreshold,
		MemoryLimit:   memoryLimitBytes,
		CPULimit:      *cpuLimit,
		TrackCPU:      *trackCPU,
		Logger:        logger,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	metricsServer := server.New(sampler, server.Options{
		Address:           *address,
		RequestsPerSecond: *requestsPerSecond,
		Burst:             *burst,
		Registry:          registry,
		Logger:            logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if _, err := metricsServer.Start(); err != nil {
			return err
		}

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return metricsServer.Shutdown(shutdownCtx)
	})

	if tree != nil {
		group.Go(func() error {
			return watchProcess(ctx, tree)
		})
	}

	err := group.Wait()
	if errors.Is(err, process.ErrProcessNotFound) {
		logger.Infof("%s has exited", tree.Name())
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal(err)
	}
}

// watchProcess returns once the monitored process is gone.
func watchProcess(ctx context.Context, tree *process.Tree) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := tree.PIDs(); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
