package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"github.com/cirruslabs/resource-usage-monitor/internal/config"
	"github.com/cirruslabs/resource-usage-monitor/internal/metricsapi"
	"github.com/cirruslabs/resource-usage-monitor/internal/poll"
	"github.com/cirruslabs/resource-usage-monitor/internal/statusbar"
	"github.com/cirruslabs/resource-usage-monitor/internal/usage"
	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	endpoint := flag.String("endpoint", "", "metrics endpoint: http(s)://host:port, host:port or unix:/path/to/socket")
	token := flag.String("token", "", "token sent with every metrics request")
	interval := flag.Duration("interval", 0, "refresh interval")
	noBackoff := flag.Bool("no-backoff", false, "retry failed requests at the refresh interval")
	maxBackoff := flag.Duration("max-backoff", 0, "upper bound of the retry delay (default 10 refresh intervals)")
	timeout := flag.Duration("timeout", 0, "per-request timeout (default none)")
	noCPU := flag.Bool("no-cpu", false, "don't monitor CPU usage")
	noMemory := flag.Bool("no-memory", false, "don't monitor memory usage")
	metricsAddress := flag.String("metrics-address", "", "serve Prometheus metrics of the pollers on this address")
	logFilePath := flag.String("log-file", "", "also write logs to this file")
	debug := flag.Bool("debug", false, "enable debug logging")
	help := flag.Bool("help", false, "help flag")
	flag.Parse()

	if *help {
		flag.PrintDefaults()
		os.Exit(0)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if *debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	if *logFilePath != "" {
		logFile, err := os.OpenFile(*logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
		if err != nil {
			logger.Warnf("Failed to open log file: %v", err)
		} else {
			defer logFile.Close()
			logger.SetOutput(io.MultiWriter(logFile, os.Stderr))
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal(err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		logger.Fatal(err)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "endpoint":
			cfg.Endpoint = *endpoint
		case "token":
			cfg.Token = *token
		case "interval":
			cfg.RefreshInterval = *interval
		case "no-backoff":
			cfg.Backoff = !*noBackoff
		case "max-backoff":
			cfg.MaxBackoff = *maxBackoff
		case "timeout":
			cfg.Timeout = *timeout
		case "no-cpu":
			cfg.CPU = !*noCPU
		case "no-memory":
			cfg.Memory = !*noMemory
		case "metrics-address":
			cfg.MetricsAddress = *metricsAddress
		}
	})

	if err := cfg.Validate(); err != nil {
		logger.Fatal(err)
	}

	if dsn, ok := os.LookupEnv("SENTRY_DSN"); ok {
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
			logger.Warnf("Failed to initialize Sentry: %v", err)
		} else {
			defer sentry.Flush(2 * time.Second)
			defer func() {
				if err := recover(); err != nil {
					sentry.CurrentHub().Recover(err)
					sentry.Flush(2 * time.Second)
					panic(err)
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Stdout); err != nil {
		logger.Error(err)
		sentry.CaptureException(err)
		sentry.Flush(2 * time.Second)
		os.Exit(1)
	}
}

// reportPanic handles panics of the polling goroutines, which the
// recover in main can't see.
func reportPanic(logger logrus.FieldLogger) func(recovered interface{}, stack []byte) {
	return func(recovered interface{}, stack []byte) {
		sentry.CurrentHub().Recover(recovered)
		sentry.Flush(2 * time.Second)
		logger.Fatalf("panic while polling: %v\n%s", recovered, stack)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger, out io.Writer) error {
	client := metricsapi.New(cfg.Endpoint,
		metricsapi.WithToken(cfg.Token),
		metricsapi.WithLogger(logger),
	)

	options := usage.Options{
		Frequency: cfg.Frequency(),
		Timeout:   cfg.Timeout,
		Logger:    logger,
		OnPanic:   reportPanic(logger),
	}

	if cfg.MetricsAddress != "" {
		registry := prometheus.NewRegistry()
		options.Metrics = poll.NewMetrics(registry)

		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warnf("Failed to serve metrics on %s: %v", cfg.MetricsAddress, err)
			}
		}()
		defer metricsServer.Close()
	}

	bar := statusbar.New(out)
	defer bar.Close()

	var models []*usage.ResourceModel
	defer func() {
		for _, model := range models {
			model.Dispose()
		}
		for _, model := range models {
			<-model.Done()
		}
	}()

	if cfg.CPU {
		model, err := usage.NewCPU(client.Fetch, options)
		if err != nil {
			return fmt.Errorf("failed to create CPU model: %w", err)
		}
		models = append(models, model)
		bar.Add(statusbar.NewItem(model, statusbar.FormatCPU))
	}

	if cfg.Memory {
		model, err := usage.NewMemory(client.Fetch, options)
		if err != nil {
			return fmt.Errorf("failed to create memory model: %w", err)
		}
		models = append(models, model)
		bar.Add(statusbar.NewItem(model, statusbar.FormatMemory))
	}

	logger.Infof("Polling %s every %v", client.URL(), cfg.RefreshInterval)

	for _, model := range models {
		model.Start()
	}

	<-ctx.Done()

	logger.Info("Shutting down...")

	return nil
}
