package server

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/cirruslabs/resource-usage-monitor/internal/metricsapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"
)

const (
	DefaultAddress = "127.0.0.1:12322"

	activeRequestsPerLogicalCPU = 4
)

type Sampler interface {
	Sample(ctx context.Context) (*metricsapi.Payload, error)
}

type Options struct {
	Address string

	// MaxConcurrent bounds samples taken at the same time.
	MaxConcurrent int64

	// RequestsPerSecond throttles the endpoint, zero disables throttling.
	RequestsPerSecond float64
	Burst             int

	Registry *prometheus.Registry
	Logger   logrus.FieldLogger
}

type Server struct {
	sampler  Sampler
	address  string
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	logger   logrus.FieldLogger

	httpServer *http.Server
}

func New(sampler Sampler, options Options) *Server {
	if options.Address == "" {
		options.Address = DefaultAddress
	}
	if options.MaxConcurrent <= 0 {
		options.MaxConcurrent = int64(runtime.NumCPU() * activeRequestsPerLogicalCPU)
	}
	if options.Registry == nil {
		options.Registry = prometheus.NewRegistry()
	}
	if options.Logger == nil {
		options.Logger = logrus.StandardLogger()
	}

	server := &Server{
		sampler:  sampler,
		address:  options.Address,
		sem:      semaphore.NewWeighted(options.MaxConcurrent),
		registry: options.Registry,
		requests: promauto.With(options.Registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: "resource_monitor",
			Name:      "endpoint_requests_total",
			Help:      "Metrics endpoint requests by status code.",
		}, []string{"code"}),
		logger: options.Logger,
	}

	if options.RequestsPerSecond > 0 {
		burst := options.Burst
		if burst <= 0 {
			burst = 1
		}
		server.limiter = rate.NewLimiter(rate.Limit(options.RequestsPerSecond), burst)
	}

	return server
}

func (server *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(metricsapi.Path, server.handleMetrics)
	mux.Handle("/metrics", promhttp.HandlerFor(server.registry, promhttp.HandlerOpts{}))

	return mux
}

// Start listens on the configured address, or on an ephemeral port if it
// is occupied, and returns the address actually used.
func (server *Server) Start() (string, error) {
	listener, err := net.Listen("tcp", server.address)
	if err != nil {
		server.logger.Warnf("Address %s is occupied: %v. Looking for another one...", server.address, err)
		listener, err = net.Listen("tcp", "127.0.0.1:0")
	}
	if err != nil {
		return "", err
	}

	server.httpServer = &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	address := listener.Addr().String()
	server.logger.Infof("Serving metrics on %s", address)

	go func() {
		if err := server.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			server.logger.WithError(err).Error("metrics server failed")
		}
	}()

	return address, nil
}

func (server *Server) Shutdown(ctx context.Context) error {
	if server.httpServer == nil {
		return nil
	}

	return server.httpServer.Shutdown(ctx)
}

func (server *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		server.respond(w, http.StatusMethodNotAllowed)
		return
	}

	if server.limiter != nil && !server.limiter.Allow() {
		server.respond(w, http.StatusTooManyRequests)
		return
	}

	// Limit request concurrency
	if err := server.sem.Acquire(r.Context(), 1); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		server.respond(w, http.StatusServiceUnavailable)
		return
	}
	defer server.sem.Release(1)

	payload, err := server.sampler.Sample(r.Context())
	if err != nil {
		server.logger.WithError(err).
			WithField("request_id", r.Header.Get("X-Request-Id")).
			Warn("failed to sample metrics")
		server.respond(w, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	server.requests.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		server.logger.WithError(err).Debug("failed to write metrics response")
	}
}

func (server *Server) respond(w http.ResponseWriter, status int) {
	server.requests.WithLabelValues(strconv.Itoa(status)).Inc()
	w.WriteHeader(status)
}
