package poll

import (
	"context"
	"errors"
	"github.com/avast/retry-go"
	"github.com/sirupsen/logrus"
	"math"
	"runtime/debug"
	"sync"
	"time"
)

type Phase string

const (
	PhaseInstantiated Phase = "instantiated"
	PhaseStarted      Phase = "started"
	PhaseResolved     Phase = "resolved"
	PhaseRejected     Phase = "rejected"
	PhaseDisposed     Phase = "disposed"
)

var (
	ErrNoFetch    = errors.New("poller requires a fetch function")
	ErrNoListener = errors.New("poller requires a tick listener")
)

// FetchFunc performs a single attempt. It must honor ctx cancellation.
type FetchFunc[P any] func(ctx context.Context) (P, error)

// Tick is the outcome of a single attempt. On PhaseRejected the payload
// is the zero value and Err holds the fetch error.
type Tick[P any] struct {
	Payload P
	Phase   Phase
	Err     error
}

type Listener[P any] func(tick Tick[P])

type Options[P any] struct {
	Name      string
	Fetch     FetchFunc[P]
	Frequency Frequency

	// Timeout bounds a single attempt, zero means no timeout.
	Timeout time.Duration

	Logger  logrus.FieldLogger
	Metrics *Metrics

	// OnPanic receives a panic raised by Fetch or the listener, after which
	// the poller is disposed. Without it the panic crashes the program.
	OnPanic func(recovered interface{}, stack []byte)
}

// Poller repeatedly invokes a fetch function and reports every outcome
// to a single listener. At most one attempt is in flight at a time.
type Poller[P any] struct {
	name      string
	fetch     FetchFunc[P]
	frequency Frequency
	timeout   time.Duration
	listener  Listener[P]
	logger    logrus.FieldLogger
	metrics   *Metrics
	onPanic   func(recovered interface{}, stack []byte)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	phase    Phase
	started  bool
	disposed bool
}

func New[P any](options Options[P], listener Listener[P]) (*Poller[P], error) {
	if options.Fetch == nil {
		return nil, ErrNoFetch
	}
	if listener == nil {
		return nil, ErrNoListener
	}
	if err := options.Frequency.Validate(); err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Poller[P]{
		name:      options.Name,
		fetch:     options.Fetch,
		frequency: options.Frequency,
		timeout:   options.Timeout,
		listener:  listener,
		logger:    logger.WithField("poller", options.Name),
		metrics:   options.Metrics,
		onPanic:   options.OnPanic,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		phase:     PhaseInstantiated,
	}, nil
}

func (poller *Poller[P]) Name() string {
	return poller.name
}

func (poller *Poller[P]) Frequency() Frequency {
	return poller.frequency
}

func (poller *Poller[P]) Phase() Phase {
	poller.mu.Lock()
	defer poller.mu.Unlock()

	return poller.phase
}

func (poller *Poller[P]) IsDisposed() bool {
	poller.mu.Lock()
	defer poller.mu.Unlock()

	return poller.disposed
}

// Done is closed once the polling goroutine has exited, or on Dispose
// when the poller was never started.
func (poller *Poller[P]) Done() <-chan struct{} {
	return poller.done
}

// Start schedules the first attempt immediately. Calling it more than once
// or after Dispose does nothing.
func (poller *Poller[P]) Start() {
	poller.mu.Lock()
	defer poller.mu.Unlock()

	if poller.started || poller.disposed {
		return
	}
	poller.started = true

	go poller.run()
}

// Dispose stops scheduling. A result of an attempt that is still in flight
// is discarded without reaching the listener.
func (poller *Poller[P]) Dispose() {
	poller.mu.Lock()
	if poller.disposed {
		poller.mu.Unlock()
		return
	}
	poller.disposed = true
	poller.phase = PhaseDisposed
	started := poller.started
	poller.mu.Unlock()

	poller.cancel()

	if !started {
		close(poller.done)
	}

	poller.logger.Debug("poller disposed")
}

func (poller *Poller[P]) run() {
	defer close(poller.done)
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		if poller.onPanic == nil {
			panic(recovered)
		}

		stack := debug.Stack()
		poller.Dispose()
		poller.logger.Errorf("poller stopped after a panic: %v", recovered)
		poller.onPanic(recovered, stack)
	}()

	for {
		err := retry.Do(
			poller.attempt,
			retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
				return poller.frequency.Delay(n + 1)
			}),
			retry.OnRetry(func(n uint, err error) {
				delay := poller.frequency.Delay(n + 1)
				poller.metrics.observeDelay(poller.name, delay)
				poller.logger.WithError(err).
					WithField("failures", n+1).
					WithField("delay", delay).
					Debug("fetch failed, retrying")
			}),
			retry.RetryIf(func(error) bool {
				return poller.ctx.Err() == nil
			}),
			retry.Attempts(math.MaxUint32), retry.LastErrorOnly(true),
			retry.Context(poller.ctx),
		)

		delay := poller.frequency.Interval
		if err != nil {
			if poller.ctx.Err() != nil {
				return
			}

			// Ran out of attempts, keep going from the slowest pace
			delay = poller.frequency.Ceiling()
		}

		select {
		case <-time.After(delay):
		case <-poller.ctx.Done():
			return
		}
	}
}

func (poller *Poller[P]) attempt() error {
	if !poller.transition(PhaseStarted) {
		return context.Canceled
	}

	ctx := poller.ctx
	if poller.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, poller.timeout)
		defer cancel()
	}

	payload, err := poller.fetch(ctx)
	if err != nil {
		var zero P
		poller.emit(Tick[P]{Payload: zero, Phase: PhaseRejected, Err: err})

		return err
	}

	poller.emit(Tick[P]{Payload: payload, Phase: PhaseResolved})

	return nil
}

func (poller *Poller[P]) transition(phase Phase) bool {
	poller.mu.Lock()
	defer poller.mu.Unlock()

	if poller.disposed {
		return false
	}
	poller.phase = phase

	return true
}

func (poller *Poller[P]) emit(tick Tick[P]) {
	if !poller.transition(tick.Phase) {
		return
	}

	poller.metrics.observeTick(poller.name, tick.Phase)
	poller.listener(tick)
}
