package usage

import (
	"github.com/cirruslabs/resource-usage-monitor/internal/poll"
	"github.com/sirupsen/logrus"
	"sync"
	"time"
)

// Mapper interprets a successfully fetched payload. It must tolerate
// missing optional fields. The snapshot of a resolved attempt is always
// available, whatever Available the mapper sets.
type Mapper[P any] func(payload P) Snapshot

type Options struct {
	Name      string
	Frequency poll.Frequency
	Timeout   time.Duration
	Logger    logrus.FieldLogger
	Metrics   *poll.Metrics
	OnPanic   func(recovered interface{}, stack []byte)
}

// Model keeps the latest snapshot of one resource and notifies
// subscribers whenever it changes.
type Model[P any] struct {
	name   string
	mapper Mapper[P]
	poller *poll.Poller[P]
	logger logrus.FieldLogger

	mu       sync.RWMutex
	snapshot Snapshot
	disposed bool

	subscribersMu sync.Mutex
	nextID        uint64
	subscribers   map[uint64]func()
}

func New[P any](fetch poll.FetchFunc[P], mapper Mapper[P], options Options) (*Model[P], error) {
	logger := options.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	model := &Model[P]{
		name:        options.Name,
		mapper:      mapper,
		logger:      logger.WithField("resource", options.Name),
		subscribers: map[uint64]func(){},
	}

	poller, err := poll.New(poll.Options[P]{
		Name:      options.Name,
		Fetch:     fetch,
		Frequency: options.Frequency,
		Timeout:   options.Timeout,
		Logger:    logger,
		Metrics:   options.Metrics,
		OnPanic:   options.OnPanic,
	}, model.onTick)
	if err != nil {
		return nil, err
	}
	model.poller = poller

	return model, nil
}

func (model *Model[P]) Name() string {
	return model.name
}

// Start begins polling. Subscribe before calling it to observe the
// first transition.
func (model *Model[P]) Start() {
	model.poller.Start()
}

// Subscribe registers fn to be called after every change. The returned
// function removes the subscription. Notifications are delivered from the
// polling goroutine; fn should re-read the model's accessors.
func (model *Model[P]) Subscribe(fn func()) (unsubscribe func()) {
	model.subscribersMu.Lock()
	defer model.subscribersMu.Unlock()

	id := model.nextID
	model.nextID++
	model.subscribers[id] = fn

	return func() {
		model.subscribersMu.Lock()
		defer model.subscribersMu.Unlock()

		delete(model.subscribers, id)
	}
}

func (model *Model[P]) Snapshot() Snapshot {
	model.mu.RLock()
	defer model.mu.RUnlock()

	return model.snapshot
}

func (model *Model[P]) Available() bool {
	return model.Snapshot().Available
}

func (model *Model[P]) Current() float64 {
	return model.Snapshot().Current
}

// Limit returns false when no limit is known.
func (model *Model[P]) Limit() (float64, bool) {
	snapshot := model.Snapshot()

	return snapshot.Limit, snapshot.Limited
}

func (model *Model[P]) Warning() bool {
	return model.Snapshot().Warning
}

func (model *Model[P]) Phase() poll.Phase {
	return model.poller.Phase()
}

// Done is closed once polling has stopped after Dispose.
func (model *Model[P]) Done() <-chan struct{} {
	return model.poller.Done()
}

func (model *Model[P]) IsDisposed() bool {
	model.mu.RLock()
	defer model.mu.RUnlock()

	return model.disposed
}

// Dispose stops polling. No notification is delivered once it returns,
// except one that was already being delivered by another goroutine.
func (model *Model[P]) Dispose() {
	model.mu.Lock()
	if model.disposed {
		model.mu.Unlock()
		return
	}
	model.disposed = true
	model.mu.Unlock()

	model.poller.Dispose()

	model.subscribersMu.Lock()
	model.subscribers = map[uint64]func(){}
	model.subscribersMu.Unlock()
}

func (model *Model[P]) onTick(tick poll.Tick[P]) {
	var next Snapshot
	if tick.Phase == poll.PhaseResolved {
		next = model.mapper(tick.Payload)
		next.Available = true
		next = next.normalize()
	}

	model.mu.Lock()
	if model.disposed {
		model.mu.Unlock()
		return
	}
	previous := model.snapshot
	model.snapshot = next
	model.mu.Unlock()

	if previous == next {
		return
	}

	if previous.Available != next.Available {
		entry := model.logger.WithField("phase", tick.Phase)
		if tick.Err != nil {
			entry = entry.WithError(tick.Err)
		}
		entry.Infof("metrics available: %t", next.Available)
	}

	model.notify()
}

func (model *Model[P]) notify() {
	model.subscribersMu.Lock()
	subscribers := make([]func(), 0, len(model.subscribers))
	for _, fn := range model.subscribers {
		subscribers = append(subscribers, fn)
	}
	model.subscribersMu.Unlock()

	for _, fn := range subscribers {
		if model.IsDisposed() {
			return
		}

		fn()
	}
}
