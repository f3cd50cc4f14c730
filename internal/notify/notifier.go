// Package notify delivers transition events to interested parties after
// a status change commits. Delivery is asynchronous and best-effort;
// workflow correctness never depends on it.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sellside/coedit/internal/observability"
	"github.com/sellside/coedit/model"
)

// TransitionEvent describes one committed status change.
type TransitionEvent struct {
	RecordID     int64        `json:"record_id"`
	Title        string       `json:"title"`
	FromStatus   model.Status `json:"from_status"`
	ToStatus     model.Status `json:"to_status"`
	ActorID      string       `json:"actor_id"`
	OwnerID      string       `json:"owner_id"`
	Reason       string       `json:"reason,omitempty"`
	TransitionID string       `json:"transition_id"`
	Timestamp    time.Time    `json:"timestamp"`
}

// Notifier delivers a single transition event.
type Notifier interface {
	Notify(event TransitionEvent)
}

// LogNotifier writes events to the structured log. It is the default
// sink until a real channel (email, chat webhook) is wired in.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that logs events.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the event.
func (n *LogNotifier) Notify(event TransitionEvent) {
	n.logger.Info("transition notification",
		zap.Int64("record_id", event.RecordID),
		zap.String("from_status", string(event.FromStatus)),
		zap.String("to_status", string(event.ToStatus)),
		zap.String("actor_id", event.ActorID),
		zap.String("owner_id", event.OwnerID),
	)
}

// AsyncDispatcher fans events out to a sink from a bounded queue. When
// the queue is full the event is dropped and counted rather than
// blocking the transition path.
type AsyncDispatcher struct {
	sink    Notifier
	queue   chan TransitionEvent
	metrics *observability.Metrics
	wg      sync.WaitGroup
	once    sync.Once
}

// NewAsyncDispatcher creates and starts a dispatcher.
func NewAsyncDispatcher(sink Notifier, queueSize int, metrics *observability.Metrics) *AsyncDispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &AsyncDispatcher{
		sink:    sink,
		queue:   make(chan TransitionEvent, queueSize),
		metrics: metrics,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Notify enqueues an event without blocking.
func (d *AsyncDispatcher) Notify(event TransitionEvent) {
	select {
	case d.queue <- event:
	default:
		d.metrics.RecordNotificationDropped()
	}
}

// Close stops the dispatcher after draining queued events.
func (d *AsyncDispatcher) Close() {
	d.once.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}

func (d *AsyncDispatcher) run() {
	defer d.wg.Done()
	for event := range d.queue {
		d.sink.Notify(event)
	}
}
