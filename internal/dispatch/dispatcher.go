package dispatch

import (
	"context"
	"sync"
	"time"

	"PulseDeck/internal/domain/models"
	domrepo "PulseDeck/internal/domain/repository"
	applogger "PulseDeck/pkg/logger"
)

// Subscriber consumes terminal outcome events. Delivery is at-least-once;
// subscribers must be idempotent on the event's SignalID.
type Subscriber interface {
	Name() string
	HandleOutcome(ctx context.Context, ev models.OutcomeEvent) error
}

// Config tunes the dispatcher's bounded queue and retry behavior.
type Config struct {
	QueueSize  int
	RetryLimit int
	RetryDelay time.Duration
}

// Dispatcher fans terminal outcome events out to subscribers over a
// bounded queue. Publish never blocks the registry: when the queue is
// full the event is dropped and counted, never back-pressured into price
// evaluation.
type Dispatcher struct {
	cfg     Config
	subs    []Subscriber
	ch      chan models.OutcomeEvent
	metrics domrepo.Metrics
	logger  *applogger.Logger

	stopCh  chan struct{}
	done    chan struct{}
	stopped sync.Once
}

// New creates a dispatcher for the given subscribers.
func New(cfg Config, metrics domrepo.Metrics, logger *applogger.Logger, subs ...Subscriber) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.RetryLimit < 0 {
		cfg.RetryLimit = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	return &Dispatcher{
		cfg:     cfg,
		subs:    subs,
		ch:      make(chan models.OutcomeEvent, cfg.QueueSize),
		metrics: metrics,
		logger:  logger,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Dispatch enqueues one event without blocking.
func (d *Dispatcher) Dispatch(ev models.OutcomeEvent) {
	select {
	case d.ch <- ev:
	default:
		d.metrics.RecordError("dispatch_queue_full")
	}
}

// Start launches the single consumer goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		defer close(d.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				// drain whatever is already queued before exiting
				for {
					select {
					case ev := <-d.ch:
						d.deliver(ctx, ev)
					default:
						return
					}
				}
			case ev := <-d.ch:
				d.deliver(ctx, ev)
			}
		}
	}()
}

// Stop drains the queue and waits for the consumer to exit.
func (d *Dispatcher) Stop() {
	d.stopped.Do(func() { close(d.stopCh) })
	<-d.done
}

func (d *Dispatcher) deliver(ctx context.Context, ev models.OutcomeEvent) {
	for _, s := range d.subs {
		var err error
		for attempt := 0; attempt <= d.cfg.RetryLimit; attempt++ {
			if err = s.HandleOutcome(ctx, ev); err == nil {
				break
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.cfg.RetryDelay):
			}
		}
		if err != nil {
			d.metrics.RecordError("dispatch_" + s.Name())
			if d.logger != nil {
				d.logger.Warn("outcome delivery failed",
					applogger.String("subscriber", s.Name()),
					applogger.String("signal_id", ev.SignalID),
					applogger.Error(err),
				)
			}
		}
	}
}
