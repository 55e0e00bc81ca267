package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"agrirent/internal/domain"
)

type OutboxStore interface {
	ListPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkDelivered(ctx context.Context, id int64, at time.Time) error
	MarkAttemptFailed(ctx context.Context, id int64, attempts, maxAttempts int, cause string) error
}

type DispatcherConfig struct {
	// Schedule is a cron spec with seconds, e.g. "*/5 * * * * *" or "@every 5s".
	Schedule    string
	BatchSize   int
	MaxAttempts int
	SinkTimeout time.Duration
}

// Dispatcher drains the outbox into the sinks. It runs on a cron schedule and
// whenever Signal is called after a commit. Delivery failures are logged and
// retried on the next run; they never surface to the caller that produced
// the event.
type Dispatcher struct {
	outbox OutboxStore
	sinks  []Sink
	log    logrus.FieldLogger
	cfg    DispatcherConfig

	cron   *cron.Cron
	wake   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	drainM sync.Mutex
}

func NewDispatcher(outbox OutboxStore, sinks []Sink, log logrus.FieldLogger, cfg DispatcherConfig) *Dispatcher {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 5s"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 5 * time.Second
	}
	return &Dispatcher{
		outbox: outbox,
		sinks:  sinks,
		log:    log.WithField("component", "notification_dispatcher"),
		cfg:    cfg,
		wake:   make(chan struct{}, 1),
	}
}

// Signal asks for a drain as soon as possible. It never blocks.
func (d *Dispatcher) Signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Start registers the cron job and the signal loop.
func (d *Dispatcher) Start() error {
	d.cron = cron.New(cron.WithLocation(time.UTC), cron.WithSeconds())
	if _, err := d.cron.AddFunc(d.cfg.Schedule, func() { d.Drain(context.Background()) }); err != nil {
		return err
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		for {
			select {
			case <-d.stop:
				return
			case <-d.wake:
				d.Drain(context.Background())
			}
		}
	}()

	d.cron.Start()
	d.log.WithField("schedule", d.cfg.Schedule).Info("notification dispatcher started")
	return nil
}

// Stop waits for running drains to finish.
func (d *Dispatcher) Stop() {
	if d.cron == nil {
		return
	}
	<-d.cron.Stop().Done()
	close(d.stop)
	<-d.done
	d.log.Info("notification dispatcher stopped")
}

// Drain delivers up to one batch of pending events and returns how many were
// delivered.
func (d *Dispatcher) Drain(ctx context.Context) int {
	d.drainM.Lock()
	defer d.drainM.Unlock()

	events, err := d.outbox.ListPending(ctx, d.cfg.BatchSize)
	if err != nil {
		d.log.WithError(err).Error("list pending notifications")
		return 0
	}

	delivered := 0
	for _, ev := range events {
		if err := d.deliver(ctx, ev); err != nil {
			attempts := ev.Attempts + 1
			d.log.WithError(err).WithFields(logrus.Fields{
				"outbox_id": ev.ID,
				"user_id":   ev.UserID,
				"event":     ev.Event,
				"attempts":  attempts,
			}).Warn("notification delivery failed")

			if err := d.outbox.MarkAttemptFailed(ctx, ev.ID, attempts, d.cfg.MaxAttempts, err.Error()); err != nil {
				d.log.WithError(err).WithField("outbox_id", ev.ID).Error("record notification failure")
			}
			continue
		}

		if err := d.outbox.MarkDelivered(ctx, ev.ID, time.Now().UTC()); err != nil {
			d.log.WithError(err).WithField("outbox_id", ev.ID).Error("mark notification delivered")
			continue
		}
		delivered++
	}
	return delivered
}

func (d *Dispatcher) deliver(ctx context.Context, ev domain.OutboxEvent) error {
	var errs []error
	for _, sink := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.cfg.SinkTimeout)
		err := safeNotify(sctx, sink, ev)
		cancel()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func safeNotify(ctx context.Context, sink Sink, ev domain.OutboxEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("notification sink panicked")
		}
	}()
	if s, ok := sink.(OutboxSink); ok {
		return s.Deliver(ctx, ev)
	}
	return sink.Notify(ctx, ev.UserID, ev.Event, ev.Payload)
}
